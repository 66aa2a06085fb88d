// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service is a one-request-per-connection CBOR action server
// on a Unix socket, and the matching client. The companion exposes its
// system commands through it.
//
// A request is a CBOR map with an "action" field plus action-specific
// fields. The reply is a [Response] envelope. A request carrying
// "no_response": true is dispatched and the connection is closed
// without a reply, so fire-and-forget callers never block on a slow
// handler.
package service
