// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the single CBOR configuration shared by the session
// protocol and the companion's system-command socket. Both sides of a
// connection must agree on encoding options, so nothing else in the
// module imports fxamacker/cbor directly.
//
// Encoding is RFC 8949 Core Deterministic: the same value always
// produces the same bytes, which keeps protocol tests byte-comparable.
// Decoding ignores unknown fields so a newer companion can talk to an
// older session binary.
//
// Tag convention: wire-only types carry `cbor` tags. Types that are
// also rendered as JSON (diagnostics, notifications) carry `json` tags
// only; the decoder falls back to them.
package codec
