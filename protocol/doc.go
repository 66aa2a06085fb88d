// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the session protocol spoken between an
// interterm session (the PTY intermediary wrapping one shell) and the
// companion process over a local unix socket.
//
// The package is organized around the two message directions:
//
//   - frame.go: the binary framing shared by both directions
//   - hostbound.go: session to companion (handshake, hooks, responses, pongs)
//   - clientbound.go: companion to session (handshake verdicts, requests, pings)
//   - shell.go: shell context and the intercept command shared by both
//
// Every frame is a 5-byte header (1 byte message type, 4 byte
// big-endian payload length) followed by a CBOR payload encoded with
// lib/codec. Message types below 0x80 travel hostbound, the rest
// clientbound, so a frame read in the wrong direction is detected
// before its payload is decoded.
//
// A connection opens with exactly one successful Handshake carrying
// the session id and its secret. Requests that expect a reply carry a
// nonce; the matching Response echoes it. Replies may arrive in any
// order.
package protocol
