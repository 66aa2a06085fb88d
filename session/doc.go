// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session holds the companion's view of every terminal session
// that has ever handshaken with it.
//
// A [Session] is created by the first handshake for its id, which also
// binds its secret for the life of the companion. Disconnects do not
// remove a session: they clear its writer and stamp dead-since, and a
// later handshake with the same secret reattaches it. Only
// [Registry.Remove] destroys a session.
//
// Each connection attaches a writer tagged with a generation number;
// detaching with a stale generation is a no-op, so a connection that
// lost a reconnect race cannot strand its successor.
//
// Requests that expect a reply go through the session's
// [PendingTable]: a fresh nonce, a one-shot reply channel, and an
// expiry after which the waiter is evicted.
package session
