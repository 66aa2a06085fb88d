// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package companion is the companion side of the session protocol.
//
// [Server] accepts session connections and runs each through its state
// machine: Unauthenticated until a handshake succeeds, Authenticated
// until the connection ends, then Closed. Closing a connection never
// removes its session; the registry keeps it for a later reconnect.
//
// While authenticated, every connection pings its session on a fixed
// interval. Pings are dropped, not queued, when the connection's queue
// is full. The same tick evicts the session's expired pending
// requests.
//
// [Companion] is the request API the rest of the companion uses to
// drive a session: editing its command line, running processes, and
// setting key interception. [PairingIssuer] hands out pairing codes at
// most once per second.
package companion
