// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds helpers shared by interterm tests.
//
// [SocketDir] returns a short temporary directory for Unix sockets;
// t.TempDir paths can exceed the 108-byte sun_path limit.
//
// [RequireReceive] and [RequireClosed] bound a channel wait with a
// wall-clock timeout. They are the only real-time waits in the test
// suite; everything else runs on lib/clock.Fake.
package testutil
