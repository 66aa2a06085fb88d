// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the time source for every timer-driven path in
// interterm: the companion keepalive ticker, pending-request expiry,
// edit-episode bookkeeping, the pairing-code limiter, and the
// insertion lock on the session side.
//
// Production code holds a Clock field set to Real(). Tests use Fake(),
// which only moves when Advance is called:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	server := companion.New(companion.Config{Clock: fake})
//	fake.WaitForTimers(1)        // ping ticker registered
//	fake.Advance(5 * time.Second) // one keepalive fires
package clock
