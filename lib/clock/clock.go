// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the subset of the time package that interterm schedules
// against.
type Clock interface {
	Now() time.Time

	// After delivers the current time on the returned channel once d
	// has elapsed. d <= 0 delivers immediately.
	After(d time.Duration) <-chan time.Time

	// AfterFunc calls f once d has elapsed. The returned Timer has a
	// nil C.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker panics if d <= 0, like time.NewTicker.
	NewTicker(d time.Duration) *Ticker
}

// Ticker delivers periodic ticks on C. C holds at most one pending
// tick; a slow reader loses ticks instead of queueing them.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop halts the ticker. C is not closed.
func (t *Ticker) Stop() { t.stop() }

// Timer is a pending AfterFunc call.
type Timer struct {
	C <-chan time.Time

	stop func() bool
}

// Stop cancels the call. It reports false if the call already ran or
// was already stopped.
func (t *Timer) Stop() bool { return t.stop() }
