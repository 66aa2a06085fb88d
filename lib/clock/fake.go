// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a Clock that only moves when Advance is called. Safe
// for concurrent use.
//
// AfterFunc callbacks run synchronously inside Advance, in deadline
// order. A callback must not call Advance.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*fakeTimer
	changed *sync.Cond
}

type fakeTimer struct {
	deadline time.Time
	period   time.Duration // non-zero for tickers
	channel  chan time.Time
	callback func()
	stopped  bool
	fired    bool
}

// Fake returns a FakeClock reading initial.
func Fake(initial time.Time) *FakeClock {
	clock := &FakeClock{now: initial}
	clock.changed = sync.NewCond(&clock.mu)
	return clock
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.addLocked(&fakeTimer{deadline: c.now.Add(d), channel: channel})
	return channel
}

func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stop: func() bool { return false }}
	}

	c.mu.Lock()
	timer := &fakeTimer{deadline: c.now.Add(d), callback: f}
	c.addLocked(timer)
	c.mu.Unlock()

	return &Timer{stop: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if timer.stopped || timer.fired {
			return false
		}
		timer.stopped = true
		return true
	}}
}

func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	timer := &fakeTimer{deadline: c.now.Add(d), period: d, channel: channel}
	c.addLocked(timer)

	return &Ticker{C: channel, stop: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		timer.stopped = true
	}}
}

// Advance moves the clock forward by d and fires everything whose
// deadline is reached, earliest first. A ticker spanning several
// periods fires once per period; ticks that do not fit in its channel
// are dropped.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now
	c.mu.Unlock()

	for {
		due := c.takeDue(target)
		if len(due) == 0 {
			return
		}
		for _, timer := range due {
			if timer.callback != nil {
				timer.callback()
				continue
			}
			select {
			case timer.channel <- target:
			default:
			}
		}
	}
}

// WaitForTimers blocks until at least n timers or tickers are
// pending. Tests call it before Advance so a goroutine that has not
// yet registered its ticker does not miss the advance.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.activeLocked() < n {
		c.changed.Wait()
	}
}

// PendingCount reports the number of active timers and tickers.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeLocked()
}

func (c *FakeClock) addLocked(timer *fakeTimer) {
	c.pending = append(c.pending, timer)
	c.changed.Broadcast()
}

func (c *FakeClock) activeLocked() int {
	count := 0
	for _, timer := range c.pending {
		if !timer.stopped {
			count++
		}
	}
	return count
}

// takeDue removes one-shot timers that are due, reschedules due
// tickers by one period, and returns everything that must fire.
func (c *FakeClock) takeDue(target time.Time) []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due, keep []*fakeTimer
	for _, timer := range c.pending {
		switch {
		case timer.stopped:
		case timer.deadline.After(target):
			keep = append(keep, timer)
		default:
			due = append(due, timer)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})
	for _, timer := range due {
		if timer.period > 0 {
			timer.deadline = timer.deadline.Add(timer.period)
			keep = append(keep, timer)
		} else {
			timer.fired = true
		}
	}
	c.pending = keep
	return due
}
