// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/interterm/protocol"
)

// PendingTable correlates nonces with waiting callers.
type PendingTable struct {
	// nonce is the last nonce issued. Nonces are never reused for the
	// life of the table.
	nonce atomic.Uint64

	mu      sync.Mutex
	waiters map[uint64]*waiter
}

type waiter struct {
	reply   chan *protocol.Response
	expires time.Time
}

// NewPendingTable returns an empty table.
func NewPendingTable() *PendingTable {
	return &PendingTable{waiters: make(map[uint64]*waiter)}
}

// NextNonce issues a nonce without registering a waiter.
func (p *PendingTable) NextNonce() uint64 {
	return p.nonce.Add(1)
}

// Register records a waiter for nonce that expires at expires. The
// returned channel receives the response, or is closed if the waiter
// is evicted first.
func (p *PendingTable) Register(nonce uint64, expires time.Time) <-chan *protocol.Response {
	reply := make(chan *protocol.Response, 1)
	p.mu.Lock()
	p.waiters[nonce] = &waiter{reply: reply, expires: expires}
	p.mu.Unlock()
	return reply
}

// Resolve delivers response to its waiter. Returns false when no
// waiter holds the nonce: it was never registered, already answered,
// cancelled or expired.
func (p *PendingTable) Resolve(response *protocol.Response) bool {
	p.mu.Lock()
	w, ok := p.waiters[response.Nonce]
	delete(p.waiters, response.Nonce)
	p.mu.Unlock()
	if !ok {
		return false
	}
	w.reply <- response
	return true
}

// Cancel drops the waiter for nonce without closing its channel. Used
// by a caller that stopped waiting.
func (p *PendingTable) Cancel(nonce uint64) {
	p.mu.Lock()
	delete(p.waiters, nonce)
	p.mu.Unlock()
}

// Expire evicts every waiter whose expiry is not after now and
// returns how many were evicted.
func (p *PendingTable) Expire(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	evicted := 0
	for nonce, w := range p.waiters {
		if !w.expires.After(now) {
			close(w.reply)
			delete(p.waiters, nonce)
			evicted++
		}
	}
	return evicted
}

// CloseAll evicts every waiter.
func (p *PendingTable) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for nonce, w := range p.waiters {
		close(w.reply)
		delete(p.waiters, nonce)
	}
}

// Len is the number of outstanding waiters.
func (p *PendingTable) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}
