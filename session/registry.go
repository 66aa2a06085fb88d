// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/interterm/lib/clock"
	"github.com/bureau-foundation/interterm/protocol"
)

// DefaultRequestTTL is how long a request waits for its response when
// the registry is built without an explicit TTL.
const DefaultRequestTTL = 2 * time.Minute

// ErrSecretMismatch is returned by Authenticate when the id is bound
// to a different secret. The session is unchanged.
var ErrSecretMismatch = errors.New("session secret mismatch")

// Registry maps session ids to sessions. Safe for concurrent use.
type Registry struct {
	clock      clock.Clock
	requestTTL time.Duration

	// generation tags writer attachments.
	generation atomic.Uint64

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry. A zero requestTTL means
// DefaultRequestTTL.
func NewRegistry(clk clock.Clock, requestTTL time.Duration) *Registry {
	if requestTTL <= 0 {
		requestTTL = DefaultRequestTTL
	}
	return &Registry{
		clock:      clk,
		requestTTL: requestTTL,
		sessions:   make(map[string]*Session),
	}
}

// Authenticate binds a connection to a session. An unknown id creates
// the session and binds secret to it; a known id must present the
// bound secret. On success the connection's queue becomes the
// session's writer and the returned generation identifies the
// attachment for Detach. created reports whether the session is new.
func (r *Registry) Authenticate(id, secret string, messages chan<- protocol.Clientbound, done <-chan struct{}) (session *Session, generation uint64, created bool, err error) {
	r.mu.Lock()
	session, ok := r.sessions[id]
	if !ok {
		session = newSession(id, secret, r.clock, r.requestTTL)
		r.sessions[id] = session
	}
	r.mu.Unlock()

	if ok && !session.checkSecret(secret) {
		return nil, 0, false, ErrSecretMismatch
	}
	generation = r.generation.Add(1)
	session.attach(generation, messages, done)
	return session, generation, !ok, nil
}

// Get returns the session for id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	return session, ok
}

// Remove destroys a session and evicts its pending requests.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	session, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		session.pending.CloseAll()
	}
	return ok
}

// List returns every session ordered by id.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	r.mu.RUnlock()
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].id < sessions[j].id })
	return sessions
}

// Len is the number of sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
