// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"github.com/bureau-foundation/interterm/lib/clock"
	"github.com/bureau-foundation/interterm/protocol"
)

// episodeGap is the idle time after which the next edit starts a new
// edit episode.
const episodeGap = 5 * time.Second

var (
	// ErrNotConnected is returned for requests to a session with no
	// live connection. No waiter is registered.
	ErrNotConnected = errors.New("session not connected")

	// ErrRequestExpired is returned when a waiter was evicted before
	// its response arrived.
	ErrRequestExpired = errors.New("request expired without a response")
)

// EditBuffer is the command line being edited. Cursor counts UTF-16
// code units.
type EditBuffer struct {
	Text   string `json:"text"`
	Cursor int64  `json:"cursor"`
}

// Metrics summarizes the user's editing in a session.
type Metrics struct {
	// EpisodeStart and EpisodeEnd bound the current edit episode. An
	// edit more than 5s after EpisodeEnd starts a new episode.
	EpisodeStart time.Time `json:"episode_start"`
	EpisodeEnd   time.Time `json:"episode_end"`

	Insertions uint64 `json:"insertions"`
	Popups     uint64 `json:"popups"`
}

// writer is a connection's outbound queue.
type writer struct {
	generation uint64
	messages   chan<- protocol.Clientbound

	// done is closed when the connection ends; sends select on it so
	// they never block on a dead connection.
	done <-chan struct{}
}

// Session is one terminal session as seen by the companion.
type Session struct {
	id     string
	secret []byte
	clock  clock.Clock

	// requestTTL bounds how long a Call's waiter is kept.
	requestTTL time.Duration

	pending *PendingTable

	mu           sync.Mutex
	writer       *writer
	deadSince    time.Time
	lastReceive  time.Time
	context      *protocol.ShellContext
	editBuffer   EditBuffer
	metrics      Metrics
	popupVisible bool
}

func newSession(id, secret string, clk clock.Clock, requestTTL time.Duration) *Session {
	return &Session{
		id:         id,
		secret:     []byte(secret),
		clock:      clk,
		requestTTL: requestTTL,
		pending:    NewPendingTable(),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// checkSecret compares in constant time. The bound secret never
// changes.
func (s *Session) checkSecret(secret string) bool {
	return subtle.ConstantTimeCompare(s.secret, []byte(secret)) == 1
}

// attach makes messages the session's outbound queue, replacing any
// previous connection's, and clears dead-since. The returned
// generation is passed to Detach.
func (s *Session) attach(generation uint64, messages chan<- protocol.Clientbound, done <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer = &writer{generation: generation, messages: messages, done: done}
	s.deadSince = time.Time{}
	s.lastReceive = s.clock.Now()
}

// Detach clears the writer if it still belongs to generation and
// stamps dead-since. Returns false for a stale generation.
func (s *Session) Detach(generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer == nil || s.writer.generation != generation {
		return false
	}
	s.writer = nil
	s.deadSince = s.clock.Now()
	return true
}

// Connected reports whether a connection is attached.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer != nil
}

// DeadSince is when the session last lost its connection; zero while
// connected.
func (s *Session) DeadSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadSince
}

// Touch records that a message arrived.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastReceive = s.clock.Now()
	s.mu.Unlock()
}

// LastReceive is when the last message arrived.
func (s *Session) LastReceive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReceive
}

func (s *Session) currentWriter() *writer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer
}

// Send queues message on the live connection, waiting for queue space
// unless the connection ends first. Returns false when there is no
// connection or it ended.
func (s *Session) Send(message protocol.Clientbound) bool {
	w := s.currentWriter()
	if w == nil {
		return false
	}
	select {
	case w.messages <- message:
		return true
	case <-w.done:
		return false
	}
}

// TrySend queues message only if there is room right now.
func (s *Session) TrySend(message protocol.Clientbound) bool {
	w := s.currentWriter()
	if w == nil {
		return false
	}
	select {
	case w.messages <- message:
		return true
	default:
		return false
	}
}

// Request sends a request that expects no response.
func (s *Session) Request(request protocol.Request) error {
	request.Nonce = nil
	if !s.Send(protocol.Clientbound{Request: &request}) {
		return ErrNotConnected
	}
	return nil
}

// Call sends a request with a fresh nonce and waits for its response,
// for ctx, or for the waiter to expire.
func (s *Session) Call(ctx context.Context, request protocol.Request) (*protocol.Response, error) {
	if !s.Connected() {
		return nil, ErrNotConnected
	}
	nonce := s.pending.NextNonce()
	request.Nonce = &nonce
	reply := s.pending.Register(nonce, s.clock.Now().Add(s.requestTTL))
	if !s.Send(protocol.Clientbound{Request: &request}) {
		s.pending.Cancel(nonce)
		return nil, ErrNotConnected
	}

	select {
	case response, ok := <-reply:
		if !ok {
			return nil, ErrRequestExpired
		}
		return response, nil
	case <-ctx.Done():
		s.pending.Cancel(nonce)
		return nil, ctx.Err()
	}
}

// Resolve routes a response to its waiter. Returns false when nothing
// waits for the nonce; the response is discarded.
func (s *Session) Resolve(response *protocol.Response) bool {
	return s.pending.Resolve(response)
}

// ExpirePending evicts waiters past their TTL.
func (s *Session) ExpirePending() int {
	return s.pending.Expire(s.clock.Now())
}

// PendingCount is the number of outstanding requests.
func (s *Session) PendingCount() int {
	return s.pending.Len()
}

// SetContext replaces the shell context.
func (s *Session) SetContext(context *protocol.ShellContext) {
	s.mu.Lock()
	s.context = context
	s.mu.Unlock()
}

// Context returns the last shell context, nil before the first hook.
func (s *Session) Context() *protocol.ShellContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.context
}

// SetEditBuffer records the latest edit buffer and extends the edit
// episode, starting a new one after a gap of more than 5s.
func (s *Session) SetEditBuffer(buffer EditBuffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editBuffer = buffer
	s.extendEpisodeLocked()
}

// EditBuffer returns the latest edit buffer.
func (s *Session) EditBuffer() EditBuffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editBuffer
}

// RecordInsertion counts a companion insertion and extends the
// episode end.
func (s *Session) RecordInsertion() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.Insertions++
	s.metrics.EpisodeEnd = s.clock.Now()
}

// SetPopupVisible records the autocomplete popup state. A hidden to
// shown transition counts one popup. Returns whether the state
// changed.
func (s *Session) SetPopupVisible(visible bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.popupVisible == visible {
		return false
	}
	s.popupVisible = visible
	if visible {
		s.metrics.Popups++
	}
	return true
}

// PopupVisible reports the recorded popup state.
func (s *Session) PopupVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.popupVisible
}

// Metrics returns a copy of the session metrics.
func (s *Session) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

func (s *Session) extendEpisodeLocked() {
	now := s.clock.Now()
	if s.metrics.EpisodeEnd.IsZero() || now.Sub(s.metrics.EpisodeEnd) > episodeGap {
		s.metrics.EpisodeStart = now
	}
	s.metrics.EpisodeEnd = now
}
