// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package companion

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/interterm/protocol"
	"github.com/bureau-foundation/interterm/session"
)

// ErrUnknownSession is returned for a session id the registry does
// not hold.
var ErrUnknownSession = errors.New("unknown session")

// Companion drives sessions through the registry. Fire-and-forget
// methods return once the request is queued; the others wait for the
// session's response.
type Companion struct {
	registry *session.Registry
}

// New returns a Companion over registry.
func New(registry *session.Registry) *Companion {
	return &Companion{registry: registry}
}

func (c *Companion) lookup(id string) (*session.Session, error) {
	s, ok := c.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSession, id)
	}
	return s, nil
}

func (c *Companion) send(id string, request protocol.Request) error {
	s, err := c.lookup(id)
	if err != nil {
		return err
	}
	return s.Request(request)
}

// InsertText edits the session's command line and counts the
// insertion in its metrics.
func (c *Companion) InsertText(id string, request protocol.InsertTextRequest) error {
	s, err := c.lookup(id)
	if err != nil {
		return err
	}
	if err := s.Request(protocol.Request{InsertText: &request}); err != nil {
		return err
	}
	s.RecordInsertion()
	return nil
}

// SetBuffer replaces the session's command line.
func (c *Companion) SetBuffer(id string, request protocol.SetBufferRequest) error {
	return c.send(id, protocol.Request{SetBuffer: &request})
}

// Intercept changes the session's key interception.
func (c *Companion) Intercept(id string, command protocol.InterceptCommand) error {
	return c.send(id, protocol.Request{Intercept: &command})
}

// InsertOnNewCommand queues text for the session's next prompt.
func (c *Companion) InsertOnNewCommand(id string, request protocol.InsertOnNewCommandRequest) error {
	return c.send(id, protocol.Request{InsertOnNewCommand: &request})
}

func (c *Companion) call(ctx context.Context, id string, request protocol.Request) (*protocol.Response, error) {
	s, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	return s.Call(ctx, request)
}

// RunProcess runs a program in the session's environment and returns
// its output.
func (c *Companion) RunProcess(ctx context.Context, id string, request protocol.RunProcessRequest) (*protocol.RunProcessResponse, error) {
	response, err := c.call(ctx, id, protocol.Request{RunProcess: &request})
	if err != nil {
		return nil, err
	}
	if response.RunProcess == nil {
		return nil, fmt.Errorf("session %s answered run_process with a different response", id)
	}
	return response.RunProcess, nil
}

// PseudoterminalExecute runs a command line through the session's
// shell and returns its output.
func (c *Companion) PseudoterminalExecute(ctx context.Context, id string, request protocol.PseudoterminalExecuteRequest) (*protocol.PseudoterminalExecuteResponse, error) {
	response, err := c.call(ctx, id, protocol.Request{PseudoterminalExecute: &request})
	if err != nil {
		return nil, err
	}
	if response.PseudoterminalExecute == nil {
		return nil, fmt.Errorf("session %s answered pseudoterminal_execute with a different response", id)
	}
	return response.PseudoterminalExecute, nil
}

// Diagnostics asks the session to describe itself.
func (c *Companion) Diagnostics(ctx context.Context, id string) (*protocol.DiagnosticsResponse, error) {
	response, err := c.call(ctx, id, protocol.Request{Diagnostics: &protocol.DiagnosticsRequest{}})
	if err != nil {
		return nil, err
	}
	if response.Diagnostics == nil {
		return nil, fmt.Errorf("session %s answered diagnostics with a different response", id)
	}
	return response.Diagnostics, nil
}

// SessionSummary is one row of ListSessions.
type SessionSummary struct {
	ID         string                 `json:"id"`
	Connected  bool                   `json:"connected"`
	Context    *protocol.ShellContext `json:"context,omitempty"`
	EditBuffer session.EditBuffer     `json:"edit_buffer"`
	Metrics    session.Metrics        `json:"metrics"`
}

// ListSessions summarizes every known session.
func (c *Companion) ListSessions() []SessionSummary {
	var summaries []SessionSummary
	for _, s := range c.registry.List() {
		summaries = append(summaries, SessionSummary{
			ID:         s.ID(),
			Connected:  s.Connected(),
			Context:    s.Context(),
			EditBuffer: s.EditBuffer(),
			Metrics:    s.Metrics(),
		})
	}
	return summaries
}

// Broadcast sends request to every connected session and returns how
// many accepted it.
func (c *Companion) Broadcast(request protocol.Request) int {
	sent := 0
	for _, s := range c.registry.List() {
		if s.Request(request) == nil {
			sent++
		}
	}
	return sent
}
