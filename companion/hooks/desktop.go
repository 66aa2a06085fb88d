// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hooks

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/bureau-foundation/interterm/history"
	"github.com/bureau-foundation/interterm/lib/clock"
	"github.com/bureau-foundation/interterm/notify"
	"github.com/bureau-foundation/interterm/protocol"
	"github.com/bureau-foundation/interterm/session"
)

// HistoryRecorder is the part of history.Store the handler writes to.
type HistoryRecorder interface {
	Insert(ctx context.Context, entry history.Entry) (history.Entry, error)
}

var _ Handler = (*Desktop)(nil)

// Desktop updates session state and turns hooks into notifications
// for a desktop UI.
type Desktop struct {
	publisher notify.Publisher

	// history is nil when history recording is disabled.
	history HistoryRecorder

	clock  clock.Clock
	logger *slog.Logger
}

// NewDesktop returns the desktop handler. recorder may be nil.
func NewDesktop(publisher notify.Publisher, recorder HistoryRecorder, clk clock.Clock, logger *slog.Logger) *Desktop {
	return &Desktop{publisher: publisher, history: recorder, clock: clk, logger: logger}
}

func (d *Desktop) publish(s *session.Session, kind string, payload any) {
	d.publisher.Publish(notify.Notification{Type: kind, SessionID: s.ID(), Payload: payload})
}

func (d *Desktop) setPopup(s *session.Session, visible bool) {
	if s.SetPopupVisible(visible) {
		d.publish(s, notify.AutocompleteVisibility, map[string]bool{"visible": visible})
	}
}

// EditBuffer records the buffer and shows the popup while there is
// something typed.
func (d *Desktop) EditBuffer(ctx context.Context, s *session.Session, hook *protocol.EditBufferHook) (*protocol.Request, error) {
	buffer := session.EditBuffer{Text: hook.Text, Cursor: hook.Cursor}
	s.SetEditBuffer(buffer)
	d.publish(s, notify.EditBufferChanged, buffer)
	d.setPopup(s, hook.Text != "")
	return nil, nil
}

// Prompt reports the new prompt and, when the directory changed, the
// new location.
func (d *Desktop) Prompt(ctx context.Context, s *session.Session, hook *protocol.PromptHook) (*protocol.Request, error) {
	s.SetEditBuffer(session.EditBuffer{})
	if hook.DirectoryChanged && hook.Context != nil {
		d.publish(s, notify.LocationChanged, map[string]string{
			"cwd": hook.Context.CurrentWorkingDirectory,
		})
	}
	d.publish(s, notify.PromptReturned, hook.Context)
	return nil, nil
}

// PreExec hides the popup before the command runs and reports the
// foreground process.
func (d *Desktop) PreExec(ctx context.Context, s *session.Session, hook *protocol.PreExecHook) (*protocol.Request, error) {
	d.setPopup(s, false)
	d.publish(s, notify.ProcessChanged, map[string]string{"command": hook.Command})
	return nil, nil
}

// PostExec records the command in history and reports the update.
func (d *Desktop) PostExec(ctx context.Context, s *session.Session, hook *protocol.PostExecHook) (*protocol.Request, error) {
	d.setPopup(s, false)
	if hook.Command == "" {
		return nil, nil
	}
	now := d.clock.Now()
	entry := history.Entry{
		Command:   hook.Command,
		SessionID: s.ID(),
		ExitCode:  hook.ExitCode,
		StartTime: s.Metrics().EpisodeEnd,
		EndTime:   now,
	}
	if entry.StartTime.IsZero() {
		entry.StartTime = now
	}
	if shell := hook.Context; shell != nil {
		entry.Cwd = shell.CurrentWorkingDirectory
		entry.Hostname = shell.Hostname
		entry.Shell = filepath.Base(shell.ShellPath)
	}
	if d.history != nil {
		inserted, err := d.history.Insert(ctx, entry)
		if err != nil {
			return nil, err
		}
		entry = inserted
	}
	d.publish(s, notify.HistoryUpdated, entry)
	return nil, nil
}

// InterceptedKey reports the key press. A key withheld without a
// binding while no subscriber is listening would be lost, so the
// handler clears interception instead of leaving the shell deaf.
func (d *Desktop) InterceptedKey(ctx context.Context, s *session.Session, hook *protocol.InterceptedKeyHook) (*protocol.Request, error) {
	if d.publisher.Subscribers() == 0 {
		d.logger.Info("no notification subscribers, clearing interception",
			"session", s.ID(),
			"key", hook.Key,
		)
		return &protocol.Request{Intercept: &protocol.InterceptCommand{ClearIntercept: &struct{}{}}}, nil
	}
	d.publish(s, notify.KeybindingPressed, map[string]string{
		"action": hook.Action,
		"key":    hook.Key,
	})
	return nil, nil
}
