// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hooks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/interterm/history"
	"github.com/bureau-foundation/interterm/lib/clock"
	"github.com/bureau-foundation/interterm/lib/logging"
	"github.com/bureau-foundation/interterm/notify"
	"github.com/bureau-foundation/interterm/protocol"
	"github.com/bureau-foundation/interterm/session"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu            sync.Mutex
	notifications []notify.Notification
	subscribers   int
}

func (r *recordingPublisher) Publish(notification notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, notification)
}

func (r *recordingPublisher) Subscribers() int { return r.subscribers }

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var types []string
	for _, notification := range r.notifications {
		types = append(types, notification.Type)
	}
	return types
}

type memoryHistory struct {
	entries []history.Entry
}

func (m *memoryHistory) Insert(ctx context.Context, entry history.Entry) (history.Entry, error) {
	entry.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, entry)
	return entry, nil
}

func newTestSession(t *testing.T, clk clock.Clock) *session.Session {
	t.Helper()
	registry := session.NewRegistry(clk, 0)
	s, _, _, err := registry.Authenticate("s1", "secret", make(chan protocol.Clientbound, 8), make(chan struct{}))
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	return s
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPreExecHidesPopupBeforeHistoryUpdate(t *testing.T) {
	t.Parallel()
	fakeClock := clock.Fake(epoch)
	publisher := &recordingPublisher{subscribers: 1}
	recorder := &memoryHistory{}
	handler := NewDesktop(publisher, recorder, fakeClock, logging.Discard().Logger)
	s := newTestSession(t, fakeClock)
	ctx := context.Background()
	shell := &protocol.ShellContext{CurrentWorkingDirectory: "/src", ShellPath: "/usr/bin/zsh", Hostname: "box"}

	hooks := []*protocol.Hook{
		{EditBuffer: &protocol.EditBufferHook{Context: shell, Text: "make", Cursor: 4}},
		{PreExec: &protocol.PreExecHook{Context: shell, Command: "make"}},
		{PostExec: &protocol.PostExecHook{Context: shell, Command: "make"}},
	}
	for _, hook := range hooks {
		if _, err := Dispatch(ctx, handler, s, hook); err != nil {
			t.Fatalf("Dispatch(%s): %v", hook.Kind(), err)
		}
	}

	want := []string{
		notify.EditBufferChanged,
		notify.AutocompleteVisibility, // shown
		notify.AutocompleteVisibility, // hidden by PreExec
		notify.ProcessChanged,
		notify.HistoryUpdated,
	}
	if got := publisher.types(); !equalStrings(got, want) {
		t.Fatalf("notifications = %v, want %v", got, want)
	}
	if hidden := publisher.notifications[2].Payload.(map[string]bool); hidden["visible"] {
		t.Error("PreExec visibility notification shows the popup")
	}

	if len(recorder.entries) != 1 {
		t.Fatalf("history entries = %d, want 1", len(recorder.entries))
	}
	entry := recorder.entries[0]
	if entry.Command != "make" || entry.Cwd != "/src" || entry.Shell != "zsh" || entry.SessionID != "s1" {
		t.Errorf("entry = %+v", entry)
	}
	if s.Metrics().Popups != 1 {
		t.Errorf("Popups = %d, want 1", s.Metrics().Popups)
	}
}

func TestPromptLocationChanged(t *testing.T) {
	t.Parallel()
	fakeClock := clock.Fake(epoch)
	publisher := &recordingPublisher{subscribers: 1}
	handler := NewDesktop(publisher, nil, fakeClock, logging.Discard().Logger)
	s := newTestSession(t, fakeClock)
	s.SetEditBuffer(session.EditBuffer{Text: "stale", Cursor: 5})

	shell := &protocol.ShellContext{CurrentWorkingDirectory: "/tmp"}
	for _, changed := range []bool{true, false} {
		hook := &protocol.Hook{Prompt: &protocol.PromptHook{Context: shell, DirectoryChanged: changed}}
		if _, err := Dispatch(context.Background(), handler, s, hook); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
	}

	want := []string{notify.LocationChanged, notify.PromptReturned, notify.PromptReturned}
	if got := publisher.types(); !equalStrings(got, want) {
		t.Errorf("notifications = %v, want %v", got, want)
	}
	if buffer := s.EditBuffer(); buffer.Text != "" {
		t.Errorf("prompt left edit buffer %q", buffer.Text)
	}
}

func TestPostExecWithoutHistory(t *testing.T) {
	t.Parallel()
	fakeClock := clock.Fake(epoch)
	publisher := &recordingPublisher{subscribers: 1}
	handler := NewDesktop(publisher, nil, fakeClock, logging.Discard().Logger)
	s := newTestSession(t, fakeClock)

	code := int32(2)
	hook := &protocol.Hook{PostExec: &protocol.PostExecHook{Command: "false", ExitCode: &code}}
	if _, err := Dispatch(context.Background(), handler, s, hook); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got := publisher.types(); !equalStrings(got, []string{notify.HistoryUpdated}) {
		t.Errorf("notifications = %v", got)
	}
}

func TestInterceptedKey(t *testing.T) {
	t.Parallel()
	fakeClock := clock.Fake(epoch)
	s := newTestSession(t, fakeClock)
	hook := &protocol.Hook{InterceptedKey: &protocol.InterceptedKeyHook{Action: "menu.up", Key: "up"}}

	listening := &recordingPublisher{subscribers: 1}
	reply, err := Dispatch(context.Background(), NewDesktop(listening, nil, fakeClock, logging.Discard().Logger), s, hook)
	if err != nil || reply != nil {
		t.Fatalf("with subscriber: reply=%+v err=%v", reply, err)
	}
	if got := listening.types(); !equalStrings(got, []string{notify.KeybindingPressed}) {
		t.Errorf("notifications = %v", got)
	}

	nobody := &recordingPublisher{}
	reply, err = Dispatch(context.Background(), NewDesktop(nobody, nil, fakeClock, logging.Discard().Logger), s, hook)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if reply == nil || reply.Intercept == nil || reply.Intercept.ClearIntercept == nil {
		t.Errorf("reply = %+v, want clear-intercept", reply)
	}
}

func TestDispatchEmptyHook(t *testing.T) {
	t.Parallel()
	fakeClock := clock.Fake(epoch)
	handler := NewDesktop(&recordingPublisher{}, nil, fakeClock, logging.Discard().Logger)
	if _, err := Dispatch(context.Background(), handler, newTestSession(t, fakeClock), &protocol.Hook{}); err == nil {
		t.Error("empty hook dispatched without error")
	}
}
