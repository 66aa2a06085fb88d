// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package shellhost

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/interterm/lib/clock"
	"github.com/bureau-foundation/interterm/lib/logging"
	"github.com/bureau-foundation/interterm/lib/testutil"
	"github.com/bureau-foundation/interterm/protocol"
	"github.com/bureau-foundation/interterm/terminal"
)

// recordingSender collects everything the host sends.
type recordingSender struct {
	mu       sync.Mutex
	messages []protocol.Hostbound
}

func (s *recordingSender) Send(message protocol.Hostbound) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
	return true
}

func (s *recordingSender) hooks(kind string) []*protocol.Hook {
	s.mu.Lock()
	defer s.mu.Unlock()
	var hooks []*protocol.Hook
	for _, message := range s.messages {
		if message.Hook != nil && message.Hook.Kind() == kind {
			hooks = append(hooks, message.Hook)
		}
	}
	return hooks
}

func (s *recordingSender) responses() []*protocol.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	var responses []*protocol.Response
	for _, message := range s.messages {
		if message.Response != nil {
			responses = append(responses, message.Response)
		}
	}
	return responses
}

// channelInjector hands every injected write to the test.
type channelInjector chan []byte

func (c channelInjector) Inject(data []byte) {
	c <- append([]byte(nil), data...)
}

type harness struct {
	host     *Host
	sender   *recordingSender
	injected chan []byte
	clock    *clock.FakeClock
	logger   *logging.Logger
}

func newHarness(t *testing.T, configure func(*Config)) *harness {
	t.Helper()
	h := &harness{
		sender:   &recordingSender{},
		injected: make(chan []byte, 16),
		clock:    clock.Fake(time.Unix(1_700_000_000, 0)),
		logger:   logging.Discard(),
	}
	config := Config{
		SessionID:        "session-1",
		ShellPath:        "/bin/zsh",
		ShellPID:         4242,
		EditBufferShells: []string{"bash", "zsh", "fish", "nu"},
		Clock:            h.clock,
		Logger:           h.logger,
	}
	if configure != nil {
		configure(&config)
	}
	tracker := terminal.New(24, 80, protocol.ShellContext{}, h.logger.Logger)
	h.host = New(config, tracker, h.sender)
	h.host.Attach(channelInjector(h.injected))
	return h
}

func (h *harness) output(text string) {
	h.host.Output([]byte(text))
}

func (h *harness) typed(t *testing.T) string {
	t.Helper()
	return string(testutil.RequireReceive(t, h.injected, 5*time.Second, "waiting for keystrokes"))
}

func marker(text string) string {
	return "\x1b]697;" + text + "\x07"
}

func prompt(text string) string {
	return marker("NewCmd") + marker("StartPrompt") + text + marker("EndPrompt")
}

func lastBuffer(t *testing.T, sender *recordingSender) *protocol.EditBufferHook {
	t.Helper()
	hooks := sender.hooks(protocol.HookEditBuffer)
	if len(hooks) == 0 {
		t.Fatal("no edit buffer hook sent")
	}
	return hooks[len(hooks)-1].EditBuffer
}

func TestCommandLifecycleHooks(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	h.output(marker("Dir=/home/user") + prompt("$ ") + "make")
	h.output("\r\n" + marker("PreExec") + "building\r\n" + marker("ExitCode=2"))

	prompts := h.sender.hooks(protocol.HookPrompt)
	if len(prompts) != 1 {
		t.Fatalf("prompt hooks = %d, want 1", len(prompts))
	}
	shell := prompts[0].Prompt.Context
	if shell.SessionID != "session-1" || shell.PID != 4242 || shell.ShellPath != "/bin/zsh" {
		t.Errorf("prompt context = %+v, want session id, pid and shell path filled in", shell)
	}
	if shell.CurrentWorkingDirectory != "/home/user" {
		t.Errorf("cwd = %q, want /home/user", shell.CurrentWorkingDirectory)
	}

	preExec := h.sender.hooks(protocol.HookPreExec)
	if len(preExec) != 1 || preExec[0].PreExec.Command != "make" {
		t.Fatalf("pre_exec hooks = %+v, want one for \"make\"", preExec)
	}
	postExec := h.sender.hooks(protocol.HookPostExec)
	if len(postExec) != 1 {
		t.Fatalf("post_exec hooks = %d, want 1", len(postExec))
	}
	if code := postExec[0].PostExec.ExitCode; code == nil || *code != 2 {
		t.Errorf("exit code = %v, want 2", code)
	}
	if postExec[0].PostExec.Command != "make" {
		t.Errorf("post_exec command = %q, want make", postExec[0].PostExec.Command)
	}
}

func TestEditBufferHook(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.output(prompt("$ ") + "git st")

	buffer := lastBuffer(t, h.sender)
	if buffer.Text != "git st" || buffer.Cursor != 6 {
		t.Errorf("buffer = (%q, %d), want (\"git st\", 6)", buffer.Text, buffer.Cursor)
	}
	if buffer.TerminalCursor == nil || buffer.TerminalCursor.Row != 0 || buffer.TerminalCursor.Column != 8 {
		t.Errorf("terminal cursor = %+v, want row 0 column 8", buffer.TerminalCursor)
	}
	if buffer.Context == nil || buffer.Context.SessionID != "session-1" {
		t.Errorf("context = %+v", buffer.Context)
	}
}

func TestEditBufferOnlyForListedShells(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		shellPath string
		markers   string
		want      bool
	}{
		{name: "spawned zsh", shellPath: "/bin/zsh", want: true},
		{name: "spawned sh", shellPath: "/bin/sh", want: false},
		{name: "marker overrides path", shellPath: "/bin/sh", markers: marker("Shell=fish"), want: true},
		{name: "unlisted marker", shellPath: "/bin/zsh", markers: marker("Shell=tcsh"), want: false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, func(config *Config) { config.ShellPath = test.shellPath })
			h.output(test.markers + prompt("> ") + "ls")
			got := len(h.sender.hooks(protocol.HookEditBuffer)) > 0
			if got != test.want {
				t.Errorf("edit buffer sent = %v, want %v", got, test.want)
			}
		})
	}
}

func TestInsertionLockHoldsStaleBuffers(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.output(prompt("$ "))
	before := len(h.sender.hooks(protocol.HookEditBuffer))

	h.host.handle(&protocol.Request{InsertText: &protocol.InsertTextRequest{Insertion: "ls"}})
	if got := h.typed(t); got != "ls" {
		t.Fatalf("typed %q, want \"ls\"", got)
	}

	h.output("l")
	if got := len(h.sender.hooks(protocol.HookEditBuffer)); got != before {
		t.Fatalf("edit buffer sent while the insertion was only half echoed")
	}

	h.output("s")
	if got := lastBuffer(t, h.sender).Text; got != "ls" {
		t.Errorf("buffer = %q after the insertion showed up, want \"ls\"", got)
	}
}

func TestInsertionLockExpires(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.output(prompt("$ "))
	h.host.handle(&protocol.Request{InsertText: &protocol.InsertTextRequest{Insertion: "ls"}})
	h.typed(t)

	// The shell rewrote the line differently than asked.
	h.output("x")
	before := len(h.sender.hooks(protocol.HookEditBuffer))

	h.clock.Advance(20 * time.Millisecond)
	hooks := h.sender.hooks(protocol.HookEditBuffer)
	if len(hooks) != before+1 {
		t.Fatalf("edit buffer hooks = %d after the lock expired, want %d", len(hooks), before+1)
	}
	if got := hooks[len(hooks)-1].EditBuffer.Text; got != "x" {
		t.Errorf("buffer = %q, want \"x\"", got)
	}
}

// gatedSender holds the first edit buffer hook in Send until released.
type gatedSender struct {
	*recordingSender
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *gatedSender) Send(message protocol.Hostbound) bool {
	if message.Hook != nil && message.Hook.EditBuffer != nil {
		s.once.Do(func() {
			close(s.entered)
			<-s.release
		})
	}
	return s.recordingSender.Send(message)
}

func TestRetriedEditBufferKeepsHookOrder(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.output(prompt("$ "))
	h.host.handle(&protocol.Request{InsertText: &protocol.InsertTextRequest{Insertion: "ls"}})
	h.typed(t)
	h.output("x")

	gate := &gatedSender{
		recordingSender: h.sender,
		entered:         make(chan struct{}),
		release:         make(chan struct{}),
	}
	h.host.sender = gate

	advanced := make(chan struct{})
	go func() {
		h.clock.Advance(20 * time.Millisecond)
		close(advanced)
	}()
	testutil.RequireClosed(t, gate.entered, 5*time.Second, "waiting for the held edit buffer to be sent")

	executed := make(chan struct{})
	go func() {
		h.output("\r\n" + marker("PreExec"))
		close(executed)
	}()
	testutil.RequireNoReceive(t, executed, 50*time.Millisecond, "command output handled while an earlier edit buffer was mid-send")

	close(gate.release)
	testutil.RequireClosed(t, executed, 5*time.Second, "waiting for the command output")
	testutil.RequireClosed(t, advanced, 5*time.Second, "waiting for the clock")

	h.sender.mu.Lock()
	defer h.sender.mu.Unlock()
	bufferAt, preExecAt := -1, -1
	for i, message := range h.sender.messages {
		switch {
		case message.Hook == nil:
		case message.Hook.EditBuffer != nil && message.Hook.EditBuffer.Text == "x":
			bufferAt = i
		case message.Hook.PreExec != nil:
			preExecAt = i
		}
	}
	if bufferAt < 0 || preExecAt < 0 {
		t.Fatalf("edit buffer at %d, pre-exec at %d; want both sent", bufferAt, preExecAt)
	}
	if bufferAt > preExecAt {
		t.Errorf("edit buffer sent after pre-exec (%d > %d)", bufferAt, preExecAt)
	}
}

func TestInsertTextKeystrokes(t *testing.T) {
	t.Parallel()
	buffer := func(text string) *string { return &text }
	tests := []struct {
		name    string
		line    string
		request protocol.InsertTextRequest
		want    string
	}{
		{
			name:    "plain insertion",
			request: protocol.InsertTextRequest{Insertion: "status"},
			want:    "status",
		},
		{
			name:    "deletion and offset",
			request: protocol.InsertTextRequest{Insertion: "x", Deletion: 2, Offset: -1},
			want:    "\b\b\x1b[Dx",
		},
		{
			name:    "offset right and submit",
			request: protocol.InsertTextRequest{Insertion: "y", Offset: 2, Immediate: true},
			want:    "\x1b[C\x1b[Cy\r",
		},
		{
			name:    "buffer ran ahead of the companion",
			line:    "git sta",
			request: protocol.InsertTextRequest{Insertion: "tus", InsertionBuffer: buffer("git st")},
			want:    "\btus",
		},
		{
			// The missing " st" is typed before the insertion.
			name:    "buffer behind the companion",
			line:    "git",
			request: protocol.InsertTextRequest{Insertion: "atus", InsertionBuffer: buffer("git st")},
			want:    " status",
		},
		{
			name:    "matching insertion buffer",
			line:    "git",
			request: protocol.InsertTextRequest{Insertion: " log", InsertionBuffer: buffer("git")},
			want:    " log",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, nil)
			h.output(prompt("$ ") + test.line)
			if got := h.host.insertText(&test.request); got != test.want {
				t.Errorf("keystrokes = %q, want %q", got, test.want)
			}
		})
	}
}

func TestSetBufferKeystrokes(t *testing.T) {
	t.Parallel()
	cursor := func(n uint64) *uint64 { return &n }
	tests := []struct {
		name    string
		request protocol.SetBufferRequest
		want    string
	}{
		{"cursor at end", protocol.SetBufferRequest{Text: "echo hi"}, "\x05\x15echo hi"},
		{"cursor inside", protocol.SetBufferRequest{Text: "héllo", Cursor: cursor(3)}, "\x05\x15héllo\x1b[D\x1b[D"},
		{"cursor past end", protocol.SetBufferRequest{Text: "ab", Cursor: cursor(9)}, "\x05\x15ab"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, nil)
			if got := h.host.setBuffer(&test.request); got != test.want {
				t.Errorf("keystrokes = %q, want %q", got, test.want)
			}
		})
	}
}

func TestInterceptedKeys(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	if got := h.host.FilterInput([]byte("ab")); string(got) != "ab" {
		t.Fatalf("FilterInput with interception off = %q", got)
	}

	h.host.handle(&protocol.Request{Intercept: &protocol.InterceptCommand{
		SetActionIntercepts: &protocol.ActionIntercepts{
			InterceptBound: true,
			Actions:        []protocol.ActionBinding{{ID: "history.search", Bindings: []string{"control+r"}}},
		},
	}})
	if got := h.host.FilterInput([]byte("a\x12b")); string(got) != "ab" {
		t.Errorf("FilterInput = %q, want the bound key withheld", got)
	}
	hooks := h.sender.hooks(protocol.HookInterceptedKey)
	if len(hooks) != 1 {
		t.Fatalf("intercepted key hooks = %d, want 1", len(hooks))
	}
	if key := hooks[0].InterceptedKey; key.Action != "history.search" || key.Key != "control+r" {
		t.Errorf("hook = %+v, want history.search on control+r", key)
	}

	h.host.handle(&protocol.Request{Intercept: &protocol.InterceptCommand{SetInterceptAll: &struct{}{}}})
	if got := h.host.FilterInput([]byte("z")); len(got) != 0 {
		t.Errorf("FilterInput = %q with global interception on, want nothing", got)
	}

	// Control-C always reaches the shell and ends interception.
	if got := h.host.FilterInput([]byte("\x03")); string(got) != "\x03" {
		t.Errorf("FilterInput(control-c) = %q", got)
	}
	if got := h.host.FilterInput([]byte("z")); string(got) != "z" {
		t.Errorf("FilterInput after control-c = %q, want interception reset", got)
	}
}

func TestInsertOnNewCommand(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.host.handle(&protocol.Request{InsertOnNewCommand: &protocol.InsertOnNewCommandRequest{Text: "cd src", Execute: true}})

	h.output(prompt("$ "))
	if got := h.typed(t); got != "cd src\r" {
		t.Errorf("typed %q at the prompt, want \"cd src\\r\"", got)
	}

	h.output(prompt("$ "))
	testutil.RequireNoReceive(t, h.injected, 50*time.Millisecond, "queued text typed twice")
}

func TestStartTextTypedOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(config *Config) { config.StartText = "neofetch\r" })

	h.output(prompt("$ "))
	if got := h.typed(t); got != "neofetch\r" {
		t.Errorf("typed %q, want the start text", got)
	}
	h.output(prompt("$ "))
	testutil.RequireNoReceive(t, h.injected, 50*time.Millisecond, "start text typed twice")
}

func TestDiagnostics(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.output(marker("FishSuggestionColor=brblack") + prompt("$ ") + "echo")

	h.host.handle(&protocol.Request{Diagnostics: &protocol.DiagnosticsRequest{}})
	if got := len(h.sender.responses()); got != 0 {
		t.Fatalf("responses = %d for a request without a nonce, want 0", got)
	}

	nonce := uint64(7)
	h.host.handle(&protocol.Request{Nonce: &nonce, Diagnostics: &protocol.DiagnosticsRequest{}})
	responses := h.sender.responses()
	if len(responses) != 1 || responses[0].Nonce != 7 || responses[0].Diagnostics == nil {
		t.Fatalf("responses = %+v, want one diagnostics response with nonce 7", responses)
	}
	diagnostics := responses[0].Diagnostics
	if diagnostics.EditBuffer != "echo" || diagnostics.Cursor != 4 {
		t.Errorf("buffer = (%q, %d), want (\"echo\", 4)", diagnostics.EditBuffer, diagnostics.Cursor)
	}
	if diagnostics.FishSuggestionColor != "brblack" {
		t.Errorf("fish color = %q", diagnostics.FishSuggestionColor)
	}
	if diagnostics.Context == nil || diagnostics.Context.SessionID != "session-1" {
		t.Errorf("context = %+v", diagnostics.Context)
	}
}

func TestServeRunProcess(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(config *Config) { config.ShellPID = 0 })
	requests := make(chan *protocol.Request, 1)
	nonce := uint64(3)
	requests <- &protocol.Request{Nonce: &nonce, RunProcess: &protocol.RunProcessRequest{
		Executable:       "/bin/echo",
		Arguments:        []string{"hello"},
		WorkingDirectory: t.TempDir(),
	}}
	close(requests)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	h.host.Serve(ctx, requests)

	responses := h.sender.responses()
	if len(responses) != 1 || responses[0].RunProcess == nil {
		t.Fatalf("responses = %+v, want one run process response", responses)
	}
	result := responses[0].RunProcess
	if strings.TrimSpace(result.Stdout) != "hello" {
		t.Errorf("stdout = %q, want hello", result.Stdout)
	}
	if result.ExitCode == nil || *result.ExitCode != 0 {
		t.Errorf("exit code = %v, want 0", result.ExitCode)
	}
}

func TestLogMarkerChangesLevel(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.output(marker("Log=debug"))
	if got := h.logger.Level.Level(); got != slog.LevelDebug {
		t.Errorf("level = %v, want debug", got)
	}
	h.output(marker("Log=nonsense"))
	if got := h.logger.Level.Level(); got != slog.LevelDebug {
		t.Errorf("level = %v after an unknown name, want it unchanged", got)
	}
}

func TestWindowTitle(t *testing.T) {
	t.Parallel()
	if got := WindowTitle("zsh"); got != "\x1b]0;interterm zsh\x07" {
		t.Errorf("WindowTitle = %q", got)
	}
}
