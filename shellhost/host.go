// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package shellhost

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/interterm/keys"
	"github.com/bureau-foundation/interterm/lib/clock"
	"github.com/bureau-foundation/interterm/lib/logging"
	"github.com/bureau-foundation/interterm/protocol"
	"github.com/bureau-foundation/interterm/ptybridge"
	"github.com/bureau-foundation/interterm/terminal"
)

const defaultInsertionLock = 16 * time.Millisecond

// Sender delivers hooks to the companion. *client.Client implements
// it; Send drops the message while disconnected.
type Sender interface {
	Send(message protocol.Hostbound) bool
}

// Injector writes to the shell as if the user typed. *ptybridge.Bridge
// implements it.
type Injector interface {
	Inject(data []byte)
}

// Config configures a Host.
type Config struct {
	// SessionID is stamped on every hook's shell context.
	SessionID string

	// ShellPath and ShellPID describe the spawned shell until the
	// shell's integration reports its own values.
	ShellPath string
	ShellPID  int32

	// EditBufferShells lists the shells whose command line is reported.
	EditBufferShells []string

	// InsertionLock holds back edit-buffer hooks after an insertion
	// until the buffer shows the insertion or this much time passes.
	// Default: 16ms.
	InsertionLock time.Duration

	// StartText is typed at the first prompt.
	StartText string

	Clock  clock.Clock
	Logger *logging.Logger
}

// Host connects a shell's terminal to the companion: tracker events
// become hooks, companion requests become keystrokes and subprocesses,
// and intercepted keys become InterceptedKey hooks.
type Host struct {
	config      Config
	sender      Sender
	logger      *slog.Logger
	interceptor *keys.Interceptor

	// sendMu is held from reading the tracker until the resulting
	// hooks are sent, so hooks leave in the order their output was
	// seen whichever goroutine produced them. Taken before mu.
	sendMu sync.Mutex

	mu       sync.Mutex
	tracker  *terminal.Tracker
	injector Injector

	// Insertion lock: set when text is inserted, released when the
	// buffer matches expected or InsertionLock has passed.
	locked        bool
	lockedAt      time.Time
	expected      string
	retryPending  bool
	insertOnNext  *protocol.InsertOnNewCommandRequest
	startTextSent bool
}

// New returns a host reporting through sender. The tracker must not be
// used by anything else afterwards.
func New(config Config, tracker *terminal.Tracker, sender Sender) *Host {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = logging.Discard()
	}
	if config.InsertionLock <= 0 {
		config.InsertionLock = defaultInsertionLock
	}
	return &Host{
		config:      config,
		sender:      sender,
		logger:      config.Logger.Logger,
		interceptor: keys.NewInterceptor(),
		tracker:     tracker,
	}
}

// Attach sets where keystrokes for the shell go. Until then requests
// that type into the shell are dropped.
func (h *Host) Attach(injector Injector) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.injector = injector
}

// Output implements ptybridge.Observer.
func (h *Host) Output(data []byte) {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	h.mu.Lock()
	events := h.tracker.Advance(data)
	var (
		hooks  []*protocol.Hook
		typing []byte
	)
	for _, event := range events {
		switch event.Kind {
		case terminal.EventPrompt:
			hooks = append(hooks, &protocol.Hook{Prompt: &protocol.PromptHook{
				Context:          h.shellContext(event.Context),
				DirectoryChanged: event.DirectoryChanged,
			}})
			typing = append(typing, h.promptTypingLocked()...)
		case terminal.EventPreExec:
			hooks = append(hooks, &protocol.Hook{PreExec: &protocol.PreExecHook{
				Context: h.shellContext(event.Context),
				Command: event.Command,
			}})
		case terminal.EventPostExec:
			hooks = append(hooks, &protocol.Hook{PostExec: &protocol.PostExecHook{
				Context:  h.shellContext(event.Context),
				Command:  event.Command,
				ExitCode: event.ExitCode,
			}})
		case terminal.EventEditBuffer:
			if h.editBufferAllowedLocked(event.Buffer) {
				hooks = append(hooks, h.editBufferHook(event.Context, event.Buffer))
			}
		case terminal.EventLogLevel:
			h.setLogLevel(event.LogLevel)
		}
	}
	injector := h.injector
	h.mu.Unlock()

	for _, hook := range hooks {
		h.sender.Send(protocol.Hostbound{Hook: hook})
	}
	if len(typing) > 0 && injector != nil {
		// Output runs on the bridge loop, which also drains injected
		// writes; injecting from here directly could wait on itself.
		go injector.Inject(typing)
	}
}

// Resize implements ptybridge.Observer.
func (h *Host) Resize(size ptybridge.Size) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tracker.Resize(int(size.Rows), int(size.Columns))
}

// shellContext copies context with this session's id.
func (h *Host) shellContext(context protocol.ShellContext) *protocol.ShellContext {
	context.SessionID = h.config.SessionID
	if context.ShellPath == "" {
		context.ShellPath = h.config.ShellPath
	}
	if context.PID == 0 {
		context.PID = h.config.ShellPID
	}
	return &context
}

func (h *Host) editBufferHook(context protocol.ShellContext, buffer terminal.EditBuffer) *protocol.Hook {
	return &protocol.Hook{EditBuffer: &protocol.EditBufferHook{
		Context: h.shellContext(context),
		Text:    buffer.Text,
		Cursor:  int64(buffer.Cursor),
		TerminalCursor: &protocol.TerminalCursor{
			Row:    int32(buffer.Row),
			Column: int32(buffer.Column),
		},
	}}
}

// promptTypingLocked returns what to type at a fresh prompt: the start
// text once, then any text queued by InsertOnNewCommand.
func (h *Host) promptTypingLocked() []byte {
	var typing []byte
	if !h.startTextSent {
		h.startTextSent = true
		typing = append(typing, h.config.StartText...)
	}
	if request := h.insertOnNext; request != nil {
		h.insertOnNext = nil
		typing = append(typing, request.Text...)
		if request.Execute {
			typing = append(typing, '\r')
		}
	}
	return typing
}

// editBufferAllowedLocked reports whether the command line may be sent
// now. Only shells with integrations that keep the screen and buffer
// in step are reported, and nothing is sent while an insertion the
// companion made has not yet shown up.
func (h *Host) editBufferAllowedLocked(buffer terminal.EditBuffer) bool {
	if !slices.Contains(h.config.EditBufferShells, h.shellNameLocked()) {
		return false
	}
	if h.tracker.InPreExec() {
		return false
	}
	if !h.locked {
		return true
	}
	expired := h.config.Clock.Now().Sub(h.lockedAt) > h.config.InsertionLock
	if expired || buffer.Text == h.expected {
		h.locked = false
		return true
	}
	h.scheduleRetryLocked()
	return false
}

// shellNameLocked is the shell's own Shell marker, or the name of the
// spawned binary before the integration has sent one.
func (h *Host) shellNameLocked() string {
	if name := h.tracker.Shell(); name != "" {
		return name
	}
	return ptybridge.ShellName(h.config.ShellPath)
}

// scheduleRetryLocked sends the held-back buffer once the lock expires,
// in case no further output arrives to trigger it.
func (h *Host) scheduleRetryLocked() {
	if h.retryPending {
		return
	}
	h.retryPending = true
	wait := h.config.InsertionLock - h.config.Clock.Now().Sub(h.lockedAt) + time.Millisecond
	h.config.Clock.AfterFunc(wait, h.retryEditBuffer)
}

func (h *Host) retryEditBuffer() {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	h.mu.Lock()
	h.retryPending = false
	buffer, ok := h.tracker.EditBuffer()
	var hook *protocol.Hook
	if ok && h.editBufferAllowedLocked(buffer) {
		hook = h.editBufferHook(h.tracker.Context(), buffer)
	}
	h.mu.Unlock()

	if hook != nil {
		h.sender.Send(protocol.Hostbound{Hook: hook})
	}
}

// lockInsertionLocked starts the insertion lock.
func (h *Host) lockInsertionLocked(expected string) {
	h.locked = true
	h.lockedAt = h.config.Clock.Now()
	h.expected = expected
}

func (h *Host) setLogLevel(name string) {
	level, err := logging.ParseLevel(name)
	if err != nil {
		h.logger.Warn("shell requested an unknown log level", "level", name)
		return
	}
	h.config.Logger.Level.Set(level)
	h.logger.Info("log level changed by shell", "level", level)
}
