// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package shellhost

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/bureau-foundation/interterm/execute"
	"github.com/bureau-foundation/interterm/protocol"
)

// Keystrokes written to the shell's line editor. Every shell the edit
// buffer is reported for understands these in its default keymap.
const (
	keyBackspace   = "\b"
	keyRight       = "\x1b[C"
	keyLeft        = "\x1b[D"
	keyEnter       = "\r"
	keyEndOfLine   = "\x05"
	keyKillToStart = "\x15"
)

// Serve handles companion requests until ctx is cancelled or requests
// is closed, then waits for any subprocess it started.
func (h *Host) Serve(ctx context.Context, requests <-chan *protocol.Request) {
	var running sync.WaitGroup
	defer running.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case request, ok := <-requests:
			if !ok {
				return
			}
			h.logger.Debug("companion request", "kind", request.Kind())
			switch {
			case request.RunProcess != nil, request.PseudoterminalExecute != nil:
				// Subprocesses may run for a while; keystroke requests
				// behind them must not wait.
				running.Add(1)
				go func() {
					defer running.Done()
					h.runSubprocess(ctx, request)
				}()
			default:
				h.handle(request)
			}
		}
	}
}

// handle applies a request that completes immediately.
func (h *Host) handle(request *protocol.Request) {
	switch {
	case request.InsertText != nil:
		h.typeText(h.insertText(request.InsertText))
	case request.SetBuffer != nil:
		h.typeText(h.setBuffer(request.SetBuffer))
	case request.Intercept != nil:
		h.applyIntercept(request.Intercept)
	case request.InsertOnNewCommand != nil:
		h.mu.Lock()
		h.insertOnNext = request.InsertOnNewCommand
		h.mu.Unlock()
	case request.Diagnostics != nil:
		h.reply(request, &protocol.Response{Diagnostics: h.diagnostics()})
	}
}

func (h *Host) typeText(text string) {
	if text == "" {
		return
	}
	h.mu.Lock()
	injector := h.injector
	h.mu.Unlock()
	if injector == nil {
		h.logger.Debug("no shell attached, dropping keystrokes")
		return
	}
	injector.Inject([]byte(text))
}

// insertText renders an InsertText request as keystrokes and starts
// the insertion lock.
func (h *Host) insertText(request *protocol.InsertTextRequest) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	current, _ := h.tracker.EditBuffer()
	var keystrokes strings.Builder

	base := current.Text
	if request.InsertionBuffer != nil && *request.InsertionBuffer != current.Text {
		target := *request.InsertionBuffer
		switch {
		case strings.HasPrefix(current.Text, target):
			extra := utf8.RuneCountInString(current.Text) - utf8.RuneCountInString(target)
			keystrokes.WriteString(strings.Repeat(keyBackspace, extra))
			base = target
		case strings.HasPrefix(target, current.Text):
			keystrokes.WriteString(target[len(current.Text):])
			base = target
		default:
			h.logger.Debug("edit buffer diverged from the insertion buffer",
				"buffer", current.Text,
				"insertion_buffer", target,
			)
		}
	}

	keystrokes.WriteString(strings.Repeat(keyBackspace, int(request.Deletion)))
	switch {
	case request.Offset > 0:
		keystrokes.WriteString(strings.Repeat(keyRight, int(request.Offset)))
	case request.Offset < 0:
		keystrokes.WriteString(strings.Repeat(keyLeft, int(-request.Offset)))
	}
	keystrokes.WriteString(request.Insertion)

	if request.Immediate {
		keystrokes.WriteString(keyEnter)
	} else {
		h.lockInsertionLocked(base + request.Insertion)
	}
	return keystrokes.String()
}

// setBuffer renders a SetBuffer request: clear the line, type the new
// text, and walk the cursor back to the requested position.
func (h *Host) setBuffer(request *protocol.SetBufferRequest) string {
	h.mu.Lock()
	h.lockInsertionLocked(request.Text)
	h.mu.Unlock()

	keystrokes := keyEndOfLine + keyKillToStart + request.Text
	length := uint64(utf8.RuneCountInString(request.Text))
	if request.Cursor != nil && *request.Cursor < length {
		keystrokes += strings.Repeat(keyLeft, int(length-*request.Cursor))
	}
	return keystrokes
}

func (h *Host) diagnostics() *protocol.DiagnosticsResponse {
	h.mu.Lock()
	defer h.mu.Unlock()

	buffer, _ := h.tracker.EditBuffer()
	fish, zsh := h.tracker.SuggestionColors()
	return &protocol.DiagnosticsResponse{
		Context:                h.shellContext(h.tracker.Context()),
		EditBuffer:             buffer.Text,
		Cursor:                 int64(buffer.Cursor),
		FishSuggestionColor:    fish,
		ZshAutosuggestionColor: zsh,
		InsertionLocked:        h.locked,
		PreExec:                h.tracker.InPreExec(),
		Intercepting:           h.interceptor.Active(),
	}
}

// runSubprocess runs a RunProcess or PseudoterminalExecute request in
// the shell's working directory.
func (h *Host) runSubprocess(ctx context.Context, request *protocol.Request) {
	h.mu.Lock()
	shell := h.shellContext(h.tracker.Context())
	h.mu.Unlock()

	cwd := shell.CurrentWorkingDirectory
	if cwd == "" && shell.PID != 0 {
		var err error
		if cwd, err = execute.ShellCwd(ctx, shell.PID); err != nil {
			h.logger.Debug("falling back to our own working directory", "error", err)
		}
	}

	response := &protocol.Response{}
	switch {
	case request.RunProcess != nil:
		result, err := execute.RunProcess(ctx, request.RunProcess, cwd)
		if err != nil {
			h.logger.Warn("run process failed", "executable", request.RunProcess.Executable, "error", err)
			return
		}
		response.RunProcess = result
	case request.PseudoterminalExecute != nil:
		result, err := execute.PseudoterminalExecute(ctx, request.PseudoterminalExecute, shell.ShellPath, cwd)
		if err != nil {
			h.logger.Warn("pseudoterminal execute failed", "error", err)
			return
		}
		response.PseudoterminalExecute = result
	}
	h.reply(request, response)
}

// reply sends response when the request asked for one.
func (h *Host) reply(request *protocol.Request, response *protocol.Response) {
	if request.Nonce == nil {
		return
	}
	response.Nonce = *request.Nonce
	h.sender.Send(protocol.Hostbound{Response: response})
}

// WindowTitle returns the escape sequence that titles the user's
// terminal window after the session's shell.
func WindowTitle(shell string) string {
	return "\x1b]0;interterm " + shell + "\x07"
}
