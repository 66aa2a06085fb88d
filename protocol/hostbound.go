// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"errors"
	"fmt"
	"io"
)

// Hostbound is one session-to-companion message. Exactly one field is
// set.
type Hostbound struct {
	Handshake *Handshake
	Hook      *Hook
	Response  *Response
	Pong      *Pong
}

// Handshake authenticates a connection as a session. The first
// handshake for an id binds the secret; later ones must present it
// again.
type Handshake struct {
	ID     string `cbor:"id"`
	Secret string `cbor:"secret"`
}

// Pong answers a Ping.
type Pong struct{}

// Hook reports a shell event. Exactly one field is set.
type Hook struct {
	EditBuffer     *EditBufferHook     `cbor:"edit_buffer,omitempty"`
	Prompt         *PromptHook         `cbor:"prompt,omitempty"`
	PreExec        *PreExecHook        `cbor:"pre_exec,omitempty"`
	PostExec       *PostExecHook       `cbor:"post_exec,omitempty"`
	InterceptedKey *InterceptedKeyHook `cbor:"intercepted_key,omitempty"`
}

// EditBufferHook carries the command line as the user is typing it.
// Cursor counts UTF-16 code units.
type EditBufferHook struct {
	Context *ShellContext `cbor:"context,omitempty"`
	Text    string        `cbor:"text"`
	Cursor  int64         `cbor:"cursor"`

	// TerminalCursor is the on-screen cursor position when the buffer
	// was extracted, zero-based.
	TerminalCursor *TerminalCursor `cbor:"terminal_cursor,omitempty"`
}

// TerminalCursor is a zero-based screen position.
type TerminalCursor struct {
	Row    int32 `cbor:"row"`
	Column int32 `cbor:"column"`
}

// PromptHook fires when the shell draws a new prompt.
type PromptHook struct {
	Context *ShellContext `cbor:"context,omitempty"`

	// DirectoryChanged is set when the working directory differs from
	// the one reported with the previous prompt.
	DirectoryChanged bool `cbor:"directory_changed,omitempty"`
}

// PreExecHook fires when the user submits a command line.
type PreExecHook struct {
	Context *ShellContext `cbor:"context,omitempty"`
	Command string        `cbor:"command,omitempty"`
}

// PostExecHook fires when a submitted command finishes.
type PostExecHook struct {
	Context  *ShellContext `cbor:"context,omitempty"`
	Command  string        `cbor:"command,omitempty"`
	ExitCode *int32        `cbor:"exit_code,omitempty"`
}

// InterceptedKeyHook reports a key withheld from the shell. Action is
// empty when the key was withheld by global interception without a
// binding.
type InterceptedKeyHook struct {
	Context *ShellContext `cbor:"context,omitempty"`
	Action  string        `cbor:"action,omitempty"`
	Key     string        `cbor:"key"`
}

// Hook kind names, used in logs and notifications.
const (
	HookEditBuffer     = "edit_buffer"
	HookPrompt         = "prompt"
	HookPreExec        = "pre_exec"
	HookPostExec       = "post_exec"
	HookInterceptedKey = "intercepted_key"
)

// Kind returns the name of the set variant, or "" when none is set.
func (h *Hook) Kind() string {
	switch {
	case h.EditBuffer != nil:
		return HookEditBuffer
	case h.Prompt != nil:
		return HookPrompt
	case h.PreExec != nil:
		return HookPreExec
	case h.PostExec != nil:
		return HookPostExec
	case h.InterceptedKey != nil:
		return HookInterceptedKey
	}
	return ""
}

// Context returns the shell context of the set variant.
func (h *Hook) Context() *ShellContext {
	switch {
	case h.EditBuffer != nil:
		return h.EditBuffer.Context
	case h.Prompt != nil:
		return h.Prompt.Context
	case h.PreExec != nil:
		return h.PreExec.Context
	case h.PostExec != nil:
		return h.PostExec.Context
	case h.InterceptedKey != nil:
		return h.InterceptedKey.Context
	}
	return nil
}

// SetContext replaces the shell context of the set variant.
func (h *Hook) SetContext(context *ShellContext) {
	switch {
	case h.EditBuffer != nil:
		h.EditBuffer.Context = context
	case h.Prompt != nil:
		h.Prompt.Context = context
	case h.PreExec != nil:
		h.PreExec.Context = context
	case h.PostExec != nil:
		h.PostExec.Context = context
	case h.InterceptedKey != nil:
		h.InterceptedKey.Context = context
	}
}

// Response answers a Request that carried a nonce. Exactly one of the
// payload fields is set.
type Response struct {
	Nonce                 uint64                         `cbor:"nonce"`
	RunProcess            *RunProcessResponse            `cbor:"run_process,omitempty"`
	PseudoterminalExecute *PseudoterminalExecuteResponse `cbor:"pseudoterminal_execute,omitempty"`
	Diagnostics           *DiagnosticsResponse           `cbor:"diagnostics,omitempty"`
}

// RunProcessResponse is the captured result of a RunProcess request.
type RunProcessResponse struct {
	Stdout   string `cbor:"stdout"`
	Stderr   string `cbor:"stderr"`
	ExitCode *int32 `cbor:"exit_code,omitempty"`
}

// PseudoterminalExecuteResponse is the captured result of a
// PseudoterminalExecute request. Stderr is absent when the command
// wrote nothing to it.
type PseudoterminalExecuteResponse struct {
	Stdout   string  `cbor:"stdout"`
	Stderr   *string `cbor:"stderr,omitempty"`
	ExitCode *int32  `cbor:"exit_code,omitempty"`
}

// DiagnosticsResponse is the session's view of itself.
type DiagnosticsResponse struct {
	Context                *ShellContext `json:"context,omitempty"`
	EditBuffer             string        `json:"edit_buffer"`
	Cursor                 int64         `json:"cursor"`
	FishSuggestionColor    string        `json:"fish_suggestion_color,omitempty"`
	ZshAutosuggestionColor string        `json:"zsh_autosuggestion_color,omitempty"`
	InsertionLocked        bool          `json:"insertion_locked"`
	PreExec                bool          `json:"preexec"`
	Intercepting           bool          `json:"intercepting"`
}

// WriteHostbound frames and writes one hostbound message.
func WriteHostbound(w io.Writer, message Hostbound) error {
	var (
		frame Frame
		err   error
	)
	switch {
	case message.Handshake != nil:
		frame, err = encodeFrame(TypeHandshake, message.Handshake)
	case message.Hook != nil:
		frame, err = encodeFrame(TypeHook, message.Hook)
	case message.Response != nil:
		frame, err = encodeFrame(TypeResponse, message.Response)
	case message.Pong != nil:
		frame, err = encodeFrame(TypePong, message.Pong)
	default:
		return errors.New("empty hostbound message")
	}
	if err != nil {
		return err
	}
	return WriteFrame(w, frame)
}

// ReadHostbound reads the next hostbound message. An error wrapping
// ErrUndecodable leaves the stream usable; any other error does not.
func ReadHostbound(r io.Reader) (Hostbound, error) {
	frame, err := ReadFrame(r)
	if err != nil {
		return Hostbound{}, err
	}
	return DecodeHostbound(frame)
}

// DecodeHostbound decodes a frame read from a session.
func DecodeHostbound(frame Frame) (Hostbound, error) {
	var message Hostbound
	switch frame.Type {
	case TypeHandshake:
		message.Handshake = new(Handshake)
		return message, decodePayload(frame, message.Handshake)
	case TypeHook:
		message.Hook = new(Hook)
		if err := decodePayload(frame, message.Hook); err != nil {
			return Hostbound{}, err
		}
		if message.Hook.Kind() == "" {
			return Hostbound{}, fmt.Errorf("%w: hook with no variant", ErrUndecodable)
		}
		return message, nil
	case TypeResponse:
		message.Response = new(Response)
		return message, decodePayload(frame, message.Response)
	case TypePong:
		message.Pong = new(Pong)
		return message, decodePayload(frame, message.Pong)
	}
	return Hostbound{}, fmt.Errorf("%w: unknown hostbound type 0x%02x", ErrUndecodable, frame.Type)
}
