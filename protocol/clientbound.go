// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"errors"
	"fmt"
	"io"
)

// Clientbound is one companion-to-session message. Exactly one field
// is set.
type Clientbound struct {
	HandshakeResponse *HandshakeResponse
	Request           *Request
	Ping              *Ping
}

// HandshakeResponse is the companion's verdict on a Handshake. Also
// sent with Success false in reply to anything received before a
// successful handshake.
type HandshakeResponse struct {
	Success bool `cbor:"success"`
}

// Ping is the companion's keepalive. It carries no nonce.
type Ping struct{}

// Request asks the session to act. Exactly one payload field is set.
// Nonce is present only when the companion waits for a Response.
type Request struct {
	Nonce *uint64 `cbor:"nonce,omitempty"`

	InsertText            *InsertTextRequest            `cbor:"insert_text,omitempty"`
	SetBuffer             *SetBufferRequest             `cbor:"set_buffer,omitempty"`
	RunProcess            *RunProcessRequest            `cbor:"run_process,omitempty"`
	PseudoterminalExecute *PseudoterminalExecuteRequest `cbor:"pseudoterminal_execute,omitempty"`
	Intercept             *InterceptCommand             `cbor:"intercept,omitempty"`
	InsertOnNewCommand    *InsertOnNewCommandRequest    `cbor:"insert_on_new_command,omitempty"`
	Diagnostics           *DiagnosticsRequest           `cbor:"diagnostics,omitempty"`
}

// Kind returns a name for the set payload, for logs.
func (r *Request) Kind() string {
	switch {
	case r.InsertText != nil:
		return "insert_text"
	case r.SetBuffer != nil:
		return "set_buffer"
	case r.RunProcess != nil:
		return "run_process"
	case r.PseudoterminalExecute != nil:
		return "pseudoterminal_execute"
	case r.Intercept != nil:
		return "intercept"
	case r.InsertOnNewCommand != nil:
		return "insert_on_new_command"
	case r.Diagnostics != nil:
		return "diagnostics"
	}
	return ""
}

// InsertTextRequest edits the command line in place by writing
// keystrokes to the shell.
type InsertTextRequest struct {
	// Insertion is typed at the cursor after deletion and offset.
	Insertion string `cbor:"insertion,omitempty"`

	// Deletion is the number of backspaces sent first.
	Deletion uint64 `cbor:"deletion,omitempty"`

	// Offset moves the cursor right (positive) or left (negative)
	// before inserting.
	Offset int64 `cbor:"offset,omitempty"`

	// Immediate submits the line after inserting.
	Immediate bool `cbor:"immediate,omitempty"`

	// InsertionBuffer is the buffer the companion computed the edit
	// against. When the live buffer has drifted, the session first
	// brings it back to this text.
	InsertionBuffer *string `cbor:"insertion_buffer,omitempty"`
}

// SetBufferRequest replaces the whole command line. Cursor counts
// characters from the start; absent means end of line.
type SetBufferRequest struct {
	Text   string  `cbor:"text"`
	Cursor *uint64 `cbor:"cursor,omitempty"`
}

// RunProcessRequest runs a program outside the shell and captures its
// output.
type RunProcessRequest struct {
	Executable       string            `cbor:"executable"`
	Arguments        []string          `cbor:"arguments,omitempty"`
	WorkingDirectory string            `cbor:"working_directory,omitempty"`
	Env              map[string]string `cbor:"env,omitempty"`
}

// PseudoterminalExecuteRequest runs a command line through the user's
// shell without its rc files.
type PseudoterminalExecuteRequest struct {
	Command          string            `cbor:"command"`
	WorkingDirectory string            `cbor:"working_directory,omitempty"`
	BackgroundJob    bool              `cbor:"background_job,omitempty"`
	IsPipelined      bool              `cbor:"is_pipelined,omitempty"`
	Env              map[string]string `cbor:"env,omitempty"`
}

// InsertOnNewCommandRequest queues text to type after the next
// prompt, submitting it when Execute is set.
type InsertOnNewCommandRequest struct {
	Text    string `cbor:"text"`
	Execute bool   `cbor:"execute,omitempty"`
}

// DiagnosticsRequest asks the session to describe itself.
type DiagnosticsRequest struct{}

// WriteClientbound frames and writes one clientbound message.
func WriteClientbound(w io.Writer, message Clientbound) error {
	var (
		frame Frame
		err   error
	)
	switch {
	case message.HandshakeResponse != nil:
		frame, err = encodeFrame(TypeHandshakeResponse, message.HandshakeResponse)
	case message.Request != nil:
		frame, err = encodeFrame(TypeRequest, message.Request)
	case message.Ping != nil:
		frame, err = encodeFrame(TypePing, message.Ping)
	default:
		return errors.New("empty clientbound message")
	}
	if err != nil {
		return err
	}
	return WriteFrame(w, frame)
}

// ReadClientbound reads the next clientbound message. An error
// wrapping ErrUndecodable leaves the stream usable.
func ReadClientbound(r io.Reader) (Clientbound, error) {
	frame, err := ReadFrame(r)
	if err != nil {
		return Clientbound{}, err
	}
	return DecodeClientbound(frame)
}

// DecodeClientbound decodes a frame read from the companion.
func DecodeClientbound(frame Frame) (Clientbound, error) {
	var message Clientbound
	switch frame.Type {
	case TypeHandshakeResponse:
		message.HandshakeResponse = new(HandshakeResponse)
		return message, decodePayload(frame, message.HandshakeResponse)
	case TypeRequest:
		message.Request = new(Request)
		if err := decodePayload(frame, message.Request); err != nil {
			return Clientbound{}, err
		}
		if message.Request.Kind() == "" {
			return Clientbound{}, fmt.Errorf("%w: request with no payload", ErrUndecodable)
		}
		return message, nil
	case TypePing:
		message.Ping = new(Ping)
		return message, decodePayload(frame, message.Ping)
	}
	return Clientbound{}, fmt.Errorf("%w: unknown clientbound type 0x%02x", ErrUndecodable, frame.Type)
}
