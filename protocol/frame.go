// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/bureau-foundation/interterm/lib/codec"
)

// Message type constants. Hostbound types flow from the session to the
// companion, clientbound types the other way.
const (
	TypeHandshake byte = 0x01
	TypeHook      byte = 0x02
	TypeResponse  byte = 0x03
	TypePong      byte = 0x04

	TypeHandshakeResponse byte = 0x81
	TypeRequest           byte = 0x82
	TypePing              byte = 0x83
)

// frameHeaderLength is 1 byte type + 4 bytes payload length.
const frameHeaderLength = 5

// MaxPayloadLength bounds a single frame. Keystroke-scale messages
// are tiny; the ceiling exists for RunProcess output.
const MaxPayloadLength = 16 * 1024 * 1024

// ErrUndecodable marks a well-framed message whose type is unknown or
// whose payload does not decode. The stream is still in sync: callers
// log and read the next frame.
var ErrUndecodable = errors.New("undecodable message")

// Frame is one framed message before payload decoding.
type Frame struct {
	Type    byte
	Payload []byte
}

// WriteFrame writes a framed message to w in a single Write call, so
// concurrent writers serialized by a mutex never interleave a header
// with another frame's payload.
func WriteFrame(w io.Writer, frame Frame) error {
	if len(frame.Payload) > MaxPayloadLength {
		return fmt.Errorf("payload length %d exceeds maximum %d", len(frame.Payload), MaxPayloadLength)
	}
	buffer := make([]byte, frameHeaderLength+len(frame.Payload))
	buffer[0] = frame.Type
	binary.BigEndian.PutUint32(buffer[1:5], uint32(len(frame.Payload)))
	copy(buffer[frameHeaderLength:], frame.Payload)
	if _, err := w.Write(buffer); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one framed message from r. Errors are fatal to the
// stream: a short read or an oversize length leaves no way to find
// the next frame boundary.
func ReadFrame(r io.Reader) (Frame, error) {
	var header [frameHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, fmt.Errorf("read frame header: %w", err)
	}
	payloadLength := binary.BigEndian.Uint32(header[1:5])
	if payloadLength > MaxPayloadLength {
		return Frame{}, fmt.Errorf("payload length %d exceeds maximum %d", payloadLength, MaxPayloadLength)
	}
	payload := make([]byte, payloadLength)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, fmt.Errorf("read frame payload: %w", err)
	}
	return Frame{Type: header[0], Payload: payload}, nil
}

func encodeFrame(messageType byte, v any) (Frame, error) {
	payload, err := codec.Marshal(v)
	if err != nil {
		return Frame{}, fmt.Errorf("encoding message type 0x%02x: %w", messageType, err)
	}
	return Frame{Type: messageType, Payload: payload}, nil
}

func decodePayload(frame Frame, v any) error {
	if err := codec.Unmarshal(frame.Payload, v); err != nil {
		return fmt.Errorf("%w: type 0x%02x: %v", ErrUndecodable, frame.Type, err)
	}
	return nil
}
