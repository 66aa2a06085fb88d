// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/interterm/lib/codec"
)

// ActionFunc handles one action. raw is the complete CBOR request,
// action field included. A nil result produces {ok: true}.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// Response is the reply envelope.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// requestHeader holds the fields the server itself reads.
type requestHeader struct {
	Action     string `cbor:"action"`
	NoResponse bool   `cbor:"no_response"`
}

// SocketServer dispatches CBOR requests to registered actions.
type SocketServer struct {
	socketPath string
	handlers   map[string]ActionFunc
	logger     *slog.Logger

	activeConnections sync.WaitGroup
}

// NewSocketServer creates a server for socketPath. Register actions
// with Handle before Serve.
func NewSocketServer(socketPath string, logger *slog.Logger) *SocketServer {
	return &SocketServer{
		socketPath: socketPath,
		handlers:   make(map[string]ActionFunc),
		logger:     logger,
	}
}

// Handle registers handler for action. Registering an action twice
// panics.
func (s *SocketServer) Handle(action string, handler ActionFunc) {
	if _, exists := s.handlers[action]; exists {
		panic(fmt.Sprintf("service.SocketServer: duplicate handler for action %q", action))
	}
	s.handlers[action] = handler
}

// Serve listens until ctx is cancelled, then waits for in-flight
// handlers. A stale socket file is removed first; the socket is
// created owner-only and removed on return.
func (s *SocketServer) Serve(ctx context.Context) error {
	listener, err := Listen(s.socketPath)
	if err != nil {
		return err
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("socket server listening", "path", s.socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

const (
	readTimeout    = 30 * time.Second
	writeTimeout   = 10 * time.Second
	maxRequestSize = 1024 * 1024
)

func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}

	var header requestHeader
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if header.Action == "" {
		s.writeError(conn, "missing required field: action")
		return
	}

	handler, exists := s.handlers[header.Action]
	if !exists {
		if !header.NoResponse {
			s.writeError(conn, fmt.Sprintf("unknown command %q", header.Action))
		}
		s.logger.Debug("unknown command", "action", header.Action)
		return
	}

	if header.NoResponse {
		// Reply-less callers have already moved on; close before
		// running the handler.
		conn.Close()
	}

	result, err := handler(ctx, []byte(raw))
	if err != nil {
		s.logger.Debug("action failed", "action", header.Action, "error", err)
		if !header.NoResponse {
			s.writeError(conn, err.Error())
		}
		return
	}
	if !header.NoResponse {
		s.writeSuccess(conn, result)
	}
}

func (s *SocketServer) writeError(conn net.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(Response{OK: false, Error: message}); err != nil {
		s.logger.Debug("failed to write error response", "error", err)
	}
}

func (s *SocketServer) writeSuccess(conn net.Conn, result any) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	response := Response{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.writeError(conn, fmt.Sprintf("internal: marshaling response: %v", err))
			return
		}
		response.Data = data
	}

	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("failed to write success response", "error", err)
	}
}
