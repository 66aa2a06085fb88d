// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/interterm/lib/codec"
	"github.com/bureau-foundation/interterm/lib/logging"
	"github.com/bureau-foundation/interterm/lib/testutil"
)

// startServer serves the given handlers until the test ends and
// returns the socket path once it is accepting.
func startServer(t *testing.T, register func(*SocketServer)) string {
	t.Helper()
	socketPath := filepath.Join(testutil.SocketDir(t), "system.sock")
	server := NewSocketServer(socketPath, logging.Discard().Logger)
	register(server)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := server.Serve(ctx); err != nil {
			t.Errorf("Serve: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	waitForSocket(t, socketPath)
	return socketPath
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("socket %s never appeared", path)
}

func TestCallReturnsHandlerData(t *testing.T) {
	t.Parallel()
	socketPath := startServer(t, func(server *SocketServer) {
		server.Handle("echo", func(ctx context.Context, raw []byte) (any, error) {
			var request struct {
				Text string `cbor:"text"`
			}
			if err := codec.Unmarshal(raw, &request); err != nil {
				return nil, err
			}
			return map[string]string{"text": request.Text}, nil
		})
	})

	var result map[string]string
	err := NewClient(socketPath).Call(context.Background(), "echo", map[string]any{"text": "hi"}, &result)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result["text"] != "hi" {
		t.Errorf("result = %v, want text=hi", result)
	}

	info, err := os.Stat(socketPath)
	if err != nil {
		t.Fatalf("stat socket: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("socket mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestCallUnknownCommand(t *testing.T) {
	t.Parallel()
	socketPath := startServer(t, func(*SocketServer) {})

	err := NewClient(socketPath).Call(context.Background(), "reticulate", nil, nil)
	var actionErr *ActionError
	if !errors.As(err, &actionErr) {
		t.Fatalf("Call error = %v, want *ActionError", err)
	}
	if actionErr.Message != `unknown command "reticulate"` {
		t.Errorf("message = %q", actionErr.Message)
	}
}

func TestCallHandlerError(t *testing.T) {
	t.Parallel()
	socketPath := startServer(t, func(server *SocketServer) {
		server.Handle("fail", func(context.Context, []byte) (any, error) {
			return nil, errors.New("no update command configured")
		})
	})

	err := NewClient(socketPath).Call(context.Background(), "fail", nil, nil)
	var actionErr *ActionError
	if !errors.As(err, &actionErr) || actionErr.Message != "no update command configured" {
		t.Fatalf("Call error = %v", err)
	}
}

func TestNotifyRunsHandlerWithoutReply(t *testing.T) {
	t.Parallel()
	called := make(chan string, 1)
	socketPath := startServer(t, func(server *SocketServer) {
		server.Handle("telemetry", func(ctx context.Context, raw []byte) (any, error) {
			var request struct {
				Event string `cbor:"event"`
			}
			if err := codec.Unmarshal(raw, &request); err != nil {
				return nil, err
			}
			called <- request.Event
			return map[string]bool{"ignored": true}, nil
		})
	})

	if err := NewClient(socketPath).Notify(context.Background(), "telemetry", map[string]any{"event": "opened"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if got := testutil.RequireReceive(t, called, 5*time.Second, "handler call"); got != "opened" {
		t.Errorf("event = %q, want opened", got)
	}
}

func TestDuplicateHandlePanics(t *testing.T) {
	t.Parallel()
	server := NewSocketServer("/unused", logging.Discard().Logger)
	server.Handle("quit", func(context.Context, []byte) (any, error) { return nil, nil })
	defer func() {
		if recover() == nil {
			t.Error("second Handle did not panic")
		}
	}()
	server.Handle("quit", func(context.Context, []byte) (any, error) { return nil, nil })
}
