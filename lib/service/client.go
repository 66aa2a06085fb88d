// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"io"
	"maps"
	"net"
	"time"

	"github.com/bureau-foundation/interterm/lib/codec"
)

const (
	dialTimeout         = 5 * time.Second
	responseReadTimeout = 45 * time.Second
	maxResponseSize     = 1024 * 1024
)

// ActionError is returned by Call when the server replies ok=false.
type ActionError struct {
	Action  string
	Message string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Action, e.Message)
}

// Client sends one request per connection to a SocketServer.
type Client struct {
	socketPath string
}

// NewClient returns a client for socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Call sends action with fields and decodes the reply data into
// result (which may be nil).
func (c *Client) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	conn, err := c.dial(ctx, buildRequest(action, fields, false))
	if err != nil {
		return fmt.Errorf("calling %q on %s: %w", action, c.socketPath, err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(responseReadTimeout))
	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		return fmt.Errorf("reading %q response: %w", action, err)
	}
	if !response.OK {
		return &ActionError{Action: action, Message: response.Error}
	}
	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding %q response data: %w", action, err)
		}
	}
	return nil
}

// Notify sends action with no_response set and returns once the
// request is written.
func (c *Client) Notify(ctx context.Context, action string, fields map[string]any) error {
	conn, err := c.dial(ctx, buildRequest(action, fields, true))
	if err != nil {
		return fmt.Errorf("notifying %q on %s: %w", action, c.socketPath, err)
	}
	return conn.Close()
}

func (c *Client) dial(ctx context.Context, request map[string]any) (net.Conn, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		conn.Close()
		return nil, fmt.Errorf("writing request: %w", err)
	}
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}
	return conn, nil
}

func buildRequest(action string, fields map[string]any, noResponse bool) map[string]any {
	request := make(map[string]any, len(fields)+2)
	maps.Copy(request, fields)
	request["action"] = action
	if noResponse {
		request["no_response"] = true
	}
	return request
}
