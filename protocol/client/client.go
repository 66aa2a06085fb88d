// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package client is the session side of the session protocol: one
// long-lived connection to the companion that authenticates with the
// session's id and secret and survives companion restarts by
// reconnecting.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/interterm/lib/clock"
	"github.com/bureau-foundation/interterm/protocol"
)

const (
	initialBackoff    = 250 * time.Millisecond
	defaultMaxBackoff = 5 * time.Second

	// handshakeTimeout bounds the wait for HandshakeResponse.
	handshakeTimeout = 5 * time.Second

	outgoingBuffer = 256
)

// ErrHandshakeRejected is returned for a connection whose handshake
// the companion refused: another session already holds the id with a
// different secret.
var ErrHandshakeRejected = errors.New("companion rejected handshake")

// Config configures a Client.
type Config struct {
	SocketPath string
	SessionID  string
	Secret     string

	// MaxBackoff caps the wait between reconnect attempts.
	// Default: 5s.
	MaxBackoff time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Client maintains the session's connection to the companion.
type Client struct {
	config    Config
	outgoing  chan protocol.Hostbound
	requests  chan *protocol.Request
	connected atomic.Bool
}

// New returns a client. Nothing happens until Run.
func New(config Config) *Client {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = defaultMaxBackoff
	}
	return &Client{
		config:   config,
		outgoing: make(chan protocol.Hostbound, outgoingBuffer),
		requests: make(chan *protocol.Request, outgoingBuffer),
	}
}

// Requests delivers requests from the companion in arrival order.
func (c *Client) Requests() <-chan *protocol.Request {
	return c.requests
}

// Connected reports whether a handshake has succeeded on the current
// connection.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Send queues a message for the companion. Messages are dropped, and
// Send returns false, while disconnected or when the queue is full:
// hooks describe the present and are superseded by the next one.
func (c *Client) Send(message protocol.Hostbound) bool {
	if !c.connected.Load() {
		return false
	}
	select {
	case c.outgoing <- message:
		return true
	default:
		c.config.Logger.Warn("outgoing queue full, dropping message")
		return false
	}
}

// Run connects and reconnects until ctx is cancelled. Backoff starts
// at 250ms, doubles per failure up to MaxBackoff, and resets after a successful
// handshake.
func (c *Client) Run(ctx context.Context) error {
	backoff := initialBackoff
	for {
		authenticated, err := c.connectOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if authenticated {
			backoff = initialBackoff
		}
		c.config.Logger.Debug("companion connection ended, will retry",
			"error", err,
			"backoff", backoff,
		)
		select {
		case <-c.config.Clock.After(backoff):
		case <-ctx.Done():
			return nil
		}
		backoff = min(backoff*2, c.config.MaxBackoff)
	}
}

// connectOnce dials, handshakes, and serves one connection until it
// breaks. authenticated reports whether the handshake succeeded.
func (c *Client) connectOnce(ctx context.Context) (authenticated bool, err error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", c.config.SocketPath)
	if err != nil {
		return false, fmt.Errorf("dialing companion: %w", err)
	}
	defer conn.Close()

	if err := c.handshake(conn); err != nil {
		return false, err
	}

	// Drop anything queued for the previous connection.
	for len(c.outgoing) > 0 {
		<-c.outgoing
	}
	c.connected.Store(true)
	defer c.connected.Store(false)
	c.config.Logger.Info("connected to companion", "socket", c.config.SocketPath)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	go c.writeLoop(conn, done)

	return true, c.readLoop(ctx, conn)
}

func (c *Client) handshake(conn net.Conn) error {
	err := protocol.WriteHostbound(conn, protocol.Hostbound{Handshake: &protocol.Handshake{
		ID:     c.config.SessionID,
		Secret: c.config.Secret,
	}})
	if err != nil {
		return fmt.Errorf("sending handshake: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})
	for {
		message, err := protocol.ReadClientbound(conn)
		if errors.Is(err, protocol.ErrUndecodable) {
			continue
		}
		if err != nil {
			return fmt.Errorf("awaiting handshake response: %w", err)
		}
		if message.HandshakeResponse == nil {
			// A ping can race the response on a reconnect.
			continue
		}
		if !message.HandshakeResponse.Success {
			return ErrHandshakeRejected
		}
		return nil
	}
}

// writeLoop is the connection's only writer. A write error closes the
// connection, which ends readLoop.
func (c *Client) writeLoop(conn net.Conn, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case message := <-c.outgoing:
			if err := protocol.WriteHostbound(conn, message); err != nil {
				c.config.Logger.Debug("write to companion failed", "error", err)
				conn.Close()
				return
			}
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn net.Conn) error {
	for {
		message, err := protocol.ReadClientbound(conn)
		if errors.Is(err, protocol.ErrUndecodable) {
			c.config.Logger.Warn("skipping message from companion", "error", err)
			continue
		}
		if err != nil {
			return err
		}
		switch {
		case message.Ping != nil:
			c.Send(protocol.Hostbound{Pong: &protocol.Pong{}})
		case message.Request != nil:
			select {
			case c.requests <- message.Request:
			case <-ctx.Done():
				return ctx.Err()
			}
		case message.HandshakeResponse != nil:
			c.config.Logger.Warn("unexpected handshake response", "success", message.HandshakeResponse.Success)
		}
	}
}
