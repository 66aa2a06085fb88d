// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package companion

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/interterm/companion/hooks"
	"github.com/bureau-foundation/interterm/lib/clock"
	"github.com/bureau-foundation/interterm/lib/logging"
	"github.com/bureau-foundation/interterm/lib/service"
	"github.com/bureau-foundation/interterm/protocol"
	"github.com/bureau-foundation/interterm/session"
)

// DefaultPingInterval is the keepalive interval when Config leaves it
// zero.
const DefaultPingInterval = 5 * time.Second

// connectionQueue is the per-connection outbound queue depth.
const connectionQueue = 64

// ErrAlreadyAuthenticated describes a second handshake on an
// authenticated connection. The handshake is rejected and the
// connection stays authenticated as before.
var ErrAlreadyAuthenticated = errors.New("connection already authenticated")

// ServerConfig configures a Server.
type ServerConfig struct {
	Registry *session.Registry
	Handler  hooks.Handler

	PingInterval time.Duration

	// OnAuthenticated runs after each successful handshake, before
	// the connection reads its next message.
	OnAuthenticated func(s *session.Session, created bool)

	Clock  clock.Clock
	Logger *slog.Logger
}

// Server accepts session connections.
type Server struct {
	config ServerConfig

	activeConnections sync.WaitGroup
}

// NewServer returns a server. Registry and Handler are required.
func NewServer(config ServerConfig) *Server {
	if config.PingInterval <= 0 {
		config.PingInterval = DefaultPingInterval
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Server{config: config}
}

// ListenAndServe serves the session protocol on a unix socket at path
// until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, path string) error {
	listener, err := service.Listen(path)
	if err != nil {
		return err
	}
	defer os.Remove(path)
	s.config.Logger.Info("companion listening", "path", path)
	return s.Serve(ctx, listener)
}

// Serve accepts connections from listener until ctx is cancelled,
// then waits for every connection to finish.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.config.Logger.Error("accept failed", "error", err)
			continue
		}
		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.ServeConn(ctx, conn)
		}()
	}
	s.activeConnections.Wait()
	return nil
}

// connection is the state of one accepted connection.
type connection struct {
	server *Server
	conn   net.Conn
	logger *slog.Logger

	// messages is drained by writeLoop, the connection's only writer.
	messages chan protocol.Clientbound
	done     chan struct{}

	// Set once the handshake succeeds.
	session    *session.Session
	generation uint64
}

// ServeConn runs one connection's state machine until it closes.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	c := &connection{
		server:   s,
		conn:     conn,
		logger:   s.config.Logger,
		messages: make(chan protocol.Clientbound, connectionQueue),
		done:     make(chan struct{}),
	}
	defer c.close()

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-c.done:
		}
	}()
	go c.writeLoop()

	c.readLoop(ctx)
}

func (c *connection) close() {
	close(c.done)
	c.conn.Close()
	if c.session != nil && c.session.Detach(c.generation) {
		c.logger.Info("session disconnected", "session", c.session.ID())
	}
}

func (c *connection) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case message := <-c.messages:
			if err := protocol.WriteClientbound(c.conn, message); err != nil {
				c.logger.Debug("write to session failed", "error", err)
				c.conn.Close()
				return
			}
		}
	}
}

// reply queues a message on this connection regardless of which
// connection currently owns the session.
func (c *connection) reply(message protocol.Clientbound) {
	select {
	case c.messages <- message:
	case <-c.done:
	}
}

func (c *connection) reject() {
	c.reply(protocol.Clientbound{HandshakeResponse: &protocol.HandshakeResponse{Success: false}})
}

func (c *connection) readLoop(ctx context.Context) {
	for {
		message, err := protocol.ReadHostbound(c.conn)
		if errors.Is(err, protocol.ErrUndecodable) {
			c.logger.Warn("skipping message from session", "error", err)
			continue
		}
		if err != nil {
			return
		}
		if c.session != nil {
			c.session.Touch()
		}

		switch {
		case message.Handshake != nil:
			c.handleHandshake(message.Handshake)
		case c.session == nil:
			// Nothing but a handshake is accepted before one succeeds.
			c.reject()
		case message.Hook != nil:
			c.handleHook(ctx, message.Hook)
		case message.Response != nil:
			if !c.session.Resolve(message.Response) {
				c.logger.Debug("discarding response with no waiter",
					"session", c.session.ID(),
					"nonce", message.Response.Nonce,
				)
			}
		case message.Pong != nil:
			// Touch above is all a pong does.
		}
	}
}

func (c *connection) handleHandshake(handshake *protocol.Handshake) {
	if c.session != nil {
		c.logger.Warn("rejecting handshake", "session", c.session.ID(), "error", ErrAlreadyAuthenticated)
		c.reject()
		return
	}

	registry := c.server.config.Registry
	s, generation, created, err := registry.Authenticate(handshake.ID, handshake.Secret, c.messages, c.done)
	if err != nil {
		c.logger.Warn("rejecting handshake",
			"session", handshake.ID,
			"secret", logging.Fingerprint([]byte(handshake.Secret)),
			"error", err,
		)
		c.reject()
		return
	}

	c.session = s
	c.generation = generation
	c.logger = c.logger.With("session", s.ID())
	c.reply(protocol.Clientbound{HandshakeResponse: &protocol.HandshakeResponse{Success: true}})
	c.logger.Info("session authenticated", "created", created)

	go c.pingLoop()
	if hook := c.server.config.OnAuthenticated; hook != nil {
		hook(s, created)
	}
}

func (c *connection) handleHook(ctx context.Context, hook *protocol.Hook) {
	if shell := hook.Context(); shell != nil {
		// A session may only speak for itself.
		shell.SessionID = c.session.ID()
		c.session.SetContext(shell)
	}

	request, err := hooks.Dispatch(ctx, c.server.config.Handler, c.session, hook)
	if err != nil {
		c.logger.Error("hook handler failed", "hook", hook.Kind(), "error", err)
		return
	}
	if request != nil {
		if err := c.session.Request(*request); err != nil {
			c.logger.Debug("dropping hook reply", "hook", hook.Kind(), "error", err)
		}
	}
}

// pingLoop pings until the connection ends and evicts expired pending
// requests on each tick.
func (c *connection) pingLoop() {
	ticker := c.server.config.Clock.NewTicker(c.server.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			select {
			case c.messages <- protocol.Clientbound{Ping: &protocol.Ping{}}:
			default:
				c.logger.Debug("queue full, dropping ping")
			}
			if evicted := c.session.ExpirePending(); evicted > 0 {
				c.logger.Warn("evicted unanswered requests", "count", evicted)
			}
		}
	}
}
