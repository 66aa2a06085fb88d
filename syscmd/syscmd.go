// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package syscmd implements the companion's system-command socket:
// session-independent one-shot commands sent by local tools. Each
// connection carries one CBOR request {action, no_response, ...}; with
// no_response set the connection is closed without a reply.
package syscmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/bureau-foundation/interterm/companion"
	"github.com/bureau-foundation/interterm/lib/clock"
	"github.com/bureau-foundation/interterm/lib/codec"
	"github.com/bureau-foundation/interterm/lib/logging"
	"github.com/bureau-foundation/interterm/lib/service"
	"github.com/bureau-foundation/interterm/lib/version"
)

// Action names.
const (
	ActionDiagnostics = "diagnostics"
	ActionSelfUpdate  = "self-update"
	ActionSync        = "sync"
	ActionLogLevel    = "log-level"
	ActionOpenBrowser = "open-browser"
	ActionTelemetry   = "telemetry"
	ActionPairingCode = "pairing-code"
	ActionQuit        = "quit"
)

// Config wires the commands to the running companion.
type Config struct {
	Companion *companion.Companion
	Pairing   *companion.PairingIssuer

	// Logger's LevelVar is what log-level changes.
	Logger *logging.Logger

	// KeybindingsFile is reloaded by sync.
	KeybindingsFile string

	// UpdateCommand is run by self-update. Empty disables it.
	UpdateCommand []string

	// Browser is the opener for open-browser. Default: xdg-open.
	Browser string

	// Quit stops the companion.
	Quit func()

	// StartTime and Clock give the uptime diagnostics reports.
	// Default Clock: the real one.
	StartTime time.Time
	Clock     clock.Clock
}

type commands struct {
	config Config
	logger *slog.Logger
}

// Register installs every system command on server.
func Register(server *service.SocketServer, config Config) {
	if config.Browser == "" {
		config.Browser = "xdg-open"
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	c := &commands{config: config, logger: config.Logger.Logger}
	server.Handle(ActionDiagnostics, c.diagnostics)
	server.Handle(ActionSelfUpdate, c.selfUpdate)
	server.Handle(ActionSync, c.sync)
	server.Handle(ActionLogLevel, c.logLevel)
	server.Handle(ActionOpenBrowser, c.openBrowser)
	server.Handle(ActionTelemetry, c.telemetry)
	server.Handle(ActionPairingCode, c.pairingCode)
	server.Handle(ActionQuit, c.quit)
}

// DiagnosticsResult is the diagnostics reply.
type DiagnosticsResult struct {
	Version     string                     `json:"version"`
	PID         int                        `json:"pid"`
	Uptime      string                     `json:"uptime"`
	ResidentSet uint64                     `json:"resident_set,omitempty"`
	Hostname    string                     `json:"hostname,omitempty"`
	Platform    string                     `json:"platform,omitempty"`
	Kernel      string                     `json:"kernel,omitempty"`
	Sessions    []companion.SessionSummary `json:"sessions"`
}

func (c *commands) diagnostics(ctx context.Context, raw []byte) (any, error) {
	result := DiagnosticsResult{
		Version:  version.Info(),
		PID:      os.Getpid(),
		Uptime:   c.config.Clock.Now().Sub(c.config.StartTime).Round(time.Second).String(),
		Sessions: c.config.Companion.ListSessions(),
	}
	if info, err := host.InfoWithContext(ctx); err == nil {
		result.Hostname = info.Hostname
		result.Platform = strings.TrimSpace(info.Platform + " " + info.PlatformVersion)
		result.Kernel = info.KernelVersion
	} else {
		c.logger.Debug("reading host info", "error", err)
	}
	if self, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if memory, err := self.MemoryInfoWithContext(ctx); err == nil {
			result.ResidentSet = memory.RSS
		}
	}
	return result, nil
}

func (c *commands) selfUpdate(ctx context.Context, raw []byte) (any, error) {
	if len(c.config.UpdateCommand) == 0 {
		return nil, errors.New("no update command configured")
	}
	command := exec.CommandContext(ctx, c.config.UpdateCommand[0], c.config.UpdateCommand[1:]...)
	output, err := command.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("update command failed: %w: %s", err, strings.TrimSpace(string(output)))
	}
	c.logger.Info("self-update finished", "command", c.config.UpdateCommand)
	return map[string]string{"output": string(output)}, nil
}

// sync reloads the keybindings file and pushes it to every connected
// session.
func (c *commands) sync(ctx context.Context, raw []byte) (any, error) {
	actions, err := companion.LoadKeybindings(c.config.KeybindingsFile)
	if err != nil {
		return nil, err
	}
	sent := c.config.Companion.Broadcast(companion.KeybindingsRequest(actions))
	c.logger.Info("keybindings synced", "actions", len(actions), "sessions", sent)
	return map[string]int{"actions": len(actions), "sessions": sent}, nil
}

func (c *commands) logLevel(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		Level string `cbor:"level"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	level, err := logging.ParseLevel(request.Level)
	if err != nil {
		return nil, err
	}
	previous := c.config.Logger.Level.Level()
	c.config.Logger.Level.Set(level)
	c.logger.Info("log level changed", "from", previous, "to", level)
	return map[string]string{"previous": previous.String()}, nil
}

func (c *commands) openBrowser(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		URL string `cbor:"url"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	parsed, err := url.Parse(request.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("refusing to open %q: only http and https URLs", request.URL)
	}
	command := exec.Command(c.config.Browser, parsed.String())
	if err := command.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", c.config.Browser, err)
	}
	go command.Wait()
	return nil, nil
}

// telemetry records an event in the companion log. Storage and upload
// belong to an external collector reading that log.
func (c *commands) telemetry(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		Event      string            `cbor:"event"`
		Properties map[string]string `cbor:"properties"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if request.Event == "" {
		return nil, errors.New("missing required field: event")
	}
	c.logger.Info("telemetry event", "event", request.Event, "properties", request.Properties)
	return nil, nil
}

func (c *commands) pairingCode(ctx context.Context, raw []byte) (any, error) {
	code, err := c.config.Pairing.Issue()
	if errors.Is(err, companion.ErrPairingRateLimited) {
		// Dropped: the caller gets an empty reply, not a reason.
		c.logger.Warn("pairing code request dropped", "error", err)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return map[string]string{"code": code}, nil
}

func (c *commands) quit(ctx context.Context, raw []byte) (any, error) {
	c.logger.Info("quit requested")
	if c.config.Quit != nil {
		c.config.Quit()
	}
	return nil, nil
}
