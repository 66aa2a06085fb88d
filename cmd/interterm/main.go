// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// interterm runs the user's shell on a pseudo-terminal between the
// real terminal and the shell, and reports what happens at the prompt
// to interterm-companion.
//
// Usage:
//
//	interterm [--config path] [--shell path] [--session-id id]
//
// The shell is chosen from --shell, the session config,
// INTERTERM_SHELL or SHELL, in that order. Logs go to the session log
// file because stderr is the user's terminal.
package main

import (
	"cmp"
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/interterm/lib/config"
	"github.com/bureau-foundation/interterm/lib/logging"
	"github.com/bureau-foundation/interterm/lib/process"
	"github.com/bureau-foundation/interterm/lib/version"
	"github.com/bureau-foundation/interterm/protocol"
	"github.com/bureau-foundation/interterm/protocol/client"
	"github.com/bureau-foundation/interterm/ptybridge"
	"github.com/bureau-foundation/interterm/shellhost"
	"github.com/bureau-foundation/interterm/terminal"
)

var fallbackSize = ptybridge.Size{Rows: 24, Columns: 80}

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath string
		shellPath  string
		sessionID  string
		logLevel   string
	)
	flagSet := pflag.NewFlagSet("interterm", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the config file (default: $INTERTERM_CONFIG)")
	flagSet.StringVar(&shellPath, "shell", "", "shell to run (default: $INTERTERM_SHELL, then $SHELL)")
	flagSet.StringVar(&sessionID, "session-id", "", "session id to register with the companion (default: random)")
	flagSet.StringVar(&logLevel, "log-level", "", "log level, overriding the config")
	showVersion := flagSet.Bool("version", false, "print version and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if *showVersion {
		version.Print("interterm")
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	level, err := logging.ParseLevel(cmp.Or(logLevel, cfg.Log.Level))
	if err != nil {
		return err
	}
	logFile, err := logging.OpenFile(cfg.Log.SessionFile)
	if err != nil {
		return err
	}
	defer logFile.Close()
	logger := logging.New(logFile, level)

	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	secret := rand.Text()

	size, err := ptybridge.TerminalSize(int(os.Stdin.Fd()))
	if err != nil {
		size = fallbackSize
	}

	// The shell is spawned before the user's terminal is touched, so a
	// failure here leaves it as it was and the error prints normally.
	cmd := ptybridge.ShellCommand(cmp.Or(shellPath, cfg.Session.Shell), os.Environ(), sessionID)
	master, err := ptybridge.Spawn(cmd, size)
	if err != nil {
		return err
	}
	shellName := ptybridge.ShellName(cmd.Path)
	hostname, _ := os.Hostname()

	logger.Info("session starting",
		"session_id", sessionID,
		"secret", logging.Fingerprint([]byte(secret)),
		"shell", cmd.Path,
		"pid", cmd.Process.Pid,
		"version", version.Info(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	companion := client.New(client.Config{
		SocketPath: cfg.Paths.CompanionSocket(),
		SessionID:  sessionID,
		Secret:     secret,
		MaxBackoff: cfg.Session.ReconnectMax,
		Logger:     logger.Logger,
	})

	tracker := terminal.New(int(size.Rows), int(size.Columns), protocol.ShellContext{
		PID:       int32(cmd.Process.Pid),
		ShellPath: cmd.Path,
		Hostname:  hostname,
		SessionID: sessionID,
	}, logger.Logger)

	host := shellhost.New(shellhost.Config{
		SessionID:        sessionID,
		ShellPath:        cmd.Path,
		ShellPID:         int32(cmd.Process.Pid),
		EditBufferShells: cfg.Session.EditBufferShells,
		InsertionLock:    cfg.Session.InsertionLock,
		StartText:        cmp.Or(os.Getenv(ptybridge.EnvStartText), cfg.Session.StartText),
		Logger:           logger,
	}, tracker, companion)

	bridge := ptybridge.New(ptybridge.Config{
		Master:   master,
		Stdin:    os.Stdin,
		Stdout:   os.Stdout,
		Filter:   host,
		Observer: host,
		Logger:   logger.Logger,
	})
	host.Attach(bridge)

	os.Stdout.WriteString(shellhost.WindowTitle(shellName))

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	clientDone := make(chan error, 1)
	go func() {
		clientDone <- companion.Run(sessionCtx)
	}()
	serveDone := make(chan struct{})
	go func() {
		host.Serve(sessionCtx, companion.Requests())
		close(serveDone)
	}()

	bridgeErr := bridge.Run(sessionCtx)
	cancel()
	if err := <-clientDone; err != nil {
		logger.Warn("companion client stopped", "error", err)
	}
	<-serveDone

	if bridgeErr != nil {
		// The shell outlives a cancelled bridge unless told otherwise.
		cmd.Process.Signal(syscall.SIGHUP)
	}
	code, _ := process.ExitCode(cmd.Wait())
	logger.Info("session ended", "shell_exit_code", code, "error", bridgeErr)
	if bridgeErr != nil && ctx.Err() == nil {
		return fmt.Errorf("relaying shell: %w", bridgeErr)
	}
	// The shell's own status was already shown to the user; the
	// intermediary itself succeeded.
	return nil
}
