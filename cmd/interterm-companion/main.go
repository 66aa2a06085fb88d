// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// interterm-companion is the desktop side of interterm. It accepts
// session connections on the companion socket, turns their hooks into
// notifications and history, and serves the local system-command
// socket.
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/interterm/companion"
	"github.com/bureau-foundation/interterm/companion/hooks"
	"github.com/bureau-foundation/interterm/history"
	"github.com/bureau-foundation/interterm/lib/clock"
	"github.com/bureau-foundation/interterm/lib/config"
	"github.com/bureau-foundation/interterm/lib/logging"
	"github.com/bureau-foundation/interterm/lib/process"
	"github.com/bureau-foundation/interterm/lib/service"
	"github.com/bureau-foundation/interterm/lib/version"
	"github.com/bureau-foundation/interterm/notify"
	"github.com/bureau-foundation/interterm/session"
	"github.com/bureau-foundation/interterm/syscmd"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath   string
		notifyListen string
		logLevel     string
	)
	flagSet := pflag.NewFlagSet("interterm-companion", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the config file (default: $INTERTERM_CONFIG)")
	flagSet.StringVar(&notifyListen, "notify-listen", "", "host:port for the websocket notification endpoint")
	flagSet.StringVar(&logLevel, "log-level", "", "log level, overriding the config")
	showVersion := flagSet.Bool("version", false, "print version and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if *showVersion {
		version.Print("interterm-companion")
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
	logger := logging.New(os.Stderr, level)
	clk := clock.Real()
	startTime := clk.Now()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, quit := context.WithCancel(ctx)
	defer quit()

	// A nil *history.Store must not become a non-nil recorder.
	var recorder hooks.HistoryRecorder
	if cfg.Companion.HistoryPath != "" {
		store, err := history.Open(cfg.Companion.HistoryPath, logger.Logger)
		if err != nil {
			return err
		}
		defer store.Close()
		recorder = store
	}

	hub := notify.NewHub(logger.Logger)
	defer hub.Close()

	registry := session.NewRegistry(clk, cfg.Companion.RequestTTL)
	companionAPI := companion.New(registry)

	server := companion.NewServer(companion.ServerConfig{
		Registry:     registry,
		Handler:      hooks.NewDesktop(hub, recorder, clk, logger.Logger),
		PingInterval: cfg.Companion.PingInterval,
		OnAuthenticated: func(s *session.Session, created bool) {
			actions, err := companion.LoadKeybindings(cfg.Companion.KeybindingsFile)
			if err != nil {
				logger.Warn("not pushing keybindings", "error", err)
				return
			}
			if len(actions) == 0 {
				return
			}
			if err := s.Request(companion.KeybindingsRequest(actions)); err != nil {
				logger.Debug("pushing keybindings", "session_id", s.ID(), "error", err)
			}
		},
		Clock:  clk,
		Logger: logger.Logger,
	})

	systemSocket := service.NewSocketServer(cfg.Paths.SystemSocket(), logger.Logger)
	syscmd.Register(systemSocket, syscmd.Config{
		Companion:       companionAPI,
		Pairing:         companion.NewPairingIssuer(clk),
		Logger:          logger,
		KeybindingsFile: cfg.Companion.KeybindingsFile,
		UpdateCommand:   cfg.Companion.UpdateCommand,
		Quit:            quit,
		StartTime:       startTime,
		Clock:           clk,
	})

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.ListenAndServe(ctx, cfg.Paths.CompanionSocket())
	}()
	systemDone := make(chan error, 1)
	go func() {
		systemDone <- systemSocket.Serve(ctx)
	}()

	var notifyServer *http.Server
	if address := cmp.Or(notifyListen, cfg.Companion.NotifyListen); address != "" {
		mux := http.NewServeMux()
		mux.Handle("/notifications", hub)
		notifyServer = &http.Server{Addr: address, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := notifyServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("notification endpoint failed", "address", address, "error", err)
			}
		}()
	}

	logger.Info("companion running",
		"socket", cfg.Paths.CompanionSocket(),
		"system_socket", cfg.Paths.SystemSocket(),
		"notify_listen", cmp.Or(notifyListen, cfg.Companion.NotifyListen),
		"history", cfg.Companion.HistoryPath,
		"version", version.Info(),
	)

	<-ctx.Done()
	logger.Info("shutting down")

	if notifyServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		notifyServer.Shutdown(shutdownCtx)
		cancel()
	}

	var errs []error
	if err := <-serverDone; err != nil {
		errs = append(errs, fmt.Errorf("companion socket: %w", err))
	}
	if err := <-systemDone; err != nil {
		errs = append(errs, fmt.Errorf("system socket: %w", err))
	}
	return errors.Join(errs...)
}
