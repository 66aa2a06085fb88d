// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the slog loggers used by the interterm
// binaries. Output to a terminal is human-readable text; output to a
// file or pipe is JSON. Every logger shares a LevelVar so the level
// can be changed at runtime by the log-level system command or by the
// shell's Log= marker.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/term"
)

// Logger pairs a slog.Logger with the LevelVar that controls it.
type Logger struct {
	*slog.Logger
	Level *slog.LevelVar
}

// New returns a logger writing to w. Text output is chosen when w is
// a terminal.
func New(w io.Writer, level slog.Level) *Logger {
	levelVar := new(slog.LevelVar)
	levelVar.Set(level)
	options := &slog.HandlerOptions{Level: levelVar}

	var handler slog.Handler
	if file, ok := w.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		handler = slog.NewTextHandler(w, options)
	} else {
		handler = slog.NewJSONHandler(w, options)
	}
	return &Logger{Logger: slog.New(handler), Level: levelVar}
}

// Discard returns a logger that drops everything. Tests use it where
// log output is noise.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler), Level: new(slog.LevelVar)}
}

// OpenFile opens (appending) a log file for a binary whose stderr is
// not available for logging, such as the session binary whose stderr
// is the user's terminal.
func OpenFile(path string) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file %s: %w", path, err)
	}
	return file, nil
}

// ParseLevel accepts slog level names case-insensitively, plus
// "trace" (mapped to debug) and "warning" and "off".
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace", "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "off":
		return slog.LevelError + 4, nil
	}
	return 0, fmt.Errorf("unknown log level %q", name)
}

// Fingerprint identifies a secret in logs without revealing it: the
// first eight bytes of its blake3 digest, hex encoded.
func Fingerprint(secret []byte) string {
	sum := blake3.Sum256(secret)
	return fmt.Sprintf("%x", sum[:8])
}
