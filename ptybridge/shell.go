// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ptybridge

import (
	"cmp"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// Environment variables that shape the shell command. They are read
// from the bridge's own environment and not passed on to the shell.
const (
	EnvShell           = "INTERTERM_SHELL"
	EnvLoginShell      = "INTERTERM_LOGIN_SHELL"
	EnvExecutionString = "INTERTERM_EXECUTION_STRING"
	EnvShellExtraArgs  = "INTERTERM_SHELL_EXTRA_ARGS"
	EnvStartText       = "INTERTERM_START_TEXT"
)

// Environment variables the shell receives so its integration knows
// it is running under interterm.
const (
	EnvTerm      = "INTERTERM_TERM"
	EnvSessionID = "INTERTERM_SESSION_ID"
)

const defaultShell = "/bin/sh"

// Size is a terminal size in character cells.
type Size struct {
	Rows    uint16
	Columns uint16
}

// ShellCommand builds the command that runs the user's shell. The
// shell is configured if set, else $INTERTERM_SHELL, else $SHELL, else
// /bin/sh.
func ShellCommand(configured string, environ []string, sessionID string) *exec.Cmd {
	values := make(map[string]string, len(environ))
	for _, entry := range environ {
		if key, value, ok := strings.Cut(entry, "="); ok {
			values[key] = value
		}
	}

	shell := cmp.Or(configured, values[EnvShell], values["SHELL"], defaultShell)

	var args []string
	if values[EnvLoginShell] == "1" {
		args = append(args, "--login")
	}
	args = append(args, strings.Fields(values[EnvShellExtraArgs])...)
	if execution := values[EnvExecutionString]; execution != "" {
		args = append(args, "-c", execution)
	}

	cmd := exec.Command(shell, args...)
	for _, entry := range environ {
		key, _, _ := strings.Cut(entry, "=")
		switch key {
		case EnvShell, EnvLoginShell, EnvExecutionString, EnvShellExtraArgs, EnvStartText, EnvTerm, EnvSessionID:
			continue
		}
		cmd.Env = append(cmd.Env, entry)
	}
	cmd.Env = append(cmd.Env, EnvTerm+"=1", EnvSessionID+"="+sessionID)
	return cmd
}

// ShellName returns the base name of a shell path ("zsh" for
// "/usr/local/bin/zsh"), which is also what shell integrations report
// in their Shell marker.
func ShellName(path string) string {
	return strings.TrimPrefix(filepath.Base(path), "-")
}

// Spawn starts cmd as a session leader with a new pseudo-terminal as
// its controlling terminal and returns the master side. The child is
// forked and exec'd by the Go runtime, so no Go code runs between the
// two. Nothing about the caller's terminal has changed when Spawn
// fails.
func Spawn(cmd *exec.Cmd, size Size) (*os.File, error) {
	master, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: size.Rows, Cols: size.Columns})
	if err != nil {
		return nil, fmt.Errorf("starting %s on a pseudo-terminal: %w", cmd.Path, err)
	}
	return master, nil
}

// TerminalSize reads the window size of the terminal on fd.
func TerminalSize(fd int) (Size, error) {
	winsize, err := unix.IoctlGetWinsize(fd, unix.TIOCGWINSZ)
	if err != nil {
		return Size{}, fmt.Errorf("reading window size (TIOCGWINSZ): %w", err)
	}
	return Size{Rows: winsize.Row, Columns: winsize.Col}, nil
}

// setSize resizes the pseudo-terminal, which signals SIGWINCH to the
// shell's foreground process group.
func setSize(master *os.File, size Size) error {
	return pty.Setsize(master, &pty.Winsize{Rows: size.Rows, Cols: size.Columns})
}
