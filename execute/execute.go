// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package execute runs the processes the companion asks a session for:
// a program with captured output (RunProcess), or a command line
// through the user's shell with its rc files skipped
// (PseudoterminalExecute). Children run in their own session so they
// never touch the user's terminal.
package execute

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	lprocess "github.com/bureau-foundation/interterm/lib/process"
	"github.com/bureau-foundation/interterm/protocol"
)

// backgroundWait bounds how long a finished shell's output pipes are
// drained. A job the command backgrounded may hold them open
// indefinitely.
const backgroundWait = 100 * time.Millisecond

// ShellCwd reads the working directory of the shell process pid.
func ShellCwd(ctx context.Context, pid int32) (string, error) {
	shell, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return "", fmt.Errorf("finding shell process %d: %w", pid, err)
	}
	cwd, err := shell.CwdWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("reading cwd of shell process %d: %w", pid, err)
	}
	return cwd, nil
}

// workingDirectory picks the first of requested, shellCwd and our own
// working directory that is set.
func workingDirectory(requested, shellCwd string) string {
	if requested != "" {
		return requested
	}
	if shellCwd != "" {
		return shellCwd
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "/"
	}
	return cwd
}

// environment is our environment plus extra plus the variables that
// mark a child as ours and keep it out of the user's shell history.
func environment(extra map[string]string) []string {
	env := os.Environ()
	for key, value := range extra {
		env = append(env, key+"="+value)
	}
	return append(env,
		"TERM=xterm-256color",
		"PROCESS_LAUNCHED_BY_INTERTERM=1",
		"HISTFILE=",
	)
}

func exitCode(err error) (*int32, error) {
	code, ok := lprocess.ExitCode(err)
	if !ok {
		return nil, err
	}
	value := int32(code)
	return &value, nil
}

// RunProcess runs the requested program to completion. An error means
// the program could not be started; a non-zero exit is reported in
// the response.
func RunProcess(ctx context.Context, request *protocol.RunProcessRequest, shellCwd string) (*protocol.RunProcessResponse, error) {
	command := exec.CommandContext(ctx, request.Executable, request.Arguments...)
	command.Dir = workingDirectory(request.WorkingDirectory, shellCwd)
	command.Env = environment(request.Env)
	command.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	code, err := exitCode(command.Run())
	if err != nil {
		return nil, fmt.Errorf("running %s: %w", request.Executable, err)
	}
	return &protocol.RunProcessResponse{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: code,
	}, nil
}

// noRCFlags are the flags that keep each shell from reading its
// startup files.
var noRCFlags = map[string][]string{
	"bash": {"--norc", "--noprofile"},
	"zsh":  {"--no-rcs"},
	"fish": {"--no-config"},
}

// ShellArguments returns the argument list that runs command through
// shellPath without startup files.
func ShellArguments(shellPath, command string) []string {
	arguments := append([]string(nil), noRCFlags[filepath.Base(shellPath)]...)
	return append(arguments, "-c", command)
}

// PseudoterminalExecute runs the command line through shellPath. A
// background job is started and answered immediately with no output.
func PseudoterminalExecute(ctx context.Context, request *protocol.PseudoterminalExecuteRequest, shellPath, shellCwd string) (*protocol.PseudoterminalExecuteResponse, error) {
	if shellPath == "" {
		shellPath = "/bin/sh"
	}
	command := exec.CommandContext(ctx, shellPath, ShellArguments(shellPath, request.Command)...)
	command.Dir = workingDirectory(request.WorkingDirectory, shellCwd)
	command.Env = environment(request.Env)
	command.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	command.WaitDelay = backgroundWait

	if request.BackgroundJob {
		if err := command.Start(); err != nil {
			return nil, fmt.Errorf("starting %s: %w", shellPath, err)
		}
		go command.Wait()
		return &protocol.PseudoterminalExecuteResponse{}, nil
	}

	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr
	err := command.Run()
	if errors.Is(err, exec.ErrWaitDelay) {
		// The shell succeeded; something it backgrounded still holds
		// the output pipes.
		err = nil
	}
	code, err := exitCode(err)
	if err != nil {
		return nil, fmt.Errorf("running %s: %w", shellPath, err)
	}

	response := &protocol.PseudoterminalExecuteResponse{Stdout: stdout.String(), ExitCode: code}
	if stderr.Len() > 0 {
		text := stderr.String()
		response.Stderr = &text
	}
	return response, nil
}
