// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// Fatal writes "error: err" to stderr and exits with code 1. Use it in
// main() for errors returned from run().
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

// ExitCode extracts the exit status from the error returned by
// (*exec.Cmd).Wait or Run. A nil error is status 0. A process killed by
// a signal reports 128+signal, the shell convention. ok is false when
// err did not come from a process that ran to completion (for example
// a failure to start).
func ExitCode(err error) (code int, ok bool) {
	if err == nil {
		return 0, true
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return 0, false
	}
	if status, isWait := exitErr.Sys().(syscall.WaitStatus); isWait && status.Signaled() {
		return 128 + int(status.Signal()), true
	}
	return exitErr.ExitCode(), true
}
