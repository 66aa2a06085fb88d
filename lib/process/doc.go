// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the two process-level helpers shared by the
// interterm binaries: reporting a fatal error from main before (or
// instead of) the structured logger, and turning a finished
// *exec.Cmd into the exit code reported over the session protocol.
package process
