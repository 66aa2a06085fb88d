// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package shellhost is the glue inside a session. It watches the
// shell's output through a [terminal.Tracker] and reports prompts,
// commands and the edit buffer to the companion as hooks. It answers
// companion requests by typing into the shell or running subprocesses,
// and it filters the user's keys through a [keys.Interceptor].
//
// A Host is both the [ptybridge.Observer] and the
// [ptybridge.InputFilter] of the session's bridge.
//
// After the companion inserts text, edit-buffer hooks are held back
// until the screen shows the insertion (or a short lock expires) so
// the companion never sees the stale line it just replaced.
package shellhost
