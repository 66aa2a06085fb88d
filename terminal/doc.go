// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package terminal follows a shell's output the way the user's
// terminal draws it, so the session knows what the user is typing.
//
// A [Tracker] feeds every byte the shell writes through an escape
// sequence parser into a grid of cells. Shell integrations emit
// invisible OSC 697 markers around their prompts and commands
// ("NewCmd", "StartPrompt", "EndPrompt", "PreExec", "ExitCode=0",
// "Dir=/home/user", ...). Cells printed between StartPrompt and
// EndPrompt are flagged as prompt, and cells printed in the shell's
// autosuggestion color are flagged as suggestion.
//
// The command line is whatever is left on the cursor's row once the
// flagged cells are dropped. [Tracker.Advance] reports it as an
// EventEditBuffer whenever it changes, alongside the prompt and
// command lifecycle events the markers raise.
package terminal
