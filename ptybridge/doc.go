// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ptybridge runs the user's shell on a pseudo-terminal and sits
// between it and the user's real terminal.
//
// [Spawn] starts the shell with the pseudo-terminal's slave side as its
// controlling terminal. [Bridge.Run] then relays user input to the
// shell and shell output to the user, lets an [InputFilter] withhold
// keys, hands every output chunk to an [Observer], and follows window
// size changes. Other goroutines write to the shell with
// [Bridge.Inject].
package ptybridge
