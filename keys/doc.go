// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package keys turns raw terminal input into symbolic key events and
// decides which of them the companion intercepts.
//
// [Decode] reads one chunk of stdin as a single key: an escape
// sequence (vt "ESC [ n ~", xterm "ESC [ 1 ; m A", SS3 "ESC O A"), a
// control byte, or literal text. Modifiers travel in escape sequences
// as n-1 over shift=1, alt=2, control=4, meta=8.
//
// [ParseBinding] reads the companion's binding syntax
// ("control+shift+r", "alt+left", "f5") into the event the decoder
// produces for that key, and [Interceptor] holds the active bindings
// and interception flags.
package keys
