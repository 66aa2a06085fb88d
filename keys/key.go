// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"fmt"
	"strings"
)

// Key identifies a key independent of modifiers. KeyChar carries its
// text in Event.Text.
type Key int

const (
	KeyNone Key = iota
	KeyChar
	KeyEscape
	KeyEnter
	KeyTab
	KeyBackTab
	KeyBackspace
	KeyDelete
	KeyInsert
	KeyHome
	KeyEnd
	KeyPageUp
	KeyPageDown
	KeyUp
	KeyDown
	KeyLeft
	KeyRight

	// KeyF0 is the first function key; KeyF0+n is Fn, up to F20.
	KeyF0
)

const maxFunctionKey = 20

// Function returns the key for Fn.
func Function(n int) Key {
	return KeyF0 + Key(n)
}

// FunctionNumber reports n for Fn keys.
func (k Key) FunctionNumber() (int, bool) {
	if k >= KeyF0 && k <= KeyF0+maxFunctionKey {
		return int(k - KeyF0), true
	}
	return 0, false
}

var keyNames = map[Key]string{
	KeyChar:      "char",
	KeyEscape:    "esc",
	KeyEnter:     "enter",
	KeyTab:       "tab",
	KeyBackTab:   "backtab",
	KeyBackspace: "backspace",
	KeyDelete:    "delete",
	KeyInsert:    "insert",
	KeyHome:      "home",
	KeyEnd:       "end",
	KeyPageUp:    "pageup",
	KeyPageDown:  "pagedown",
	KeyUp:        "up",
	KeyDown:      "down",
	KeyLeft:      "left",
	KeyRight:     "right",
}

func (k Key) String() string {
	if n, ok := k.FunctionNumber(); ok {
		return fmt.Sprintf("f%d", n)
	}
	if name, ok := keyNames[k]; ok {
		return name
	}
	return "none"
}

// Modifiers is a bitmask in the order escape sequences encode it.
type Modifiers uint8

const (
	ModShift Modifiers = 1 << iota
	ModAlt
	ModControl
	ModMeta

	ModNone Modifiers = 0
)

// allModifiers is every representable modifier bit.
const allModifiers = ModShift | ModAlt | ModControl | ModMeta

// Has reports whether every bit of m2 is set in m.
func (m Modifiers) Has(m2 Modifiers) bool {
	return m&m2 == m2
}

func (m Modifiers) String() string {
	if m == ModNone {
		return "none"
	}
	var parts []string
	for _, entry := range []struct {
		bit  Modifiers
		name string
	}{
		{ModControl, "control"},
		{ModAlt, "alt"},
		{ModShift, "shift"},
		{ModMeta, "meta"},
	} {
		if m.Has(entry.bit) {
			parts = append(parts, entry.name)
		}
	}
	return strings.Join(parts, "+")
}

// Event is one decoded key press. Events are comparable and serve as
// binding map keys.
type Event struct {
	Key       Key
	Text      string
	Modifiers Modifiers
}

// Char returns a KeyChar event.
func Char(text string, modifiers Modifiers) Event {
	return Event{Key: KeyChar, Text: text, Modifiers: modifiers}
}

// String renders the event in binding syntax, e.g. "control+r".
func (e Event) String() string {
	name := e.Key.String()
	if e.Key == KeyChar {
		name = e.Text
	}
	if e.Modifiers == ModNone {
		return name
	}
	return e.Modifiers.String() + "+" + name
}
