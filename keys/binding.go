// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"fmt"
	"strconv"
	"strings"
)

var namedKeys = map[string]Key{
	"backspace":  KeyBackspace,
	"enter":      KeyEnter,
	"return":     KeyEnter,
	"left":       KeyLeft,
	"arrowleft":  KeyLeft,
	"right":      KeyRight,
	"arrowright": KeyRight,
	"up":         KeyUp,
	"arrowup":    KeyUp,
	"down":       KeyDown,
	"arrowdown":  KeyDown,
	"home":       KeyHome,
	"end":        KeyEnd,
	"pageup":     KeyPageUp,
	"pagedown":   KeyPageDown,
	"tab":        KeyTab,
	"backtab":    KeyBackTab,
	"delete":     KeyDelete,
	"insert":     KeyInsert,
	"esc":        KeyEscape,
	"escape":     KeyEscape,
}

var modifierNames = map[string]Modifiers{
	"control": ModControl,
	"ctrl":    ModControl,
	"shift":   ModShift,
	"alt":     ModAlt,
	"option":  ModAlt,
	"meta":    ModMeta,
	"command": ModMeta,
}

// ParseBinding parses "modifier+...+key". Shift on a lowercase letter
// is folded into the uppercase letter, which is what the terminal
// sends.
func ParseBinding(text string) (Event, error) {
	if text == "" {
		return Event{}, fmt.Errorf("empty key binding")
	}

	modifiers := ModNone
	remaining := text
	for {
		// "control++" binds the plus key: a trailing "+" after a
		// separator is the key itself.
		index := strings.IndexByte(remaining, '+')
		if index <= 0 || index == len(remaining)-1 {
			break
		}
		name := strings.ToLower(remaining[:index])
		modifier, ok := modifierNames[name]
		if !ok {
			return Event{}, fmt.Errorf("key binding %q: unknown modifier %q", text, name)
		}
		modifiers |= modifier
		remaining = remaining[index+1:]
	}

	if key, ok := namedKeys[strings.ToLower(remaining)]; ok {
		return Event{Key: key, Modifiers: modifiers}, nil
	}
	lower := strings.ToLower(remaining)
	if len(lower) > 1 && lower[0] == 'f' {
		if n, err := strconv.Atoi(lower[1:]); err == nil {
			if n < 0 || n > maxFunctionKey {
				return Event{}, fmt.Errorf("key binding %q: no function key F%d", text, n)
			}
			return Event{Key: Function(n), Modifiers: modifiers}, nil
		}
	}
	if lower == "space" {
		remaining = " "
	}

	if !ValidText(remaining) {
		return Event{}, fmt.Errorf("key binding %q: %q is not a key", text, remaining)
	}
	if modifiers.Has(ModShift) && len(remaining) == 1 && remaining[0] >= 'a' && remaining[0] <= 'z' {
		remaining = strings.ToUpper(remaining)
		modifiers &^= ModShift
	}
	return Char(remaining, modifiers), nil
}

// variants returns every event the terminal may send for a binding.
// Control and alt letters arrive in either case depending on the
// terminal, so both are registered.
func variants(event Event) []Event {
	out := []Event{event}
	if event.Key != KeyChar || len(event.Text) != 1 {
		return out
	}
	if !event.Modifiers.Has(ModControl) && !event.Modifiers.Has(ModAlt) {
		return out
	}
	c := event.Text[0]
	switch {
	case c >= 'a' && c <= 'z':
		out = append(out, Char(strings.ToUpper(event.Text), event.Modifiers))
	case c >= 'A' && c <= 'Z':
		out = append(out, Char(strings.ToLower(event.Text), event.Modifiers))
	}
	return out
}
