// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"strconv"
	"unicode/utf8"
)

const escape = 0x1b

// Decode interprets input as one key press. ok is false for empty
// input, for escape sequences that name no key, and for sequences
// followed by further bytes (a burst of typing is not one key).
func Decode(input []byte) (Event, bool) {
	if len(input) == 0 {
		return Event{}, false
	}
	if input[0] != escape {
		return decodePlain(input), true
	}

	rest := input[1:]
	if len(rest) == 0 {
		return Event{Key: KeyEscape}, true
	}
	switch rest[0] {
	case escape:
		if len(rest) == 1 {
			return Event{Key: KeyEscape}, true
		}
		// ESC before a complete sequence is the alt prefix.
		event, ok := Decode(rest)
		if !ok {
			return Event{}, false
		}
		event.Modifiers |= ModAlt
		return event, true
	case '[':
		return decodeCSI(rest[1:])
	case 'O':
		return decodeSS3(rest[1:])
	}

	event := decodePlain(rest)
	event.Modifiers |= ModAlt
	return event, true
}

// decodePlain handles input that does not start with ESC.
func decodePlain(input []byte) Event {
	if len(input) == 1 {
		switch b := input[0]; {
		case b == 0x08:
			return Event{Key: KeyBackspace}
		case b == '\r':
			return Event{Key: KeyEnter}
		case b == 0x7f:
			return Event{Key: KeyDelete}
		case b == '\t':
			return Event{Key: KeyTab}
		case b == 0x00:
			return Char(" ", ModControl)
		case b >= 0x01 && b <= 0x1a:
			return Char(string(rune('a'+b-1)), ModControl)
		case b >= 0x1c && b <= 0x1f:
			return Char(string(rune('\\'+b-0x1c)), ModControl)
		}
	}
	return Char(string(input), ModNone)
}

// decodeCSI handles the bytes after "ESC [": the vt form
// "<n>[;<m>]~" and the xterm form "[<n>[;<m>]]<letter>".
func decodeCSI(seq []byte) (Event, bool) {
	if len(seq) == 0 {
		return Char("[", ModAlt), true
	}

	end := 0
	for end < len(seq) && (isDigit(seq[end]) || seq[end] == ';') {
		end++
	}
	if end != len(seq)-1 {
		// Missing final byte, private-mode prefix, or trailing data.
		return Event{}, false
	}
	params, ok := parseParams(seq[:end])
	if !ok {
		return Event{}, false
	}
	final := seq[end]

	if final == '~' {
		if len(params) == 0 || params[0] < 0 {
			return Event{}, false
		}
		key, ok := vtKey(params[0])
		if !ok {
			return Event{}, false
		}
		modifiers := ModNone
		if len(params) >= 2 {
			if modifiers, ok = modifiersFromParam(params[1]); !ok {
				return Event{}, false
			}
		}
		return Event{Key: key, Modifiers: modifiers}, true
	}

	key, ok := xtermKey(final)
	if !ok {
		return Event{}, false
	}
	modifiers := ModNone
	switch len(params) {
	case 0:
	case 1:
		// "ESC [ 5 A": a lone parameter is the modifier.
		modifiers, ok = modifiersFromParam(params[0])
	default:
		modifiers, ok = modifiersFromParam(params[1])
	}
	if !ok {
		return Event{}, false
	}
	return Event{Key: key, Modifiers: modifiers}, true
}

// decodeSS3 handles the bytes after "ESC O".
func decodeSS3(seq []byte) (Event, bool) {
	if len(seq) == 0 {
		return Char("O", ModAlt), true
	}
	if len(seq) != 1 {
		return Event{}, false
	}
	switch b := seq[0]; {
	case b == 'A':
		return Event{Key: KeyUp}, true
	case b == 'B':
		return Event{Key: KeyDown}, true
	case b == 'C':
		return Event{Key: KeyRight}, true
	case b == 'D':
		return Event{Key: KeyLeft}, true
	case b == 'F':
		return Event{Key: KeyEnd}, true
	case b == 'H':
		return Event{Key: KeyHome}, true
	case b == 'I':
		return Event{Key: KeyTab}, true
	case b == 'M':
		return Event{Key: KeyEnter}, true
	case b >= 'P' && b <= 'S':
		return Event{Key: Function(int(b-'P') + 1)}, true
	case b == 'X':
		return Char("=", ModNone), true
	case b >= 'j' && b <= 'y':
		// Keypad in application mode: j..y map onto "*+,-./0123456789".
		return Char(string(rune('*'+b-'j')), ModNone), true
	}
	return Event{}, false
}

// parseParams splits "1;5" into [1 5]. An empty field is -1.
func parseParams(raw []byte) ([]int, bool) {
	if len(raw) == 0 {
		return nil, true
	}
	var params []int
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i < len(raw) && raw[i] != ';' {
			continue
		}
		field := raw[start:i]
		start = i + 1
		if len(field) == 0 {
			params = append(params, -1)
			continue
		}
		value, err := strconv.Atoi(string(field))
		if err != nil {
			return nil, false
		}
		params = append(params, value)
	}
	return params, true
}

// modifiersFromParam decodes the n-1 bitmask. An absent (-1) or zero
// parameter means no modifiers.
func modifiersFromParam(n int) (Modifiers, bool) {
	if n <= 1 {
		return ModNone, true
	}
	mask := n - 1
	if mask > int(allModifiers) {
		return ModNone, false
	}
	return Modifiers(mask), true
}

// EncodeModifiers is the parameter an xterm-style sequence carries for
// m.
func EncodeModifiers(m Modifiers) int {
	return int(m) + 1
}

func vtKey(n int) (Key, bool) {
	switch {
	case n == 1 || n == 7:
		return KeyHome, true
	case n == 2:
		return KeyInsert, true
	case n == 3:
		return KeyDelete, true
	case n == 4 || n == 8:
		return KeyEnd, true
	case n == 5:
		return KeyPageUp, true
	case n == 6:
		return KeyPageDown, true
	case n >= 10 && n <= 15:
		return Function(n - 10), true
	case n >= 17 && n <= 21:
		return Function(n - 11), true
	case n >= 23 && n <= 26:
		return Function(n - 12), true
	case n >= 28 && n <= 29:
		return Function(n - 13), true
	case n >= 31 && n <= 34:
		return Function(n - 14), true
	}
	return KeyNone, false
}

func xtermKey(final byte) (Key, bool) {
	switch final {
	case 'A':
		return KeyUp, true
	case 'B':
		return KeyDown, true
	case 'C':
		return KeyRight, true
	case 'D':
		return KeyLeft, true
	case 'F':
		return KeyEnd, true
	case 'H':
		return KeyHome, true
	case 'P', 'Q', 'R', 'S':
		return Function(int(final-'P') + 1), true
	case 'Z':
		return KeyBackTab, true
	}
	return KeyNone, false
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// ValidText reports whether a Char event's text is a single UTF-8
// rune, the only shape a binding can name.
func ValidText(text string) bool {
	return utf8.RuneCountInString(text) == 1
}

// Segment is one key's worth of input and its decoding. OK is false
// when the bytes name no key; such segments are forwarded untouched.
type Segment struct {
	Raw   []byte
	Event Event
	OK    bool
}

// DecodeAll splits a chunk read from the terminal into successive
// keys. Escape sequences take the longest well-formed match; every
// other rune is its own key.
func DecodeAll(input []byte) []Segment {
	var segments []Segment
	for len(input) > 0 {
		n := segmentLength(input)
		raw := input[:n]
		event, ok := Decode(raw)
		segments = append(segments, Segment{Raw: raw, Event: event, OK: ok})
		input = input[n:]
	}
	return segments
}

// segmentLength returns the byte length of the key starting at
// input[0].
func segmentLength(input []byte) int {
	if input[0] != escape {
		_, size := utf8.DecodeRune(input)
		return size
	}
	if len(input) == 1 {
		return 1
	}
	switch input[1] {
	case escape:
		if len(input) == 2 {
			return 2
		}
		return 1 + segmentLength(input[1:])
	case '[':
		// Parameter and intermediate bytes run until a final byte in
		// 0x40..0x7e.
		for i := 2; i < len(input); i++ {
			if input[i] >= 0x40 && input[i] <= 0x7e {
				return i + 1
			}
		}
		return len(input)
	case 'O':
		if len(input) == 2 {
			return 2
		}
		return 3
	}
	_, size := utf8.DecodeRune(input[1:])
	return 1 + size
}
