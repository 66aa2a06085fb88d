// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"strconv"
	"strings"
)

// Flags mark cells that are not part of the command line.
type Flags uint8

const (
	// InPrompt is set on cells printed between the StartPrompt and
	// EndPrompt markers.
	InPrompt Flags = 1 << iota

	// InSuggestion is set on cells printed in the shell's
	// autosuggestion color.
	InSuggestion

	// WideSpacer is the second column of a double-width rune.
	WideSpacer
)

// colorKind distinguishes the three ways SGR can name a color.
type colorKind uint8

const (
	colorDefault colorKind = iota
	colorIndexed
	colorRGB
)

// Color is a cell foreground or background. The zero value is the
// terminal default.
type Color struct {
	kind  colorKind
	value uint32
}

// Indexed returns palette color n. Colors 0-15 are the ANSI colors,
// whether the shell selected them with 30-37/90-97 or 38;5;n.
func Indexed(n uint8) Color {
	return Color{kind: colorIndexed, value: uint32(n)}
}

// RGB returns a 24-bit color.
func RGB(r, g, b uint8) Color {
	return Color{kind: colorRGB, value: uint32(r)<<16 | uint32(g)<<8 | uint32(b)}
}

// IsDefault reports whether c is the terminal default color.
func (c Color) IsDefault() bool { return c.kind == colorDefault }

func (c Color) String() string {
	switch c.kind {
	case colorIndexed:
		return strconv.Itoa(int(c.value))
	case colorRGB:
		return "#" + strconv.FormatUint(uint64(c.value)|1<<24, 16)[1:]
	}
	return "default"
}

// Cell is one column of one row of the screen.
type Cell struct {
	Rune       rune
	Width      uint8
	Flags      Flags
	Foreground Color
	Background Color
}

// blank reports whether the cell holds nothing printable. Erased cells
// have a zero rune; a typed space is also blank for buffer extraction.
func (c Cell) blank() bool {
	return c.Rune == 0 || c.Rune == ' '
}

var colorNames = map[string]uint8{
	"black": 0, "red": 1, "green": 2, "yellow": 3,
	"blue": 4, "magenta": 5, "cyan": 6, "white": 7,
	"brblack": 8, "brred": 9, "brgreen": 10, "bryellow": 11,
	"brblue": 12, "brmagenta": 13, "brcyan": 14, "brwhite": 15,
	"grey": 8, "gray": 8,
}

// ParseFishColor reads a fish_color_autosuggestion value such as
// "brblack", "555" or "#808080 --bold". The first non-option word is
// the color.
func ParseFishColor(value string) (Color, bool) {
	for _, word := range strings.Fields(value) {
		if strings.HasPrefix(word, "-") {
			continue
		}
		return parseColorWord(word)
	}
	return Color{}, false
}

// ParseZshColor reads a ZSH_AUTOSUGGEST_HIGHLIGHT_STYLE value such as
// "fg=8" or "fg=#808080,underline".
func ParseZshColor(value string) (Color, bool) {
	for _, part := range strings.Split(value, ",") {
		color, ok := strings.CutPrefix(strings.TrimSpace(part), "fg=")
		if !ok {
			continue
		}
		if n, err := strconv.ParseUint(color, 10, 8); err == nil {
			return Indexed(uint8(n)), true
		}
		return parseColorWord(color)
	}
	return Color{}, false
}

func parseColorWord(word string) (Color, bool) {
	word = strings.ToLower(word)
	if n, ok := colorNames[word]; ok {
		return Indexed(n), true
	}
	hex := strings.TrimPrefix(word, "#")
	switch len(hex) {
	case 3:
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	case 6:
	default:
		return Color{}, false
	}
	value, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Color{}, false
	}
	return RGB(uint8(value>>16), uint8(value>>8), uint8(value)), true
}
