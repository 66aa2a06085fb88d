// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"strings"
	"unicode/utf16"
)

// skipped marks cells that never belong to the command line.
const skipped = InPrompt | InSuggestion | WideSpacer

// extract reads the command line out of one row with the cursor at
// column. Flagged cells are dropped. Blank cells become spaces only
// when a printable cell follows, so the text never ends in padding.
// The returned cursor counts UTF-16 units and is at most the text's
// UTF-16 length.
func extract(row []Cell, column int) (string, int) {
	var text strings.Builder
	units, padding := 0, 0
	cursor := -1

	for i, cell := range row {
		if i == column {
			cursor = units + padding
		}
		switch {
		case cell.Flags&skipped != 0:
		case cell.blank():
			padding++
		default:
			text.WriteString(strings.Repeat(" ", padding))
			units += padding
			padding = 0
			text.WriteRune(cell.Rune)
			units += utf16.RuneLen(cell.Rune)
		}
	}
	if cursor < 0 {
		cursor = units
	}
	return text.String(), min(cursor, units)
}
