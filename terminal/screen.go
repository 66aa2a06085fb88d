// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"github.com/mattn/go-runewidth"
)

// position is a zero-based screen coordinate.
type position struct {
	row, column int
}

// screen is the cell grid and cursor. It knows nothing about markers;
// the Tracker sets the template flags and reads the cursor row.
type screen struct {
	rows, columns int
	cells         [][]Cell

	cursor position

	// pendingWrap is set after printing into the last column. The next
	// printable rune wraps first, as a VT100 does.
	pendingWrap bool

	saved position

	// template carries the attributes printed runes receive.
	template Cell

	// scrolled counts lines scrolled off the top since the Tracker
	// last looked, so it can keep its command row in place.
	scrolled int

	// dirty is set by anything that may have changed the cursor row's
	// contents or the cursor's place in it.
	dirty bool
}

func newScreen(rows, columns int) *screen {
	s := &screen{}
	s.resize(max(rows, 1), max(columns, 1))
	return s
}

func newRow(columns int) []Cell {
	return make([]Cell, columns)
}

// resize truncates or extends rows and columns. Rows are dropped from
// the top when shrinking below the cursor, so the cursor row survives.
func (s *screen) resize(rows, columns int) {
	rows, columns = max(rows, 1), max(columns, 1)
	if drop := s.cursor.row - (rows - 1); drop > 0 {
		s.cells = s.cells[drop:]
		s.cursor.row -= drop
		s.scrolled += drop
	}
	cells := make([][]Cell, rows)
	for i := range cells {
		row := newRow(columns)
		if i < len(s.cells) {
			copy(row, s.cells[i])
			if columns < len(s.cells[i]) && row[columns-1].Width == 2 {
				row[columns-1] = Cell{}
			}
		}
		cells[i] = row
	}
	s.cells = cells
	s.rows, s.columns = rows, columns
	s.cursor = s.clamp(s.cursor)
	s.saved = s.clamp(s.saved)
	s.pendingWrap = false
	s.dirty = true
}

func (s *screen) clamp(p position) position {
	return position{
		row:    min(max(p.row, 0), s.rows-1),
		column: min(max(p.column, 0), s.columns-1),
	}
}

func (s *screen) print(r rune) {
	width := runewidth.RuneWidth(r)
	if width == 0 {
		return
	}
	if width > s.columns {
		width = 1
	}
	if s.pendingWrap {
		s.carriageReturn()
		s.lineFeed()
	}
	if s.cursor.column+width > s.columns {
		s.cells[s.cursor.row][s.cursor.column] = Cell{}
		s.carriageReturn()
		s.lineFeed()
	}

	row := s.cells[s.cursor.row]
	s.clearWideAt(row, s.cursor.column)
	cell := s.template
	cell.Rune = r
	cell.Width = uint8(width)
	row[s.cursor.column] = cell
	if width == 2 {
		s.clearWideAt(row, s.cursor.column+1)
		spacer := s.template
		spacer.Flags |= WideSpacer
		row[s.cursor.column+1] = spacer
	}

	s.cursor.column += width
	if s.cursor.column >= s.columns {
		s.cursor.column = s.columns - 1
		s.pendingWrap = true
	}
	s.dirty = true
}

// clearWideAt blanks the other half of a wide rune about to be
// overwritten at column.
func (s *screen) clearWideAt(row []Cell, column int) {
	switch {
	case row[column].Width == 2 && column+1 < len(row):
		row[column+1] = Cell{}
	case row[column].Flags&WideSpacer != 0 && column > 0:
		row[column-1] = Cell{}
	}
}

func (s *screen) carriageReturn() {
	s.cursor.column = 0
	s.pendingWrap = false
	s.dirty = true
}

func (s *screen) lineFeed() {
	s.pendingWrap = false
	if s.cursor.row == s.rows-1 {
		s.scrollUp(1)
	} else {
		s.cursor.row++
	}
	s.dirty = true
}

func (s *screen) reverseIndex() {
	s.pendingWrap = false
	if s.cursor.row == 0 {
		s.insertLinesAt(0, 1)
	} else {
		s.cursor.row--
	}
	s.dirty = true
}

func (s *screen) backspace() {
	s.pendingWrap = false
	if s.cursor.column > 0 {
		s.cursor.column--
	}
	s.dirty = true
}

func (s *screen) tab() {
	next := (s.cursor.column/8 + 1) * 8
	s.cursor.column = min(next, s.columns-1)
	s.dirty = true
}

func (s *screen) scrollUp(n int) {
	n = min(n, s.rows)
	copy(s.cells, s.cells[n:])
	for i := s.rows - n; i < s.rows; i++ {
		s.cells[i] = newRow(s.columns)
	}
	s.scrolled += n
}

// moveTo places the cursor, clamped to the screen.
func (s *screen) moveTo(row, column int) {
	s.cursor = s.clamp(position{row: row, column: column})
	s.pendingWrap = false
	s.dirty = true
}

func (s *screen) moveBy(rows, columns int) {
	s.moveTo(s.cursor.row+rows, s.cursor.column+columns)
}

// eraseDisplay implements ED: 0 below, 1 above, 2 and 3 everything.
func (s *screen) eraseDisplay(mode int) {
	switch mode {
	case 0:
		s.eraseLine(0)
		for i := s.cursor.row + 1; i < s.rows; i++ {
			s.cells[i] = newRow(s.columns)
		}
	case 1:
		s.eraseLine(1)
		for i := 0; i < s.cursor.row; i++ {
			s.cells[i] = newRow(s.columns)
		}
	case 2, 3:
		for i := range s.cells {
			s.cells[i] = newRow(s.columns)
		}
	}
	s.dirty = true
}

// eraseLine implements EL: 0 to the right, 1 to the left, 2 the whole
// line, cursor column included in each case.
func (s *screen) eraseLine(mode int) {
	row := s.cells[s.cursor.row]
	from, to := 0, s.columns
	switch mode {
	case 0:
		from = s.cursor.column
	case 1:
		to = s.cursor.column + 1
	case 2:
	default:
		return
	}
	clear(row[from:to])
	s.pendingWrap = false
	s.dirty = true
}

// eraseCharacters implements ECH.
func (s *screen) eraseCharacters(n int) {
	row := s.cells[s.cursor.row]
	end := min(s.cursor.column+n, s.columns)
	clear(row[s.cursor.column:end])
	s.dirty = true
}

// deleteCharacters implements DCH: shift the rest of the row left.
func (s *screen) deleteCharacters(n int) {
	row := s.cells[s.cursor.row]
	n = min(n, s.columns-s.cursor.column)
	copy(row[s.cursor.column:], row[s.cursor.column+n:])
	clear(row[s.columns-n:])
	s.pendingWrap = false
	s.dirty = true
}

// insertCharacters implements ICH: shift the rest of the row right.
func (s *screen) insertCharacters(n int) {
	row := s.cells[s.cursor.row]
	n = min(n, s.columns-s.cursor.column)
	copy(row[s.cursor.column+n:], row[s.cursor.column:])
	clear(row[s.cursor.column : s.cursor.column+n])
	s.pendingWrap = false
	s.dirty = true
}

// insertLines implements IL at the cursor row.
func (s *screen) insertLines(n int) {
	s.insertLinesAt(s.cursor.row, n)
	s.cursor.column = 0
	s.dirty = true
}

func (s *screen) insertLinesAt(at, n int) {
	n = min(n, s.rows-at)
	copy(s.cells[at+n:], s.cells[at:s.rows-n])
	for i := at; i < at+n; i++ {
		s.cells[i] = newRow(s.columns)
	}
}

// deleteLines implements DL at the cursor row.
func (s *screen) deleteLines(n int) {
	at := s.cursor.row
	n = min(n, s.rows-at)
	copy(s.cells[at:], s.cells[at+n:])
	for i := s.rows - n; i < s.rows; i++ {
		s.cells[i] = newRow(s.columns)
	}
	s.cursor.column = 0
	s.dirty = true
}

func (s *screen) saveCursor() {
	s.saved = s.cursor
}

func (s *screen) restoreCursor() {
	s.moveTo(s.saved.row, s.saved.column)
}

// line returns the printable text of row, for tests and logs.
func (s *screen) line(row int) string {
	var runes []rune
	for _, cell := range s.cells[row] {
		switch {
		case cell.Flags&WideSpacer != 0:
		case cell.Rune == 0:
			runes = append(runes, ' ')
		default:
			runes = append(runes, cell.Rune)
		}
	}
	return string(runes)
}
