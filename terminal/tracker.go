// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"log/slog"

	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/interterm/protocol"
)

const (
	maxParams = 32

	// maxOSCData bounds a single OSC payload. Markers are short; a
	// larger payload is some other program's business and is cut off.
	maxOSCData = 64 * 1024
)

// EditBuffer is the command line under the cursor. Cursor counts
// UTF-16 code units into Text; Row and Column are the screen cursor.
type EditBuffer struct {
	Text   string
	Cursor int
	Row    int
	Column int
}

// Tracker follows a shell's output through a terminal emulator, keeps
// the shell's state from its markers, and reports what the user is
// typing. A Tracker is not safe for concurrent use.
type Tracker struct {
	parser *ansi.Parser
	logger *slog.Logger

	primary   *screen
	alternate *screen
	active    *screen

	context protocol.ShellContext
	shell   string

	fishColor, zshColor           string
	fishSuggestion, zshSuggestion *Color

	// commandActive is set between NewCmd and PreExec: the shell is
	// at a prompt and the cursor row is a command line.
	commandActive bool
	commandRow    int
	preExec       bool

	promptCwd  string
	seenPrompt bool
	pending    *pendingCommand
	lastBuffer *EditBuffer
	events     []Event
}

type pendingCommand struct {
	command string
	context protocol.ShellContext
}

// New returns a tracker for a rows x columns terminal. base seeds the
// shell context until the shell reports its own values.
func New(rows, columns int, base protocol.ShellContext, logger *slog.Logger) *Tracker {
	t := &Tracker{
		parser:  ansi.NewParser(),
		logger:  logger,
		primary: newScreen(rows, columns),
		context: base,
	}
	t.active = t.primary
	t.parser.SetParamsSize(maxParams)
	t.parser.SetDataSize(maxOSCData)
	t.parser.SetHandler(ansi.Handler{
		Print:     func(r rune) { t.active.print(r) },
		Execute:   t.execute,
		HandleCsi: t.handleCsi,
		HandleEsc: t.handleEsc,
		HandleOsc: t.handleOsc,
	})
	return t
}

// Advance feeds shell output to the emulator and returns the events it
// raised, in the order the bytes produced them. An EditBuffer event, if
// any, comes last.
func (t *Tracker) Advance(data []byte) []Event {
	for _, b := range data {
		t.parser.Advance(b)
	}
	t.checkEditBuffer()
	events := t.events
	t.events = nil
	return events
}

// Resize changes the screen size. Content is truncated or padded;
// nothing is reflowed.
func (t *Tracker) Resize(rows, columns int) {
	t.syncScroll()
	t.primary.resize(rows, columns)
	if t.alternate != nil {
		t.alternate.resize(rows, columns)
	}
	t.syncScroll()
}

// EditBuffer extracts the command line from the cursor row. It reports
// false when the shell is not at a prompt, a full-screen program owns
// the alternate screen, or the cursor is above the prompt.
func (t *Tracker) EditBuffer() (EditBuffer, bool) {
	if !t.commandActive || t.active != t.primary {
		return EditBuffer{}, false
	}
	t.syncScroll()
	s := t.primary
	if s.cursor.row < t.commandRow {
		return EditBuffer{}, false
	}
	column := s.cursor.column
	if s.pendingWrap {
		column = s.columns
	}
	text, cursor := extract(s.cells[s.cursor.row], column)
	return EditBuffer{
		Text:   text,
		Cursor: cursor,
		Row:    s.cursor.row,
		Column: s.cursor.column,
	}, true
}

// Context returns the shell context as last reported by the shell.
func (t *Tracker) Context() protocol.ShellContext { return t.context }

// Shell returns the shell's name from its Shell marker.
func (t *Tracker) Shell() string { return t.shell }

// InPreExec reports whether a command is running.
func (t *Tracker) InPreExec() bool { return t.preExec }

// SuggestionColors returns the raw fish and zsh suggestion colors the
// shell reported.
func (t *Tracker) SuggestionColors() (fish, zsh string) {
	return t.fishColor, t.zshColor
}

// Line returns the text of a row of the visible screen.
func (t *Tracker) Line(row int) string {
	if row < 0 || row >= t.active.rows {
		return ""
	}
	return t.active.line(row)
}

// Cursor returns the zero-based screen cursor.
func (t *Tracker) Cursor() (row, column int) {
	return t.active.cursor.row, t.active.cursor.column
}

// syncScroll keeps commandRow on the same line of text as the primary
// screen scrolls.
func (t *Tracker) syncScroll() {
	if t.primary.scrolled == 0 {
		return
	}
	t.commandRow = max(t.commandRow-t.primary.scrolled, 0)
	t.primary.scrolled = 0
}

func (t *Tracker) checkEditBuffer() {
	if !t.active.dirty {
		return
	}
	t.active.dirty = false
	buffer, ok := t.EditBuffer()
	if !ok {
		return
	}
	if t.lastBuffer != nil && *t.lastBuffer == buffer {
		return
	}
	t.lastBuffer = &buffer
	t.emit(Event{Kind: EventEditBuffer, Context: t.context, Buffer: buffer})
}

func (t *Tracker) emit(event Event) {
	t.events = append(t.events, event)
}

func (t *Tracker) execute(b byte) {
	s := t.active
	switch b {
	case ansi.BS:
		s.backspace()
	case ansi.HT:
		s.tab()
	case ansi.LF, ansi.VT, ansi.FF:
		s.lineFeed()
	case ansi.CR:
		s.carriageReturn()
	}
}

func (t *Tracker) handleEsc(cmd ansi.Cmd) {
	if cmd.Intermediate() != 0 {
		return
	}
	s := t.active
	switch cmd.Final() {
	case '7':
		s.saveCursor()
	case '8':
		s.restoreCursor()
	case 'D':
		s.lineFeed()
	case 'E':
		s.carriageReturn()
		s.lineFeed()
	case 'M':
		s.reverseIndex()
	case 'c':
		s.eraseDisplay(2)
		s.moveTo(0, 0)
		s.template = Cell{}
	}
}

func (t *Tracker) handleCsi(cmd ansi.Cmd, params ansi.Params) {
	if cmd.Prefix() == '?' {
		t.handlePrivateMode(cmd.Final(), params)
		return
	}
	if cmd.Prefix() != 0 || cmd.Intermediate() != 0 {
		return
	}

	s := t.active
	switch cmd.Final() {
	case 'A':
		s.moveBy(-count(params), 0)
	case 'B', 'e':
		s.moveBy(count(params), 0)
	case 'C', 'a':
		s.moveBy(0, count(params))
	case 'D':
		s.moveBy(0, -count(params))
	case 'E':
		s.moveTo(s.cursor.row+count(params), 0)
	case 'F':
		s.moveTo(s.cursor.row-count(params), 0)
	case 'G', '`':
		s.moveTo(s.cursor.row, count(params)-1)
	case 'd':
		s.moveTo(count(params)-1, s.cursor.column)
	case 'H', 'f':
		s.moveTo(param(params, 0, 1)-1, param(params, 1, 1)-1)
	case 'J':
		s.eraseDisplay(param(params, 0, 0))
	case 'K':
		s.eraseLine(param(params, 0, 0))
	case 'X':
		s.eraseCharacters(count(params))
	case 'P':
		s.deleteCharacters(count(params))
	case '@':
		s.insertCharacters(count(params))
	case 'L':
		s.insertLines(count(params))
	case 'M':
		s.deleteLines(count(params))
	case 'S':
		s.scrollUp(count(params))
		s.dirty = true
	case 's':
		s.saveCursor()
	case 'u':
		s.restoreCursor()
	case 'm':
		t.selectGraphicRendition(params)
	}
}

// handlePrivateMode switches to and from the alternate screen. Other
// DEC modes do not affect the command line.
func (t *Tracker) handlePrivateMode(final byte, params ansi.Params) {
	if final != 'h' && final != 'l' {
		return
	}
	for i := range params {
		mode := params[i].Param(0)
		if mode != 47 && mode != 1047 && mode != 1049 {
			continue
		}
		if final == 'h' && t.alternate == nil {
			if mode == 1049 {
				t.primary.saveCursor()
			}
			t.alternate = newScreen(t.primary.rows, t.primary.columns)
			t.alternate.template = t.primary.template
			t.active = t.alternate
		} else if final == 'l' && t.alternate != nil {
			t.alternate = nil
			t.active = t.primary
			if mode == 1049 {
				t.primary.restoreCursor()
			}
			t.primary.dirty = true
		}
	}
}

func (t *Tracker) selectGraphicRendition(params ansi.Params) {
	template := &t.active.template
	if len(params) == 0 {
		template.Foreground, template.Background = Color{}, Color{}
	}
	for i := 0; i < len(params); i++ {
		code := params[i].Param(0)
		switch {
		case code == 0:
			template.Foreground, template.Background = Color{}, Color{}
		case code >= 30 && code <= 37:
			template.Foreground = Indexed(uint8(code - 30))
		case code >= 90 && code <= 97:
			template.Foreground = Indexed(uint8(code - 90 + 8))
		case code == 39:
			template.Foreground = Color{}
		case code >= 40 && code <= 47:
			template.Background = Indexed(uint8(code - 40))
		case code >= 100 && code <= 107:
			template.Background = Indexed(uint8(code - 100 + 8))
		case code == 49:
			template.Background = Color{}
		case code == 38 || code == 48:
			color, used := extendedColor(params[i+1:])
			i += used
			if code == 38 {
				template.Foreground = color
			} else {
				template.Background = color
			}
		}
	}
	t.updateSuggestionFlag()
}

// extendedColor reads the "5;n" or "2;r;g;b" that follows a 38 or 48
// and returns how many parameters it consumed.
func extendedColor(rest ansi.Params) (Color, int) {
	if len(rest) == 0 {
		return Color{}, 0
	}
	switch rest[0].Param(0) {
	case 5:
		if len(rest) >= 2 {
			return Indexed(uint8(rest[1].Param(0))), 2
		}
	case 2:
		if len(rest) >= 4 {
			return RGB(uint8(rest[1].Param(0)), uint8(rest[2].Param(0)), uint8(rest[3].Param(0))), 4
		}
	}
	return Color{}, len(rest)
}

// updateSuggestionFlag marks subsequent output as suggestion text
// while the foreground matches the current shell's suggestion color.
func (t *Tracker) updateSuggestionFlag() {
	template := &t.active.template
	var suggestion *Color
	switch t.shell {
	case "fish":
		suggestion = t.fishSuggestion
	case "zsh":
		suggestion = t.zshSuggestion
	}
	if suggestion != nil && template.Foreground == *suggestion {
		template.Flags |= InSuggestion
	} else {
		template.Flags &^= InSuggestion
	}
}

func param(params ansi.Params, i, def int) int {
	if i >= len(params) {
		return def
	}
	return params[i].Param(def)
}

// count reads a repeat count, where both absent and zero mean one.
func count(params ansi.Params) int {
	return max(param(params, 0, 1), 1)
}
