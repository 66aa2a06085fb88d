// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/bureau-foundation/interterm/protocol"
)

// MarkerOSC is the OSC number shell integrations use for markers.
const MarkerOSC = 697

// EventKind identifies what a tracker Event reports.
type EventKind int

const (
	// EventPrompt: the shell drew a new prompt.
	EventPrompt EventKind = iota + 1

	// EventPreExec: the user submitted a command.
	EventPreExec

	// EventPostExec: the submitted command finished.
	EventPostExec

	// EventEditBuffer: the command line changed.
	EventEditBuffer

	// EventLogLevel: the shell asked for a different log level.
	EventLogLevel
)

func (k EventKind) String() string {
	switch k {
	case EventPrompt:
		return "prompt"
	case EventPreExec:
		return "preexec"
	case EventPostExec:
		return "postexec"
	case EventEditBuffer:
		return "edit_buffer"
	case EventLogLevel:
		return "log_level"
	}
	return "unknown(" + strconv.Itoa(int(k)) + ")"
}

// Event is something the shell did, as seen through its output.
// Context is a copy of the shell context when the event was raised;
// for EventPostExec it is the context the command started in.
type Event struct {
	Kind    EventKind
	Context protocol.ShellContext

	// DirectoryChanged (EventPrompt) is set when the working directory
	// differs from the one at the previous prompt.
	DirectoryChanged bool

	// Command (EventPreExec, EventPostExec) is the submitted command
	// line, trimmed.
	Command string

	// ExitCode (EventPostExec) is nil when the shell never reported one.
	ExitCode *int32

	// Buffer (EventEditBuffer) is the new command line.
	Buffer EditBuffer

	// LogLevel (EventLogLevel) is the level name the shell sent.
	LogLevel string
}

func (t *Tracker) handleOsc(command int, data []byte) {
	if command != MarkerOSC {
		return
	}
	data = bytes.TrimPrefix(data, []byte("697;"))
	key, value, _ := strings.Cut(string(data), "=")
	t.marker(key, value)
}

// marker applies one shell-integration marker.
func (t *Tracker) marker(key, value string) {
	t.logger.Debug("shell marker", "key", key, "value", value)
	template := &t.active.template

	switch key {
	case "NewCmd":
		t.newCommand()
	case "StartPrompt":
		template.Flags |= InPrompt
	case "EndPrompt":
		template.Flags &^= InPrompt
	case "PreExec":
		t.startCommand()
	case "ExitCode":
		t.finishCommand(value)
	case "Dir":
		t.context.CurrentWorkingDirectory = value
	case "Shell":
		t.shell = strings.TrimSpace(value)
		t.updateSuggestionFlag()
	case "ShellPath":
		t.context.ShellPath = strings.TrimSpace(value)
	case "TTY":
		t.context.TTY = strings.TrimSpace(value)
	case "PID":
		pid, err := strconv.ParseInt(strings.TrimSpace(value), 10, 32)
		if err != nil {
			t.logger.Warn("ignoring malformed PID marker", "value", value)
			return
		}
		t.context.PID = int32(pid)
	case "SessionId":
		t.context.SessionID = strings.TrimSpace(value)
	case "Hostname":
		t.context.Hostname = strings.TrimSpace(value)
	case "Log":
		t.emit(Event{Kind: EventLogLevel, Context: t.context, LogLevel: strings.TrimSpace(value)})
	case "FishSuggestionColor":
		t.fishColor = value
		t.fishSuggestion = parsedColor(ParseFishColor(value))
		t.updateSuggestionFlag()
	case "ZshAutosuggestionColor":
		t.zshColor = value
		t.zshSuggestion = parsedColor(ParseZshColor(value))
		t.updateSuggestionFlag()
	default:
		t.logger.Debug("ignoring unknown shell marker", "key", key)
	}
}

func parsedColor(color Color, ok bool) *Color {
	if !ok {
		return nil
	}
	return &color
}

// newCommand starts a prompt. A command still pending here never got
// an ExitCode marker; it is finished without one.
func (t *Tracker) newCommand() {
	if t.pending != nil {
		t.emitPostExec(nil)
	}
	t.syncScroll()
	t.commandActive = true
	t.preExec = false
	t.commandRow = t.primary.cursor.row
	t.lastBuffer = nil

	cwd := t.context.CurrentWorkingDirectory
	changed := t.seenPrompt && cwd != t.promptCwd
	t.seenPrompt = true
	t.promptCwd = cwd
	t.emit(Event{Kind: EventPrompt, Context: t.context, DirectoryChanged: changed})
}

// startCommand captures the command line the user submitted.
func (t *Tracker) startCommand() {
	command := t.submittedCommand()
	t.active.template.Flags &^= InPrompt
	t.commandActive = false
	t.preExec = true
	t.pending = &pendingCommand{command: command, context: t.context}
	t.emit(Event{Kind: EventPreExec, Context: t.context, Command: command})
}

func (t *Tracker) finishCommand(value string) {
	if t.pending == nil {
		return
	}
	code, err := strconv.ParseInt(strings.TrimSpace(value), 10, 32)
	if err != nil {
		t.logger.Warn("ignoring malformed ExitCode marker", "value", value)
		t.emitPostExec(nil)
		return
	}
	exitCode := int32(code)
	t.emitPostExec(&exitCode)
}

func (t *Tracker) emitPostExec(exitCode *int32) {
	t.emit(Event{
		Kind:     EventPostExec,
		Context:  t.pending.context,
		Command:  t.pending.command,
		ExitCode: exitCode,
	})
	t.pending = nil
	t.preExec = false
}

// submittedCommand reads the command line at PreExec. Shells usually
// move to a fresh line before PreExec, so the nearest non-empty row
// between the cursor and the prompt is taken.
func (t *Tracker) submittedCommand() string {
	if !t.commandActive || t.active != t.primary {
		return ""
	}
	t.syncScroll()
	s := t.primary
	for row := s.cursor.row; row >= t.commandRow; row-- {
		text, _ := extract(s.cells[row], s.columns)
		if text = strings.TrimSpace(text); text != "" {
			return text
		}
	}
	return ""
}
