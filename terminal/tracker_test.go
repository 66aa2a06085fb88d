// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"math/rand/v2"
	"slices"
	"strings"
	"testing"
	"unicode/utf16"

	"github.com/bureau-foundation/interterm/lib/logging"
	"github.com/bureau-foundation/interterm/protocol"
)

func newTracker(rows, columns int) *Tracker {
	return New(rows, columns, protocol.ShellContext{SessionID: "s1"}, logging.Discard().Logger)
}

func marker(text string) string {
	return "\x1b]697;" + text + "\x07"
}

// prompt is what a shell integration prints at the start of a prompt.
func prompt(text string) string {
	return marker("NewCmd") + marker("StartPrompt") + text + marker("EndPrompt")
}

func kinds(events []Event) []EventKind {
	var result []EventKind
	for _, event := range events {
		result = append(result, event.Kind)
	}
	return result
}

func requireKinds(t *testing.T, events []Event, want ...EventKind) {
	t.Helper()
	if got := kinds(events); !slices.Equal(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestPromptCellsAreNotPartOfTheBuffer(t *testing.T) {
	t.Parallel()
	tracker := newTracker(24, 80)
	events := tracker.Advance([]byte(prompt("abc") + "de"))
	requireKinds(t, events, EventPrompt, EventEditBuffer)

	buffer := events[1].Buffer
	if buffer.Text != "de" || buffer.Cursor != 2 {
		t.Errorf("buffer = (%q, %d), want (\"de\", 2)", buffer.Text, buffer.Cursor)
	}
	if buffer.Row != 0 || buffer.Column != 5 {
		t.Errorf("terminal cursor = (%d, %d), want (0, 5)", buffer.Row, buffer.Column)
	}
}

func TestEditBufferOnlyReportedOnChange(t *testing.T) {
	t.Parallel()
	tracker := newTracker(24, 80)
	tracker.Advance([]byte(prompt("$ ") + "ls"))

	// Erasing already-empty cells leaves the buffer as it was.
	requireKinds(t, tracker.Advance([]byte("\x1b[K")))

	events := tracker.Advance([]byte("\x08\x1b[K"))
	requireKinds(t, events, EventEditBuffer)
	if events[0].Buffer.Text != "l" || events[0].Buffer.Cursor != 1 {
		t.Errorf("buffer = %+v, want l at 1", events[0].Buffer)
	}
}

func TestEditBufferBeforeFirstPrompt(t *testing.T) {
	t.Parallel()
	tracker := newTracker(24, 80)
	requireKinds(t, tracker.Advance([]byte("Last login: today\r\n")))
	if _, ok := tracker.EditBuffer(); ok {
		t.Error("EditBuffer reported a command line before any prompt")
	}
}

func TestCommandLifecycle(t *testing.T) {
	t.Parallel()
	tracker := newTracker(24, 80)

	events := tracker.Advance([]byte(marker("Dir=/home/user") + prompt("$ ")))
	requireKinds(t, events, EventPrompt, EventEditBuffer)
	if events[0].DirectoryChanged {
		t.Error("first prompt reported a directory change")
	}
	if events[1].Buffer.Text != "" || events[1].Buffer.Cursor != 0 {
		t.Errorf("empty prompt buffer = %+v", events[1].Buffer)
	}

	events = tracker.Advance([]byte("ls -la"))
	requireKinds(t, events, EventEditBuffer)
	if events[0].Buffer.Text != "ls -la" {
		t.Errorf("buffer text = %q", events[0].Buffer.Text)
	}

	events = tracker.Advance([]byte("\r\n" + marker("PreExec") + "total 0\r\n"))
	requireKinds(t, events, EventPreExec)
	if events[0].Command != "ls -la" {
		t.Errorf("PreExec command = %q, want %q", events[0].Command, "ls -la")
	}
	if !tracker.InPreExec() {
		t.Error("InPreExec = false while the command runs")
	}
	if _, ok := tracker.EditBuffer(); ok {
		t.Error("EditBuffer reported a command line while a command runs")
	}

	events = tracker.Advance([]byte(marker("ExitCode=2") + marker("Dir=/tmp") + prompt("$ ")))
	requireKinds(t, events, EventPostExec, EventPrompt, EventEditBuffer)
	postExec := events[0]
	if postExec.Command != "ls -la" || postExec.ExitCode == nil || *postExec.ExitCode != 2 {
		t.Errorf("PostExec = %q exit %v", postExec.Command, postExec.ExitCode)
	}
	if postExec.Context.CurrentWorkingDirectory != "/home/user" {
		t.Errorf("PostExec cwd = %q, want the directory the command started in", postExec.Context.CurrentWorkingDirectory)
	}
	if !events[1].DirectoryChanged {
		t.Error("prompt after cd did not report a directory change")
	}
	if events[1].Context.CurrentWorkingDirectory != "/tmp" {
		t.Errorf("prompt cwd = %q", events[1].Context.CurrentWorkingDirectory)
	}
	if tracker.InPreExec() {
		t.Error("InPreExec still set at the next prompt")
	}
}

func TestPostExecWithoutExitCode(t *testing.T) {
	t.Parallel()
	tracker := newTracker(24, 80)
	tracker.Advance([]byte(prompt("$ ") + "true"))
	tracker.Advance([]byte("\r\n" + marker("PreExec")))

	events := tracker.Advance([]byte(prompt("$ ")))
	requireKinds(t, events, EventPostExec, EventPrompt, EventEditBuffer)
	if events[0].ExitCode != nil {
		t.Errorf("ExitCode = %d, want nil", *events[0].ExitCode)
	}
	if events[0].Command != "true" {
		t.Errorf("Command = %q", events[0].Command)
	}
}

func TestExitCodeWithoutCommandIsIgnored(t *testing.T) {
	t.Parallel()
	tracker := newTracker(24, 80)
	requireKinds(t, tracker.Advance([]byte(marker("ExitCode=0"))))
}

func TestContextMarkers(t *testing.T) {
	t.Parallel()
	tracker := newTracker(24, 80)
	events := tracker.Advance([]byte(
		marker("PID=4242") +
			marker("TTY=/dev/pts/3") +
			marker("Hostname=box") +
			marker("ShellPath=/bin/zsh") +
			marker("Shell=zsh") +
			marker("SessionId=s2") +
			marker("PID=bogus") +
			marker("Log=debug")))
	requireKinds(t, events, EventLogLevel)
	if events[0].LogLevel != "debug" {
		t.Errorf("LogLevel = %q", events[0].LogLevel)
	}

	want := protocol.ShellContext{
		PID:       4242,
		TTY:       "/dev/pts/3",
		ShellPath: "/bin/zsh",
		Hostname:  "box",
		SessionID: "s2",
	}
	if got := tracker.Context(); got != want {
		t.Errorf("Context = %+v, want %+v", got, want)
	}
	if tracker.Shell() != "zsh" {
		t.Errorf("Shell = %q", tracker.Shell())
	}
}

func TestMarkerTerminatedByST(t *testing.T) {
	t.Parallel()
	tracker := newTracker(24, 80)
	tracker.Advance([]byte("\x1b]697;Dir=/srv\x1b\\"))
	if cwd := tracker.Context().CurrentWorkingDirectory; cwd != "/srv" {
		t.Errorf("cwd = %q, want /srv", cwd)
	}
}

func TestSuggestionCellsAreNotPartOfTheBuffer(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		markers string
		color   string
		want    string
	}{
		{
			name:    "fish named color",
			markers: marker("Shell=fish") + marker("FishSuggestionColor=brblack"),
			color:   "\x1b[90m",
			want:    "git",
		},
		{
			name:    "fish hex color",
			markers: marker("Shell=fish") + marker("FishSuggestionColor=555"),
			color:   "\x1b[38;2;85;85;85m",
			want:    "git",
		},
		{
			name:    "zsh palette color",
			markers: marker("Shell=zsh") + marker("ZshAutosuggestionColor=fg=8"),
			color:   "\x1b[38;5;8m",
			want:    "git",
		},
		{
			name:    "color for another shell",
			markers: marker("Shell=bash") + marker("ZshAutosuggestionColor=fg=8"),
			color:   "\x1b[38;5;8m",
			want:    "gitcommit",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			tracker := newTracker(24, 80)
			tracker.Advance([]byte(test.markers + prompt("> ")))
			tracker.Advance([]byte("git" + test.color + "commit" + "\x1b[39m" + "\x1b[6D"))

			buffer, ok := tracker.EditBuffer()
			if !ok {
				t.Fatal("no edit buffer at a prompt")
			}
			if buffer.Text != test.want || buffer.Cursor != 3 {
				t.Errorf("buffer = (%q, %d), want (%q, 3)", buffer.Text, buffer.Cursor, test.want)
			}
		})
	}
}

func TestAlternateScreenHidesTheBuffer(t *testing.T) {
	t.Parallel()
	tracker := newTracker(24, 80)
	tracker.Advance([]byte(prompt("$ ") + "vim"))

	requireKinds(t, tracker.Advance([]byte("\x1b[?1049h\x1b[2J\x1b[Hediting")))
	if _, ok := tracker.EditBuffer(); ok {
		t.Error("EditBuffer reported a command line on the alternate screen")
	}
	if line := strings.TrimRight(tracker.Line(0), " "); line != "editing" {
		t.Errorf("alternate screen line 0 = %q", line)
	}

	requireKinds(t, tracker.Advance([]byte("\x1b[?1049l")))
	buffer, ok := tracker.EditBuffer()
	if !ok || buffer.Text != "vim" || buffer.Cursor != 3 {
		t.Errorf("buffer after leaving the alternate screen = %+v, %v", buffer, ok)
	}
}

func TestPromptRowFollowsScrolling(t *testing.T) {
	t.Parallel()
	tracker := newTracker(2, 5)
	tracker.Advance([]byte("\r\n" + prompt("") + "abcdefg"))

	buffer, ok := tracker.EditBuffer()
	if !ok {
		t.Fatal("no edit buffer after the command line wrapped")
	}
	if buffer.Text != "fg" || buffer.Cursor != 2 || buffer.Row != 1 {
		t.Errorf("buffer = %+v, want fg at 2 on row 1", buffer)
	}
	if line := tracker.Line(0); line != "abcde" {
		t.Errorf("row 0 = %q, want abcde", line)
	}
}

func TestScreenOperations(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		input  string
		row    int
		want   string
		cursor [2]int
	}{
		{"print", "hello", 0, "hello", [2]int{0, 5}},
		{"backspace overwrite", "ab\bc", 0, "ac", [2]int{0, 2}},
		{"erase to end of line", "hello\x1b[3D\x1b[K", 0, "he", [2]int{0, 2}},
		{"erase whole line", "hello\x1b[2K", 0, "", [2]int{0, 5}},
		{"delete characters", "hello\r\x1b[2P", 0, "llo", [2]int{0, 0}},
		{"insert characters", "hello\r\x1b[2@", 0, "  hello", [2]int{0, 0}},
		{"erase characters", "hello\r\x1b[3X", 0, "   lo", [2]int{0, 0}},
		{"cursor position", "\x1b[2;3Hx", 1, "  x", [2]int{1, 3}},
		{"column absolute", "abcdef\x1b[2GZ", 0, "aZcdef", [2]int{0, 2}},
		{"erase display", "abc\r\ndef\x1b[2J", 0, "", [2]int{1, 3}},
		{"wide runes", "世界", 0, "世界", [2]int{0, 4}},
		{"overwrite half of a wide rune", "世\bx", 0, " x", [2]int{0, 2}},
		{"insert line", "one\r\ntwo\x1b[A\x1b[L", 1, "one", [2]int{0, 0}},
		{"delete line", "one\r\ntwo\x1b[A\x1b[M", 0, "two", [2]int{0, 0}},
		{"save and restore cursor", "ab\x1b7cd\x1b8X", 0, "abXd", [2]int{0, 3}},
		{"tab", "a\tb", 0, "a       b", [2]int{0, 9}},
		{"combining mark is dropped", "e\u0301x", 0, "ex", [2]int{0, 2}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			tracker := newTracker(4, 20)
			tracker.Advance([]byte(test.input))
			if got := strings.TrimRight(tracker.Line(test.row), " "); got != test.want {
				t.Errorf("row %d = %q, want %q", test.row, got, test.want)
			}
			row, column := tracker.Cursor()
			if row != test.cursor[0] || column != test.cursor[1] {
				t.Errorf("cursor = (%d, %d), want (%d, %d)", row, column, test.cursor[0], test.cursor[1])
			}
		})
	}
}

func TestWrapAtLastColumn(t *testing.T) {
	t.Parallel()
	tracker := newTracker(3, 3)
	tracker.Advance([]byte(prompt("") + "abc"))
	buffer, ok := tracker.EditBuffer()
	if !ok || buffer.Text != "abc" || buffer.Cursor != 3 {
		t.Fatalf("buffer with pending wrap = %+v, %v", buffer, ok)
	}

	tracker.Advance([]byte("d"))
	if tracker.Line(1) != "d  " {
		t.Errorf("row 1 = %q, want the wrapped rune", tracker.Line(1))
	}
}

func TestResize(t *testing.T) {
	t.Parallel()
	tracker := newTracker(5, 10)
	tracker.Advance([]byte("hello"))

	tracker.Resize(5, 3)
	if got := tracker.Line(0); got != "hel" {
		t.Errorf("after shrink row 0 = %q, want hel", got)
	}
	if _, column := tracker.Cursor(); column != 2 {
		t.Errorf("cursor column = %d, want 2", column)
	}

	tracker.Resize(5, 10)
	if got := strings.TrimRight(tracker.Line(0), " "); got != "hel" {
		t.Errorf("after grow row 0 = %q, want hel", got)
	}

	tracker.Advance([]byte("\r\n\r\n\r\nlast"))
	tracker.Resize(2, 10)
	row, _ := tracker.Cursor()
	if row != 1 || strings.TrimRight(tracker.Line(1), " ") != "last" {
		t.Errorf("after dropping rows cursor row %d, row 1 %q", row, tracker.Line(1))
	}
}

// TestEditBufferCursorWithinText feeds random editing traffic and
// checks the cursor bound and idempotence after every chunk.
func TestEditBufferCursorWithinText(t *testing.T) {
	t.Parallel()
	fragments := []string{
		"a", "xyz", " ", "世", "😀", "é",
		"\b", "\r", "\r\n", "\t",
		"\x1b[D", "\x1b[3C", "\x1b[K", "\x1b[1K", "\x1b[2P", "\x1b[3@", "\x1b[2X",
		"\x1b[90m", "\x1b[0m", "\x1b[H", "\x1b[5;40H", "\x1b[2J", "\x1b[L", "\x1b[M",
		marker("StartPrompt"), marker("EndPrompt"),
		prompt("$ "),
	}
	random := rand.New(rand.NewPCG(1, 2))
	tracker := newTracker(6, 16)
	tracker.Advance([]byte(marker("Shell=fish") + marker("FishSuggestionColor=brblack") + prompt("> ")))

	for step := range 2000 {
		var chunk strings.Builder
		for range 1 + random.IntN(4) {
			chunk.WriteString(fragments[random.IntN(len(fragments))])
		}
		tracker.Advance([]byte(chunk.String()))

		buffer, ok := tracker.EditBuffer()
		if !ok {
			continue
		}
		length := len(utf16.Encode([]rune(buffer.Text)))
		if buffer.Cursor < 0 || buffer.Cursor > length {
			t.Fatalf("step %d: cursor %d outside [0, %d] for %q", step, buffer.Cursor, length, buffer.Text)
		}
		again, _ := tracker.EditBuffer()
		if again != buffer {
			t.Fatalf("step %d: repeated extraction %+v, then %+v", step, buffer, again)
		}
	}
}
