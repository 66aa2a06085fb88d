// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package terminal

import "testing"

func TestParseFishColor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		value  string
		want   Color
		wantOK bool
	}{
		{"brblack", Indexed(8), true},
		{"BrBlack", Indexed(8), true},
		{"red", Indexed(1), true},
		{"555", RGB(0x55, 0x55, 0x55), true},
		{"#808080", RGB(0x80, 0x80, 0x80), true},
		{"--bold 808080", RGB(0x80, 0x80, 0x80), true},
		{"normal", Color{}, false},
		{"", Color{}, false},
		{"12345", Color{}, false},
	}
	for _, test := range tests {
		got, ok := ParseFishColor(test.value)
		if got != test.want || ok != test.wantOK {
			t.Errorf("ParseFishColor(%q) = %v, %v; want %v, %v", test.value, got, ok, test.want, test.wantOK)
		}
	}
}

func TestParseZshColor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		value  string
		want   Color
		wantOK bool
	}{
		{"fg=8", Indexed(8), true},
		{"fg=244", Indexed(244), true},
		{"fg=#ff00ff,underline", RGB(0xff, 0, 0xff), true},
		{"bold,fg=cyan", Indexed(6), true},
		{"bg=8", Color{}, false},
		{"", Color{}, false},
	}
	for _, test := range tests {
		got, ok := ParseZshColor(test.value)
		if got != test.want || ok != test.wantOK {
			t.Errorf("ParseZshColor(%q) = %v, %v; want %v, %v", test.value, got, ok, test.want, test.wantOK)
		}
	}
}

func TestColorString(t *testing.T) {
	t.Parallel()
	for _, test := range []struct {
		color Color
		want  string
	}{
		{Color{}, "default"},
		{Indexed(8), "8"},
		{RGB(0x08, 0x80, 0xff), "#0880ff"},
	} {
		if got := test.color.String(); got != test.want {
			t.Errorf("String() = %q, want %q", got, test.want)
		}
	}
}
