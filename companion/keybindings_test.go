// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package companion

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseKeybindings(t *testing.T) {
	t.Parallel()
	actions, err := ParseKeybindings([]byte(`{
		// reverse search
		"history.search": ["control+r"],
		"menu.up": ["up", "control+p"], /* trailing comma below */
	}`))
	if err != nil {
		t.Fatalf("ParseKeybindings: %v", err)
	}
	if len(actions) != 2 || actions[0].ID != "history.search" || actions[1].ID != "menu.up" {
		t.Fatalf("actions = %+v", actions)
	}
	if len(actions[1].Bindings) != 2 || actions[1].Bindings[1] != "control+p" {
		t.Errorf("menu.up bindings = %v", actions[1].Bindings)
	}
}

func TestLoadKeybindingsMissingFile(t *testing.T) {
	t.Parallel()
	actions, err := LoadKeybindings(filepath.Join(t.TempDir(), "absent.jsonc"))
	if err != nil || actions != nil {
		t.Errorf("LoadKeybindings = %v, %v; want nothing", actions, err)
	}
}

func TestLoadKeybindingsInvalid(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "keybindings.jsonc")
	if err := os.WriteFile(path, []byte(`["not", "a", "map"]`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadKeybindings(path); err == nil {
		t.Error("expected an error for a non-object file")
	}
}
