// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package companion

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/interterm/protocol"
)

// LoadKeybindings reads a JSONC file mapping action ids to key
// bindings:
//
//	{
//	  // history search
//	  "history.search": ["control+r"],
//	  "menu.up": ["up", "control+p"],
//	}
//
// Actions are returned sorted by id. A missing file means no
// bindings.
func LoadKeybindings(path string) ([]protocol.ActionBinding, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading keybindings: %w", err)
	}
	return ParseKeybindings(data)
}

// ParseKeybindings parses the keybindings file format.
func ParseKeybindings(data []byte) ([]protocol.ActionBinding, error) {
	var mapping map[string][]string
	if err := json.Unmarshal(jsonc.ToJSON(data), &mapping); err != nil {
		return nil, fmt.Errorf("parsing keybindings: %w", err)
	}
	actions := make([]protocol.ActionBinding, 0, len(mapping))
	for id, bindings := range mapping {
		actions = append(actions, protocol.ActionBinding{ID: id, Bindings: bindings})
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i].ID < actions[j].ID })
	return actions, nil
}

// KeybindingsRequest installs actions in a session with both
// interception flags off; the UI turns interception on when it opens.
func KeybindingsRequest(actions []protocol.ActionBinding) protocol.Request {
	return protocol.Request{Intercept: &protocol.InterceptCommand{
		SetActionIntercepts: &protocol.ActionIntercepts{Actions: actions},
	}}
}
