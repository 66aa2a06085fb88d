// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package shellhost

import (
	"github.com/bureau-foundation/interterm/keys"
	"github.com/bureau-foundation/interterm/protocol"
)

// FilterInput implements ptybridge.InputFilter. Each key the
// interceptor withholds is reported as an InterceptedKey hook instead
// of reaching the shell; bytes that decode to no key always pass.
func (h *Host) FilterInput(data []byte) []byte {
	if !h.interceptor.Active() {
		// Control-C and Control-D reset interception even when it is
		// already off, so nothing is lost by skipping decoding here.
		return data
	}

	var (
		passed  = make([]byte, 0, len(data))
		hooks   []*protocol.Hook
		context *protocol.ShellContext
	)
	for _, segment := range keys.DecodeAll(data) {
		if !segment.OK {
			passed = append(passed, segment.Raw...)
			continue
		}
		decision := h.interceptor.Intercept(segment.Event)
		if !decision.Withhold {
			passed = append(passed, segment.Raw...)
			continue
		}
		if context == nil {
			h.mu.Lock()
			context = h.shellContext(h.tracker.Context())
			h.mu.Unlock()
		}
		hooks = append(hooks, &protocol.Hook{InterceptedKey: &protocol.InterceptedKeyHook{
			Context: context,
			Action:  decision.Action,
			Key:     segment.Event.String(),
		}})
	}
	if len(hooks) > 0 {
		h.sendMu.Lock()
		for _, hook := range hooks {
			h.sender.Send(protocol.Hostbound{Hook: hook})
		}
		h.sendMu.Unlock()
	}
	return passed
}

// applyIntercept updates the interceptor from a companion command.
func (h *Host) applyIntercept(command *protocol.InterceptCommand) {
	switch {
	case command.SetInterceptAll != nil:
		h.interceptor.SetInterceptAll(true)
	case command.ClearIntercept != nil:
		h.interceptor.SetInterceptAll(false)
	case command.SetActionIntercepts != nil:
		intercepts := command.SetActionIntercepts
		actions := make([]keys.Action, 0, len(intercepts.Actions))
		for _, action := range intercepts.Actions {
			actions = append(actions, keys.Action{ID: action.ID, Bindings: action.Bindings})
		}
		if err := h.interceptor.SetActions(actions); err != nil {
			h.logger.Warn("skipped unparseable key bindings", "error", err)
		}
		h.interceptor.SetInterceptBound(intercepts.InterceptBound)
		h.interceptor.SetInterceptAll(intercepts.InterceptGlobal)
	}
}
