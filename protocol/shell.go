// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

// ShellContext describes the shell behind a session at the moment a
// hook was raised. The companion replaces its copy wholesale on every
// hook.
type ShellContext struct {
	PID       int32  `cbor:"pid,omitempty" json:"pid,omitempty"`
	TTY       string `cbor:"tty,omitempty" json:"tty,omitempty"`
	ShellPath string `cbor:"shell_path,omitempty" json:"shell_path,omitempty"`
	Hostname  string `cbor:"hostname,omitempty" json:"hostname,omitempty"`

	// CurrentWorkingDirectory is the last directory the shell reported.
	CurrentWorkingDirectory string `cbor:"cwd,omitempty" json:"cwd,omitempty"`

	SessionID string `cbor:"session_id,omitempty" json:"session_id,omitempty"`
}

// InterceptCommand changes which keys the session withholds from the
// shell. Exactly one field is set.
type InterceptCommand struct {
	SetInterceptAll     *struct{}         `cbor:"set_intercept_all,omitempty"`
	ClearIntercept      *struct{}         `cbor:"clear_intercept,omitempty"`
	SetActionIntercepts *ActionIntercepts `cbor:"set_action_intercepts,omitempty"`
}

// ActionIntercepts replaces the session's key bindings and sets both
// interception flags.
type ActionIntercepts struct {
	// InterceptBound withholds keys that match a binding.
	InterceptBound bool `cbor:"intercept_bound,omitempty"`

	// InterceptGlobal withholds every key.
	InterceptGlobal bool `cbor:"intercept_global,omitempty"`

	Actions []ActionBinding `cbor:"actions,omitempty"`
}

// ActionBinding names an action and the key bindings that trigger it,
// in "control+shift+r" syntax.
type ActionBinding struct {
	ID       string   `cbor:"id"`
	Bindings []string `cbor:"bindings,omitempty"`
}
