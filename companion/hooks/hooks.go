// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package hooks dispatches shell hooks received by the companion.
//
// A [Handler] has one method per hook kind. [Dispatch] routes a hook
// to the matching method after the connection has authenticated it
// and replaced the session's shell context. A handler may answer with
// at most one request for the session.
package hooks

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/interterm/protocol"
	"github.com/bureau-foundation/interterm/session"
)

// Handler reacts to hooks. A non-nil returned request is sent to the
// session that raised the hook.
type Handler interface {
	EditBuffer(ctx context.Context, s *session.Session, hook *protocol.EditBufferHook) (*protocol.Request, error)
	Prompt(ctx context.Context, s *session.Session, hook *protocol.PromptHook) (*protocol.Request, error)
	PreExec(ctx context.Context, s *session.Session, hook *protocol.PreExecHook) (*protocol.Request, error)
	PostExec(ctx context.Context, s *session.Session, hook *protocol.PostExecHook) (*protocol.Request, error)
	InterceptedKey(ctx context.Context, s *session.Session, hook *protocol.InterceptedKeyHook) (*protocol.Request, error)
}

// Dispatch calls the handler method for hook's variant.
func Dispatch(ctx context.Context, handler Handler, s *session.Session, hook *protocol.Hook) (*protocol.Request, error) {
	switch {
	case hook.EditBuffer != nil:
		return handler.EditBuffer(ctx, s, hook.EditBuffer)
	case hook.Prompt != nil:
		return handler.Prompt(ctx, s, hook.Prompt)
	case hook.PreExec != nil:
		return handler.PreExec(ctx, s, hook.PreExec)
	case hook.PostExec != nil:
		return handler.PostExec(ctx, s, hook.PostExec)
	case hook.InterceptedKey != nil:
		return handler.InterceptedKey(ctx, s, hook.InterceptedKey)
	}
	return nil, fmt.Errorf("hook has no variant")
}
