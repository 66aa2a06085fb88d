// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"errors"
	"sync"
)

// Action binds an action identifier to its key bindings.
type Action struct {
	ID       string
	Bindings []string
}

// Decision is the interceptor's verdict on one key.
type Decision struct {
	// Withhold means the key must not reach the shell.
	Withhold bool

	// Action is the bound action, empty when the key is withheld only
	// because global interception is on.
	Action string
}

// Interceptor decides which keys the companion takes from the shell.
// Safe for concurrent use: the input loop reads it while protocol
// requests update it.
type Interceptor struct {
	mu             sync.Mutex
	interceptAll   bool
	interceptBound bool
	mappings       map[Event]string
}

// NewInterceptor returns an interceptor with no bindings and
// interception off.
func NewInterceptor() *Interceptor {
	return &Interceptor{mappings: make(map[Event]string)}
}

// SetInterceptAll switches global interception.
func (i *Interceptor) SetInterceptAll(on bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.interceptAll = on
}

// SetInterceptBound switches interception of bound keys.
func (i *Interceptor) SetInterceptBound(on bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.interceptBound = on
}

// SetActions replaces every binding. Unparseable bindings are skipped
// and reported together; the valid ones still apply.
func (i *Interceptor) SetActions(actions []Action) error {
	mappings := make(map[Event]string)
	var errs []error
	for _, action := range actions {
		for _, binding := range action.Bindings {
			event, err := ParseBinding(binding)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			for _, variant := range variants(event) {
				mappings[variant] = action.ID
			}
		}
	}

	i.mu.Lock()
	i.mappings = mappings
	i.mu.Unlock()
	return errors.Join(errs...)
}

// Reset turns off both interception flags. Bindings are kept.
func (i *Interceptor) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.interceptAll = false
	i.interceptBound = false
}

// Active reports whether any interception flag is on.
func (i *Interceptor) Active() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.interceptAll || i.interceptBound
}

// Intercept decides the fate of one key. Control-C and Control-D
// always reach the shell and reset interception. A withheld Escape
// also resets it, closing whatever the companion had open.
func (i *Interceptor) Intercept(event Event) Decision {
	if event.Modifiers == ModControl && (event.Text == "c" || event.Text == "d") && event.Key == KeyChar {
		i.Reset()
		return Decision{}
	}

	i.mu.Lock()
	action, bound := i.mappings[event]
	all := i.interceptAll
	matched := bound && (all || i.interceptBound)
	i.mu.Unlock()

	if !all && !matched {
		return Decision{}
	}
	if !matched {
		action = ""
	}
	if event.Key == KeyEscape && event.Modifiers == ModNone {
		i.Reset()
	}
	return Decision{Withhold: true, Action: action}
}
