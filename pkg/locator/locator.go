// SPDX-License-Identifier: Apache-2.0
// Package locator resolves collaborator names to typed handles.
//
// A handle carries its own readiness state, so a caller can tell the
// difference between "this name is not registered yet", "the process exists
// but has not finished initializing", and "the connection died". The
// defensive layer in pkg/resilience consumes these states and never blocks
// on a name whose owner is not ready.
package locator

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Readiness is the lifecycle state of a collaborator behind a handle.
type Readiness int

const (
	// NotStarted means the collaborator has not begun initialization.
	NotStarted Readiness = iota

	// Initializing means the collaborator exists but is not ready to serve.
	Initializing

	// Ready means the collaborator accepts calls.
	Ready

	// Crashed means the collaborator terminated abnormally.
	Crashed
)

// String implements fmt.Stringer.
func (r Readiness) String() string {
	switch r {
	case NotStarted:
		return "not_started"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Crashed:
		return "crashed"
	default:
		return fmt.Sprintf("readiness(%d)", int(r))
	}
}

// ExitError reports that the callee terminated during a call. The defensive
// layer classifies it separately from ordinary call faults.
type ExitError struct {
	Reason string
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	return "callee exited: " + e.Reason
}

// Handle is a typed handle to a collaborator.
type Handle interface {
	// Name returns the registered collaborator name.
	Name() string

	// Readiness reports the collaborator's current lifecycle state.
	Readiness() Readiness

	// Alive reports whether the underlying process or connection is up.
	// A handle may be Ready and later stop being Alive.
	Alive() bool

	// Call performs a synchronous request against the collaborator.
	Call(ctx context.Context, msg any) (any, error)

	// Cast delivers msg without waiting for the collaborator to act on it.
	Cast(msg any) error
}

// Locator resolves a collaborator name to a handle.
type Locator interface {
	Resolve(name string) (Handle, bool)
}

// Table is the in-process Locator implementation. Registration replaces any
// previous handle under the same name.
type Table struct {
	mu      sync.RWMutex
	handles map[string]Handle
}

// NewTable creates an empty locator table.
func NewTable() *Table {
	return &Table{handles: make(map[string]Handle)}
}

// Register adds or replaces a handle.
func (t *Table) Register(h Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handles[h.Name()] = h
}

// Deregister removes a handle by name.
func (t *Table) Deregister(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.handles, name)
}

// Resolve implements Locator.
func (t *Table) Resolve(name string) (Handle, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.handles[name]
	return h, ok
}

// Names returns the registered collaborator names, sorted.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.handles))
	for name := range t.handles {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// CallFunc is the synchronous call implementation of a FuncHandle.
type CallFunc func(ctx context.Context, msg any) (any, error)

// HandleOption customizes a FuncHandle.
type HandleOption func(*FuncHandle)

// WithReadiness supplies a readiness probe. Without one the handle reports
// Ready permanently.
func WithReadiness(fn func() Readiness) HandleOption {
	return func(h *FuncHandle) { h.readiness = fn }
}

// WithAlive supplies a liveness probe. Without one the handle reports alive
// permanently.
func WithAlive(fn func() bool) HandleOption {
	return func(h *FuncHandle) { h.alive = fn }
}

// WithCast supplies a fire-and-forget implementation. Without one Cast
// returns an error.
func WithCast(fn func(msg any) error) HandleOption {
	return func(h *FuncHandle) { h.cast = fn }
}

// FuncHandle adapts plain functions to the Handle interface. It is the
// bridge used for in-process collaborators (memory store, LLM consultant).
type FuncHandle struct {
	name      string
	call      CallFunc
	readiness func() Readiness
	alive     func() bool
	cast      func(msg any) error
}

// NewHandle builds a FuncHandle for a named collaborator.
func NewHandle(name string, call CallFunc, opts ...HandleOption) *FuncHandle {
	h := &FuncHandle{name: name, call: call}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name implements Handle.
func (h *FuncHandle) Name() string { return h.name }

// Readiness implements Handle.
func (h *FuncHandle) Readiness() Readiness {
	if h.readiness == nil {
		return Ready
	}
	return h.readiness()
}

// Alive implements Handle.
func (h *FuncHandle) Alive() bool {
	if h.alive == nil {
		return true
	}
	return h.alive()
}

// Call implements Handle.
func (h *FuncHandle) Call(ctx context.Context, msg any) (any, error) {
	return h.call(ctx, msg)
}

// Cast implements Handle.
func (h *FuncHandle) Cast(msg any) error {
	if h.cast == nil {
		return fmt.Errorf("collaborator %q does not accept casts", h.name)
	}
	return h.cast(msg)
}
