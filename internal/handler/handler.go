// Package handler resolves configuration entries into invokable
// handlers and owns their invocation semantics.
//
// A handler is one of four things: a shell command, a registered
// function, a registered class instance (dispatching on the event key),
// or a named method on a class instance. Functions and classes are
// compiled in and announce themselves through the registration tables
// at init() time; resolution is always an explicit table lookup, never
// name reflection.
//
// Resolution happens once, at daemon startup, and any failure there is
// fatal. Invocation happens on the dispatch loop and never fails from
// the loop's point of view: errors are logged with enough context to
// find the config entry and then swallowed, so one misbehaving handler
// cannot stall event delivery.
package handler

import (
	"context"

	"github.com/unixorn/crankd/internal/config"
	"github.com/unixorn/crankd/internal/logging"
)

// Invocation carries the per-event context given to every fired
// handler. Context, Key, and Spec come from the resolved handle; the
// rest is filled by the dispatcher from the event itself.
type Invocation struct {
	// Context is the human-readable label, e.g. "workspace: volume.mounted".
	Context string

	// Key is the event identifier the handler was configured under.
	Key string

	// Source is the adapter kind: "workspace", "store", or "path".
	Source string

	// Spec is the configuration entry that produced this handler.
	Spec config.EventSpec

	// Info is the notification payload (workspace) or the changed
	// key's new value (store). Nil for filesystem events.
	Info map[string]any

	// Path is the changed directory for filesystem events.
	Path string

	// Recursive reports that the change may affect an entire subtree
	// and a completeness-minded handler should rescan.
	Recursive bool

	// Logger reports through the daemon's configured sink. Function
	// handlers have no other way to reach it.
	Logger *logging.Logger
}

// Func is the signature for function and method handlers.
type Func func(ctx context.Context, inv Invocation) error

// Instance is a stateful class handler. One instance exists per class
// name for the registry's lifetime, shared by every spec naming the
// class.
type Instance interface {
	// Handlers returns the instance's dispatch table. Keys are handler
	// names for method: specs, and event keys for class: specs.
	Handlers() map[string]Func
}

// Constructor builds a class instance. Registered via RegisterClass.
type Constructor func(logger *logging.Logger) (Instance, error)

// Handle is a resolved, invokable handler bound to one config entry.
type Handle struct {
	// Key is the event identifier this handle fires for.
	Key string

	// Source is the adapter kind the entry was configured under.
	Source string

	// Context is the label logged with every invocation.
	Context string

	// Spec is the originating config entry.
	Spec config.EventSpec

	action Func
	logger *logging.Logger
}

// Invoke runs the handler with the per-event fields from inv filled in.
// It logs start and outcome and never returns an error: runtime
// failures are classified, logged, and swallowed.
func (h *Handle) Invoke(ctx context.Context, inv Invocation) {
	inv.Context = h.Context
	inv.Key = h.Key
	inv.Source = h.Source
	inv.Spec = h.Spec
	inv.Logger = h.logger

	h.logger.Debugf("%s: dispatching %s", h.Context, h.Spec)

	if err := h.action(ctx, inv); err != nil {
		h.logger.With("key", h.Key).With("context", h.Context).
			Errorf("handler failed: %v", err)
	}
}

// Describe renders the handle for list-events and validate output.
func (h *Handle) Describe() string {
	return h.Key + " -> " + h.Spec.String()
}
