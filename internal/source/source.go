package source

import (
	"context"
	"strings"
)

// Source is one event adapter. Constructors perform the fallible setup
// (opening the OS watcher, binding the listener, first snapshot read)
// so a broken configuration fails the process before it starts running;
// Run only pumps events until ctx is canceled.
type Source interface {
	Name() string
	Run(ctx context.Context, sink chan<- Event) error
}

// Event is one delivery from an adapter. The concrete types below are
// the only implementations.
type Event interface {
	isEvent()
}

// WorkspaceEvent is a named workspace notification with an optional
// free-form payload.
type WorkspaceEvent struct {
	Name string
	Info map[string]any
}

// StoreEvent reports dynamic-store keys whose values changed since the
// previous snapshot, with the new values.
type StoreEvent struct {
	Keys   []string
	Values map[string]any
}

// PathChange is one coalesced filesystem change.
type PathChange struct {
	Path  string
	Flags Flag
	Seq   uint64
}

// FSBatch is one delivery from the filesystem adapter. Overflow means
// the OS event queue dropped an unknown number of changes; consumers
// should treat every watched root as recursively dirty.
type FSBatch struct {
	Changes  []PathChange
	Overflow bool
}

func (*WorkspaceEvent) isEvent() {}
func (*StoreEvent) isEvent()     {}
func (*FSBatch) isEvent()        {}

// Flag is the bitset attached to a filesystem change.
type Flag uint32

const (
	// FlagMustScanSubdirs marks a change whose subtree may hold more
	// changes than were reported, e.g. a directory that appeared
	// before it could be watched.
	FlagMustScanSubdirs Flag = 1 << iota
	// FlagUserDropped marks a user-space event-queue drop.
	FlagUserDropped
	// FlagKernelDropped marks a kernel-side event-queue drop.
	FlagKernelDropped
)

// Recursive reports whether a handler must assume changes anywhere
// below the reported directory. Any drop forces it: a handler that
// cares about completeness rescans rather than trusting an incomplete
// event stream. Computed from this flag value alone; nothing carries
// over from earlier changes in a batch.
func (f Flag) Recursive() bool {
	return f&(FlagMustScanSubdirs|FlagUserDropped|FlagKernelDropped) != 0
}

func (f Flag) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	if f&FlagMustScanSubdirs != 0 {
		parts = append(parts, "must-scan-subdirs")
	}
	if f&FlagUserDropped != 0 {
		parts = append(parts, "user-dropped")
	}
	if f&FlagKernelDropped != 0 {
		parts = append(parts, "kernel-dropped")
	}
	return strings.Join(parts, "|")
}
