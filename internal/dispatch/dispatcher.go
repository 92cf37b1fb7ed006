// Package dispatch routes adapter events to resolved handlers. All
// configuration entries resolve once, up front; a single goroutine then
// drains the event sink, so handlers never run concurrently and a slow
// handler delays the queue rather than corrupting shared state.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/unixorn/crankd/internal/config"
	"github.com/unixorn/crankd/internal/handler"
	"github.com/unixorn/crankd/internal/logging"
	"github.com/unixorn/crankd/internal/source"
	"github.com/unixorn/crankd/internal/watch"
)

// Dispatcher holds the routing tables built from one configuration.
type Dispatcher struct {
	logger    *logging.Logger
	index     *watch.Index
	workspace map[string]*handler.Handle
	store     map[string]*handler.Handle
	feed      func([]byte)

	// ctx is installed by HandleEvent; watch callbacks read it from the
	// same goroutine that wrote it.
	ctx context.Context
}

// New resolves every configuration entry and registers every path
// watch. Any entry that fails to resolve aborts construction: a config
// error surfaces before the first event, never during dispatch.
func New(cfg *config.Config, reg *handler.Registry, logger *logging.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	for _, ns := range cfg.Imports {
		if !handler.HasNamespace(ns) {
			return nil, fmt.Errorf("import %q: no handlers registered in that namespace", ns)
		}
	}

	d := &Dispatcher{
		logger:    logger,
		index:     watch.NewIndex(),
		workspace: make(map[string]*handler.Handle),
		store:     make(map[string]*handler.Handle),
	}

	for _, name := range sortedKeys(cfg.Workspace) {
		h, err := reg.Resolve(cfg.Workspace[name], name, "workspace")
		if err != nil {
			return nil, fmt.Errorf("workspace %q: %w", name, err)
		}
		d.workspace[name] = h
	}

	for _, key := range sortedKeys(cfg.Store) {
		h, err := reg.Resolve(cfg.Store[key], key, "store")
		if err != nil {
			return nil, fmt.Errorf("store %q: %w", key, err)
		}
		d.store[key] = h
	}

	for _, path := range sortedKeys(cfg.Paths) {
		h, err := reg.Resolve(cfg.Paths[path], path, "path")
		if err != nil {
			return nil, fmt.Errorf("paths %q: %w", path, err)
		}
		root, err := d.index.AddWatch(path, d.pathCallback(h))
		if err != nil {
			return nil, fmt.Errorf("paths %q: %w", path, err)
		}
		logger.Debugf("watching %s for %s", root, h.Describe())
	}

	return d, nil
}

func sortedKeys(m map[string]config.EventSpec) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Index exposes the watch index so the restart supervisor can register
// its baseline callbacks and the filesystem adapter can learn which
// roots to stream.
func (d *Dispatcher) Index() *watch.Index {
	return d.index
}

// SetFeed installs the monitor feed hook. Must be set before Run.
func (d *Dispatcher) SetFeed(fn func([]byte)) {
	d.feed = fn
}

// HandleCount reports how many configuration entries resolved.
func (d *Dispatcher) HandleCount() int {
	return len(d.workspace) + len(d.store) + len(d.index.Roots())
}

// Run drains events until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context, events <-chan source.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			d.HandleEvent(ctx, ev)
		}
	}
}

// HandleEvent routes one adapter event. Callers must serialize calls;
// the daemon's run loop is the only production caller.
func (d *Dispatcher) HandleEvent(ctx context.Context, ev source.Event) {
	d.ctx = ctx

	switch ev := ev.(type) {
	case *source.WorkspaceEvent:
		h, ok := d.workspace[ev.Name]
		if !ok {
			d.logger.Debugf("no handler for workspace notification %q", ev.Name)
			return
		}
		h.Invoke(ctx, handler.Invocation{Info: ev.Info})
		d.publish(map[string]any{"source": "workspace", "name": ev.Name})

	case *source.StoreEvent:
		for _, key := range ev.Keys {
			h, ok := d.store[key]
			if !ok {
				continue
			}
			h.Invoke(ctx, handler.Invocation{Info: storeInfo(ev.Values[key])})
		}
		d.publish(map[string]any{"source": "store", "keys": ev.Keys})

	case *source.FSBatch:
		if ev.Overflow {
			d.logger.Errorf("event queue overflowed, sweeping every watch root")
			for _, root := range d.index.Roots() {
				d.index.DispatchDir(root, true)
			}
			d.publish(map[string]any{"source": "fswatch", "overflow": true})
			return
		}

		paths := make([]string, 0, len(ev.Changes))
		for _, change := range ev.Changes {
			recursive := change.Flags.Recursive()
			fired := d.index.Dispatch(change.Path, recursive)
			d.logger.Debugf("fswatch %s flags=%s seq=%d fired=%d", change.Path, change.Flags, change.Seq, fired)
			paths = append(paths, change.Path)
		}
		d.publish(map[string]any{"source": "fswatch", "paths": paths})
	}
}

// pathCallback adapts a resolved handle to the watch index contract.
func (d *Dispatcher) pathCallback(h *handler.Handle) watch.Callback {
	return func(root, path string, recursive bool) {
		ctx := d.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		h.Invoke(ctx, handler.Invocation{Path: path, Recursive: recursive})
	}
}

// storeInfo shapes a store value as handler payload. Mappings pass
// through; scalars arrive under a value key.
func storeInfo(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{"value": v}
}

func (d *Dispatcher) publish(fields map[string]any) {
	if d.feed == nil {
		return
	}
	fields["time"] = time.Now().UTC().Format(time.RFC3339)
	data, err := json.Marshal(fields)
	if err != nil {
		return
	}
	d.feed(data)
}
