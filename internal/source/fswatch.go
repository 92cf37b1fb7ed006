package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/unixorn/crankd/internal/logging"
)

// pendingChange is one entry in the coalescing window.
type pendingChange struct {
	flags    Flag
	seq      uint64
	queuedAt time.Time
}

// FSWatch adapts fsnotify to the batch delivery contract. Raw
// notifications land in a pending window keyed by path; a change is
// emitted once it has sat quiet for a full debounce interval, so a
// burst of writes to one file becomes a single batch entry.
type FSWatch struct {
	logger   *logging.Logger
	watcher  *fsnotify.Watcher
	debounce time.Duration
	seq      uint64
	pending  map[string]*pendingChange
}

// NewFSWatch opens the OS watcher and registers every given root plus
// all directories below it. Notifications are per directory, so the
// whole tree must be registered to see changes in subdirectories.
func NewFSWatch(roots []string, debounce time.Duration, logger *logging.Logger) (*FSWatch, error) {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = logging.Discard()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating filesystem watcher: %w", err)
	}

	w := &FSWatch{
		logger:   logger,
		watcher:  watcher,
		debounce: debounce,
		pending:  make(map[string]*pendingChange),
	}
	for _, root := range roots {
		if err := w.addTree(root); err != nil {
			watcher.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *FSWatch) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("watching %s: %w", root, err)
			}
			w.logger.Warnf("skipping unreadable %s: %v", path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			if path == root {
				return fmt.Errorf("watching %s: %w", root, err)
			}
			w.logger.Warnf("cannot watch %s: %v", path, err)
		}
		return nil
	})
}

func (w *FSWatch) Name() string { return "fswatch" }

// Run pumps coalesced batches into sink until ctx is canceled.
func (w *FSWatch) Run(ctx context.Context, sink chan<- Event) error {
	defer w.watcher.Close()

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.observe(ev)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Errorf("filesystem event queue overflowed, assuming recursive changes under every root")
				if !send(ctx, sink, &FSBatch{Overflow: true}) {
					return nil
				}
				continue
			}
			w.logger.Errorf("filesystem watcher: %v", err)

		case <-ticker.C:
			if batch := w.flush(time.Now()); batch != nil {
				if !send(ctx, sink, batch) {
					return nil
				}
			}
		}
	}
}

// observe coalesces one raw notification into the pending window.
func (w *FSWatch) observe(ev fsnotify.Event) {
	// Chmod alone is metadata noise.
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	var flags Flag
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			// A directory that appears before it is watched may already
			// hold entries the watcher never reported.
			flags |= FlagMustScanSubdirs
			if err := w.watcher.Add(ev.Name); err != nil {
				w.logger.Warnf("cannot watch new directory %s: %v", ev.Name, err)
			} else {
				w.logger.Debugf("watching new directory %s", ev.Name)
			}
		}
	}

	w.seq++
	if p, ok := w.pending[ev.Name]; ok {
		p.flags |= flags
		p.queuedAt = time.Now()
		return
	}
	w.pending[ev.Name] = &pendingChange{flags: flags, seq: w.seq, queuedAt: time.Now()}
}

// flush collects changes that have sat quiet for a full debounce
// interval, oldest first.
func (w *FSWatch) flush(now time.Time) *FSBatch {
	var changes []PathChange
	for path, p := range w.pending {
		if now.Sub(p.queuedAt) < w.debounce {
			continue
		}
		changes = append(changes, PathChange{Path: path, Flags: p.flags, Seq: p.seq})
		delete(w.pending, path)
	}
	if len(changes) == 0 {
		return nil
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Seq < changes[j].Seq })
	return &FSBatch{Changes: changes}
}

func send(ctx context.Context, sink chan<- Event, ev Event) bool {
	select {
	case sink <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
