// Package watch maps directory roots to interested callbacks and routes
// filesystem change notifications to every root that covers the changed
// path. It is pure path bookkeeping; reading events off the OS is the
// source adapter's job and invoking handlers is the dispatcher's.
package watch

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Callback receives one routed filesystem event. root is the watch root
// that matched, path is the directory containing the change, and
// recursive signals that anything below path may also have changed.
type Callback func(root, path string, recursive bool)

// Index is the root-to-callback table. Roots are registered during
// startup and never removed; a restart is the only teardown.
type Index struct {
	mu    sync.RWMutex
	roots map[string][]Callback
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{roots: make(map[string][]Callback)}
}

// AddWatch registers cb under the watch root covering path and returns
// that root. The path is resolved to an absolute, symlink-free form; if
// it names a file, the root becomes its parent directory, since change
// notifications arrive per directory. Registering a path that does not
// exist fails with ErrPathNotFound.
func (ix *Index) AddWatch(path string, cb Callback) (string, error) {
	resolved, err := ResolvePath(path)
	if err != nil {
		return "", err
	}

	root := resolved
	info, err := os.Stat(resolved)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		root = filepath.Dir(resolved)
	}

	ix.mu.Lock()
	ix.roots[root] = append(ix.roots[root], cb)
	ix.mu.Unlock()
	return root, nil
}

// Match returns every registered root that is a path-prefix of dir, in
// sorted order. Cross-root ordering carries no meaning; sorting just
// keeps runs reproducible.
func (ix *Index) Match(dir string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var matched []string
	for root := range ix.roots {
		if IsPathPrefix(root, dir) {
			matched = append(matched, root)
		}
	}
	sort.Strings(matched)
	return matched
}

// Dispatch reduces changedPath to its containing directory and invokes
// every callback registered under a matching root. Within a root,
// callbacks fire in registration order. Returns the number of callback
// invocations.
func (ix *Index) Dispatch(changedPath string, recursive bool) int {
	return ix.DispatchDir(filepath.Dir(changedPath), recursive)
}

// DispatchDir routes a path that is already a directory, skipping the
// containing-directory reduction. Overflow recovery uses it to sweep
// whole roots.
func (ix *Index) DispatchDir(dir string, recursive bool) int {
	fired := 0
	for _, root := range ix.Match(dir) {
		ix.mu.RLock()
		cbs := ix.roots[root]
		ix.mu.RUnlock()
		for _, cb := range cbs {
			cb(root, dir, recursive)
			fired++
		}
	}
	return fired
}

// Roots returns the registered watch roots in sorted order.
func (ix *Index) Roots() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	roots := make([]string, 0, len(ix.roots))
	for root := range ix.roots {
		roots = append(roots, root)
	}
	sort.Strings(roots)
	return roots
}
