package watch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathNotFound reports a watch target that does not exist at
// registration time. Registration failures are fatal for the entry;
// nothing is retried later.
var ErrPathNotFound = errors.New("watch path not found")

// ResolvePath normalizes a configured path to an absolute, symlink-free
// form. A leading ~ expands to the current user's home directory.
func ResolvePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrPathNotFound)
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding %s: %w", path, err)
		}
		path = filepath.Join(home, path[1:])
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrPathNotFound, path)
		}
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	return resolved, nil
}

// ExistingAncestor walks up from path until it finds a component that
// exists on disk. Used when baselining files that may have been deleted
// since the config referenced them.
func ExistingAncestor(path string) (string, error) {
	p, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	for {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", fmt.Errorf("%w: no existing ancestor for %s", ErrPathNotFound, path)
		}
		p = parent
	}
}

// IsPathPrefix reports whether root is dir itself or one of its
// ancestors. Matching is per path component, so /a is not a prefix
// of /ab.
func IsPathPrefix(root, dir string) bool {
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
