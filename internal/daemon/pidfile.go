//go:build unix

package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// PidFile is an advisory lock held for the daemon's lifetime. The lock,
// not the file's existence, decides whether another instance runs; a
// stale file left by a crash never blocks startup.
type PidFile struct {
	path string
	file *os.File
}

// AcquirePidFile locks path and writes the current pid into it. It
// fails when another process holds the lock.
func AcquirePidFile(path string) (*PidFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating pid file directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening pid file %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		holder := ""
		if data, readErr := os.ReadFile(path); readErr == nil {
			if pid := strings.TrimSpace(string(data)); pid != "" {
				holder = " by pid " + pid
			}
		}
		f.Close()
		return nil, fmt.Errorf("daemon already running: pid file %s is locked%s", path, holder)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncating pid file %s: %w", path, err)
	}
	if _, err := f.WriteString(strconv.Itoa(os.Getpid()) + "\n"); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing pid file %s: %w", path, err)
	}

	return &PidFile{path: path, file: f}, nil
}

// Release removes the file and drops the lock.
func (p *PidFile) Release() error {
	if p == nil || p.file == nil {
		return nil
	}
	removeErr := os.Remove(p.path)
	closeErr := p.file.Close()
	p.file = nil
	if removeErr != nil {
		return removeErr
	}
	return closeErr
}
