//go:build unix

package daemon_test

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/unixorn/crankd/internal/daemon"
)

// ExampleAcquirePidFile demonstrates single-instance enforcement.
func ExampleAcquirePidFile() {
	tmpDir, err := os.MkdirTemp("", "crankd-pid")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "crankd.pid")

	pid, err := daemon.AcquirePidFile(path)
	if err != nil {
		log.Fatal(err)
	}

	// A second daemon on the same pid file is refused while the first
	// holds the lock.
	if _, err := daemon.AcquirePidFile(path); err != nil {
		fmt.Println("second instance refused")
	}

	if err := pid.Release(); err != nil {
		log.Fatal(err)
	}
	fmt.Println("lock released")

	// Output:
	// second instance refused
	// lock released
}
