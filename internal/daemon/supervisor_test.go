package daemon

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/unixorn/crankd/internal/logging"
	"github.com/unixorn/crankd/internal/watch"
)

// canonical resolves symlinks so index roots and dispatched paths
// compare equal on platforms where the test temp dir is symlinked.
func canonical(t *testing.T, path string) string {
	t.Helper()
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		t.Fatalf("EvalSymlinks(%s): %v", path, err)
	}
	return resolved
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// TestBaselineDivergenceRestartsOnce verifies that a tracked file whose
// modification time changes requests exactly one restart, even when
// events keep arriving for its directory afterwards.
func TestBaselineDivergenceRestartsOnce(t *testing.T) {
	dir := canonical(t, t.TempDir())
	cfgPath := filepath.Join(dir, "crankd.yaml")
	writeFile(t, cfgPath, "daemon: {}\n")

	ix := watch.NewIndex()
	var requests []string
	b := NewBaseline(logging.Discard(), func(reason string) {
		requests = append(requests, reason)
	})
	if err := b.Track(ix, cfgPath, "config changed"); err != nil {
		t.Fatalf("Track: %v", err)
	}

	// An event for an unrelated file in the same directory re-stats the
	// tracked file. Nothing diverged yet.
	ix.Dispatch(filepath.Join(dir, "unrelated.log"), false)
	if len(requests) != 0 {
		t.Fatalf("restart requested before any change: %v", requests)
	}

	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(cfgPath, future, future); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	ix.Dispatch(filepath.Join(dir, "unrelated.log"), false)
	ix.Dispatch(cfgPath, false)
	if len(requests) != 1 {
		t.Fatalf("got %d restart requests, want 1: %v", len(requests), requests)
	}
	if requests[0] != "config changed" {
		t.Errorf("reason = %q, want the tracked reason", requests[0])
	}
}

// TestBaselineStatFailureRestarts verifies that a tracked file that can
// no longer be stat'd requests a restart.
func TestBaselineStatFailureRestarts(t *testing.T) {
	dir := canonical(t, t.TempDir())
	cfgPath := filepath.Join(dir, "crankd.yaml")
	writeFile(t, cfgPath, "daemon: {}\n")

	ix := watch.NewIndex()
	var requests []string
	b := NewBaseline(logging.Discard(), func(reason string) {
		requests = append(requests, reason)
	})
	if err := b.Track(ix, cfgPath, "config changed"); err != nil {
		t.Fatalf("Track: %v", err)
	}

	if err := os.Remove(cfgPath); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	ix.Dispatch(cfgPath, false)

	if len(requests) != 1 {
		t.Fatalf("got %d restart requests, want 1: %v", len(requests), requests)
	}
	if !strings.Contains(requests[0], "cannot stat") {
		t.Errorf("reason = %q, want a stat-failure reason", requests[0])
	}
}

// TestBaselineMissingPathAnchorsAncestor verifies that tracking a path
// that does not exist anchors at its nearest existing ancestor.
func TestBaselineMissingPathAnchorsAncestor(t *testing.T) {
	dir := canonical(t, t.TempDir())
	missing := filepath.Join(dir, "conf.d", "crankd.yaml")

	ix := watch.NewIndex()
	var requests []string
	b := NewBaseline(logging.Discard(), func(reason string) {
		requests = append(requests, reason)
	})
	if err := b.Track(ix, missing, "config changed"); err != nil {
		t.Fatalf("Track: %v", err)
	}

	if paths := b.Paths(); len(paths) != 1 || paths[0] != dir {
		t.Fatalf("tracked paths = %v, want [%s]", paths, dir)
	}

	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(dir, future, future); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	ix.Dispatch(filepath.Join(dir, "anything"), false)

	if len(requests) != 1 {
		t.Fatalf("got %d restart requests, want 1: %v", len(requests), requests)
	}
}

// TestRestartDelayCaps verifies the relaunch pacing doubles from the
// base delay and saturates at the cap.
func TestRestartDelayCaps(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 500 * time.Millisecond},
		{1, time.Second},
		{2, 2 * time.Second},
		{5, 16 * time.Second},
		{6, restartMaxDelay},
		{40, restartMaxDelay},
		{64, restartMaxDelay},
	}
	for _, tt := range tests {
		if got := restartDelay(tt.attempt); got != tt.want {
			t.Errorf("restartDelay(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

// lockedBuf is a concurrency-safe log sink for polling assertions.
type lockedBuf struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *lockedBuf) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuf) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitForLog(t *testing.T, buf *lockedBuf, want string, count int) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Count(buf.String(), want) >= count {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("log never showed %q x%d; log so far:\n%s", want, count, buf.String())
}

// TestSupervisorRestartsOnConfigChange verifies the full cycle: a
// running daemon whose configuration file is rewritten on disk tears
// its worker down and starts a fresh generation in the same process,
// and still exits cleanly on cancellation.
func TestSupervisorRestartsOnConfigChange(t *testing.T) {
	dir := canonical(t, t.TempDir())
	watched := filepath.Join(dir, "watched")
	if err := os.MkdirAll(watched, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	cfgPath := filepath.Join(dir, "crankd.yaml")
	cfg := "daemon:\n" +
		"  listen: \"127.0.0.1:0\"\n" +
		"  debounce_interval: 30ms\n" +
		"  keepalive_interval: 200ms\n" +
		"paths:\n" +
		"  \"" + watched + "\":\n" +
		"    function: daemontest.noop\n"
	writeFile(t, cfgPath, cfg)

	// Backdate the config so the rewrite below diverges from the
	// recorded baseline regardless of filesystem timestamp granularity.
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(cfgPath, past, past); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	buf := &lockedBuf{}
	logger := logging.New(buf, logging.LevelDebug)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- NewSupervisor(Options{ConfigPath: cfgPath, Logger: logger}).Run(ctx)
	}()

	waitForLog(t, buf, "daemon running", 1)

	// The watcher sees the rewrite, the baseline re-stats, and the
	// diverged mtime requests a restart.
	writeFile(t, cfgPath, cfg+"\n# touched\n")

	waitForLog(t, buf, "Restarting:", 1)
	waitForLog(t, buf, "daemon running", 2)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v after cancel, want nil", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("supervisor did not stop after cancel")
	}
}

// TestSupervisorBadConfigFails verifies that an unreadable or invalid
// configuration fails the run instead of looping.
func TestSupervisorBadConfigFails(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "crankd.yaml")
	writeFile(t, cfgPath, "paths: [not, a, map]\n")

	err := NewSupervisor(Options{ConfigPath: cfgPath, Logger: logging.Discard()}).Run(context.Background())
	if err == nil {
		t.Fatal("Run succeeded with an invalid config")
	}
}
