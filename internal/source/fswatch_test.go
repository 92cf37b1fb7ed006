package source

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/unixorn/crankd/internal/logging"
)

func newTestFSWatch(t *testing.T, roots []string) <-chan Event {
	t.Helper()
	w, err := NewFSWatch(roots, 50*time.Millisecond, logging.Discard())
	if err != nil {
		t.Fatalf("NewFSWatch failed: %v", err)
	}
	return runSource(t, w)
}

func waitBatch(t *testing.T, sink <-chan Event) *FSBatch {
	t.Helper()
	batch, ok := waitEvent(t, sink).(*FSBatch)
	if !ok {
		t.Fatal("event is not an FSBatch")
	}
	return batch
}

// TestFSWatchDeliversWrite verifies a file write arrives as a single
// batch entry carrying the written path.
func TestFSWatchDeliversWrite(t *testing.T) {
	dir := t.TempDir()
	sink := newTestFSWatch(t, []string{dir})

	file := filepath.Join(dir, "x.txt")
	if err := os.WriteFile(file, []byte("one"), 0o644); err != nil {
		t.Fatal(err)
	}

	batch := waitBatch(t, sink)
	if len(batch.Changes) != 1 {
		t.Fatalf("batch has %d changes, want 1: %+v", len(batch.Changes), batch.Changes)
	}
	change := batch.Changes[0]
	if change.Path != file {
		t.Errorf("change path = %q, want %q", change.Path, file)
	}
	if change.Flags.Recursive() {
		t.Errorf("plain file write marked recursive (flags %s)", change.Flags)
	}
	if change.Seq == 0 {
		t.Error("sequence id not assigned")
	}
}

// TestFSWatchCoalescesBurst verifies rapid writes to one file collapse
// into a single change, and that a later write starts a fresh window.
func TestFSWatchCoalescesBurst(t *testing.T) {
	dir := t.TempDir()
	sink := newTestFSWatch(t, []string{dir})

	file := filepath.Join(dir, "busy.txt")
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(file, []byte{byte('a' + i)}, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	batch := waitBatch(t, sink)
	if len(batch.Changes) != 1 || batch.Changes[0].Path != file {
		t.Fatalf("burst produced %+v, want one change for %s", batch.Changes, file)
	}
	firstSeq := batch.Changes[0].Seq

	if err := os.WriteFile(file, []byte("later"), 0o644); err != nil {
		t.Fatal(err)
	}
	batch = waitBatch(t, sink)
	if len(batch.Changes) != 1 || batch.Changes[0].Path != file {
		t.Fatalf("second window produced %+v", batch.Changes)
	}
	if batch.Changes[0].Seq <= firstSeq {
		t.Errorf("sequence ids not increasing: %d then %d", firstSeq, batch.Changes[0].Seq)
	}
}

// TestFSWatchFollowsNewDirectories verifies a directory created under a
// root is flagged for rescan and then watched, so later writes inside
// it are still seen.
func TestFSWatchFollowsNewDirectories(t *testing.T) {
	dir := t.TempDir()
	sink := newTestFSWatch(t, []string{dir})

	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	batch := waitBatch(t, sink)
	if len(batch.Changes) != 1 || batch.Changes[0].Path != sub {
		t.Fatalf("mkdir produced %+v, want one change for %s", batch.Changes, sub)
	}
	if batch.Changes[0].Flags&FlagMustScanSubdirs == 0 {
		t.Error("new directory not flagged for rescan")
	}

	file := filepath.Join(sub, "x.txt")
	if err := os.WriteFile(file, []byte("deep"), 0o644); err != nil {
		t.Fatal(err)
	}
	batch = waitBatch(t, sink)
	if len(batch.Changes) != 1 || batch.Changes[0].Path != file {
		t.Fatalf("write in new directory produced %+v, want %s", batch.Changes, file)
	}
}

// TestFSWatchMissingRoot verifies construction fails for a root that
// does not exist.
func TestFSWatchMissingRoot(t *testing.T) {
	_, err := NewFSWatch([]string{filepath.Join(t.TempDir(), "absent")}, 0, logging.Discard())
	if err == nil {
		t.Fatal("NewFSWatch accepted a missing root")
	}
}
