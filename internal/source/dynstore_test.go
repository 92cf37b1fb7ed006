package source

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/unixorn/crankd/internal/logging"
)

// writeStore replaces the snapshot atomically so the poller never
// observes a half-written file.
func writeStore(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
}

func newTestDynStore(t *testing.T, path string, keys []string) <-chan Event {
	t.Helper()
	s, err := NewDynStore(path, keys, 20*time.Millisecond, logging.Discard())
	if err != nil {
		t.Fatalf("NewDynStore failed: %v", err)
	}
	return runSource(t, s)
}

func waitStoreEvent(t *testing.T, sink <-chan Event) *StoreEvent {
	t.Helper()
	ev, ok := waitEvent(t, sink).(*StoreEvent)
	if !ok {
		t.Fatal("event is not a StoreEvent")
	}
	return ev
}

// TestDynStoreReportsChangedKey verifies a watched key's new value is
// delivered after the snapshot changes.
func TestDynStoreReportsChangedKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.yaml")
	writeStore(t, path, "network.global.ipv4:\n  router: 10.0.0.1\nuptime: 5\n")

	sink := newTestDynStore(t, path, []string{"network.global.ipv4"})

	writeStore(t, path, "network.global.ipv4:\n  router: 10.0.0.254\nuptime: 5\n")

	ev := waitStoreEvent(t, sink)
	if len(ev.Keys) != 1 || ev.Keys[0] != "network.global.ipv4" {
		t.Fatalf("changed keys = %v, want [network.global.ipv4]", ev.Keys)
	}
	value, ok := ev.Values["network.global.ipv4"].(map[string]any)
	if !ok || value["router"] != "10.0.0.254" {
		t.Errorf("new value = %#v, want router 10.0.0.254", ev.Values["network.global.ipv4"])
	}
}

// TestDynStoreIgnoresUnwatchedKeys verifies changes to keys outside the
// watch list stay silent.
func TestDynStoreIgnoresUnwatchedKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.yaml")
	writeStore(t, path, "power: ac\nuptime: 5\n")

	sink := newTestDynStore(t, path, []string{"power"})

	writeStore(t, path, "power: ac\nuptime: 6\n")
	expectQuiet(t, sink, 150*time.Millisecond)
}

// TestDynStoreKeyAppears verifies a watched key that springs into
// existence counts as a change.
func TestDynStoreKeyAppears(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.yaml")
	writeStore(t, path, "uptime: 5\n")

	sink := newTestDynStore(t, path, []string{"power"})

	writeStore(t, path, "uptime: 5\npower: battery\n")

	ev := waitStoreEvent(t, sink)
	if len(ev.Keys) != 1 || ev.Keys[0] != "power" || ev.Values["power"] != "battery" {
		t.Errorf("event = %+v, want power=battery", ev)
	}
}

// TestDynStoreMissingFile verifies a snapshot that does not exist yet
// is an empty baseline, and its later appearance fires changes.
func TestDynStoreMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.yaml")

	sink := newTestDynStore(t, path, []string{"power"})

	writeStore(t, path, "power: ac\n")

	ev := waitStoreEvent(t, sink)
	if len(ev.Keys) != 1 || ev.Keys[0] != "power" {
		t.Errorf("event keys = %v, want [power]", ev.Keys)
	}
}

// TestDynStoreMalformedStartupFails verifies an unparseable snapshot is
// fatal at construction.
func TestDynStoreMalformedStartupFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.yaml")
	writeStore(t, path, "{unclosed: [\n")

	_, err := NewDynStore(path, []string{"power"}, time.Second, logging.Discard())
	if err == nil {
		t.Fatal("NewDynStore accepted a malformed snapshot")
	}
}

// TestDynStoreMalformedPollKeepsRunning verifies a bad rewrite is
// logged and skipped, with polling resuming on the next good snapshot.
func TestDynStoreMalformedPollKeepsRunning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.yaml")
	writeStore(t, path, "power: ac\n")

	sink := newTestDynStore(t, path, []string{"power"})

	writeStore(t, path, "{unclosed: [\n")
	expectQuiet(t, sink, 150*time.Millisecond)

	writeStore(t, path, "power: battery\n")
	ev := waitStoreEvent(t, sink)
	if len(ev.Keys) != 1 || ev.Values["power"] != "battery" {
		t.Errorf("event = %+v, want power=battery", ev)
	}
}
