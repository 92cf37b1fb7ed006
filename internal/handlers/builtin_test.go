package handlers

import (
	"context"
	"strings"
	"testing"

	"github.com/unixorn/crankd/internal/config"
	"github.com/unixorn/crankd/internal/handler"
	"github.com/unixorn/crankd/internal/logging"
)

// TestBuiltinNamespaceRegistered verifies the side-effect registration
// an imports: [builtin] stanza validates against.
func TestBuiltinNamespaceRegistered(t *testing.T) {
	if !handler.HasNamespace("builtin") {
		t.Fatal("builtin namespace missing from the dispatch tables")
	}
	if !handler.HasNamespace("builtin.LogEvent") {
		t.Error("builtin.LogEvent not registered")
	}
	if !handler.HasNamespace("builtin.ignore") {
		t.Error("builtin.ignore not registered")
	}
	if !handler.HasNamespace("builtin.EventLogger") {
		t.Error("builtin.EventLogger not registered")
	}
}

// TestLogEvent verifies the function handler logs through the
// invocation's logger.
func TestLogEvent(t *testing.T) {
	var buf strings.Builder
	logger := logging.New(&buf, logging.LevelDebug)

	err := LogEvent(context.Background(), handler.Invocation{
		Key:    "system.wake",
		Info:   map[string]any{"who": "tester"},
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	if got, want := buf.String(), "event system.wake who=tester"; !strings.Contains(got, want) {
		t.Errorf("logged %q, want substring %q", got, want)
	}
}

// TestLogEventResolvesAsFunction verifies a function spec naming the
// builtin resolves.
func TestLogEventResolvesAsFunction(t *testing.T) {
	r := handler.NewRegistry(logging.Discard())
	spec := config.EventSpec{Function: "builtin.LogEvent"}
	if _, err := r.Resolve(spec, "system.wake", "workspace"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
}

// TestEventLoggerLog verifies the rendered line carries the key, path
// fields, and sorted payload.
func TestEventLoggerLog(t *testing.T) {
	var buf strings.Builder
	logger := logging.New(&buf, logging.LevelDebug)

	inst, err := NewEventLogger(logger)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}
	log, ok := inst.Handlers()["Log"]
	if !ok {
		t.Fatal("EventLogger declares no Log handler")
	}

	err = log(context.Background(), handler.Invocation{
		Key:       "/tmp/watched",
		Path:      "/tmp/watched/sub",
		Recursive: true,
		Info:      map[string]any{"flags": 17, "batch": 1},
	})
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	got := buf.String()
	want := "event /tmp/watched path=/tmp/watched/sub recursive=true batch=1 flags=17"
	if !strings.Contains(got, want) {
		t.Errorf("logged %q, want substring %q", got, want)
	}
}

// TestEventLoggerResolvesAsMethod verifies the registered class works
// end to end through a method spec.
func TestEventLoggerResolvesAsMethod(t *testing.T) {
	r := handler.NewRegistry(logging.Discard())
	spec := config.EventSpec{Method: []string{"builtin.EventLogger", "Log"}}
	if _, err := r.Resolve(spec, "/etc/hosts", "path"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
}

// TestIgnore verifies the no-op handler accepts any invocation.
func TestIgnore(t *testing.T) {
	if err := Ignore(context.Background(), handler.Invocation{Key: "system.wake"}); err != nil {
		t.Fatalf("Ignore returned %v", err)
	}
}
