// Package handlers registers the built-in handler namespace.
//
// Importing the package, normally for side effects only, seeds the
// dispatch tables with the handlers every install has available:
//
//	import _ "github.com/unixorn/crankd/internal/handlers"
//
// Config files reference them by registered name, e.g.
//
//	paths:
//	  /etc/hosts:
//	    method: [builtin.EventLogger, Log]
package handlers

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/unixorn/crankd/internal/handler"
	"github.com/unixorn/crankd/internal/logging"
)

func init() {
	handler.RegisterFunction("builtin.LogEvent", LogEvent)
	handler.RegisterFunction("builtin.ignore", Ignore)
	handler.RegisterClass("builtin.EventLogger", NewEventLogger)
}

// LogEvent writes one line describing the event it fired for. It is the
// standard answer to "is this entry firing at all".
func LogEvent(ctx context.Context, inv handler.Invocation) error {
	logger := inv.Logger
	if logger == nil {
		logger = logging.Default()
	}
	logger.Infof("event %s", renderEvent(inv))
	return nil
}

// Ignore acknowledges an event without acting on it. It keeps a config
// entry in place while its real action is disabled.
func Ignore(ctx context.Context, inv handler.Invocation) error {
	return nil
}

// EventLogger writes a line per event it is bound to, with the payload
// rendered inline. Bind it with a method spec naming Log.
type EventLogger struct {
	logger *logging.Logger
}

// NewEventLogger is the registered constructor for builtin.EventLogger.
func NewEventLogger(logger *logging.Logger) (handler.Instance, error) {
	return &EventLogger{logger: logger}, nil
}

// Handlers exposes the methods a config file may bind.
func (l *EventLogger) Handlers() map[string]handler.Func {
	return map[string]handler.Func{
		"Log": l.log,
	}
}

func (l *EventLogger) log(ctx context.Context, inv handler.Invocation) error {
	l.logger.Infof("event %s", renderEvent(inv))
	return nil
}

// renderEvent flattens an invocation to "key path=... k=v ..." with the
// payload in sorted key order.
func renderEvent(inv handler.Invocation) string {
	var b strings.Builder
	b.WriteString(inv.Key)
	if inv.Path != "" {
		fmt.Fprintf(&b, " path=%s recursive=%v", inv.Path, inv.Recursive)
	}
	if len(inv.Info) > 0 {
		keys := make([]string, 0, len(inv.Info))
		for k := range inv.Info {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, inv.Info[k])
		}
	}
	return b.String()
}
