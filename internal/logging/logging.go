// Package logging provides the leveled logger shared by the daemon and
// its components. Output is plain "LEVEL: message key=value" text, one
// event per line, which keeps the log readable both on a terminal and
// in the rotated file sink.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level controls which log calls produce output.
type Level int

const (
	// LevelDebug logs everything, including per-event dispatch traces.
	LevelDebug Level = iota

	// LevelInfo logs lifecycle changes and handler activity.
	LevelInfo

	// LevelWarn logs recoverable oddities.
	LevelWarn

	// LevelError logs handler failures and dropped events.
	LevelError
)

// String returns the level name used in log output.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARNING"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseLevel converts a config/flag value into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// DefaultLevel is debug when attached to a terminal, info otherwise.
// This mirrors the behavior operators expect from the daemon: verbose
// while being poked at interactively, quiet under a service manager.
func DefaultLevel() Level {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return LevelDebug
	}
	return LevelInfo
}

// Logger writes leveled, field-annotated lines to a single sink.
// The zero value is not usable; construct with New.
type Logger struct {
	mu     *sync.Mutex
	out    io.Writer
	level  Level
	fields string // pre-rendered " key=value" suffix shared by With chains
}

// New returns a Logger writing to out at the given level.
func New(out io.Writer, level Level) *Logger {
	return &Logger{mu: &sync.Mutex{}, out: out, level: level}
}

// Default returns a stderr logger at DefaultLevel.
func Default() *Logger {
	return New(os.Stderr, DefaultLevel())
}

// Discard returns a logger that drops everything. Used in tests and as
// the fallback when a component is handed a nil logger.
func Discard() *Logger {
	return New(io.Discard, LevelError+1)
}

// FileSink returns a rotating file writer for the given path.
func FileSink(path string) io.Writer {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
}

// Level reports the logger's threshold.
func (l *Logger) Level() Level {
	return l.level
}

// With returns a logger that appends key=value to every line. The
// returned logger shares the parent's sink and mutex.
func (l *Logger) With(key string, value any) *Logger {
	clone := *l
	clone.fields = l.fields + " " + key + "=" + formatValue(value)
	return &clone
}

// WithFields is With for several fields at once, applied in sorted key
// order so output is deterministic.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := l
	for _, k := range keys {
		out = out.With(k, fields[k])
	}
	return out
}

// Debugf logs at debug level.
func (l *Logger) Debugf(format string, args ...any) {
	l.emit(LevelDebug, format, args...)
}

// Infof logs at info level.
func (l *Logger) Infof(format string, args ...any) {
	l.emit(LevelInfo, format, args...)
}

// Warnf logs at warning level.
func (l *Logger) Warnf(format string, args ...any) {
	l.emit(LevelWarn, format, args...)
}

// Errorf logs at error level.
func (l *Logger) Errorf(format string, args ...any) {
	l.emit(LevelError, format, args...)
}

func (l *Logger) emit(level Level, format string, args ...any) {
	if level < l.level {
		return
	}

	line := fmt.Sprintf("%s %s: %s%s\n",
		time.Now().Format("2006-01-02T15:04:05.000"),
		level, fmt.Sprintf(format, args...), l.fields)

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.out, line)
}

func formatValue(v any) string {
	s := fmt.Sprint(v)
	if strings.ContainsAny(s, " \t\n\"") {
		return fmt.Sprintf("%q", s)
	}
	if s == "" {
		return `""`
	}
	return s
}
