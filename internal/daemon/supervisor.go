package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/viper"

	"github.com/unixorn/crankd/internal/config"
	"github.com/unixorn/crankd/internal/logging"
	"github.com/unixorn/crankd/internal/watch"
)

const (
	// restartBaseDelay paces relaunches when generations die quickly:
	// the wait doubles per rapid restart up to restartMaxDelay and
	// resets once a generation survives stableAfter.
	restartBaseDelay = 500 * time.Millisecond
	restartMaxDelay  = 30 * time.Second
	stableAfter      = 5 * time.Second
)

func restartDelay(attempt int) time.Duration {
	delay := restartBaseDelay * time.Duration(1<<attempt)
	if delay <= 0 || delay > restartMaxDelay {
		return restartMaxDelay
	}
	return delay
}

// Baseline records modification times for the files whose change must
// restart the daemon: the live configuration and the daemon binary. It
// re-stats on every filesystem event under a tracked file's directory
// and raises a restart when the time diverges or the stat fails.
type Baseline struct {
	logger  *logging.Logger
	request func(reason string)

	mu      sync.Mutex
	times   map[string]time.Time
	reasons map[string]string
	fired   map[string]bool
}

// NewBaseline wires restart requests to the given callback.
func NewBaseline(logger *logging.Logger, request func(reason string)) *Baseline {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Baseline{
		logger:  logger,
		request: request,
		times:   make(map[string]time.Time),
		reasons: make(map[string]string),
		fired:   make(map[string]bool),
	}
}

// Track captures path's modification time and registers a watch that
// re-checks it on any event in its directory; reason is what a
// divergence reports. A path that no longer exists is anchored at its
// nearest existing ancestor, so recreating it still counts as a change.
func (b *Baseline) Track(ix *watch.Index, path, reason string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("tracking %s: %w", path, err)
	}
	anchor, err := watch.ExistingAncestor(abs)
	if err != nil {
		return fmt.Errorf("tracking %s: %w", path, err)
	}

	info, err := os.Stat(anchor)
	if err != nil {
		return fmt.Errorf("tracking %s: %w", path, err)
	}

	b.mu.Lock()
	b.times[anchor] = info.ModTime()
	b.reasons[anchor] = reason
	b.mu.Unlock()

	if _, err := ix.AddWatch(anchor, func(root, dir string, recursive bool) {
		b.check(anchor)
	}); err != nil {
		return fmt.Errorf("tracking %s: %w", path, err)
	}

	b.logger.Debugf("restart baseline: %s (mtime %s)", anchor, info.ModTime().Format(time.RFC3339))
	return nil
}

// check re-stats one tracked path and raises at most one restart per
// divergence.
func (b *Baseline) check(path string) {
	b.mu.Lock()
	recorded, tracked := b.times[path]
	reason := b.reasons[path]
	alreadyFired := b.fired[path]
	b.mu.Unlock()
	if !tracked || alreadyFired {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		b.raise(path, fmt.Sprintf("cannot stat %s: %v", path, err))
		return
	}
	if !info.ModTime().Equal(recorded) {
		b.raise(path, reason)
	}
}

func (b *Baseline) raise(path, reason string) {
	b.mu.Lock()
	if b.fired[path] {
		b.mu.Unlock()
		return
	}
	b.fired[path] = true
	b.mu.Unlock()

	b.request(reason)
}

// Paths returns the tracked anchors in sorted order.
func (b *Baseline) Paths() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	paths := make([]string, 0, len(b.times))
	for p := range b.times {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Options configures a Supervisor.
type Options struct {
	// ConfigPath pins the configuration file; empty means the standard
	// lookup order.
	ConfigPath string

	// Overrides carries flag and environment settings that win over the
	// file's daemon section.
	Overrides *viper.Viper

	// Logger for supervisor and worker activity.
	Logger *logging.Logger
}

// Supervisor runs daemon workers in a relaunch loop. A restart request
// tears the current worker down and builds a fresh one from a fresh
// configuration read, in the same process: configuration changes take a
// cold start, not a live reload.
type Supervisor struct {
	opts Options
	pid  *PidFile
}

// NewSupervisor returns a supervisor with the given options.
func NewSupervisor(opts Options) *Supervisor {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Supervisor{opts: opts}
}

// Run loops workers until ctx is canceled or a worker fails fatally.
// SIGHUP restarts the current worker the same way a baseline divergence
// does.
func (s *Supervisor) Run(ctx context.Context) error {
	logger := s.opts.Logger

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	defer func() {
		if s.pid != nil {
			if err := s.pid.Release(); err != nil {
				logger.Warnf("releasing pid file: %v", err)
			}
		}
	}()

	rapid := 0
	for generation := 1; ; generation++ {
		cfg, path, err := config.Load(s.opts.ConfigPath)
		if err != nil {
			return err
		}
		if s.opts.Overrides != nil {
			cfg.Daemon.ApplyOverrides(s.opts.Overrides)
		}

		if s.pid == nil && cfg.Daemon.PidFile != "" {
			pid, err := AcquirePidFile(cfg.Daemon.PidFile)
			if err != nil {
				return err
			}
			s.pid = pid
		}

		if generation > 1 {
			logger.Debugf("starting worker generation %d", generation)
		}

		started := time.Now()
		worker := newWorker(cfg, path, logger)
		reason, err := worker.Run(ctx, hup)
		if err != nil {
			return err
		}
		if reason == "" {
			return nil
		}
		logger.Infof("Restarting: %s", reason)

		if time.Since(started) >= stableAfter {
			rapid = 0
			continue
		}
		delay := restartDelay(rapid)
		rapid++
		logger.Warnf("worker lived under %s, delaying relaunch by %s", stableAfter, delay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}
