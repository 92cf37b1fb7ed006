package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unixorn/crankd/internal/config"
	"github.com/unixorn/crankd/internal/dispatch"
	"github.com/unixorn/crankd/internal/handler"
	"github.com/unixorn/crankd/internal/logging"
	"github.com/unixorn/crankd/internal/source"
)

// State tracks a worker through its lifecycle.
type State int32

const (
	// StateIdle is a worker that has not started.
	StateIdle State = iota
	// StateStarting covers handler resolution, watch registration, and
	// baseline capture. Errors here are fatal.
	StateStarting
	// StateRunning is the steady dispatch loop.
	StateRunning
	// StateStopping is teardown after cancellation or a restart
	// request.
	StateStopping
	// StateTerminated is a fully torn-down worker.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// worker is one daemon generation: resolved handlers, live watches, and
// the dispatch loop, all owned together so a restart can discard the
// lot and start cold.
type worker struct {
	cfg     *config.Config
	cfgPath string
	logger  *logging.Logger
	state   atomic.Int32
	restart chan string
}

func newWorker(cfg *config.Config, cfgPath string, logger *logging.Logger) *worker {
	if logger == nil {
		logger = logging.Discard()
	}
	return &worker{
		cfg:     cfg,
		cfgPath: cfgPath,
		logger:  logger,
		restart: make(chan string, 1),
	}
}

func (w *worker) State() State {
	return State(w.state.Load())
}

func (w *worker) setState(s State) {
	w.state.Store(int32(s))
	w.logger.Debugf("state: %s", s)
}

// RequestRestart queues one restart. Further requests before the worker
// finishes stopping are dropped; the fresh worker re-arms everything.
func (w *worker) RequestRestart(reason string) {
	select {
	case w.restart <- reason:
	default:
	}
}

// Run blocks until ctx is canceled (returns "", nil), a restart is
// requested (returns the reason), or startup fails.
func (w *worker) Run(ctx context.Context, hup <-chan os.Signal) (string, error) {
	w.setState(StateStarting)
	logger := w.logger

	if !w.cfg.HasEvents() {
		return "", errors.New("no events configured, nothing to dispatch")
	}

	reg := handler.NewRegistry(logger)
	d, err := dispatch.New(w.cfg, reg, logger)
	if err != nil {
		return "", err
	}

	baseline := NewBaseline(logger, w.RequestRestart)
	if w.cfgPath != "" {
		reason := fmt.Sprintf("configuration file %s changed", w.cfgPath)
		if err := baseline.Track(d.Index(), w.cfgPath, reason); err != nil {
			return "", err
		}
	}
	if exe, err := os.Executable(); err == nil {
		reason := fmt.Sprintf("binary %s was updated", exe)
		if err := baseline.Track(d.Index(), exe, reason); err != nil {
			logger.Warnf("not tracking %s: %v", exe, err)
		}
	}

	var ws *source.Workspace
	var sources []source.Source

	if w.cfg.Daemon.Listen != "" {
		ws, err = source.NewWorkspace(w.cfg.Daemon.Listen, specKeys(w.cfg.Workspace), logger)
		if err != nil {
			return "", err
		}
		d.SetFeed(ws.Broadcast)
		sources = append(sources, ws)
	} else if len(w.cfg.Workspace) > 0 {
		logger.Warnf("workspace events configured but the listener is disabled, they will never fire")
	}

	if len(w.cfg.Store) > 0 {
		st, err := source.NewDynStore(
			w.cfg.Daemon.StorePath,
			specKeys(w.cfg.Store),
			w.cfg.Daemon.StorePollInterval.Std(),
			logger,
		)
		if err != nil {
			return "", err
		}
		sources = append(sources, st)
	}

	if roots := d.Index().Roots(); len(roots) > 0 {
		fw, err := source.NewFSWatch(roots, w.cfg.Daemon.DebounceInterval.Std(), logger)
		if err != nil {
			return "", err
		}
		sources = append(sources, fw)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan source.Event, 64)
	var wg sync.WaitGroup
	for _, src := range sources {
		src := src
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := src.Run(runCtx, events); err != nil {
				logger.Errorf("%s source stopped: %v", src.Name(), err)
			}
		}()
	}

	keepalive := w.cfg.Daemon.KeepaliveInterval.Std()
	if keepalive <= 0 {
		keepalive = 5 * time.Second
	}
	tick := time.NewTicker(keepalive)
	defer tick.Stop()

	w.setState(StateRunning)
	if ws != nil {
		logger.Infof("daemon running: %d handlers, %d watch roots, listening on %s",
			d.HandleCount(), len(d.Index().Roots()), ws.Addr())
	} else {
		logger.Infof("daemon running: %d handlers, %d watch roots",
			d.HandleCount(), len(d.Index().Roots()))
	}

	stop := func() {
		w.setState(StateStopping)
		cancel()
		wg.Wait()
		w.setState(StateTerminated)
	}

	for {
		select {
		case <-ctx.Done():
			stop()
			return "", nil

		case reason := <-w.restart:
			stop()
			return reason, nil

		case <-hup:
			w.RequestRestart("SIGHUP received")

		case ev := <-events:
			d.HandleEvent(runCtx, ev)

		case <-tick.C:
			logger.Debugf("keepalive tick")
			if ws != nil {
				ws.Broadcast(keepaliveMessage())
			}
		}
	}
}

func specKeys(m map[string]config.EventSpec) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func keepaliveMessage() []byte {
	msg, _ := json.Marshal(map[string]any{
		"source":    "daemon",
		"keepalive": true,
		"time":      time.Now().UTC().Format(time.RFC3339),
	})
	return msg
}
