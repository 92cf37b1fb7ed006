// Package stress drives a synthetic filesystem event storm at a
// running daemon and reports end-to-end dispatch latency.
//
// The generator writes uniquely named files into a directory under one
// of the daemon's watch roots while subscribed to its event feed.
// Latency for one file is the time from its write to the feed message
// naming it, so a measurement covers the whole pipeline: kernel event,
// coalescing window, dispatch, handler, broadcast. The coalescing
// window puts a floor under every number; the interesting signal is
// how far past that floor the daemon falls as the rate climbs.
//
// Every write fires whatever handlers the target root is configured
// with. Point the tool at a scratch directory routed to builtin.ignore
// unless firing the real handlers is the point.
package stress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/unixorn/crankd/internal/logging"
	"github.com/unixorn/crankd/internal/watch"
)

// Options configures a stress run.
type Options struct {
	// Addr is the daemon's listen address, host:port.
	Addr string

	// Dir is the directory to write into. It must sit under one of the
	// daemon's watch roots or nothing will ever be observed.
	Dir string

	// Count is the number of files to write. Default 100.
	Count int

	// Interval paces the writes. Default 50ms.
	Interval time.Duration

	// Timeout bounds the wait for stragglers after the last write.
	// Default 10s.
	Timeout time.Duration

	Logger *logging.Logger
}

// Stats aggregates the observed latencies of one run.
type Stats struct {
	Min  time.Duration
	Mean time.Duration
	P50  time.Duration
	P95  time.Duration
	P99  time.Duration
	Max  time.Duration

	Written     int
	Observed    int
	Lost        int
	WriteErrors int

	// Durations holds every observed latency, sorted.
	Durations []time.Duration
}

// tracker pairs written files with the feed messages that report them.
type tracker struct {
	mu        sync.Mutex
	started   map[string]time.Time
	durations []time.Duration
}

func newTracker() *tracker {
	return &tracker{started: make(map[string]time.Time)}
}

func (tr *tracker) add(path string, at time.Time) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.started[path] = at
}

// observe matches one feed message against the outstanding writes and
// returns how many it resolved. Messages from other sources are
// ignored.
func (tr *tracker) observe(raw []byte, at time.Time) int {
	var msg struct {
		Source string   `json:"source"`
		Paths  []string `json:"paths"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Source != "fswatch" {
		return 0
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	matched := 0
	for _, p := range msg.Paths {
		if t0, ok := tr.started[p]; ok {
			tr.durations = append(tr.durations, at.Sub(t0))
			delete(tr.started, p)
			matched++
		}
	}
	return matched
}

func (tr *tracker) remaining() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.started)
}

func (tr *tracker) results() []time.Duration {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]time.Duration(nil), tr.durations...)
}

// Run executes one stress run against a live daemon. It returns the
// collected statistics; a run that observes nothing at all returns an
// error, since that almost always means Dir is outside every watch
// root.
func Run(ctx context.Context, opts Options) (*Stats, error) {
	if opts.Count <= 0 {
		opts.Count = 100
	}
	if opts.Interval <= 0 {
		opts.Interval = 50 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	dir, err := watch.ResolvePath(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("stress directory: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+opts.Addr+"/events", nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to event feed at %s: %w", opts.Addr, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	feed := make(chan []byte, 64)
	go func() {
		defer close(feed)
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			select {
			case feed <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	tr := newTracker()
	nonce := time.Now().UnixNano()

	var (
		wg          sync.WaitGroup
		written     int
		writeErrors int
		paths       []string
	)
	writerDone := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(writerDone)
		ticker := time.NewTicker(opts.Interval)
		defer ticker.Stop()
		for i := 0; i < opts.Count; i++ {
			path := filepath.Join(dir, fmt.Sprintf("stress-%d-%04d.tmp", nonce, i))
			paths = append(paths, path)
			if err := os.WriteFile(path, []byte("stress\n"), 0o644); err != nil {
				logger.Warnf("writing %s: %v", path, err)
				writeErrors++
				continue
			}
			tr.add(path, time.Now())
			written++
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	var (
		late       <-chan time.Time
		writerLive = true
	)
loop:
	for {
		if !writerLive && tr.remaining() == 0 {
			break
		}
		select {
		case <-ctx.Done():
			break loop
		case <-writerDone:
			writerDone = nil
			writerLive = false
			timer := time.NewTimer(opts.Timeout)
			defer timer.Stop()
			late = timer.C
		case <-late:
			logger.Warnf("gave up on %d unobserved writes after %s", tr.remaining(), opts.Timeout)
			break loop
		case data, ok := <-feed:
			if !ok {
				logger.Warnf("event feed closed mid-run")
				break loop
			}
			tr.observe(data, time.Now())
		}
	}

	cancel()
	wg.Wait()

	for _, p := range paths {
		os.Remove(p)
	}

	durations := tr.results()
	stats := computeStats(durations)
	stats.Written = written
	stats.Observed = len(durations)
	stats.Lost = tr.remaining()
	stats.WriteErrors = writeErrors

	if written == 0 {
		return stats, errors.New("no files written")
	}
	if stats.Observed == 0 {
		return stats, errors.New("no events observed; is the directory under a configured watch root?")
	}
	return stats, nil
}

// computeStats calculates percentile statistics from raw durations.
func computeStats(durations []time.Duration) *Stats {
	if len(durations) == 0 {
		return &Stats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return &Stats{
		Min:       sorted[0],
		Mean:      sum / time.Duration(len(sorted)),
		P50:       sorted[len(sorted)*50/100],
		P95:       sorted[len(sorted)*95/100],
		P99:       sorted[len(sorted)*99/100],
		Max:       sorted[len(sorted)-1],
		Durations: sorted,
	}
}

// Format renders the statistics for terminal output.
func (s *Stats) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dispatch latency: %d written, %d observed, %d lost", s.Written, s.Observed, s.Lost)
	if s.WriteErrors > 0 {
		fmt.Fprintf(&b, ", %d write errors", s.WriteErrors)
	}
	b.WriteString("\n")
	if s.Observed == 0 {
		return b.String()
	}
	fmt.Fprintf(&b, "  Min:  %v\n", s.Min)
	fmt.Fprintf(&b, "  P50:  %v\n", s.P50)
	fmt.Fprintf(&b, "  Mean: %v\n", s.Mean)
	fmt.Fprintf(&b, "  P95:  %v\n", s.P95)
	fmt.Fprintf(&b, "  P99:  %v\n", s.P99)
	fmt.Fprintf(&b, "  Max:  %v\n", s.Max)
	return b.String()
}
