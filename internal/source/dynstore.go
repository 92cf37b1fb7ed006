package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/unixorn/crankd/internal/logging"
)

// DynStore polls a YAML snapshot of host state and reports watched keys
// whose values changed between reads. Whatever owns the real state
// (network scripts, power hooks, provisioning agents) rewrites the
// snapshot file; the poller turns the edit into per-key change events.
type DynStore struct {
	logger   *logging.Logger
	path     string
	keys     []string
	interval time.Duration
	last     map[string]any
}

// NewDynStore reads the initial snapshot so a malformed store fails the
// process before it starts running. A missing file counts as an empty
// snapshot; it may appear later.
func NewDynStore(path string, keys []string, interval time.Duration, logger *logging.Logger) (*DynStore, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if logger == nil {
		logger = logging.Discard()
	}

	snap, err := readSnapshot(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading store snapshot %s: %w", path, err)
		}
		logger.Debugf("store snapshot %s does not exist yet", path)
		snap = map[string]any{}
	}

	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	return &DynStore{
		logger:   logger,
		path:     path,
		keys:     sorted,
		interval: interval,
		last:     snap,
	}, nil
}

func readSnapshot(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap map[string]any
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	if snap == nil {
		snap = map[string]any{}
	}
	return snap, nil
}

func (s *DynStore) Name() string { return "dynstore" }

// Run polls until ctx is canceled. Read and parse failures keep the
// previous snapshot and the loop running.
func (s *DynStore) Run(ctx context.Context, sink chan<- Event) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			snap, err := readSnapshot(s.path)
			if err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					s.logger.Errorf("reading store snapshot: %v", err)
					continue
				}
				snap = map[string]any{}
			}

			ev := s.diff(snap)
			s.last = snap
			if ev != nil {
				s.logger.Debugf("store keys changed: %v", ev.Keys)
				if !send(ctx, sink, ev) {
					return nil
				}
			}
		}
	}
}

// diff returns the watched keys whose values differ from the previous
// snapshot. A key that disappeared reports a nil value.
func (s *DynStore) diff(snap map[string]any) *StoreEvent {
	var changed []string
	values := make(map[string]any)
	for _, key := range s.keys {
		oldV, oldOK := s.last[key]
		newV, newOK := snap[key]
		if oldOK == newOK && reflect.DeepEqual(oldV, newV) {
			continue
		}
		changed = append(changed, key)
		values[key] = newV
	}
	if len(changed) == 0 {
		return nil
	}
	return &StoreEvent{Keys: changed, Values: values}
}
