package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sydlexius/kgmerge/internal/filesystem"
)

// MergeFunc rebuilds the output for the watched directory.
type MergeFunc func(ctx context.Context) error

// Options tunes a Service.
type Options struct {
	// Debounce coalesces a burst of file changes into one merge.
	Debounce time.Duration
	// PollInterval is used when fsnotify cannot watch the directory.
	PollInterval time.Duration
}

// Service watches one category's result directory and re-merges when result
// files are created, replaced, or removed.
type Service struct {
	dir     string
	mergeFn MergeFunc
	opts    Options
	logger  *slog.Logger

	mu       sync.Mutex
	snapshot map[string]fileStamp
}

type fileStamp struct {
	size    int64
	modTime time.Time
}

// NewService creates a watcher for dir.
func NewService(dir string, mergeFn MergeFunc, opts Options, logger *slog.Logger) *Service {
	if opts.Debounce <= 0 {
		opts.Debounce = 2 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	return &Service{
		dir:     dir,
		mergeFn: mergeFn,
		opts:    opts,
		logger:  logger.With(slog.String("component", "watcher"), slog.String("dir", dir)),
	}
}

// Run blocks until ctx is canceled. The directory is created if missing so a
// watch can be started before the first fetch. If fsnotify is unavailable
// the directory is polled instead.
func (s *Service) Run(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil { //nolint:gosec // G301: data directories are shared with the user
		return fmt.Errorf("creating watch directory: %w", err)
	}

	var eventCh <-chan fsnotify.Event
	var errCh <-chan error
	var pollCh <-chan time.Time

	w, err := fsnotify.NewWatcher()
	if err == nil {
		err = w.Add(s.dir)
		if err != nil {
			_ = w.Close()
		}
	}
	if err != nil {
		s.logger.Warn("fsnotify unavailable, polling", "error", err, "interval", s.opts.PollInterval)
		s.snapshot = readSnapshot(s.dir)
		ticker := time.NewTicker(s.opts.PollInterval)
		defer ticker.Stop()
		pollCh = ticker.C
	} else {
		defer w.Close() //nolint:errcheck
		eventCh = w.Events
		errCh = w.Errors
	}

	s.logger.Info("watching result directory")

	// Starts stopped; reset on each relevant change.
	debounceTimer := time.NewTimer(0)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}
	pending := false
	schedule := func() {
		if !debounceTimer.Stop() {
			select {
			case <-debounceTimer.C:
			default:
			}
		}
		debounceTimer.Reset(s.opts.Debounce)
		pending = true
	}

	for {
		select {
		case <-ctx.Done():
			debounceTimer.Stop()
			s.logger.Info("watcher stopping")
			return nil

		case ev, ok := <-eventCh:
			if !ok {
				return nil
			}
			if relevant(ev) {
				s.logger.Debug("result file changed", "path", ev.Name, "op", ev.Op.String())
				schedule()
			}

		case err, ok := <-errCh:
			if !ok {
				return nil
			}
			s.logger.Error("fsnotify error", "error", err)

		case <-pollCh:
			if s.poll() {
				schedule()
			}

		case <-debounceTimer.C:
			if !pending {
				continue
			}
			pending = false
			s.logger.Info("debounce elapsed, merging")
			if err := s.mergeFn(ctx); err != nil {
				s.logger.Error("merge triggered by watcher failed", "error", err)
			}
		}
	}
}

// relevant reports whether ev touches a result file. Temp files from atomic
// writes and plain writes are ignored; the final rename shows up as a create.
func relevant(ev fsnotify.Event) bool {
	if filesystem.IsTemp(ev.Name) {
		return false
	}
	if !strings.EqualFold(filepath.Ext(ev.Name), ".json") {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}

// poll compares the directory against the last snapshot.
func (s *Service) poll() bool {
	next := readSnapshot(s.dir)
	if next == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := len(next) != len(s.snapshot)
	if !changed {
		for name, st := range next {
			if old, ok := s.snapshot[name]; !ok || old != st {
				changed = true
				break
			}
		}
	}
	s.snapshot = next
	return changed
}

// readSnapshot stamps every result file in dir. It returns nil when dir
// cannot be read.
func readSnapshot(dir string) map[string]fileStamp {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	snap := make(map[string]fileStamp)
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		snap[e.Name()] = fileStamp{size: info.Size(), modTime: info.ModTime()}
	}
	return snap
}
