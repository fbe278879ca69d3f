package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/casebatch/internal/ports"
)

// Default sweeper values.
const (
	DefaultSweepInterval = 10 * time.Second
	sweepDebounce        = 500 * time.Millisecond
)

// SweeperConfig configures removal of executor leftovers.
type SweeperConfig struct {
	// Dir is the directory to keep clean.
	Dir string

	// Pattern is a doublestar glob relative to Dir, e.g. "**/*.pdf".
	Pattern string

	// Interval is the period of the full re-sweep.
	Interval time.Duration

	// MinAge skips files modified more recently than this.
	MinAge time.Duration
}

// Enabled reports whether a directory and pattern are configured.
func (c SweeperConfig) Enabled() bool {
	return c.Dir != "" && c.Pattern != ""
}

// Validate checks the glob pattern.
func (c SweeperConfig) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if !doublestar.ValidatePattern(c.Pattern) {
		return fmt.Errorf("invalid sweep pattern %q", c.Pattern)
	}
	return nil
}

// Sweeper removes files left behind by executors (downloads, reports,
// screenshots) while a run is in progress. It sweeps on an interval and
// shortly after fsnotify reports a new file in the directory.
type Sweeper struct {
	cfg    SweeperConfig
	logger ports.Logger
	now    func() time.Time

	mu       sync.Mutex
	debounce *time.Timer
	removed  int
}

// NewSweeper creates a sweeper.
func NewSweeper(cfg SweeperConfig, logger ports.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	return &Sweeper{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Removed returns the number of files removed so far.
func (s *Sweeper) Removed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removed
}

// Run sweeps until ctx is cancelled. Watch failures degrade to interval-only
// sweeping. It always returns nil.
func (s *Sweeper) Run(ctx context.Context) error {
	if !s.cfg.Enabled() {
		return nil
	}

	s.sweepLogged()

	var events <-chan fsnotify.Event
	var watchErrs <-chan error

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn("sweeper: failed to create watcher", ports.Err(err))
	} else {
		defer watcher.Close()
		if err := watcher.Add(s.cfg.Dir); err != nil {
			s.logger.Warn("sweeper: failed to watch directory",
				ports.String("dir", s.cfg.Dir),
				ports.Err(err),
			)
		} else {
			events = watcher.Events
			watchErrs = watcher.Errors
		}
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	defer s.stopDebounce()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			s.sweepLogged()

		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			s.debounceSweep(ctx)

		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			s.logger.Warn("sweeper: watch error", ports.Err(err))
		}
	}
}

// Sweep removes every file under Dir matching Pattern and older than
// MinAge, returning the removed paths.
func (s *Sweeper) Sweep() ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(s.cfg.Dir), s.cfg.Pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", s.cfg.Pattern, err)
	}

	cutoff := s.now().Add(-s.cfg.MinAge)
	var removed []string
	var errs []error
	for _, rel := range matches {
		path := filepath.Join(s.cfg.Dir, filepath.FromSlash(rel))
		info, err := os.Stat(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		if s.cfg.MinAge > 0 && info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, path)
	}

	s.mu.Lock()
	s.removed += len(removed)
	s.mu.Unlock()

	return removed, errors.Join(errs...)
}

func (s *Sweeper) sweepLogged() {
	removed, err := s.Sweep()
	for _, path := range removed {
		s.logger.Debug("sweeper: removed", ports.String("path", path))
	}
	if len(removed) > 0 {
		s.logger.Info("sweeper: removed leftovers", ports.Int("count", len(removed)))
	}
	if err != nil {
		s.logger.Warn("sweeper: sweep failed", ports.Err(err))
	}
}

func (s *Sweeper) debounceSweep(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = time.AfterFunc(sweepDebounce, func() {
		if ctx.Err() != nil {
			return
		}
		s.sweepLogged()
	})
}

func (s *Sweeper) stopDebounce() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.debounce != nil {
		s.debounce.Stop()
	}
}
