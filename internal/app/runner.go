package app

import (
	"context"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/casebatch/internal/ports"
)

// Store is what a run needs from the case store.
type Store interface {
	ports.CaseStore
	ports.ProgressSource
}

// RunConfig contains configuration for a complete run.
type RunConfig struct {
	Supervisor       SupervisorConfig
	ProgressInterval time.Duration
	Sweeper          SweeperConfig
}

// Runner wires the supervisor, the progress reporter and the optional
// sweeper into one run.
type Runner struct {
	supervisor *Supervisor
	reporter   *ProgressReporter
	sweeper    *Sweeper
	logger     ports.Logger
}

// NewRunner creates a runner. Progress lines go to progressOut; a nil writer
// disables progress reporting.
func NewRunner(cfg RunConfig, store Store, factory ports.ExecutorFactory, progressOut io.Writer, logger ports.Logger) *Runner {
	r := &Runner{
		supervisor: NewSupervisor(cfg.Supervisor, store, factory, logger),
		logger:     logger,
	}
	if progressOut != nil {
		r.reporter = NewProgressReporter(store, progressOut, cfg.ProgressInterval, logger)
	}
	if cfg.Sweeper.Enabled() {
		r.sweeper = NewSweeper(cfg.Sweeper, logger)
	}
	return r
}

// Supervisor returns the underlying supervisor.
func (r *Runner) Supervisor() *Supervisor {
	return r.supervisor
}

// Run blocks until the supervisor returns. Background helpers are stopped
// when it does; a final progress line is written after a natural finish.
func (r *Runner) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	helperCtx, stopHelpers := context.WithCancel(gctx)
	defer stopHelpers()

	g.Go(func() error {
		defer stopHelpers()
		return r.supervisor.Run(gctx)
	})
	if r.reporter != nil {
		g.Go(func() error {
			return r.reporter.Run(helperCtx)
		})
	}
	if r.sweeper != nil {
		g.Go(func() error {
			return r.sweeper.Run(helperCtx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if r.reporter != nil {
		_ = r.reporter.Report(ctx)
	}
	if r.sweeper != nil {
		r.sweeper.sweepLogged()
	}
	return nil
}
