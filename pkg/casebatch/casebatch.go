package casebatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/bft-labs/casebatch/internal/adapters/command"
	httpAdapter "github.com/bft-labs/casebatch/internal/adapters/http"
	"github.com/bft-labs/casebatch/internal/adapters/sqlite"
	"github.com/bft-labs/casebatch/internal/app"
	"github.com/bft-labs/casebatch/internal/domain"
	"github.com/bft-labs/casebatch/internal/ports"
	"github.com/bft-labs/casebatch/pkg/log"
)

// Runner works through the case database with a supervised worker pool.
// Use New() to create an instance, then Start() to begin the run.
type Runner struct {
	config    Config
	lifecycle *app.Lifecycle
	store     *sqlite.Store
	runner    *app.Runner
	logger    ports.Logger

	mu     sync.Mutex
	done   chan struct{}
	runErr error
}

// New creates a new Runner with the given configuration.
// The database is opened immediately; the instance is created in
// StateStopped and Start() begins the run.
func New(cfg Config, opts ...Option) (*Runner, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}

	factory := o.factory
	if factory == nil {
		var err error
		factory, err = configuredFactory(cfg, o.httpClient, logger)
		if err != nil {
			return nil, err
		}
	}

	limiter := o.limiter
	if limiter == nil && cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	var sweeper app.SweeperConfig
	if o.sweeper != nil {
		sweeper = *o.sweeper
		if err := sweeper.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
		}
	}

	store, err := sqlite.Open(cfg.DBPath, sqlite.Options{
		Autosave: cfg.Autosave,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	runCfg := app.RunConfig{
		Supervisor: app.SupervisorConfig{
			Jobs:              cfg.Jobs,
			BatchSize:         cfg.BatchSize,
			PollInterval:      cfg.PollInterval,
			ShutdownTimeout:   cfg.ShutdownTimeout,
			RestartBackoff:    cfg.RestartBackoff,
			RestartBackoffMax: cfg.RestartBackoffMax,
			Limiter:           limiter,
		},
		ProgressInterval: cfg.ProgressInterval,
		Sweeper:          sweeper,
	}

	emitter := &eventEmitterWrapper{handler: o.eventHandler}

	return &Runner{
		config:    cfg,
		lifecycle: app.NewLifecycle(logger, emitter),
		store:     store,
		runner:    app.NewRunner(runCfg, store, factory, o.progressWriter, logger),
		logger:    logger,
	}, nil
}

func configuredFactory(cfg Config, client HTTPClient, logger ports.Logger) (ExecutorFactory, error) {
	switch {
	case cfg.ServiceURL != "":
		return httpAdapter.NewFactory(httpAdapter.Config{
			ServiceURL: cfg.ServiceURL,
			AuthKey:    cfg.AuthKey,
			Timeout:    cfg.HTTPTimeout,
		}, client, logger), nil
	case cfg.Command != "":
		return command.NewFactory(command.Config{
			Path:    cfg.Command,
			Args:    cfg.CommandArgs,
			Timeout: cfg.CommandTimeout,
		}, logger), nil
	}
	return nil, fmt.Errorf("%w: no executor configured (set ServiceURL, Command or WithExecutorFactory)", domain.ErrInvalidConfig)
}

// Start begins the run in the background and returns immediately.
// Returns ErrAlreadyRunning if a run is in progress.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.lifecycle.CanStart() {
		return domain.ErrAlreadyRunning
	}
	if err := r.lifecycle.TransitionTo(app.StateStarting, "Start() called"); err != nil {
		return err
	}

	r.done = make(chan struct{})
	r.runErr = nil
	done := r.done

	r.lifecycle.Launch(ctx, func(runCtx context.Context) {
		defer close(done)

		if err := r.lifecycle.TransitionTo(app.StateRunning, "workers starting"); err != nil {
			r.logger.Error("failed to transition to running", ports.Err(err))
			return
		}

		err := r.runner.Run(runCtx)
		r.finish(err)
	})

	return nil
}

// finish records the run outcome and, for runs that ended on their own,
// moves the lifecycle out of Running.
func (r *Runner) finish(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runErr = err
	if r.lifecycle.State() != app.StateRunning {
		// Stop() owns the remaining transitions.
		return
	}

	switch {
	case err == nil:
		_ = r.lifecycle.TransitionTo(app.StateStopping, "all cases finished")
		_ = r.lifecycle.TransitionTo(app.StateStopped, "run complete")
	case errors.Is(err, context.Canceled):
		_ = r.lifecycle.TransitionTo(app.StateStopping, "context canceled")
		_ = r.lifecycle.TransitionTo(app.StateStopped, "run canceled")
	default:
		r.logger.Error("run failed", ports.Err(err))
		_ = r.lifecycle.TransitionTo(app.StateCrashed, err.Error())
	}
}

// Wait blocks until the current run ends or ctx is done. It returns the run
// error: nil when every case was processed, context.Canceled after Stop.
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()

	if done == nil {
		return domain.ErrNotRunning
	}

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runErr
}

// Stop cancels the run and waits for workers to exit.
// Returns nil on graceful shutdown, ErrShutdownTimeout if forced.
func (r *Runner) Stop() error {
	r.mu.Lock()

	if !r.lifecycle.CanStop() {
		r.mu.Unlock()
		return domain.ErrNotRunning
	}
	if err := r.lifecycle.TransitionTo(app.StateStopping, "Stop() called"); err != nil {
		r.mu.Unlock()
		return err
	}
	r.lifecycle.Cancel()
	r.mu.Unlock()

	// The supervisor already bounds its own wait by ShutdownTimeout.
	err := r.lifecycle.WaitWithTimeout(r.config.ShutdownTimeout + app.ShutdownTimeout)

	if err != nil {
		_ = r.lifecycle.TransitionTo(app.StateCrashed, "shutdown timeout")
	} else {
		_ = r.lifecycle.TransitionTo(app.StateStopped, "graceful shutdown")
	}
	return err
}

// Status returns the current lifecycle state.
// Safe to call concurrently from any goroutine.
func (r *Runner) Status() State {
	return convertState(r.lifecycle.State())
}

// Slots returns the state of every worker slot of the current run.
func (r *Runner) Slots() []SlotStatus {
	return r.runner.Supervisor().Snapshot()
}

// Counts returns aggregate progress from the database.
func (r *Runner) Counts(ctx context.Context) (Counts, error) {
	return r.store.Counts(ctx)
}

// AddCase inserts a new case and returns its id.
func (r *Runner) AddCase(ctx context.Context, c Case) (int64, error) {
	id, err := r.store.Create(ctx, c)
	if err != nil {
		return 0, err
	}
	return id, r.store.Save(ctx)
}

// Close flushes pending writes and closes the database.
// Call it after the run has ended.
func (r *Runner) Close() error {
	return r.store.Close()
}
