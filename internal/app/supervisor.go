package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bft-labs/casebatch/internal/ports"
)

// Default supervisor configuration values.
const (
	DefaultJobs         = 1
	DefaultPollInterval = time.Second
)

// SupervisorConfig contains configuration for the worker pool.
type SupervisorConfig struct {
	// Jobs is the number of (executor, worker) slots.
	Jobs int

	// BatchSize is passed to every worker.
	BatchSize int

	// PollInterval is how often worker statuses are checked.
	PollInterval time.Duration

	// ShutdownTimeout bounds the wait for workers after cancellation.
	ShutdownTimeout time.Duration

	// RestartBackoff and RestartBackoffMax space out failed replacement
	// attempts for a slot.
	RestartBackoff    time.Duration
	RestartBackoffMax time.Duration

	// Limiter is shared by all workers. Nil means unlimited.
	Limiter *rate.Limiter
}

func (c SupervisorConfig) withDefaults() SupervisorConfig {
	if c.Jobs <= 0 {
		c.Jobs = DefaultJobs
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = ShutdownTimeout
	}
	if c.RestartBackoff <= 0 {
		c.RestartBackoff = DefaultBackoffInitial
	}
	if c.RestartBackoffMax <= 0 {
		c.RestartBackoffMax = DefaultBackoffMax
	}
	return c
}

// SlotStatus is a point-in-time view of one supervisor slot.
type SlotStatus struct {
	Slot      int
	WorkerID  string
	Status    WorkerStatus
	Err       error
	Processed int
	Restarts  int
}

// slot holds one (executor, worker) pair. Only the supervisor goroutine
// mutates it; Snapshot reads it under Supervisor.mu.
type slot struct {
	index       int
	executor    ports.Executor
	worker      *Worker
	restarts    int
	processed   int
	backoff     *backoff
	nextAttempt time.Time
}

// Supervisor runs a fixed-size pool of workers and replaces the ones that
// fail until every slot has finished naturally.
type Supervisor struct {
	cfg     SupervisorConfig
	store   ports.CaseStore
	factory ports.ExecutorFactory
	logger  ports.Logger

	mu    sync.Mutex
	slots []*slot
	wg    sync.WaitGroup
	now   func() time.Time
}

// NewSupervisor creates a supervisor. Nothing starts until Run.
func NewSupervisor(cfg SupervisorConfig, store ports.CaseStore, factory ports.ExecutorFactory, logger ports.Logger) *Supervisor {
	return &Supervisor{
		cfg:     cfg.withDefaults(),
		store:   store,
		factory: factory,
		logger:  logger,
		now:     time.Now,
	}
}

// Run creates every slot, starts the workers and monitors them.
// It returns nil once all workers finished naturally, an error if an
// executor could not be created at startup, or the context error after a
// cancellation (joined with ErrShutdownTimeout when workers did not stop in
// time).
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.startSlots(ctx); err != nil {
		return err
	}

	s.logger.Info("supervisor started",
		ports.Int("jobs", s.cfg.Jobs),
		ports.Int("batch_size", s.cfg.BatchSize),
	)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if s.check(ctx) {
			s.closeExecutors()
			s.wg.Wait()
			s.logger.Info("all workers finished", ports.Int("restarts", s.totalRestarts()))
			return nil
		}

		select {
		case <-ctx.Done():
			return s.shutdown(ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *Supervisor) startSlots(ctx context.Context) error {
	slots := make([]*slot, 0, s.cfg.Jobs)
	for i := 0; i < s.cfg.Jobs; i++ {
		exec, err := s.factory.NewExecutor(ctx, i)
		if err != nil {
			for _, sl := range slots {
				s.closeExecutor(sl)
			}
			return fmt.Errorf("create executor for slot %d: %w", i, err)
		}
		slots = append(slots, &slot{
			index:    i,
			executor: exec,
			backoff:  newBackoff(s.cfg.RestartBackoff, s.cfg.RestartBackoffMax),
		})
	}

	s.mu.Lock()
	s.slots = slots
	for _, sl := range slots {
		s.startWorker(ctx, sl)
	}
	s.mu.Unlock()
	return nil
}

// startWorker builds a worker for sl and runs it. Callers hold s.mu.
func (s *Supervisor) startWorker(ctx context.Context, sl *slot) {
	w := NewWorker(WorkerConfig{
		BatchSize: s.cfg.BatchSize,
		Limiter:   s.cfg.Limiter,
	}, s.store, sl.executor, s.logger.With(ports.Int("slot", sl.index)))
	sl.worker = w

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = w.Run(ctx)
	}()
}

// check replaces failed workers and reports whether every slot finished.
func (s *Supervisor) check(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	finished := 0
	for _, sl := range s.slots {
		status, err := sl.worker.Status()
		switch status {
		case WorkerFinished:
			finished++
		case WorkerFailed:
			if ctx.Err() != nil {
				continue
			}
			s.replace(ctx, sl, err)
		}
	}
	return finished == len(s.slots)
}

// replace swaps a failed slot's executor and worker. Callers hold s.mu.
func (s *Supervisor) replace(ctx context.Context, sl *slot, cause error) {
	now := s.now()
	if now.Before(sl.nextAttempt) {
		return
	}

	if sl.executor != nil {
		s.logger.Warn("worker failed, replacing",
			ports.Int("slot", sl.index),
			ports.String("worker", sl.worker.ID()),
			ports.Err(cause),
		)
		s.closeExecutor(sl)
		sl.executor = nil
	}

	exec, err := s.factory.NewExecutor(ctx, sl.index)
	if err != nil {
		delay := sl.backoff.Next()
		sl.nextAttempt = now.Add(delay)
		s.logger.Error("executor replacement failed",
			ports.Int("slot", sl.index),
			ports.Duration("retry_in", delay),
			ports.Err(err),
		)
		return
	}

	// The failed worker stays visible in Snapshot until it is replaced.
	sl.processed += sl.worker.Processed()
	sl.executor = exec
	sl.restarts++
	sl.backoff.Reset()
	sl.nextAttempt = time.Time{}
	s.startWorker(ctx, sl)

	s.logger.Info("worker replaced",
		ports.Int("slot", sl.index),
		ports.String("worker", sl.worker.ID()),
		ports.Int("restarts", sl.restarts),
	)
}

// shutdown closes every executor so blocked calls return, then waits for the
// workers up to ShutdownTimeout.
func (s *Supervisor) shutdown(cause error) error {
	s.logger.Info("supervisor stopping", ports.Err(cause))
	s.closeExecutors()

	if err := waitTimeout(&s.wg, s.cfg.ShutdownTimeout); err != nil {
		s.logger.Warn("workers did not stop in time",
			ports.Duration("timeout", s.cfg.ShutdownTimeout),
		)
		return errors.Join(cause, err)
	}
	return cause
}

func (s *Supervisor) closeExecutors() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sl := range s.slots {
		s.closeExecutor(sl)
		sl.executor = nil
	}
}

func (s *Supervisor) closeExecutor(sl *slot) {
	if sl.executor == nil {
		return
	}
	if err := sl.executor.Close(); err != nil {
		s.logger.Warn("executor close failed", ports.Int("slot", sl.index), ports.Err(err))
	}
}

func (s *Supervisor) totalRestarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sl := range s.slots {
		n += sl.restarts
	}
	return n
}

// Snapshot returns the current state of every slot.
func (s *Supervisor) Snapshot() []SlotStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SlotStatus, 0, len(s.slots))
	for _, sl := range s.slots {
		status, err := sl.worker.Status()
		out = append(out, SlotStatus{
			Slot:      sl.index,
			WorkerID:  sl.worker.ID(),
			Status:    status,
			Err:       err,
			Processed: sl.processed + sl.worker.Processed(),
			Restarts:  sl.restarts,
		})
	}
	return out
}
