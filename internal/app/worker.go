package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/bft-labs/casebatch/internal/domain"
	"github.com/bft-labs/casebatch/internal/ports"
)

// DefaultBatchSize is the number of cases a worker claims at once.
const DefaultBatchSize = 1

// WorkerStatus is the observable termination status of a worker.
type WorkerStatus int

const (
	WorkerPending WorkerStatus = iota
	WorkerRunning
	WorkerFinished
	WorkerFailed
)

// String returns a human-readable representation of the status.
func (s WorkerStatus) String() string {
	switch s {
	case WorkerPending:
		return "Pending"
	case WorkerRunning:
		return "Running"
	case WorkerFinished:
		return "Finished"
	case WorkerFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// WorkerConfig contains configuration for a worker.
type WorkerConfig struct {
	// ID is the claim key. A random UUID is used when empty.
	ID string

	// BatchSize is the number of cases claimed per round trip.
	BatchSize int

	// Limiter, when set, is waited on before every execution.
	// It is shared by all workers of a run.
	Limiter *rate.Limiter
}

// Worker claims batches from the store, executes them and records results
// until no claimable work remains.
//
// A worker never retries a case: the first executor or store error ends it
// with WorkerFailed and leaves the current case claimed.
type Worker struct {
	id        string
	batchSize int
	limiter   *rate.Limiter
	store     ports.CaseStore
	executor  ports.Executor
	logger    ports.Logger

	mu        sync.Mutex
	status    WorkerStatus
	err       error
	processed int
	done      chan struct{}
}

// NewWorker creates a worker bound to one executor.
func NewWorker(cfg WorkerConfig, store ports.CaseStore, executor ports.Executor, logger ports.Logger) *Worker {
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Worker{
		id:        id,
		batchSize: batchSize,
		limiter:   cfg.Limiter,
		store:     store,
		executor:  executor,
		logger:    logger.With(ports.String("worker", id)),
		status:    WorkerPending,
		done:      make(chan struct{}),
	}
}

// ID returns the worker's claim key.
func (w *Worker) ID() string {
	return w.id
}

// Status returns the current status and, for WorkerFailed, the cause.
func (w *Worker) Status() (WorkerStatus, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status, w.err
}

// Processed returns the number of cases this worker completed.
func (w *Worker) Processed() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.processed
}

// Done is closed once Run returns.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Run executes the claim loop. It must be called at most once.
// The returned error is the same one reported by Status.
func (w *Worker) Run(ctx context.Context) (err error) {
	w.setStatus(WorkerRunning, nil)
	defer func() {
		if err != nil {
			w.setStatus(WorkerFailed, err)
		} else {
			w.setStatus(WorkerFinished, nil)
		}
		close(w.done)
	}()

	w.logger.Debug("worker started", ports.Int("batch_size", w.batchSize))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := w.store.ClaimBatch(ctx, w.id, w.batchSize)
		if err != nil {
			w.logger.Error("claim failed", ports.Err(err))
			return fmt.Errorf("claim batch: %w", err)
		}
		if len(batch) == 0 {
			w.logger.Info("worker finished", ports.Int("processed", w.Processed()))
			return nil
		}

		for _, c := range batch {
			if err := w.process(ctx, c); err != nil {
				return err
			}
		}

		if err := w.store.Save(ctx); err != nil {
			w.logger.Error("save failed", ports.Err(err))
			return fmt.Errorf("save results: %w", err)
		}
	}
}

func (w *Worker) process(ctx context.Context, c domain.Case) error {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	start := time.Now()
	result, err := w.execute(ctx, c)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return ctxErr
		}
		w.logger.Error("case execution failed",
			ports.Int64("case", c.ID),
			ports.String("name", c.Name()),
			ports.Err(err),
		)
		return fmt.Errorf("%w: case %d: %w", domain.ErrExecutorFailure, c.ID, err)
	}

	if err := w.store.WriteResult(ctx, c.ID, result); err != nil {
		w.logger.Error("write result failed", ports.Int64("case", c.ID), ports.Err(err))
		return fmt.Errorf("write result: %w", err)
	}

	w.mu.Lock()
	w.processed++
	w.mu.Unlock()

	w.logger.Debug("case finished",
		ports.Int64("case", c.ID),
		ports.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// execute runs the executor, converting a panic or an unusable result into
// an error.
func (w *Worker) execute(ctx context.Context, c domain.Case) (result domain.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	result, err = w.executor.Execute(ctx, c)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, errors.New("executor returned no result")
	}
	if err := result.Validate(); err != nil {
		return nil, err
	}
	return result, nil
}

func (w *Worker) setStatus(status WorkerStatus, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.err = err
}
