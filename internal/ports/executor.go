package ports

import (
	"context"

	"github.com/bft-labs/casebatch/internal/domain"
)

// Executor performs the unit of work for a single case.
// An executor is owned by exactly one worker and is never shared.
type Executor interface {
	// Execute processes the case and returns its result.
	// Any returned error terminates the calling worker; the case stays claimed.
	Execute(ctx context.Context, c domain.Case) (domain.Result, error)

	// Close releases resources held by the executor (sessions, processes,
	// connections). It is called when the owning slot is replaced or the
	// pool shuts down.
	Close() error
}

// ExecutorFactory builds a fresh executor for the given supervisor slot.
type ExecutorFactory interface {
	NewExecutor(ctx context.Context, slot int) (Executor, error)
}

// ExecutorFactoryFunc adapts a function to ExecutorFactory.
type ExecutorFactoryFunc func(ctx context.Context, slot int) (Executor, error)

// NewExecutor calls f(ctx, slot).
func (f ExecutorFactoryFunc) NewExecutor(ctx context.Context, slot int) (Executor, error) {
	return f(ctx, slot)
}
