package domain

import "errors"

// Domain errors represent error conditions in the casebatch domain.
// These errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrInvalidClaimKey is returned when a claim is attempted without a worker identifier.
	ErrInvalidClaimKey = errors.New("casebatch: invalid claim key")

	// ErrInvalidBatchSize is returned when a claim asks for fewer than one case.
	ErrInvalidBatchSize = errors.New("casebatch: invalid batch size")

	// ErrInvalidTarget is returned when a result is written to a case that does not exist.
	ErrInvalidTarget = errors.New("casebatch: invalid target")

	// ErrExecutorFailure wraps any error raised by a case executor.
	// A worker that observes it terminates and leaves the case claimed.
	ErrExecutorFailure = errors.New("casebatch: executor failure")

	// ErrStoreContention marks a commit that lost a race with another
	// transaction boundary. The state is already durable, so callers treat it
	// as success.
	ErrStoreContention = errors.New("casebatch: store contention")

	// ErrInvalidResult is returned when a result holds a value that is neither
	// a scalar nor a list of scalars.
	ErrInvalidResult = errors.New("casebatch: invalid result")

	// ErrInvalidCase is returned when case input fields fail validation.
	ErrInvalidCase = errors.New("casebatch: invalid case")

	// ErrAlreadyRunning is returned when Start() is called on a running instance.
	ErrAlreadyRunning = errors.New("casebatch: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped instance.
	ErrNotRunning = errors.New("casebatch: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("casebatch: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("casebatch: invalid configuration")
)
