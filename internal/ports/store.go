package ports

import (
	"context"

	"github.com/bft-labs/casebatch/internal/domain"
)

// CaseStore is the durable work queue shared by all workers.
// Implementations serialize every mutation internally; callers never add
// their own locking around it.
type CaseStore interface {
	// ClaimBatch atomically marks up to maxCount claimable cases as owned by
	// workerID and returns copies of them. Concurrent callers never receive
	// overlapping cases. An empty slice means no claimable work remains.
	ClaimBatch(ctx context.Context, workerID string, maxCount int) ([]domain.Case, error)

	// WriteResult records the result for a case, making it terminal.
	// Returns domain.ErrInvalidTarget if the case does not exist.
	WriteResult(ctx context.Context, id int64, result domain.Result) error

	// Save flushes mutations deferred by a batching store.
	// It is a no-op for stores that commit every call.
	Save(ctx context.Context) error
}

// ProgressSource provides read-only aggregate progress.
type ProgressSource interface {
	// Counts returns total, in-progress and finished case counts.
	Counts(ctx context.Context) (domain.Counts, error)
}
