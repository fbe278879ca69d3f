package app

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bft-labs/casebatch/internal/adapters/sqlite"
	"github.com/bft-labs/casebatch/internal/domain"
	"github.com/bft-labs/casebatch/internal/ports"
)

func newTestStore(t *testing.T, cases int) (*sqlite.Store, []int64) {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "cases.db"), sqlite.Options{Autosave: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ids := make([]int64, 0, cases)
	for i := 0; i < cases; i++ {
		id, err := s.Create(context.Background(), domain.Case{
			Profile:      fmt.Sprintf("profiles/P%02d.csv", i),
			Evidence:     "evidence/E01.csv",
			Contributors: 2,
			Quantity:     500,
			Theta:        domain.DefaultTheta,
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return s, ids
}

// mockLogger discards every entry.
type mockLogger struct{}

func (mockLogger) Debug(msg string, fields ...ports.Field) {}
func (mockLogger) Info(msg string, fields ...ports.Field)  {}
func (mockLogger) Warn(msg string, fields ...ports.Field)  {}
func (mockLogger) Error(msg string, fields ...ports.Field) {}
func (m mockLogger) With(fields ...ports.Field) ports.Logger {
	return m
}

// fakeExecutor runs fn for every case and records what it saw.
type fakeExecutor struct {
	fn func(ctx context.Context, c domain.Case) (domain.Result, error)

	mu     sync.Mutex
	cases  []int64
	closed bool
}

func (e *fakeExecutor) Execute(ctx context.Context, c domain.Case) (domain.Result, error) {
	e.mu.Lock()
	e.cases = append(e.cases, c.ID)
	e.mu.Unlock()
	if e.fn == nil {
		return domain.Result{"lr": float64(c.ID)}, nil
	}
	return e.fn(ctx, c)
}

func (e *fakeExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *fakeExecutor) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *fakeExecutor) Cases() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int64(nil), e.cases...)
}

// fakeFactory hands out executors built by build and keeps every one of them.
type fakeFactory struct {
	build func(call, slot int) (*fakeExecutor, error)

	mu        sync.Mutex
	calls     int
	executors []*fakeExecutor
}

func (f *fakeFactory) NewExecutor(ctx context.Context, slot int) (ports.Executor, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	f.mu.Unlock()

	var (
		e   *fakeExecutor
		err error
	)
	if f.build != nil {
		e, err = f.build(call, slot)
	} else {
		e = &fakeExecutor{}
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.executors = append(f.executors, e)
	f.mu.Unlock()
	return e, nil
}

func (f *fakeFactory) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFactory) Executors() []*fakeExecutor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeExecutor(nil), f.executors...)
}

// recordingStore records the ids returned by every claim.
type recordingStore struct {
	ports.CaseStore

	mu     sync.Mutex
	claims [][]int64
}

func (r *recordingStore) ClaimBatch(ctx context.Context, workerID string, maxCount int) ([]domain.Case, error) {
	batch, err := r.CaseStore.ClaimBatch(ctx, workerID, maxCount)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(batch))
	for i, c := range batch {
		ids[i] = c.ID
	}
	r.mu.Lock()
	r.claims = append(r.claims, ids)
	r.mu.Unlock()
	return batch, nil
}

func (r *recordingStore) Claims() [][]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]int64(nil), r.claims...)
}

// lockedBuffer is a bytes.Buffer safe for concurrent writers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
