package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/casebatch/internal/domain"
)

func TestRunnerCompletesAndReports(t *testing.T) {
	store, _ := newTestStore(t, 3)
	sweepDir := t.TempDir()
	out := &lockedBuffer{}

	factory := &fakeFactory{build: func(call, slot int) (*fakeExecutor, error) {
		return &fakeExecutor{fn: func(ctx context.Context, c domain.Case) (domain.Result, error) {
			path := filepath.Join(sweepDir, c.Name()+".pdf")
			if err := os.WriteFile(path, []byte("report"), 0o644); err != nil {
				return nil, err
			}
			return domain.Result{"lr": 2.5}, nil
		}}, nil
	}}

	cfg := RunConfig{
		Supervisor:       fastSupervisorConfig(2, 1),
		ProgressInterval: time.Hour,
		Sweeper: SweeperConfig{
			Dir:      sweepDir,
			Pattern:  "*.pdf",
			Interval: time.Hour,
		},
	}
	r := NewRunner(cfg, store, factory, out, mockLogger{})
	require.NoError(t, r.Run(context.Background()))

	assert.True(t, strings.HasSuffix(out.String(), "Progressing/Finished/Total 0/3/3 (100.00%)\n"), out.String())

	entries, err := os.ReadDir(sweepDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "leftovers swept after the run")
}

func TestRunnerPropagatesStartupError(t *testing.T) {
	store, _ := newTestStore(t, 1)
	boom := errors.New("no executor")
	factory := &fakeFactory{build: func(call, slot int) (*fakeExecutor, error) {
		return nil, boom
	}}

	r := NewRunner(RunConfig{Supervisor: fastSupervisorConfig(1, 1)}, store, factory, &lockedBuffer{}, mockLogger{})
	require.ErrorIs(t, r.Run(context.Background()), boom)
}

func TestRunnerWithoutProgress(t *testing.T) {
	store, _ := newTestStore(t, 2)
	r := NewRunner(RunConfig{Supervisor: fastSupervisorConfig(1, 2)}, store, &fakeFactory{}, nil, mockLogger{})
	require.NoError(t, r.Run(context.Background()))
	assert.NotNil(t, r.Supervisor())
}
