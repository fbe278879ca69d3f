package casebatch_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/casebatch/pkg/casebatch"
)

type recordingHandler struct {
	casebatch.BaseEventHandler

	mu     sync.Mutex
	events []casebatch.StateChangeEvent
}

func (h *recordingHandler) OnStateChange(event casebatch.StateChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
}

func (h *recordingHandler) States() []casebatch.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]casebatch.State, 0, len(h.events))
	for _, e := range h.events {
		out = append(out, e.Current)
	}
	return out
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type funcExecutor func(ctx context.Context, c casebatch.Case) (casebatch.Result, error)

func (f funcExecutor) Execute(ctx context.Context, c casebatch.Case) (casebatch.Result, error) {
	return f(ctx, c)
}

func (f funcExecutor) Close() error { return nil }

func factoryOf(fn funcExecutor) casebatch.ExecutorFactory {
	return casebatch.ExecutorFactoryFunc(func(ctx context.Context, slot int) (casebatch.Executor, error) {
		return fn, nil
	})
}

func echoFactory() casebatch.ExecutorFactory {
	return factoryOf(func(ctx context.Context, c casebatch.Case) (casebatch.Result, error) {
		return casebatch.Result{"lr": float64(c.ID)}, nil
	})
}

func testConfig(t *testing.T) casebatch.Config {
	t.Helper()
	return casebatch.Config{
		DBPath:            filepath.Join(t.TempDir(), "cases.db"),
		Jobs:              2,
		BatchSize:         2,
		Autosave:          true,
		PollInterval:      5 * time.Millisecond,
		ShutdownTimeout:   2 * time.Second,
		RestartBackoff:    5 * time.Millisecond,
		RestartBackoffMax: 10 * time.Millisecond,
	}
}

func newRunner(t *testing.T, cfg casebatch.Config, cases int, opts ...casebatch.Option) *casebatch.Runner {
	t.Helper()
	r, err := casebatch.New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	for i := 0; i < cases; i++ {
		_, err := r.AddCase(context.Background(), casebatch.Case{
			Profile:      fmt.Sprintf("profiles/P%02d.csv", i),
			Evidence:     "evidence/E01.csv",
			Contributors: 2,
			Quantity:     250,
			Theta:        0.01,
		})
		require.NoError(t, err)
	}
	return r
}

func waitRun(t *testing.T, r *casebatch.Runner) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := r.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "run did not end")
	return err
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  casebatch.Config
		opts []casebatch.Option
	}{
		{"missing db path", casebatch.Config{ServiceURL: "http://localhost"}, nil},
		{"negative rate", casebatch.Config{DBPath: "x.db", RateLimit: -1, ServiceURL: "http://localhost"}, nil},
		{"two executors", casebatch.Config{DBPath: "x.db", ServiceURL: "http://localhost", Command: "/bin/true"}, nil},
		{"no executor", casebatch.Config{DBPath: filepath.Join(t.TempDir(), "x.db")}, nil},
		{"bad sweep pattern", casebatch.Config{DBPath: filepath.Join(t.TempDir(), "x.db")}, []casebatch.Option{
			casebatch.WithExecutorFactory(echoFactory()),
			casebatch.WithSweeper(casebatch.SweeperConfig{Dir: t.TempDir(), Pattern: "[unterminated"}),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := casebatch.New(tt.cfg, tt.opts...)
			require.ErrorIs(t, err, casebatch.ErrInvalidConfig)
		})
	}
}

func TestRunner_ProcessesAllCases(t *testing.T) {
	handler := &recordingHandler{}
	progress := &syncBuffer{}

	r := newRunner(t, testConfig(t), 7,
		casebatch.WithExecutorFactory(echoFactory()),
		casebatch.WithEventHandler(handler),
		casebatch.WithProgressWriter(progress),
	)
	assert.Equal(t, casebatch.StateStopped, r.Status())

	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, waitRun(t, r))

	counts, err := r.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, casebatch.Counts{Total: 7, Finished: 7}, counts)

	assert.Equal(t, casebatch.StateStopped, r.Status())
	assert.Equal(t, []casebatch.State{
		casebatch.StateStarting,
		casebatch.StateRunning,
		casebatch.StateStopping,
		casebatch.StateStopped,
	}, handler.States())

	lines := strings.Split(strings.TrimSpace(progress.String()), "\n")
	assert.True(t, strings.HasSuffix(lines[len(lines)-1], "Progressing/Finished/Total 0/7/7 (100.00%)"),
		"last progress line: %q", lines[len(lines)-1])

	for _, slot := range r.Slots() {
		assert.Equal(t, "Finished", slot.Status.String())
	}
}

func TestRunner_StartTwice(t *testing.T) {
	release := make(chan struct{})
	r := newRunner(t, testConfig(t), 2, casebatch.WithExecutorFactory(factoryOf(
		func(ctx context.Context, c casebatch.Case) (casebatch.Result, error) {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return casebatch.Result{"ok": true}, nil
		})))

	require.NoError(t, r.Start(context.Background()))
	assert.ErrorIs(t, r.Start(context.Background()), casebatch.ErrAlreadyRunning)

	close(release)
	require.NoError(t, waitRun(t, r))

	// A finished runner can be started again and returns at once.
	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, waitRun(t, r))
}

func TestRunner_Stop(t *testing.T) {
	var running atomic.Int32
	handler := &recordingHandler{}
	cfg := testConfig(t)
	cfg.BatchSize = 1

	r := newRunner(t, cfg, 5,
		casebatch.WithEventHandler(handler),
		casebatch.WithExecutorFactory(factoryOf(
			func(ctx context.Context, c casebatch.Case) (casebatch.Result, error) {
				running.Add(1)
				<-ctx.Done()
				return nil, ctx.Err()
			})),
	)

	require.NoError(t, r.Start(context.Background()))
	require.Eventually(t, func() bool { return running.Load() == 2 }, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, r.Stop())
	assert.Equal(t, casebatch.StateStopped, r.Status())
	assert.ErrorIs(t, waitRun(t, r), context.Canceled)

	counts, err := r.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts.Finished)
	assert.Equal(t, int64(2), counts.InProgress, "interrupted cases stay claimed")

	states := handler.States()
	assert.Equal(t, casebatch.StateStopped, states[len(states)-1])
	assert.ErrorIs(t, r.Stop(), casebatch.ErrNotRunning)
}

func TestRunner_StopWhenNotRunning(t *testing.T) {
	r := newRunner(t, testConfig(t), 0, casebatch.WithExecutorFactory(echoFactory()))
	assert.ErrorIs(t, r.Stop(), casebatch.ErrNotRunning)
	assert.ErrorIs(t, r.Wait(context.Background()), casebatch.ErrNotRunning)
}

func TestRunner_StartupFailureCrashes(t *testing.T) {
	boom := errors.New("executor unavailable")
	r := newRunner(t, testConfig(t), 3, casebatch.WithExecutorFactory(
		casebatch.ExecutorFactoryFunc(func(ctx context.Context, slot int) (casebatch.Executor, error) {
			return nil, boom
		})))

	require.NoError(t, r.Start(context.Background()))
	assert.ErrorIs(t, waitRun(t, r), boom)
	assert.Equal(t, casebatch.StateCrashed, r.Status())

	counts, err := r.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, casebatch.Counts{Total: 3}, counts)
}

func TestRunner_ExecutorFailureLeavesCaseClaimed(t *testing.T) {
	var failed atomic.Bool
	cfg := testConfig(t)
	cfg.Jobs = 1
	cfg.BatchSize = 1

	r := newRunner(t, cfg, 4, casebatch.WithExecutorFactory(factoryOf(
		func(ctx context.Context, c casebatch.Case) (casebatch.Result, error) {
			if failed.CompareAndSwap(false, true) {
				return nil, errors.New("session expired")
			}
			return casebatch.Result{"lr": 2.5}, nil
		})))

	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, waitRun(t, r))

	counts, err := r.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, casebatch.Counts{Total: 4, InProgress: 1, Finished: 3}, counts)

	slots := r.Slots()
	require.Len(t, slots, 1)
	assert.Equal(t, 1, slots[0].Restarts)
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state casebatch.State
		want  string
	}{
		{casebatch.StateStopped, "Stopped"},
		{casebatch.StateStarting, "Starting"},
		{casebatch.StateRunning, "Running"},
		{casebatch.StateStopping, "Stopping"},
		{casebatch.StateCrashed, "Crashed"},
		{casebatch.State(99), "Unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestConfig_SetDefaults(t *testing.T) {
	cfg := casebatch.Config{ServiceURL: "http://localhost:2926/"}
	cfg.SetDefaults()

	assert.Equal(t, casebatch.DefaultJobs, cfg.Jobs)
	assert.Equal(t, casebatch.DefaultBatchSize, cfg.BatchSize)
	assert.Equal(t, casebatch.DefaultPollInterval, cfg.PollInterval)
	assert.Equal(t, casebatch.DefaultProgressInterval, cfg.ProgressInterval)
	assert.Equal(t, casebatch.DefaultHTTPTimeout, cfg.HTTPTimeout)
	assert.Equal(t, "http://localhost:2926", cfg.ServiceURL)
}
