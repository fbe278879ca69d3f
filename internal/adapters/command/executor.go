package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bft-labs/casebatch/internal/domain"
	"github.com/bft-labs/casebatch/internal/ports"
	"github.com/bft-labs/casebatch/pkg/log"
)

// Environment variables set for every invocation.
const (
	EnvSlot     = "CASEBATCH_SLOT"
	EnvCaseID   = "CASEBATCH_CASE_ID"
	EnvCaseName = "CASEBATCH_CASE_NAME"
)

// WaitDelay bounds how long Execute waits for output pipes after the program
// exits or is killed. Background processes it spawned may hold them open.
const WaitDelay = 500 * time.Millisecond

// Config configures a command executor.
type Config struct {
	// Path is the program to run.
	Path string

	// Args are passed to the program unchanged.
	Args []string

	// Env is appended to the parent environment.
	Env []string

	// Timeout bounds a single case. Zero means no limit.
	Timeout time.Duration
}

// Executor implements ports.Executor by running Config.Path once per case.
type Executor struct {
	cfg    Config
	slot   int
	logger ports.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

// NewExecutor creates a command executor for a supervisor slot.
func NewExecutor(cfg Config, slot int, logger ports.Logger) *Executor {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Executor{
		cfg:    cfg,
		slot:   slot,
		logger: logger.With(ports.Int("slot", slot)),
	}
}

// NewFactory returns an executor factory producing command executors.
func NewFactory(cfg Config, logger ports.Logger) ports.ExecutorFactory {
	return ports.ExecutorFactoryFunc(func(ctx context.Context, slot int) (ports.Executor, error) {
		if cfg.Path == "" {
			return nil, fmt.Errorf("%w: command path is required", domain.ErrInvalidConfig)
		}
		if _, err := exec.LookPath(cfg.Path); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
		}
		return NewExecutor(cfg, slot, logger), nil
	})
}

var errClosed = errors.New("executor closed")

// Execute runs the program for c and decodes its stdout as the result.
func (e *Executor) Execute(ctx context.Context, c domain.Case) (domain.Result, error) {
	input, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal case: %w", err)
	}

	ctx, cancel := e.runContext(ctx)
	if cancel == nil {
		return nil, errClosed
	}
	defer e.release(cancel)

	cmd := exec.CommandContext(ctx, e.cfg.Path, e.cfg.Args...)
	cmd.Env = append(os.Environ(), e.cfg.Env...)
	cmd.Env = append(cmd.Env,
		EnvSlot+"="+strconv.Itoa(e.slot),
		EnvCaseID+"="+strconv.FormatInt(c.ID, 10),
		EnvCaseName+"="+c.Name(),
	)
	cmd.Stdin = bytes.NewReader(input)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	stderr := &lineLogger{logger: e.logger, caseID: c.ID}
	cmd.Stderr = stderr
	cmd.WaitDelay = WaitDelay

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", e.cfg.Path, err)
	}

	err = cmd.Wait()
	stderr.flush()
	if err != nil && !errors.Is(err, exec.ErrWaitDelay) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("run %s: %w", e.cfg.Path, ctxErr)
		}
		return nil, fmt.Errorf("run %s: %w", e.cfg.Path, err)
	}
	if err != nil {
		e.logger.Warn("executor left background processes holding its output",
			ports.Int64("case", c.ID))
	}

	result, err := domain.UnmarshalResult(stdout.Bytes())
	if err != nil {
		return nil, fmt.Errorf("decode output of %s: %w", e.cfg.Path, err)
	}

	e.logger.Debug("case executed",
		ports.Int64("case", c.ID),
		ports.Duration("elapsed", time.Since(started)),
	)
	return result, nil
}

// Close stops any running invocation. Later calls to Execute fail.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	if e.cancel != nil {
		e.cancel()
	}
	return nil
}

func (e *Executor) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, nil
	}

	var cancel context.CancelFunc
	if e.cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
	} else {
		e.logger.Debug("command has no timeout", ports.String("path", e.cfg.Path))
		ctx, cancel = context.WithCancel(ctx)
	}
	e.cancel = cancel
	return ctx, cancel
}

func (e *Executor) release(cancel context.CancelFunc) {
	cancel()
	e.mu.Lock()
	e.cancel = nil
	e.mu.Unlock()
}

// lineLogger forwards each complete line written to it as a debug entry.
type lineLogger struct {
	logger ports.Logger
	caseID int64

	mu  sync.Mutex
	buf []byte
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = append(l.buf, p...)
	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			break
		}
		l.emit(l.buf[:i])
		l.buf = l.buf[i+1:]
	}
	return len(p), nil
}

func (l *lineLogger) flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.emit(l.buf)
	l.buf = nil
}

func (l *lineLogger) emit(line []byte) {
	text := strings.TrimSpace(string(line))
	if text == "" {
		return
	}
	l.logger.Debug("executor stderr", ports.Int64("case", l.caseID), ports.String("line", text))
}
