package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/bft-labs/casebatch/internal/domain"
	"github.com/bft-labs/casebatch/internal/ports"
	"github.com/bft-labs/casebatch/pkg/log"
)

const executeEndpoint = "/v1/cases/execute"

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 4 << 20

// Config configures an HTTP executor.
type Config struct {
	// ServiceURL is the base URL of the execution service.
	ServiceURL string

	// AuthKey is sent as a bearer token.
	AuthKey string

	// Timeout bounds a single request. Zero means no client timeout.
	Timeout time.Duration
}

// Executor implements ports.Executor by delegating each case to a remote
// execution service over HTTP.
type Executor struct {
	cfg      Config
	slot     int
	client   ports.HTTPClient
	logger   ports.Logger
	hostname string
}

// NewExecutor creates a new HTTP executor for a supervisor slot.
// If client is nil a dedicated *http.Client is created.
func NewExecutor(cfg Config, slot int, client ports.HTTPClient, logger ports.Logger) *Executor {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	hostname, _ := os.Hostname()
	return &Executor{
		cfg:      cfg,
		slot:     slot,
		client:   client,
		logger:   logger,
		hostname: hostname,
	}
}

// NewFactory returns an executor factory producing HTTP executors that share
// one client.
func NewFactory(cfg Config, client ports.HTTPClient, logger ports.Logger) ports.ExecutorFactory {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return ports.ExecutorFactoryFunc(func(ctx context.Context, slot int) (ports.Executor, error) {
		if cfg.ServiceURL == "" {
			return nil, fmt.Errorf("%w: service url is required", domain.ErrInvalidConfig)
		}
		return NewExecutor(cfg, slot, client, logger), nil
	})
}

// Execute posts the case as JSON and decodes the JSON object in the 2xx
// response as its result.
func (e *Executor) Execute(ctx context.Context, c domain.Case) (domain.Result, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal case: %w", err)
	}

	url := e.cfg.ServiceURL + executeEndpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if e.cfg.AuthKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.AuthKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Casebatch-Hostname", e.hostname)
	req.Header.Set("X-Casebatch-OSArch", runtime.GOOS+"/"+runtime.GOARCH)
	req.Header.Set("X-Casebatch-Slot", strconv.Itoa(e.slot))
	req.Header.Set("X-Casebatch-Case", c.Name())

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}

	result, err := domain.UnmarshalResult(body)
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	e.logger.Debug("case executed remotely",
		ports.Int64("case", c.ID),
		ports.Int("status", resp.StatusCode),
	)
	return result, nil
}

// Close releases idle connections when the executor owns an *http.Client.
func (e *Executor) Close() error {
	if hc, ok := e.client.(*http.Client); ok {
		hc.CloseIdleConnections()
	}
	return nil
}
