package casebatch

import (
	"fmt"
	"strings"
	"time"

	"github.com/bft-labs/casebatch/internal/app"
	"github.com/bft-labs/casebatch/internal/domain"
)

// Default configuration values.
const (
	DefaultJobs             = 8
	DefaultBatchSize        = 64
	DefaultPollInterval     = time.Second
	DefaultProgressInterval = 10 * time.Second
	DefaultHTTPTimeout      = 30 * time.Second
	DefaultCommandTimeout   = 30 * time.Second
)

// Config holds the configuration of a Runner.
type Config struct {
	// DBPath is the SQLite case database. Required.
	DBPath string

	// Jobs is the number of concurrent worker slots.
	Jobs int

	// BatchSize is the number of cases a worker claims at once.
	BatchSize int

	// Autosave commits every result immediately instead of once per batch.
	Autosave bool

	PollInterval      time.Duration
	ProgressInterval  time.Duration
	ShutdownTimeout   time.Duration
	RestartBackoff    time.Duration
	RestartBackoffMax time.Duration

	// ServiceURL selects the HTTP executor.
	ServiceURL  string
	AuthKey     string
	HTTPTimeout time.Duration

	// Command selects the external command executor.
	Command        string
	CommandArgs    []string
	CommandTimeout time.Duration

	// RateLimit caps executions per second across all workers; 0 is unlimited.
	RateLimit float64
}

// SetDefaults fills zero fields with default values.
func (c *Config) SetDefaults() {
	if c.Jobs <= 0 {
		c.Jobs = DefaultJobs
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = DefaultProgressInterval
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = app.ShutdownTimeout
	}
	if c.RestartBackoff <= 0 {
		c.RestartBackoff = app.DefaultBackoffInitial
	}
	if c.RestartBackoffMax <= 0 {
		c.RestartBackoffMax = app.DefaultBackoffMax
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	c.ServiceURL = strings.TrimRight(c.ServiceURL, "/")
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("%w: db path is required", domain.ErrInvalidConfig)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%w: rate limit must not be negative", domain.ErrInvalidConfig)
	}
	if c.ServiceURL != "" && c.Command != "" {
		return fmt.Errorf("%w: service url and command are mutually exclusive", domain.ErrInvalidConfig)
	}
	return nil
}
