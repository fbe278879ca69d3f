package cliconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Executor kinds.
const (
	ExecutorHTTP    = "http"
	ExecutorCommand = "command"
)

// DefaultDBPath is the case database used when none is configured.
const DefaultDBPath = "casebatch.db"

// Config holds CLI configuration for casebatch.
type Config struct {
	DBPath string

	Jobs      int
	BatchSize int
	Autosave  bool

	PollInterval      time.Duration
	ProgressInterval  time.Duration
	ShutdownTimeout   time.Duration
	RestartBackoff    time.Duration
	RestartBackoffMax time.Duration

	Executor string

	ServiceURL  string
	AuthKey     string
	HTTPTimeout time.Duration

	Command        string
	CommandArgs    []string
	CommandTimeout time.Duration

	RateLimit float64

	SweepDir      string
	SweepGlob     string
	SweepInterval time.Duration
	SweepMinAge   time.Duration

	Verbose bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		DBPath:            DefaultDBPath,
		Jobs:              8,
		BatchSize:         64,
		Autosave:          false,
		PollInterval:      time.Second,
		ProgressInterval:  10 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		RestartBackoff:    500 * time.Millisecond,
		RestartBackoffMax: 30 * time.Second,
		Executor:          ExecutorHTTP,
		HTTPTimeout:       30 * time.Second,
		CommandTimeout:    30 * time.Second,
		SweepInterval:     10 * time.Second,
		AuthKey:           os.Getenv("CASEBATCH_AUTH_KEY"),
	}
}

// Validate checks the configuration for errors and normalizes values.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Jobs <= 0 {
		return fmt.Errorf("jobs must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.ProgressInterval <= 0 {
		return fmt.Errorf("progress interval must be positive")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}

	c.Executor = strings.ToLower(strings.TrimSpace(c.Executor))
	switch c.Executor {
	case ExecutorHTTP:
		if c.ServiceURL == "" {
			return fmt.Errorf("service-url is required for the http executor")
		}
		c.ServiceURL = strings.TrimRight(c.ServiceURL, "/")
	case ExecutorCommand:
		if c.Command == "" {
			return fmt.Errorf("command is required for the command executor")
		}
	default:
		return fmt.Errorf("unknown executor %q (want %s or %s)", c.Executor, ExecutorHTTP, ExecutorCommand)
	}

	if (c.SweepDir == "") != (c.SweepGlob == "") {
		return fmt.Errorf("sweep-dir and sweep-glob must be set together")
	}
	return nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setStrings sets a list value if not empty and flag not changed.
func (s *configSetter) setStrings(flag string, value []string, dst *[]string) {
	if len(value) == 0 || s.changed[flag] {
		return
	}
	*dst = append([]string(nil), value...)
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setFloat sets a float64 value if positive and flag not changed.
func (s *configSetter) setFloat(flag string, value float64, dst *float64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setFloatFromString parses a string to float64 and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setFloatFromString(flag, value string, dst *float64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if f <= 0 {
		return nil
	}
	*dst = f
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}

// setFieldsFromString splits a whitespace-separated list.
func (s *configSetter) setFieldsFromString(flag, value string, dst *[]string) {
	s.setStrings(flag, strings.Fields(value), dst)
}
