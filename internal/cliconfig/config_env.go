package cliconfig

import (
	"os"
	"time"
)

// EnvPrefix prefixes every environment variable read by ApplyEnvConfig.
const EnvPrefix = "CASEBATCH_"

// ApplyEnvConfig applies configuration from environment variables (CASEBATCH_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)
	env := func(name string) string { return os.Getenv(EnvPrefix + name) }

	s.setString("db", env("DB"), &cfg.DBPath)
	s.setString("executor", env("EXECUTOR"), &cfg.Executor)
	s.setString("service-url", env("SERVICE_URL"), &cfg.ServiceURL)
	s.setString("auth-key", env("AUTH_KEY"), &cfg.AuthKey)
	s.setString("command", env("COMMAND"), &cfg.Command)
	s.setFieldsFromString("command-arg", env("COMMAND_ARGS"), &cfg.CommandArgs)
	s.setString("sweep-dir", env("SWEEP_DIR"), &cfg.SweepDir)
	s.setString("sweep-glob", env("SWEEP_GLOB"), &cfg.SweepGlob)

	durations := []struct {
		flag string
		name string
		dst  *time.Duration
	}{
		{"poll", "POLL_INTERVAL", &cfg.PollInterval},
		{"progress-interval", "PROGRESS_INTERVAL", &cfg.ProgressInterval},
		{"shutdown-timeout", "SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
		{"restart-backoff", "RESTART_BACKOFF", &cfg.RestartBackoff},
		{"restart-backoff-max", "RESTART_BACKOFF_MAX", &cfg.RestartBackoffMax},
		{"timeout", "HTTP_TIMEOUT", &cfg.HTTPTimeout},
		{"command-timeout", "COMMAND_TIMEOUT", &cfg.CommandTimeout},
		{"sweep-interval", "SWEEP_INTERVAL", &cfg.SweepInterval},
		{"sweep-min-age", "SWEEP_MIN_AGE", &cfg.SweepMinAge},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, env(d.name), d.dst); err != nil {
			return err
		}
	}

	if err := s.setIntFromString("jobs", env("JOBS"), &cfg.Jobs); err != nil {
		return err
	}
	if err := s.setIntFromString("batch-size", env("BATCH_SIZE"), &cfg.BatchSize); err != nil {
		return err
	}
	if err := s.setFloatFromString("rate-limit", env("RATE_LIMIT"), &cfg.RateLimit); err != nil {
		return err
	}

	s.setBoolFromString("autosave", env("AUTOSAVE"), &cfg.Autosave)
	s.setBoolFromString("verbose", env("VERBOSE"), &cfg.Verbose)

	return nil
}
