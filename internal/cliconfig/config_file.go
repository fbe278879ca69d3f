package cliconfig

import (
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	DBPath            string   `toml:"db"`
	Jobs              int      `toml:"jobs"`
	BatchSize         int      `toml:"batch_size"`
	Autosave          *bool    `toml:"autosave"`
	PollInterval      string   `toml:"poll_interval"`
	ProgressInterval  string   `toml:"progress_interval"`
	ShutdownTimeout   string   `toml:"shutdown_timeout"`
	RestartBackoff    string   `toml:"restart_backoff"`
	RestartBackoffMax string   `toml:"restart_backoff_max"`
	Executor          string   `toml:"executor"`
	ServiceURL        string   `toml:"service_url"`
	AuthKey           string   `toml:"auth_key"`
	HTTPTimeout       string   `toml:"http_timeout"`
	Command           string   `toml:"command"`
	CommandArgs       []string `toml:"command_args"`
	CommandTimeout    string   `toml:"command_timeout"`
	RateLimit         float64  `toml:"rate_limit"`
	SweepDir          string   `toml:"sweep_dir"`
	SweepGlob         string   `toml:"sweep_glob"`
	SweepInterval     string   `toml:"sweep_interval"`
	SweepMinAge       string   `toml:"sweep_min_age"`
	Verbose           *bool    `toml:"verbose"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.casebatch/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".casebatch", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("db", fc.DBPath, &cfg.DBPath)
	s.setString("executor", fc.Executor, &cfg.Executor)
	s.setString("service-url", fc.ServiceURL, &cfg.ServiceURL)
	s.setString("auth-key", fc.AuthKey, &cfg.AuthKey)
	s.setString("command", fc.Command, &cfg.Command)
	s.setStrings("command-arg", fc.CommandArgs, &cfg.CommandArgs)
	s.setString("sweep-dir", fc.SweepDir, &cfg.SweepDir)
	s.setString("sweep-glob", fc.SweepGlob, &cfg.SweepGlob)

	durations := []struct {
		flag  string
		value string
		dst   *time.Duration
	}{
		{"poll", fc.PollInterval, &cfg.PollInterval},
		{"progress-interval", fc.ProgressInterval, &cfg.ProgressInterval},
		{"shutdown-timeout", fc.ShutdownTimeout, &cfg.ShutdownTimeout},
		{"restart-backoff", fc.RestartBackoff, &cfg.RestartBackoff},
		{"restart-backoff-max", fc.RestartBackoffMax, &cfg.RestartBackoffMax},
		{"timeout", fc.HTTPTimeout, &cfg.HTTPTimeout},
		{"command-timeout", fc.CommandTimeout, &cfg.CommandTimeout},
		{"sweep-interval", fc.SweepInterval, &cfg.SweepInterval},
		{"sweep-min-age", fc.SweepMinAge, &cfg.SweepMinAge},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, d.value, d.dst); err != nil {
			return err
		}
	}

	s.setInt("jobs", fc.Jobs, &cfg.Jobs)
	s.setInt("batch-size", fc.BatchSize, &cfg.BatchSize)
	s.setFloat("rate-limit", fc.RateLimit, &cfg.RateLimit)

	s.setBool("autosave", fc.Autosave, &cfg.Autosave)
	s.setBool("verbose", fc.Verbose, &cfg.Verbose)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
