package cliconfig

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestApplyFileConfig(t *testing.T) {
	trueVal := true

	tests := []struct {
		name       string
		fileConfig FileConfig
		changed    map[string]bool
		initial    Config
		expected   Config
		wantErr    bool
	}{
		{
			name: "applies all valid config values",
			fileConfig: FileConfig{
				DBPath:            "/data/cases.db",
				Jobs:              4,
				BatchSize:         16,
				Autosave:          &trueVal,
				PollInterval:      "2s",
				ProgressInterval:  "1m",
				ShutdownTimeout:   "45s",
				RestartBackoff:    "1s",
				RestartBackoffMax: "1m",
				Executor:          "command",
				ServiceURL:        "http://example.com",
				AuthKey:           "secret",
				HTTPTimeout:       "20s",
				Command:           "/opt/fill-form",
				CommandArgs:       []string{"--headless", "--width=1024"},
				CommandTimeout:    "90s",
				RateLimit:         2.5,
				SweepDir:          "/srv/upload",
				SweepGlob:         "**/*.pdf",
				SweepInterval:     "30s",
				SweepMinAge:       "5m",
				Verbose:           &trueVal,
			},
			changed: map[string]bool{},
			initial: Config{},
			expected: Config{
				DBPath:            "/data/cases.db",
				Jobs:              4,
				BatchSize:         16,
				Autosave:          true,
				PollInterval:      2 * time.Second,
				ProgressInterval:  time.Minute,
				ShutdownTimeout:   45 * time.Second,
				RestartBackoff:    time.Second,
				RestartBackoffMax: time.Minute,
				Executor:          "command",
				ServiceURL:        "http://example.com",
				AuthKey:           "secret",
				HTTPTimeout:       20 * time.Second,
				Command:           "/opt/fill-form",
				CommandArgs:       []string{"--headless", "--width=1024"},
				CommandTimeout:    90 * time.Second,
				RateLimit:         2.5,
				SweepDir:          "/srv/upload",
				SweepGlob:         "**/*.pdf",
				SweepInterval:     30 * time.Second,
				SweepMinAge:       5 * time.Minute,
				Verbose:           true,
			},
		},
		{
			name: "respects changed flags",
			fileConfig: FileConfig{
				DBPath: "/config/cases.db",
				Jobs:   2,
			},
			changed: map[string]bool{"db": true},
			initial: Config{
				DBPath: "/flag/cases.db",
				Jobs:   8,
			},
			expected: Config{
				DBPath: "/flag/cases.db", // unchanged because flag was set
				Jobs:   2,
			},
		},
		{
			name: "returns error for invalid duration",
			fileConfig: FileConfig{
				PollInterval: "soon",
			},
			changed: map[string]bool{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.initial
			err := ApplyFileConfig(&cfg, tt.fileConfig, tt.changed)

			if tt.wantErr && err == nil {
				t.Error("ApplyFileConfig() expected error but got nil")
				return
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ApplyFileConfig() unexpected error: %v", err)
				return
			}
			if !tt.wantErr && !reflect.DeepEqual(cfg, tt.expected) {
				t.Errorf("ApplyFileConfig() = %+v, want %+v", cfg, tt.expected)
			}
		})
	}
}

func TestLoadFileConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.toml")

	tomlContent := `
db = "/tmp/cases.db"
jobs = 6
poll_interval = "5s"
rate_limit = 0.5
executor = "command"
command = "/opt/fill-form"
command_args = ["--headless"]
autosave = true
`

	if err := os.WriteFile(configPath, []byte(tomlContent), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	fc, err := LoadFileConfig(configPath)
	if err != nil {
		t.Fatalf("LoadFileConfig() error = %v", err)
	}

	if fc.DBPath != "/tmp/cases.db" {
		t.Errorf("DBPath = %v, want /tmp/cases.db", fc.DBPath)
	}
	if fc.Jobs != 6 {
		t.Errorf("Jobs = %v, want 6", fc.Jobs)
	}
	if fc.PollInterval != "5s" {
		t.Errorf("PollInterval = %v, want 5s", fc.PollInterval)
	}
	if fc.RateLimit != 0.5 {
		t.Errorf("RateLimit = %v, want 0.5", fc.RateLimit)
	}
	if fc.Executor != "command" || fc.Command != "/opt/fill-form" {
		t.Errorf("Executor/Command = %v/%v, want command//opt/fill-form", fc.Executor, fc.Command)
	}
	if !reflect.DeepEqual(fc.CommandArgs, []string{"--headless"}) {
		t.Errorf("CommandArgs = %v, want [--headless]", fc.CommandArgs)
	}
	if fc.Autosave == nil || *fc.Autosave != true {
		t.Errorf("Autosave = %v, want true", fc.Autosave)
	}
	if fc.Verbose != nil {
		t.Errorf("Verbose = %v, want nil when absent", fc.Verbose)
	}
}

func TestLoadFileConfig_InvalidFile(t *testing.T) {
	_, err := LoadFileConfig("/nonexistent/path/config.toml")
	if err == nil {
		t.Error("LoadFileConfig() expected error for nonexistent file")
	}
}

func TestLoadFileConfig_InvalidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.toml")

	invalidContent := `
db = "/test"
this is not valid toml
`

	if err := os.WriteFile(configPath, []byte(invalidContent), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	_, err := LoadFileConfig(configPath)
	if err == nil {
		t.Error("LoadFileConfig() expected error for invalid TOML")
	}
}

func TestDefaultConfigPath(t *testing.T) {
	path := DefaultConfigPath()

	if path != "" && !strings.Contains(path, ".casebatch") {
		t.Errorf("DefaultConfigPath() = %v, should contain .casebatch", path)
	}
}

func TestFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	existingFile := filepath.Join(tmpDir, "exists.txt")

	if err := os.WriteFile(existingFile, []byte("test"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	if !FileExists(existingFile) {
		t.Error("FileExists() = false, want true for existing file")
	}

	if FileExists(filepath.Join(tmpDir, "nonexistent.txt")) {
		t.Error("FileExists() = true, want false for nonexistent file")
	}
}
