package commands

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sqlrunner.toml")
	content := `
database_url = "sqlite://from-file.db"
migration_file = "file.sql"
halt_on_error = true
statement_timeout = "30s"
splitter = "postgres"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("DATABASE_URL", "")
	t.Setenv("CFGTEST_MIGRATION_FILE", "env.sql")
	t.Setenv("CFGTEST_RUN_TIMEOUT", "2m")

	cfg, err := LoadConfig("CFGTEST", path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.DatabaseURL != "sqlite://from-file.db" {
		t.Errorf("Expected database url from file, got %q", cfg.DatabaseURL)
	}
	if cfg.File != "env.sql" {
		t.Errorf("Expected env to override file, got %q", cfg.File)
	}
	if !cfg.HaltOnError {
		t.Error("Expected halt_on_error from file")
	}
	if cfg.StatementTimeout != 30*time.Second {
		t.Errorf("Expected 30s statement timeout, got %s", cfg.StatementTimeout)
	}
	if cfg.RunTimeout != 2*time.Minute {
		t.Errorf("Expected 2m run timeout, got %s", cfg.RunTimeout)
	}
	if cfg.ConnectTimeout != 10*time.Second {
		t.Errorf("Expected default connect timeout, got %s", cfg.ConnectTimeout)
	}
	if cfg.Splitter != "postgres" {
		t.Errorf("Expected splitter from file, got %q", cfg.Splitter)
	}
}

func TestLoadConfigDatabaseURLAlias(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://legacy")

	cfg, err := LoadConfig("CFGALIAS", "")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.DatabaseURL != "postgres://legacy" {
		t.Errorf("Expected DATABASE_URL fallback, got %q", cfg.DatabaseURL)
	}
	if cfg.Splitter != "simple" {
		t.Errorf("Expected default splitter, got %q", cfg.Splitter)
	}

	t.Setenv("CFGALIAS_DATABASE_URL", "postgres://namespaced")
	cfg, err = LoadConfig("CFGALIAS", "")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.DatabaseURL != "postgres://namespaced" {
		t.Errorf("Expected namespaced variable to win, got %q", cfg.DatabaseURL)
	}
}

func TestLoadConfigExplicitZeroDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zero.toml")
	content := `
connect_timeout = "0s"
statement_timeout = "0s"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig("CFGZERO", path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.ConnectTimeout != 0 {
		t.Errorf("Expected connect_timeout = \"0s\" to disable the timeout, got %s", cfg.ConnectTimeout)
	}
	if cfg.StatementTimeout != 0 {
		t.Errorf("Expected zero statement timeout, got %s", cfg.StatementTimeout)
	}

	t.Setenv("CFGZERO_CONNECT_TIMEOUT", "3s")
	cfg, err = LoadConfig("CFGZERO", path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.ConnectTimeout != 3*time.Second {
		t.Errorf("Expected env to override file zero, got %s", cfg.ConnectTimeout)
	}
}

func TestLoadConfigBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte(`run_timeout = "forever"`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig("CFGBAD", path); err == nil {
		t.Error("Expected error for bad duration")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		needDB bool
		want   error
	}{
		{"missing url", Config{File: "a.sql"}, true, ErrMissingDatabaseURL},
		{"missing url and file reports url first", Config{}, true, ErrMissingDatabaseURL},
		{"plan without url", Config{File: "a.sql"}, false, nil},
		{"missing file", Config{DatabaseURL: "x"}, true, ErrMissingFile},
		{"complete", Config{DatabaseURL: "x", File: "a.sql"}, true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate(tt.needDB)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}

	if err := (Config{DatabaseURL: "x", File: "a", RunTimeout: -time.Second}).Validate(true); err == nil {
		t.Error("Expected error for negative timeout")
	}
}
