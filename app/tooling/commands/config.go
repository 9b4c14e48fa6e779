package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/jrazmi/sqlrunner/sdk/environment"
)

// Configuration errors. Both are fatal and raised before any file access or
// connection attempt.
var (
	ErrMissingDatabaseURL = errors.New("database url is not configured (set SQLRUNNER_DATABASE_URL or DATABASE_URL, or pass --database-url)")
	ErrMissingFile        = errors.New("migration file is not configured (pass it as an argument or set SQLRUNNER_MIGRATION_FILE)")
)

// Config is the runner configuration. Layering, lowest first: tag defaults,
// TOML file, environment, command-line flags.
type Config struct {
	DatabaseURL      string        `env:"DATABASE_URL" alias:"DATABASE_URL"`
	File             string        `env:"MIGRATION_FILE"`
	HaltOnError      bool          `env:"HALT_ON_ERROR"`
	StatementTimeout time.Duration `env:"STATEMENT_TIMEOUT"`
	RunTimeout       time.Duration `env:"RUN_TIMEOUT"`
	ConnectTimeout   time.Duration `env:"CONNECT_TIMEOUT" default:"10s"`
	Splitter         string        `env:"SPLITTER" default:"simple"`
	LogQueries       bool          `env:"LOG_QUERIES"`
	ReportPath       string        `env:"REPORT_PATH"`
}

// fileConfig is the TOML shape of Config; durations are written as strings
// such as "30s". They are pointers so an explicit "0s" is told apart from an
// absent key.
type fileConfig struct {
	DatabaseURL      string  `toml:"database_url"`
	File             string  `toml:"migration_file"`
	HaltOnError      bool    `toml:"halt_on_error"`
	StatementTimeout *string `toml:"statement_timeout"`
	RunTimeout       *string `toml:"run_timeout"`
	ConnectTimeout   *string `toml:"connect_timeout"`
	Splitter         string  `toml:"splitter"`
	LogQueries       bool    `toml:"log_queries"`
	ReportPath       string  `toml:"report_path"`
}

// LoadConfig builds a Config from the optional TOML file at path and the
// environment, namespaced by prefix.
func LoadConfig(prefix, path string) (Config, error) {
	var fc fileConfig
	if err := environment.LoadFile(path, &fc); err != nil {
		return Config{}, err
	}

	cfg := Config{
		DatabaseURL: fc.DatabaseURL,
		File:        fc.File,
		HaltOnError: fc.HaltOnError,
		Splitter:    fc.Splitter,
		LogQueries:  fc.LogQueries,
		ReportPath:  fc.ReportPath,
	}

	durations := []struct {
		name   string
		envKey string
		raw    *string
		dst    *time.Duration
	}{
		{"statement_timeout", "STATEMENT_TIMEOUT", fc.StatementTimeout, &cfg.StatementTimeout},
		{"run_timeout", "RUN_TIMEOUT", fc.RunTimeout, &cfg.RunTimeout},
		{"connect_timeout", "CONNECT_TIMEOUT", fc.ConnectTimeout, &cfg.ConnectTimeout},
	}
	for _, d := range durations {
		if d.raw == nil {
			continue
		}
		v, err := time.ParseDuration(*d.raw)
		if err != nil {
			return Config{}, fmt.Errorf("config %s: %w", d.name, err)
		}
		*d.dst = v
	}

	if err := environment.ParseEnvTags(prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing runner config: %w", err)
	}

	// ParseEnvTags treats a zero field as unset and fills in the tag default,
	// so a file value of "0s" is restored unless the environment overrides it.
	for _, d := range durations {
		if d.raw == nil {
			continue
		}
		if _, ok := environment.Lookup(prefix, d.envKey, ""); ok {
			continue
		}
		// Parsed without error above.
		*d.dst, _ = time.ParseDuration(*d.raw)
	}

	return cfg, nil
}

// Validate checks the settings every command needs before touching the
// filesystem or the network.
func (c Config) Validate(needDatabase bool) error {
	if needDatabase && c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	if c.File == "" {
		return ErrMissingFile
	}
	if c.StatementTimeout < 0 || c.RunTimeout < 0 || c.ConnectTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}
