package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds the engine configuration. Values are loaded from an optional
// YAML file, then overridden by THYWILL_* environment variables. A Config is
// passed explicitly into every component constructor; there is no ambient
// global state.
type Config struct {
	// ArchiveRoot is the root directory of the archive tree.
	ArchiveRoot string `yaml:"archive_root" env:"ARCHIVE_ROOT"`

	// DatabasePath is the SQLite database file backing the derived index.
	DatabasePath string `yaml:"database_path" env:"DATABASE_PATH"`

	// BatchSize bounds how many records a reconcile or heal pass writes
	// inside one transaction before committing.
	BatchSize int `yaml:"batch_size" env:"BATCH_SIZE"`

	// WriteRetries bounds retry attempts for a failed archive write.
	WriteRetries int `yaml:"write_retries" env:"WRITE_RETRIES"`

	// WriteBackoff is the initial retry backoff; it doubles per attempt.
	WriteBackoff time.Duration `yaml:"write_backoff" env:"WRITE_BACKOFF"`

	// LogLevel follows slog conventions: 0 info, -4 debug.
	LogLevel int `yaml:"log_level" env:"LOG_LEVEL"`
}

// Default returns the configuration used when no file or overrides exist.
func Default() Config {
	return Config{
		ArchiveRoot:  "archive",
		DatabasePath: "thywill.db",
		BatchSize:    200,
		WriteRetries: 3,
		WriteBackoff: 50 * time.Millisecond,
	}
}

// Load reads configuration from the YAML file at path (skipped when path is
// empty or the file does not exist), then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "THYWILL_"}); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.ArchiveRoot == "" {
		return fmt.Errorf("config: archive_root must not be empty")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("config: database_path must not be empty")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("config: batch_size must be positive, got %d", c.BatchSize)
	}
	if c.WriteRetries < 1 {
		return fmt.Errorf("config: write_retries must be positive, got %d", c.WriteRetries)
	}
	return nil
}
