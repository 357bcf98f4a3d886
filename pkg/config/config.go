// Package config loads mimic's YAML configuration.
//
// A missing file is not an error: every field has a default, and the CLI
// works against local imports without any Matrix settings. Secrets can be
// kept out of the file with MIMIC_ACCESS_TOKEN.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment overrides applied by Load.
const (
	EnvDB          = "MIMIC_DB"
	EnvAccessToken = "MIMIC_ACCESS_TOKEN"
)

// Config is the top-level configuration file.
type Config struct {
	// Database is the SQLite file holding models, coverage and the run log.
	Database string         `yaml:"database"`
	Matrix   MatrixConfig   `yaml:"matrix"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Generate GenerateConfig `yaml:"generate"`
	Log      LogConfig      `yaml:"log"`
}

// MatrixConfig points the bot at a homeserver and the rooms it learns from.
type MatrixConfig struct {
	Homeserver  string   `yaml:"homeserver"`
	UserID      string   `yaml:"user_id"`
	AccessToken string   `yaml:"access_token"`
	Rooms       []string `yaml:"rooms"`

	// IgnoreUsers are never modelled, in addition to the bot itself.
	IgnoreUsers []string `yaml:"ignore_users"`

	// PageSize is the /messages limit per request.
	PageSize int `yaml:"page_size"`

	// PagesPerSecond caps history requests per room.
	PagesPerSecond float64 `yaml:"pages_per_second"`

	// Concurrency is how many rooms are ingested at once.
	Concurrency int `yaml:"concurrency"`
}

// IngestConfig tunes ingestion runs.
type IngestConfig struct {
	MaxMessages    int      `yaml:"max_messages"`
	IgnorePrefixes []string `yaml:"ignore_prefixes"`

	// Interval re-runs ingestion while serving; zero disables it.
	Interval time.Duration `yaml:"interval"`
}

// GenerateConfig tunes message generation.
type GenerateConfig struct {
	LengthMultiplier float64 `yaml:"length_multiplier"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Database: ".mimic/mimic.db",
		Matrix: MatrixConfig{
			PageSize:       100,
			PagesPerSecond: 2,
			Concurrency:    2,
		},
		Ingest: IngestConfig{
			IgnorePrefixes: []string{"!markov", "!help"},
		},
		Generate: GenerateConfig{LengthMultiplier: 1},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path on top of the defaults, applies environment overrides and
// validates the result. If path does not exist and optional is set, the
// defaults are used.
func Load(path string, optional bool) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case optional && errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDB); v != "" {
		c.Database = v
	}
	if v := os.Getenv(EnvAccessToken); v != "" {
		c.Matrix.AccessToken = v
	}
}

// Validate checks the settings every command relies on.
func (c *Config) Validate() error {
	var errs []error
	if c.Database == "" {
		errs = append(errs, errors.New("database: must not be empty"))
	}
	if c.Matrix.PageSize < 1 || c.Matrix.PageSize > 1000 {
		errs = append(errs, fmt.Errorf("matrix.page_size: %d out of range [1, 1000]", c.Matrix.PageSize))
	}
	if !(c.Matrix.PagesPerSecond > 0) || math.IsInf(c.Matrix.PagesPerSecond, 0) {
		errs = append(errs, fmt.Errorf("matrix.pages_per_second: must be positive, got %v", c.Matrix.PagesPerSecond))
	}
	if c.Matrix.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("matrix.concurrency: must be at least 1, got %d", c.Matrix.Concurrency))
	}
	if c.Ingest.MaxMessages < 0 {
		errs = append(errs, fmt.Errorf("ingest.max_messages: must not be negative, got %d", c.Ingest.MaxMessages))
	}
	if c.Ingest.Interval < 0 {
		errs = append(errs, fmt.Errorf("ingest.interval: must not be negative, got %v", c.Ingest.Interval))
	}
	if m := c.Generate.LengthMultiplier; !(m > 0) || math.IsInf(m, 0) {
		errs = append(errs, fmt.Errorf("generate.length_multiplier: must be positive, got %v", m))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// ValidateMatrix checks the settings needed to talk to a homeserver.
func (c *Config) ValidateMatrix() error {
	var errs []error
	if c.Matrix.Homeserver == "" {
		errs = append(errs, errors.New("matrix.homeserver: required"))
	}
	if c.Matrix.UserID == "" {
		errs = append(errs, errors.New("matrix.user_id: required"))
	}
	if c.Matrix.AccessToken == "" {
		errs = append(errs, fmt.Errorf("matrix.access_token: required (or set %s)", EnvAccessToken))
	}
	return errors.Join(errs...)
}
