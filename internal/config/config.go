// Package config loads mergeline settings: defaults, then an optional YAML
// file, then MERGELINE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/nconklindev/mergeline/internal/header"
	"github.com/nconklindev/mergeline/internal/loader"
	"github.com/nconklindev/mergeline/internal/merge"
)

// EnvPrefix prefixes every environment override, e.g. MERGELINE_INGEST_PRIMARY_KEY.
const EnvPrefix = "MERGELINE"

// DefaultFile is read when present and no file is named explicitly.
const DefaultFile = "mergeline.yaml"

// Config represents the complete application configuration
type Config struct {
	Paths   PathsConfig   `yaml:"paths" envconfig:"PATHS"`
	Ingest  IngestConfig  `yaml:"ingest" envconfig:"INGEST"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	Console ConsoleConfig `yaml:"console" envconfig:"CONSOLE"`
}

// PathsConfig locates inputs and every artifact the engine writes.
type PathsConfig struct {
	InputDir   string `yaml:"input_dir" envconfig:"INPUT_DIR"`
	MasterPath string `yaml:"master_path" envconfig:"MASTER_PATH"`
	SchemaPath string `yaml:"schema_path" envconfig:"SCHEMA_PATH"`
	BackupDir  string `yaml:"backup_dir" envconfig:"BACKUP_DIR"`
	LogPath    string `yaml:"log_path" envconfig:"LOG_PATH"`
	LockPath   string `yaml:"lock_path" envconfig:"LOCK_PATH"`
}

type IngestConfig struct {
	PrimaryKey     string   `yaml:"primary_key" envconfig:"PRIMARY_KEY"`
	KeyMatch       string   `yaml:"key_match" envconfig:"KEY_MATCH"`
	Pattern        string   `yaml:"pattern" envconfig:"PATTERN"`
	HeaderScanRows int      `yaml:"header_scan_rows" envconfig:"HEADER_SCAN_ROWS"`
	HeaderKeywords []string `yaml:"header_keywords" envconfig:"HEADER_KEYWORDS"`
	MinRows        int      `yaml:"min_rows" envconfig:"MIN_ROWS"`
	MinColumns     int      `yaml:"min_columns" envconfig:"MIN_COLUMNS"`
	Encodings      []string `yaml:"encodings" envconfig:"ENCODINGS"`
}

type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL"`
	Format      string `yaml:"format" envconfig:"FORMAT"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

type ConsoleConfig struct {
	NoColor bool `yaml:"no_color" envconfig:"NO_COLOR"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			InputDir:   "./data",
			MasterPath: "./data/cleaned_master.csv",
			SchemaPath: "./data/master_schema.csv",
			BackupDir:  "./data/backups",
			LogPath:    "./logs/ingestion.log",
			LockPath:   "./data/.ingest.lock",
		},
		Ingest: IngestConfig{
			PrimaryKey:     merge.DefaultPrimaryKey,
			KeyMatch:       string(merge.KeyMatchExact),
			Pattern:        "*",
			HeaderScanRows: header.DefaultScanRows,
			HeaderKeywords: append([]string(nil), header.DefaultKeywords...),
			MinRows:        loader.DefaultMinRows,
			MinColumns:     loader.DefaultMinColumns,
			Encodings:      append([]string(nil), loader.DefaultEncodings...),
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "console",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path and
// the environment, then validates it. An empty path reads DefaultFile when
// it exists; a named file must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if err := cfg.loadFile(path); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile overlays the YAML file onto cfg; keys absent from the file keep
// their current values.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	required := []struct{ key, value string }{
		{"paths.input_dir", c.Paths.InputDir},
		{"paths.master_path", c.Paths.MasterPath},
		{"paths.backup_dir", c.Paths.BackupDir},
		{"paths.log_path", c.Paths.LogPath},
		{"ingest.primary_key", c.Ingest.PrimaryKey},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, r.key+" is required")
		}
	}
	if c.Paths.SchemaPath != "" && filepath.Clean(c.Paths.SchemaPath) == filepath.Clean(c.Paths.MasterPath) {
		errs = append(errs, "paths.schema_path must differ from paths.master_path")
	}

	if !merge.KeyMatch(c.Ingest.KeyMatch).Valid() {
		errs = append(errs, fmt.Sprintf("ingest.key_match %q must be %q or %q",
			c.Ingest.KeyMatch, merge.KeyMatchExact, merge.KeyMatchFolded))
	}
	if _, err := filepath.Match(c.Ingest.Pattern, ""); err != nil {
		errs = append(errs, fmt.Sprintf("ingest.pattern %q is not a valid glob", c.Ingest.Pattern))
	}
	if c.Ingest.HeaderScanRows <= 0 {
		errs = append(errs, "ingest.header_scan_rows must be positive")
	}
	if c.Ingest.MinRows <= 0 {
		errs = append(errs, "ingest.min_rows must be positive")
	}
	if c.Ingest.MinColumns <= 0 {
		errs = append(errs, "ingest.min_columns must be positive")
	}
	if len(c.Ingest.Encodings) == 0 {
		errs = append(errs, "ingest.encodings must list at least one encoding")
	}
	for _, enc := range c.Ingest.Encodings {
		if !loader.KnownEncoding(enc) {
			errs = append(errs, fmt.Sprintf("ingest.encodings: unknown encoding %q", enc))
		}
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Sprintf("logging.level %q is invalid", c.Logging.Level))
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		errs = append(errs, fmt.Sprintf("logging.format %q must be console or json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
