// Package config holds the sheetcrud server configuration: defaults, an
// optional YAML or JSONC file and a few environment overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"
)

// Environment variables read by LoadFromEnv.
const (
	EnvStorageDSN  = "SHEETCRUD_STORAGE_DSN"
	EnvStoragePath = "SHEETCRUD_STORAGE_PATH"
	EnvTable       = "SHEETCRUD_TABLE"
)

// Store kinds accepted by Validate. They match the names the storage
// backends register under.
var storageKinds = []string{"sqlite", "postgres", "mssql"}

var metricsBackends = []string{"", "none", "datadog"}

// Config is the complete server configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `json:"addr" yaml:"addr"`

	Storage StorageConfig `json:"storage" yaml:"storage"`
	Upload  UploadConfig  `json:"upload" yaml:"upload"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// DatePreference resolves ambiguous numeric dates: "us" or "eu".
	DatePreference string `json:"date_preference" yaml:"date_preference"`

	Verbose bool `json:"verbose" yaml:"verbose"`
}

// StorageConfig selects the store.
type StorageConfig struct {
	// Kind is sqlite, postgres or mssql.
	Kind string `json:"kind" yaml:"kind"`

	// DSN is the driver connection string. For sqlite it wins over Path.
	DSN string `json:"dsn" yaml:"dsn"`

	// Path is the SQLite database file.
	Path string `json:"path" yaml:"path"`

	Table string `json:"table" yaml:"table"`
}

// UploadConfig bounds uploads.
type UploadConfig struct {
	MaxBytes int64 `json:"max_bytes" yaml:"max_bytes"`
	MaxRows  int   `json:"max_rows" yaml:"max_rows"`
}

// MetricsConfig selects the metrics backend.
type MetricsConfig struct {
	Backend string `json:"backend" yaml:"backend"`
	Service string `json:"service" yaml:"service"`
	// Tags is a comma-separated list of key:value pairs.
	Tags string `json:"tags" yaml:"tags"`
	// FlushSeconds is the datadog flush interval.
	FlushSeconds int `json:"flush_seconds" yaml:"flush_seconds"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Addr: ":8080",
		Storage: StorageConfig{
			Kind:  "sqlite",
			Path:  "data.db",
			Table: "data",
		},
		Upload: UploadConfig{
			MaxBytes: 50 << 20,
			MaxRows:  10000,
		},
		Metrics: MetricsConfig{
			Backend:      "none",
			Service:      "sheetcrud",
			FlushSeconds: 10,
		},
		DatePreference: "us",
	}
}

// ConnString returns the connection string handed to the storage backend.
func (s StorageConfig) ConnString() string {
	if s.DSN != "" || s.Kind != "sqlite" {
		return s.DSN
	}
	return s.Path
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("addr is required")
	}
	if !slices.Contains(storageKinds, c.Storage.Kind) {
		return fmt.Errorf("invalid storage kind: %q (must be one of %s)", c.Storage.Kind, strings.Join(storageKinds, ", "))
	}
	if c.Storage.Kind != "sqlite" && c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required for %s", c.Storage.Kind)
	}
	if c.Storage.Kind == "sqlite" && c.ConnString() == "" {
		return errors.New("storage.path or storage.dsn is required for sqlite")
	}
	if strings.TrimSpace(c.Storage.Table) == "" {
		return errors.New("storage.table is required")
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload.max_bytes must be positive, got %d", c.Upload.MaxBytes)
	}
	if c.Upload.MaxRows <= 0 {
		return fmt.Errorf("upload.max_rows must be positive, got %d", c.Upload.MaxRows)
	}
	switch c.DatePreference {
	case "us", "eu":
	default:
		return fmt.Errorf("invalid date_preference: %q (must be us or eu)", c.DatePreference)
	}
	if !slices.Contains(metricsBackends, c.Metrics.Backend) {
		return fmt.Errorf("invalid metrics backend: %q (must be none or datadog)", c.Metrics.Backend)
	}
	if c.Metrics.Backend == "datadog" && c.Metrics.FlushSeconds <= 0 {
		return fmt.Errorf("metrics.flush_seconds must be positive, got %d", c.Metrics.FlushSeconds)
	}
	return nil
}

// ConnString is shorthand for c.Storage.ConnString().
func (c *Config) ConnString() string { return c.Storage.ConnString() }

// LoadFromFile reads path over the defaults. YAML (.yaml, .yml) and JSON
// with comments (.json, .jsonc) are accepted.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config %s: %w", path, err)
		}
	case ".json", ".jsonc":
		std, err := hujson.Standardize(data)
		if err != nil {
			return nil, fmt.Errorf("invalid JSONC in %s: %w", path, err)
		}
		if err := json.Unmarshal(std, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}
	return cfg, nil
}

// LoadDotEnv loads variables from a .env file into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv applies the store location and table overrides.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv(EnvStorageDSN); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv(EnvStoragePath); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv(EnvTable); v != "" {
		cfg.Storage.Table = v
	}
}
