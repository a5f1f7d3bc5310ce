// Package config loads forumsearch configuration from defaults, the user
// config file, the project file and FORUMSEARCH_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxFetchCount bounds index.fetch_count.
const MaxFetchCount = 100000

// ProjectFileName is the per-installation config file looked up in the
// working directory.
const ProjectFileName = "forumsearch.yaml"

// Config represents the complete forumsearch configuration.
type Config struct {
	Index   IndexConfig   `yaml:"index" json:"index"`
	Storage StorageConfig `yaml:"storage" json:"storage"`
	Daemon  DaemonConfig  `yaml:"daemon" json:"daemon"`
	Journal JournalConfig `yaml:"journal" json:"journal"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// IndexConfig configures the search index and its analysis pipeline.
type IndexConfig struct {
	// Path is the index directory. Empty keeps the index in memory.
	Path string `yaml:"path" json:"path"`

	// Languages are the stop-word languages merged into the analyzer.
	Languages []string `yaml:"languages" json:"languages"`

	// FetchCount is the number of post ids read per storage page during reindex.
	FetchCount int `yaml:"fetch_count" json:"fetch_count"`

	// MaxBufferedDocs bounds the bulk buffer before it is committed internally.
	MaxBufferedDocs int `yaml:"max_buffered_docs" json:"max_buffered_docs"`

	// CacheSize is the number of search result pages kept in the LRU cache.
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	// ProgressEvery is how many processed documents separate progress logs.
	ProgressEvery int `yaml:"progress_every" json:"progress_every"`
}

// StorageConfig configures the relational store holding the posts.
type StorageConfig struct {
	// Driver is one of sqlite (pure Go), sqlite3 (cgo) or postgres.
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"dsn"`

	MaxOpenConns int `yaml:"max_open_conns" json:"max_open_conns"`
}

// DaemonConfig configures the background search daemon.
type DaemonConfig struct {
	SocketPath string `yaml:"socket_path" json:"socket_path"`
	PIDPath    string `yaml:"pid_path" json:"pid_path"`

	// Timeout bounds a single client request, as a duration string.
	Timeout string `yaml:"timeout" json:"timeout"`

	// MetricsAddr is the listen address for /metrics. Empty disables it.
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
}

// JournalConfig configures the persisted reindex job history.
type JournalConfig struct {
	Path       string `yaml:"path" json:"path"`
	MaxRecords int    `yaml:"max_records" json:"max_records"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

// validDrivers maps configured driver names to their database/sql names.
var validDrivers = map[string]bool{"sqlite": true, "sqlite3": true, "postgres": true}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		Index: IndexConfig{
			Path:            filepath.Join(dataDir, "index"),
			Languages:       []string{"en"},
			FetchCount:      1000,
			MaxBufferedDocs: 10000,
			CacheSize:       256,
			ProgressEvery:   1000,
		},
		Storage: StorageConfig{
			Driver:       "sqlite",
			DSN:          filepath.Join(dataDir, "forum.db"),
			MaxOpenConns: 4,
		},
		Daemon: DaemonConfig{
			SocketPath: filepath.Join(dataDir, "daemon.sock"),
			PIDPath:    filepath.Join(dataDir, "daemon.pid"),
			Timeout:    "30s",
		},
		Journal: JournalConfig{
			Path:       filepath.Join(dataDir, "jobs.db"),
			MaxRecords: 50,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultDataDir returns ~/.forumsearch, falling back to the temp directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".forumsearch")
	}
	return filepath.Join(home, ".forumsearch")
}

// GetUserConfigPath returns the user configuration file path:
//   - $XDG_CONFIG_HOME/forumsearch/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/forumsearch/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "forumsearch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "forumsearch", "config.yaml")
	}
	return filepath.Join(home, ".config", "forumsearch", "config.yaml")
}

// Load loads configuration for the given working directory.
// Precedence, lowest first:
//  1. Hardcoded defaults
//  2. User config (~/.config/forumsearch/config.yaml)
//  3. Project config (forumsearch.yaml in dir)
//  4. Environment variables (FORUMSEARCH_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if path := filepath.Join(dir, ProjectFileName); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadYAML parses path and merges its non-zero values into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith copies every non-zero value of other into c.
func (c *Config) mergeWith(other *Config) {
	mergeString(&c.Index.Path, other.Index.Path)
	if len(other.Index.Languages) > 0 {
		c.Index.Languages = other.Index.Languages
	}
	mergeInt(&c.Index.FetchCount, other.Index.FetchCount)
	mergeInt(&c.Index.MaxBufferedDocs, other.Index.MaxBufferedDocs)
	mergeInt(&c.Index.CacheSize, other.Index.CacheSize)
	mergeInt(&c.Index.ProgressEvery, other.Index.ProgressEvery)

	mergeString(&c.Storage.Driver, other.Storage.Driver)
	mergeString(&c.Storage.DSN, other.Storage.DSN)
	mergeInt(&c.Storage.MaxOpenConns, other.Storage.MaxOpenConns)

	mergeString(&c.Daemon.SocketPath, other.Daemon.SocketPath)
	mergeString(&c.Daemon.PIDPath, other.Daemon.PIDPath)
	mergeString(&c.Daemon.Timeout, other.Daemon.Timeout)
	mergeString(&c.Daemon.MetricsAddr, other.Daemon.MetricsAddr)

	mergeString(&c.Journal.Path, other.Journal.Path)
	mergeInt(&c.Journal.MaxRecords, other.Journal.MaxRecords)

	mergeString(&c.Logging.Level, other.Logging.Level)
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// applyEnvOverrides applies FORUMSEARCH_* variables (highest precedence).
func (c *Config) applyEnvOverrides() error {
	if v, ok := os.LookupEnv("FORUMSEARCH_INDEX_PATH"); ok {
		// Set but empty selects the in-memory index.
		c.Index.Path = v
	}
	if v := os.Getenv("FORUMSEARCH_FETCH_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FORUMSEARCH_FETCH_COUNT: %w", err)
		}
		c.Index.FetchCount = n
	}
	if v := os.Getenv("FORUMSEARCH_LANGUAGES"); v != "" {
		c.Index.Languages = splitList(v)
	}
	if v := os.Getenv("FORUMSEARCH_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("FORUMSEARCH_STORAGE_DSN"); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv("FORUMSEARCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("FORUMSEARCH_METRICS_ADDR"); v != "" {
		c.Daemon.MetricsAddr = v
	}
	return nil
}

// splitList splits a comma or space separated list, dropping empty items.
func splitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == ';'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Index.FetchCount <= 0 || c.Index.FetchCount > MaxFetchCount {
		return fmt.Errorf("index.fetch_count must be between 1 and %d, got %d", MaxFetchCount, c.Index.FetchCount)
	}
	if c.Index.MaxBufferedDocs <= 0 {
		return fmt.Errorf("index.max_buffered_docs must be positive, got %d", c.Index.MaxBufferedDocs)
	}
	if c.Index.CacheSize < 0 {
		return fmt.Errorf("index.cache_size must be non-negative, got %d", c.Index.CacheSize)
	}
	if c.Index.ProgressEvery <= 0 {
		return fmt.Errorf("index.progress_every must be positive, got %d", c.Index.ProgressEvery)
	}

	if !validDrivers[strings.ToLower(c.Storage.Driver)] {
		return fmt.Errorf("storage.driver must be 'sqlite', 'sqlite3' or 'postgres', got %s", c.Storage.Driver)
	}
	if c.Storage.MaxOpenConns < 0 {
		return fmt.Errorf("storage.max_open_conns must be non-negative, got %d", c.Storage.MaxOpenConns)
	}

	if _, err := time.ParseDuration(c.Daemon.Timeout); err != nil {
		return fmt.Errorf("daemon.timeout is not a duration: %w", err)
	}
	if c.Journal.MaxRecords < 0 {
		return fmt.Errorf("journal.max_records must be non-negative, got %d", c.Journal.MaxRecords)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// RequestTimeout returns the parsed daemon request timeout.
func (c *Config) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Daemon.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
