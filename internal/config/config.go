// Package config loads searchcore configuration from YAML with
// environment-variable overrides.
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

// Config represents the complete searchcore configuration.
type Config struct {
	Version      int                `yaml:"version" json:"version"`
	Paths        PathsConfig        `yaml:"paths" json:"paths"`
	Catalog      CatalogConfig      `yaml:"catalog" json:"catalog"`
	Search       SearchConfig       `yaml:"search" json:"search"`
	Index        IndexConfig        `yaml:"index" json:"index"`
	Cache        CacheConfig        `yaml:"cache" json:"cache"`
	Worker       WorkerConfig       `yaml:"worker" json:"worker"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" json:"orchestrator"`
	Telemetry    TelemetryConfig    `yaml:"telemetry" json:"telemetry"`
	LogLevel     string             `yaml:"log_level" json:"log_level"`
}

// PathsConfig configures on-disk locations.
type PathsConfig struct {
	// DataDir holds the catalog cache, persisted index, and telemetry DB.
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// CatalogConfig configures the upstream catalog service.
type CatalogConfig struct {
	// BaseURL is the catalog service root used for snapshot rebuilds.
	BaseURL string `yaml:"base_url" json:"base_url"`

	// FetchTimeout bounds a single catalog request.
	FetchTimeout time.Duration `yaml:"fetch_timeout" json:"fetch_timeout"`
}

// SearchConfig configures result-set sizes and ranking.
type SearchConfig struct {
	// DropdownCandidates is the lexical prefilter candidate cap.
	DropdownCandidates int `yaml:"dropdown_candidates" json:"dropdown_candidates"`

	// DropdownSize is the dropdown result cap after hybrid reranking.
	DropdownSize int `yaml:"dropdown_size" json:"dropdown_size"`

	// MaxResults is the full-page result cap for "search all".
	MaxResults int `yaml:"max_results" json:"max_results"`

	// ResultCacheSize is the LRU capacity for lexical result memoization.
	ResultCacheSize int `yaml:"result_cache_size" json:"result_cache_size"`
}

// IndexConfig configures the ANN index.
type IndexConfig struct {
	// MaxElements sizes a freshly allocated index.
	MaxElements int `yaml:"max_elements" json:"max_elements"`

	// M is HNSW max connections per layer.
	M int `yaml:"m" json:"m"`

	// EfConstruction is HNSW build-time search width.
	EfConstruction int `yaml:"ef_construction" json:"ef_construction"`

	// EfSearch is HNSW query-time search width.
	EfSearch int `yaml:"ef_search" json:"ef_search"`

	// Filename is the persisted global index file name inside DataDir.
	Filename string `yaml:"filename" json:"filename"`

	// Persist controls whether the global index is saved after builds.
	Persist bool `yaml:"persist" json:"persist"`
}

// CacheConfig configures the catalog snapshot cache and the query
// embedding cache.
type CacheConfig struct {
	// FreshnessWindow invalidates snapshots older than this.
	FreshnessWindow time.Duration `yaml:"freshness_window" json:"freshness_window"`

	// ChunkSize is the number of products per snapshot chunk.
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`

	// QueryCacheCapacity bounds the query-embedding cache.
	QueryCacheCapacity int `yaml:"query_cache_capacity" json:"query_cache_capacity"`
}

// WorkerConfig configures the compute worker.
type WorkerConfig struct {
	// StartupTimeout bounds the worker/library/model startup sequence.
	// This is the only built-in timeout; all other calls honor their context.
	StartupTimeout time.Duration `yaml:"startup_timeout" json:"startup_timeout"`
}

// OrchestratorConfig configures keystroke handling.
type OrchestratorConfig struct {
	// DebounceInterval delays the lexical prefilter after a keystroke.
	DebounceInterval time.Duration `yaml:"debounce_interval" json:"debounce_interval"`

	// ThrottleInterval rate-limits embedding-backed dropdown upgrades.
	ThrottleInterval time.Duration `yaml:"throttle_interval" json:"throttle_interval"`
}

// TelemetryConfig configures query metrics collection.
type TelemetryConfig struct {
	// Enabled toggles metrics collection and the metrics database.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// FlushInterval is how often in-memory metrics are written out.
	FlushInterval time.Duration `yaml:"flush_interval" json:"flush_interval"`
}

// CurrentVersion is the config schema version.
const CurrentVersion = 1

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Paths: PathsConfig{
			DataDir: defaultDataDir(),
		},
		Catalog: CatalogConfig{
			BaseURL:      "http://localhost:8090",
			FetchTimeout: 30 * time.Second,
		},
		Search: SearchConfig{
			DropdownCandidates: 30,
			DropdownSize:       15,
			MaxResults:         50,
			ResultCacheSize:    256,
		},
		Index: IndexConfig{
			MaxElements:    50000,
			M:              16,
			EfConstruction: 200,
			EfSearch:       64,
			Filename:       "catalog.hnsw",
			Persist:        true,
		},
		Cache: CacheConfig{
			FreshnessWindow:    24 * time.Hour,
			ChunkSize:          500,
			QueryCacheCapacity: 200,
		},
		Worker: WorkerConfig{
			StartupTimeout: 30 * time.Second,
		},
		Orchestrator: OrchestratorConfig{
			DebounceInterval: 150 * time.Millisecond,
			ThrottleInterval: 400 * time.Millisecond,
		},
		Telemetry: TelemetryConfig{
			Enabled:       true,
			FlushInterval: 5 * time.Minute,
		},
		LogLevel: "info",
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".searchcore")
	}
	return filepath.Join(home, ".searchcore")
}

// Load loads configuration with increasing precedence:
//  1. Hardcoded defaults
//  2. .searchcore.yaml (or .yml) in the given directory
//  3. Environment variables (SEARCHCORE_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load .searchcore.yaml or .searchcore.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".searchcore.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".searchcore.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	// No config file is fine, defaults apply
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SEARCHCORE_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("SEARCHCORE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("SEARCHCORE_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.MaxResults = n
		}
	}
	if v := os.Getenv("SEARCHCORE_INDEX_FILENAME"); v != "" {
		c.Index.Filename = v
	}
	if v := os.Getenv("SEARCHCORE_INDEX_PERSIST"); v != "" {
		c.Index.Persist = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("SEARCHCORE_EF_SEARCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Index.EfSearch = n
		}
	}
	if v := os.Getenv("SEARCHCORE_FRESHNESS_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Cache.FreshnessWindow = d
		}
	}
	if v := os.Getenv("SEARCHCORE_STARTUP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Worker.StartupTimeout = d
		}
	}
	if v := os.Getenv("SEARCHCORE_CATALOG_URL"); v != "" {
		c.Catalog.BaseURL = v
	}
	if v := os.Getenv("SEARCHCORE_TELEMETRY"); v != "" {
		c.Telemetry.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
}

// Validate checks the final configuration for consistency.
func (c *Config) Validate() error {
	if c.Search.DropdownCandidates <= 0 {
		return fmt.Errorf("dropdown_candidates must be positive, got %d", c.Search.DropdownCandidates)
	}
	if c.Search.DropdownSize <= 0 {
		return fmt.Errorf("dropdown_size must be positive, got %d", c.Search.DropdownSize)
	}
	if c.Search.DropdownSize > c.Search.DropdownCandidates {
		return fmt.Errorf("dropdown_size (%d) cannot exceed dropdown_candidates (%d)",
			c.Search.DropdownSize, c.Search.DropdownCandidates)
	}
	if c.Search.MaxResults < 0 {
		return fmt.Errorf("max_results must be non-negative, got %d", c.Search.MaxResults)
	}
	if c.Index.MaxElements <= 0 {
		return fmt.Errorf("index.max_elements must be positive, got %d", c.Index.MaxElements)
	}
	if c.Index.M <= 0 || c.Index.EfConstruction <= 0 || c.Index.EfSearch <= 0 {
		return fmt.Errorf("index parameters m/ef_construction/ef_search must be positive")
	}
	if c.Cache.ChunkSize <= 0 {
		return fmt.Errorf("cache.chunk_size must be positive, got %d", c.Cache.ChunkSize)
	}
	if c.Cache.QueryCacheCapacity <= 0 {
		return fmt.Errorf("cache.query_cache_capacity must be positive, got %d", c.Cache.QueryCacheCapacity)
	}
	if c.Worker.StartupTimeout <= 0 {
		return fmt.Errorf("worker.startup_timeout must be positive, got %s", c.Worker.StartupTimeout)
	}
	if c.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog.base_url is required")
	}
	if c.Telemetry.Enabled && c.Telemetry.FlushInterval <= 0 {
		return fmt.Errorf("telemetry.flush_interval must be positive, got %s", c.Telemetry.FlushInterval)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
