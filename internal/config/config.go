// Package config provides configuration management for the citation
// resolution engine.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Cache backend identifiers.
const (
	// CacheBackendMemory keeps entries in an in-process TTL map.
	CacheBackendMemory = "memory"
	// CacheBackendSQLite persists entries across runs in an embedded database.
	CacheBackendSQLite = "sqlite"
)

// Config holds all configuration for the citation resolver.
type Config struct {
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Cache contains response cache settings.
	Cache CacheConfig `mapstructure:"cache"`
	// Sources contains per-source API configurations.
	Sources SourcesConfig `mapstructure:"sources"`
	// Enhancer contains orchestration settings.
	Enhancer EnhancerConfig `mapstructure:"enhancer"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr, file path).
	Output string `mapstructure:"output"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection.
	Enabled bool `mapstructure:"enabled"`
}

// CacheConfig holds response cache configuration.
type CacheConfig struct {
	// Backend selects the cache implementation ("memory" or "sqlite").
	Backend string `mapstructure:"backend"`
	// Path is the database file path for the sqlite backend.
	Path string `mapstructure:"path"`
	// TTL is the time-to-live for cached responses.
	TTL time.Duration `mapstructure:"ttl"`
}

// SourcesConfig holds configuration for every source API.
type SourcesConfig struct {
	// Crossref contains Crossref API settings.
	Crossref SourceConfig `mapstructure:"crossref"`
	// OpenAlex contains OpenAlex API settings.
	OpenAlex SourceConfig `mapstructure:"openalex"`
	// SemanticScholar contains Semantic Scholar API settings.
	SemanticScholar SourceConfig `mapstructure:"semantic_scholar"`
	// OpenCitations contains OpenCitations API settings.
	OpenCitations SourceConfig `mapstructure:"opencitations"`
	// ArXiv contains arXiv API settings.
	ArXiv SourceConfig `mapstructure:"arxiv"`
	// Scholarly contains web-search fallback settings.
	Scholarly SourceConfig `mapstructure:"scholarly"`
}

// SourceConfig holds configuration for a single source API.
type SourceConfig struct {
	// Enabled controls whether this source is used.
	Enabled bool `mapstructure:"enabled"`
	// APIKey is the API key or token, loaded from an environment variable
	// such as CITRES_SOURCES_SEMANTIC_SCHOLAR_API_KEY.
	APIKey string `mapstructure:"-"`
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Email is the contact email for sources with a polite pool.
	Email string `mapstructure:"email"`
	// Timeout is the timeout for API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// MaxResults is the maximum results per query.
	MaxResults int `mapstructure:"max_results"`
}

// EnhancerConfig holds orchestration settings.
type EnhancerConfig struct {
	// SourceDelay is the pause after each source call.
	SourceDelay time.Duration `mapstructure:"source_delay"`
	// BatchGroupSize is how many batches are enhanced concurrently.
	BatchGroupSize int `mapstructure:"batch_group_size"`
	// GroupDelay is the pause between batch groups.
	GroupDelay time.Duration `mapstructure:"group_delay"`
	// Concurrency caps in-flight resolutions per source.
	Concurrency map[string]int `mapstructure:"concurrency"`
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("CITRES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/citation-resolver")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load secrets exclusively from environment variables.
	// These fields use mapstructure:"-" to prevent loading from config files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
func loadSecrets(cfg *Config) {
	cfg.Sources.Crossref.APIKey = os.Getenv("CITRES_SOURCES_CROSSREF_API_KEY")
	cfg.Sources.SemanticScholar.APIKey = os.Getenv("CITRES_SOURCES_SEMANTIC_SCHOLAR_API_KEY")
	cfg.Sources.OpenCitations.APIKey = os.Getenv("CITRES_SOURCES_OPENCITATIONS_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)

	// Cache defaults
	v.SetDefault("cache.backend", CacheBackendSQLite)
	v.SetDefault("cache.path", "citation-cache.db")
	v.SetDefault("cache.ttl", "1h")

	// Crossref defaults
	v.SetDefault("sources.crossref.enabled", true)
	v.SetDefault("sources.crossref.base_url", "https://api.crossref.org")
	v.SetDefault("sources.crossref.timeout", "30s")
	v.SetDefault("sources.crossref.rate_limit", 50.0)
	v.SetDefault("sources.crossref.max_results", 5)
	v.SetDefault("sources.crossref.email", "")

	// OpenAlex defaults
	v.SetDefault("sources.openalex.enabled", true)
	v.SetDefault("sources.openalex.base_url", "https://api.openalex.org")
	v.SetDefault("sources.openalex.timeout", "30s")
	v.SetDefault("sources.openalex.rate_limit", 10.0)
	v.SetDefault("sources.openalex.max_results", 5)
	v.SetDefault("sources.openalex.email", "")

	// Semantic Scholar defaults; the shared pool allows roughly 1 req/sec
	v.SetDefault("sources.semantic_scholar.enabled", true)
	v.SetDefault("sources.semantic_scholar.base_url", "https://api.semanticscholar.org/graph/v1")
	v.SetDefault("sources.semantic_scholar.timeout", "30s")
	v.SetDefault("sources.semantic_scholar.rate_limit", 1.0)
	v.SetDefault("sources.semantic_scholar.max_results", 5)

	// OpenCitations defaults
	v.SetDefault("sources.opencitations.enabled", true)
	v.SetDefault("sources.opencitations.base_url", "https://opencitations.net/index/coci/api/v1")
	v.SetDefault("sources.opencitations.timeout", "30s")
	v.SetDefault("sources.opencitations.rate_limit", 5.0)

	// arXiv defaults; arXiv asks for at most 3 req/sec
	v.SetDefault("sources.arxiv.enabled", true)
	v.SetDefault("sources.arxiv.base_url", "https://export.arxiv.org/api")
	v.SetDefault("sources.arxiv.timeout", "30s")
	v.SetDefault("sources.arxiv.rate_limit", 3.0)
	v.SetDefault("sources.arxiv.max_results", 5)

	// Scholarly defaults; scraping faster than 1 req/sec gets blocked
	v.SetDefault("sources.scholarly.enabled", false)
	v.SetDefault("sources.scholarly.base_url", "https://html.duckduckgo.com/html/")
	v.SetDefault("sources.scholarly.timeout", "30s")
	v.SetDefault("sources.scholarly.rate_limit", 1.0)
	v.SetDefault("sources.scholarly.max_results", 5)

	// Enhancer defaults
	v.SetDefault("enhancer.source_delay", "100ms")
	v.SetDefault("enhancer.batch_group_size", 3)
	v.SetDefault("enhancer.group_delay", "500ms")
	v.SetDefault("enhancer.concurrency", map[string]int{
		"crossref":        10,
		"openalex":        10,
		"semanticscholar": 10,
		"opencitations":   5,
		"arxiv":           3,
		"scholarly":       2,
	})
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Cache.Backend {
	case CacheBackendMemory:
	case CacheBackendSQLite:
		if c.Cache.Path == "" {
			return fmt.Errorf("cache path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}

	for name, src := range map[string]SourceConfig{
		"crossref":         c.Sources.Crossref,
		"openalex":         c.Sources.OpenAlex,
		"semantic_scholar": c.Sources.SemanticScholar,
		"opencitations":    c.Sources.OpenCitations,
		"arxiv":            c.Sources.ArXiv,
		"scholarly":        c.Sources.Scholarly,
	} {
		if !src.Enabled {
			continue
		}
		if src.BaseURL == "" {
			return fmt.Errorf("source %s: base URL is required", name)
		}
		if src.RateLimit <= 0 {
			return fmt.Errorf("source %s: rate limit must be positive", name)
		}
	}

	if c.Enhancer.BatchGroupSize <= 0 {
		return fmt.Errorf("enhancer batch group size must be positive")
	}
	for source, limit := range c.Enhancer.Concurrency {
		if limit <= 0 {
			return fmt.Errorf("enhancer concurrency for %s must be positive", source)
		}
	}

	return nil
}
