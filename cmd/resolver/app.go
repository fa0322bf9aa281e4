package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/helixir/citation-resolver/internal/cache"
	"github.com/helixir/citation-resolver/internal/config"
	"github.com/helixir/citation-resolver/internal/enhancer"
	"github.com/helixir/citation-resolver/internal/observability"
	"github.com/helixir/citation-resolver/internal/sources"
	"github.com/helixir/citation-resolver/internal/sources/arxiv"
	"github.com/helixir/citation-resolver/internal/sources/crossref"
	"github.com/helixir/citation-resolver/internal/sources/openalex"
	"github.com/helixir/citation-resolver/internal/sources/opencitations"
	"github.com/helixir/citation-resolver/internal/sources/scholarly"
	"github.com/helixir/citation-resolver/internal/sources/semanticscholar"
)

// app carries the wired-up components every command needs.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	cache    cache.Cache
	registry *sources.Registry
	s2       *semanticscholar.Client
	enhancer *enhancer.Enhancer
}

// newApp loads configuration and wires config, logger, cache, sources and
// enhancer together.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(prometheus.DefaultRegisterer)
	}

	var backend cache.Cache
	switch cfg.Cache.Backend {
	case config.CacheBackendSQLite:
		sqliteCache, err := cache.OpenSQLite(cfg.Cache.Path, cfg.Cache.TTL)
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
		backend = sqliteCache
	default:
		backend = cache.NewMemory(cfg.Cache.TTL)
	}

	registry := sources.NewRegistry()

	registry.Register(crossref.New(crossref.Config{
		BaseURL:   cfg.Sources.Crossref.BaseURL,
		PlusToken: cfg.Sources.Crossref.APIKey,
		Mailto:    cfg.Sources.Crossref.Email,
		Timeout:   cfg.Sources.Crossref.Timeout,
		RateLimit: cfg.Sources.Crossref.RateLimit,
		Rows:      cfg.Sources.Crossref.MaxResults,
		Enabled:   cfg.Sources.Crossref.Enabled,
	}, backend, metrics, logger))

	registry.Register(openalex.New(openalex.Config{
		BaseURL:   cfg.Sources.OpenAlex.BaseURL,
		Email:     cfg.Sources.OpenAlex.Email,
		Timeout:   cfg.Sources.OpenAlex.Timeout,
		RateLimit: cfg.Sources.OpenAlex.RateLimit,
		PerPage:   cfg.Sources.OpenAlex.MaxResults,
		Enabled:   cfg.Sources.OpenAlex.Enabled,
	}, backend, metrics, logger))

	s2 := semanticscholar.New(semanticscholar.Config{
		BaseURL:    cfg.Sources.SemanticScholar.BaseURL,
		APIKey:     cfg.Sources.SemanticScholar.APIKey,
		Timeout:    cfg.Sources.SemanticScholar.Timeout,
		RateLimit:  cfg.Sources.SemanticScholar.RateLimit,
		MaxResults: cfg.Sources.SemanticScholar.MaxResults,
		Enabled:    cfg.Sources.SemanticScholar.Enabled,
	}, backend, metrics, logger)
	registry.Register(s2)

	registry.Register(opencitations.New(opencitations.Config{
		BaseURL:     cfg.Sources.OpenCitations.BaseURL,
		AccessToken: cfg.Sources.OpenCitations.APIKey,
		Timeout:     cfg.Sources.OpenCitations.Timeout,
		RateLimit:   cfg.Sources.OpenCitations.RateLimit,
		Enabled:     cfg.Sources.OpenCitations.Enabled,
	}, backend, metrics, logger))

	registry.Register(arxiv.New(arxiv.Config{
		BaseURL:    cfg.Sources.ArXiv.BaseURL,
		Timeout:    cfg.Sources.ArXiv.Timeout,
		RateLimit:  cfg.Sources.ArXiv.RateLimit,
		MaxResults: cfg.Sources.ArXiv.MaxResults,
		Enabled:    cfg.Sources.ArXiv.Enabled,
	}, backend, metrics, logger))

	registry.Register(scholarly.New(scholarly.Config{
		BaseURL:       cfg.Sources.Scholarly.BaseURL,
		Timeout:       cfg.Sources.Scholarly.Timeout,
		RateLimit:     cfg.Sources.Scholarly.RateLimit,
		MaxCandidates: cfg.Sources.Scholarly.MaxResults,
		Enabled:       cfg.Sources.Scholarly.Enabled,
	}, backend, metrics, logger))

	enh := enhancer.New(registry, s2, semanticscholar.BatchID, enhancer.Config{
		Concurrency:    cfg.Enhancer.Concurrency,
		SourceDelay:    cfg.Enhancer.SourceDelay,
		BatchGroupSize: cfg.Enhancer.BatchGroupSize,
		GroupDelay:     cfg.Enhancer.GroupDelay,
	}, metrics, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		cache:    backend,
		registry: registry,
		s2:       s2,
		enhancer: enh,
	}, nil
}

// Close releases the cache backend.
func (a *app) Close() error {
	return a.cache.Close()
}
