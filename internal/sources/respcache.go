package sources

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/helixir/citation-resolver/internal/cache"
	"github.com/helixir/citation-resolver/internal/observability"
)

// ResponseCache ties a cache backend to one source, recording hit/miss
// counters and absorbing cache I/O failures: a failed read is a miss, a
// failed write is logged and otherwise ignored, so resolution proceeds
// without caching rather than failing.
type ResponseCache struct {
	backend cache.Cache
	source  string
	stats   *Stats
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewResponseCache creates a response cache for one source. A nil backend
// yields a no-op cache that always misses.
func NewResponseCache(backend cache.Cache, source string, stats *Stats, metrics *observability.Metrics, logger zerolog.Logger) *ResponseCache {
	return &ResponseCache{
		backend: backend,
		source:  source,
		stats:   stats,
		metrics: metrics,
		logger:  logger,
	}
}

// Get returns the cached entry for key and whether it was found.
func (rc *ResponseCache) Get(ctx context.Context, key string) (cache.Entry, bool) {
	if rc == nil || rc.backend == nil {
		return cache.Entry{}, false
	}

	entry, ok := rc.backend.Get(ctx, key)
	if ok {
		if rc.stats != nil {
			rc.stats.RecordCacheHit()
		}
		if rc.metrics != nil {
			rc.metrics.CacheHits.WithLabelValues(rc.source).Inc()
		}
		return entry, true
	}

	if rc.stats != nil {
		rc.stats.RecordCacheMiss()
	}
	if rc.metrics != nil {
		rc.metrics.CacheMisses.WithLabelValues(rc.source).Inc()
	}
	return cache.Entry{}, false
}

// Store caches a response payload under key.
func (rc *ResponseCache) Store(ctx context.Context, key string, data []byte) {
	if rc == nil || rc.backend == nil {
		return
	}
	if err := rc.backend.Set(ctx, key, data); err != nil {
		rc.logger.Warn().Err(err).Str("source", rc.source).Msg("cache write failed")
	}
}

// StoreNotFound caches an explicit negative entry under key.
func (rc *ResponseCache) StoreNotFound(ctx context.Context, key string) {
	if rc == nil || rc.backend == nil {
		return
	}
	if err := rc.backend.SetNotFound(ctx, key); err != nil {
		rc.logger.Warn().Err(err).Str("source", rc.source).Msg("negative cache write failed")
	}
}
