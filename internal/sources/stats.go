package sources

import "sync/atomic"

// Stats holds per-source operation counters. All methods are safe for
// concurrent use; a zero Stats is ready to use.
type Stats struct {
	apiCalls      atomic.Int64
	cacheHits     atomic.Int64
	cacheMisses   atomic.Int64
	errors        atomic.Int64
	retries       atomic.Int64
	rateLimitHits atomic.Int64
}

// StatsSnapshot is a point-in-time copy of a source's counters.
type StatsSnapshot struct {
	APICalls      int64 `json:"api_calls"`
	CacheHits     int64 `json:"cache_hits"`
	CacheMisses   int64 `json:"cache_misses"`
	Errors        int64 `json:"errors"`
	Retries       int64 `json:"retries"`
	RateLimitHits int64 `json:"rate_limit_hits"`
}

// RecordAPICall increments the outbound request counter.
func (s *Stats) RecordAPICall() { s.apiCalls.Add(1) }

// RecordCacheHit increments the cache hit counter.
func (s *Stats) RecordCacheHit() { s.cacheHits.Add(1) }

// RecordCacheMiss increments the cache miss counter.
func (s *Stats) RecordCacheMiss() { s.cacheMisses.Add(1) }

// RecordError increments the error counter.
func (s *Stats) RecordError() { s.errors.Add(1) }

// RecordRetry increments the retry counter.
func (s *Stats) RecordRetry() { s.retries.Add(1) }

// RecordRateLimitHit increments the rate-limit counter.
func (s *Stats) RecordRateLimitHit() { s.rateLimitHits.Add(1) }

// Snapshot returns a copy of the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		APICalls:      s.apiCalls.Load(),
		CacheHits:     s.cacheHits.Load(),
		CacheMisses:   s.cacheMisses.Load(),
		Errors:        s.errors.Load(),
		Retries:       s.retries.Load(),
		RateLimitHits: s.rateLimitHits.Load(),
	}
}
