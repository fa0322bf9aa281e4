package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the citation resolution
// engine, organized by subsystem: source HTTP traffic, caching, matching and
// enhancement. All collectors are registered via promauto.
type Metrics struct {
	// SourceRequestsTotal counts HTTP requests to source APIs, labeled by source.
	SourceRequestsTotal *prometheus.CounterVec

	// SourceRequestsFailed counts failed HTTP requests to source APIs, labeled by source and error type.
	SourceRequestsFailed *prometheus.CounterVec

	// SourceRequestDuration observes HTTP request duration to source APIs in seconds, labeled by source.
	SourceRequestDuration *prometheus.HistogramVec

	// SourceRetries counts retry attempts against source APIs, labeled by source.
	SourceRetries *prometheus.CounterVec

	// SourceRateLimited counts rate-limited responses from source APIs, labeled by source.
	SourceRateLimited *prometheus.CounterVec

	// CacheHits counts cache hits, labeled by source.
	CacheHits *prometheus.CounterVec

	// CacheMisses counts cache misses, labeled by source.
	CacheMisses *prometheus.CounterVec

	// CandidatesPerResolve observes how many candidates a single resolution call produced, labeled by source.
	CandidatesPerResolve *prometheus.HistogramVec

	// CandidatesRejected counts candidates rejected by hard constraints, labeled by reason.
	CandidatesRejected *prometheus.CounterVec

	// CitationsEnhanced counts citations that received at least one filled field.
	CitationsEnhanced prometheus.Counter

	// FieldsFilled counts individual fields written into citations, labeled by source.
	FieldsFilled *prometheus.CounterVec

	// EnhanceDuration observes the end-to-end duration of an enhancement pass in seconds.
	EnhanceDuration prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the given registerer.
// Pass prometheus.DefaultRegisterer in production; tests use a fresh
// registry to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SourceRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citation_resolver",
			Subsystem: "source",
			Name:      "requests_total",
			Help:      "Total HTTP requests to source APIs.",
		}, []string{"source"}),

		SourceRequestsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citation_resolver",
			Subsystem: "source",
			Name:      "requests_failed_total",
			Help:      "Failed HTTP requests to source APIs.",
		}, []string{"source", "error_type"}),

		SourceRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "citation_resolver",
			Subsystem: "source",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests to source APIs.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),

		SourceRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citation_resolver",
			Subsystem: "source",
			Name:      "retries_total",
			Help:      "Retry attempts against source APIs.",
		}, []string{"source"}),

		SourceRateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citation_resolver",
			Subsystem: "source",
			Name:      "rate_limited_total",
			Help:      "Rate-limited (HTTP 429) responses from source APIs.",
		}, []string{"source"}),

		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citation_resolver",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cache hits per source.",
		}, []string{"source"}),

		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citation_resolver",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Cache misses per source.",
		}, []string{"source"}),

		CandidatesPerResolve: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "citation_resolver",
			Subsystem: "match",
			Name:      "candidates_per_resolve",
			Help:      "Candidates returned by a single resolution call.",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20},
		}, []string{"source"}),

		CandidatesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citation_resolver",
			Subsystem: "match",
			Name:      "candidates_rejected_total",
			Help:      "Candidates rejected by hard constraints.",
		}, []string{"reason"}),

		CitationsEnhanced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "citation_resolver",
			Subsystem: "enhance",
			Name:      "citations_enhanced_total",
			Help:      "Citations that received at least one filled field.",
		}),

		FieldsFilled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citation_resolver",
			Subsystem: "enhance",
			Name:      "fields_filled_total",
			Help:      "Individual citation fields filled, per source.",
		}, []string{"source"}),

		EnhanceDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "citation_resolver",
			Subsystem: "enhance",
			Name:      "duration_seconds",
			Help:      "End-to-end duration of an enhancement pass.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
