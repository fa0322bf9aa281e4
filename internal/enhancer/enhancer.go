// Package enhancer orchestrates citation enrichment across the registered
// sources: a Semantic Scholar batch pass first, then per-citation tasks for
// every applicable source under per-source concurrency caps, then a
// deterministic priority merge of the best candidates into the citation.
package enhancer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/citation-resolver/internal/domain"
	"github.com/helixir/citation-resolver/internal/match"
	"github.com/helixir/citation-resolver/internal/observability"
	"github.com/helixir/citation-resolver/internal/sources"
)

// Source names the enhancer treats specially when deciding applicability.
// They must agree with each client's SourceName constant.
const (
	sourceCrossref        = "crossref"
	sourceOpenAlex        = "openalex"
	sourceSemanticScholar = "semanticscholar"
	sourceOpenCitations   = "opencitations"
	sourceArXiv           = "arxiv"
	sourceScholarly       = "scholarly"
)

// DefaultPriority is the merge order: earlier sources win contested fields.
var DefaultPriority = []string{
	sourceCrossref,
	sourceOpenAlex,
	sourceSemanticScholar,
	sourceOpenCitations,
	sourceArXiv,
	sourceScholarly,
}

// DefaultConcurrency caps in-flight resolutions per source.
var DefaultConcurrency = map[string]int{
	sourceCrossref:        10,
	sourceOpenAlex:        10,
	sourceSemanticScholar: 10,
	sourceOpenCitations:   5,
	sourceArXiv:           3,
	sourceScholarly:       2,
}

const (
	// DefaultSourceDelay is the pause after each source call, on top of
	// the client-level rate limiting.
	DefaultSourceDelay = 100 * time.Millisecond

	// DefaultBatchGroupSize is how many batches BatchEnhance runs at once.
	DefaultBatchGroupSize = 3

	// DefaultGroupDelay is the pause between batch groups.
	DefaultGroupDelay = 500 * time.Millisecond
)

// BatchLookuper is the bulk identifier lookup the batch pass uses. The
// returned slice is aligned with ids; nil entries mean unknown.
type BatchLookuper interface {
	LookupBatch(ctx context.Context, ids []string) ([]*domain.MatchCandidate, error)
}

// BatchIDFunc derives the bulk-lookup identifier for a citation, or ""
// when it has none.
type BatchIDFunc func(*domain.Citation) string

// Config holds enhancer tuning knobs. Zero values fall back to the
// package defaults.
type Config struct {
	// Priority is the merge order. Defaults to DefaultPriority.
	Priority []string

	// Concurrency caps in-flight resolutions per source.
	// Defaults to DefaultConcurrency; unlisted sources get 10.
	Concurrency map[string]int

	// SourceDelay is the pause after each source call.
	SourceDelay time.Duration

	// BatchGroupSize is how many batches BatchEnhance runs concurrently.
	BatchGroupSize int

	// GroupDelay is the pause between batch groups.
	GroupDelay time.Duration
}

// Enhancer coordinates source resolvers to fill missing citation fields.
// Citations are mutated in place; already-populated fields are never
// overwritten.
type Enhancer struct {
	registry *sources.Registry
	batch    BatchLookuper
	batchID  BatchIDFunc
	cfg      Config
	sems     map[string]chan struct{}
	metrics  *observability.Metrics
	logger   zerolog.Logger

	mu    sync.Mutex
	stats Stats
}

// Stats accumulates enhancement counters over the enhancer's lifetime.
type Stats struct {
	CitationsProcessed int            `json:"citations_processed"`
	CitationsEnhanced  int            `json:"citations_enhanced"`
	FieldsFilled       map[string]int `json:"fields_filled"`
	SourceErrors       map[string]int `json:"source_errors"`
}

// New creates an enhancer over the registry. batch and batchID may be nil
// to skip the bulk pass; metrics may be nil.
func New(registry *sources.Registry, batch BatchLookuper, batchID BatchIDFunc, cfg Config, metrics *observability.Metrics, logger zerolog.Logger) *Enhancer {
	if len(cfg.Priority) == 0 {
		cfg.Priority = DefaultPriority
	}
	if cfg.Concurrency == nil {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.SourceDelay == 0 {
		cfg.SourceDelay = DefaultSourceDelay
	}
	if cfg.BatchGroupSize == 0 {
		cfg.BatchGroupSize = DefaultBatchGroupSize
	}
	if cfg.GroupDelay == 0 {
		cfg.GroupDelay = DefaultGroupDelay
	}

	return &Enhancer{
		registry: registry,
		batch:    batch,
		batchID:  batchID,
		cfg:      cfg,
		sems:     make(map[string]chan struct{}),
		metrics:  metrics,
		logger:   logger.With().Str("component", "enhancer").Logger(),
	}
}

// Enhance enriches every citation in place. Per-citation and per-source
// failures are logged and isolated; the returned error is reserved for
// context cancellation.
func (e *Enhancer) Enhance(ctx context.Context, citations []*domain.Citation) error {
	start := time.Now()

	e.batchPass(ctx, citations)

	var wg sync.WaitGroup
	results := make([]map[string]*domain.MatchCandidate, len(citations))
	var resultsMu sync.Mutex

	for i, citation := range citations {
		if citation == nil || !citation.HasMissingFields() {
			continue
		}
		for _, res := range e.registry.Enabled() {
			if !e.applicable(citation, res.Source()) {
				continue
			}
			wg.Add(1)
			go func(idx int, citation *domain.Citation, res sources.Resolver) {
				defer wg.Done()
				best := e.resolveBest(ctx, res, citation)
				if best == nil {
					return
				}
				resultsMu.Lock()
				if results[idx] == nil {
					results[idx] = make(map[string]*domain.MatchCandidate)
				}
				results[idx][res.Source()] = best
				resultsMu.Unlock()
			}(i, citation, res)
		}
	}
	wg.Wait()

	for i, citation := range citations {
		if citation == nil {
			continue
		}
		e.merge(citation, results[i])
	}

	if e.metrics != nil {
		e.metrics.EnhanceDuration.Observe(time.Since(start).Seconds())
	}
	return ctx.Err()
}

// BatchEnhance processes batches in groups of up to BatchGroupSize
// concurrently, pausing between groups. A failing batch is logged and left
// partially enhanced without affecting the others.
func (e *Enhancer) BatchEnhance(ctx context.Context, batches [][]*domain.Citation) error {
	for groupStart := 0; groupStart < len(batches); groupStart += e.cfg.BatchGroupSize {
		groupEnd := groupStart + e.cfg.BatchGroupSize
		if groupEnd > len(batches) {
			groupEnd = len(batches)
		}

		var wg sync.WaitGroup
		for offset, batch := range batches[groupStart:groupEnd] {
			wg.Add(1)
			go func(batchIndex int, batch []*domain.Citation) {
				defer wg.Done()
				logger := observability.WithBatchContext(e.logger, batchIndex, len(batch))
				defer func() {
					if r := recover(); r != nil {
						logger.Error().Interface("panic", r).Msg("batch enhancement panicked")
					}
				}()
				if err := e.Enhance(ctx, batch); err != nil {
					logger.Warn().Err(err).Msg("batch enhancement interrupted")
				}
			}(groupStart+offset, batch)
		}
		wg.Wait()

		if groupEnd < len(batches) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.cfg.GroupDelay):
			}
		}
	}
	return ctx.Err()
}

// Stats returns a copy of the accumulated counters.
func (e *Enhancer) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := Stats{
		CitationsProcessed: e.stats.CitationsProcessed,
		CitationsEnhanced:  e.stats.CitationsEnhanced,
		FieldsFilled:       make(map[string]int, len(e.stats.FieldsFilled)),
		SourceErrors:       make(map[string]int, len(e.stats.SourceErrors)),
	}
	for source, n := range e.stats.FieldsFilled {
		out.FieldsFilled[source] = n
	}
	for source, n := range e.stats.SourceErrors {
		out.SourceErrors[source] = n
	}
	return out
}

// batchPass resolves every citation carrying a known identifier through the
// bulk lookup and merges validated results immediately. Failures degrade to
// the per-source pass.
func (e *Enhancer) batchPass(ctx context.Context, citations []*domain.Citation) {
	if e.batch == nil || e.batchID == nil {
		return
	}

	ids := make([]string, 0, len(citations))
	indexed := make([]*domain.Citation, 0, len(citations))
	for _, citation := range citations {
		if citation == nil {
			continue
		}
		if id := e.batchID(citation); id != "" && citation.HasMissingFields() {
			ids = append(ids, id)
			indexed = append(indexed, citation)
		}
	}
	if len(ids) == 0 {
		return
	}

	candidates, err := e.batch.LookupBatch(ctx, ids)
	if err != nil {
		e.logger.Warn().Err(err).Int("ids", len(ids)).Msg("batch lookup failed, falling back to per-source resolution")
		e.recordError(sourceSemanticScholar)
		return
	}

	for i, cand := range candidates {
		if cand == nil || i >= len(indexed) {
			continue
		}
		citation := indexed[i]
		match.ValidateMatch(citation, cand)
		if cand.PassedConstraints {
			e.mergeOne(citation, cand)
		}
	}
}

// resolveBest runs one source for one citation and returns the best passing
// candidate, or nil. Panics and errors are contained here.
func (e *Enhancer) resolveBest(ctx context.Context, res sources.Resolver, citation *domain.Citation) (best *domain.MatchCandidate) {
	logger := observability.WithCitationContext(
		observability.WithSourceContext(e.logger, res.Source()),
		citation.ID.String(), citation.Title,
	)
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("source resolution panicked")
			e.recordError(res.Source())
			best = nil
		}
	}()

	sem := e.semaphore(res.Source())
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil
	}
	defer func() { <-sem }()

	candidates, err := res.ResolveCitation(ctx, citation)
	e.pause(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("source resolution failed")
		e.recordError(res.Source())
		return nil
	}

	for _, cand := range candidates {
		match.ValidateMatch(citation, cand)
		if !cand.PassedConstraints && e.metrics != nil {
			e.metrics.CandidatesRejected.WithLabelValues(cand.RejectionReason).Inc()
		}
	}
	if e.metrics != nil {
		e.metrics.CandidatesPerResolve.WithLabelValues(res.Source()).Observe(float64(len(candidates)))
	}

	return match.BestMatch(candidates)
}

// merge applies the best candidates in priority order. Fields fill first
// come, first served; a later source only sees what remains empty.
func (e *Enhancer) merge(citation *domain.Citation, bests map[string]*domain.MatchCandidate) {
	e.mu.Lock()
	e.stats.CitationsProcessed++
	e.mu.Unlock()

	if len(bests) == 0 {
		return
	}

	enhanced := false
	for _, source := range e.cfg.Priority {
		cand, ok := bests[source]
		if !ok {
			continue
		}
		if e.mergeOne(citation, cand) {
			enhanced = true
		}
	}

	if enhanced {
		e.mu.Lock()
		e.stats.CitationsEnhanced++
		e.mu.Unlock()
		if e.metrics != nil {
			e.metrics.CitationsEnhanced.Inc()
		}
	}
}

// mergeOne fills the citation's empty fields from one candidate and records
// how many fields the candidate contributed. Returns true when at least one
// field was filled.
func (e *Enhancer) mergeOne(citation *domain.Citation, cand *domain.MatchCandidate) bool {
	before := countEmptyFields(citation)
	citation.MergeFromCandidate(cand)
	filled := before - countEmptyFields(citation)
	if filled <= 0 {
		return false
	}

	e.mu.Lock()
	if e.stats.FieldsFilled == nil {
		e.stats.FieldsFilled = make(map[string]int)
	}
	e.stats.FieldsFilled[cand.Source] += filled
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.FieldsFilled.WithLabelValues(cand.Source).Add(float64(filled))
	}
	return true
}

// applicable decides whether a source can contribute to a citation.
// OpenCitations is DOI-keyed; arXiv runs on a known arXiv ID or as a search
// when no identifier exists; scholarly is the last resort for citations
// with no identifier at all.
func (e *Enhancer) applicable(citation *domain.Citation, source string) bool {
	switch source {
	case sourceOpenCitations:
		return citation.DOI != ""
	case sourceArXiv:
		return citation.ArXivID() != "" || (!citation.HasIdentifier() && citation.Title != "")
	case sourceScholarly:
		return !citation.HasIdentifier() && citation.HasMissingFields() && citation.Title != ""
	default:
		return citation.Title != "" || citation.HasIdentifier()
	}
}

func (e *Enhancer) semaphore(source string) chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	sem, ok := e.sems[source]
	if !ok {
		size := e.cfg.Concurrency[source]
		if size <= 0 {
			size = 10
		}
		sem = make(chan struct{}, size)
		e.sems[source] = sem
	}
	return sem
}

// pause applies the fixed inter-call delay unless the context is done.
func (e *Enhancer) pause(ctx context.Context) {
	if e.cfg.SourceDelay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(e.cfg.SourceDelay):
	}
}

func (e *Enhancer) recordError(source string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stats.SourceErrors == nil {
		e.stats.SourceErrors = make(map[string]int)
	}
	e.stats.SourceErrors[source]++
}

// countEmptyFields counts the fillable fields still missing on a citation.
func countEmptyFields(c *domain.Citation) int {
	empty := 0
	if c.Title == "" {
		empty++
	}
	if len(c.Authors) == 0 {
		empty++
	}
	if c.Year == 0 {
		empty++
	}
	if c.Journal == "" {
		empty++
	}
	if c.DOI == "" {
		empty++
	}
	if c.BackupID == "" {
		empty++
	}
	if c.URL == "" {
		empty++
	}
	if c.PDFURL == "" {
		empty++
	}
	if c.Abstract == "" {
		empty++
	}
	if c.CitationCount == 0 {
		empty++
	}
	if c.ReferenceCount == 0 {
		empty++
	}
	if c.InfluentialCitationCount == 0 {
		empty++
	}
	if len(c.FieldsOfStudy) == 0 {
		empty++
	}
	return empty
}
