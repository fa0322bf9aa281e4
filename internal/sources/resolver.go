package sources

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/citation-resolver/internal/domain"
)

// Resolver is the contract every bibliographic source client implements.
// ResolveCitation builds a source-specific query for the citation, performs
// the rate-limited HTTP call and parses the response into ranked match
// candidates.
//
// Implementations should:
//   - Respect context cancellation
//   - Apply rate limiting and bounded retries
//   - Consult their injected cache before going to the network
//   - Return an error wrapping domain.ErrNotFound for a confirmed miss,
//     as opposed to a transport failure
type Resolver interface {
	// ResolveCitation returns candidates ordered by the source's own
	// ranking. An empty slice with a nil error means the source answered
	// but had nothing useful.
	ResolveCitation(ctx context.Context, citation *domain.Citation) ([]*domain.MatchCandidate, error)

	// Source returns the identifier used for attribution, stats and
	// candidate provenance.
	Source() string

	// IsEnabled reports whether this source is configured for use. A
	// source may be disabled by configuration or a missing API key.
	IsEnabled() bool

	// Stats returns a snapshot of the source's operation counters.
	Stats() StatsSnapshot
}

// BatchResolve resolves many citations against one resolver with bounded
// concurrency. Each citation maps to its candidate list under its ID. A
// per-citation failure or panic is isolated: that citation maps to an empty
// slice and the rest of the batch proceeds.
func BatchResolve(ctx context.Context, r Resolver, citations []*domain.Citation, concurrency int, logger zerolog.Logger) map[uuid.UUID][]*domain.MatchCandidate {
	if concurrency <= 0 {
		concurrency = 1
	}

	results := make(map[uuid.UUID][]*domain.MatchCandidate, len(citations))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)

	for _, citation := range citations {
		wg.Add(1)
		go func(c *domain.Citation) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			candidates := resolveOne(ctx, r, c, logger)

			mu.Lock()
			results[c.ID] = candidates
			mu.Unlock()
		}(citation)
	}

	wg.Wait()
	return results
}

// resolveOne runs a single resolution call, converting errors and panics
// into an empty candidate list.
func resolveOne(ctx context.Context, r Resolver, c *domain.Citation, logger zerolog.Logger) (candidates []*domain.MatchCandidate) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().
				Str("source", r.Source()).
				Str("citation_id", c.ID.String()).
				Interface("panic", rec).
				Msg("resolver panicked, returning empty result")
			candidates = []*domain.MatchCandidate{}
		}
	}()

	candidates, err := r.ResolveCitation(ctx, c)
	if err != nil {
		logger.Debug().
			Err(err).
			Str("source", r.Source()).
			Str("citation_id", c.ID.String()).
			Msg("resolution failed for citation")
		return []*domain.MatchCandidate{}
	}
	if candidates == nil {
		candidates = []*domain.MatchCandidate{}
	}
	return candidates
}
