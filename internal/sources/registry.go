package sources

import (
	"context"
	"sync"

	"github.com/helixir/citation-resolver/internal/domain"
)

// ResolveResult holds the outcome of one source's resolution attempt.
type ResolveResult struct {
	// Source identifies which resolver produced the result.
	Source string

	// Candidates contains the match candidates if resolution succeeded.
	Candidates []*domain.MatchCandidate

	// Error contains the error if resolution failed.
	Error error
}

// Registry manages resolvers and coordinates concurrent resolution across
// them. Registration order is preserved and defines source priority for
// merge decisions downstream. Thread-safe.
type Registry struct {
	mu        sync.RWMutex
	resolvers map[string]Resolver
	order     []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		resolvers: make(map[string]Resolver),
	}
}

// Register adds a resolver. Re-registering a source name replaces the
// resolver but keeps its original priority position.
func (r *Registry) Register(res Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := res.Source()
	if _, exists := r.resolvers[name]; !exists {
		r.order = append(r.order, name)
	}
	r.resolvers[name] = res
}

// Get returns a resolver by source name, or nil if not registered.
func (r *Registry) Get(source string) Resolver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolvers[source]
}

// Enabled returns the enabled resolvers in registration (priority) order.
func (r *Registry) Enabled() []Resolver {
	r.mu.RLock()
	defer r.mu.RUnlock()

	enabled := make([]Resolver, 0, len(r.order))
	for _, name := range r.order {
		if res := r.resolvers[name]; res != nil && res.IsEnabled() {
			enabled = append(enabled, res)
		}
	}
	return enabled
}

// ResolveAll queries every enabled source concurrently for one citation and
// returns each source's outcome, errors included. Results are returned in
// registration order regardless of completion order. One source's failure
// never affects the others.
func (r *Registry) ResolveAll(ctx context.Context, citation *domain.Citation) []ResolveResult {
	enabled := r.Enabled()
	if len(enabled) == 0 {
		return nil
	}

	results := make([]ResolveResult, len(enabled))
	var wg sync.WaitGroup

	for i, res := range enabled {
		wg.Add(1)
		go func(idx int, res Resolver) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					results[idx] = ResolveResult{
						Source: res.Source(),
						Error:  domain.NewExternalAPIError(res.Source(), 0, "resolver panicked", nil),
					}
				}
			}()

			candidates, err := res.ResolveCitation(ctx, citation)
			results[idx] = ResolveResult{
				Source:     res.Source(),
				Candidates: candidates,
				Error:      err,
			}
		}(i, res)
	}

	wg.Wait()
	return results
}

// StatsBySource returns a snapshot of every registered resolver's counters.
func (r *Registry) StatsBySource() map[string]StatsSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]StatsSnapshot, len(r.resolvers))
	for name, res := range r.resolvers {
		stats[name] = res.Stats()
	}
	return stats
}
