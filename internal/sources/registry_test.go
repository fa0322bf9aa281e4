package sources

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/citation-resolver/internal/domain"
)

type fakeResolver struct {
	name    string
	enabled bool
	stats   Stats
	resolve func(ctx context.Context, c *domain.Citation) ([]*domain.MatchCandidate, error)
}

func (f *fakeResolver) ResolveCitation(ctx context.Context, c *domain.Citation) ([]*domain.MatchCandidate, error) {
	if f.resolve != nil {
		return f.resolve(ctx, c)
	}
	return nil, nil
}

func (f *fakeResolver) Source() string       { return f.name }
func (f *fakeResolver) IsEnabled() bool      { return f.enabled }
func (f *fakeResolver) Stats() StatsSnapshot { return f.stats.Snapshot() }

func TestRegistryEnabledOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeResolver{name: "crossref", enabled: true})
	reg.Register(&fakeResolver{name: "openalex", enabled: false})
	reg.Register(&fakeResolver{name: "arxiv", enabled: true})

	enabled := reg.Enabled()
	require.Len(t, enabled, 2)
	assert.Equal(t, "crossref", enabled[0].Source())
	assert.Equal(t, "arxiv", enabled[1].Source())
}

func TestRegistryReplaceKeepsPosition(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeResolver{name: "crossref", enabled: true})
	reg.Register(&fakeResolver{name: "openalex", enabled: true})

	// Re-registering crossref must not demote it behind openalex.
	reg.Register(&fakeResolver{name: "crossref", enabled: true})

	enabled := reg.Enabled()
	require.Len(t, enabled, 2)
	assert.Equal(t, "crossref", enabled[0].Source())
}

func TestRegistryGet(t *testing.T) {
	reg := NewRegistry()
	res := &fakeResolver{name: "crossref", enabled: true}
	reg.Register(res)

	assert.Equal(t, res, reg.Get("crossref"))
	assert.Nil(t, reg.Get("unknown"))
}

func TestResolveAllIsolatesFailures(t *testing.T) {
	cand := &domain.MatchCandidate{Source: "crossref", DOI: "10.1000/x"}
	reg := NewRegistry()
	reg.Register(&fakeResolver{
		name:    "crossref",
		enabled: true,
		resolve: func(context.Context, *domain.Citation) ([]*domain.MatchCandidate, error) {
			return []*domain.MatchCandidate{cand}, nil
		},
	})
	reg.Register(&fakeResolver{
		name:    "openalex",
		enabled: true,
		resolve: func(context.Context, *domain.Citation) ([]*domain.MatchCandidate, error) {
			return nil, errors.New("boom")
		},
	})
	reg.Register(&fakeResolver{
		name:    "arxiv",
		enabled: true,
		resolve: func(context.Context, *domain.Citation) ([]*domain.MatchCandidate, error) {
			panic("unexpected payload")
		},
	})

	results := reg.ResolveAll(context.Background(), domain.NewCitation("some paper"))
	require.Len(t, results, 3)

	assert.Equal(t, "crossref", results[0].Source)
	require.Len(t, results[0].Candidates, 1)
	assert.Equal(t, cand, results[0].Candidates[0])

	assert.Equal(t, "openalex", results[1].Source)
	assert.Error(t, results[1].Error)

	assert.Equal(t, "arxiv", results[2].Source)
	require.Error(t, results[2].Error)
	var apiErr *domain.ExternalAPIError
	assert.ErrorAs(t, results[2].Error, &apiErr)
}

func TestResolveAllEmptyRegistry(t *testing.T) {
	reg := NewRegistry()
	assert.Nil(t, reg.ResolveAll(context.Background(), domain.NewCitation("x")))
}

func TestStatsBySource(t *testing.T) {
	reg := NewRegistry()
	res := &fakeResolver{name: "crossref", enabled: true}
	res.stats.RecordAPICall()
	res.stats.RecordCacheHit()
	reg.Register(res)

	stats := reg.StatsBySource()
	require.Contains(t, stats, "crossref")
	assert.Equal(t, int64(1), stats["crossref"].APICalls)
	assert.Equal(t, int64(1), stats["crossref"].CacheHits)
}
