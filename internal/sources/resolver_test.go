package sources

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/citation-resolver/internal/domain"
)

func TestBatchResolve(t *testing.T) {
	res := &fakeResolver{
		name:    "crossref",
		enabled: true,
		resolve: func(_ context.Context, c *domain.Citation) ([]*domain.MatchCandidate, error) {
			if strings.Contains(c.Title, "panic") {
				panic("bad response")
			}
			return []*domain.MatchCandidate{{Source: "crossref", Title: c.Title}}, nil
		},
	}

	citations := []*domain.Citation{
		domain.NewCitation("first paper"),
		domain.NewCitation("panic paper"),
		domain.NewCitation("third paper"),
	}

	results := BatchResolve(context.Background(), res, citations, 2, zerolog.Nop())
	require.Len(t, results, 3)

	require.Len(t, results[citations[0].ID], 1)
	assert.Equal(t, "first paper", results[citations[0].ID][0].Title)

	// The panicking citation still has an entry, just an empty one.
	assert.Empty(t, results[citations[1].ID])
	assert.NotNil(t, results[citations[1].ID])

	require.Len(t, results[citations[2].ID], 1)
}

func TestBatchResolveErrorsYieldEmptySlices(t *testing.T) {
	res := &fakeResolver{
		name:    "openalex",
		enabled: true,
		resolve: func(context.Context, *domain.Citation) ([]*domain.MatchCandidate, error) {
			return nil, domain.NewExternalAPIError("openalex", 503, "unavailable", nil)
		},
	}

	citations := []*domain.Citation{domain.NewCitation("a"), domain.NewCitation("b")}
	results := BatchResolve(context.Background(), res, citations, 0, zerolog.Nop())

	require.Len(t, results, 2)
	for _, c := range citations {
		assert.NotNil(t, results[c.ID])
		assert.Empty(t, results[c.ID])
	}
}
