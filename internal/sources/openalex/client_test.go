package openalex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/citation-resolver/internal/cache"
	"github.com/helixir/citation-resolver/internal/domain"
)

const searchFixture = `{
	"meta": {"count": 2},
	"results": [
		{
			"id": "https://openalex.org/W2741809807",
			"doi": "https://doi.org/10.1000/first",
			"display_name": "Deep Residual Learning for Image Recognition",
			"publication_year": 2016,
			"cited_by_count": 120000,
			"open_access": {"is_oa": true, "oa_url": "https://example.org/resnet.pdf"},
			"authorships": [
				{"author": {"display_name": "Kaiming He"}},
				{"author": {"display_name": "Xiangyu Zhang"}}
			],
			"primary_location": {"source": {"display_name": "CVPR"}},
			"abstract_inverted_index": {"Deeper": [0], "networks": [1], "learn": [2]}
		},
		{
			"id": "https://openalex.org/W999",
			"title": "An Unrelated Survey of Fish Migration",
			"publication_year": 2002,
			"authorships": [{"author": {"display_name": "Someone Else"}}]
		}
	]
}`

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return New(Config{
		BaseURL:   baseURL,
		Email:     "dev@helixir.io",
		Enabled:   true,
		RateLimit: 1000,
		Timeout:   5 * time.Second,
	}, cache.NewMemory(time.Hour), nil, zerolog.Nop())
}

func TestResolveCitationRanksByConfidence(t *testing.T) {
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query())
		w.Write([]byte(searchFixture))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	citation := domain.NewCitation("Deep Residual Learning for Image Recognition")
	citation.Authors = []string{"Kaiming He"}
	citation.Year = 2016

	candidates, err := client.ResolveCitation(context.Background(), citation)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	first := candidates[0]
	assert.Equal(t, "Deep Residual Learning for Image Recognition", first.Title)
	assert.Equal(t, "10.1000/first", first.DOI)
	assert.Equal(t, "CVPR", first.Journal)
	assert.Equal(t, "https://example.org/resnet.pdf", first.PDFURL)
	assert.True(t, first.OpenAccess)
	assert.Equal(t, "Deeper networks learn", first.Abstract)

	// Exact title, exact year and a shared last name dominate the ranking.
	assert.Greater(t, first.SourceScore, 0.9)
	assert.Greater(t, first.SourceScore, candidates[1].SourceScore)

	q := gotQuery.Load().(url.Values)
	assert.Contains(t, q.Get("filter"), "title.search:Deep Residual Learning for Image Recognition")
	assert.Contains(t, q.Get("filter"), "publication_year:2015-2017")
	assert.Equal(t, "dev@helixir.io", q.Get("mailto"))
}

func TestResolveCitationNegativeCaching(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	citation := domain.NewCitation("nothing here")

	for i := 0; i < 2; i++ {
		candidates, err := client.ResolveCitation(context.Background(), citation)
		require.NoError(t, err)
		assert.Empty(t, candidates)
	}
	assert.Equal(t, int64(1), calls.Load())
}

func TestConfidenceDOIMatch(t *testing.T) {
	citation := domain.NewCitation("whatever")
	citation.DOI = "10.1000/x"
	cand := &domain.MatchCandidate{Title: "completely different", DOI: "10.1000/x"}

	assert.Equal(t, 1.0, confidence(citation, cand))
}

func TestConfidenceComponents(t *testing.T) {
	citation := domain.NewCitation("Deep Residual Learning")
	citation.Year = 2016
	citation.Authors = []string{"Kaiming He"}

	exact := &domain.MatchCandidate{
		Title:   "Deep Residual Learning",
		Year:    2016,
		Authors: []string{"Kaiming He", "Xiangyu Zhang"},
	}
	assert.InDelta(t, 1.0, confidence(citation, exact), 1e-9)

	offByOne := &domain.MatchCandidate{Title: "Deep Residual Learning", Year: 2015}
	assert.InDelta(t, 0.6, confidence(citation, offByOne), 1e-9)
}

func TestSanitizeFilterValue(t *testing.T) {
	assert.Equal(t, "a b c d", sanitizeFilterValue("a,b:c|d"))
}

func TestReconstructAbstract(t *testing.T) {
	idx := map[string][]int{
		"the":  {0, 3},
		"cat":  {1},
		"sat":  {2},
		"mat.": {4},
	}
	assert.Equal(t, "the cat sat the mat.", reconstructAbstract(idx))
	assert.Equal(t, "", reconstructAbstract(nil))
}
