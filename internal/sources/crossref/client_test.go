package crossref

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

const worksFixture = `{
	"status": "ok",
	"message": {
		"total-results": 2,
		"items": [
			{
				"DOI": "10.1000/ATTENTION",
				"title": ["Attention Is All You Need"],
				"container-title": ["Advances in Neural Information Processing Systems"],
				"author": [
					{"given": "Ashish", "family": "Vaswani"},
					{"given": "Noam", "family": "Shazeer"}
				],
				"published": {"date-parts": [[2017, 6, 12]]},
				"URL": "https://doi.org/10.1000/attention",
				"abstract": "<jats:p>The dominant sequence  transduction models</jats:p>",
				"is-referenced-by-count": 90000,
				"score": 95.5,
				"link": [
					{"URL": "https://example.org/paper.pdf", "content-type": "application/pdf"}
				]
			},
			{
				"DOI": "10.1000/other",
				"title": ["Some Other Paper"],
				"published-print": {"date-parts": [[2016]]},
				"score": 12.0
			}
		]
	}
}`

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return New(Config{
		BaseURL:   baseURL,
		Enabled:   true,
		RateLimit: 1000,
		Timeout:   5 * time.Second,
	}, cache.NewMemory(time.Hour), nil, zerolog.Nop())
}

func TestResolveCitationParsesWorks(t *testing.T) {
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query())
		w.Write([]byte(worksFixture))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	citation := domain.NewCitation("Attention Is All You Need")
	citation.Authors = []string{"Ashish Vaswani"}
	citation.Year = 2017

	candidates, err := client.ResolveCitation(context.Background(), citation)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	first := candidates[0]
	assert.Equal(t, SourceName, first.Source)
	assert.Equal(t, "Attention Is All You Need", first.Title)
	assert.Equal(t, "10.1000/attention", first.DOI)
	assert.Equal(t, []string{"Ashish Vaswani", "Noam Shazeer"}, first.Authors)
	assert.Equal(t, 2017, first.Year)
	assert.Equal(t, "Advances in Neural Information Processing Systems", first.Journal)
	assert.Equal(t, "https://example.org/paper.pdf", first.PDFURL)
	assert.Equal(t, "The dominant sequence transduction models", first.Abstract)
	assert.Equal(t, 90000, first.CitationCount)
	assert.InDelta(t, 95.5, first.SourceScore, 1e-9)

	// The fallback year fields are consulted in order.
	assert.Equal(t, 2016, candidates[1].Year)

	q := gotQuery.Load().(url.Values)
	assert.Equal(t, `"Attention Is All You Need"`, q.Get("query.bibliographic"))
	assert.Equal(t, "Ashish Vaswani", q.Get("query.author"))
	assert.Equal(t, "from-pub-date:2016-01-01,until-pub-date:2018-12-31", q.Get("filter"))
}

func TestResolveCitationUsesCache(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(worksFixture))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	citation := domain.NewCitation("Attention Is All You Need")

	_, err := client.ResolveCitation(context.Background(), citation)
	require.NoError(t, err)
	_, err = client.ResolveCitation(context.Background(), citation)
	require.NoError(t, err)

	assert.Equal(t, int64(1), calls.Load())

	snap := client.Stats()
	assert.Equal(t, int64(1), snap.APICalls)
	assert.Equal(t, int64(1), snap.CacheHits)
}

func TestResolveCitationNegativeCaching(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	citation := domain.NewCitation("no such paper")

	candidates, err := client.ResolveCitation(context.Background(), citation)
	require.NoError(t, err)
	assert.Empty(t, candidates)

	// The second resolution is answered by the negative entry.
	candidates, err = client.ResolveCitation(context.Background(), citation)
	require.NoError(t, err)
	assert.Empty(t, candidates)
	assert.Equal(t, int64(1), calls.Load())
}

func TestResolveCitationServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.ResolveCitation(context.Background(), domain.NewCitation("x"))

	var apiErr *domain.ExternalAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
}

func TestResolveCitationEmptyTitle(t *testing.T) {
	client := newTestClient(t, "http://localhost:0")
	candidates, err := client.ResolveCitation(context.Background(), domain.NewCitation(""))
	require.NoError(t, err)
	assert.Nil(t, candidates)
}

func TestStripJATS(t *testing.T) {
	assert.Equal(t, "", stripJATS(""))
	assert.Equal(t, "plain text", stripJATS("plain text"))
	assert.Equal(t, "Nested tags removed", stripJATS("<jats:p>Nested <jats:italic>tags</jats:italic> removed</jats:p>"))
}

func TestPDFLink(t *testing.T) {
	links := []Link{
		{URL: "https://example.org/a.html", ContentType: "text/html"},
		{URL: "https://example.org/a.PDF", ContentType: "unspecified"},
	}
	assert.Equal(t, "https://example.org/a.PDF", pdfLink(links))
	assert.Equal(t, "", pdfLink(nil))
}
