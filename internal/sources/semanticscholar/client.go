// Package semanticscholar resolves citations against the Semantic Scholar
// Graph API. It is the only source with a batch endpoint, which the enhancer
// uses as a cheap first pass before fanning out to the other sources.
package semanticscholar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/citation-resolver/internal/cache"
	"github.com/helixir/citation-resolver/internal/domain"
	"github.com/helixir/citation-resolver/internal/observability"
	"github.com/helixir/citation-resolver/internal/sources"
)

const (
	// DefaultBaseURL is the default base URL for the Semantic Scholar Graph API.
	DefaultBaseURL = "https://api.semanticscholar.org/graph/v1"

	// DefaultRateLimit is the default rate limit for unauthenticated
	// requests. The shared pool allows roughly one request per second;
	// an API key raises the limit.
	DefaultRateLimit = 1.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 1

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum number of search results per request.
	DefaultMaxResults = 5

	// MaxBatchSize is the largest number of IDs the batch endpoint accepts.
	MaxBatchSize = 500

	// apiKeyHeader is the header name for the Semantic Scholar API key.
	apiKeyHeader = "x-api-key"

	// paperFields is the list of fields to request from the API.
	paperFields = "paperId,externalIds,title,abstract,year,venue,journal,authors,citationCount,referenceCount,influentialCitationCount,isOpenAccess,openAccessPdf,fieldsOfStudy,url"

	// SourceName identifies this resolver in stats and candidate provenance.
	SourceName = "semanticscholar"
)

// Config contains configuration options for the Semantic Scholar client.
type Config struct {
	// BaseURL is the base URL for the API. Defaults to DefaultBaseURL.
	BaseURL string

	// APIKey is the optional API key for authenticated requests.
	// Authenticated requests have higher rate limits.
	APIKey string

	// Timeout is the HTTP request timeout. Defaults to DefaultTimeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second. Defaults to DefaultRateLimit.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed. Defaults to DefaultBurstSize.
	BurstSize int

	// MaxResults is the maximum number of search results per request.
	// Defaults to DefaultMaxResults.
	MaxResults int

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

// Client resolves citations against Semantic Scholar. Identifier lookups
// (DOI, arXiv) are preferred over title search when the citation carries one.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
	cache      *sources.ResponseCache
	stats      *sources.Stats
	logger     zerolog.Logger
}

// Compile-time check that Client implements sources.Resolver.
var _ sources.Resolver = (*Client)(nil)

// New creates a new Semantic Scholar client. cacheBackend may be nil to
// disable caching; metrics may be nil.
func New(cfg Config, cacheBackend cache.Cache, metrics *observability.Metrics, logger zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = DefaultBurstSize
	}
	if cfg.MaxResults == 0 {
		cfg.MaxResults = DefaultMaxResults
	}

	stats := &sources.Stats{}
	logger = logger.With().Str("source", SourceName).Logger()

	return &Client{
		config: cfg,
		httpClient: sources.NewHTTPClient(sources.HTTPClientConfig{
			Source:       SourceName,
			Timeout:      cfg.Timeout,
			RateLimit:    cfg.RateLimit,
			BurstSize:    cfg.BurstSize,
			APIKey:       cfg.APIKey,
			APIKeyHeader: apiKeyHeader,
			Stats:        stats,
			Metrics:      metrics,
		}),
		cache:  sources.NewResponseCache(cacheBackend, SourceName, stats, metrics, logger),
		stats:  stats,
		logger: logger,
	}
}

// Source returns the resolver identifier.
func (c *Client) Source() string { return SourceName }

// IsEnabled reports whether this source is configured for use.
func (c *Client) IsEnabled() bool { return c.config.Enabled }

// Stats returns a snapshot of the client's operation counters.
func (c *Client) Stats() sources.StatsSnapshot { return c.stats.Snapshot() }

// ResolveCitation looks up the citation by DOI or arXiv ID when one is
// present, otherwise falls back to a quoted title search.
func (c *Client) ResolveCitation(ctx context.Context, citation *domain.Citation) ([]*domain.MatchCandidate, error) {
	if id := lookupID(citation); id != "" {
		paper, err := c.lookup(ctx, id)
		if err != nil {
			return nil, err
		}
		if paper == nil {
			return nil, nil
		}
		return []*domain.MatchCandidate{paperToCandidate(paper)}, nil
	}

	if citation.Title == "" {
		return nil, nil
	}
	return c.search(ctx, citation.Title)
}

// lookup fetches a single paper by its prefixed identifier, e.g.
// "DOI:10.1093/ajae/aaq063" or "arXiv:1706.03762". A 404 is cached as a
// negative entry and reported as no result rather than an error.
func (c *Client) lookup(ctx context.Context, id string) (*Paper, error) {
	key := cache.Key(SourceName, map[string]string{"paper": id})
	body, ok, err := c.fetch(ctx, key, func() (string, error) {
		return fmt.Sprintf("%s/paper/%s?fields=%s", c.config.BaseURL, url.PathEscape(id), paperFields), nil
	})
	if err != nil || !ok {
		return nil, err
	}

	var paper Paper
	if err := json.Unmarshal(body, &paper); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &paper, nil
}

// search runs a relevance search with the title as a quoted phrase.
func (c *Client) search(ctx context.Context, title string) ([]*domain.MatchCandidate, error) {
	query := `"` + title + `"`
	params := map[string]string{
		"query": query,
		"limit": strconv.Itoa(c.config.MaxResults),
	}
	key := cache.Key(SourceName, params)

	body, ok, err := c.fetch(ctx, key, func() (string, error) {
		return c.buildSearchURL(query)
	})
	if err != nil || !ok {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	candidates := make([]*domain.MatchCandidate, 0, len(resp.Data))
	for i := range resp.Data {
		if cand := paperToCandidate(&resp.Data[i]); cand != nil {
			candidates = append(candidates, cand)
		}
	}
	return candidates, nil
}

// LookupBatch resolves up to MaxBatchSize prefixed identifiers in a single
// POST to the batch endpoint. The returned slice is aligned with ids; a nil
// entry means the identifier was unknown.
func (c *Client) LookupBatch(ctx context.Context, ids []string) ([]*domain.MatchCandidate, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxBatchSize {
		return nil, fmt.Errorf("%w: batch of %d exceeds maximum %d", domain.ErrInvalidInput, len(ids), MaxBatchSize)
	}

	payload, err := json.Marshal(batchRequest{IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("encoding batch request: %w", err)
	}

	batchURL := fmt.Sprintf("%s/paper/batch?fields=%s", c.config.BaseURL, paperFields)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, batchURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if err := c.handleErrorResponse(resp); err != nil {
		return nil, err
	}

	// The batch endpoint returns a JSON array with null for unknown IDs,
	// positionally aligned with the request.
	var papers []*Paper
	if err := json.NewDecoder(io.LimitReader(resp.Body, 50<<20)).Decode(&papers); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	candidates := make([]*domain.MatchCandidate, len(ids))
	for i, paper := range papers {
		if i >= len(ids) {
			break
		}
		if paper != nil {
			candidates[i] = paperToCandidate(paper)
		}
	}
	return candidates, nil
}

// fetch resolves a GET request through the cache. buildURL is only called on
// a cache miss. The second return value reports whether a body is available;
// it is false for negatively cached and 404 responses.
func (c *Client) fetch(ctx context.Context, key string, buildURL func() (string, error)) ([]byte, bool, error) {
	if entry, ok := c.cache.Get(ctx, key); ok {
		if entry.NotFound {
			return nil, false, nil
		}
		return entry.Data, true, nil
	}

	requestURL, err := buildURL()
	if err != nil {
		return nil, false, fmt.Errorf("building URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.cache.StoreNotFound(ctx, key)
		return nil, false, nil
	}
	if err := c.handleErrorResponse(resp); err != nil {
		return nil, false, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, false, fmt.Errorf("reading response: %w", err)
	}

	c.cache.Store(ctx, key, body)
	return body, true, nil
}

func (c *Client) buildSearchURL(query string) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	searchURL := baseURL.JoinPath("paper", "search")
	q := searchURL.Query()
	q.Set("query", query)
	q.Set("fields", paperFields)
	q.Set("limit", strconv.Itoa(c.config.MaxResults))
	searchURL.RawQuery = q.Encode()
	return searchURL.String(), nil
}

// handleErrorResponse checks for API errors and returns typed errors with
// as much of the API's message as it can recover.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.NewExternalAPIError(SourceName, resp.StatusCode, "failed to read error response", err)
	}

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		message := errResp.Error
		if message == "" {
			message = errResp.Message
		}
		if message == "" {
			message = string(body)
		}
		return domain.NewExternalAPIError(SourceName, resp.StatusCode, message, nil)
	}

	return domain.NewExternalAPIError(SourceName, resp.StatusCode, string(body), nil)
}

// lookupID builds the prefixed lookup identifier for a citation, preferring
// DOI over arXiv.
func lookupID(citation *domain.Citation) string {
	if citation.DOI != "" {
		return "DOI:" + citation.DOI
	}
	if arxivID := citation.ArXivID(); arxivID != "" {
		return "arXiv:" + arxivID
	}
	return ""
}

// BatchID builds the prefixed batch identifier for a citation, or "" when
// the citation carries no usable identifier.
func BatchID(citation *domain.Citation) string {
	return lookupID(citation)
}

// paperToCandidate converts an API paper to a match candidate.
func paperToCandidate(paper *Paper) *domain.MatchCandidate {
	if paper == nil || paper.Title == "" {
		return nil
	}

	cand := &domain.MatchCandidate{
		Source:                   SourceName,
		Title:                    paper.Title,
		Year:                     paper.Year,
		Journal:                  paper.Venue,
		URL:                      paper.URL,
		Abstract:                 paper.Abstract,
		CitationCount:            paper.CitationCount,
		ReferenceCount:           paper.ReferenceCount,
		InfluentialCitationCount: paper.InfluentialCitationCount,
		OpenAccess:               paper.IsOpenAccess,
		FieldsOfStudy:            paper.FieldsOfStudy,
	}

	if paper.Journal != nil && paper.Journal.Name != "" {
		cand.Journal = paper.Journal.Name
	}
	if paper.ExternalIDs != nil {
		cand.DOI = domain.NormalizeDOI(paper.ExternalIDs.DOI)
		if paper.ExternalIDs.ArXiv != "" {
			cand.BackupID = "arxiv:" + paper.ExternalIDs.ArXiv
		}
	}
	if paper.OpenAccessPDF != nil {
		cand.PDFURL = paper.OpenAccessPDF.URL
	}

	cand.Authors = make([]string, 0, len(paper.Authors))
	for _, author := range paper.Authors {
		if author.Name != "" {
			cand.Authors = append(cand.Authors, author.Name)
		}
	}

	return cand
}
