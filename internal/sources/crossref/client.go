// Package crossref implements the sources.Resolver contract against the
// Crossref REST API.
package crossref

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/citation-resolver/internal/cache"
	"github.com/helixir/citation-resolver/internal/domain"
	"github.com/helixir/citation-resolver/internal/observability"
	"github.com/helixir/citation-resolver/internal/sources"
)

const (
	// DefaultBaseURL is the default base URL for the Crossref REST API.
	DefaultBaseURL = "https://api.crossref.org"

	// DefaultRateLimit is Crossref's documented default quota.
	DefaultRateLimit = 50.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 50

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRows is how many ranked works a search requests.
	DefaultRows = 5

	// plusTokenHeader carries the optional Crossref Plus token.
	plusTokenHeader = "Crossref-Plus-API-Token"

	// SourceName identifies this resolver in stats and candidate provenance.
	SourceName = "crossref"
)

// Config contains configuration options for the Crossref client.
type Config struct {
	// BaseURL is the base URL for the API. Defaults to DefaultBaseURL.
	BaseURL string

	// PlusToken is the optional Crossref Plus API token, sent as a Bearer
	// header. Plus subscribers get elevated quotas.
	PlusToken string

	// Mailto is the contact email included in the User-Agent, which places
	// requests in Crossref's polite pool.
	Mailto string

	// Timeout is the HTTP request timeout. Defaults to DefaultTimeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second. Defaults to DefaultRateLimit.
	RateLimit float64

	// BurstSize is the maximum burst of requests. Defaults to DefaultBurstSize.
	BurstSize int

	// Rows is the number of ranked works to request. Defaults to DefaultRows.
	Rows int

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

// Client resolves citations against Crossref. Responses are cached in the
// injected backend, which production wiring makes the persistent WAL store
// so lookups survive across runs.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
	cache      *sources.ResponseCache
	stats      *sources.Stats
	logger     zerolog.Logger
}

// Compile-time check that Client implements sources.Resolver.
var _ sources.Resolver = (*Client)(nil)

// New creates a new Crossref client. cacheBackend may be nil to disable
// caching; metrics may be nil.
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
	if cfg.Rows == 0 {
		cfg.Rows = DefaultRows
	}

	stats := &sources.Stats{}
	logger = logger.With().Str("source", SourceName).Logger()

	userAgent := "Helixir-CitationResolver/1.0"
	if cfg.Mailto != "" {
		userAgent = fmt.Sprintf("Helixir-CitationResolver/1.0 (mailto:%s)", cfg.Mailto)
	}

	apiKey := ""
	if cfg.PlusToken != "" {
		apiKey = "Bearer " + cfg.PlusToken
	}

	return &Client{
		config: cfg,
		httpClient: sources.NewHTTPClient(sources.HTTPClientConfig{
			Source:       SourceName,
			Timeout:      cfg.Timeout,
			RateLimit:    cfg.RateLimit,
			BurstSize:    cfg.BurstSize,
			UserAgent:    userAgent,
			APIKey:       apiKey,
			APIKeyHeader: plusTokenHeader,
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

// ResolveCitation searches Crossref for works matching the citation and
// returns them as ranked candidates. Citations without a title cannot be
// queried and yield an empty result.
func (c *Client) ResolveCitation(ctx context.Context, citation *domain.Citation) ([]*domain.MatchCandidate, error) {
	if citation.Title == "" {
		return nil, nil
	}

	params := c.queryParams(citation)
	key := cache.Key(SourceName, params)

	body, err := c.fetch(ctx, key, params)
	if err != nil {
		return nil, err
	}
	if body == nil {
		// Confirmed negative entry within TTL.
		return nil, nil
	}

	var resp worksResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	candidates := make([]*domain.MatchCandidate, 0, len(resp.Message.Items))
	for i := range resp.Message.Items {
		if cand := workToCandidate(&resp.Message.Items[i]); cand != nil {
			candidates = append(candidates, cand)
		}
	}
	return candidates, nil
}

// fetch returns the raw response payload for the query, from cache when
// possible. A nil payload with nil error means a cached negative entry.
func (c *Client) fetch(ctx context.Context, key string, params map[string]string) ([]byte, error) {
	if entry, ok := c.cache.Get(ctx, key); ok {
		if entry.NotFound {
			return nil, nil
		}
		return entry.Data, nil
	}

	searchURL, err := c.buildSearchURL(params)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.cache.StoreNotFound(ctx, key)
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewExternalAPIError(SourceName, resp.StatusCode, string(body), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	c.cache.Store(ctx, key, body)
	return body, nil
}

// queryParams builds the normalized query parameters for the citation,
// which double as the cache key material.
func (c *Client) queryParams(citation *domain.Citation) map[string]string {
	params := map[string]string{
		"query.bibliographic": fmt.Sprintf("%q", citation.Title),
		"rows":                strconv.Itoa(c.config.Rows),
	}
	if first := citation.FirstAuthor(); first != "" {
		params["query.author"] = first
	}
	if citation.Journal != "" {
		params["query.container-title"] = citation.Journal
	}
	if citation.Year != 0 {
		params["filter"] = fmt.Sprintf("from-pub-date:%d-01-01,until-pub-date:%d-12-31",
			citation.Year-1, citation.Year+1)
	}
	return params
}

func (c *Client) buildSearchURL(params map[string]string) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	searchURL := baseURL.JoinPath("works")
	q := searchURL.Query()
	for name, value := range params {
		q.Set(name, value)
	}
	searchURL.RawQuery = q.Encode()
	return searchURL.String(), nil
}

// workToCandidate converts a Crossref work to a match candidate.
func workToCandidate(work *Work) *domain.MatchCandidate {
	if work == nil || len(work.Title) == 0 {
		return nil
	}

	cand := &domain.MatchCandidate{
		Source:        SourceName,
		Title:         strings.TrimSpace(work.Title[0]),
		DOI:           domain.NormalizeDOI(work.DOI),
		URL:           work.URL,
		CitationCount: work.IsReferencedBy,
		SourceScore:   work.Score,
		Abstract:      stripJATS(work.Abstract),
	}

	if len(work.ContainerTitle) > 0 {
		cand.Journal = strings.TrimSpace(work.ContainerTitle[0])
	}

	cand.Year = work.Published.Year()
	if cand.Year == 0 {
		cand.Year = work.PublishedPrint.Year()
	}
	if cand.Year == 0 {
		cand.Year = work.PublishedOn.Year()
	}

	cand.Authors = make([]string, 0, len(work.Author))
	for _, a := range work.Author {
		switch {
		case a.Family != "" && a.Given != "":
			cand.Authors = append(cand.Authors, a.Given+" "+a.Family)
		case a.Family != "":
			cand.Authors = append(cand.Authors, a.Family)
		case a.Name != "":
			cand.Authors = append(cand.Authors, a.Name)
		}
	}

	cand.PDFURL = pdfLink(work.Link)

	return cand
}

// pdfLink picks an open-access PDF link from a work's full-text links.
func pdfLink(links []Link) string {
	for _, link := range links {
		if link.ContentType == "application/pdf" {
			return link.URL
		}
	}
	for _, link := range links {
		if strings.HasSuffix(strings.ToLower(link.URL), ".pdf") {
			return link.URL
		}
	}
	return ""
}

// stripJATS removes the JATS XML tags Crossref embeds in abstracts.
func stripJATS(abstract string) string {
	if abstract == "" {
		return ""
	}
	var sb strings.Builder
	inTag := false
	for _, r := range abstract {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			sb.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}
