// Package opencitations resolves citations against the OpenCitations COCI
// metadata endpoint. The index is keyed by DOI, so citations without one
// cannot be resolved here.
package opencitations

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
	// DefaultBaseURL is the default COCI API base URL.
	DefaultBaseURL = "https://opencitations.net/index/coci/api/v1"

	// DefaultRateLimit is the default rate limit for requests per second.
	DefaultRateLimit = 5.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 5

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// accessTokenHeader carries the optional OpenCitations access token.
	accessTokenHeader = "authorization"

	// SourceName identifies this resolver in stats and candidate provenance.
	SourceName = "opencitations"
)

// Config holds configuration for the OpenCitations client.
type Config struct {
	// BaseURL is the COCI API base URL. Defaults to DefaultBaseURL.
	BaseURL string

	// AccessToken is the optional OpenCitations access token.
	AccessToken string

	// Timeout is the request timeout. Defaults to DefaultTimeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second. Defaults to DefaultRateLimit.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed. Defaults to DefaultBurstSize.
	BurstSize int

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

// Client resolves citations against OpenCitations by DOI.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
	cache      *sources.ResponseCache
	stats      *sources.Stats
	logger     zerolog.Logger
}

// Compile-time check that Client implements sources.Resolver.
var _ sources.Resolver = (*Client)(nil)

// New creates a new OpenCitations client. cacheBackend may be nil to
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

	stats := &sources.Stats{}
	logger = logger.With().Str("source", SourceName).Logger()

	return &Client{
		config: cfg,
		httpClient: sources.NewHTTPClient(sources.HTTPClientConfig{
			Source:       SourceName,
			Timeout:      cfg.Timeout,
			RateLimit:    cfg.RateLimit,
			BurstSize:    cfg.BurstSize,
			APIKey:       cfg.AccessToken,
			APIKeyHeader: accessTokenHeader,
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

// ResolveCitation fetches COCI metadata for the citation's DOI. Citations
// without a DOI yield no candidates. An empty metadata array means the DOI
// is not indexed and is cached as a negative entry.
func (c *Client) ResolveCitation(ctx context.Context, citation *domain.Citation) ([]*domain.MatchCandidate, error) {
	doi := domain.NormalizeDOI(citation.DOI)
	if doi == "" {
		return nil, nil
	}

	key := cache.Key(SourceName, map[string]string{"doi": doi})
	body, err := c.fetch(ctx, key, doi)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, nil
	}

	var records []record
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if len(records) == 0 {
		c.cache.StoreNotFound(ctx, key)
		return nil, nil
	}

	candidates := make([]*domain.MatchCandidate, 0, len(records))
	for i := range records {
		if cand := recordToCandidate(&records[i]); cand != nil {
			candidates = append(candidates, cand)
		}
	}
	return candidates, nil
}

func (c *Client) fetch(ctx context.Context, key, doi string) ([]byte, error) {
	if entry, ok := c.cache.Get(ctx, key); ok {
		if entry.NotFound {
			return nil, nil
		}
		return entry.Data, nil
	}

	metadataURL := fmt.Sprintf("%s/metadata/%s", c.config.BaseURL, url.PathEscape(doi))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
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

// recordToCandidate converts a COCI record to a match candidate. COCI
// serializes numbers as strings; unparsable values are treated as absent.
func recordToCandidate(rec *record) *domain.MatchCandidate {
	if rec == nil || rec.Title == "" {
		return nil
	}

	cand := &domain.MatchCandidate{
		Source:  SourceName,
		Title:   rec.Title,
		Journal: rec.SourceTitle,
		DOI:     domain.NormalizeDOI(rec.DOI),
		Authors: splitAuthors(rec.Author),
	}

	if year, err := strconv.Atoi(strings.TrimSpace(rec.Year)); err == nil {
		cand.Year = year
	}
	if count, err := strconv.Atoi(strings.TrimSpace(rec.CitationCount)); err == nil {
		cand.CitationCount = count
	}
	if rec.Reference != "" {
		cand.ReferenceCount = len(strings.Split(rec.Reference, ";"))
	}
	if rec.OALink != "" {
		cand.URL = rec.OALink
		cand.OpenAccess = true
	}

	return cand
}

// splitAuthors splits COCI's "Family, Given; Family, Given" author string.
func splitAuthors(authors string) []string {
	if authors == "" {
		return nil
	}
	parts := strings.Split(authors, ";")
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}
