// Package arxiv resolves citations against the arXiv Atom API. Citations
// carrying an arXiv identifier are looked up directly through id_list;
// otherwise a title query is issued.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
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
	// DefaultBaseURL is the default arXiv API base URL.
	DefaultBaseURL = "https://export.arxiv.org/api"

	// DefaultRateLimit is the default rate limit. arXiv asks clients to
	// stay at or below three requests per second.
	DefaultRateLimit = 3.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 3

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per search.
	DefaultMaxResults = 5

	// SourceName identifies this resolver in stats and candidate provenance.
	SourceName = "arxiv"
)

// arxivIDRegex extracts the arXiv ID from an entry URL such as
// "http://arxiv.org/abs/2301.12345v1" or "http://arxiv.org/abs/hep-th/9901001v1".
var arxivIDRegex = regexp.MustCompile(`arxiv\.org/abs/(.+?)(?:v\d+)?$`)

// Config holds configuration for the arXiv client.
type Config struct {
	// BaseURL is the arXiv API base URL. Defaults to DefaultBaseURL.
	BaseURL string

	// Timeout is the request timeout. Defaults to DefaultTimeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second. Defaults to DefaultRateLimit.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed. Defaults to DefaultBurstSize.
	BurstSize int

	// MaxResults is the maximum results per search. Defaults to DefaultMaxResults.
	MaxResults int

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

// Client resolves citations against arXiv.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
	cache      *sources.ResponseCache
	stats      *sources.Stats
	logger     zerolog.Logger
}

// Compile-time check that Client implements sources.Resolver.
var _ sources.Resolver = (*Client)(nil)

// New creates a new arXiv client. cacheBackend may be nil to disable
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
	if cfg.MaxResults == 0 {
		cfg.MaxResults = DefaultMaxResults
	}

	stats := &sources.Stats{}
	logger = logger.With().Str("source", SourceName).Logger()

	return &Client{
		config: cfg,
		httpClient: sources.NewHTTPClient(sources.HTTPClientConfig{
			Source:    SourceName,
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
			BurstSize: cfg.BurstSize,
			UserAgent: "Helixir-CitationResolver/1.0",
			Stats:     stats,
			Metrics:   metrics,
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

// ResolveCitation looks up the citation's arXiv ID directly when present,
// otherwise runs a title search. An empty feed is cached as a negative
// entry and reported as no result.
func (c *Client) ResolveCitation(ctx context.Context, citation *domain.Citation) ([]*domain.MatchCandidate, error) {
	var params map[string]string
	if arxivID := citation.ArXivID(); arxivID != "" {
		params = map[string]string{"id_list": arxivID}
	} else if citation.Title != "" {
		params = map[string]string{
			"search_query": "ti:" + quoteQuery(citation.Title),
			"max_results":  strconv.Itoa(c.config.MaxResults),
		}
	} else {
		return nil, nil
	}

	key := cache.Key(SourceName, params)
	body, err := c.fetch(ctx, key, params)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, nil
	}

	var feed Feed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if len(feed.Entries) == 0 {
		c.cache.StoreNotFound(ctx, key)
		return nil, nil
	}

	candidates := make([]*domain.MatchCandidate, 0, len(feed.Entries))
	for i := range feed.Entries {
		if cand := entryToCandidate(&feed.Entries[i]); cand != nil {
			candidates = append(candidates, cand)
		}
	}
	return candidates, nil
}

func (c *Client) fetch(ctx context.Context, key string, params map[string]string) ([]byte, error) {
	if entry, ok := c.cache.Get(ctx, key); ok {
		if entry.NotFound {
			return nil, nil
		}
		return entry.Data, nil
	}

	queryURL, err := c.buildQueryURL(params)
	if err != nil {
		return nil, fmt.Errorf("building query URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

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

func (c *Client) buildQueryURL(params map[string]string) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/query"
	query := url.Values{}
	for name, value := range params {
		query.Set(name, value)
	}
	baseURL.RawQuery = query.Encode()
	return baseURL.String(), nil
}

// quoteQuery wraps the title in double quotes for phrase matching, stripping
// any quotes the title itself contains.
func quoteQuery(title string) string {
	return `"` + strings.ReplaceAll(title, `"`, " ") + `"`
}

// entryToCandidate converts an Atom entry to a match candidate. arXiv
// records are always open access.
func entryToCandidate(entry *Entry) *domain.MatchCandidate {
	if entry == nil {
		return nil
	}

	arxivID := extractArXivID(entry.ID)
	if arxivID == "" {
		return nil
	}

	title := normalizeWhitespace(entry.Title)
	if title == "" {
		return nil
	}

	cand := &domain.MatchCandidate{
		Source:     SourceName,
		Title:      title,
		DOI:        domain.NormalizeDOI(entry.DOI),
		BackupID:   "arxiv:" + arxivID,
		URL:        entry.ID,
		Abstract:   normalizeWhitespace(entry.Summary),
		Journal:    normalizeWhitespace(entry.JournalRef),
		OpenAccess: true,
	}

	if entry.Published != "" {
		if t, err := time.Parse(time.RFC3339, entry.Published); err == nil {
			cand.Year = t.Year()
		}
	}

	cand.Authors = make([]string, 0, len(entry.Authors))
	for _, author := range entry.Authors {
		if name := strings.TrimSpace(author.Name); name != "" {
			cand.Authors = append(cand.Authors, name)
		}
	}

	for _, link := range entry.Links {
		if link.Title == "pdf" || link.Type == "application/pdf" {
			cand.PDFURL = link.Href
			break
		}
	}
	if cand.PDFURL == "" {
		cand.PDFURL = "https://arxiv.org/pdf/" + arxivID
	}

	for _, category := range entry.Categories {
		if category.Term != "" {
			cand.FieldsOfStudy = append(cand.FieldsOfStudy, category.Term)
		}
	}

	return cand
}

// extractArXivID extracts the bare arXiv ID from an entry URL, dropping any
// version suffix.
func extractArXivID(entryURL string) string {
	matches := arxivIDRegex.FindStringSubmatch(entryURL)
	if len(matches) < 2 {
		return ""
	}
	return matches[1]
}

// normalizeWhitespace trims and collapses runs of whitespace, including the
// newlines arXiv embeds in titles and abstracts.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
