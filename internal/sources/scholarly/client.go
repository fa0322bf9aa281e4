// Package scholarly is a last-resort resolver that scrapes a web search for
// the citation title and extracts identifiers (DOI, arXiv ID, ISBN) from the
// result pages. It yields low-confidence candidates meant to seed identifier
// lookups in the structured sources, not to win matches on their own.
package scholarly

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/citation-resolver/internal/cache"
	"github.com/helixir/citation-resolver/internal/domain"
	"github.com/helixir/citation-resolver/internal/observability"
	"github.com/helixir/citation-resolver/internal/sources"
)

const (
	// DefaultBaseURL is the default search endpoint.
	DefaultBaseURL = "https://html.duckduckgo.com/html/"

	// DefaultRateLimit keeps at most one search per second. Scraping
	// faster than this gets the client blocked.
	DefaultRateLimit = 1.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 1

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxCandidates bounds how many results become candidates.
	DefaultMaxCandidates = 5

	// SourceScore is the fixed confidence assigned to scraped candidates.
	SourceScore = 0.4

	// SourceName identifies this resolver in stats and candidate provenance.
	SourceName = "scholarly"
)

var (
	// resultRegex matches a search result anchor: href plus inner text.
	resultRegex = regexp.MustCompile(`(?s)<a[^>]+class="result__a"[^>]+href="([^"]+)"[^>]*>(.*?)</a>`)

	// doiRegex matches a DOI anywhere in a URL or snippet.
	doiRegex = regexp.MustCompile(`10\.\d{4,9}/[^\s<>"{}|\\^~\[\]` + "`" + `]+`)

	// arxivRegex matches arXiv abs/pdf URLs and captures the ID.
	arxivRegex = regexp.MustCompile(`arxiv\.org/(?:abs|pdf)/(\d{4}\.\d{4,5}|[a-z-]+(?:\.[A-Z]{2})?/\d{7})`)

	// isbnRegex matches ISBN-10 and ISBN-13 declarations in snippets.
	isbnRegex = regexp.MustCompile(`ISBN[-:\s]*((?:97[89][- ]?)?(?:\d[- ]?){9}[\dXx])`)

	// tagRegex strips residual markup from result titles.
	tagRegex = regexp.MustCompile(`<[^>]+>`)
)

// Config holds configuration for the scholarly client.
type Config struct {
	// BaseURL is the search endpoint. Defaults to DefaultBaseURL.
	BaseURL string

	// Timeout is the request timeout. Defaults to DefaultTimeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second. Defaults to DefaultRateLimit.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed. Defaults to DefaultBurstSize.
	BurstSize int

	// MaxCandidates bounds the number of candidates returned per search.
	// Defaults to DefaultMaxCandidates.
	MaxCandidates int

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

// Client resolves citations by scraping web search results.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
	cache      *sources.ResponseCache
	stats      *sources.Stats
	logger     zerolog.Logger
}

// Compile-time check that Client implements sources.Resolver.
var _ sources.Resolver = (*Client)(nil)

// New creates a new scholarly client. cacheBackend may be nil to disable
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
	if cfg.MaxCandidates == 0 {
		cfg.MaxCandidates = DefaultMaxCandidates
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
			UserAgent: "Mozilla/5.0 (compatible; Helixir-CitationResolver/1.0)",
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

// ResolveCitation searches the web for the citation title plus its first
// author and extracts identifiers from the result links.
func (c *Client) ResolveCitation(ctx context.Context, citation *domain.Citation) ([]*domain.MatchCandidate, error) {
	if citation.Title == "" {
		return nil, nil
	}

	query := buildQuery(citation)
	key := cache.Key(SourceName, map[string]string{"q": query})

	body, err := c.fetch(ctx, key, query)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, nil
	}

	candidates := c.extractCandidates(string(body))
	if len(candidates) == 0 {
		c.cache.StoreNotFound(ctx, key)
		return nil, nil
	}
	return candidates, nil
}

func (c *Client) fetch(ctx context.Context, key, query string) ([]byte, error) {
	if entry, ok := c.cache.Get(ctx, key); ok {
		if entry.NotFound {
			return nil, nil
		}
		return entry.Data, nil
	}

	searchURL := c.config.BaseURL + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
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

// buildQuery combines the title with the first author's name to disambiguate
// common titles.
func buildQuery(citation *domain.Citation) string {
	query := `"` + citation.Title + `"`
	if author := citation.FirstAuthor(); author != "" {
		query += " " + author
	}
	return query
}

// extractCandidates parses result anchors from the page and builds one
// candidate per result that carries at least one identifier.
func (c *Client) extractCandidates(page string) []*domain.MatchCandidate {
	matches := resultRegex.FindAllStringSubmatch(page, -1)
	candidates := make([]*domain.MatchCandidate, 0, len(matches))
	seen := make(map[string]bool)

	for _, m := range matches {
		if len(candidates) >= c.config.MaxCandidates {
			break
		}

		link := resolveRedirect(html.UnescapeString(m[1]))
		title := cleanTitle(m[2])
		haystack := link + " " + title

		cand := &domain.MatchCandidate{
			Source:      SourceName,
			Title:       title,
			URL:         link,
			SourceScore: SourceScore,
		}

		if doi := doiRegex.FindString(haystack); doi != "" {
			cand.DOI = domain.NormalizeDOI(strings.TrimRight(doi, ".,;)"))
		}
		if am := arxivRegex.FindStringSubmatch(haystack); am != nil {
			cand.BackupID = "arxiv:" + am[1]
		}
		if cand.BackupID == "" {
			if im := isbnRegex.FindStringSubmatch(haystack); im != nil {
				cand.BackupID = "isbn:" + normalizeISBN(im[1])
			}
		}

		if cand.DOI == "" && cand.BackupID == "" {
			continue
		}

		dedupKey := cand.DOI + "|" + cand.BackupID
		if seen[dedupKey] {
			continue
		}
		seen[dedupKey] = true
		candidates = append(candidates, cand)
	}

	return candidates
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg= redirect links to the
// destination URL.
func resolveRedirect(link string) string {
	parsed, err := url.Parse(link)
	if err != nil {
		return link
	}
	if target := parsed.Query().Get("uddg"); target != "" {
		if decoded, err := url.QueryUnescape(target); err == nil {
			return decoded
		}
	}
	return link
}

func cleanTitle(raw string) string {
	raw = tagRegex.ReplaceAllString(raw, "")
	return strings.Join(strings.Fields(html.UnescapeString(raw)), " ")
}

func normalizeISBN(isbn string) string {
	return strings.ToUpper(strings.NewReplacer("-", "", " ", "").Replace(isbn))
}
