package openalex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/citation-resolver/internal/cache"
	"github.com/helixir/citation-resolver/internal/domain"
	"github.com/helixir/citation-resolver/internal/match"
	"github.com/helixir/citation-resolver/internal/observability"
	"github.com/helixir/citation-resolver/internal/sources"
)

const (
	// DefaultBaseURL is the default OpenAlex API base URL.
	DefaultBaseURL = "https://api.openalex.org"

	// DefaultRateLimit is the default rate limit for requests per second.
	// The polite pool (requests carrying a mailto) sustains this rate.
	DefaultRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 10

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultPerPage is how many works a search requests.
	DefaultPerPage = 5

	// selectFields restricts responses to the fields the resolver reads.
	selectFields = "id,doi,title,display_name,publication_year,cited_by_count,open_access,authorships,primary_location,abstract_inverted_index"

	// doiPrefix is the URL prefix OpenAlex uses for DOIs.
	doiPrefix = "https://doi.org/"

	// SourceName identifies this resolver in stats and candidate provenance.
	SourceName = "openalex"
)

// Config holds configuration for the OpenAlex client.
type Config struct {
	// BaseURL is the OpenAlex API base URL. Defaults to DefaultBaseURL.
	BaseURL string

	// Email is the contact email for the polite pool. Providing an email
	// grants higher rate limits.
	Email string

	// Timeout is the request timeout. Defaults to DefaultTimeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second. Defaults to DefaultRateLimit.
	RateLimit float64

	// BurstSize is the maximum burst of requests. Defaults to DefaultBurstSize.
	BurstSize int

	// PerPage is the number of works to request. Defaults to DefaultPerPage.
	PerPage int

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

// Client resolves citations against OpenAlex. Each candidate carries a
// source score computed with OpenAlex-specific heuristics, independent of
// the shared fuzzy matcher.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
	cache      *sources.ResponseCache
	stats      *sources.Stats
	logger     zerolog.Logger
}

// Compile-time check that Client implements sources.Resolver.
var _ sources.Resolver = (*Client)(nil)

// New creates a new OpenAlex client. cacheBackend may be nil to disable
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
	if cfg.PerPage == 0 {
		cfg.PerPage = DefaultPerPage
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
			UserAgent: "Helixir-CitationResolver/1.0 (mailto:" + cfg.Email + ")",
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

// ResolveCitation searches OpenAlex with a title.search filter and a
// publication_year range of year plus or minus one, returning the works as
// scored candidates.
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
		return nil, nil
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	candidates := make([]*domain.MatchCandidate, 0, len(resp.Results))
	for i := range resp.Results {
		cand := workToCandidate(&resp.Results[i])
		if cand == nil {
			continue
		}
		cand.SourceScore = confidence(citation, cand)
		candidates = append(candidates, cand)
	}

	// OpenAlex orders by its own relevance; re-rank by our confidence so
	// the first candidate is the one the enhancer should prefer.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].SourceScore > candidates[j].SourceScore
	})

	return candidates, nil
}

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

// queryParams builds the normalized filter parameters for the citation.
func (c *Client) queryParams(citation *domain.Citation) map[string]string {
	filters := []string{"title.search:" + sanitizeFilterValue(citation.Title)}
	if citation.Year != 0 {
		filters = append(filters, fmt.Sprintf("publication_year:%d-%d", citation.Year-1, citation.Year+1))
	}

	return map[string]string{
		"filter":   strings.Join(filters, ","),
		"per-page": strconv.Itoa(c.config.PerPage),
		"select":   selectFields,
	}
}

func (c *Client) buildSearchURL(params map[string]string) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	baseURL.Path = "/works"
	query := url.Values{}
	for name, value := range params {
		query.Set(name, value)
	}
	if c.config.Email != "" {
		query.Set("mailto", c.config.Email)
	}
	baseURL.RawQuery = query.Encode()
	return baseURL.String(), nil
}

// sanitizeFilterValue removes the characters OpenAlex's filter syntax
// reserves as separators.
func sanitizeFilterValue(s string) string {
	return strings.NewReplacer(",", " ", ":", " ", "|", " ").Replace(s)
}

// workToCandidate converts an OpenAlex work to a match candidate.
func workToCandidate(work *Work) *domain.MatchCandidate {
	if work == nil {
		return nil
	}

	title := work.DisplayName
	if title == "" {
		title = work.Title
	}
	if title == "" {
		return nil
	}

	cand := &domain.MatchCandidate{
		Source:        SourceName,
		Title:         title,
		Year:          work.PublicationYear,
		DOI:           domain.NormalizeDOI(work.DOI),
		URL:           work.ID,
		CitationCount: work.CitedByCount,
		Abstract:      reconstructAbstract(work.AbstractInvertedIndex),
	}

	cand.Authors = make([]string, 0, len(work.Authorships))
	for _, authorship := range work.Authorships {
		if name := strings.TrimSpace(authorship.Author.DisplayName); name != "" {
			cand.Authors = append(cand.Authors, name)
		}
	}

	if work.PrimaryLocation != nil && work.PrimaryLocation.Source != nil {
		cand.Journal = work.PrimaryLocation.Source.DisplayName
	}

	if work.OpenAccess != nil {
		cand.OpenAccess = work.OpenAccess.IsOA
		cand.PDFURL = work.OpenAccess.OAURL
	}
	if cand.PDFURL == "" && work.PrimaryLocation != nil {
		cand.PDFURL = work.PrimaryLocation.PDFURL
	}

	return cand
}

// confidence scores a candidate with OpenAlex-specific heuristics,
// independent of the shared fuzzy matcher: a DOI match on both sides is
// conclusive; otherwise weighted title similarity, year proximity and
// author last-name overlap.
func confidence(citation *domain.Citation, cand *domain.MatchCandidate) float64 {
	if citation.DOI != "" && cand.DOI != "" && citation.DOI == cand.DOI {
		return 1.0
	}

	score := 0.5 * match.Title(citation.Title, cand.Title)

	if citation.Year != 0 && cand.Year != 0 {
		delta := citation.Year - cand.Year
		if delta < 0 {
			delta = -delta
		}
		switch delta {
		case 0:
			score += 0.2
		case 1:
			score += 0.1
		}
	}

	score += 0.3 * lastNameOverlap(citation.Authors, cand.Authors)
	return score
}

// lastNameOverlap computes the last-name set intersection over the smaller
// author list.
func lastNameOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	setA := lastNameSet(a)
	setB := lastNameSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}

	smaller := len(setA)
	if len(setB) < smaller {
		smaller = len(setB)
	}

	shared := 0
	for name := range setA {
		if _, ok := setB[name]; ok {
			shared++
		}
	}
	return float64(shared) / float64(smaller)
}

func lastNameSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		tokens := strings.Fields(match.NormalizeAuthor(name))
		if len(tokens) == 0 {
			continue
		}
		last := tokens[len(tokens)-1]
		if len(last) > 1 {
			set[last] = struct{}{}
		}
	}
	return set
}

// reconstructAbstract rebuilds abstract text from OpenAlex's inverted index
// representation (word to positions), sorting by position and joining with
// spaces.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	const maxAbstractWords = 100_000
	totalPairs := 0
	for _, positions := range invertedIndex {
		totalPairs += len(positions)
	}
	// Guard against malicious payloads with excessive position entries.
	if totalPairs > maxAbstractWords {
		return ""
	}
	pairs := make([]posWord, 0, totalPairs)

	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].pos < pairs[j].pos
	})

	var builder strings.Builder
	builder.Grow(totalPairs * 7)
	for i, pair := range pairs {
		if i > 0 {
			builder.WriteByte(' ')
		}
		builder.WriteString(pair.word)
	}

	return builder.String()
}
