package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/helixir/citation-resolver/internal/observability"
)

// MaxRetryAfter caps how long a Retry-After header may delay a retry.
const MaxRetryAfter = 300 * time.Second

// HTTPClientConfig configures the shared HTTP client.
type HTTPClientConfig struct {
	// Source names the API this client talks to, for stats and metrics.
	Source string

	// Timeout is the request timeout for HTTP operations.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxRetries is the maximum number of retry attempts.
	MaxRetries int

	// RetryDelay is the base delay between retries; the actual delay grows
	// exponentially with the attempt number.
	RetryDelay time.Duration

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// APIKey is an optional API key for authentication.
	APIKey string

	// APIKeyHeader is the header name for the API key (e.g. "x-api-key",
	// "Crossref-Plus-API-Token").
	APIKeyHeader string

	// Stats receives per-call counters when non-nil.
	Stats *Stats

	// Metrics receives Prometheus observations when non-nil.
	Metrics *observability.Metrics
}

// HTTPClient wraps http.Client with rate limiting and retries.
// It is safe for concurrent use.
//
// Retry policy: 429 responses honor a Retry-After header (capped at
// MaxRetryAfter) and otherwise back off exponentially; 5xx responses and
// transport errors back off exponentially; any other 4xx fails immediately
// without retry.
type HTTPClient struct {
	client      *http.Client
	rateLimiter *RateLimiter
	config      HTTPClientConfig
}

// NewHTTPClient creates a new HTTP client with rate limiting.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 10
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = 10
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Helixir-CitationResolver/1.0"
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.BurstSize),
		config:      cfg,
	}
}

// Do executes an HTTP request with rate limiting and retries. It waits for
// the rate limiter before each attempt and sets the User-Agent and optional
// API key headers.
//
// The request body is not preserved across retries; callers must provide
// requests with GetBody set if the body needs to be resent on retry.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.APIKey != "" && c.config.APIKeyHeader != "" {
		req.Header.Set(c.config.APIKeyHeader, c.config.APIKey)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if err := c.rateLimiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		c.recordCall()
		start := time.Now()
		resp, err := c.client.Do(req)
		c.observeDuration(time.Since(start))

		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			c.recordFailure("transport")
			if attempt < c.config.MaxRetries {
				c.recordRetry()
				if err := c.waitForRetry(req.Context(), c.backoff(attempt)); err != nil {
					return nil, err
				}
				if err := c.resetRequestBody(req); err != nil {
					return nil, fmt.Errorf("cannot retry request: %w", err)
				}
				continue
			}
			return nil, lastErr
		}

		if c.shouldRetry(resp.StatusCode) {
			if resp.StatusCode == http.StatusTooManyRequests {
				c.recordRateLimited()
			} else {
				c.recordFailure("server")
			}

			retryDelay := c.retryDelay(resp, attempt)

			// Drain and close the body before retrying so the connection
			// can be reused.
			if resp.Body != nil {
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}

			if attempt < c.config.MaxRetries {
				c.recordRetry()
				lastErr = fmt.Errorf("server returned status %d", resp.StatusCode)
				if err := c.waitForRetry(req.Context(), retryDelay); err != nil {
					return nil, err
				}
				if err := c.resetRequestBody(req); err != nil {
					return nil, fmt.Errorf("cannot retry request: %w", err)
				}
				continue
			}

			return nil, fmt.Errorf("max retries exhausted after %d attempts, last status: %d", c.config.MaxRetries+1, resp.StatusCode)
		}

		// Success or a non-retryable client error; the caller maps the
		// status code.
		return resp, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("unexpected error: no response received")
}

// shouldRetry returns true if the status code indicates a retryable failure.
func (c *HTTPClient) shouldRetry(statusCode int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	return statusCode >= 500 && statusCode < 600
}

// retryDelay determines how long to wait before retrying. A Retry-After
// header takes precedence (capped at MaxRetryAfter); otherwise the delay
// grows exponentially with the attempt number.
func (c *HTTPClient) retryDelay(resp *http.Response, attempt int) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return c.backoff(attempt)
	}

	if seconds, err := strconv.ParseInt(retryAfter, 10, 64); err == nil {
		if seconds > 0 {
			delay := time.Duration(seconds) * time.Second
			if delay > MaxRetryAfter {
				return MaxRetryAfter
			}
			return delay
		}
		return c.backoff(attempt)
	}

	if t, err := http.ParseTime(retryAfter); err == nil {
		delay := time.Until(t)
		if delay > MaxRetryAfter {
			return MaxRetryAfter
		}
		if delay > 0 {
			return delay
		}
	}

	return c.backoff(attempt)
}

// backoff returns the exponential delay for the given zero-based attempt.
func (c *HTTPClient) backoff(attempt int) time.Duration {
	delay := c.config.RetryDelay << uint(attempt)
	if delay > MaxRetryAfter {
		return MaxRetryAfter
	}
	return delay
}

// waitForRetry waits for the specified duration, respecting context
// cancellation.
func (c *HTTPClient) waitForRetry(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// resetRequestBody resets the request body for retry if possible.
func (c *HTTPClient) resetRequestBody(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}

	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("failed to get request body for retry: %w", err)
	}
	req.Body = body
	return nil
}

func (c *HTTPClient) recordCall() {
	if c.config.Stats != nil {
		c.config.Stats.RecordAPICall()
	}
	if c.config.Metrics != nil {
		c.config.Metrics.SourceRequestsTotal.WithLabelValues(c.config.Source).Inc()
	}
}

func (c *HTTPClient) recordRetry() {
	if c.config.Stats != nil {
		c.config.Stats.RecordRetry()
	}
	if c.config.Metrics != nil {
		c.config.Metrics.SourceRetries.WithLabelValues(c.config.Source).Inc()
	}
}

func (c *HTTPClient) recordRateLimited() {
	if c.config.Stats != nil {
		c.config.Stats.RecordRateLimitHit()
	}
	if c.config.Metrics != nil {
		c.config.Metrics.SourceRateLimited.WithLabelValues(c.config.Source).Inc()
	}
}

func (c *HTTPClient) recordFailure(errorType string) {
	if c.config.Stats != nil {
		c.config.Stats.RecordError()
	}
	if c.config.Metrics != nil {
		c.config.Metrics.SourceRequestsFailed.WithLabelValues(c.config.Source, errorType).Inc()
	}
}

func (c *HTTPClient) observeDuration(d time.Duration) {
	if c.config.Metrics != nil {
		c.config.Metrics.SourceRequestDuration.WithLabelValues(c.config.Source).Observe(d.Seconds())
	}
}
