// Package sources defines the resolver contract shared by all bibliographic
// source clients, together with the rate-limited retrying HTTP client, the
// per-source statistics counters and the source registry.
package sources

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter wraps a token bucket rate limiter for controlling request
// rates to external APIs. Safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a new rate limiter. ratePerSecond is the sustained
// request rate, burst the maximum number of tokens consumable at once.
//
// Example configurations:
//   - Crossref: NewRateLimiter(50, 50)
//   - Semantic Scholar without an API key: NewRateLimiter(1, 1)
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// Wait blocks until a request is allowed or the context is canceled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Allow returns true if a request is allowed without waiting, consuming one
// token if so.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// SetRate updates the rate limit while preserving the current burst size.
// Used to back off dynamically when a source signals reduced quota.
func (r *RateLimiter) SetRate(ratePerSecond float64) {
	r.limiter.SetLimit(rate.Limit(ratePerSecond))
}

// Tokens returns the current number of available tokens.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
