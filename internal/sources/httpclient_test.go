package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClientSetsHeaders(t *testing.T) {
	var gotUA, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotKey = r.Header.Get("x-api-key")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPClientConfig{
		Source:       "test",
		UserAgent:    "test-agent/1.0",
		APIKey:       "secret",
		APIKeyHeader: "x-api-key",
		RateLimit:    1000,
	})

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "test-agent/1.0", gotUA)
	assert.Equal(t, "secret", gotKey)
}

func TestHTTPClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	stats := &Stats{}
	client := NewHTTPClient(HTTPClientConfig{
		Source:     "test",
		RateLimit:  1000,
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
		Stats:      stats,
	})

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(3), calls.Load())

	snap := stats.Snapshot()
	assert.Equal(t, int64(3), snap.APICalls)
	assert.Equal(t, int64(2), snap.Retries)
}

func TestHTTPClientExhaustsRetries(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPClientConfig{
		Source:     "test",
		RateLimit:  1000,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	})

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	_, err = client.Do(req)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exhausted")
	assert.Equal(t, int64(3), calls.Load())
}

func TestHTTPClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPClientConfig{Source: "test", RateLimit: 1000})

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int64(1), calls.Load())
}

func TestHTTPClientRetriesRateLimited(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	stats := &Stats{}
	client := NewHTTPClient(HTTPClientConfig{
		Source:     "test",
		RateLimit:  1000,
		RetryDelay: time.Millisecond,
		Stats:      stats,
	})

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(1), stats.Snapshot().RateLimitHits)
}

func TestHTTPClientHonorsContextDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPClientConfig{
		Source:     "test",
		RateLimit:  1000,
		RetryDelay: 10 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	_, err = client.Do(req)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryDelay(t *testing.T) {
	client := NewHTTPClient(HTTPClientConfig{RetryDelay: time.Second})

	makeResp := func(retryAfter string) *http.Response {
		resp := &http.Response{Header: http.Header{}}
		if retryAfter != "" {
			resp.Header.Set("Retry-After", retryAfter)
		}
		return resp
	}

	assert.Equal(t, 2*time.Second, client.retryDelay(makeResp("2"), 0))
	assert.Equal(t, MaxRetryAfter, client.retryDelay(makeResp("999"), 0))

	// No header falls back to exponential backoff.
	assert.Equal(t, time.Second, client.retryDelay(makeResp(""), 0))
	assert.Equal(t, 4*time.Second, client.retryDelay(makeResp(""), 2))

	// Unparseable and past-date headers also fall back.
	assert.Equal(t, time.Second, client.retryDelay(makeResp("soon"), 0))
	past := time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat)
	assert.Equal(t, time.Second, client.retryDelay(makeResp(past), 0))
}

func TestBackoffCapped(t *testing.T) {
	client := NewHTTPClient(HTTPClientConfig{RetryDelay: time.Second})
	assert.Equal(t, MaxRetryAfter, client.backoff(20))
}
