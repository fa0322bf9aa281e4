package sources

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/citation-resolver/internal/cache"
)

func TestResponseCacheCountsHitsAndMisses(t *testing.T) {
	backend := cache.NewMemory(time.Hour)
	stats := &Stats{}
	rc := NewResponseCache(backend, "crossref", stats, nil, zerolog.Nop())
	ctx := context.Background()

	_, ok := rc.Get(ctx, "k1")
	assert.False(t, ok)

	rc.Store(ctx, "k1", []byte("payload"))
	entry, ok := rc.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), entry.Data)

	snap := stats.Snapshot()
	assert.Equal(t, int64(1), snap.CacheHits)
	assert.Equal(t, int64(1), snap.CacheMisses)
}

func TestResponseCacheNegativeEntry(t *testing.T) {
	backend := cache.NewMemory(time.Hour)
	rc := NewResponseCache(backend, "crossref", nil, nil, zerolog.Nop())
	ctx := context.Background()

	rc.StoreNotFound(ctx, "k1")
	entry, ok := rc.Get(ctx, "k1")
	require.True(t, ok)
	assert.True(t, entry.NotFound)
}

func TestResponseCacheNilBackend(t *testing.T) {
	rc := NewResponseCache(nil, "crossref", nil, nil, zerolog.Nop())
	ctx := context.Background()

	rc.Store(ctx, "k1", []byte("payload"))
	_, ok := rc.Get(ctx, "k1")
	assert.False(t, ok)
}
