// Package cache provides the response cache used by the source resolvers:
// a storage-agnostic port with an in-memory TTL implementation for
// process-scoped caching and a WAL-mode SQLite implementation for
// persistence across runs. Both support negative entries so a confirmed
// "not found" is not re-queried within the TTL.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// DefaultTTL is the validity window for cached responses, including
// negative entries.
const DefaultTTL = time.Hour

// Entry is a cached source response. NotFound marks an explicit negative
// entry: the source was queried successfully and had no result.
type Entry struct {
	Data     []byte
	NotFound bool
	StoredAt time.Time
}

// Cache is the storage port injected into resolvers. Implementations must
// be safe for concurrent use. Get returns (entry, true) only for entries
// still within their TTL.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool)
	Set(ctx context.Context, key string, data []byte) error
	SetNotFound(ctx context.Context, key string) error
	Invalidate(ctx context.Context, key string) error
	Close() error
}

// Key derives a stable cache key from a source name and its normalized
// query parameters. Parameters are sorted by name so equivalent queries
// built in different orders hash identically.
func Key(source string, params map[string]string) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString(source)
	for _, name := range names {
		sb.WriteByte('\x00')
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.WriteString(strings.ToLower(strings.TrimSpace(params[name])))
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}
