package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is a persistent response cache backed by an embedded SQLite
// database in WAL mode, so readers and the single writer do not block each
// other across processes.
type SQLite struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// OpenSQLite opens or creates the cache database at path. A non-positive
// ttl falls back to DefaultTTL.
func OpenSQLite(path string, ttl time.Duration) (*SQLite, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS api_cache (
			cache_key TEXT PRIMARY KEY,
			response_data BLOB,
			not_found INTEGER NOT NULL DEFAULT 0,
			stored_at INTEGER NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}

	return &SQLite{db: db, ttl: ttl, now: time.Now}, nil
}

// Get returns the entry for key if present and within its TTL. Expired rows
// are deleted on read.
func (s *SQLite) Get(ctx context.Context, key string) (Entry, bool) {
	var (
		data     []byte
		notFound int
		storedAt int64
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT response_data, not_found, stored_at FROM api_cache WHERE cache_key = ?`, key)
	if err := row.Scan(&data, &notFound, &storedAt); err != nil {
		return Entry{}, false
	}

	stored := time.Unix(storedAt, 0)
	if s.now().Sub(stored) > s.ttl {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM api_cache WHERE cache_key = ?`, key)
		return Entry{}, false
	}

	return Entry{Data: data, NotFound: notFound != 0, StoredAt: stored}, true
}

// Set stores a response payload under key, replacing any previous entry.
func (s *SQLite) Set(ctx context.Context, key string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO api_cache (cache_key, response_data, not_found, stored_at) VALUES (?, ?, 0, ?)`,
		key, data, s.now().Unix())
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// SetNotFound stores an explicit negative entry under key.
func (s *SQLite) SetNotFound(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO api_cache (cache_key, response_data, not_found, stored_at) VALUES (?, NULL, 1, ?)`,
		key, s.now().Unix())
	if err != nil {
		return fmt.Errorf("writing negative cache entry: %w", err)
	}
	return nil
}

// Invalidate removes the entry for key if present.
func (s *SQLite) Invalidate(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM api_cache WHERE cache_key = ?`, key)
	if err != nil {
		return fmt.Errorf("deleting cache entry: %w", err)
	}
	return nil
}

// Purge deletes all entries older than the TTL and returns the number
// removed.
func (s *SQLite) Purge(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.ttl).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM api_cache WHERE stored_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purging cache: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	if err != nil && !errors.Is(err, sql.ErrConnDone) {
		return err
	}
	return nil
}
