package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process TTL cache. Expired entries are dropped lazily on
// read and swept periodically. Safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
	ttl     time.Duration

	stop     chan struct{}
	stopOnce sync.Once

	// now is swapped out by tests to control expiry.
	now func() time.Time
}

// NewMemory creates an in-memory cache with the given TTL. A non-positive
// ttl falls back to DefaultTTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Memory{
		entries: make(map[string]Entry),
		ttl:     ttl,
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	go m.sweep()
	return m
}

// Get returns the entry for key if present and within its TTL.
func (m *Memory) Get(_ context.Context, key string) (Entry, bool) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}

	if m.now().Sub(entry.StoredAt) > m.ttl {
		m.mu.Lock()
		// Re-check under the write lock; another goroutine may have
		// refreshed the entry in the meantime.
		if current, ok := m.entries[key]; ok && m.now().Sub(current.StoredAt) > m.ttl {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return Entry{}, false
	}

	return entry, true
}

// Set stores a response payload under key.
func (m *Memory) Set(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	m.entries[key] = Entry{Data: data, StoredAt: m.now()}
	m.mu.Unlock()
	return nil
}

// SetNotFound stores an explicit negative entry under key.
func (m *Memory) SetNotFound(_ context.Context, key string) error {
	m.mu.Lock()
	m.entries[key] = Entry{NotFound: true, StoredAt: m.now()}
	m.mu.Unlock()
	return nil
}

// Invalidate removes the entry for key if present.
func (m *Memory) Invalidate(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Close stops the background sweeper.
func (m *Memory) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	return nil
}

// Len returns the number of entries currently stored, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) sweep() {
	ticker := time.NewTicker(m.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			cutoff := m.now().Add(-m.ttl)
			m.mu.Lock()
			for key, entry := range m.entries {
				if entry.StoredAt.Before(cutoff) {
					delete(m.entries, key)
				}
			}
			m.mu.Unlock()
		}
	}
}
