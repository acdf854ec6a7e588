package querycache

import (
	"context"
	"sync"
	"time"

	"github.com/brandreach/menuscout/internal/model"
	"github.com/brandreach/menuscout/internal/searchpool"
)

type memoryEntry struct {
	results   []searchpool.Result
	expiresAt time.Time
}

// Memory is an in-process Cache with per-entry TTL.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemory creates an in-memory cache. A non-positive ttl uses DefaultTTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithNow sets the cache clock, for tests.
func (m *Memory) WithNow(now func() time.Time) *Memory {
	m.now = now
	return m
}

// Get returns cached results if present and unexpired.
func (m *Memory) Get(_ context.Context, platform model.Platform, country, query string) ([]searchpool.Result, bool, error) {
	key := Key(platform, country, query)

	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok || m.now().After(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.results, true, nil
}

// Put stores results under the normalized key, replacing any prior entry.
func (m *Memory) Put(_ context.Context, platform model.Platform, country, query string, results []searchpool.Result) error {
	key := Key(platform, country, query)

	m.mu.Lock()
	m.entries[key] = memoryEntry{results: results, expiresAt: m.now().Add(m.ttl)}
	m.mu.Unlock()
	return nil
}
