// Package querycache deduplicates (platform, country, query) executions
// within a TTL window so repeated queries never re-spend quota or budget.
// Cached data is advisory: puts are idempotent and last-write-wins.
package querycache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/brandreach/menuscout/internal/model"
	"github.com/brandreach/menuscout/internal/searchpool"
)

// DefaultTTL is the cache window applied when none is configured.
const DefaultTTL = 24 * time.Hour

// Cache stores raw search results keyed by normalized query identity.
type Cache interface {
	// Get returns the cached results and true on a hit within TTL.
	Get(ctx context.Context, platform model.Platform, country, query string) ([]searchpool.Result, bool, error)
	// Put stores results for the key. Safe under concurrent writers.
	Put(ctx context.Context, platform model.Platform, country, query string, results []searchpool.Result) error
}

// Key returns SHA-256 hex of the normalized (platform, country, query) triple.
func Key(platform model.Platform, country, query string) string {
	normalized := fmt.Sprintf("%s|%s|%s",
		strings.ToLower(strings.TrimSpace(string(platform))),
		strings.ToLower(strings.TrimSpace(country)),
		strings.ToLower(strings.TrimSpace(query)),
	)
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}
