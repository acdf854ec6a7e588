// Package platform defines the per-delivery-platform capability contract:
// building site-restricted search queries, recognizing venue URLs, and
// parsing search results and venue pages into structured menu data.
package platform

import (
	"fmt"
	"sort"

	"github.com/brandreach/menuscout/internal/model"
	"github.com/brandreach/menuscout/internal/searchpool"
)

// SearchHit is a candidate venue extracted from search results.
type SearchHit struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	VenueID string `json:"venue_id,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// ParseError reports that no parsing strategy matched the content.
// It is non-fatal: the caller logs it and moves on.
type ParseError struct {
	Platform model.Platform
	Stage    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("platform %s: no %s parse strategy matched", e.Platform, e.Stage)
}

// Adapter is the capability contract implemented once per delivery platform.
type Adapter interface {
	// Platform returns the platform this adapter serves.
	Platform() model.Platform

	// Countries lists the ISO country codes the platform operates in.
	Countries() []string

	// SearchDomain returns the platform's country-specific domain.
	SearchDomain(country string) (string, error)

	// BuildSearchURL returns a literal search-engine query string scoped to
	// the platform's domain (a site-restricted search, not a direct request
	// to the platform). City may be empty.
	BuildSearchURL(query, country, city string) (string, error)

	// BuildVenueURL returns the canonical venue URL for the country-specific
	// base domain.
	BuildVenueURL(slug, country string) (string, error)

	// ExtractVenueID parses an id/slug from a venue URL per the platform's
	// known path grammar. ok is false when the URL does not match.
	ExtractVenueID(rawURL string) (id string, ok bool)

	// ResolveCountry derives the canonical country from a venue URL using
	// the platform's fixed domain-pattern table. Pure; never errors. ok is
	// false for unrecognized hosts.
	ResolveCountry(rawURL string) (country string, ok bool)

	// ParseSearchResults extracts deduplicated venue candidates from raw
	// search results. Extraction strategies are tried in a fixed priority
	// order; the first strategy producing a non-empty result wins, and
	// results from different strategies are never merged.
	ParseSearchResults(results []searchpool.Result) []SearchHit

	// ParseVenuePage parses venue metadata and menu items from page content.
	// A layered fallback is used: embedded structured data, then markup
	// pattern matching, then a last-resort scan for lines mentioning the
	// tracked product family. Prices without a currency marker get the
	// country's billing currency from the platform's domain table. Returns
	// a ParseError when nothing matches.
	ParseVenuePage(content, country string) (*model.VenuePage, error)
}

// Registry is a fixed set of adapters keyed by platform.
type Registry struct {
	adapters map[model.Platform]Adapter
}

// NewRegistry creates a registry over the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[model.Platform]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Platform()] = a
	}
	return r
}

// Get returns the adapter for a platform, or nil if unregistered.
func (r *Registry) Get(p model.Platform) Adapter {
	return r.adapters[p]
}

// Platforms lists registered platforms in stable order.
func (r *Registry) Platforms() []model.Platform {
	out := make([]model.Platform, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ResolveCountry tries every registered adapter's domain table against the
// URL. The first match wins; ok is false when no platform recognizes it.
func (r *Registry) ResolveCountry(rawURL string) (model.Platform, string, bool) {
	for _, p := range r.Platforms() {
		if country, ok := r.adapters[p].ResolveCountry(rawURL); ok {
			return p, country, true
		}
	}
	return "", "", false
}

// dedupeHits drops hits whose URL was already seen, preserving order.
func dedupeHits(hits []SearchHit) []SearchHit {
	seen := make(map[string]bool, len(hits))
	out := hits[:0]
	for _, h := range hits {
		if h.URL == "" || seen[h.URL] {
			continue
		}
		seen[h.URL] = true
		out = append(out, h)
	}
	return out
}
