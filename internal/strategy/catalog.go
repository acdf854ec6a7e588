// Package strategy manages the search-strategy catalog: seeding from YAML,
// ranking for discovery runs, and evolving new strategies with a model.
package strategy

import (
	"context"
	"sort"
	"strings"

	"github.com/brandreach/menuscout/internal/config"
	"github.com/brandreach/menuscout/internal/model"
	"github.com/brandreach/menuscout/internal/store"
)

// Catalog selects the strategies a discovery run should execute for a
// source.
type Catalog struct {
	store store.Store
	cfg   config.DiscoveryConfig
}

// NewCatalog creates a catalog over the store.
func NewCatalog(st store.Store, cfg config.DiscoveryConfig) *Catalog {
	return &Catalog{store: st, cfg: cfg}
}

// Select returns up to the configured number of strategies for a source,
// ranked by Rank. Strategies below the success-rate floor are skipped once
// they have enough history to be judged.
func (c *Catalog) Select(ctx context.Context, platform model.Platform, country string) ([]model.Strategy, error) {
	strategies, err := c.store.ListActiveStrategies(ctx, platform, country)
	if err != nil {
		return nil, err
	}

	ranked := Rank(strategies, c.cfg.SuccessRateFloor)
	if len(ranked) > c.cfg.StrategiesPerSource {
		ranked = ranked[:c.cfg.StrategiesPerSource]
	}
	return ranked, nil
}

// Rank orders strategies by success rate descending; ties break by tier,
// lower tier first. Strategies with recorded uses whose success rate sits
// below the floor are dropped; untried strategies always pass, so new
// entries get their chance.
func Rank(strategies []model.Strategy, successFloor float64) []model.Strategy {
	var out []model.Strategy
	for _, s := range strategies {
		if s.TotalUses > 0 && s.SuccessRate < successFloor {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SuccessRate != out[j].SuccessRate {
			return out[i].SuccessRate > out[j].SuccessRate
		}
		return out[i].Tier < out[j].Tier
	})
	return out
}

// Render substitutes template placeholders with run parameters. Templates
// use {product}, {country}, and {city} markers.
func Render(template, product, country, city string) string {
	r := strings.NewReplacer(
		"{product}", product,
		"{country}", country,
		"{city}", city,
	)
	return strings.TrimSpace(r.Replace(template))
}
