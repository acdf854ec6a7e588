// Package quality closes the loop between intake review and the discovery
// pipeline: it aggregates feedback into source health, drives strategy tier
// transitions, and validates extracted dishes before they are emitted.
package quality

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/brandreach/menuscout/internal/config"
	"github.com/brandreach/menuscout/internal/model"
	"github.com/brandreach/menuscout/internal/store"
)

// Gate evaluates source health from accumulated feedback.
type Gate struct {
	store store.Store
	cfg   config.QualityConfig
	log   *zap.Logger
}

// NewGate creates a quality gate.
func NewGate(st store.Store, cfg config.QualityConfig) *Gate {
	return &Gate{
		store: st,
		cfg:   cfg,
		log:   zap.L().With(zap.String("service", "quality")),
	}
}

// SourceHealth aggregates the feedback window into per-source health records,
// sorted by platform then country for stable output.
func (g *Gate) SourceHealth(ctx context.Context, since time.Time) ([]model.SourceHealth, error) {
	records, err := g.store.ListFeedbackSince(ctx, since)
	if err != nil {
		return nil, err
	}
	return aggregateHealth(records), nil
}

// HealthySources filters sources to those discovery should query. Sources
// with fewer samples than the minimum are always included: a new source must
// earn its exclusion. Established sources are excluded when their success
// rate falls below the floor or their error rate exceeds the ceiling.
func (g *Gate) HealthySources(ctx context.Context, since time.Time) ([]model.SourceHealth, error) {
	all, err := g.SourceHealth(ctx, since)
	if err != nil {
		return nil, err
	}

	var healthy []model.SourceHealth
	for _, s := range all {
		if s.Samples < g.cfg.MinSourceSamples {
			healthy = append(healthy, s)
			continue
		}
		if s.SuccessRate < g.cfg.SourceSuccessFloor {
			g.log.Info("excluding source: success rate below floor",
				zap.String("platform", string(s.Platform)),
				zap.String("country", s.Country),
				zap.Float64("success_rate", s.SuccessRate),
			)
			continue
		}
		if s.ErrorRate > g.cfg.SourceErrorCeiling {
			g.log.Info("excluding source: error rate above ceiling",
				zap.String("platform", string(s.Platform)),
				zap.String("country", s.Country),
				zap.Float64("error_rate", s.ErrorRate),
			)
			continue
		}
		healthy = append(healthy, s)
	}
	// Best-performing sources schedule first.
	sort.SliceStable(healthy, func(i, j int) bool {
		return healthy[i].SuccessRate > healthy[j].SuccessRate
	})
	return healthy, nil
}

func aggregateHealth(records []model.FeedbackRecord) []model.SourceHealth {
	type key struct {
		platform model.Platform
		country  string
	}
	buckets := make(map[key]*model.SourceHealth)
	for _, r := range records {
		k := key{platform: r.Platform, country: r.Country}
		h, ok := buckets[k]
		if !ok {
			h = &model.SourceHealth{Platform: r.Platform, Country: r.Country}
			buckets[k] = h
		}
		h.Samples++
		switch r.Result {
		case model.ResultTruePositive:
			h.Successes++
		case model.ResultError:
			h.Errors++
		}
	}

	out := make([]model.SourceHealth, 0, len(buckets))
	for _, h := range buckets {
		if h.Samples > 0 {
			h.SuccessRate = float64(h.Successes) / float64(h.Samples)
			h.ErrorRate = float64(h.Errors) / float64(h.Samples)
		}
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Platform != out[j].Platform {
			return out[i].Platform < out[j].Platform
		}
		return out[i].Country < out[j].Country
	})
	return out
}
