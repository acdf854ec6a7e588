package quality

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/brandreach/menuscout/internal/config"
	"github.com/brandreach/menuscout/internal/model"
	"github.com/brandreach/menuscout/internal/store"
)

// TierThresholds parametrizes the tier transition rule.
type TierThresholds struct {
	MinSamples  int
	PromoteRate float64
	DemoteRate  float64
}

// NextTier computes a strategy's new tier from its windowed performance.
// Pure. Below the sample minimum the tier is unchanged; at or above the
// promote rate the strategy moves to tier 1; below the demote rate it moves
// to tier 3. The band in between leaves the tier where it is.
func NextTier(current int, samples int, successRate float64, t TierThresholds) int {
	if samples < t.MinSamples {
		return current
	}
	switch {
	case successRate >= t.PromoteRate:
		return 1
	case successRate < t.DemoteRate:
		return 3
	default:
		return current
	}
}

// strategyWindow is one strategy's feedback totals over the learning window.
type strategyWindow struct {
	samples   int
	successes int
}

// LearningLoop turns windowed feedback into strategy tier transitions.
type LearningLoop struct {
	store store.Store
	cfg   config.QualityConfig
	log   *zap.Logger
	now   func() time.Time
}

// NewLearningLoop creates a learning loop.
func NewLearningLoop(st store.Store, cfg config.QualityConfig) *LearningLoop {
	return &LearningLoop{
		store: st,
		cfg:   cfg,
		log:   zap.L().With(zap.String("service", "learning")),
		now:   time.Now,
	}
}

// WithNow overrides the clock for tests.
func (l *LearningLoop) WithNow(now func() time.Time) *LearningLoop {
	l.now = now
	return l
}

// CycleResult summarizes one learning cycle.
type CycleResult struct {
	Records     int
	Evaluated   int
	Promoted    int
	Demoted     int
	Skipped     int
	WindowStart time.Time
}

// RunCycle evaluates the feedback window and applies tier transitions. A
// window with fewer records than the configured minimum is a no-op, so one
// noisy afternoon cannot reshuffle the catalog. Tier changes are the only
// strategy mutation this loop performs.
func (l *LearningLoop) RunCycle(ctx context.Context) (*CycleResult, error) {
	windowStart := l.now().AddDate(0, 0, -l.cfg.WindowDays)
	records, err := l.store.ListFeedbackSince(ctx, windowStart)
	if err != nil {
		return nil, err
	}

	res := &CycleResult{Records: len(records), WindowStart: windowStart}
	if len(records) < l.cfg.MinCycleRecords {
		l.log.Info("skipping learning cycle: window too small",
			zap.Int("records", len(records)),
			zap.Int("required", l.cfg.MinCycleRecords),
		)
		return res, nil
	}

	windows := make(map[string]*strategyWindow)
	pairs := make(map[string]struct {
		platform model.Platform
		country  string
	})
	for _, r := range records {
		if r.StrategyID == "" {
			continue
		}
		w, ok := windows[r.StrategyID]
		if !ok {
			w = &strategyWindow{}
			windows[r.StrategyID] = w
			pairs[r.StrategyID] = struct {
				platform model.Platform
				country  string
			}{r.Platform, r.Country}
		}
		w.samples++
		if r.Result == model.ResultTruePositive {
			w.successes++
		}
	}

	thresholds := TierThresholds{
		MinSamples:  l.cfg.MinTierSamples,
		PromoteRate: l.cfg.PromoteRate,
		DemoteRate:  l.cfg.DemoteRate,
	}

	// One strategy list per (platform, country) pair seen in the window.
	seen := make(map[string][]model.Strategy)
	for id, w := range windows {
		pair := pairs[id]
		pairKey := string(pair.platform) + "|" + pair.country
		strategies, ok := seen[pairKey]
		if !ok {
			strategies, err = l.store.ListActiveStrategies(ctx, pair.platform, pair.country)
			if err != nil {
				return nil, err
			}
			seen[pairKey] = strategies
		}

		var strategy *model.Strategy
		for i := range strategies {
			if strategies[i].ID == id {
				strategy = &strategies[i]
				break
			}
		}
		if strategy == nil {
			res.Skipped++
			continue
		}
		if !strategy.Origin.AutoTierable() {
			res.Skipped++
			continue
		}

		res.Evaluated++
		rate := float64(w.successes) / float64(w.samples)
		next := NextTier(strategy.Tier, w.samples, rate, thresholds)
		if next == strategy.Tier {
			continue
		}

		if err := l.store.UpdateStrategyTier(ctx, id, next, rate); err != nil {
			return nil, err
		}
		if next < strategy.Tier {
			res.Promoted++
		} else {
			res.Demoted++
		}
		l.log.Info("strategy tier changed",
			zap.String("strategy_id", id),
			zap.Int("from", strategy.Tier),
			zap.Int("to", next),
			zap.Float64("success_rate", rate),
			zap.Int("samples", w.samples),
		)
	}
	return res, nil
}
