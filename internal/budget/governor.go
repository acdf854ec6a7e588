// Package budget enforces daily and monthly spend ceilings over the
// pipeline's paid operations. Counters live in the store, keyed by UTC
// calendar day and created lazily on first spend.
package budget

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/brandreach/menuscout/internal/config"
	"github.com/brandreach/menuscout/internal/model"
	"github.com/brandreach/menuscout/internal/store"
)

// Throttle reasons recorded on ceiling transitions.
const (
	ReasonDailyCeiling   = "daily_ceiling"
	ReasonMonthlyCeiling = "monthly_ceiling"
)

// ErrThrottled is returned when a spend would exceed a configured ceiling.
var ErrThrottled = eris.New("budget: spend ceiling reached")

// Governor meters spend against the configured ceilings. It satisfies
// searchpool.CostReporter so the pool reports every executed search here.
type Governor struct {
	store store.Store
	cfg   config.BudgetConfig
	log   *zap.Logger
	now   func() time.Time

	mu        sync.Mutex
	throttled map[string]bool // reason -> event already recorded today
	day       time.Time
}

// NewGovernor creates a governor backed by the given store.
func NewGovernor(st store.Store, cfg config.BudgetConfig) *Governor {
	return &Governor{
		store:     st,
		cfg:       cfg,
		log:       zap.L().With(zap.String("service", "budget")),
		now:       time.Now,
		throttled: make(map[string]bool),
	}
}

// WithNow overrides the clock for tests.
func (g *Governor) WithNow(now func() time.Time) *Governor {
	g.now = now
	return g
}

// IsThrottled reports whether further paid spend is currently blocked, and
// why. Free-quota searches are never throttled.
func (g *Governor) IsThrottled(ctx context.Context) (bool, string, error) {
	now := g.now()

	day, err := g.store.GetBudgetDay(ctx, now)
	if err != nil {
		return false, "", err
	}
	if g.cfg.DailyCeilingUSD > 0 && day.TotalCostUSD() >= g.cfg.DailyCeilingUSD {
		return true, ReasonDailyCeiling, nil
	}

	if g.cfg.MonthlyCeilingUSD > 0 {
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		total, err := g.store.SumCostBetween(ctx, monthStart, now)
		if err != nil {
			return false, "", err
		}
		if total >= g.cfg.MonthlyCeilingUSD {
			return true, ReasonMonthlyCeiling, nil
		}
	}
	return false, "", nil
}

// RecordSearch books one executed search. Paid searches carry their cost;
// free-quota searches only bump the counter. Implements the pool's
// CostReporter contract.
func (g *Governor) RecordSearch(ctx context.Context, paid bool, costUSD float64) error {
	delta := store.BudgetDelta{}
	if paid {
		delta.PaidSearches = 1
		delta.SearchCostUSD = costUSD
	} else {
		delta.FreeSearches = 1
	}
	return g.record(ctx, delta)
}

// RecordAICall books one metered model invocation.
func (g *Governor) RecordAICall(ctx context.Context, costUSD float64) error {
	return g.record(ctx, store.BudgetDelta{AICalls: 1, AICostUSD: costUSD})
}

func (g *Governor) record(ctx context.Context, delta store.BudgetDelta) error {
	now := g.now()
	day, err := g.store.AddBudgetDelta(ctx, now, delta)
	if err != nil {
		return eris.Wrap(err, "budget: record spend")
	}

	if g.cfg.DailyCeilingUSD > 0 && day.TotalCostUSD() >= g.cfg.DailyCeilingUSD {
		g.markThrottled(ctx, now, ReasonDailyCeiling, day.TotalCostUSD())
	}
	if g.cfg.MonthlyCeilingUSD > 0 {
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		total, err := g.store.SumCostBetween(ctx, monthStart, now)
		if err != nil {
			return eris.Wrap(err, "budget: month total")
		}
		if total >= g.cfg.MonthlyCeilingUSD {
			g.markThrottled(ctx, now, ReasonMonthlyCeiling, total)
		}
	}
	return nil
}

// markThrottled appends a throttle event exactly once per day per reason.
func (g *Governor) markThrottled(ctx context.Context, now time.Time, reason string, spentUSD float64) {
	g.mu.Lock()
	dayKey := store.DayKey(now)
	if !dayKey.Equal(g.day) {
		g.day = dayKey
		g.throttled = make(map[string]bool)
	}
	already := g.throttled[reason]
	g.throttled[reason] = true
	g.mu.Unlock()

	if already {
		return
	}

	ev := model.ThrottleEvent{Timestamp: now.UTC(), Reason: reason}
	if err := g.store.AppendThrottleEvent(ctx, now, ev); err != nil {
		g.log.Warn("failed to record throttle event", zap.String("reason", reason), zap.Error(err))
		return
	}
	g.log.Warn("spend ceiling reached",
		zap.String("reason", reason),
		zap.Float64("spent_usd", spentUSD),
	)
}

// Status returns the current day's counters plus the month-to-date total.
func (g *Governor) Status(ctx context.Context) (*model.BudgetDay, float64, error) {
	now := g.now()
	day, err := g.store.GetBudgetDay(ctx, now)
	if err != nil {
		return nil, 0, err
	}
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthTotal, err := g.store.SumCostBetween(ctx, monthStart, now)
	if err != nil {
		return nil, 0, err
	}
	return day, monthTotal, nil
}

// Purge deletes day records older than the retention window.
func (g *Governor) Purge(ctx context.Context) (int, error) {
	if g.cfg.RetentionDays <= 0 {
		return 0, nil
	}
	boundary := g.now().AddDate(0, 0, -g.cfg.RetentionDays)
	n, err := g.store.PurgeBudgetDays(ctx, boundary)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		g.log.Info("purged budget history", zap.Int("days", n))
	}
	return n, nil
}
