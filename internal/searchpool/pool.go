// Package searchpool rotates search queries across credentialed backends,
// spending daily free quotas before falling back to paid usage.
package searchpool

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/brandreach/menuscout/internal/resilience"
)

// ErrSourceUnavailable is returned when no engine could serve a query within
// the retry ceiling. It is a typed failure, never a panic.
var ErrSourceUnavailable = errors.New("searchpool: source unavailable")

// Result is a provider-neutral search result.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchFunc executes one query against a backend.
type SearchFunc func(ctx context.Context, query string, limit int) ([]Result, error)

// Engine is one credentialed search backend account with a daily free quota.
type Engine struct {
	ID             string
	Provider       string
	DailyFreeQuota int

	search  SearchFunc
	limiter *rate.Limiter

	usedToday int
	resetDay  time.Time // UTC day the counter belongs to
}

// NewEngine creates an engine from a provider name, free quota, and search function.
func NewEngine(id, provider string, dailyFreeQuota int, ratePerSecond float64, search SearchFunc) *Engine {
	if ratePerSecond <= 0 {
		ratePerSecond = 5
	}
	return &Engine{
		ID:             id,
		Provider:       provider,
		DailyFreeQuota: dailyFreeQuota,
		search:         search,
		limiter:        rate.NewLimiter(rate.Limit(ratePerSecond), 1),
	}
}

// EngineStatus is a point-in-time snapshot of one engine's quota usage.
type EngineStatus struct {
	ID             string `json:"id"`
	Provider       string `json:"provider"`
	DailyFreeQuota int    `json:"daily_free_quota"`
	UsedToday      int    `json:"used_today"`
}

// CostReporter receives per-query cost deltas. Implemented by the budget governor.
type CostReporter interface {
	RecordSearch(ctx context.Context, paid bool, costUSD float64) error
}

// PaidGate vetoes entry into paid mode while a spend ceiling is hit. Free
// quota is spent regardless; only the paid fallback consults the gate. The
// budget governor implements it alongside CostReporter.
type PaidGate interface {
	IsThrottled(ctx context.Context) (throttled bool, reason string, err error)
}

// Config tunes pool behavior.
type Config struct {
	// BillingEnabled permits paid queries once all free quotas are spent.
	BillingEnabled bool
	// PaidCostUSD is the per-query cost reported once in paid mode.
	PaidCostUSD float64
	// MaxRetries is the cross-engine attempt ceiling per query.
	MaxRetries int
	// Timeout bounds a single backend call.
	Timeout time.Duration
}

// Pool selects engines by remaining free quota and rotates on failure.
// Quota check-and-increment is a single operation under the pool lock, so
// cumulative free usage can never overshoot an engine's quota.
type Pool struct {
	mu      sync.Mutex
	engines []*Engine

	cfg         Config
	budget      CostReporter
	gate        PaidGate
	paidQueries int // account-wide, independent of free accounting
	now         func() time.Time
}

// New creates a Pool over the given engines. A budget that also implements
// PaidGate gets consulted before any paid query.
func New(cfg Config, budget CostReporter, engines ...*Engine) *Pool {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	p := &Pool{
		engines: engines,
		cfg:     cfg,
		budget:  budget,
		now:     time.Now,
	}
	if gate, ok := budget.(PaidGate); ok {
		p.gate = gate
	}
	return p
}

// WithNow sets the pool clock, for tests.
func (p *Pool) WithNow(now func() time.Time) *Pool {
	p.now = now
	return p
}

// PaidQueries returns the account-wide paid query count.
func (p *Pool) PaidQueries() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paidQueries
}

// Status returns a snapshot of each engine's quota usage.
func (p *Pool) Status() []EngineStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetCountersLocked()

	out := make([]EngineStatus, 0, len(p.engines))
	for _, e := range p.engines {
		out = append(out, EngineStatus{
			ID:             e.ID,
			Provider:       e.Provider,
			DailyFreeQuota: e.DailyFreeQuota,
			UsedToday:      e.usedToday,
		})
	}
	return out
}

// Execute runs one query, rotating across engines with backoff on failure.
// Past the retry ceiling it returns an error wrapping ErrSourceUnavailable.
func (p *Pool) Execute(ctx context.Context, query string, limit int) ([]Result, error) {
	tried := make(map[string]bool, len(p.engines))

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.MaxAttempts = p.cfg.MaxRetries
	retryCfg.ShouldRetry = func(err error) bool {
		// Rotate to another engine on any backend failure; stop only when
		// the pool itself has nothing left to offer.
		return !errors.Is(err, ErrSourceUnavailable)
	}
	retryCfg.OnRetry = resilience.RetryLogger("searchpool", "execute")

	results, err := resilience.Do(ctx, retryCfg, func(ctx context.Context) ([]Result, error) {
		return p.executeOnce(ctx, query, limit, tried)
	})
	if err != nil {
		if errors.Is(err, ErrSourceUnavailable) {
			return nil, err
		}
		return nil, errors.Join(ErrSourceUnavailable, err)
	}
	return results, nil
}

func (p *Pool) executeOnce(ctx context.Context, query string, limit int, tried map[string]bool) ([]Result, error) {
	engine, paid, err := p.acquire(ctx, tried)
	if err != nil {
		return nil, err
	}
	tried[engine.ID] = true

	if err := engine.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "searchpool: rate limit wait")
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	results, err := engine.search(callCtx, query, limit)
	if err != nil {
		if resilience.IsQuota(err) {
			p.markExhausted(engine)
			zap.L().Warn("searchpool: engine quota exhausted upstream",
				zap.String("engine", engine.ID),
				zap.String("provider", engine.Provider),
			)
		}
		return nil, eris.Wrapf(err, "searchpool: engine %s", engine.ID)
	}

	costUSD := 0.0
	if paid {
		costUSD = p.cfg.PaidCostUSD
	}
	if p.budget != nil {
		if berr := p.budget.RecordSearch(ctx, paid, costUSD); berr != nil {
			zap.L().Warn("searchpool: record search cost failed", zap.Error(berr))
		}
	}

	return results, nil
}

// acquire picks the least-used engine with remaining free quota; with free
// quotas exhausted it enters paid mode, which requires billing enabled and a
// budget that is not throttled. Free-quota queries bypass the gate entirely.
func (p *Pool) acquire(ctx context.Context, tried map[string]bool) (*Engine, bool, error) {
	engine, err := p.acquireFree(tried)
	if err != nil {
		return nil, false, err
	}
	if engine != nil {
		return engine, false, nil
	}

	if !p.cfg.BillingEnabled {
		return nil, false, eris.Wrap(ErrSourceUnavailable, "searchpool: free quotas exhausted, billing disabled")
	}
	if p.gate != nil {
		throttled, reason, gerr := p.gate.IsThrottled(ctx)
		if gerr != nil {
			return nil, false, eris.Wrap(gerr, "searchpool: throttle check")
		}
		if throttled {
			return nil, false, eris.Wrapf(ErrSourceUnavailable, "searchpool: paid fallback throttled (%s)", reason)
		}
	}
	return p.acquirePaid(tried)
}

// acquireFree returns the least-used untried engine with remaining free
// quota, or nil when free capacity is spent. Selection and quota increment
// happen under one lock acquisition.
func (p *Pool) acquireFree(tried map[string]bool) (*Engine, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.engines) == 0 {
		return nil, eris.Wrap(ErrSourceUnavailable, "searchpool: no engines configured")
	}

	p.resetCountersLocked()

	var best *Engine
	for _, e := range p.engines {
		if tried[e.ID] || e.usedToday >= e.DailyFreeQuota {
			continue
		}
		if best == nil || e.usedToday < best.usedToday {
			best = e
		}
	}
	if best == nil {
		return nil, nil
	}
	best.usedToday++
	return best, nil
}

func (p *Pool) acquirePaid(tried map[string]bool) (*Engine, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var best *Engine
	for _, e := range p.engines {
		if tried[e.ID] {
			continue
		}
		if best == nil || e.usedToday < best.usedToday {
			best = e
		}
	}
	if best == nil {
		return nil, false, eris.Wrap(ErrSourceUnavailable, "searchpool: all engines tried")
	}
	best.usedToday++
	p.paidQueries++
	return best, true, nil
}

// markExhausted pins an engine's free counter to its quota after the backend
// itself reported quota exhaustion.
func (p *Pool) markExhausted(e *Engine) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e.usedToday < e.DailyFreeQuota {
		e.usedToday = e.DailyFreeQuota
	}
}

// resetCountersLocked zeroes free counters at the UTC day boundary. Paid
// accounting is independent and untouched.
func (p *Pool) resetCountersLocked() {
	today := p.now().UTC().Truncate(24 * time.Hour)
	for _, e := range p.engines {
		if !e.resetDay.Equal(today) {
			e.resetDay = today
			e.usedToday = 0
		}
	}
}
