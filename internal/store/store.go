// Package store is the persistence collaborator for the pipeline:
// strategies, feedback, budget counters, venue candidates, and the dish
// intake queue, behind one interface with Postgres and SQLite drivers.
package store

import (
	"context"
	"time"

	"github.com/brandreach/menuscout/internal/model"
)

// BudgetDelta is one atomic increment against a day's counters.
type BudgetDelta struct {
	FreeSearches  int
	PaidSearches  int
	AICalls       int
	SearchCostUSD float64
	AICostUSD     float64
}

// Store defines the persistence interface for the discovery and extraction
// pipeline. Implementations must make budget increments atomic under
// concurrent callers.
type Store interface {
	// Strategies. Strategies are never deleted; deactivation and tier
	// changes are the only forms of deprecation.
	UpsertStrategy(ctx context.Context, s model.Strategy) error
	ListActiveStrategies(ctx context.Context, platform model.Platform, country string) ([]model.Strategy, error)
	UpdateStrategyTier(ctx context.Context, id string, tier int, successRate float64) error
	TouchStrategy(ctx context.Context, id string, usedAt time.Time) error

	// Feedback (append-only).
	AppendFeedback(ctx context.Context, rec model.FeedbackRecord) error
	ListFeedbackSince(ctx context.Context, since time.Time) ([]model.FeedbackRecord, error)

	// Budget days. AddBudgetDelta lazily creates the day's record and
	// returns the post-increment state.
	AddBudgetDelta(ctx context.Context, date time.Time, delta BudgetDelta) (*model.BudgetDay, error)
	GetBudgetDay(ctx context.Context, date time.Time) (*model.BudgetDay, error)
	AppendThrottleEvent(ctx context.Context, date time.Time, ev model.ThrottleEvent) error
	SumCostBetween(ctx context.Context, from, to time.Time) (float64, error)
	PurgeBudgetDays(ctx context.Context, before time.Time) (int, error)

	// Venue candidates and dish intake.
	VenueURLKnown(ctx context.Context, normalizedURL string) (bool, error)
	InsertCandidates(ctx context.Context, candidates []model.VenueCandidate) (int64, error)
	ListCandidates(ctx context.Context, runID string, limit int) ([]model.VenueCandidate, error)
	EmitDishes(ctx context.Context, venueURL string, platform model.Platform, country string, items []model.MenuItem) error

	// Chain registry.
	UpsertChain(ctx context.Context, c model.Chain) error
	FindChainByName(ctx context.Context, name string) (*model.Chain, error)

	// Runs.
	CreateRun(ctx context.Context, kind model.RunKind) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, counters model.RunCounters) error
	FailRun(ctx context.Context, runID string, errMsg string) error

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}

// DayKey truncates a time to its UTC calendar day.
func DayKey(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
