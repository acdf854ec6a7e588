package discovery

import (
	"context"
	"time"

	"github.com/brandreach/menuscout/internal/model"
	"github.com/brandreach/menuscout/internal/store"
)

// mockStore implements the store surface a discovery run touches. Unused
// Store methods panic via the embedded nil interface.
type mockStore struct {
	store.Store

	strategies map[string][]model.Strategy
	feedback   []model.FeedbackRecord
	chains     map[string]*model.Chain
	known      map[string]bool
	inserted   []model.VenueCandidate
	completed  *model.RunCounters
	failedWith string
	budgetDay  model.BudgetDay
}

func newMockStore() *mockStore {
	return &mockStore{
		strategies: make(map[string][]model.Strategy),
		chains:     make(map[string]*model.Chain),
		known:      make(map[string]bool),
	}
}

func (m *mockStore) addStrategy(s model.Strategy) {
	key := string(s.Platform) + "|" + s.Country
	m.strategies[key] = append(m.strategies[key], s)
}

func (m *mockStore) ListActiveStrategies(_ context.Context, platform model.Platform, country string) ([]model.Strategy, error) {
	return m.strategies[string(platform)+"|"+country], nil
}

func (m *mockStore) TouchStrategy(context.Context, string, time.Time) error { return nil }

func (m *mockStore) ListFeedbackSince(context.Context, time.Time) ([]model.FeedbackRecord, error) {
	return m.feedback, nil
}

func (m *mockStore) VenueURLKnown(_ context.Context, normalizedURL string) (bool, error) {
	return m.known[normalizedURL], nil
}

func (m *mockStore) InsertCandidates(_ context.Context, candidates []model.VenueCandidate) (int64, error) {
	var n int64
	for _, c := range candidates {
		if m.known[c.NormalizedURL] {
			continue
		}
		m.known[c.NormalizedURL] = true
		m.inserted = append(m.inserted, c)
		n++
	}
	return n, nil
}

func (m *mockStore) FindChainByName(_ context.Context, name string) (*model.Chain, error) {
	return m.chains[name], nil
}

func (m *mockStore) CreateRun(_ context.Context, kind model.RunKind) (*model.Run, error) {
	return &model.Run{ID: "run-1", Kind: kind, Status: model.RunStatusRunning}, nil
}

func (m *mockStore) CompleteRun(_ context.Context, _ string, counters model.RunCounters) error {
	m.completed = &counters
	return nil
}

func (m *mockStore) FailRun(_ context.Context, _ string, errMsg string) error {
	m.failedWith = errMsg
	return nil
}

func (m *mockStore) GetBudgetDay(_ context.Context, date time.Time) (*model.BudgetDay, error) {
	out := m.budgetDay
	out.Date = store.DayKey(date)
	return &out, nil
}

func (m *mockStore) AddBudgetDelta(_ context.Context, date time.Time, delta store.BudgetDelta) (*model.BudgetDay, error) {
	m.budgetDay.FreeSearches += delta.FreeSearches
	m.budgetDay.PaidSearches += delta.PaidSearches
	m.budgetDay.SearchCostUSD += delta.SearchCostUSD
	return m.GetBudgetDay(context.Background(), date)
}

func (m *mockStore) SumCostBetween(context.Context, time.Time, time.Time) (float64, error) {
	return m.budgetDay.TotalCostUSD(), nil
}

func (m *mockStore) AppendThrottleEvent(_ context.Context, _ time.Time, ev model.ThrottleEvent) error {
	m.budgetDay.ThrottleEvents = append(m.budgetDay.ThrottleEvents, ev)
	return nil
}
