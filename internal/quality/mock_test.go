package quality

import (
	"context"
	"time"

	"github.com/brandreach/menuscout/internal/model"
	"github.com/brandreach/menuscout/internal/store"
)

// mockStore implements the store methods the quality package touches.
// Unused interface methods panic via the embedded nil Store.
type mockStore struct {
	store.Store

	feedback    []model.FeedbackRecord
	strategies  map[string][]model.Strategy // "platform|country" -> strategies
	tierUpdates map[string]int              // strategy id -> new tier
}

func newMockStore() *mockStore {
	return &mockStore{
		strategies:  make(map[string][]model.Strategy),
		tierUpdates: make(map[string]int),
	}
}

func (m *mockStore) addStrategy(s model.Strategy) {
	key := string(s.Platform) + "|" + s.Country
	m.strategies[key] = append(m.strategies[key], s)
}

func (m *mockStore) ListFeedbackSince(_ context.Context, since time.Time) ([]model.FeedbackRecord, error) {
	var out []model.FeedbackRecord
	for _, r := range m.feedback {
		if !r.ReviewedAt.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockStore) ListActiveStrategies(_ context.Context, platform model.Platform, country string) ([]model.Strategy, error) {
	return m.strategies[string(platform)+"|"+country], nil
}

func (m *mockStore) UpdateStrategyTier(_ context.Context, id string, tier int, _ float64) error {
	m.tierUpdates[id] = tier
	return nil
}

func feedbackBatch(platform model.Platform, country, strategyID string, truePositives, falsePositives, errors int) []model.FeedbackRecord {
	var out []model.FeedbackRecord
	add := func(n int, result model.ResultType) {
		for i := 0; i < n; i++ {
			out = append(out, model.FeedbackRecord{
				SubjectID:  "venue",
				Platform:   platform,
				Country:    country,
				StrategyID: strategyID,
				Result:     result,
				ReviewedAt: time.Now().UTC(),
			})
		}
	}
	add(truePositives, model.ResultTruePositive)
	add(falsePositives, model.ResultFalsePositive)
	add(errors, model.ResultError)
	return out
}
