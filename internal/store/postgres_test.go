package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandreach/menuscout/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetBudgetDay_MissingDayIsZero(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT free_searches, paid_searches, ai_calls, search_cost_usd, ai_cost_usd, throttle_events`).
		WithArgs("2025-06-01").
		WillReturnError(pgx.ErrNoRows)

	day, err := s.GetBudgetDay(context.Background(), time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01", day.Date)
	assert.Zero(t, day.TotalCostUSD())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AddBudgetDelta_ReturnsPostIncrementState(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"free_searches", "paid_searches", "ai_calls", "search_cost_usd", "ai_cost_usd", "throttle_events"}).
		AddRow(3, 1, 0, 0.005, 0.0, []byte(`[]`))
	mock.ExpectQuery(`(?s)INSERT INTO budget_days.*ON CONFLICT \(date\) DO UPDATE SET.*RETURNING`).
		WithArgs("2025-06-01", 1, 1, 0, 0.005, 0.0).
		WillReturnRows(rows)

	day, err := s.AddBudgetDelta(context.Background(),
		time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		BudgetDelta{FreeSearches: 1, PaidSearches: 1, SearchCostUSD: 0.005},
	)
	require.NoError(t, err)
	assert.Equal(t, 3, day.FreeSearches)
	assert.Equal(t, 1, day.PaidSearches)
	assert.InDelta(t, 0.005, day.SearchCostUSD, 1e-9)
	assert.Empty(t, day.ThrottleEvents)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendThrottleEvent_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`(?s)INSERT INTO budget_days.*ON CONFLICT \(date\) DO UPDATE SET`).
		WithArgs("2025-06-01", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.AppendThrottleEvent(context.Background(),
		time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		model.ThrottleEvent{Timestamp: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), Reason: "daily_ceiling"},
	)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertCandidates_CountsOnlyNewRows(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`(?s)INSERT INTO venue_candidates.*ON CONFLICT \(normalized_url\) DO NOTHING`).
		WithArgs("run-1", "Pizzeria Roma", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			"takeaway", "DE", pgxmock.AnyArg(), pgxmock.AnyArg(), false, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`(?s)INSERT INTO venue_candidates.*ON CONFLICT \(normalized_url\) DO NOTHING`).
		WithArgs("run-1", "Kebap Haus", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			"takeaway", "DE", pgxmock.AnyArg(), pgxmock.AnyArg(), false, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	n, err := s.InsertCandidates(context.Background(), []model.VenueCandidate{
		{RunID: "run-1", Name: "Pizzeria Roma", URL: "https://www.lieferando.de/speisekarte/roma", NormalizedURL: "https://www.lieferando.de/speisekarte/roma", Platform: model.PlatformTakeaway, Country: "DE"},
		{RunID: "run-1", Name: "Kebap Haus", URL: "https://www.lieferando.de/speisekarte/kebap", NormalizedURL: "https://www.lieferando.de/speisekarte/kebap", Platform: model.PlatformTakeaway, Country: "DE"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_VenueURLKnown(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("https://www.lieferando.de/speisekarte/roma").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	known, err := s.VenueURLKnown(context.Background(), "https://www.lieferando.de/speisekarte/roma")
	require.NoError(t, err)
	assert.True(t, known)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindChainByName_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, name, products FROM chains WHERE norm = \$1`).
		WithArgs("unknown haus").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.FindChainByName(context.Background(), "  Unknown   HAUS ")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateStrategyTier(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE strategies SET tier = \$1, success_rate = \$2 WHERE id = \$3`).
		WithArgs(1, 0.85, "s1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.UpdateStrategyTier(context.Background(), "s1", 1, 0.85))
	assert.NoError(t, mock.ExpectationsWereMet())
}
