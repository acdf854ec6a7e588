package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/brandreach/menuscout/internal/db"
	"github.com/brandreach/menuscout/internal/model"
)

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres wraps an existing pgx pool.
func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS strategies (
	id                     TEXT PRIMARY KEY,
	query_template         TEXT NOT NULL,
	platform               TEXT NOT NULL,
	country                TEXT NOT NULL,
	tier                   INTEGER NOT NULL DEFAULT 2,
	origin                 TEXT NOT NULL,
	active                 BOOLEAN NOT NULL DEFAULT TRUE,
	success_rate           DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_uses             INTEGER NOT NULL DEFAULT 0,
	successful_discoveries INTEGER NOT NULL DEFAULT 0,
	false_positives        INTEGER NOT NULL DEFAULT 0,
	last_used_at           TIMESTAMPTZ,
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS feedback (
	id          BIGSERIAL PRIMARY KEY,
	subject_id  TEXT NOT NULL,
	platform    TEXT NOT NULL,
	country     TEXT NOT NULL,
	strategy_id TEXT,
	result      TEXT NOT NULL,
	reviewed_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS budget_days (
	date            DATE PRIMARY KEY,
	free_searches   INTEGER NOT NULL DEFAULT 0,
	paid_searches   INTEGER NOT NULL DEFAULT 0,
	ai_calls        INTEGER NOT NULL DEFAULT 0,
	search_cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	ai_cost_usd     DOUBLE PRECISION NOT NULL DEFAULT 0,
	throttle_events JSONB NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS venue_candidates (
	id             BIGSERIAL PRIMARY KEY,
	run_id         TEXT NOT NULL,
	name           TEXT NOT NULL,
	url            TEXT NOT NULL,
	normalized_url TEXT NOT NULL UNIQUE,
	venue_slug     TEXT,
	platform       TEXT NOT NULL,
	country        TEXT NOT NULL,
	strategy_id    TEXT,
	chain_id       TEXT,
	brand_misuse   BOOLEAN NOT NULL DEFAULT FALSE,
	raw_snippet    TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS dishes (
	id          BIGSERIAL PRIMARY KEY,
	venue_url   TEXT NOT NULL,
	platform    TEXT NOT NULL,
	country     TEXT NOT NULL,
	name        TEXT NOT NULL,
	description TEXT,
	amount      DOUBLE PRECISION NOT NULL,
	currency    TEXT NOT NULL,
	category    TEXT,
	product_tag TEXT,
	confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chains (
	id       TEXT PRIMARY KEY,
	name     TEXT NOT NULL,
	norm     TEXT NOT NULL UNIQUE,
	products JSONB NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	counters     JSONB,
	error        TEXT,
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_strategies_pair ON strategies(platform, country);
CREATE INDEX IF NOT EXISTS idx_feedback_reviewed ON feedback(reviewed_at);
CREATE INDEX IF NOT EXISTS idx_candidates_run ON venue_candidates(run_id);
CREATE INDEX IF NOT EXISTS idx_dishes_venue ON dishes(venue_url);
`

// Migrate creates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// UpsertStrategy inserts or updates a strategy by id.
func (s *PostgresStore) UpsertStrategy(ctx context.Context, st model.Strategy) error {
	if st.ID == "" {
		st.ID = uuid.New().String()
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO strategies (id, query_template, platform, country, tier, origin, active,
			success_rate, total_uses, successful_discoveries, false_positives, last_used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			query_template = EXCLUDED.query_template,
			tier = EXCLUDED.tier,
			active = EXCLUDED.active,
			success_rate = EXCLUDED.success_rate`,
		st.ID, st.QueryTemplate, string(st.Platform), st.Country, st.Tier, string(st.Origin),
		st.Active, st.SuccessRate, st.TotalUses, st.SuccessfulDiscoveries,
		st.FalsePositives, st.LastUsedAt, st.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert strategy %s", st.ID)
}

// ListActiveStrategies returns active strategies for a (platform, country) pair.
func (s *PostgresStore) ListActiveStrategies(ctx context.Context, platform model.Platform, country string) ([]model.Strategy, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+strategyColumns+` FROM strategies
		WHERE active AND platform = $1 AND country = $2
		ORDER BY success_rate DESC, tier ASC`,
		string(platform), country,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list strategies")
	}
	defer rows.Close()

	var out []model.Strategy
	for rows.Next() {
		var st model.Strategy
		var platformStr, originStr string
		var lastUsed *time.Time
		if err := rows.Scan(&st.ID, &st.QueryTemplate, &platformStr, &st.Country, &st.Tier,
			&originStr, &st.Active, &st.SuccessRate, &st.TotalUses, &st.SuccessfulDiscoveries,
			&st.FalsePositives, &lastUsed, &st.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan strategy")
		}
		st.Platform = model.Platform(platformStr)
		st.Origin = model.Origin(originStr)
		st.LastUsedAt = lastUsed
		out = append(out, st)
	}
	return out, rows.Err()
}

// UpdateStrategyTier persists a tier transition computed by the learning loop.
func (s *PostgresStore) UpdateStrategyTier(ctx context.Context, id string, tier int, successRate float64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE strategies SET tier = $1, success_rate = $2 WHERE id = $3`,
		tier, successRate, id,
	)
	return eris.Wrapf(err, "postgres: update strategy tier %s", id)
}

// TouchStrategy records a use of the strategy.
func (s *PostgresStore) TouchStrategy(ctx context.Context, id string, usedAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE strategies SET total_uses = total_uses + 1, last_used_at = $1 WHERE id = $2`,
		usedAt.UTC(), id,
	)
	return eris.Wrapf(err, "postgres: touch strategy %s", id)
}

// AppendFeedback appends a review outcome.
func (s *PostgresStore) AppendFeedback(ctx context.Context, rec model.FeedbackRecord) error {
	if rec.ReviewedAt.IsZero() {
		rec.ReviewedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO feedback (subject_id, platform, country, strategy_id, result, reviewed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.SubjectID, string(rec.Platform), rec.Country, rec.StrategyID, string(rec.Result), rec.ReviewedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: append feedback")
}

// ListFeedbackSince returns feedback reviewed at or after the given time.
func (s *PostgresStore) ListFeedbackSince(ctx context.Context, since time.Time) ([]model.FeedbackRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, subject_id, platform, country, COALESCE(strategy_id, ''), result, reviewed_at
		FROM feedback WHERE reviewed_at >= $1 ORDER BY reviewed_at`,
		since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list feedback")
	}
	defer rows.Close()

	var records []model.FeedbackRecord
	for rows.Next() {
		var r model.FeedbackRecord
		var platform, result string
		if err := rows.Scan(&r.ID, &r.SubjectID, &platform, &r.Country, &r.StrategyID, &result, &r.ReviewedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan feedback")
		}
		r.Platform = model.Platform(platform)
		r.Result = model.ResultType(result)
		records = append(records, r)
	}
	return records, rows.Err()
}

// AddBudgetDelta applies the increment atomically and returns the
// post-increment state in one round trip.
func (s *PostgresStore) AddBudgetDelta(ctx context.Context, date time.Time, delta BudgetDelta) (*model.BudgetDay, error) {
	day := DayKey(date)

	var d model.BudgetDay
	var events []byte
	err := s.pool.QueryRow(ctx, `
		INSERT INTO budget_days (date, free_searches, paid_searches, ai_calls, search_cost_usd, ai_cost_usd)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (date) DO UPDATE SET
			free_searches = budget_days.free_searches + EXCLUDED.free_searches,
			paid_searches = budget_days.paid_searches + EXCLUDED.paid_searches,
			ai_calls = budget_days.ai_calls + EXCLUDED.ai_calls,
			search_cost_usd = budget_days.search_cost_usd + EXCLUDED.search_cost_usd,
			ai_cost_usd = budget_days.ai_cost_usd + EXCLUDED.ai_cost_usd
		RETURNING free_searches, paid_searches, ai_calls, search_cost_usd, ai_cost_usd, throttle_events`,
		day, delta.FreeSearches, delta.PaidSearches, delta.AICalls, delta.SearchCostUSD, delta.AICostUSD,
	).Scan(&d.FreeSearches, &d.PaidSearches, &d.AICalls, &d.SearchCostUSD, &d.AICostUSD, &events)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: add budget delta")
	}
	d.Date = day
	if err := json.Unmarshal(events, &d.ThrottleEvents); err != nil {
		return nil, eris.Wrap(err, "postgres: decode throttle events")
	}
	return &d, nil
}

// GetBudgetDay returns the day's counters, or a zero record if absent.
func (s *PostgresStore) GetBudgetDay(ctx context.Context, date time.Time) (*model.BudgetDay, error) {
	day := DayKey(date)

	var d model.BudgetDay
	var events []byte
	err := s.pool.QueryRow(ctx,
		`SELECT free_searches, paid_searches, ai_calls, search_cost_usd, ai_cost_usd, throttle_events
		FROM budget_days WHERE date = $1`, day,
	).Scan(&d.FreeSearches, &d.PaidSearches, &d.AICalls, &d.SearchCostUSD, &d.AICostUSD, &events)
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return &model.BudgetDay{Date: day}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get budget day")
	}
	d.Date = day
	if err := json.Unmarshal(events, &d.ThrottleEvents); err != nil {
		return nil, eris.Wrap(err, "postgres: decode throttle events")
	}
	return &d, nil
}

// AppendThrottleEvent appends one event to the day's throttle log.
func (s *PostgresStore) AppendThrottleEvent(ctx context.Context, date time.Time, ev model.ThrottleEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "postgres: encode throttle event")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO budget_days (date, throttle_events) VALUES ($1, jsonb_build_array($2::jsonb))
		ON CONFLICT (date) DO UPDATE SET
			throttle_events = budget_days.throttle_events || $2::jsonb`,
		DayKey(date), string(raw),
	)
	return eris.Wrap(err, "postgres: append throttle event")
}

// SumCostBetween totals accumulated cost over [from, to] day keys inclusive.
func (s *PostgresStore) SumCostBetween(ctx context.Context, from, to time.Time) (float64, error) {
	var total float64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(search_cost_usd + ai_cost_usd), 0) FROM budget_days WHERE date >= $1 AND date <= $2`,
		DayKey(from), DayKey(to),
	).Scan(&total)
	return total, eris.Wrap(err, "postgres: sum cost")
}

// PurgeBudgetDays deletes day records older than the retention boundary.
func (s *PostgresStore) PurgeBudgetDays(ctx context.Context, before time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM budget_days WHERE date < $1`, DayKey(before))
	if err != nil {
		return 0, eris.Wrap(err, "postgres: purge budget days")
	}
	return int(tag.RowsAffected()), nil
}

// VenueURLKnown reports whether a normalized venue URL was already discovered.
func (s *PostgresStore) VenueURLKnown(ctx context.Context, normalizedURL string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM venue_candidates WHERE normalized_url = $1)`, normalizedURL,
	).Scan(&exists)
	return exists, eris.Wrap(err, "postgres: venue url known")
}

// InsertCandidates inserts candidates, ignoring URLs already present.
func (s *PostgresStore) InsertCandidates(ctx context.Context, candidates []model.VenueCandidate) (int64, error) {
	var inserted int64
	for _, c := range candidates {
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO venue_candidates
				(run_id, name, url, normalized_url, venue_slug, platform, country, strategy_id, chain_id, brand_misuse, raw_snippet)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (normalized_url) DO NOTHING`,
			c.RunID, c.Name, c.URL, c.NormalizedURL, c.VenueSlug, string(c.Platform), c.Country,
			c.StrategyID, c.ChainID, c.BrandMisuse, c.RawSnippet,
		)
		if err != nil {
			return inserted, eris.Wrap(err, "postgres: insert candidate")
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// ListCandidates returns candidates for a run.
func (s *PostgresStore) ListCandidates(ctx context.Context, runID string, limit int) ([]model.VenueCandidate, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, name, url, normalized_url, COALESCE(venue_slug, ''), platform, country,
			COALESCE(strategy_id, ''), COALESCE(chain_id, ''), brand_misuse, COALESCE(raw_snippet, ''), created_at
		FROM venue_candidates WHERE run_id = $1 ORDER BY id LIMIT $2`,
		runID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list candidates")
	}
	defer rows.Close()

	var out []model.VenueCandidate
	for rows.Next() {
		var c model.VenueCandidate
		var platform string
		if err := rows.Scan(&c.ID, &c.RunID, &c.Name, &c.URL, &c.NormalizedURL, &c.VenueSlug,
			&platform, &c.Country, &c.StrategyID, &c.ChainID, &c.BrandMisuse, &c.RawSnippet,
			&c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan candidate")
		}
		c.Platform = model.Platform(platform)
		out = append(out, c)
	}
	return out, rows.Err()
}

// EmitDishes hands validated dishes to the intake queue.
func (s *PostgresStore) EmitDishes(ctx context.Context, venueURL string, platform model.Platform, country string, items []model.MenuItem) error {
	for _, item := range items {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO dishes (venue_url, platform, country, name, description, amount, currency, category, product_tag, confidence)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			venueURL, string(platform), country, item.Name, item.Description,
			item.Price.Amount, item.Price.Currency, item.Category, item.ProductTag, item.Confidence,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: emit dish for %s", venueURL)
		}
	}
	return nil
}

// UpsertChain inserts or updates a chain-registry entry.
func (s *PostgresStore) UpsertChain(ctx context.Context, c model.Chain) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	products, err := json.Marshal(c.Products)
	if err != nil {
		return eris.Wrap(err, "postgres: encode chain products")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO chains (id, name, norm, products) VALUES ($1, $2, $3, $4)
		ON CONFLICT (norm) DO UPDATE SET name = EXCLUDED.name, products = EXCLUDED.products`,
		c.ID, c.Name, normalizeChainName(c.Name), products,
	)
	return eris.Wrapf(err, "postgres: upsert chain %s", c.Name)
}

// FindChainByName looks up a chain by normalized name; nil means no match.
func (s *PostgresStore) FindChainByName(ctx context.Context, name string) (*model.Chain, error) {
	var c model.Chain
	var products []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, products FROM chains WHERE norm = $1`, normalizeChainName(name),
	).Scan(&c.ID, &c.Name, &products)
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find chain %s", name)
	}
	if err := json.Unmarshal(products, &c.Products); err != nil {
		return nil, eris.Wrap(err, "postgres: decode chain products")
	}
	return &c, nil
}

// CreateRun inserts a new pipeline run.
func (s *PostgresStore) CreateRun(ctx context.Context, kind model.RunKind) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, kind, status, started_at) VALUES ($1, $2, $3, $4)`,
		run.ID, string(kind), string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create run")
	}
	return run, nil
}

// CompleteRun marks a run completed with its aggregated counters.
func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, counters model.RunCounters) error {
	raw, err := json.Marshal(counters)
	if err != nil {
		return eris.Wrap(err, "postgres: encode run counters")
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, counters = $2, completed_at = $3 WHERE id = $4`,
		string(model.RunStatusCompleted), raw, time.Now().UTC(), runID,
	)
	return eris.Wrapf(err, "postgres: complete run %s", runID)
}

// FailRun marks a run failed with an error message.
func (s *PostgresStore) FailRun(ctx context.Context, runID string, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, completed_at = $3 WHERE id = $4`,
		string(model.RunStatusFailed), errMsg, time.Now().UTC(), runID,
	)
	return eris.Wrapf(err, "postgres: fail run %s", runID)
}
