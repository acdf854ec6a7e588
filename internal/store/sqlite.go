package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/brandreach/menuscout/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS strategies (
	id                     TEXT PRIMARY KEY,
	query_template         TEXT NOT NULL,
	platform               TEXT NOT NULL,
	country                TEXT NOT NULL,
	tier                   INTEGER NOT NULL DEFAULT 2,
	origin                 TEXT NOT NULL,
	active                 INTEGER NOT NULL DEFAULT 1,
	success_rate           REAL NOT NULL DEFAULT 0,
	total_uses             INTEGER NOT NULL DEFAULT 0,
	successful_discoveries INTEGER NOT NULL DEFAULT 0,
	false_positives        INTEGER NOT NULL DEFAULT 0,
	last_used_at           DATETIME,
	created_at             DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS feedback (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	subject_id  TEXT NOT NULL,
	platform    TEXT NOT NULL,
	country     TEXT NOT NULL,
	strategy_id TEXT,
	result      TEXT NOT NULL,
	reviewed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS budget_days (
	date            TEXT PRIMARY KEY,
	free_searches   INTEGER NOT NULL DEFAULT 0,
	paid_searches   INTEGER NOT NULL DEFAULT 0,
	ai_calls        INTEGER NOT NULL DEFAULT 0,
	search_cost_usd REAL NOT NULL DEFAULT 0,
	ai_cost_usd     REAL NOT NULL DEFAULT 0,
	throttle_events TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS venue_candidates (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id         TEXT NOT NULL,
	name           TEXT NOT NULL,
	url            TEXT NOT NULL,
	normalized_url TEXT NOT NULL UNIQUE,
	venue_slug     TEXT,
	platform       TEXT NOT NULL,
	country        TEXT NOT NULL,
	strategy_id    TEXT,
	chain_id       TEXT,
	brand_misuse   INTEGER NOT NULL DEFAULT 0,
	raw_snippet    TEXT,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS dishes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	venue_url   TEXT NOT NULL,
	platform    TEXT NOT NULL,
	country     TEXT NOT NULL,
	name        TEXT NOT NULL,
	description TEXT,
	amount      REAL NOT NULL,
	currency    TEXT NOT NULL,
	category    TEXT,
	product_tag TEXT,
	confidence  REAL NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS chains (
	id       TEXT PRIMARY KEY,
	name     TEXT NOT NULL,
	norm     TEXT NOT NULL UNIQUE,
	products TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	counters     TEXT,
	error        TEXT,
	started_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_strategies_pair ON strategies(platform, country);
CREATE INDEX IF NOT EXISTS idx_feedback_reviewed ON feedback(reviewed_at);
CREATE INDEX IF NOT EXISTS idx_candidates_run ON venue_candidates(run_id);
CREATE INDEX IF NOT EXISTS idx_dishes_venue ON dishes(venue_url);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertStrategy inserts or replaces a strategy by id.
func (s *SQLiteStore) UpsertStrategy(ctx context.Context, st model.Strategy) error {
	if st.ID == "" {
		st.ID = uuid.New().String()
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO strategies (id, query_template, platform, country, tier, origin, active,
			success_rate, total_uses, successful_discoveries, false_positives, last_used_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			query_template = excluded.query_template,
			tier = excluded.tier,
			active = excluded.active,
			success_rate = excluded.success_rate`,
		st.ID, st.QueryTemplate, string(st.Platform), st.Country, st.Tier, string(st.Origin),
		boolInt(st.Active), st.SuccessRate, st.TotalUses, st.SuccessfulDiscoveries,
		st.FalsePositives, st.LastUsedAt, st.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert strategy %s", st.ID)
}

const strategyColumns = `id, query_template, platform, country, tier, origin, active,
	success_rate, total_uses, successful_discoveries, false_positives, last_used_at, created_at`

// ListActiveStrategies returns active strategies for a (platform, country) pair.
func (s *SQLiteStore) ListActiveStrategies(ctx context.Context, platform model.Platform, country string) ([]model.Strategy, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+strategyColumns+` FROM strategies
		WHERE active = 1 AND platform = ? AND country = ?
		ORDER BY success_rate DESC, tier ASC`,
		string(platform), country,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list strategies")
	}
	defer rows.Close()
	return scanStrategies(rows)
}

// UpdateStrategyTier persists a tier transition computed by the learning loop.
func (s *SQLiteStore) UpdateStrategyTier(ctx context.Context, id string, tier int, successRate float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE strategies SET tier = ?, success_rate = ? WHERE id = ?`,
		tier, successRate, id,
	)
	return eris.Wrapf(err, "sqlite: update strategy tier %s", id)
}

// TouchStrategy records a use of the strategy.
func (s *SQLiteStore) TouchStrategy(ctx context.Context, id string, usedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE strategies SET total_uses = total_uses + 1, last_used_at = ? WHERE id = ?`,
		usedAt.UTC(), id,
	)
	return eris.Wrapf(err, "sqlite: touch strategy %s", id)
}

// AppendFeedback appends a review outcome. Feedback is append-only.
func (s *SQLiteStore) AppendFeedback(ctx context.Context, rec model.FeedbackRecord) error {
	if rec.ReviewedAt.IsZero() {
		rec.ReviewedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (subject_id, platform, country, strategy_id, result, reviewed_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.SubjectID, string(rec.Platform), rec.Country, rec.StrategyID, string(rec.Result), rec.ReviewedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: append feedback")
}

// ListFeedbackSince returns feedback reviewed at or after the given time.
func (s *SQLiteStore) ListFeedbackSince(ctx context.Context, since time.Time) ([]model.FeedbackRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subject_id, platform, country, strategy_id, result, reviewed_at
		FROM feedback WHERE reviewed_at >= ? ORDER BY reviewed_at`,
		since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list feedback")
	}
	defer rows.Close()

	var records []model.FeedbackRecord
	for rows.Next() {
		var r model.FeedbackRecord
		var platform, result string
		var strategyID sql.NullString
		if err := rows.Scan(&r.ID, &r.SubjectID, &platform, &r.Country, &strategyID, &result, &r.ReviewedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan feedback")
		}
		r.Platform = model.Platform(platform)
		r.Result = model.ResultType(result)
		r.StrategyID = strategyID.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// AddBudgetDelta lazily creates the day's record and applies the increment
// in one statement, so concurrent callers cannot lose updates.
func (s *SQLiteStore) AddBudgetDelta(ctx context.Context, date time.Time, delta BudgetDelta) (*model.BudgetDay, error) {
	key := DayKey(date).Format("2006-01-02")
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO budget_days (date, free_searches, paid_searches, ai_calls, search_cost_usd, ai_cost_usd)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			free_searches = free_searches + excluded.free_searches,
			paid_searches = paid_searches + excluded.paid_searches,
			ai_calls = ai_calls + excluded.ai_calls,
			search_cost_usd = search_cost_usd + excluded.search_cost_usd,
			ai_cost_usd = ai_cost_usd + excluded.ai_cost_usd`,
		key, delta.FreeSearches, delta.PaidSearches, delta.AICalls, delta.SearchCostUSD, delta.AICostUSD,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: add budget delta %s", key)
	}
	return s.GetBudgetDay(ctx, date)
}

// GetBudgetDay returns the day's counters, or a zero record if absent.
func (s *SQLiteStore) GetBudgetDay(ctx context.Context, date time.Time) (*model.BudgetDay, error) {
	day := DayKey(date)
	key := day.Format("2006-01-02")

	var d model.BudgetDay
	var events string
	err := s.db.QueryRowContext(ctx,
		`SELECT free_searches, paid_searches, ai_calls, search_cost_usd, ai_cost_usd, throttle_events
		FROM budget_days WHERE date = ?`, key,
	).Scan(&d.FreeSearches, &d.PaidSearches, &d.AICalls, &d.SearchCostUSD, &d.AICostUSD, &events)
	if err == sql.ErrNoRows {
		return &model.BudgetDay{Date: day}, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get budget day %s", key)
	}
	d.Date = day
	if err := json.Unmarshal([]byte(events), &d.ThrottleEvents); err != nil {
		return nil, eris.Wrapf(err, "sqlite: decode throttle events %s", key)
	}
	return &d, nil
}

// AppendThrottleEvent appends one event to the day's throttle log.
func (s *SQLiteStore) AppendThrottleEvent(ctx context.Context, date time.Time, ev model.ThrottleEvent) error {
	day, err := s.GetBudgetDay(ctx, date)
	if err != nil {
		return err
	}
	events := append(day.ThrottleEvents, ev)
	raw, err := json.Marshal(events)
	if err != nil {
		return eris.Wrap(err, "sqlite: encode throttle events")
	}

	key := DayKey(date).Format("2006-01-02")
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO budget_days (date, throttle_events) VALUES (?, ?)
		ON CONFLICT(date) DO UPDATE SET throttle_events = excluded.throttle_events`,
		key, string(raw),
	)
	return eris.Wrapf(err, "sqlite: append throttle event %s", key)
}

// SumCostBetween totals accumulated cost over [from, to] day keys inclusive.
func (s *SQLiteStore) SumCostBetween(ctx context.Context, from, to time.Time) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(search_cost_usd + ai_cost_usd), 0) FROM budget_days WHERE date >= ? AND date <= ?`,
		DayKey(from).Format("2006-01-02"), DayKey(to).Format("2006-01-02"),
	).Scan(&total)
	return total, eris.Wrap(err, "sqlite: sum cost")
}

// PurgeBudgetDays deletes day records older than the retention boundary.
func (s *SQLiteStore) PurgeBudgetDays(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM budget_days WHERE date < ?`, DayKey(before).Format("2006-01-02"))
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: purge budget days")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// VenueURLKnown reports whether a normalized venue URL was already discovered.
func (s *SQLiteStore) VenueURLKnown(ctx context.Context, normalizedURL string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM venue_candidates WHERE normalized_url = ?)`, normalizedURL,
	).Scan(&exists)
	return exists, eris.Wrap(err, "sqlite: venue url known")
}

// InsertCandidates inserts candidates, ignoring URLs already present.
func (s *SQLiteStore) InsertCandidates(ctx context.Context, candidates []model.VenueCandidate) (int64, error) {
	if len(candidates) == 0 {
		return 0, nil
	}

	var inserted int64
	for _, c := range candidates {
		res, err := s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO venue_candidates
				(run_id, name, url, normalized_url, venue_slug, platform, country, strategy_id, chain_id, brand_misuse, raw_snippet)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.RunID, c.Name, c.URL, c.NormalizedURL, c.VenueSlug, string(c.Platform), c.Country,
			c.StrategyID, c.ChainID, boolInt(c.BrandMisuse), c.RawSnippet,
		)
		if err != nil {
			return inserted, eris.Wrap(err, "sqlite: insert candidate")
		}
		n, _ := res.RowsAffected()
		inserted += n
	}
	return inserted, nil
}

// ListCandidates returns candidates for a run.
func (s *SQLiteStore) ListCandidates(ctx context.Context, runID string, limit int) ([]model.VenueCandidate, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, name, url, normalized_url, venue_slug, platform, country,
			strategy_id, chain_id, brand_misuse, raw_snippet, created_at
		FROM venue_candidates WHERE run_id = ? ORDER BY id LIMIT ?`,
		runID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list candidates")
	}
	defer rows.Close()

	var out []model.VenueCandidate
	for rows.Next() {
		var c model.VenueCandidate
		var platform string
		var misuse int
		var slug, strategyID, chainID, snippet sql.NullString
		if err := rows.Scan(&c.ID, &c.RunID, &c.Name, &c.URL, &c.NormalizedURL, &slug, &platform,
			&c.Country, &strategyID, &chainID, &misuse, &snippet, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan candidate")
		}
		c.Platform = model.Platform(platform)
		c.VenueSlug = slug.String
		c.StrategyID = strategyID.String
		c.ChainID = chainID.String
		c.RawSnippet = snippet.String
		c.BrandMisuse = misuse != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

// EmitDishes hands validated dishes to the intake queue.
func (s *SQLiteStore) EmitDishes(ctx context.Context, venueURL string, platform model.Platform, country string, items []model.MenuItem) error {
	for _, item := range items {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO dishes (venue_url, platform, country, name, description, amount, currency, category, product_tag, confidence)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			venueURL, string(platform), country, item.Name, item.Description,
			item.Price.Amount, item.Price.Currency, item.Category, item.ProductTag, item.Confidence,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: emit dish for %s", venueURL)
		}
	}
	return nil
}

// UpsertChain inserts or replaces a chain-registry entry.
func (s *SQLiteStore) UpsertChain(ctx context.Context, c model.Chain) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	products, err := json.Marshal(c.Products)
	if err != nil {
		return eris.Wrap(err, "sqlite: encode chain products")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chains (id, name, norm, products) VALUES (?, ?, ?, ?)
		ON CONFLICT(norm) DO UPDATE SET name = excluded.name, products = excluded.products`,
		c.ID, c.Name, normalizeChainName(c.Name), string(products),
	)
	return eris.Wrapf(err, "sqlite: upsert chain %s", c.Name)
}

// FindChainByName looks up a chain by normalized name; nil means no match.
func (s *SQLiteStore) FindChainByName(ctx context.Context, name string) (*model.Chain, error) {
	var c model.Chain
	var products string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, products FROM chains WHERE norm = ?`, normalizeChainName(name),
	).Scan(&c.ID, &c.Name, &products)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find chain %s", name)
	}
	if err := json.Unmarshal([]byte(products), &c.Products); err != nil {
		return nil, eris.Wrap(err, "sqlite: decode chain products")
	}
	return &c, nil
}

// CreateRun inserts a new pipeline run.
func (s *SQLiteStore) CreateRun(ctx context.Context, kind model.RunKind) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, string(kind), string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: create run")
	}
	return run, nil
}

// CompleteRun marks a run completed with its aggregated counters.
func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, counters model.RunCounters) error {
	raw, err := json.Marshal(counters)
	if err != nil {
		return eris.Wrap(err, "sqlite: encode run counters")
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, counters = ?, completed_at = ? WHERE id = ?`,
		string(model.RunStatusCompleted), string(raw), time.Now().UTC(), runID,
	)
	return eris.Wrapf(err, "sqlite: complete run %s", runID)
}

// FailRun marks a run failed with an error message.
func (s *SQLiteStore) FailRun(ctx context.Context, runID string, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), errMsg, time.Now().UTC(), runID,
	)
	return eris.Wrapf(err, "sqlite: fail run %s", runID)
}

func scanStrategies(rows *sql.Rows) ([]model.Strategy, error) {
	var out []model.Strategy
	for rows.Next() {
		var st model.Strategy
		var platform, origin string
		var active int
		var lastUsed sql.NullTime
		if err := rows.Scan(&st.ID, &st.QueryTemplate, &platform, &st.Country, &st.Tier, &origin,
			&active, &st.SuccessRate, &st.TotalUses, &st.SuccessfulDiscoveries, &st.FalsePositives,
			&lastUsed, &st.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan strategy")
		}
		st.Platform = model.Platform(platform)
		st.Origin = model.Origin(origin)
		st.Active = active != 0
		if lastUsed.Valid {
			t := lastUsed.Time
			st.LastUsedAt = &t
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// normalizeChainName lowercases and collapses whitespace for registry lookups.
func normalizeChainName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
