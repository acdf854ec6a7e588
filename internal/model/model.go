// Package model defines the domain types shared across the discovery and
// extraction pipeline: search strategies, venue candidates, menu items,
// feedback records, and budget counters.
package model

import "time"

// Platform identifies a food-delivery platform.
type Platform string

// Known platforms.
const (
	PlatformUberEats Platform = "uber_eats"
	PlatformTakeaway Platform = "takeaway"
)

// Origin describes how a strategy entered the catalog.
type Origin string

// Strategy origins.
const (
	OriginSeed    Origin = "seed"
	OriginEvolved Origin = "evolved"
	OriginManual  Origin = "manual"
	OriginAgent   Origin = "agent"
)

// AutoTierable reports whether a strategy of this origin may be promoted or
// demoted by the learning loop. Agent-generated and unknown origins are
// excluded.
func (o Origin) AutoTierable() bool {
	switch o {
	case OriginSeed, OriginEvolved, OriginManual:
		return true
	default:
		return false
	}
}

// Strategy is a parametrized search-query template scoped to a platform and
// country, with tracked performance. Strategies are never hard-deleted;
// deprecation is a tier or active-flag change.
type Strategy struct {
	ID                    string     `json:"id" db:"id"`
	QueryTemplate         string     `json:"query_template" db:"query_template"`
	Platform              Platform   `json:"platform" db:"platform"`
	Country               string     `json:"country" db:"country"`
	Tier                  int        `json:"tier" db:"tier"`
	Origin                Origin     `json:"origin" db:"origin"`
	Active                bool       `json:"active" db:"active"`
	SuccessRate           float64    `json:"success_rate" db:"success_rate"`
	TotalUses             int        `json:"total_uses" db:"total_uses"`
	SuccessfulDiscoveries int        `json:"successful_discoveries" db:"successful_discoveries"`
	FalsePositives        int        `json:"false_positives" db:"false_positives"`
	LastUsedAt            *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	CreatedAt             time.Time  `json:"created_at" db:"created_at"`
}

// VenueCandidate is a venue surfaced by discovery, pending intake review.
type VenueCandidate struct {
	ID            int64     `json:"id" db:"id"`
	RunID         string    `json:"run_id" db:"run_id"`
	Name          string    `json:"name" db:"name"`
	URL           string    `json:"url" db:"url"`
	NormalizedURL string    `json:"normalized_url" db:"normalized_url"`
	VenueSlug     string    `json:"venue_slug,omitempty" db:"venue_slug"`
	Platform      Platform  `json:"platform" db:"platform"`
	Country       string    `json:"country" db:"country"`
	StrategyID    string    `json:"strategy_id,omitempty" db:"strategy_id"`
	ChainID       string    `json:"chain_id,omitempty" db:"chain_id"`
	BrandMisuse   bool      `json:"brand_misuse" db:"brand_misuse"`
	RawSnippet    string    `json:"raw_snippet,omitempty" db:"raw_snippet"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Price is a monetary amount with an ISO-4217 currency code.
type Price struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// MenuItem is a single dish extracted from a venue page.
type MenuItem struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Price       Price   `json:"price"`
	Category    string  `json:"category,omitempty"`
	ProductTag  string  `json:"product_tag,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// VenuePage is the parsed content of a venue's menu page.
type VenuePage struct {
	Name      string     `json:"name"`
	Address   string     `json:"address,omitempty"`
	Latitude  float64    `json:"latitude,omitempty"`
	Longitude float64    `json:"longitude,omitempty"`
	Rating    float64    `json:"rating,omitempty"`
	Items     []MenuItem `json:"items"`
}

// ResultType classifies a feedback record.
type ResultType string

// Feedback result types.
const (
	ResultTruePositive  ResultType = "true_positive"
	ResultFalsePositive ResultType = "false_positive"
	ResultError         ResultType = "error"
)

// FeedbackRecord is an append-only review outcome for a discovered subject.
type FeedbackRecord struct {
	ID         int64      `json:"id" db:"id"`
	SubjectID  string     `json:"subject_id" db:"subject_id"`
	Platform   Platform   `json:"platform" db:"platform"`
	Country    string     `json:"country" db:"country"`
	StrategyID string     `json:"strategy_id,omitempty" db:"strategy_id"`
	Result     ResultType `json:"result" db:"result"`
	ReviewedAt time.Time  `json:"reviewed_at" db:"reviewed_at"`
}

// ThrottleEvent records a budget ceiling being reached.
type ThrottleEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
}

// BudgetDay holds one UTC calendar day of spend counters. Created lazily on
// first use; mutated only via atomic increments.
type BudgetDay struct {
	Date           time.Time       `json:"date" db:"date"`
	FreeSearches   int             `json:"free_searches" db:"free_searches"`
	PaidSearches   int             `json:"paid_searches" db:"paid_searches"`
	AICalls        int             `json:"ai_calls" db:"ai_calls"`
	SearchCostUSD  float64         `json:"search_cost_usd" db:"search_cost_usd"`
	AICostUSD      float64         `json:"ai_cost_usd" db:"ai_cost_usd"`
	ThrottleEvents []ThrottleEvent `json:"throttle_events,omitempty" db:"throttle_events"`
}

// TotalCostUSD is the day's accumulated cost across all providers.
func (d BudgetDay) TotalCostUSD() float64 {
	return d.SearchCostUSD + d.AICostUSD
}

// SourceHealth aggregates feedback for one (platform, country) pair.
type SourceHealth struct {
	Platform    Platform `json:"platform"`
	Country     string   `json:"country"`
	Samples     int      `json:"samples"`
	Successes   int      `json:"successes"`
	Errors      int      `json:"errors"`
	SuccessRate float64  `json:"success_rate"`
	ErrorRate   float64  `json:"error_rate"`
}

// Chain is a known multi-location brand with a pre-verified product list.
// A chain match lets extraction be skipped for the venue.
type Chain struct {
	ID       string   `json:"id" db:"id"`
	Name     string   `json:"name" db:"name"`
	Products []string `json:"products" db:"products"`
}

// RunKind distinguishes discovery from extraction runs.
type RunKind string

// Run kinds.
const (
	RunDiscovery  RunKind = "discovery"
	RunExtraction RunKind = "extraction"
)

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunCounters aggregates non-fatal skip and failure events over a run.
type RunCounters struct {
	QueriesPlanned  int `json:"queries_planned"`
	QueriesExecuted int `json:"queries_executed"`
	QueriesCached   int `json:"queries_cached"`
	QueriesSkipped  int `json:"queries_skipped"`
	CandidatesFound int `json:"candidates_found"`
	Duplicates      int `json:"duplicates"`
	MisuseDropped   int `json:"misuse_dropped"`
	ChainMatches    int `json:"chain_matches"`
	VenuesProcessed int `json:"venues_processed"`
	VenuesSkipped   int `json:"venues_skipped"`
	DishesValid     int `json:"dishes_valid"`
	DishesInvalid   int `json:"dishes_invalid"`
}

// Run is a persisted discovery or extraction run.
type Run struct {
	ID          string      `json:"id" db:"id"`
	Kind        RunKind     `json:"kind" db:"kind"`
	Status      RunStatus   `json:"status" db:"status"`
	Counters    RunCounters `json:"counters"`
	Error       string      `json:"error,omitempty" db:"error"`
	StartedAt   time.Time   `json:"started_at" db:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
}
