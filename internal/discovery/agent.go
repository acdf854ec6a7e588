// Package discovery orchestrates venue discovery runs: source filtering,
// query generation, cached search execution, result parsing, and venue
// resolution into persisted candidates.
package discovery

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/brandreach/menuscout/internal/config"
	"github.com/brandreach/menuscout/internal/model"
	"github.com/brandreach/menuscout/internal/platform"
	"github.com/brandreach/menuscout/internal/quality"
	"github.com/brandreach/menuscout/internal/querycache"
	"github.com/brandreach/menuscout/internal/searchpool"
	"github.com/brandreach/menuscout/internal/store"
	"github.com/brandreach/menuscout/internal/strategy"
)

// state labels the agent's pipeline phases for logging.
type state string

const (
	stateInit            state = "INIT"
	stateSourceFilter    state = "SOURCE_FILTER"
	stateQueryGen        state = "QUERY_GEN"
	stateQueryExec       state = "QUERY_EXEC"
	stateResultParse     state = "RESULT_PARSE"
	stateVenueResolution state = "VENUE_RESOLUTION"
	stateDone            state = "DONE"
)

// RunParams are the caller-supplied parameters of one discovery run.
type RunParams struct {
	// Product is the product/brand term substituted into query templates.
	Product string
	// Brand is the protected brand name used by the misuse heuristic.
	// Defaults to Product when empty.
	Brand string
	// City optionally narrows queries to one city.
	City string
	// Platforms restricts the run to a subset; empty means all registered.
	Platforms []model.Platform
	// Countries restricts the run to a subset of ISO codes; empty means all
	// countries each platform supports.
	Countries []string
}

// source is one (platform, country) pair the run queries.
type source struct {
	platform model.Platform
	country  string
}

// Agent drives the discovery pipeline.
type Agent struct {
	store    store.Store
	gate     *quality.Gate
	catalog  *strategy.Catalog
	pool     *searchpool.Pool
	cache    querycache.Cache
	registry *platform.Registry
	cfg      config.DiscoveryConfig
	window   time.Duration
	log      *zap.Logger
}

// NewAgent wires the discovery agent from its collaborators.
func NewAgent(
	st store.Store,
	gate *quality.Gate,
	catalog *strategy.Catalog,
	pool *searchpool.Pool,
	cache querycache.Cache,
	registry *platform.Registry,
	cfg config.DiscoveryConfig,
	healthWindow time.Duration,
) *Agent {
	return &Agent{
		store:    st,
		gate:     gate,
		catalog:  catalog,
		pool:     pool,
		cache:    cache,
		registry: registry,
		cfg:      cfg,
		window:   healthWindow,
		log:      zap.L().With(zap.String("service", "discovery")),
	}
}

// Run executes one discovery run. Only configuration errors before the
// pipeline starts fail the run; per-query and per-venue failures are counted
// and the run continues.
func (a *Agent) Run(ctx context.Context, params RunParams) (*model.Run, error) {
	run, err := a.store.CreateRun(ctx, model.RunDiscovery)
	if err != nil {
		return nil, err
	}
	log := a.log.With(zap.String("run_id", run.ID))
	log.Info("discovery run starting", zap.String("state", string(stateInit)))

	if err := a.validate(params); err != nil {
		if ferr := a.store.FailRun(ctx, run.ID, err.Error()); ferr != nil {
			log.Warn("failed to record run failure", zap.Error(ferr))
		}
		return run, err
	}
	if params.Brand == "" {
		params.Brand = params.Product
	}

	sources, err := a.filterSources(ctx, params, log)
	if err != nil {
		return run, err
	}

	var (
		mu       sync.Mutex
		counters model.RunCounters
		budgeted = newQueryBudget(a.cfg.MaxQueriesPerRun)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.MaxConcurrentSources)
	for _, src := range sources {
		g.Go(func() error {
			c, err := a.runSource(gctx, run.ID, src, params, budgeted, log)
			if err != nil {
				// Source-level failures are non-fatal; count and continue.
				log.Warn("source failed",
					zap.String("platform", string(src.platform)),
					zap.String("country", src.country),
					zap.Error(err),
				)
			}
			mu.Lock()
			addCounters(&counters, c)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return run, err
	}

	if err := a.store.CompleteRun(ctx, run.ID, counters); err != nil {
		return run, err
	}
	run.Status = model.RunStatusCompleted
	run.Counters = counters
	log.Info("discovery run complete",
		zap.String("state", string(stateDone)),
		zap.Int("queries_executed", counters.QueriesExecuted),
		zap.Int("candidates_found", counters.CandidatesFound),
		zap.Int("duplicates", counters.Duplicates),
		zap.Int("misuse_dropped", counters.MisuseDropped),
	)
	return run, nil
}

// validate enforces the pre-run configuration contract.
func (a *Agent) validate(params RunParams) error {
	if params.Product == "" {
		return eris.New("discovery: product term is required")
	}
	if len(a.registry.Platforms()) == 0 {
		return eris.New("discovery: no platform adapters registered")
	}
	for _, p := range params.Platforms {
		if a.registry.Get(p) == nil {
			return eris.Errorf("discovery: unknown platform %q", p)
		}
	}
	return nil
}

// filterSources builds the (platform, country) source list and applies the
// quality gate. Sources without enough feedback history pass by default.
func (a *Agent) filterSources(ctx context.Context, params RunParams, log *zap.Logger) ([]source, error) {
	log.Info("filtering sources", zap.String("state", string(stateSourceFilter)))

	since := time.Now().Add(-a.window)
	all, err := a.gate.SourceHealth(ctx, since)
	if err != nil {
		return nil, err
	}
	healthy, err := a.gate.HealthySources(ctx, since)
	if err != nil {
		return nil, err
	}
	excluded := make(map[source]bool)
	for _, h := range all {
		excluded[source{h.Platform, h.Country}] = true
	}
	for _, h := range healthy {
		delete(excluded, source{h.Platform, h.Country})
	}

	platforms := params.Platforms
	if len(platforms) == 0 {
		platforms = a.registry.Platforms()
	}
	wantCountry := make(map[string]bool, len(params.Countries))
	for _, c := range params.Countries {
		wantCountry[strings.ToUpper(c)] = true
	}

	var sources []source
	for _, p := range platforms {
		adapter := a.registry.Get(p)
		for _, country := range adapter.Countries() {
			if len(wantCountry) > 0 && !wantCountry[country] {
				continue
			}
			src := source{p, country}
			if excluded[src] {
				continue
			}
			sources = append(sources, src)
		}
	}
	return sources, nil
}

// runSource executes the query pipeline for one (platform, country) source.
func (a *Agent) runSource(ctx context.Context, runID string, src source, params RunParams, budgeted *queryBudget, log *zap.Logger) (model.RunCounters, error) {
	var counters model.RunCounters
	log = log.With(
		zap.String("platform", string(src.platform)),
		zap.String("country", src.country),
	)
	adapter := a.registry.Get(src.platform)

	strategies, err := a.catalog.Select(ctx, src.platform, src.country)
	if err != nil {
		return counters, err
	}
	if len(strategies) == 0 {
		log.Debug("no strategies for source", zap.String("state", string(stateQueryGen)))
		return counters, nil
	}

	for _, strat := range strategies {
		// Cancellation is honored between queries, never mid-query.
		if err := ctx.Err(); err != nil {
			return counters, err
		}
		if !budgeted.take() {
			counters.QueriesSkipped++
			continue
		}
		counters.QueriesPlanned++

		rendered := strategy.Render(strat.QueryTemplate, params.Product, src.country, params.City)
		query, err := adapter.BuildSearchURL(rendered, src.country, params.City)
		if err != nil {
			counters.QueriesSkipped++
			log.Warn("query build failed", zap.String("strategy_id", strat.ID), zap.Error(err))
			continue
		}

		results, fromCache, err := a.executeQuery(ctx, src, query, log)
		if err != nil {
			counters.QueriesSkipped++
			continue
		}
		if fromCache {
			counters.QueriesCached++
		} else {
			counters.QueriesExecuted++
			if terr := a.store.TouchStrategy(ctx, strat.ID, time.Now().UTC()); terr != nil {
				log.Warn("touch strategy failed", zap.String("strategy_id", strat.ID), zap.Error(terr))
			}
		}

		c := a.resolveHits(ctx, runID, src, adapter, strat.ID, params, adapter.ParseSearchResults(results), log)
		addCounters(&counters, c)
	}
	return counters, nil
}

// executeQuery is cache-first: hits cost nothing; misses go to the engine
// pool, which spends free quota first and consults the spend ceilings only
// for the paid fallback. Raw results are cached on success.
func (a *Agent) executeQuery(ctx context.Context, src source, query string, log *zap.Logger) ([]searchpool.Result, bool, error) {
	cached, hit, err := a.cache.Get(ctx, src.platform, src.country, query)
	if err != nil {
		log.Warn("cache read failed", zap.Error(err))
	} else if hit {
		return cached, true, nil
	}

	results, err := a.pool.Execute(ctx, query, 10)
	if err != nil {
		log.Warn("query execution failed",
			zap.String("state", string(stateQueryExec)),
			zap.Error(err),
		)
		return nil, false, err
	}

	if err := a.cache.Put(ctx, src.platform, src.country, query, results); err != nil {
		log.Warn("cache write failed", zap.Error(err))
	}
	return results, false, nil
}

// resolveHits turns parsed search hits into persisted venue candidates:
// duplicate filtering, country resolution, misuse heuristics, chain matching.
func (a *Agent) resolveHits(ctx context.Context, runID string, src source, adapter platform.Adapter, strategyID string, params RunParams, hits []platform.SearchHit, log *zap.Logger) model.RunCounters {
	var counters model.RunCounters
	if len(hits) == 0 {
		log.Debug("no candidates parsed", zap.String("state", string(stateResultParse)))
		return counters
	}

	var candidates []model.VenueCandidate
	for _, hit := range hits {
		normalized := NormalizeURL(hit.URL)

		known, err := a.store.VenueURLKnown(ctx, normalized)
		if err != nil {
			log.Warn("duplicate check failed", zap.Error(err))
			continue
		}
		if known {
			counters.Duplicates++
			continue
		}

		// URL-derived country wins over the run's configured country; a
		// mismatch is preserved, never coerced.
		country := src.country
		if resolved, ok := adapter.ResolveCountry(hit.URL); ok {
			country = resolved
		}

		if BrandMisused(hit.Name, params.Brand) {
			counters.MisuseDropped++
			log.Info("dropping candidate: brand misuse",
				zap.String("state", string(stateVenueResolution)),
				zap.String("name", hit.Name),
				zap.String("url", hit.URL),
			)
			continue
		}

		candidate := model.VenueCandidate{
			RunID:         runID,
			Name:          hit.Name,
			URL:           hit.URL,
			NormalizedURL: normalized,
			VenueSlug:     hit.VenueID,
			Platform:      src.platform,
			Country:       country,
			StrategyID:    strategyID,
			RawSnippet:    hit.Snippet,
		}

		chain, err := a.store.FindChainByName(ctx, hit.Name)
		if err != nil {
			log.Warn("chain lookup failed", zap.Error(err))
		} else if chain != nil {
			// A chain match carries a pre-verified product list, so full
			// extraction can be skipped for this venue.
			candidate.ChainID = chain.ID
			counters.ChainMatches++
		}

		candidates = append(candidates, candidate)
	}

	inserted, err := a.store.InsertCandidates(ctx, candidates)
	if err != nil {
		log.Warn("candidate insert failed", zap.Error(err))
		return counters
	}
	counters.CandidatesFound = int(inserted)
	counters.Duplicates += len(candidates) - int(inserted)
	return counters
}

// queryBudget caps total queries across concurrent sources.
type queryBudget struct {
	mu        sync.Mutex
	remaining int
}

func newQueryBudget(max int) *queryBudget {
	if max <= 0 {
		max = 50
	}
	return &queryBudget{remaining: max}
}

func (b *queryBudget) take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remaining <= 0 {
		return false
	}
	b.remaining--
	return true
}

func addCounters(dst *model.RunCounters, src model.RunCounters) {
	dst.QueriesPlanned += src.QueriesPlanned
	dst.QueriesExecuted += src.QueriesExecuted
	dst.QueriesCached += src.QueriesCached
	dst.QueriesSkipped += src.QueriesSkipped
	dst.CandidatesFound += src.CandidatesFound
	dst.Duplicates += src.Duplicates
	dst.MisuseDropped += src.MisuseDropped
	dst.ChainMatches += src.ChainMatches
	dst.VenuesProcessed += src.VenuesProcessed
	dst.VenuesSkipped += src.VenuesSkipped
	dst.DishesValid += src.DishesValid
	dst.DishesInvalid += src.DishesInvalid
}

// NormalizeURL canonicalizes a venue URL for duplicate detection: lowercase
// host, https scheme, no query or fragment, no trailing slash.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimRight(strings.TrimSpace(raw), "/"))
	}
	u.Scheme = "https"
	u.Host = strings.ToLower(u.Host)
	u.RawQuery = ""
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}

// misuseMarkers are name fragments that signal a venue is trading on the
// brand without selling it (e.g. "Brandname style" knockoffs).
var misuseMarkers = []string{"style", "styl", "art", "typ", "like", "inspired", "imitat"}

// BrandMisused reports whether a venue name pairs the protected brand with an
// imitation marker. Pure heuristic; a plain brand mention is fine.
func BrandMisused(name, brand string) bool {
	if brand == "" {
		return false
	}
	lower := strings.ToLower(name)
	if !strings.Contains(lower, strings.ToLower(brand)) {
		return false
	}
	for _, marker := range misuseMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
