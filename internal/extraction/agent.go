package extraction

import (
	"context"

	"go.uber.org/zap"

	"github.com/brandreach/menuscout/internal/model"
	"github.com/brandreach/menuscout/internal/platform"
	"github.com/brandreach/menuscout/internal/quality"
	"github.com/brandreach/menuscout/internal/store"
)

// Agent extracts menu data from discovered venues, one at a time.
type Agent struct {
	store    store.Store
	registry *platform.Registry
	browser  Browser
	log      *zap.Logger
}

// NewAgent wires the extraction agent.
func NewAgent(st store.Store, registry *platform.Registry, browser Browser) *Agent {
	return &Agent{
		store:    st,
		registry: registry,
		browser:  browser,
		log:      zap.L().With(zap.String("service", "extraction")),
	}
}

// Run processes a discovery run's candidates strictly sequentially. Session
// state is cleared before every fetch; a timeout or parse failure yields an
// empty result for that venue and the run continues. Candidates carrying a
// chain match are skipped entirely, their product list being pre-verified.
func (a *Agent) Run(ctx context.Context, discoveryRunID string, limit int) (*model.Run, error) {
	run, err := a.store.CreateRun(ctx, model.RunExtraction)
	if err != nil {
		return nil, err
	}
	log := a.log.With(zap.String("run_id", run.ID))

	candidates, err := a.store.ListCandidates(ctx, discoveryRunID, limit)
	if err != nil {
		if ferr := a.store.FailRun(ctx, run.ID, err.Error()); ferr != nil {
			log.Warn("failed to record run failure", zap.Error(ferr))
		}
		return run, err
	}

	var counters model.RunCounters
	for _, candidate := range candidates {
		// Cancellation is honored between venues, never mid-fetch.
		if err := ctx.Err(); err != nil {
			break
		}
		c := a.processVenue(ctx, candidate, log)
		counters.VenuesProcessed += c.VenuesProcessed
		counters.VenuesSkipped += c.VenuesSkipped
		counters.DishesValid += c.DishesValid
		counters.DishesInvalid += c.DishesInvalid
	}

	if err := a.store.CompleteRun(ctx, run.ID, counters); err != nil {
		return run, err
	}
	run.Status = model.RunStatusCompleted
	run.Counters = counters
	log.Info("extraction run complete",
		zap.Int("venues_processed", counters.VenuesProcessed),
		zap.Int("venues_skipped", counters.VenuesSkipped),
		zap.Int("dishes_valid", counters.DishesValid),
		zap.Int("dishes_invalid", counters.DishesInvalid),
	)
	return run, nil
}

func (a *Agent) processVenue(ctx context.Context, candidate model.VenueCandidate, log *zap.Logger) model.RunCounters {
	var counters model.RunCounters
	log = log.With(zap.String("url", candidate.URL))

	if candidate.ChainID != "" {
		counters.VenuesSkipped++
		log.Debug("skipping chain-matched venue", zap.String("chain_id", candidate.ChainID))
		return counters
	}

	adapter := a.registry.Get(candidate.Platform)
	if adapter == nil {
		counters.VenuesSkipped++
		log.Warn("no adapter for platform", zap.String("platform", string(candidate.Platform)))
		return counters
	}

	// Clearing state before every fetch is mandatory: the dish set for this
	// venue must never contain an item carried over from the previous one.
	if err := a.browser.ClearState(ctx); err != nil {
		counters.VenuesSkipped++
		log.Warn("clear state failed, skipping venue", zap.Error(err))
		return counters
	}

	content, err := a.browser.Open(ctx, candidate.URL)
	if err != nil {
		counters.VenuesSkipped++
		log.Warn("fetch failed", zap.Error(err))
		return counters
	}

	page, err := adapter.ParseVenuePage(content, candidate.Country)
	if err != nil {
		counters.VenuesProcessed++
		log.Info("no parse strategy matched", zap.Error(err))
		return counters
	}

	valid, invalid := quality.ValidateDishes(page.Items)
	counters.VenuesProcessed++
	counters.DishesValid += len(valid)
	counters.DishesInvalid += len(invalid)
	for _, issue := range invalid {
		log.Debug("dropping invalid dish",
			zap.String("name", issue.Item.Name),
			zap.Strings("issues", issue.Issues),
		)
	}
	if len(valid) == 0 {
		return counters
	}

	if err := a.store.EmitDishes(ctx, candidate.URL, candidate.Platform, candidate.Country, valid); err != nil {
		log.Warn("dish emit failed", zap.Error(err))
	}
	return counters
}
