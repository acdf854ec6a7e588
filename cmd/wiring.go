package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/brandreach/menuscout/internal/budget"
	"github.com/brandreach/menuscout/internal/platform"
	"github.com/brandreach/menuscout/internal/querycache"
	"github.com/brandreach/menuscout/internal/searchpool"
	"github.com/brandreach/menuscout/internal/store"
)

// openStore builds the configured store backend.
func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "open postgres pool")
		}
		return store.NewPostgres(pool), nil
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// openCache builds the configured query cache backend.
func openCache() (querycache.Cache, error) {
	ttl := time.Duration(cfg.Cache.TTLHours) * time.Hour
	switch cfg.Cache.Backend {
	case "redis":
		return querycache.NewRedis(cfg.Cache.Redis.Addr, cfg.Cache.Redis.Password, cfg.Cache.Redis.DB, ttl), nil
	case "memory", "":
		return querycache.NewMemory(ttl), nil
	default:
		return nil, eris.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// buildSearchPool wires the engine pool against the budget governor.
func buildSearchPool(gov *budget.Governor) (*searchpool.Pool, error) {
	engines := searchpool.FromConfig(cfg.Search)
	if len(engines) == 0 {
		return nil, eris.New("no search engines configured")
	}
	poolCfg := searchpool.Config{
		BillingEnabled: cfg.Search.BillingEnabled,
		PaidCostUSD:    cfg.Search.PaidCostUSD,
		MaxRetries:     cfg.Search.MaxRetries,
		Timeout:        time.Duration(cfg.Search.TimeoutSecs) * time.Second,
	}
	return searchpool.New(poolCfg, gov, engines...), nil
}

// buildRegistry registers the platform adapters.
func buildRegistry() *platform.Registry {
	family := cfg.Extraction.ProductFamily
	return platform.NewRegistry(
		platform.NewTakeaway(family),
		platform.NewUberEats(family),
	)
}
