package discovery

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandreach/menuscout/internal/budget"
	"github.com/brandreach/menuscout/internal/config"
	"github.com/brandreach/menuscout/internal/model"
	"github.com/brandreach/menuscout/internal/platform"
	"github.com/brandreach/menuscout/internal/quality"
	"github.com/brandreach/menuscout/internal/querycache"
	"github.com/brandreach/menuscout/internal/searchpool"
	"github.com/brandreach/menuscout/internal/strategy"
)

func testDiscoveryConfig() config.DiscoveryConfig {
	return config.DiscoveryConfig{
		MaxQueriesPerRun:     20,
		StrategiesPerSource:  3,
		MaxConcurrentSources: 2,
		SuccessRateFloor:     0.15,
	}
}

// buildAgent wires a discovery agent over a fake search engine.
func buildAgent(st *mockStore, results []searchpool.Result, engineCalls *atomic.Int64) (*Agent, querycache.Cache) {
	gov := budget.NewGovernor(st, config.BudgetConfig{DailyCeilingUSD: 100})
	engine := searchpool.NewEngine("fake-1", "fake", 1000, 1000,
		func(ctx context.Context, query string, limit int) ([]searchpool.Result, error) {
			if engineCalls != nil {
				engineCalls.Add(1)
			}
			return results, nil
		})
	pool := searchpool.New(searchpool.Config{}, gov, engine)
	cache := querycache.NewMemory(time.Hour)
	registry := platform.NewRegistry(platform.NewTakeaway("pizza"), platform.NewUberEats("pizza"))
	gate := quality.NewGate(st, config.QualityConfig{MinSourceSamples: 10, SourceSuccessFloor: 0.15, SourceErrorCeiling: 0.40})
	catalog := strategy.NewCatalog(st, testDiscoveryConfig())

	agent := NewAgent(st, gate, catalog, pool, cache, registry, testDiscoveryConfig(), 7*24*time.Hour)
	return agent, cache
}

func seedStrategy(st *mockStore, platform model.Platform, country string) {
	st.addStrategy(model.Strategy{
		ID:            "s1",
		QueryTemplate: "{product} delivery",
		Platform:      platform,
		Country:       country,
		Tier:          1,
		Origin:        model.OriginSeed,
		Active:        true,
	})
}

func TestRunProducesCandidates(t *testing.T) {
	st := newMockStore()
	seedStrategy(st, model.PlatformTakeaway, "DE")

	agent, _ := buildAgent(st, []searchpool.Result{
		{Title: "Pizzeria Roma | Lieferando.de", URL: "https://www.lieferando.de/speisekarte/roma"},
		{Title: "Kebap Haus | Lieferando.de", URL: "https://www.lieferando.de/speisekarte/kebap-haus"},
	}, nil)

	run, err := agent.Run(context.Background(), RunParams{
		Product:   "pizza",
		Platforms: []model.Platform{model.PlatformTakeaway},
		Countries: []string{"DE"},
	})
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.Equal(t, 1, run.Counters.QueriesExecuted)
	assert.Equal(t, 2, run.Counters.CandidatesFound)
	require.Len(t, st.inserted, 2)
	assert.Equal(t, "Pizzeria Roma", st.inserted[0].Name)
	assert.Equal(t, "DE", st.inserted[0].Country)
	assert.Equal(t, "s1", st.inserted[0].StrategyID)
}

func TestRunFailsOnBadConfiguration(t *testing.T) {
	st := newMockStore()
	agent, _ := buildAgent(st, nil, nil)

	_, err := agent.Run(context.Background(), RunParams{})
	require.Error(t, err)
	assert.Contains(t, st.failedWith, "product")

	_, err = agent.Run(context.Background(), RunParams{
		Product:   "pizza",
		Platforms: []model.Platform{"doordash"},
	})
	require.Error(t, err)
}

func TestSecondRunHitsCacheAndDedupes(t *testing.T) {
	st := newMockStore()
	seedStrategy(st, model.PlatformTakeaway, "DE")

	var calls atomic.Int64
	agent, _ := buildAgent(st, []searchpool.Result{
		{Title: "Pizzeria Roma | Lieferando.de", URL: "https://www.lieferando.de/speisekarte/roma"},
	}, &calls)

	params := RunParams{
		Product:   "pizza",
		Platforms: []model.Platform{model.PlatformTakeaway},
		Countries: []string{"DE"},
	}

	run1, err := agent.Run(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, 1, run1.Counters.CandidatesFound)

	run2, err := agent.Run(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, int64(1), calls.Load(), "second run must not hit the engine")
	assert.Equal(t, 1, run2.Counters.QueriesCached)
	assert.Equal(t, 0, run2.Counters.CandidatesFound)
	assert.Equal(t, 1, run2.Counters.Duplicates)
}

func TestURLCountryOverridesRunCountry(t *testing.T) {
	st := newMockStore()
	seedStrategy(st, model.PlatformTakeaway, "DE")

	// The DE run surfaces a Polish venue; its URL-derived country must be
	// preserved, never coerced to the run's country.
	agent, _ := buildAgent(st, []searchpool.Result{
		{Title: "Pizzeria Krakowska | Pyszne.pl", URL: "https://www.pyszne.pl/restauracja/krakowska"},
	}, nil)

	run, err := agent.Run(context.Background(), RunParams{
		Product:   "pizza",
		Platforms: []model.Platform{model.PlatformTakeaway},
		Countries: []string{"DE"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, run.Counters.CandidatesFound)
	require.Len(t, st.inserted, 1)
	assert.Equal(t, "PL", st.inserted[0].Country)
}

func TestBrandMisuseDropped(t *testing.T) {
	st := newMockStore()
	seedStrategy(st, model.PlatformTakeaway, "DE")

	agent, _ := buildAgent(st, []searchpool.Result{
		{Title: "Chio Style Imbiss | Lieferando.de", URL: "https://www.lieferando.de/speisekarte/chio-style"},
		{Title: "Echtes Chio Haus | Lieferando.de", URL: "https://www.lieferando.de/speisekarte/chio-haus"},
	}, nil)

	run, err := agent.Run(context.Background(), RunParams{
		Product:   "chips",
		Brand:     "Chio",
		Platforms: []model.Platform{model.PlatformTakeaway},
		Countries: []string{"DE"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, run.Counters.MisuseDropped)
	assert.Equal(t, 1, run.Counters.CandidatesFound)
	require.Len(t, st.inserted, 1)
	assert.Equal(t, "Echtes Chio Haus", st.inserted[0].Name)
}

func TestChainMatchAttachesChainID(t *testing.T) {
	st := newMockStore()
	seedStrategy(st, model.PlatformTakeaway, "DE")
	st.chains["Pizzeria Roma"] = &model.Chain{ID: "chain-7", Name: "Pizzeria Roma", Products: []string{"Margherita"}}

	agent, _ := buildAgent(st, []searchpool.Result{
		{Title: "Pizzeria Roma | Lieferando.de", URL: "https://www.lieferando.de/speisekarte/roma"},
	}, nil)

	run, err := agent.Run(context.Background(), RunParams{
		Product:   "pizza",
		Platforms: []model.Platform{model.PlatformTakeaway},
		Countries: []string{"DE"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, run.Counters.ChainMatches)
	require.Len(t, st.inserted, 1)
	assert.Equal(t, "chain-7", st.inserted[0].ChainID)
}

func TestUnhealthySourceExcluded(t *testing.T) {
	st := newMockStore()
	seedStrategy(st, model.PlatformTakeaway, "DE")
	// 10 samples, all false positives: the source is filtered out.
	for i := 0; i < 10; i++ {
		st.feedback = append(st.feedback, model.FeedbackRecord{
			Platform:   model.PlatformTakeaway,
			Country:    "DE",
			Result:     model.ResultFalsePositive,
			ReviewedAt: time.Now().UTC(),
		})
	}

	var calls atomic.Int64
	agent, _ := buildAgent(st, []searchpool.Result{
		{Title: "Pizzeria Roma | Lieferando.de", URL: "https://www.lieferando.de/speisekarte/roma"},
	}, &calls)

	run, err := agent.Run(context.Background(), RunParams{
		Product:   "pizza",
		Platforms: []model.Platform{model.PlatformTakeaway},
		Countries: []string{"DE"},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(0), calls.Load(), "excluded sources issue no queries")
	assert.Equal(t, 0, run.Counters.CandidatesFound)
}

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t,
		"https://www.lieferando.de/speisekarte/roma",
		NormalizeURL("HTTP://WWW.Lieferando.DE/speisekarte/roma/?utm=x#top"),
	)
	assert.Equal(t,
		NormalizeURL("https://www.lieferando.de/speisekarte/roma"),
		NormalizeURL("https://www.lieferando.de/speisekarte/roma/"),
	)
}

func TestBrandMisused(t *testing.T) {
	assert.True(t, BrandMisused("Chio Style Imbiss", "Chio"))
	assert.True(t, BrandMisused("chio-inspired snacks", "Chio"))
	assert.False(t, BrandMisused("Chio Haus", "Chio"))
	assert.False(t, BrandMisused("Pizza Style Imbiss", "Chio"))
	assert.False(t, BrandMisused("Anything", ""))
}
