package searchpool

import (
	"context"
	"fmt"

	"github.com/brandreach/menuscout/internal/config"
	"github.com/brandreach/menuscout/pkg/brave"
	"github.com/brandreach/menuscout/pkg/serper"
)

// SerperEngine wraps a serper client as a pool engine.
func SerperEngine(id string, quota int, ratePerSecond float64, client serper.Client) *Engine {
	return NewEngine(id, "serper", quota, ratePerSecond, func(ctx context.Context, query string, limit int) ([]Result, error) {
		hits, err := client.Search(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		out := make([]Result, len(hits))
		for i, h := range hits {
			out[i] = Result{Title: h.Title, URL: h.URL, Snippet: h.Snippet}
		}
		return out, nil
	})
}

// BraveEngine wraps a Brave Search client as a pool engine.
func BraveEngine(id string, quota int, ratePerSecond float64, client brave.Client) *Engine {
	return NewEngine(id, "brave", quota, ratePerSecond, func(ctx context.Context, query string, limit int) ([]Result, error) {
		hits, err := client.Search(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		out := make([]Result, len(hits))
		for i, h := range hits {
			out[i] = Result{Title: h.Title, URL: h.URL, Snippet: h.Snippet}
		}
		return out, nil
	})
}

// FromConfig builds engines from configured credentials. Unknown providers
// are skipped; the caller validates that at least one engine exists before
// a run starts.
func FromConfig(cfg config.SearchConfig) []*Engine {
	var engines []*Engine
	for i, cred := range cfg.Engines {
		id := fmt.Sprintf("%s-%d", cred.Provider, i+1)
		switch cred.Provider {
		case "serper":
			engines = append(engines, SerperEngine(id, cred.DailyFreeQuota, cfg.RatePerSecond, serper.NewClient(cred.Key)))
		case "brave":
			engines = append(engines, BraveEngine(id, cred.DailyFreeQuota, cfg.RatePerSecond, brave.NewClient(cred.Key)))
		}
	}
	return engines
}
