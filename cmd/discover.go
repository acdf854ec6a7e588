package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/brandreach/menuscout/internal/budget"
	"github.com/brandreach/menuscout/internal/discovery"
	"github.com/brandreach/menuscout/internal/model"
	"github.com/brandreach/menuscout/internal/quality"
	"github.com/brandreach/menuscout/internal/strategy"
)

var (
	discoverProduct   string
	discoverBrand     string
	discoverCity      string
	discoverPlatforms []string
	discoverCountries []string
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run venue discovery across configured platforms",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		cache, err := openCache()
		if err != nil {
			return err
		}

		gov := budget.NewGovernor(st, cfg.Budget)
		pool, err := buildSearchPool(gov)
		if err != nil {
			return err
		}

		registry := buildRegistry()
		gate := quality.NewGate(st, cfg.Quality)
		catalog := strategy.NewCatalog(st, cfg.Discovery)
		window := time.Duration(cfg.Quality.WindowDays) * 24 * time.Hour

		agent := discovery.NewAgent(st, gate, catalog, pool, cache, registry, cfg.Discovery, window)

		platforms := make([]model.Platform, 0, len(discoverPlatforms))
		for _, p := range discoverPlatforms {
			platforms = append(platforms, model.Platform(p))
		}

		run, err := agent.Run(ctx, discovery.RunParams{
			Product:   discoverProduct,
			Brand:     discoverBrand,
			City:      discoverCity,
			Platforms: platforms,
			Countries: discoverCountries,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func init() {
	discoverCmd.Flags().StringVar(&discoverProduct, "product", "", "product term for query templates (required)")
	discoverCmd.Flags().StringVar(&discoverBrand, "brand", "", "protected brand name for the misuse heuristic (defaults to --product)")
	discoverCmd.Flags().StringVar(&discoverCity, "city", "", "optional city to narrow queries")
	discoverCmd.Flags().StringSliceVar(&discoverPlatforms, "platform", nil, "restrict to platforms (uber_eats, takeaway)")
	discoverCmd.Flags().StringSliceVar(&discoverCountries, "country", nil, "restrict to ISO country codes")
	_ = discoverCmd.MarkFlagRequired("product")
	rootCmd.AddCommand(discoverCmd)
}
