package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/brandreach/menuscout/internal/budget"
	"github.com/brandreach/menuscout/internal/model"
	"github.com/brandreach/menuscout/internal/strategy"
)

var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "Manage the search-strategy catalog",
}

var seedFilePath string

var strategiesSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load strategy seeds from a YAML catalog",
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

		n, err := strategy.LoadSeeds(ctx, st, seedFilePath)
		if err != nil {
			return err
		}
		fmt.Printf("seeded %d strategies\n", n)
		return nil
	},
}

var (
	evolvePlatform string
	evolveCountry  string
	evolveMax      int
)

var strategiesEvolveCmd = &cobra.Command{
	Use:   "evolve",
	Short: "Generate new query templates for a source via the model",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cfg.Anthropic.Key == "" {
			return eris.New("anthropic key not configured")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		gov := budget.NewGovernor(st, cfg.Budget)
		evolver := strategy.NewEvolver(st, gov, cfg.Anthropic)
		created, err := evolver.Evolve(ctx, model.Platform(evolvePlatform), evolveCountry, cfg.Extraction.ProductFamily, evolveMax)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(created)
	},
}

var (
	listPlatform string
	listCountry  string
)

var strategiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active strategies for a source",
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

		strategies, err := st.ListActiveStrategies(ctx, model.Platform(listPlatform), listCountry)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(strategies)
	},
}

func init() {
	strategiesSeedCmd.Flags().StringVar(&seedFilePath, "file", "strategies.yaml", "seed catalog path")

	strategiesEvolveCmd.Flags().StringVar(&evolvePlatform, "platform", "", "platform (required)")
	strategiesEvolveCmd.Flags().StringVar(&evolveCountry, "country", "", "ISO country code (required)")
	strategiesEvolveCmd.Flags().IntVar(&evolveMax, "max", 3, "max new templates")
	_ = strategiesEvolveCmd.MarkFlagRequired("platform")
	_ = strategiesEvolveCmd.MarkFlagRequired("country")

	strategiesListCmd.Flags().StringVar(&listPlatform, "platform", "", "platform (required)")
	strategiesListCmd.Flags().StringVar(&listCountry, "country", "", "ISO country code (required)")
	_ = strategiesListCmd.MarkFlagRequired("platform")
	_ = strategiesListCmd.MarkFlagRequired("country")

	strategiesCmd.AddCommand(strategiesSeedCmd)
	strategiesCmd.AddCommand(strategiesEvolveCmd)
	strategiesCmd.AddCommand(strategiesListCmd)
	rootCmd.AddCommand(strategiesCmd)
}
