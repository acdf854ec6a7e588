package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/brandreach/menuscout/internal/quality"
)

var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Run one learning cycle over the feedback window",
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

		loop := quality.NewLearningLoop(st, cfg.Quality)
		res, err := loop.RunCycle(ctx)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show per-source health over the feedback window",
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

		gate := quality.NewGate(st, cfg.Quality)
		since := time.Now().AddDate(0, 0, -cfg.Quality.WindowDays)
		health, err := gate.SourceHealth(ctx, since)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(health)
	},
}

func init() {
	rootCmd.AddCommand(learnCmd)
	rootCmd.AddCommand(healthCmd)
}
