package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/brandreach/menuscout/internal/extraction"
)

var (
	extractRunID string
	extractLimit int
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract menus from a discovery run's candidates",
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

		browser, err := extraction.NewChromeBrowser(cfg.Extraction)
		if err != nil {
			return err
		}
		defer browser.Close()

		agent := extraction.NewAgent(st, buildRegistry(), browser)
		run, err := agent.Run(ctx, extractRunID, extractLimit)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractRunID, "run", "", "discovery run id to extract (required)")
	extractCmd.Flags().IntVar(&extractLimit, "limit", 0, "max venues to process (0 = all)")
	_ = extractCmd.MarkFlagRequired("run")
	rootCmd.AddCommand(extractCmd)
}
