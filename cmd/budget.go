package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/brandreach/menuscout/internal/budget"
	"github.com/brandreach/menuscout/internal/model"
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Inspect and maintain spend counters",
}

var budgetStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show today's spend and the month-to-date total",
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

		gov := budget.NewGovernor(st, cfg.Budget)
		day, monthTotal, err := gov.Status(ctx)
		if err != nil {
			return err
		}
		throttled, reason, err := gov.IsThrottled(ctx)
		if err != nil {
			return err
		}

		out := struct {
			Today         *model.BudgetDay `json:"today"`
			MonthTotalUSD float64          `json:"month_total_usd"`
			Throttled     bool             `json:"throttled"`
			Reason        string           `json:"reason,omitempty"`
		}{day, monthTotal, throttled, reason}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

var budgetPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete budget history past the retention window",
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

		gov := budget.NewGovernor(st, cfg.Budget)
		n, err := gov.Purge(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("purged %d day(s)\n", n)
		return nil
	},
}

func init() {
	budgetCmd.AddCommand(budgetStatusCmd)
	budgetCmd.AddCommand(budgetPurgeCmd)
	rootCmd.AddCommand(budgetCmd)
}
