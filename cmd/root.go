package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brandreach/menuscout/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "menuscout",
	Short: "Adaptive venue discovery and menu extraction pipeline",
	Long:  "Finds venues selling tracked products across food-delivery platforms, extracts their menus, and learns which search strategies work.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
