package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tradecal/internal/bootstrap"
	"tradecal/internal/config"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "tradecal",
	Short: "Trading calendar and point-in-time price lookups",
	Long: `Tradecal builds the session calendar of an exchange with a midday recess
from a reference list of trading days, and answers price queries against it.

Sessions, holidays and the minute grid come from the calendar section of the
config file. Prices are read from the local bundle written by bundle-ingest.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	defaultPath := "config/tradecal.yaml"
	if p := os.Getenv("TRADECAL_CONFIG"); p != "" {
		defaultPath = p
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defaultPath, "config file (empty for built-in defaults)")
}

// openApp loads the config and builds the calendar, stores and resolver.
// Logs go to stderr so command output stays clean.
func openApp(ctx context.Context) (*bootstrap.App, error) {
	path := cfgPath
	if !rootCmd.PersistentFlags().Changed("config") {
		// A missing default file means built-in defaults plus env overrides.
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	log := bootstrap.Logger(cfg, os.Stderr)
	return bootstrap.Open(ctx, cfg, log)
}
