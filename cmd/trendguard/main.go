package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "trendguard",
	Short: "TrendGuard - trend following backtester and parameter optimizer",
	Long: `TrendGuard simulates a long/short trend following strategy on hourly bars.
It runs single backtests, grid searches over the strategy parameters and
downloads exchange history for offline research.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
