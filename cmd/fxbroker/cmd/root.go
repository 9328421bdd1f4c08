package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fxbroker",
	Short: "A leveraged FX broker simulation engine",
	Long: `Fxbroker is a broker-side FX trading simulator written in Go.

It provides tools for:
  - Validating and executing leveraged market orders
  - Simulating execution quality (spread, slippage, delay, requotes)
  - Position lifecycle management with stop-loss and take-profit
  - Margin-call and stop-out enforcement
  - Overnight swap settlement
  - Journaling trades and equity curves to CSV or SQLite

Complete documentation is available at https://github.com/rustyeddy/fxbroker`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
