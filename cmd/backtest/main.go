package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	applogger "StratLab/pkg/logger"
)

type rootOptions struct {
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "backtest",
		Short: "Run strategy backtests against bar exports without the service",
		Long: `backtest runs the same scan and aggregation as the StratLab service over
a CSV export of minute bars. Results stay in memory.

Example usage:
  backtest run --strategy orb.yaml --bars es_2024.csv
  backtest run --strategy orb.json --bars es_2024.csv --trades-out trades.csv
  backtest heatmap --strategy orb.yaml --bars es_2024.csv --dimension day`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	root.AddCommand(newRunCmd(opts), newHeatmapCmd(opts))
	return root
}

func (o *rootOptions) logger() (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{Level: o.logLevel, Format: "console", Output: "stderr"})
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
