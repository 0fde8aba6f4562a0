package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"StratLab/internal/domain/models"
	"StratLab/internal/services/diagnostics"
)

type heatmapOptions struct {
	inputOptions
	resultPath string
	dimension  string
}

func newHeatmapCmd(root *rootOptions) *cobra.Command {
	opts := &heatmapOptions{}
	cmd := &cobra.Command{
		Use:   "heatmap",
		Short: "Print win rate by hour, weekday or entry condition strength",
		Long: `heatmap buckets the trades of a run. The run is either read from a
result written by "backtest run --json" or executed from --strategy and --bars.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var res *models.StrategyResult
			if opts.resultPath != "" {
				r, err := loadResult(opts.resultPath)
				if err != nil {
					return err
				}
				res = r
			} else {
				if opts.strategyPath == "" || opts.barsPath == "" {
					return fmt.Errorf("either --result or both --strategy and --bars are required")
				}
				l, err := root.logger()
				if err != nil {
					return err
				}
				if res, err = opts.execute(cmd.Context(), l); err != nil {
					return err
				}
			}
			hm, err := diagnostics.BuildHeatmap(res.Trades, models.HeatmapDimension(opts.dimension))
			if err != nil {
				return err
			}
			return printHeatmap(cmd.OutOrStdout(), hm)
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&opts.resultPath, "result", "", "Result JSON written by run --json")
	cmd.Flags().StringVar(&opts.dimension, "dimension", "hour", "Bucket by: hour, day or condition")
	return cmd
}

func loadResult(path string) (*models.StrategyResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read result: %w", err)
	}
	var res models.StrategyResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("parse result %s: %w", path, err)
	}
	return &res, nil
}

func printHeatmap(w io.Writer, hm *models.Heatmap) error {
	if hm.Condition != "" {
		fmt.Fprintf(w, "Condition: %s\n", hm.Condition)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "bucket\ttrades\twins\twin rate\ttotal pnl\tavg pnl\t")
	for _, c := range hm.Cells {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.1f%%\t%.2f\t%.2f\t\n", c.Label, c.Trades, c.Wins, c.WinRate*100, c.TotalPnl, c.AvgPnl)
	}
	return tw.Flush()
}
