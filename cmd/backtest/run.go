package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"StratLab/internal/domain/models"
	"StratLab/internal/repository"
	"StratLab/internal/service/errortrack"
	"StratLab/internal/usecase"
	applogger "StratLab/pkg/logger"
	"StratLab/pkg/util"
)

// inputOptions locate the strategy and the bars a run reads.
type inputOptions struct {
	strategyPath string
	barsPath     string
	symbol       string
	from         string
	to           string
	fillPolicy   string
}

func (o *inputOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.strategyPath, "strategy", "", "Strategy file (.json, .yaml or .yml)")
	cmd.Flags().StringVar(&o.barsPath, "bars", "", "CSV export of minute bars")
	cmd.Flags().StringVar(&o.symbol, "symbol", "", "Override the strategy symbol")
	cmd.Flags().StringVar(&o.from, "from", "", "Range start; defaults to the first bar")
	cmd.Flags().StringVar(&o.to, "to", "", "Range end; defaults to the last bar")
	cmd.Flags().StringVar(&o.fillPolicy, "fill-policy", "close", "Entry fill: close or next_open")
}

type runOptions struct {
	inputOptions
	tradesOut string
	asJSON    bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one backtest and print its summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := root.logger()
			if err != nil {
				return err
			}
			res, err := opts.execute(cmd.Context(), l)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else if err := printSummary(out, res); err != nil {
				return err
			}
			if opts.tradesOut != "" {
				return writeTradesFile(opts.tradesOut, res.Trades)
			}
			return nil
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&opts.tradesOut, "trades-out", "", "Write the trade list as CSV to this path")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the full result as JSON")
	_ = cmd.MarkFlagRequired("strategy")
	_ = cmd.MarkFlagRequired("bars")
	return cmd
}

// execute loads the inputs and runs them through the same runner the service uses.
func (o *inputOptions) execute(ctx context.Context, l *applogger.Logger) (*models.StrategyResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	strat, err := loadStrategy(o.strategyPath)
	if err != nil {
		return nil, err
	}
	if o.symbol != "" {
		strat.Symbol = o.symbol
	}
	strat.Symbol = util.NormalizeSymbol(strat.Symbol)

	f, err := os.Open(o.barsPath)
	if err != nil {
		return nil, fmt.Errorf("open bars: %w", err)
	}
	defer f.Close()
	bars, err := ReadBars(f, strat.Symbol)
	if err != nil {
		return nil, fmt.Errorf("read bars %s: %w", o.barsPath, err)
	}
	store := repository.NewMemoryBarStore(bars)

	first, last, ok := store.Range(strat.Symbol)
	if !ok {
		return nil, fmt.Errorf("no bars for %s in %s", strat.Symbol, o.barsPath)
	}
	from, to := first, last
	if o.from != "" {
		if from, ok = util.ParseTime(o.from); !ok {
			return nil, fmt.Errorf("bad --from %q", o.from)
		}
	}
	if o.to != "" {
		if to, ok = util.ParseTime(o.to); !ok {
			return nil, fmt.Errorf("bad --to %q", o.to)
		}
	}
	if to.Before(from) {
		return nil, fmt.Errorf("--to %s is before --from %s", to.Format(time.RFC3339), from.Format(time.RFC3339))
	}

	sink, err := usecase.NewResultSink(usecase.BackendMemory, repository.NewMemoryResultStore(), nil, nil, 0, nil)
	if err != nil {
		return nil, err
	}
	runner := usecase.NewBacktestRunner(store, sink, errortrack.New(l, nil, nil), nil, nil, l,
		usecase.RunnerConfig{FillPolicy: o.fillPolicy})
	return runner.Run(ctx, models.BacktestRequest{Strategy: strat, Start: from, End: to, FillPolicy: o.fillPolicy})
}

func loadStrategy(path string) (models.Strategy, error) {
	var st models.Strategy
	raw, err := os.ReadFile(path)
	if err != nil {
		return st, fmt.Errorf("read strategy: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &st)
	default:
		err = json.Unmarshal(raw, &st)
	}
	if err != nil {
		return st, fmt.Errorf("parse strategy %s: %w", path, err)
	}
	return st, nil
}

func printSummary(w io.Writer, res *models.StrategyResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	pf := "n/a"
	if res.ProfitFactor != nil {
		pf = fmt.Sprintf("%.2f", *res.ProfitFactor)
	}
	fmt.Fprintf(tw, "Run\t%s\n", res.RunID)
	fmt.Fprintf(tw, "Strategy\t%s (%s %s %s)\n", res.StrategyName, res.Symbol, res.Direction, res.Timeframe)
	fmt.Fprintf(tw, "Range\t%s .. %s (%d bars)\n",
		res.BacktestStart.Format(time.RFC3339), res.BacktestEnd.Format(time.RFC3339), res.BarsScanned)
	fmt.Fprintf(tw, "Trades\t%d (%d wins, %d losses, %d timeouts)\n", res.TotalTrades, res.Wins, res.Losses, res.Timeouts)
	fmt.Fprintf(tw, "Win rate\t%.1f%%\n", res.WinRate*100)
	fmt.Fprintf(tw, "Total P&L\t%.2f\n", res.TotalPnl)
	fmt.Fprintf(tw, "Avg win / loss\t%.2f / %.2f\n", res.AvgWin, res.AvgLoss)
	fmt.Fprintf(tw, "Max drawdown\t%.2f\n", res.MaxDrawdown)
	fmt.Fprintf(tw, "Profit factor\t%s\n", pf)
	fmt.Fprintf(tw, "Sharpe\t%.2f\n", res.SharpeRatio)
	for _, f := range res.Failures {
		fmt.Fprintf(tw, "Failure\t[%s] %s (x%d)\n", f.ErrorType, f.Message, f.Occurrences)
		if f.SuggestedFix != "" {
			fmt.Fprintf(tw, "\tfix: %s\n", f.SuggestedFix)
		}
	}
	return tw.Flush()
}

func writeTradesFile(path string, trades []models.TradeResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteTrades(f, trades); err != nil {
		_ = f.Close()
		return fmt.Errorf("write trades: %w", err)
	}
	return f.Close()
}
