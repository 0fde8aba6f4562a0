package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"StratLab/internal/domain/models"
	domrepo "StratLab/internal/domain/repository"
	pkgch "StratLab/pkg/clickhouse"
	applogger "StratLab/pkg/logger"
)

const (
	runsTable   = "backtest_runs"
	tradesTable = "backtest_trades"
)

var runColumns = []string{
	"run_id", "strategy_id", "strategy_name", "symbol", "direction", "timeframe",
	"total_trades", "wins", "losses", "timeouts", "win_rate", "total_pnl",
	"avg_win", "avg_loss", "max_drawdown", "profit_factor", "sharpe_ratio",
	"backtest_start", "backtest_end", "bars_scanned", "failures", "created_at",
}

var tradeColumns = []string{
	"run_id", "idx", "entry_time", "exit_time", "entry_price", "exit_price",
	"stop_price", "target_price", "contracts", "pnl", "result", "exit_reason",
	"bars_held", "mae", "mfe", "bars_to_mfe", "entry_quality", "exit_quality",
	"risk_reward", "entry_signals",
}

// CHResultStore persists run summaries and trade lists in two ClickHouse tables.
type CHResultStore struct {
	db *sql.DB
	l  *applogger.Logger
}

var _ domrepo.ResultStore = (*CHResultStore)(nil)

func NewCHResultStore(ch *pkgch.Client, l *applogger.Logger) *CHResultStore {
	if l == nil {
		l = applogger.NewNop()
	}
	return &CHResultStore{db: ch.DB(), l: l}
}

// ResultSchema is the DDL for the result tables.
func ResultSchema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + runsTable + ` (
    run_id String,
    strategy_id String,
    strategy_name String,
    symbol LowCardinality(String),
    direction LowCardinality(String),
    timeframe LowCardinality(String),
    total_trades UInt32,
    wins UInt32,
    losses UInt32,
    timeouts UInt32,
    win_rate Float64,
    total_pnl Float64,
    avg_win Float64,
    avg_loss Float64,
    max_drawdown Float64,
    profit_factor Nullable(Float64),
    sharpe_ratio Float64,
    backtest_start DateTime64(3, 'UTC'),
    backtest_end DateTime64(3, 'UTC'),
    bars_scanned UInt32,
    failures String,
    created_at DateTime64(3, 'UTC')
) ENGINE = ReplacingMergeTree(created_at)
ORDER BY run_id`,
		`CREATE TABLE IF NOT EXISTS ` + tradesTable + ` (
    run_id String,
    idx UInt32,
    entry_time DateTime64(3, 'UTC'),
    exit_time DateTime64(3, 'UTC'),
    entry_price Float64,
    exit_price Float64,
    stop_price Float64,
    target_price Float64,
    contracts UInt32,
    pnl Float64,
    result LowCardinality(String),
    exit_reason LowCardinality(String),
    bars_held UInt32,
    mae Float64,
    mfe Float64,
    bars_to_mfe UInt32,
    entry_quality Float64,
    exit_quality Float64,
    risk_reward Float64,
    entry_signals String
) ENGINE = ReplacingMergeTree
ORDER BY (run_id, idx)`,
	}
}

func (s *CHResultStore) Init(ctx context.Context) error {
	for i, stmt := range ResultSchema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("result schema statement %d: %w", i, err)
		}
	}
	return nil
}

// Save writes the trades before the run row so a visible run always has its trades.
func (s *CHResultStore) Save(ctx context.Context, res *models.StrategyResult) error {
	start := time.Now()
	const chunkSize = 1000
	for lo := 0; lo < len(res.Trades); lo += chunkSize {
		hi := lo + chunkSize
		if hi > len(res.Trades) {
			hi = len(res.Trades)
		}
		chunk := res.Trades[lo:hi]
		var encErr error
		q, args := multiRowInsert(tradesTable, tradeColumns, len(chunk), func(i int) []interface{} {
			t := chunk[i]
			signals, err := json.Marshal(t.EntrySignals)
			if err != nil {
				encErr = err
			}
			return []interface{}{
				res.RunID, t.Index, t.EntryTime.UTC(), t.ExitTime.UTC(), t.EntryPrice, t.ExitPrice,
				t.StopPrice, t.TargetPrice, t.Contracts, t.Pnl, string(t.Result), string(t.ExitReason),
				t.BarsHeld, t.MAE, t.MFE, t.BarsToMFE, t.EntryQuality, t.ExitQuality,
				t.RiskRewardRatio, string(signals),
			}
		})
		if encErr != nil {
			return fmt.Errorf("encode entry signals: %w", encErr)
		}
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert trades: %w", err)
		}
	}

	failures, err := json.Marshal(res.Failures)
	if err != nil {
		return fmt.Errorf("encode failures: %w", err)
	}
	var pf interface{}
	if res.ProfitFactor != nil {
		pf = *res.ProfitFactor
	}
	q, args := multiRowInsert(runsTable, runColumns, 1, func(int) []interface{} {
		return []interface{}{
			res.RunID, res.StrategyID, res.StrategyName, res.Symbol, string(res.Direction), res.Timeframe,
			res.TotalTrades, res.Wins, res.Losses, res.Timeouts, res.WinRate, res.TotalPnl,
			res.AvgWin, res.AvgLoss, res.MaxDrawdown, pf, res.SharpeRatio,
			res.BacktestStart.UTC(), res.BacktestEnd.UTC(), res.BarsScanned, string(failures), res.CreatedAt.UTC(),
		}
	})
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	s.l.Debug("clickhouse save_result ok",
		applogger.String("run_id", res.RunID),
		applogger.Int("trades", len(res.Trades)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

// Get loads a run and its trades ordered by index.
func (s *CHResultStore) Get(ctx context.Context, runID string) (*models.StrategyResult, error) {
	q := fmt.Sprintf("SELECT %s FROM %s FINAL WHERE run_id = ? LIMIT 1", joinCols(runColumns), runsTable)
	var (
		res       models.StrategyResult
		direction string
		pf        sql.NullFloat64
		failures  string
	)
	err := s.db.QueryRowContext(ctx, q, runID).Scan(
		&res.RunID, &res.StrategyID, &res.StrategyName, &res.Symbol, &direction, &res.Timeframe,
		&res.TotalTrades, &res.Wins, &res.Losses, &res.Timeouts, &res.WinRate, &res.TotalPnl,
		&res.AvgWin, &res.AvgLoss, &res.MaxDrawdown, &pf, &res.SharpeRatio,
		&res.BacktestStart, &res.BacktestEnd, &res.BarsScanned, &failures, &res.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	res.Direction = models.Direction(direction)
	if pf.Valid {
		v := pf.Float64
		res.ProfitFactor = &v
	}
	if failures != "" && failures != "null" {
		if err := json.Unmarshal([]byte(failures), &res.Failures); err != nil {
			return nil, fmt.Errorf("decode failures: %w", err)
		}
	}
	res.BacktestStart = res.BacktestStart.UTC()
	res.BacktestEnd = res.BacktestEnd.UTC()
	res.CreatedAt = res.CreatedAt.UTC()

	trades, err := s.trades(ctx, runID)
	if err != nil {
		return nil, err
	}
	res.Trades = trades
	return &res, nil
}

func (s *CHResultStore) trades(ctx context.Context, runID string) ([]models.TradeResult, error) {
	q := fmt.Sprintf("SELECT %s FROM %s FINAL WHERE run_id = ? ORDER BY idx ASC", joinCols(tradeColumns[1:]), tradesTable)
	rows, err := s.db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("get trades: %w", err)
	}
	defer rows.Close()

	out := make([]models.TradeResult, 0, 64)
	for rows.Next() {
		var (
			t              models.TradeResult
			result, reason string
			signals        string
		)
		if err := rows.Scan(&t.Index, &t.EntryTime, &t.ExitTime, &t.EntryPrice, &t.ExitPrice,
			&t.StopPrice, &t.TargetPrice, &t.Contracts, &t.Pnl, &result, &reason,
			&t.BarsHeld, &t.MAE, &t.MFE, &t.BarsToMFE, &t.EntryQuality, &t.ExitQuality,
			&t.RiskRewardRatio, &signals); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Result = models.Outcome(result)
		t.ExitReason = models.ExitReason(reason)
		t.EntryTime = t.EntryTime.UTC()
		t.ExitTime = t.ExitTime.UTC()
		if signals != "" && signals != "null" {
			if err := json.Unmarshal([]byte(signals), &t.EntrySignals); err != nil {
				return nil, fmt.Errorf("decode entry signals: %w", err)
			}
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *CHResultStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to pkg/clickhouse.Client.
func (s *CHResultStore) Close() error { return nil }
