package models

import "time"

type ExitReason string

const (
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
	ExitSignal     ExitReason = "exit_signal"
	ExitMaxBars    ExitReason = "max_bars"
	ExitEndOfData  ExitReason = "end_of_data"
)

// IsTimeout reports whether the position was closed by the clock rather than by price or signal.
func (r ExitReason) IsTimeout() bool {
	return r == ExitMaxBars || r == ExitEndOfData
}

type Outcome string

const (
	OutcomeWin     Outcome = "win"
	OutcomeLoss    Outcome = "loss"
	OutcomeTimeout Outcome = "timeout"
)

// ConditionSnapshot records how an entry condition stood on the signal bar.
type ConditionSnapshot struct {
	Expression string  `json:"expression"`
	Left       float64 `json:"left"`
	Right      float64 `json:"right"`
	// Margin is (left-right) normalized by |right| when right is non-zero.
	Margin float64 `json:"margin"`
}

type TradeResult struct {
	Index           int                 `json:"index"`
	EntryTime       time.Time           `json:"entry_time"`
	ExitTime        time.Time           `json:"exit_time"`
	EntryPrice      float64             `json:"entry_price"`
	ExitPrice       float64             `json:"exit_price"`
	StopPrice       float64             `json:"stop_price"`
	TargetPrice     float64             `json:"target_price"`
	Contracts       int                 `json:"contracts"`
	Pnl             float64             `json:"pnl"`
	Result          Outcome             `json:"result"`
	ExitReason      ExitReason          `json:"exit_reason"`
	BarsHeld        int                 `json:"bars_held"`
	MAE             float64             `json:"mae"`
	MFE             float64             `json:"mfe"`
	BarsToMFE       int                 `json:"bars_to_mfe"`
	EntryQuality    float64             `json:"entry_quality"`
	ExitQuality     float64             `json:"exit_quality"`
	RiskRewardRatio float64             `json:"risk_reward_ratio"`
	EntrySignals    []ConditionSnapshot `json:"entry_signals,omitempty"`
}

// StrategyResult is the aggregate of one backtest run.
type StrategyResult struct {
	RunID         string          `json:"run_id"`
	StrategyID    string          `json:"strategy_id"`
	StrategyName  string          `json:"strategy_name"`
	Symbol        string          `json:"symbol"`
	Direction     Direction       `json:"direction"`
	Timeframe     string          `json:"timeframe"`
	TotalTrades   int             `json:"total_trades"`
	Wins          int             `json:"wins"`
	Losses        int             `json:"losses"`
	Timeouts      int             `json:"timeouts"`
	WinRate       float64         `json:"win_rate"`
	TotalPnl      float64         `json:"total_pnl"`
	AvgWin        float64         `json:"avg_win"`
	AvgLoss       float64         `json:"avg_loss"`
	MaxDrawdown   float64         `json:"max_drawdown"`
	ProfitFactor  *float64        `json:"profit_factor"`
	SharpeRatio   float64         `json:"sharpe_ratio"`
	BacktestStart time.Time       `json:"backtest_start"`
	BacktestEnd   time.Time       `json:"backtest_end"`
	BarsScanned   int             `json:"bars_scanned"`
	Trades        []TradeResult   `json:"trades"`
	Failures      []FailureRecord `json:"failures,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
