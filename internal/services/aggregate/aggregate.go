// Package aggregate reduces a trade log into run-level statistics.
package aggregate

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"StratLab/internal/domain/models"
)

// TradingDaysPerYear is the annualization base for SharpeRatio.
// Each trade is treated as one period, so the ratio is mean/stdev scaled by sqrt(252).
const TradingDaysPerYear = 252

var SharpeAnnualization = math.Sqrt(TradingDaysPerYear)

// Meta identifies the run an aggregate belongs to.
type Meta struct {
	RunID        string
	StrategyID   string
	StrategyName string
	Symbol       string
	Direction    models.Direction
	Timeframe    string
	Start        time.Time
	End          time.Time
	BarsScanned  int
	CreatedAt    time.Time
}

// Build creates the immutable StrategyResult for trades, which must be in close order.
func Build(meta Meta, trades []models.TradeResult, failures []models.FailureRecord) *models.StrategyResult {
	if trades == nil {
		trades = []models.TradeResult{}
	}
	if failures == nil {
		failures = []models.FailureRecord{}
	}
	res := &models.StrategyResult{
		RunID:         meta.RunID,
		StrategyID:    meta.StrategyID,
		StrategyName:  meta.StrategyName,
		Symbol:        meta.Symbol,
		Direction:     meta.Direction,
		Timeframe:     meta.Timeframe,
		TotalTrades:   len(trades),
		BacktestStart: meta.Start,
		BacktestEnd:   meta.End,
		BarsScanned:   meta.BarsScanned,
		Trades:        trades,
		Failures:      failures,
		CreatedAt:     meta.CreatedAt,
	}
	for _, t := range trades {
		res.TotalPnl += t.Pnl
		switch t.Result {
		case models.OutcomeWin:
			res.Wins++
		case models.OutcomeLoss:
			res.Losses++
		case models.OutcomeTimeout:
			res.Timeouts++
		}
	}
	res.TotalPnl = round2(res.TotalPnl)
	res.WinRate = WinRate(trades)
	res.AvgWin, res.AvgLoss = AvgWinLoss(trades)
	res.MaxDrawdown = MaxDrawdown(trades)
	res.ProfitFactor = ProfitFactor(trades)
	res.SharpeRatio = SharpeRatio(trades)
	return res
}

// WinRate is wins over total trades, 0 for an empty log.
func WinRate(trades []models.TradeResult) float64 {
	if len(trades) == 0 {
		return 0
	}
	wins := 0
	for _, t := range trades {
		if t.Result == models.OutcomeWin {
			wins++
		}
	}
	return float64(wins) / float64(len(trades))
}

// ProfitFactor is gross profit over gross loss, nil when nothing lost money.
func ProfitFactor(trades []models.TradeResult) *float64 {
	var gain, loss float64
	for _, t := range trades {
		if t.Pnl > 0 {
			gain += t.Pnl
		} else if t.Pnl < 0 {
			loss -= t.Pnl
		}
	}
	if loss == 0 {
		return nil
	}
	pf := gain / loss
	return &pf
}

// AvgWinLoss averages pnl over trades classified win and loss. Each is 0 when its subset is empty.
func AvgWinLoss(trades []models.TradeResult) (avgWin, avgLoss float64) {
	var sumW, sumL float64
	var nW, nL int
	for _, t := range trades {
		switch t.Result {
		case models.OutcomeWin:
			sumW += t.Pnl
			nW++
		case models.OutcomeLoss:
			sumL += t.Pnl
			nL++
		}
	}
	if nW > 0 {
		avgWin = round2(sumW / float64(nW))
	}
	if nL > 0 {
		avgLoss = round2(sumL / float64(nL))
	}
	return
}

// MaxDrawdown is the largest peak-to-trough fall of cumulative pnl, starting from a flat equity of 0.
func MaxDrawdown(trades []models.TradeResult) float64 {
	var equity, peak, dd float64
	for _, t := range trades {
		equity += t.Pnl
		if equity > peak {
			peak = equity
		}
		if d := peak - equity; d > dd {
			dd = d
		}
	}
	return round2(dd)
}

// SharpeRatio is mean/sample-stdev of per-trade pnl times SharpeAnnualization.
// It is 0 with fewer than two trades or zero dispersion.
func SharpeRatio(trades []models.TradeResult) float64 {
	if len(trades) < 2 {
		return 0
	}
	pnl := make([]float64, len(trades))
	for i, t := range trades {
		pnl[i] = t.Pnl
	}
	mean, std := stat.MeanStdDev(pnl, nil)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return mean / std * SharpeAnnualization
}

// EquityCurve returns cumulative pnl after each trade.
func EquityCurve(trades []models.TradeResult) []float64 {
	out := make([]float64, len(trades))
	var equity float64
	for i, t := range trades {
		equity += t.Pnl
		out[i] = round2(equity)
	}
	return out
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
