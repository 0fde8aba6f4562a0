package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StratLab/internal/domain/models"
)

func trades(pnls ...float64) []models.TradeResult {
	out := make([]models.TradeResult, len(pnls))
	for i, p := range pnls {
		res := models.OutcomeLoss
		if p > 0 {
			res = models.OutcomeWin
		}
		out[i] = models.TradeResult{Index: i, Pnl: p, Result: res, ExitReason: models.ExitTakeProfit}
	}
	return out
}

func TestProfitFactor(t *testing.T) {
	pf := ProfitFactor(trades(100, 50, -30, -20))
	require.NotNil(t, pf)
	assert.InDelta(t, 3.0, *pf, 1e-12)

	assert.Nil(t, ProfitFactor(trades(100, 50)))
	assert.Nil(t, ProfitFactor(nil))
}

func TestEmptyLog(t *testing.T) {
	res := Build(Meta{RunID: "r1"}, nil, nil)
	assert.Equal(t, 0, res.TotalTrades)
	assert.Equal(t, 0.0, res.WinRate)
	assert.Nil(t, res.ProfitFactor)
	assert.Equal(t, 0.0, res.MaxDrawdown)
	assert.Equal(t, 0.0, res.SharpeRatio)
	assert.Equal(t, 0.0, res.AvgWin)
	assert.Equal(t, 0.0, res.AvgLoss)
	assert.NotNil(t, res.Trades)
}

func TestMaxDrawdown(t *testing.T) {
	// equity: 100, 50, 120, 20, 60 -> peak 120, trough 20
	assert.Equal(t, 100.0, MaxDrawdown(trades(100, -50, 70, -100, 40)))
	// a losing start draws down from the initial flat equity
	assert.Equal(t, 30.0, MaxDrawdown(trades(-10, -20, 5)))
	assert.Equal(t, 0.0, MaxDrawdown(trades(10, 20)))
}

func TestSharpeRatio_KnownInputs(t *testing.T) {
	// mean 100/3, sample stdev sqrt(17500/3); ratio * sqrt(252) = 4*sqrt(3)
	assert.InDelta(t, 6.928203230275509, SharpeRatio(trades(100, -50, 50)), 1e-9)
	assert.Equal(t, 0.0, SharpeRatio(trades(100)))
	assert.Equal(t, 0.0, SharpeRatio(trades(25, 25, 25)))
}

func TestBuild(t *testing.T) {
	log := trades(100, 50, -30, -20)
	log = append(log, models.TradeResult{Index: 4, Pnl: 5, Result: models.OutcomeTimeout, ExitReason: models.ExitMaxBars})

	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	res := Build(Meta{RunID: "r1", Symbol: "ES", Start: start, End: start.Add(24 * time.Hour)}, log, nil)

	assert.Equal(t, 5, res.TotalTrades)
	assert.Equal(t, 2, res.Wins)
	assert.Equal(t, 2, res.Losses)
	assert.Equal(t, 1, res.Timeouts)
	assert.InDelta(t, 0.4, res.WinRate, 1e-12)
	assert.Equal(t, 105.0, res.TotalPnl)
	assert.Equal(t, 75.0, res.AvgWin)
	assert.Equal(t, -25.0, res.AvgLoss)
	assert.Equal(t, 50.0, res.MaxDrawdown)
	require.NotNil(t, res.ProfitFactor)
	assert.InDelta(t, 155.0/50.0, *res.ProfitFactor, 1e-12)
	assert.Equal(t, start, res.BacktestStart)
}

func TestEquityCurve(t *testing.T) {
	assert.Equal(t, []float64{10, 5, 25}, EquityCurve(trades(10, -5, 20)))
}
