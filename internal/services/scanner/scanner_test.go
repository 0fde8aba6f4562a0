package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StratLab/internal/domain/models"
)

var t0 = time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)

func bar(i int, o, h, l, c float64) models.Bar {
	return models.Bar{
		Symbol:    "TEST",
		Timestamp: t0.Add(time.Duration(i) * time.Minute),
		Open:      o,
		High:      h,
		Low:       l,
		Close:     c,
		Volume:    1000,
	}
}

func flat(i int, c float64) models.Bar { return bar(i, c, c+0.5, c-0.5, c) }

func strategy(dir models.Direction, entry ...models.Condition) *models.Strategy {
	return &models.Strategy{
		ID:              "s1",
		Name:            "test",
		Direction:       dir,
		Symbol:          "TEST",
		EntryConditions: entry,
		StopLoss:        &models.RiskRule{Type: models.RiskPoints, Value: 5},
		TakeProfit:      &models.RiskRule{Type: models.RiskPoints, Value: 10},
	}
}

func closeAbove(v string) models.Condition {
	return models.Condition{Indicator: "close", Operator: models.OpGreater, Operand: v}
}

func runScan(t *testing.T, s *Scanner, strat *models.Strategy, bars []models.Bar) *Output {
	t.Helper()
	out, err := s.Run(context.Background(), strat, bars)
	require.NoError(t, err)
	return out
}

func TestRun_TakeProfit(t *testing.T) {
	strat := strategy(models.Long, closeAbove("99"))
	strat.Symbol = "ES"
	strat.PositionSizing.Contracts = 2
	bars := []models.Bar{
		bar(0, 100, 100.5, 99.5, 100),
		bar(1, 101, 111, 100.5, 110),
		bar(2, 110, 110.5, 109, 110),
	}

	out := runScan(t, New(), strat, bars)
	require.Len(t, out.Trades, 1)
	tr := out.Trades[0]
	assert.Equal(t, models.ExitTakeProfit, tr.ExitReason)
	assert.Equal(t, models.OutcomeWin, tr.Result)
	assert.Equal(t, 100.0, tr.EntryPrice)
	assert.Equal(t, 110.0, tr.ExitPrice)
	assert.Equal(t, 1000.0, tr.Pnl)
	assert.Equal(t, 1, tr.BarsHeld)
	assert.Equal(t, 11.0, tr.MFE)
	assert.Equal(t, 0.0, tr.MAE)
	assert.Equal(t, 1, tr.BarsToMFE)
	assert.Equal(t, 2.0, tr.RiskRewardRatio)
	assert.Equal(t, 100.0, tr.EntryQuality)
	assert.InDelta(t, 90.78, tr.ExitQuality, 1e-9)
	require.Len(t, tr.EntrySignals, 1)
	assert.Equal(t, "close > 99", tr.EntrySignals[0].Expression)
	assert.Equal(t, 3, out.BarsScanned)
}

func TestRun_StopLossAfterRally(t *testing.T) {
	strat := strategy(models.Long, closeAbove("99"))
	strat.TakeProfit.Value = 15
	bars := []models.Bar{
		bar(0, 100, 100.5, 99.5, 100),
		bar(1, 101, 112.5, 100.5, 112),
		bar(2, 105, 106, 94, 95),
	}

	out := runScan(t, New(), strat, bars)
	require.Len(t, out.Trades, 1)
	tr := out.Trades[0]
	assert.Equal(t, models.ExitStopLoss, tr.ExitReason)
	assert.Equal(t, models.OutcomeLoss, tr.Result)
	assert.Equal(t, 95.0, tr.ExitPrice)
	assert.Equal(t, -5.0, tr.Pnl)
	assert.Equal(t, 2, tr.BarsHeld)
	assert.Equal(t, 12.5, tr.MFE)
	assert.Equal(t, 6.0, tr.MAE)
	assert.Equal(t, 1, tr.BarsToMFE)
}

// Closes 100/112/95 with stop 5 and target 10: bar 1 trades through the target
// before the drop, so the high/low breach rule exits there with a win.
func TestRun_RallyThroughTargetBeforeDrop(t *testing.T) {
	strat := strategy(models.Long, closeAbove("99"))
	bars := []models.Bar{
		bar(0, 100, 100.5, 99.5, 100),
		bar(1, 101, 112.5, 100.5, 112),
		bar(2, 105, 106, 94, 95),
	}

	out := runScan(t, New(), strat, bars)
	require.Len(t, out.Trades, 1)
	tr := out.Trades[0]
	assert.Equal(t, models.ExitTakeProfit, tr.ExitReason)
	assert.Equal(t, 110.0, tr.ExitPrice)
	assert.Equal(t, 10.0, tr.Pnl)
	assert.Equal(t, models.OutcomeWin, tr.Result)
	assert.Equal(t, 1, tr.BarsHeld)
}

func TestRun_GapThroughStopFillsAtOpen(t *testing.T) {
	strat := strategy(models.Long, closeAbove("99"))
	bars := []models.Bar{
		bar(0, 100, 100.5, 99.5, 100),
		bar(1, 93, 94, 90, 91),
		flat(2, 91),
	}

	out := runScan(t, New(), strat, bars)
	require.Len(t, out.Trades, 1)
	assert.Equal(t, 93.0, out.Trades[0].ExitPrice)
	assert.Equal(t, -7.0, out.Trades[0].Pnl)
}

func TestRun_StopWinsOverTargetOnSameBar(t *testing.T) {
	strat := strategy(models.Long, closeAbove("99"))
	bars := []models.Bar{
		bar(0, 100, 100.5, 99.5, 100),
		bar(1, 100, 111, 94, 100),
		flat(2, 100),
	}

	out := runScan(t, New(), strat, bars)
	require.Len(t, out.Trades, 1)
	assert.Equal(t, models.ExitStopLoss, out.Trades[0].ExitReason)
}

func TestRun_ExitSignal(t *testing.T) {
	strat := strategy(models.Long, closeAbove("99"))
	strat.ExitConditions = []models.Condition{{Indicator: "close", Operator: models.OpLess, Operand: "99"}}
	bars := []models.Bar{
		flat(0, 100),
		bar(1, 99.5, 99.5, 98, 98.5),
		flat(2, 98),
	}

	out := runScan(t, New(), strat, bars)
	require.Len(t, out.Trades, 1)
	tr := out.Trades[0]
	assert.Equal(t, models.ExitSignal, tr.ExitReason)
	assert.Equal(t, 98.5, tr.ExitPrice)
	assert.Equal(t, -1.5, tr.Pnl)
	assert.Equal(t, models.OutcomeLoss, tr.Result)
}

func TestRun_TimeoutsAndReentry(t *testing.T) {
	strat := strategy(models.Long, closeAbove("99"))
	strat.MaxBarsHeld = 2
	bars := []models.Bar{flat(0, 100), flat(1, 100), flat(2, 100), flat(3, 100), flat(4, 100)}

	out := runScan(t, New(), strat, bars)
	require.Len(t, out.Trades, 2)

	first, second := out.Trades[0], out.Trades[1]
	assert.Equal(t, models.ExitMaxBars, first.ExitReason)
	assert.Equal(t, models.OutcomeTimeout, first.Result)
	assert.Equal(t, 2, first.BarsHeld)

	assert.Equal(t, models.ExitEndOfData, second.ExitReason)
	assert.Equal(t, models.OutcomeTimeout, second.Result)
	assert.Equal(t, bars[3].Timestamp, second.EntryTime)
	assert.Equal(t, bars[4].Timestamp, second.ExitTime)
	assert.Equal(t, 1, second.Index)
}

func TestRun_NextOpenFill(t *testing.T) {
	strat := strategy(models.Long, closeAbove("99"))
	bars := []models.Bar{
		flat(0, 100),
		bar(1, 101, 101.5, 100.5, 101),
		bar(2, 101, 111.5, 100.5, 111),
		flat(3, 111),
	}

	out := runScan(t, New(WithFillPolicy(FillNextOpen)), strat, bars)
	require.Len(t, out.Trades, 1)
	tr := out.Trades[0]
	assert.Equal(t, bars[1].Timestamp, tr.EntryTime)
	assert.Equal(t, 101.0, tr.EntryPrice)
	assert.Equal(t, 96.0, tr.StopPrice)
	assert.Equal(t, 111.0, tr.TargetPrice)
	assert.Equal(t, models.ExitTakeProfit, tr.ExitReason)
	assert.Equal(t, 10.0, tr.Pnl)
}

func TestRun_Short(t *testing.T) {
	strat := strategy(models.Short, models.Condition{Indicator: "close", Operator: models.OpLess, Operand: "101"})
	bars := []models.Bar{
		flat(0, 100),
		bar(1, 99, 99.5, 89, 90),
		flat(2, 90),
	}

	out := runScan(t, New(), strat, bars)
	require.Len(t, out.Trades, 1)
	tr := out.Trades[0]
	assert.Equal(t, 105.0, tr.StopPrice)
	assert.Equal(t, 90.0, tr.TargetPrice)
	assert.Equal(t, models.ExitTakeProfit, tr.ExitReason)
	assert.Equal(t, 10.0, tr.Pnl)
	assert.Equal(t, 11.0, tr.MFE)
	assert.Equal(t, models.OutcomeWin, tr.Result)
}

func TestRun_ResolutionFailuresAreDeduplicated(t *testing.T) {
	strat := strategy(models.Long, models.Condition{Indicator: "volume", Operator: models.OpGreater, Operand: "1.5 * avgVolume20"})
	bars := []models.Bar{flat(0, 100), flat(1, 100), flat(2, 100)}

	out := runScan(t, New(), strat, bars)
	assert.Empty(t, out.Trades)
	require.Len(t, out.Failures, 1)
	rec := out.Failures[0]
	assert.Equal(t, models.ErrorTypeResolution, rec.ErrorType)
	assert.Equal(t, "volume > 1.5 * avgVolume20", rec.FailedExpression)
	assert.Contains(t, rec.SuggestedFix, "1.5x_avgVolume20")
	assert.Equal(t, 2, rec.Occurrences)
	assert.Equal(t, bars[0].Timestamp, rec.FirstSeen)
}

func TestRun_ATRUnavailable(t *testing.T) {
	strat := strategy(models.Long, closeAbove("99"))
	strat.StopLoss = &models.RiskRule{Type: models.RiskATR, Value: 2}
	bars := []models.Bar{flat(0, 100), flat(1, 100), flat(2, 100)}

	out := runScan(t, New(), strat, bars)
	assert.Empty(t, out.Trades)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, models.ErrorTypeComputation, out.Failures[0].ErrorType)
}

func TestRun_RejectsInvalidStrategy(t *testing.T) {
	strat := strategy(models.Long, closeAbove("99"))
	strat.StopLoss = nil
	_, err := New().Run(context.Background(), strat, []models.Bar{flat(0, 100)})

	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	require.NotEmpty(t, verr.Fields)
	assert.Equal(t, "StopLoss", verr.Fields[0].Field)

	strat = strategy(models.Long)
	_, err = New().Run(context.Background(), strat, []models.Bar{flat(0, 100)})
	assert.True(t, errors.As(err, &verr))
}

func TestRun_UnnamedStrategyRuns(t *testing.T) {
	strat := strategy(models.Long, closeAbove("99"))
	strat.Name = ""
	bars := []models.Bar{
		bar(0, 100, 100.5, 99.5, 100),
		bar(1, 101, 111, 100.5, 110),
		flat(2, 110),
	}

	out := runScan(t, New(), strat, bars)
	assert.Len(t, out.Trades, 1)
	assert.Empty(t, strat.Name)
}

func TestRun_LeavesStrategyUntouched(t *testing.T) {
	strat := strategy(models.Long, closeAbove("99"))
	strat.Timeframe = ""
	before := strat.Clone()
	stop := strat.StopLoss

	runScan(t, New(), strat, []models.Bar{flat(0, 100), flat(1, 100), flat(2, 100)})
	assert.Equal(t, before, *strat)
	assert.Same(t, stop, strat.StopLoss)
	assert.Empty(t, strat.Timeframe)
	assert.Zero(t, strat.PositionSizing.Contracts)
}

func TestRun_NoFailuresIsEmptyList(t *testing.T) {
	out := runScan(t, New(), strategy(models.Long, closeAbove("99")), []models.Bar{flat(0, 100), flat(1, 100)})
	require.NotNil(t, out.Failures)
	assert.Empty(t, out.Failures)

	raw, err := json.Marshal(out.Failures)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))
}

func TestRun_EmptyBars(t *testing.T) {
	out := runScan(t, New(), strategy(models.Long, closeAbove("99")), nil)
	assert.Empty(t, out.Trades)
	assert.Equal(t, 0, out.BarsScanned)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := New().Run(ctx, strategy(models.Long, closeAbove("99")), []models.Bar{flat(0, 100), flat(1, 100)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, out)
}

// emaCrossFixture is a 400-bar oscillating series with an EMA crossover strategy over it.
func emaCrossFixture() (*models.Strategy, []models.Bar) {
	bars := make([]models.Bar, 400)
	prev := 100.0
	for i := range bars {
		c := 100 + 8*math.Sin(float64(i)/7) + 3*math.Sin(float64(i)/2.3)
		hi, lo := math.Max(prev, c)+0.75, math.Min(prev, c)-0.75
		bars[i] = bar(i, prev, hi, lo, c)
		prev = c
	}
	strat := strategy(models.Long, models.Condition{Indicator: "ema9", Operator: models.OpCrossesAbove, Operand: "ema20"})
	strat.ExitConditions = []models.Condition{{Indicator: "ema9", Operator: models.OpCrossesBelow, Operand: "ema20"}}
	strat.MaxBarsHeld = 30
	return strat, bars
}

func TestRun_Invariants(t *testing.T) {
	strat, bars := emaCrossFixture()

	for _, fill := range []FillPolicy{FillOnClose, FillNextOpen} {
		out := runScan(t, New(WithFillPolicy(fill)), strat, bars)
		require.NotEmpty(t, out.Trades, "fill %s", fill)
		assert.Empty(t, out.Failures)

		var lastExit time.Time
		for k, tr := range out.Trades {
			assert.Equal(t, k, tr.Index)
			assert.True(t, tr.ExitTime.After(tr.EntryTime))
			assert.True(t, tr.EntryTime.After(lastExit), "positions must not overlap")
			lastExit = tr.ExitTime
			assert.GreaterOrEqual(t, tr.MFE, 0.0)
			assert.GreaterOrEqual(t, tr.MAE, 0.0)
			assert.GreaterOrEqual(t, tr.BarsHeld, 1)
			assert.InDelta(t, tr.ExitPrice-tr.EntryPrice, tr.Pnl, 0.01)
			assert.True(t, tr.EntryQuality >= 0 && tr.EntryQuality <= 100)
			assert.True(t, tr.ExitQuality >= 0 && tr.ExitQuality <= 100)
			switch tr.ExitReason {
			case models.ExitMaxBars, models.ExitEndOfData:
				assert.Equal(t, models.OutcomeTimeout, tr.Result)
			default:
				assert.Equal(t, tr.Pnl > 0, tr.Result == models.OutcomeWin)
			}
		}
	}
}

func TestRun_Deterministic(t *testing.T) {
	strat, bars := emaCrossFixture()

	for _, fill := range []FillPolicy{FillOnClose, FillNextOpen} {
		first := runScan(t, New(WithFillPolicy(fill)), strat, bars)
		second := runScan(t, New(WithFillPolicy(fill)), strat, bars)
		require.NotEmpty(t, first.Trades)
		require.Equal(t, first.Trades, second.Trades, "fill %s", fill)

		a, err := json.Marshal(first.Trades)
		require.NoError(t, err)
		b, err := json.Marshal(second.Trades)
		require.NoError(t, err)
		assert.Equal(t, string(a), string(b))
	}
}
