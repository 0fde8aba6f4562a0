package diagnostics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StratLab/internal/domain/models"
)

// Monday
var monday = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func trade(idx int, entry time.Time, pnl float64, res models.Outcome, bars int) models.TradeResult {
	return models.TradeResult{
		Index:        idx,
		EntryTime:    entry,
		ExitTime:     entry.Add(time.Duration(bars) * time.Minute),
		Pnl:          pnl,
		Result:       res,
		BarsHeld:     bars,
		EntryQuality: 50,
		ExitQuality:  50,
		MFE:          10,
		MAE:          4,
	}
}

func TestSimilarity_SameShapeDifferentPrice(t *testing.T) {
	a := trade(0, monday.Add(14*time.Hour), 250, models.OutcomeWin, 12)
	a.EntryPrice = 4500
	b := trade(1, monday.Add(7*24*time.Hour+14*time.Hour+20*time.Minute), 250, models.OutcomeWin, 12)
	b.EntryPrice = 4810
	b.EntryQuality, b.ExitQuality = 90, 5
	b.MFE, b.MAE = 40, 40

	score, matched := Similarity(a, b)
	assert.GreaterOrEqual(t, score, 60)
	assert.Equal(t, WeightResult+WeightPnl+WeightDuration+WeightHour+WeightWeekday, score)
	assert.Equal(t, []string{"result", "pnl", "duration", "hour", "weekday"}, matched)
}

func TestSimilarity_Identical(t *testing.T) {
	a := trade(0, monday.Add(9*time.Hour), -50, models.OutcomeLoss, 5)
	score, _ := Similarity(a, a)
	assert.Equal(t, 120, score)
}

func TestSimilarity_HourWraps(t *testing.T) {
	a := trade(0, monday.Add(23*time.Hour), 0, models.OutcomeTimeout, 1)
	b := trade(1, monday.Add(24*time.Hour), 0, models.OutcomeTimeout, 1)
	_, matched := Similarity(a, b)
	assert.Contains(t, matched, "hour")
	assert.NotContains(t, matched, "weekday")
}

func TestFindSimilar(t *testing.T) {
	target := trade(0, monday.Add(14*time.Hour), 100, models.OutcomeWin, 10)
	strong := trade(1, monday.Add(7*24*time.Hour+14*time.Hour), 100, models.OutcomeWin, 10)
	early := trade(2, monday.Add(14*24*time.Hour+15*time.Hour), 100, models.OutcomeWin, 10)
	late := trade(3, monday.Add(21*24*time.Hour+15*time.Hour), 100, models.OutcomeWin, 10)

	weak := trade(4, monday.Add(2*24*time.Hour+3*time.Hour), -400, models.OutcomeLoss, 90)
	weak.EntryQuality, weak.ExitQuality, weak.MFE, weak.MAE = 0, 0, 1, 50

	log := []models.TradeResult{target, strong, early, late, weak}
	got, err := FindSimilar(log, 0, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 1, got[0].Trade.Index)
	assert.Equal(t, 120, got[0].Score)
	// equal scores fall back to chronological order
	assert.Equal(t, got[1].Score, got[2].Score)
	assert.Equal(t, 2, got[1].Trade.Index)
	assert.Equal(t, 3, got[2].Trade.Index)

	got, err = FindSimilar(log, 0, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = FindSimilar(log, 9, 5)
	assert.True(t, errors.Is(err, models.ErrTradeNotFound))
}

func TestHeatmap_Hour(t *testing.T) {
	log := []models.TradeResult{
		trade(0, monday.Add(14*time.Hour), 100, models.OutcomeWin, 3),
		trade(1, monday.Add(14*time.Hour+30*time.Minute), -50, models.OutcomeLoss, 3),
		trade(2, monday.Add(9*time.Hour), 20, models.OutcomeWin, 3),
	}
	hm, err := BuildHeatmap(log, models.DimensionHour)
	require.NoError(t, err)
	require.Len(t, hm.Cells, 2)

	assert.Equal(t, "09", hm.Cells[0].Key)
	assert.Equal(t, 1, hm.Cells[0].Trades)
	assert.Equal(t, 1.0, hm.Cells[0].WinRate)

	assert.Equal(t, "14", hm.Cells[1].Key)
	assert.Equal(t, 2, hm.Cells[1].Trades)
	assert.Equal(t, 0.5, hm.Cells[1].WinRate)
	assert.Equal(t, 50.0, hm.Cells[1].TotalPnl)
	assert.Equal(t, 25.0, hm.Cells[1].AvgPnl)
}

func TestHeatmap_DayStartsMonday(t *testing.T) {
	log := []models.TradeResult{
		trade(0, monday.Add(6*24*time.Hour), 10, models.OutcomeWin, 1), // Sunday
		trade(1, monday.Add(2*24*time.Hour), 10, models.OutcomeWin, 1), // Wednesday
		trade(2, monday, -10, models.OutcomeLoss, 1),
	}
	hm, err := BuildHeatmap(log, models.DimensionDay)
	require.NoError(t, err)
	keys := make([]string, 0, len(hm.Cells))
	for _, c := range hm.Cells {
		keys = append(keys, c.Key)
	}
	assert.Equal(t, []string{"monday", "wednesday", "sunday"}, keys)
	assert.Equal(t, "Monday", hm.Cells[0].Label)
}

func TestHeatmap_Condition(t *testing.T) {
	mk := func(idx int, res models.Outcome, volMargin, emaMargin float64) models.TradeResult {
		tr := trade(idx, monday.Add(time.Duration(idx)*time.Hour), 10, res, 2)
		if res != models.OutcomeWin {
			tr.Pnl = -10
		}
		tr.EntrySignals = []models.ConditionSnapshot{
			{Expression: "ema9 > ema20", Margin: emaMargin},
			{Expression: "volume > 1.5x_avgVolume20", Margin: volMargin},
		}
		return tr
	}
	// volume margin separates winners cleanly, ema margin does not
	log := []models.TradeResult{
		mk(0, models.OutcomeWin, 0.9, 0.01),
		mk(1, models.OutcomeWin, 0.8, 0.03),
		mk(2, models.OutcomeLoss, 0.1, 0.02),
		mk(3, models.OutcomeLoss, 0.2, 0.01),
		mk(4, models.OutcomeWin, 0.7, 0.02),
		mk(5, models.OutcomeLoss, 0.05, 0.03),
	}

	j, err := MostDiscriminating(log)
	require.NoError(t, err)
	assert.Equal(t, 1, j)

	hm, err := BuildHeatmap(log, models.DimensionCondition)
	require.NoError(t, err)
	assert.Equal(t, "volume > 1.5x_avgVolume20", hm.Condition)
	require.Len(t, hm.Cells, 3)
	assert.Equal(t, "weak", hm.Cells[0].Key)
	assert.Equal(t, 0.0, hm.Cells[0].WinRate)
	assert.Equal(t, "strong", hm.Cells[2].Key)
	assert.Equal(t, 1.0, hm.Cells[2].WinRate)
	assert.Equal(t, 2, hm.Cells[2].Trades)
}

func TestHeatmap_EdgeCases(t *testing.T) {
	hm, err := BuildHeatmap(nil, models.DimensionHour)
	require.NoError(t, err)
	assert.Empty(t, hm.Cells)

	_, err = BuildHeatmap(nil, "month")
	assert.ErrorIs(t, err, ErrUnknownDimension)

	_, err = BuildHeatmap([]models.TradeResult{trade(0, monday, 1, models.OutcomeWin, 1)}, models.DimensionCondition)
	assert.ErrorIs(t, err, ErrNoConditionData)
}

func TestBuildFacts(t *testing.T) {
	tr := trade(0, monday.Add(14*time.Hour+35*time.Minute), 120, models.OutcomeWin, 4)
	tr.ExitReason = models.ExitTakeProfit
	tr.EntrySignals = []models.ConditionSnapshot{{Expression: "close > vwap", Left: 4510.25, Right: 4500}}
	res := &models.StrategyResult{RunID: "r1", Direction: models.Long, Trades: []models.TradeResult{tr}}

	facts, err := BuildFacts(res, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "us_open", facts.HourBucket)
	assert.Equal(t, models.ExitTakeProfit, facts.ExitReason)
	assert.Equal(t, []string{"close > vwap (4510 vs 4500)"}, facts.EntryReasons)
	assert.Equal(t, "unknown", facts.Trend)

	_, err = BuildFacts(res, 1, nil)
	assert.ErrorIs(t, err, models.ErrTradeNotFound)
}

func TestBuildFacts_Trend(t *testing.T) {
	bars := make([]models.Bar, 80)
	for i := range bars {
		c := 100 + float64(i)
		bars[i] = models.Bar{Timestamp: monday.Add(time.Duration(i) * time.Minute), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 10}
	}
	tr := trade(0, bars[70].Timestamp, 5, models.OutcomeWin, 2)
	res := &models.StrategyResult{RunID: "r1", Timeframe: "1m", Trades: []models.TradeResult{tr}}

	facts, err := BuildFacts(res, 0, bars)
	require.NoError(t, err)
	assert.Equal(t, "uptrend", facts.Trend)
	assert.NotEqual(t, "", facts.Volatility)
}
