package diagnostics

import (
	"fmt"
	"math"
	"sort"

	"StratLab/internal/domain/models"
	"StratLab/internal/services/indicators"
)

const (
	trendBand        = 0.001
	volWindow        = 30
	highVolRatio     = 1.25
	lowVolRatio      = 0.8
	unknownCondition = "unknown"
)

// HourBucket names the trading session an entry hour (UTC) falls in.
func HourBucket(hour int) string {
	switch {
	case hour < 7:
		return "asia"
	case hour < 13:
		return "europe"
	case hour < 16:
		return "us_open"
	case hour < 19:
		return "us_midday"
	case hour < 21:
		return "us_close"
	default:
		return "overnight"
	}
}

// BuildFacts assembles the narrative facts for one trade. bars is the series the run scanned and may be empty,
// in which case trend and volatility are reported as unknown.
func BuildFacts(res *models.StrategyResult, index int, bars []models.Bar) (models.TradeFacts, error) {
	if index < 0 || index >= len(res.Trades) {
		return models.TradeFacts{}, fmt.Errorf("%w: index %d of %d", models.ErrTradeNotFound, index, len(res.Trades))
	}
	t := res.Trades[index]
	facts := models.TradeFacts{
		RunID:        res.RunID,
		TradeIndex:   t.Index,
		Direction:    res.Direction,
		Result:       t.Result,
		Pnl:          t.Pnl,
		ExitReason:   t.ExitReason,
		HourBucket:   HourBucket(t.EntryTime.UTC().Hour()),
		Trend:        unknownCondition,
		Volatility:   unknownCondition,
		EntryQuality: t.EntryQuality,
		ExitQuality:  t.ExitQuality,
		BarsHeld:     t.BarsHeld,
		EntryReasons: make([]string, 0, len(t.EntrySignals)),
	}
	for _, s := range t.EntrySignals {
		facts.EntryReasons = append(facts.EntryReasons, fmt.Sprintf("%s (%.4g vs %.4g)", s.Expression, s.Left, s.Right))
	}

	i := sort.Search(len(bars), func(k int) bool { return !bars[k].Timestamp.Before(t.EntryTime) })
	if i >= len(bars) {
		return facts, nil
	}
	series := indicators.FromBars(bars)
	facts.Trend = trendAt(series, i)
	facts.Volatility = volatilityAt(series, i, res.Timeframe)
	return facts, nil
}

func trendAt(s *indicators.Series, i int) string {
	c, _ := s.Value(indicators.Close, i)
	ema, _ := s.Value(indicators.EMA50, i)
	if math.IsNaN(ema) || ema == 0 {
		return unknownCondition
	}
	switch d := (c - ema) / ema; {
	case d > trendBand:
		return "uptrend"
	case d < -trendBand:
		return "downtrend"
	default:
		return "range"
	}
}

// volatilityAt compares realized volatility leading into bar i with the whole series.
func volatilityAt(s *indicators.Series, i int, tf string) string {
	closes, _ := s.Column(indicators.Close)
	all := indicators.LogReturns(closes)
	if i < volWindow || len(all) < volWindow {
		return unknownCondition
	}
	perYear := indicators.BarsPerYear(tf)
	recent := indicators.RealizedVolatility(all[:i], volWindow, perYear)
	base := indicators.RealizedVolatility(all, len(all), perYear)
	if base == 0 {
		return unknownCondition
	}
	switch r := recent / base; {
	case r > highVolRatio:
		return "high"
	case r < lowVolRatio:
		return "low"
	default:
		return "normal"
	}
}
