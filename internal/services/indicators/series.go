package indicators

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"StratLab/internal/domain/models"
)

var (
	ErrUnknownIndicator = errors.New("unknown indicator")
	ErrIndexOutOfRange  = errors.New("bar index out of range")
)

// Column names resolvable by Series.Value.
const (
	Open        = "open"
	High        = "high"
	Low         = "low"
	Close       = "close"
	Volume      = "volume"
	VWAP        = "vwap"
	EMA9        = "ema9"
	EMA20       = "ema20"
	EMA50       = "ema50"
	AvgVolume20 = "avgVolume20"
	SMA20       = "sma20"
	SMA50       = "sma50"
	RSI14       = "rsi14"
	ATR14       = "atr14"
	BBUpper     = "bb_upper"
	BBMiddle    = "bb_middle"
	BBLower     = "bb_lower"
	ADX14       = "adx14"
)

var aliases = map[string]string{
	"price": Close,
}

// Series is a column view over a bar slice with every supported indicator materialized.
// Warmup positions hold NaN.
type Series struct {
	symbol string
	times  []time.Time
	cols   map[string][]float64
}

// FromBars builds a Series. Indicator columns the bars leave at zero are computed from prices.
func FromBars(bars []models.Bar) *Series {
	n := len(bars)
	s := &Series{cols: make(map[string][]float64, 20), times: make([]time.Time, n)}
	if n > 0 {
		s.symbol = bars[0].Symbol
	}
	pick := func(f func(b models.Bar) float64) []float64 {
		out := make([]float64, n)
		for i := range bars {
			out[i] = f(bars[i])
		}
		return out
	}
	for i := range bars {
		s.times[i] = bars[i].Timestamp
	}
	open := pick(func(b models.Bar) float64 { return b.Open })
	high := pick(func(b models.Bar) float64 { return b.High })
	low := pick(func(b models.Bar) float64 { return b.Low })
	closes := pick(func(b models.Bar) float64 { return b.Close })
	vol := pick(func(b models.Bar) float64 { return b.Volume })

	s.cols[Open] = open
	s.cols[High] = high
	s.cols[Low] = low
	s.cols[Close] = closes
	s.cols[Volume] = vol

	s.cols[VWAP] = provided(pick(func(b models.Bar) float64 { return b.VWAP }), func() []float64 {
		return SessionVWAP(s.times, high, low, closes, vol)
	})
	s.cols[EMA9] = provided(pick(func(b models.Bar) float64 { return b.EMA9 }), func() []float64 { return EMA(closes, 9) })
	s.cols[EMA20] = provided(pick(func(b models.Bar) float64 { return b.EMA20 }), func() []float64 { return EMA(closes, 20) })
	s.cols[EMA50] = provided(pick(func(b models.Bar) float64 { return b.EMA50 }), func() []float64 { return EMA(closes, 50) })
	s.cols[AvgVolume20] = provided(pick(func(b models.Bar) float64 { return b.AvgVolume20 }), func() []float64 { return SMA(vol, 20) })

	s.cols[SMA20] = SMA(closes, 20)
	s.cols[SMA50] = SMA(closes, 50)
	s.cols[RSI14] = RSI(closes, 14)
	s.cols[ATR14] = ATR(high, low, closes, 14)
	s.cols[BBUpper], s.cols[BBMiddle], s.cols[BBLower] = Bollinger(closes, 20, 2)
	s.cols[ADX14] = ADX(high, low, closes, 14)
	return s
}

// provided keeps a bar-supplied column unless every value is zero.
func provided(col []float64, compute func() []float64) []float64 {
	for _, v := range col {
		if v != 0 {
			return col
		}
	}
	return compute()
}

func (s *Series) Len() int { return len(s.times) }

func (s *Series) Symbol() string { return s.symbol }

func (s *Series) Time(i int) time.Time { return s.times[i] }

// Value returns column name at bar i. NaN means the indicator is still warming up.
func (s *Series) Value(name string, i int) (float64, error) {
	col, ok := s.Column(name)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownIndicator, name)
	}
	if i < 0 || i >= len(col) {
		return 0, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	return col[i], nil
}

// Column returns the full column for name, resolving aliases.
func (s *Series) Column(name string) ([]float64, bool) {
	if canon, ok := aliases[name]; ok {
		name = canon
	}
	col, ok := s.cols[name]
	return col, ok
}

// Names lists every resolvable indicator name.
func (s *Series) Names() []string { return Known() }

// Known returns the sorted list of supported names, aliases included.
func Known() []string {
	names := []string{
		Open, High, Low, Close, Volume, VWAP, EMA9, EMA20, EMA50, AvgVolume20,
		SMA20, SMA50, RSI14, ATR14, BBUpper, BBMiddle, BBLower, ADX14,
	}
	for a := range aliases {
		names = append(names, a)
	}
	sort.Strings(names)
	return names
}
