// Package scanner walks a bar series with a single-position state machine and emits closed trades.
package scanner

import (
	"context"
	"fmt"
	"math"

	"StratLab/internal/domain/models"
	"StratLab/internal/services/condition"
	"StratLab/internal/services/contracts"
	"StratLab/internal/services/indicators"
	"StratLab/internal/services/quality"
)

// Output is everything one scan produced.
type Output struct {
	Trades      []models.TradeResult
	Failures    []models.FailureRecord
	BarsScanned int
}

type Scanner struct {
	cfg Config
}

func New(opts ...Option) *Scanner {
	cfg := Config{
		Fill:             FillOnClose,
		Contracts:        contracts.DefaultTable(),
		CancelCheckEvery: DefaultCancelCheckEvery,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Scanner{cfg: cfg}
}

func (s *Scanner) FillPolicy() FillPolicy { return s.cfg.Fill }

// position is the single open trade.
type position struct {
	signalIdx  int
	entryIdx   int
	entryPrice float64
	stop       float64
	target     float64
	mfe        float64
	mae        float64
	barsToMFE  int
	windowHigh float64
	windowLow  float64
	signals    []models.ConditionSnapshot
}

// run holds per-scan state shared by the helpers.
type run struct {
	strat    *models.Strategy
	bars     []models.Bar
	series   *indicators.Series
	entry    []condition.Compiled
	exit     []condition.Compiled
	spec     contracts.Spec
	sign     float64
	failures *failureLog
	trades   []models.TradeResult
}

// Run scans bars for strat. An invalid strategy is rejected before the first bar.
// Expression failures do not abort the scan; they are returned deduplicated in Output.Failures.
// Context cancellation returns ctx.Err() and no partial trades. strat itself is never modified.
func (s *Scanner) Run(ctx context.Context, strat *models.Strategy, bars []models.Bar) (*Output, error) {
	if strat == nil {
		return nil, Validate(nil)
	}
	own := strat.Clone()
	strat = &own
	if err := Validate(strat); err != nil {
		return nil, err
	}
	out := &Output{Trades: []models.TradeResult{}, Failures: []models.FailureRecord{}}
	if len(bars) == 0 {
		return out, nil
	}

	r := &run{
		strat:    strat,
		bars:     bars,
		series:   indicators.FromBars(bars),
		spec:     s.cfg.Contracts.Lookup(strat.Symbol),
		sign:     float64(strat.Direction.Sign()),
		failures: newFailureLog(),
		trades:   []models.TradeResult{},
	}
	r.entry, _ = condition.CompileAll(strat.EntryConditions)
	r.exit, _ = condition.CompileAll(strat.ExitConditions)

	last := len(bars) - 1
	lastSignal := last - 1
	if s.cfg.Fill == FillNextOpen {
		lastSignal = last - 2
	}

	var pos *position
	pending := -1
	for i := range bars {
		if i%s.cfg.CancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		out.BarsScanned = i + 1

		if pos != nil {
			if r.step(pos, i) {
				pos = nil
			}
			continue
		}
		if pending >= 0 {
			pos = r.open(pending, i, bars[i].Open)
			pending = -1
			continue
		}
		if i > lastSignal {
			continue
		}
		ok, err := condition.AllOf(r.entry, r.series, i)
		if err != nil {
			r.failures.addErr(err, bars[i].Timestamp)
			continue
		}
		if !ok {
			continue
		}
		if s.cfg.Fill == FillNextOpen {
			pending = i
			continue
		}
		pos = r.open(i, i, bars[i].Close)
	}
	if pos != nil {
		r.close(pos, last, bars[last].Close, models.ExitEndOfData)
	}

	out.Trades = r.trades
	out.Failures = r.failures.list()
	return out, nil
}

// open enters at price on bar fill for a signal seen on bar signal. It returns nil when risk levels cannot be computed.
func (r *run) open(signal, fill int, price float64) *position {
	stop, err := r.level(r.strat.StopLoss, signal, price, -1)
	if err != nil {
		r.failures.addErr(err, r.bars[signal].Timestamp)
		return nil
	}
	target, err := r.level(r.strat.TakeProfit, signal, price, 1)
	if err != nil {
		r.failures.addErr(err, r.bars[signal].Timestamp)
		return nil
	}
	snaps := make([]models.ConditionSnapshot, 0, len(r.entry))
	for _, c := range r.entry {
		snaps = append(snaps, c.Snapshot(r.series, signal))
	}
	return &position{
		signalIdx:  signal,
		entryIdx:   fill,
		entryPrice: price,
		stop:       stop,
		target:     target,
		windowHigh: math.Inf(-1),
		windowLow:  math.Inf(1),
		signals:    snaps,
	}
}

// level places a stop (side -1) or target (side +1) relative to entry, rounded to the contract tick.
func (r *run) level(rule *models.RiskRule, signal int, entry float64, side float64) (float64, error) {
	var dist float64
	switch rule.Type {
	case models.RiskPoints:
		dist = rule.Value
	case models.RiskPercent:
		dist = entry * rule.Value / 100
	case models.RiskATR:
		atr, err := r.series.Value(indicators.ATR14, signal)
		if err != nil {
			return 0, err
		}
		if math.IsNaN(atr) || atr <= 0 {
			return 0, fmt.Errorf("atr14 unavailable for %s risk rule of %.4g", rule.Type, rule.Value)
		}
		dist = rule.Value * atr
	default:
		return 0, fmt.Errorf("unsupported risk rule type %q", rule.Type)
	}
	return r.spec.RoundToTick(entry + side*r.sign*dist), nil
}

// step advances an open position through bar i and reports whether it closed.
// Excursions are updated first, then exits are checked as stop, target, exit signal, max bars.
func (r *run) step(p *position, i int) bool {
	b := r.bars[i]
	held := i - p.entryIdx

	fav, adv := b.High-p.entryPrice, p.entryPrice-b.Low
	if r.sign < 0 {
		fav, adv = p.entryPrice-b.Low, b.High-p.entryPrice
	}
	if fav > p.mfe {
		p.mfe = fav
		p.barsToMFE = held
	}
	if adv > p.mae {
		p.mae = adv
	}
	p.windowHigh = math.Max(p.windowHigh, b.High)
	p.windowLow = math.Min(p.windowLow, b.Low)

	long := r.sign > 0
	switch {
	case long && b.Low <= p.stop:
		r.close(p, i, math.Min(p.stop, b.Open), models.ExitStopLoss)
		return true
	case !long && b.High >= p.stop:
		r.close(p, i, math.Max(p.stop, b.Open), models.ExitStopLoss)
		return true
	case long && b.High >= p.target, !long && b.Low <= p.target:
		r.close(p, i, p.target, models.ExitTakeProfit)
		return true
	}

	if len(r.exit) > 0 {
		ok, err := condition.AllOf(r.exit, r.series, i)
		if err != nil {
			r.failures.addErr(err, b.Timestamp)
		} else if ok {
			r.close(p, i, b.Close, models.ExitSignal)
			return true
		}
	}

	if r.strat.MaxBarsHeld > 0 && held >= r.strat.MaxBarsHeld {
		r.close(p, i, b.Close, models.ExitMaxBars)
		return true
	}
	return false
}

func (r *run) close(p *position, i int, price float64, reason models.ExitReason) {
	qty := r.strat.PositionSizing.Contracts
	pnl := r.spec.PnL(int(r.sign), p.entryPrice, price, qty)

	result := models.OutcomeLoss
	switch {
	case reason.IsTimeout():
		result = models.OutcomeTimeout
	case pnl > 0:
		result = models.OutcomeWin
	}

	held := i - p.entryIdx
	if math.IsInf(p.windowHigh, 0) {
		p.windowHigh, p.windowLow = r.bars[i].High, r.bars[i].Low
	}
	in := quality.Inputs{
		Direction:  r.strat.Direction,
		EntryPrice: p.entryPrice,
		ExitPrice:  price,
		MFE:        p.mfe,
		MAE:        p.mae,
		BarsHeld:   held,
		BarsToMFE:  p.barsToMFE,
		WindowHigh: p.windowHigh,
		WindowLow:  p.windowLow,
	}

	rr := 0.0
	if risk := math.Abs(p.entryPrice - p.stop); risk > 0 {
		rr = round6(math.Abs(p.target-p.entryPrice) / risk)
	}

	r.trades = append(r.trades, models.TradeResult{
		Index:           len(r.trades),
		EntryTime:       r.bars[p.entryIdx].Timestamp,
		ExitTime:        r.bars[i].Timestamp,
		EntryPrice:      p.entryPrice,
		ExitPrice:       price,
		StopPrice:       p.stop,
		TargetPrice:     p.target,
		Contracts:       qty,
		Pnl:             pnl,
		Result:          result,
		ExitReason:      reason,
		BarsHeld:        held,
		MAE:             round6(p.mae),
		MFE:             round6(p.mfe),
		BarsToMFE:       p.barsToMFE,
		EntryQuality:    quality.EntryScore(in),
		ExitQuality:     quality.ExitScore(in),
		RiskRewardRatio: rr,
		EntrySignals:    p.signals,
	})
}

func round6(v float64) float64 { return math.Round(v*1e6) / 1e6 }
