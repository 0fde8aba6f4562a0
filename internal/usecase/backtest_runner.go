package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"StratLab/internal/domain/models"
	domrepo "StratLab/internal/domain/repository"
	domsvc "StratLab/internal/domain/service"
	"StratLab/internal/services/aggregate"
	"StratLab/internal/services/contracts"
	"StratLab/internal/services/indicators"
	"StratLab/internal/services/scanner"
	"StratLab/pkg/logger"
	"StratLab/pkg/metrics"
	"StratLab/pkg/util"
)

// RunnerConfig holds the defaults a request may not override.
type RunnerConfig struct {
	FillPolicy       string
	CancelCheckEvery int
	RunTimeout       time.Duration
}

// BacktestRunner loads bars, scans, aggregates and records one run.
type BacktestRunner struct {
	bars      domrepo.BarStore
	sink      *ResultSink
	tracker   domsvc.ErrorTracker
	metrics   domrepo.Metrics
	events    EventEmitter
	l         *logger.Logger
	cfg       RunnerConfig
	contracts *contracts.Table
	newID     func() string
	now       func() time.Time
}

func NewBacktestRunner(
	bars domrepo.BarStore,
	sink *ResultSink,
	tracker domsvc.ErrorTracker,
	m domrepo.Metrics,
	events EventEmitter,
	l *logger.Logger,
	cfg RunnerConfig,
) *BacktestRunner {
	if m == nil {
		m = metrics.Nop{}
	}
	if events == nil {
		events = nopEmitter{}
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &BacktestRunner{
		bars:      bars,
		sink:      sink,
		tracker:   tracker,
		metrics:   m,
		events:    events,
		l:         l,
		cfg:       cfg,
		contracts: contracts.DefaultTable(),
		newID:     uuid.NewString,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// NewRunID returns a fresh run identifier.
func (r *BacktestRunner) NewRunID() string { return r.newID() }

// Run executes req synchronously. A strategy that fails validation returns a
// *models.ValidationError; a range with no bars returns an empty result.
func (r *BacktestRunner) Run(ctx context.Context, req models.BacktestRequest) (*models.StrategyResult, error) {
	start := time.Now()
	if req.RunID == "" {
		req.RunID = r.newID()
	}
	strat := req.Strategy.Clone()
	if strat.ID == "" {
		strat.ID = "adhoc-" + req.RunID
	}
	log := r.l.With(logger.String("run_id", req.RunID), logger.String("symbol", strat.Symbol))

	if err := scanner.Validate(&strat); err != nil {
		r.fail(ctx, req.RunID, strat.Symbol, "invalid", err)
		return nil, err
	}
	r.events.Emit(models.RunEvent{RunID: req.RunID, Status: models.RunRunning, Symbol: strat.Symbol})

	if r.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.RunTimeout)
		defer cancel()
	}

	tf := domrepo.NormalizeTimeframe(strat.Timeframe)
	bars, err := loadBars(ctx, r.bars, strat.Symbol, tf, req.Start, req.End)
	if err != nil {
		r.fail(ctx, req.RunID, strat.Symbol, "failed", err)
		return nil, err
	}

	meta := aggregate.Meta{
		RunID:        req.RunID,
		StrategyID:   strat.ID,
		StrategyName: strat.Name,
		Symbol:       strat.Symbol,
		Direction:    strat.Direction,
		Timeframe:    string(tf),
		Start:        req.Start.UTC(),
		End:          req.End.UTC(),
		CreatedAt:    r.now(),
	}

	var res *models.StrategyResult
	status := "ok"
	if len(bars) == 0 {
		gap := fmt.Errorf("%w: %s %s..%s", models.ErrDataGap, strat.Symbol,
			meta.Start.Format(time.RFC3339), meta.End.Format(time.RFC3339))
		log.Info("data gap, returning empty result", logger.Error(gap))
		res = aggregate.Build(meta, nil, []models.FailureRecord{models.FailureFromError(gap)})
		status = "empty"
	} else {
		fill := req.FillPolicy
		if fill == "" {
			fill = r.cfg.FillPolicy
		}
		sc := scanner.New(
			scanner.WithFillPolicy(scanner.ParseFillPolicy(fill)),
			scanner.WithContracts(r.contracts),
			scanner.WithCancelCheckEvery(r.cfg.CancelCheckEvery),
		)
		out, err := sc.Run(ctx, &strat, bars)
		if err != nil {
			r.fail(ctx, req.RunID, strat.Symbol, "failed", err)
			return nil, fmt.Errorf("scan: %w", err)
		}
		meta.BarsScanned = out.BarsScanned
		res = aggregate.Build(meta, out.Trades, out.Failures)
	}

	if err := r.sink.Save(ctx, res); err != nil {
		r.fail(ctx, req.RunID, strat.Symbol, "failed", err)
		return nil, err
	}
	if r.tracker != nil {
		r.tracker.Track(ctx, res.RunID, res.Failures)
	}

	r.metrics.RecordRun(status)
	r.metrics.RecordTrades(res.Symbol, res.TotalTrades)
	r.metrics.RecordLatency("backtest_run", time.Since(start).Seconds())
	log.Info("backtest finished",
		logger.Int("bars", res.BarsScanned),
		logger.Int("trades", res.TotalTrades),
		logger.Float64("total_pnl", res.TotalPnl),
		logger.Int("failures", len(res.Failures)),
		logger.Duration("duration_ms", time.Since(start)),
	)
	r.events.Emit(models.RunEvent{
		RunID:    res.RunID,
		Status:   models.RunDone,
		Symbol:   res.Symbol,
		Trades:   res.TotalTrades,
		TotalPnl: res.TotalPnl,
	})
	return res, nil
}

func (r *BacktestRunner) fail(ctx context.Context, runID, symbol, status string, err error) {
	r.metrics.RecordRun(status)
	if r.tracker != nil {
		r.tracker.Track(ctx, runID, []models.FailureRecord{models.FailureFromError(err)})
	}
	r.events.Emit(models.RunEvent{RunID: runID, Status: models.RunFailed, Symbol: symbol, Error: err.Error()})
}

// loadBars fetches minute bars covering [from, to] and folds them into tf.
func loadBars(ctx context.Context, store domrepo.BarStore, symbol string, tf domrepo.Timeframe, from, to time.Time) ([]models.Bar, error) {
	from, to = util.AlignFromTo(from.UTC(), to.UTC(), tf.Duration())
	bars, err := store.GetBars(ctx, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}
	return indicators.Resample(bars, tf.Duration()), nil
}
