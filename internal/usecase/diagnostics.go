package usecase

import (
	"context"
	"fmt"
	"time"

	"StratLab/internal/domain/models"
	domrepo "StratLab/internal/domain/repository"
	domsvc "StratLab/internal/domain/service"
	"StratLab/internal/services/diagnostics"
	"StratLab/pkg/cache"
	"StratLab/pkg/logger"
)

// DiagnosticsUseCase serves the per-run projections. Results are immutable,
// so every projection is cached by run id.
type DiagnosticsUseCase struct {
	results   *ResultSink
	bars      domrepo.BarStore
	narrative domsvc.NarrativeGenerator
	cache     cache.Service
	ttl       time.Duration
	topN      int
	l         *logger.Logger
}

func NewDiagnosticsUseCase(
	results *ResultSink,
	bars domrepo.BarStore,
	narrative domsvc.NarrativeGenerator,
	c cache.Service,
	ttl time.Duration,
	topN int,
	l *logger.Logger,
) *DiagnosticsUseCase {
	if l == nil {
		l = logger.NewNop()
	}
	if topN <= 0 {
		topN = diagnostics.DefaultTopN
	}
	return &DiagnosticsUseCase{results: results, bars: bars, narrative: narrative, cache: c, ttl: ttl, topN: topN, l: l}
}

func (uc *DiagnosticsUseCase) Result(ctx context.Context, runID string) (*models.StrategyResult, error) {
	return uc.results.Get(ctx, runID)
}

func (uc *DiagnosticsUseCase) Similar(ctx context.Context, runID string, index, top int) ([]models.SimilarTrade, error) {
	if top <= 0 {
		top = uc.topN
	}
	key := cache.GenerateKey("similar", runID, index, top)
	return cache.GetOrLoad(ctx, uc.cache, key, uc.ttl, func(ctx context.Context) ([]models.SimilarTrade, error) {
		res, err := uc.results.Get(ctx, runID)
		if err != nil {
			return nil, err
		}
		return diagnostics.FindSimilar(res.Trades, index, top)
	})
}

func (uc *DiagnosticsUseCase) Heatmap(ctx context.Context, runID string, dim models.HeatmapDimension) (*models.Heatmap, error) {
	key := cache.GenerateKey("heatmap", runID, dim)
	return cache.GetOrLoad(ctx, uc.cache, key, uc.ttl, func(ctx context.Context) (*models.Heatmap, error) {
		res, err := uc.results.Get(ctx, runID)
		if err != nil {
			return nil, err
		}
		hm, err := diagnostics.BuildHeatmap(res.Trades, dim)
		if err != nil {
			return nil, err
		}
		hm.RunID = runID
		return hm, nil
	})
}

// Facts builds the narrative inputs of one trade. With withNarrative set the
// configured generator adds prose; its failure leaves Narrative empty.
func (uc *DiagnosticsUseCase) Facts(ctx context.Context, runID string, index int, withNarrative bool) (*models.TradeFacts, error) {
	key := cache.GenerateKey("facts", runID, index)
	facts, err := cache.GetOrLoad(ctx, uc.cache, key, uc.ttl, func(ctx context.Context) (*models.TradeFacts, error) {
		res, err := uc.results.Get(ctx, runID)
		if err != nil {
			return nil, err
		}
		if index < 0 || index >= len(res.Trades) {
			return nil, fmt.Errorf("%w: index %d of %d", models.ErrTradeNotFound, index, len(res.Trades))
		}
		var bars []models.Bar
		if uc.bars != nil {
			tf := domrepo.NormalizeTimeframe(res.Timeframe)
			bars, err = loadBars(ctx, uc.bars, res.Symbol, tf, res.BacktestStart, res.BacktestEnd)
			if err != nil {
				// trend and volatility degrade to unknown
				uc.l.Warn("facts without market context", logger.String("run_id", runID), logger.Error(err))
				bars = nil
			}
		}
		f, err := diagnostics.BuildFacts(res, index, bars)
		if err != nil {
			return nil, err
		}
		return &f, nil
	})
	if err != nil {
		return nil, err
	}
	if withNarrative && uc.narrative != nil {
		text, err := uc.narrative.Generate(ctx, *facts)
		if err != nil {
			uc.l.Warn("narrative generation failed", logger.String("run_id", runID), logger.Error(err))
		} else {
			facts.Narrative = text
		}
	}
	return facts, nil
}
