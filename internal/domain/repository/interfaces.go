package repository

import (
	"context"
	"time"

	"StratLab/internal/domain/models"
)

// BarStore serves minute bars for a symbol.
type BarStore interface {
	GetBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error)
}

// ResultStore persists backtest results and their trade lists.
type ResultStore interface {
	Init(ctx context.Context) error
	Save(ctx context.Context, res *models.StrategyResult) error
	// Get returns models.ErrRunNotFound for unknown run ids.
	Get(ctx context.Context, runID string) (*models.StrategyResult, error)
	Health(ctx context.Context) error
	Close() error
}

// ResultPublisher streams results and failures to downstream consumers.
type ResultPublisher interface {
	PublishResult(ctx context.Context, res *models.StrategyResult) error
	PublishFailures(ctx context.Context, runID string, failures []models.FailureRecord) error
	Close() error
}

type Metrics interface {
	RecordRun(status string)
	RecordTrades(symbol string, n int)
	RecordFailure(kind string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
