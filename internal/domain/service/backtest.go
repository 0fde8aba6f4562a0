package service

import (
	"context"

	"StratLab/internal/domain/models"
)

// NarrativeGenerator turns the structured facts of one trade into prose.
type NarrativeGenerator interface {
	Generate(ctx context.Context, facts models.TradeFacts) (string, error)
}

// StrategyParser converts a free-text trading idea into a Strategy.
type StrategyParser interface {
	Parse(ctx context.Context, text, symbol string) (models.Strategy, error)
}

// ErrorTracker records failures that occurred during a run.
type ErrorTracker interface {
	Track(ctx context.Context, runID string, failures []models.FailureRecord)
}
