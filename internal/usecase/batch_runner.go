package usecase

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"StratLab/internal/domain/models"
)

// BatchItem is the outcome of one request of a batch.
type BatchItem struct {
	RunID  string                 `json:"run_id"`
	Result *models.StrategyResult `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
	Fields []models.FieldError    `json:"fields,omitempty"`
}

// BatchRunner runs independent backtests with at most maxWorkers in flight.
// Bars and results are never shared between runs.
type BatchRunner struct {
	runner     *BacktestRunner
	maxWorkers int
}

func NewBatchRunner(runner *BacktestRunner, maxWorkers int) *BatchRunner {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &BatchRunner{runner: runner, maxWorkers: maxWorkers}
}

// Run returns one item per request in request order. A failing run does not
// stop the others; cancelling ctx fails the runs not yet finished.
func (b *BatchRunner) Run(ctx context.Context, reqs []models.BacktestRequest) []BatchItem {
	items := make([]BatchItem, len(reqs))
	var g errgroup.Group
	g.SetLimit(b.maxWorkers)
	for i := range reqs {
		i := i
		req := reqs[i]
		if req.RunID == "" {
			req.RunID = b.runner.NewRunID()
		}
		items[i].RunID = req.RunID
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				items[i].Error = err.Error()
				return nil
			}
			res, err := b.runner.Run(ctx, req)
			if err != nil {
				items[i].Error = err.Error()
				var ve *models.ValidationError
				if errors.As(err, &ve) {
					items[i].Fields = ve.Fields
				}
				return nil
			}
			items[i].Result = res
			return nil
		})
	}
	_ = g.Wait()
	return items
}
