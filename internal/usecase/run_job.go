package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"StratLab/internal/domain/models"
	"StratLab/pkg/queue"
)

// RunJobType is the queue message type of an asynchronous backtest.
const RunJobType = "backtest.run"

// RunJob executes queued backtests.
type RunJob struct {
	runner *BacktestRunner
}

func NewRunJob(runner *BacktestRunner) *RunJob { return &RunJob{runner: runner} }

func (j *RunJob) Name() string { return "backtest_runner" }
func (j *RunJob) Type() string { return RunJobType }

// Handle runs the request. A validation error is final and not retried.
func (j *RunJob) Handle(ctx context.Context, payload json.RawMessage) error {
	req, err := queue.ParsePayload[models.BacktestRequest](payload)
	if err != nil {
		return err
	}
	_, err = j.runner.Run(ctx, *req)
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		return nil
	}
	return err
}

var _ queue.Job = (*RunJob)(nil)

// AsyncSubmitter enqueues runs and answers with the run id the caller polls.
type AsyncSubmitter struct {
	queue  queue.Publisher
	runner *BacktestRunner
	events EventEmitter
}

func NewAsyncSubmitter(q queue.Publisher, runner *BacktestRunner, events EventEmitter) *AsyncSubmitter {
	if events == nil {
		events = nopEmitter{}
	}
	return &AsyncSubmitter{queue: q, runner: runner, events: events}
}

func (s *AsyncSubmitter) Enabled() bool { return s != nil && s.queue != nil }

func (s *AsyncSubmitter) Submit(ctx context.Context, req models.BacktestRequest) (*models.RunAccepted, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("async runs need the redis queue: %w", models.ErrServiceUnavailable)
	}
	if req.RunID == "" {
		req.RunID = s.runner.NewRunID()
	}
	req.Async = false
	if _, err := s.queue.Enqueue(ctx, RunJobType, req); err != nil {
		return nil, fmt.Errorf("enqueue run: %w", err)
	}
	s.events.Emit(models.RunEvent{RunID: req.RunID, Status: models.RunQueued, Symbol: req.Strategy.Symbol})
	return &models.RunAccepted{RunID: req.RunID, Status: string(models.RunQueued)}, nil
}
