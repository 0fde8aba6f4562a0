package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/creasty/defaults"

	"StratLab/internal/domain/models"
	domrepo "StratLab/internal/domain/repository"
	pkgkafka "StratLab/pkg/kafka"
	"StratLab/pkg/logger"
	"StratLab/pkg/metrics"
)

// RequestHandler consumes backtest requests from Kafka. Results and failure
// records leave through the configured sink and tracker.
type RequestHandler struct {
	topic   string
	runner  *BacktestRunner
	metrics domrepo.Metrics
	l       *logger.Logger
}

func NewRequestHandler(topic string, runner *BacktestRunner, m domrepo.Metrics, l *logger.Logger) *RequestHandler {
	if m == nil {
		m = metrics.Nop{}
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &RequestHandler{topic: topic, runner: runner, metrics: m, l: l}
}

func (h *RequestHandler) Topic() string { return h.topic }

// Handle runs one request. An invalid strategy is acknowledged since a retry
// cannot fix it; decode and infrastructure errors are returned for retry.
func (h *RequestHandler) Handle(ctx context.Context, b []byte) error {
	var req models.BacktestRequest
	if err := json.Unmarshal(b, &req); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode backtest request: %w", err)
	}
	if err := defaults.Set(&req); err != nil {
		return fmt.Errorf("apply request defaults: %w", err)
	}
	if !req.End.After(req.Start) {
		h.metrics.RecordError("request_invalid")
		h.l.Warn("backtest request with empty range",
			logger.String("run_id", req.RunID),
			logger.String("trace_id", pkgkafka.TraceID(ctx)),
		)
		return nil
	}

	res, err := h.runner.Run(ctx, req)
	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve):
		h.metrics.RecordError("request_invalid")
		h.l.Warn("backtest request rejected",
			logger.String("run_id", req.RunID),
			logger.String("trace_id", pkgkafka.TraceID(ctx)),
			logger.Error(err),
		)
		return nil
	case err != nil:
		return err
	}
	h.l.Debug("backtest request done",
		logger.String("run_id", res.RunID),
		logger.String("trace_id", pkgkafka.TraceID(ctx)),
		logger.Int("trades", res.TotalTrades),
	)
	return nil
}

var _ pkgkafka.MessageHandler = (*RequestHandler)(nil)
