package errortrack

import (
	"context"
	"time"

	"StratLab/internal/domain/models"
	domrepo "StratLab/internal/domain/repository"
	domsvc "StratLab/internal/domain/service"
	"StratLab/pkg/logger"
	"StratLab/pkg/metrics"
)

// Tracker logs, counts and publishes the failure records of a run.
// Error-severity records go through logger.Error and so also reach the log collector.
type Tracker struct {
	l       *logger.Logger
	metrics domrepo.Metrics
	pub     domrepo.ResultPublisher
	timeout time.Duration
}

var _ domsvc.ErrorTracker = (*Tracker)(nil)

// New builds a Tracker. pub may be nil when no broker is configured.
func New(l *logger.Logger, m domrepo.Metrics, pub domrepo.ResultPublisher) *Tracker {
	if l == nil {
		l = logger.NewNop()
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Tracker{l: l, metrics: m, pub: pub, timeout: 5 * time.Second}
}

func (t *Tracker) Track(ctx context.Context, runID string, failures []models.FailureRecord) {
	if len(failures) == 0 {
		return
	}
	for _, f := range failures {
		t.metrics.RecordFailure(string(f.ErrorType))
		fields := []logger.Field{
			logger.String("run_id", runID),
			logger.String("error_type", string(f.ErrorType)),
			logger.String("message", f.Message),
			logger.Int("occurrences", f.Occurrences),
		}
		if f.FailedExpression != "" {
			fields = append(fields, logger.String("expression", f.FailedExpression))
		}
		if f.SuggestedFix != "" {
			fields = append(fields, logger.String("suggested_fix", f.SuggestedFix))
		}
		if !f.FirstSeen.IsZero() {
			fields = append(fields, logger.Any("first_seen", f.FirstSeen))
		}
		switch f.Severity {
		case models.SeverityError:
			t.l.Error("backtest failure", fields...)
		case models.SeverityWarning:
			t.l.Warn("backtest failure", fields...)
		default:
			t.l.Info("backtest failure", fields...)
		}
	}

	if t.pub == nil {
		return
	}
	// publishing must not inherit a request deadline that already expired
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.timeout)
	defer cancel()
	if err := t.pub.PublishFailures(pctx, runID, failures); err != nil {
		t.metrics.RecordError("publish_failures")
		t.l.Warn("publish failure records", logger.String("run_id", runID), logger.Error(err))
	}
}
