package usecase

import (
	"context"
	"fmt"
	"time"

	"StratLab/internal/domain/models"
	domrepo "StratLab/internal/domain/repository"
	"StratLab/pkg/cache"
	"StratLab/pkg/metrics"
)

const (
	BackendClickHouse = "clickhouse"
	BackendKafka      = "kafka"
	BackendBoth       = "both"
	// BackendMemory keeps results in the given store only; used by the CLI.
	BackendMemory = "memory"
)

// ResultSink routes finished results to the configured backend and keeps
// recent ones in the projection cache. With the kafka backend the cache is
// the only read path, so results expire with the cache TTL.
type ResultSink struct {
	store   domrepo.ResultStore
	pub     domrepo.ResultPublisher
	cache   cache.Service
	ttl     time.Duration
	metrics domrepo.Metrics
	backend string
}

func NewResultSink(
	backend string,
	store domrepo.ResultStore,
	pub domrepo.ResultPublisher,
	c cache.Service,
	ttl time.Duration,
	m domrepo.Metrics,
) (*ResultSink, error) {
	switch backend {
	case BackendClickHouse, BackendMemory:
		if store == nil {
			return nil, fmt.Errorf("backend %s needs a result store", backend)
		}
	case BackendKafka:
		if pub == nil {
			return nil, fmt.Errorf("backend %s needs a publisher", backend)
		}
	case BackendBoth:
		if store == nil || pub == nil {
			return nil, fmt.Errorf("backend %s needs a result store and a publisher", backend)
		}
	default:
		return nil, fmt.Errorf("unknown backend: %s", backend)
	}
	if m == nil {
		m = metrics.Nop{}
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ResultSink{store: store, pub: pub, cache: c, ttl: ttl, metrics: m, backend: backend}, nil
}

func resultKey(runID string) string { return cache.GenerateKey("result", runID) }

// Save persists res. The cache write is best effort.
func (s *ResultSink) Save(ctx context.Context, res *models.StrategyResult) error {
	if res == nil {
		return fmt.Errorf("result is nil")
	}
	start := time.Now()
	var err error
	switch s.backend {
	case BackendKafka:
		err = s.pub.PublishResult(ctx, res)
	case BackendClickHouse, BackendMemory:
		err = s.store.Save(ctx, res)
	case BackendBoth:
		if err = s.store.Save(ctx, res); err == nil {
			err = s.pub.PublishResult(ctx, res)
		}
	}
	if err != nil {
		s.metrics.RecordError("save_result")
		return fmt.Errorf("save result: %w", err)
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, resultKey(res.RunID), res, s.ttl)
	}
	s.metrics.RecordLatency("save_result", time.Since(start).Seconds())
	return nil
}

// Get returns a stored result, models.ErrRunNotFound when it is unknown.
func (s *ResultSink) Get(ctx context.Context, runID string) (*models.StrategyResult, error) {
	return cache.GetOrLoad(ctx, s.cache, resultKey(runID), s.ttl, func(ctx context.Context) (*models.StrategyResult, error) {
		if s.store == nil {
			return nil, models.ErrRunNotFound
		}
		return s.store.Get(ctx, runID)
	})
}

// Close releases the store and publisher.
func (s *ResultSink) Close() {
	if s.pub != nil {
		_ = s.pub.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
}
