package repository

import (
	"context"
	"time"

	"StratLab/internal/domain/models"
	domrepo "StratLab/internal/domain/repository"
	pkgkafka "StratLab/pkg/kafka"
)

// producer is the part of pkg/kafka.Producer the publisher uses.
type producer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaPublisher streams run results and failure records keyed by run id.
type KafkaPublisher struct {
	producer     producer
	resultsTopic string
	errorsTopic  string
}

var _ domrepo.ResultPublisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(p *pkgkafka.Producer, resultsTopic, errorsTopic string) *KafkaPublisher {
	return newKafkaPublisher(p, resultsTopic, errorsTopic)
}

func newKafkaPublisher(p producer, resultsTopic, errorsTopic string) *KafkaPublisher {
	return &KafkaPublisher{producer: p, resultsTopic: resultsTopic, errorsTopic: errorsTopic}
}

// FailureEvent is one failure record as published on the errors topic.
type FailureEvent struct {
	RunID string `json:"run_id"`
	models.FailureRecord
	PublishedAt time.Time `json:"published_at"`
}

func (p *KafkaPublisher) PublishResult(ctx context.Context, res *models.StrategyResult) error {
	return p.producer.Publish(ctx, p.resultsTopic, []byte(res.RunID), res)
}

func (p *KafkaPublisher) PublishFailures(ctx context.Context, runID string, failures []models.FailureRecord) error {
	if len(failures) == 0 {
		return nil
	}
	now := time.Now().UTC()
	msgs := make([]pkgkafka.Message, len(failures))
	for i, f := range failures {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(runID),
			Value: FailureEvent{RunID: runID, FailureRecord: f, PublishedAt: now},
		}
	}
	return p.producer.PublishBatch(ctx, p.errorsTopic, msgs)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
