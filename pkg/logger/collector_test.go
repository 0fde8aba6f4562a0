package logger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func TestCollector_AggregatesRepeats(t *testing.T) {
	pub := &capturePublisher{}
	l := NewNop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, Topic: "backtest.errors", Publisher: pub})

	for i := 0; i < 3; i++ {
		l.Error("scan failed", String("run_id", "r1"), Error(errors.New("boom")))
	}
	l.Error("scan failed", String("run_id", "r2"))
	// warn is not collected by default
	l.Warn("slow scan")
	l.RemoveCollector()

	require.Len(t, pub.batches, 1)
	assert.Equal(t, "backtest.errors", pub.topic)
	batch := pub.batches[0]
	require.Len(t, batch, 2)
	counts := map[interface{}]int{}
	for _, e := range batch {
		counts[e.Fields["run_id"]] = e.Count
	}
	assert.Equal(t, 3, counts["r1"])
	assert.Equal(t, 1, counts["r2"])
}

func TestCollector_ThresholdFlushAndBaseFields(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Publisher: pub, Levels: []string{"warn", "error"}})
	l := (&Logger{zl: NewNop().zl, collector: c}).With(String("component", "scanner"))

	l.Warn("first")
	l.Error("second")
	c.Close()

	require.Len(t, pub.batches, 1)
	require.Len(t, pub.batches[0], 2)
	levels := []string{}
	for _, e := range pub.batches[0] {
		levels = append(levels, e.Level)
		assert.Equal(t, "scanner", e.Fields["component"])
	}
	assert.ElementsMatch(t, []string{"warn", "error"}, levels)
}
