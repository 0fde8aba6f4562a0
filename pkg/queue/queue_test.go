package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runPayload struct {
	RunID string `json:"run_id"`
}

type failingJob struct{ err error }

func (failingJob) Name() string { return "failing" }
func (failingJob) Type() string { return "backtest.run" }
func (j failingJob) Handle(context.Context, json.RawMessage) error {
	return j.err
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestQueue(t *testing.T, retryLimit int) (*RedisQueue, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	q := NewRedisQueue(nil, &QueueConfig{RetryLimit: retryLimit, RetryDelay: time.Minute}, db, WithKeyPrefix("test:q"))
	q.newID = func() string { return "msg-1" }
	q.now = func() time.Time { return fixedNow }
	return q, mock
}

func TestParsePayload(t *testing.T) {
	p, err := ParsePayload[runPayload](json.RawMessage(`{"run_id":"r1"}`))
	require.NoError(t, err)
	assert.Equal(t, "r1", p.RunID)

	_, err = ParsePayload[runPayload](nil)
	assert.Error(t, err)
	_, err = ParsePayload[runPayload](json.RawMessage(`[1]`))
	assert.Error(t, err)
}

func TestEnqueue_PushesEnvelope(t *testing.T) {
	q, mock := newTestQueue(t, 1)
	want, _ := json.Marshal(Message{
		ID:        "msg-1",
		Type:      "backtest.run",
		Payload:   json.RawMessage(`{"run_id":"r1"}`),
		Timestamp: fixedNow,
	})
	mock.ExpectLPush("test:q:messages", string(want)).SetVal(1)

	id, err := q.Enqueue(context.Background(), "backtest.run", runPayload{RunID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessMessage_RetriesThenDeadLetters(t *testing.T) {
	q, mock := newTestQueue(t, 1)
	q.RegisterJob(failingJob{err: errors.New("clickhouse down")})

	msg := Message{ID: "msg-1", Type: "backtest.run", Payload: json.RawMessage(`{}`), Timestamp: fixedNow}

	retried := msg
	retried.Attempts = 1
	retried.LastError = "clickhouse down"
	retryData, _ := json.Marshal(retried)
	mock.ExpectZAdd("test:q:retry", redis.Z{
		Score:  float64(fixedNow.Add(time.Minute).Unix()),
		Member: string(retryData),
	}).SetVal(1)
	q.processMessage(msg)

	dlqData, _ := json.Marshal(retried)
	mock.ExpectLPush("test:q:dlq", string(dlqData)).SetVal(1)
	q.processMessage(retried)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessMessage_UnknownTypeGoesToDLQ(t *testing.T) {
	q, mock := newTestQueue(t, 3)
	msg := Message{ID: "msg-1", Type: "nope", Payload: json.RawMessage(`{}`), Timestamp: fixedNow}
	data, _ := json.Marshal(msg)
	mock.ExpectLPush("test:q:dlq", string(data)).SetVal(1)

	q.processMessage(msg)
	require.NoError(t, mock.ExpectationsWereMet())
}
