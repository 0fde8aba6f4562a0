package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StratLab/internal/domain/models"
	"StratLab/pkg/cache"
)

var t0 = time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)

func bar(i int, o, h, l, c float64) models.Bar {
	return models.Bar{
		Symbol:    "ES",
		Timestamp: t0.Add(time.Duration(i) * time.Minute),
		Open:      o,
		High:      h,
		Low:       l,
		Close:     c,
		Volume:    1000,
	}
}

func winningBars() []models.Bar {
	return []models.Bar{
		bar(0, 100, 100.5, 99.5, 100),
		bar(1, 101, 111, 100.5, 110),
		bar(2, 110, 110.5, 109, 110),
	}
}

func request() models.BacktestRequest {
	return models.BacktestRequest{
		Strategy: models.Strategy{
			Name:            "close above 99",
			Direction:       models.Long,
			Symbol:          "ES",
			EntryConditions: []models.Condition{{Indicator: "close", Operator: models.OpGreater, Operand: "99"}},
			StopLoss:        &models.RiskRule{Type: models.RiskPoints, Value: 5},
			TakeProfit:      &models.RiskRule{Type: models.RiskPoints, Value: 10},
		},
		Start:      t0,
		End:        t0.Add(3 * time.Minute),
		FillPolicy: "close",
	}
}

type fakeBars struct {
	bars     []models.Bar
	err      error
	delay    time.Duration
	inFlight int32
	maxSeen  int32
	calls    int32
}

func (f *fakeBars) GetBars(ctx context.Context, _ string, _, _ time.Time) ([]models.Bar, error) {
	atomic.AddInt32(&f.calls, 1)
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		m := atomic.LoadInt32(&f.maxSeen)
		if n <= m || atomic.CompareAndSwapInt32(&f.maxSeen, m, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.bars, f.err
}

type memStore struct {
	mu    sync.Mutex
	runs  map[string]*models.StrategyResult
	gets  int
	saveE error
}

func newMemStore() *memStore { return &memStore{runs: map[string]*models.StrategyResult{}} }

func (s *memStore) Init(context.Context) error { return nil }

func (s *memStore) Save(_ context.Context, res *models.StrategyResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveE != nil {
		return s.saveE
	}
	s.runs[res.RunID] = res
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*models.StrategyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if r, ok := s.runs[id]; ok {
		return r, nil
	}
	return nil, models.ErrRunNotFound
}

func (s *memStore) Health(context.Context) error { return nil }
func (s *memStore) Close() error                 { return nil }

type fakePublisher struct {
	mu      sync.Mutex
	results []*models.StrategyResult
}

func (p *fakePublisher) PublishResult(_ context.Context, res *models.StrategyResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, res)
	return nil
}

func (p *fakePublisher) PublishFailures(context.Context, string, []models.FailureRecord) error {
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fakeTracker struct {
	mu       sync.Mutex
	failures map[string][]models.FailureRecord
}

func (t *fakeTracker) Track(_ context.Context, runID string, f []models.FailureRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failures == nil {
		t.failures = map[string][]models.FailureRecord{}
	}
	t.failures[runID] = append(t.failures[runID], f...)
}

type fakeMetrics struct {
	mu   sync.Mutex
	runs []string
}

func (m *fakeMetrics) RecordRun(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, status)
}
func (m *fakeMetrics) RecordTrades(string, int)      {}
func (m *fakeMetrics) RecordFailure(string)          {}
func (m *fakeMetrics) RecordError(string)            {}
func (m *fakeMetrics) RecordLatency(string, float64) {}

type recordingEmitter struct {
	mu     sync.Mutex
	events []models.RunEvent
}

func (e *recordingEmitter) Emit(ev models.RunEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *recordingEmitter) statuses() []models.RunStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.RunStatus, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.Status
	}
	return out
}

type fixture struct {
	bars    *fakeBars
	store   *memStore
	tracker *fakeTracker
	metrics *fakeMetrics
	events  *recordingEmitter
	sink    *ResultSink
	runner  *BacktestRunner
}

func newFixture(t *testing.T, bars []models.Bar) *fixture {
	t.Helper()
	f := &fixture{
		bars:    &fakeBars{bars: bars},
		store:   newMemStore(),
		tracker: &fakeTracker{},
		metrics: &fakeMetrics{},
		events:  &recordingEmitter{},
	}
	sink, err := NewResultSink(BackendClickHouse, f.store, nil, nil, time.Minute, f.metrics)
	require.NoError(t, err)
	f.sink = sink
	f.runner = NewBacktestRunner(f.bars, sink, f.tracker, f.metrics, f.events, nil, RunnerConfig{FillPolicy: "close"})
	ids := 0
	f.runner.newID = func() string {
		ids++
		return "run-" + string(rune('a'+ids-1))
	}
	return f
}

func TestBacktestRunner_Run(t *testing.T) {
	f := newFixture(t, winningBars())

	res, err := f.runner.Run(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, "run-a", res.RunID)
	assert.Equal(t, "adhoc-run-a", res.StrategyID)
	assert.Equal(t, "1m", res.Timeframe)
	assert.Equal(t, 3, res.BarsScanned)
	require.Equal(t, 1, res.TotalTrades)
	assert.Equal(t, 500.0, res.TotalPnl)
	assert.Equal(t, 1.0, res.WinRate)

	stored, err := f.store.Get(context.Background(), "run-a")
	require.NoError(t, err)
	assert.Same(t, res, stored)
	assert.Equal(t, []models.RunStatus{models.RunRunning, models.RunDone}, f.events.statuses())
	assert.Equal(t, []string{"ok"}, f.metrics.runs)
}

func TestBacktestRunner_KeepsRequestedRunID(t *testing.T) {
	f := newFixture(t, winningBars())
	req := request()
	req.RunID = "mine"

	res, err := f.runner.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "mine", res.RunID)
}

func TestBacktestRunner_UnnamedStrategyKeepsRequestIntact(t *testing.T) {
	f := newFixture(t, winningBars())
	req := request()
	req.Strategy.Name = ""
	req.Strategy.Timeframe = ""
	before := req.Strategy.Clone()

	res, err := f.runner.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "adhoc-run-a", res.StrategyName)
	assert.Equal(t, 1, res.TotalTrades)
	assert.NotNil(t, res.Failures)
	assert.Equal(t, before, req.Strategy)
}

func TestBacktestRunner_InvalidStrategy(t *testing.T) {
	f := newFixture(t, winningBars())
	req := request()
	req.Strategy.StopLoss = nil

	_, err := f.runner.Run(context.Background(), req)
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)

	assert.Equal(t, int32(0), atomic.LoadInt32(&f.bars.calls))
	assert.Equal(t, []models.RunStatus{models.RunFailed}, f.events.statuses())
	assert.Equal(t, []string{"invalid"}, f.metrics.runs)
	require.Len(t, f.tracker.failures["run-a"], 1)
	assert.Equal(t, models.ErrorTypeValidation, f.tracker.failures["run-a"][0].ErrorType)
}

func TestBacktestRunner_DataGapIsEmptyResult(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.runner.Run(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, 0, res.TotalTrades)
	assert.Empty(t, res.Trades)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, models.ErrorTypeDataGap, res.Failures[0].ErrorType)
	assert.Equal(t, []string{"empty"}, f.metrics.runs)
	_, err = f.store.Get(context.Background(), res.RunID)
	assert.NoError(t, err)
}

func TestBacktestRunner_BarStoreError(t *testing.T) {
	f := newFixture(t, nil)
	f.bars.err = errors.New("clickhouse down")

	_, err := f.runner.Run(context.Background(), request())
	assert.ErrorContains(t, err, "load bars")
	assert.Equal(t, []string{"failed"}, f.metrics.runs)
}

func TestBacktestRunner_CancelledContext(t *testing.T) {
	f := newFixture(t, winningBars())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.runner.Run(ctx, request())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.store.runs)
}

func TestBacktestRunner_ResamplesToTimeframe(t *testing.T) {
	bars := make([]models.Bar, 0, 10)
	for i := 0; i < 10; i++ {
		bars = append(bars, bar(i, 100, 100.5, 99.5, 100))
	}
	f := newFixture(t, bars)
	req := request()
	req.Strategy.Timeframe = "5m"
	req.End = t0.Add(10 * time.Minute)

	res, err := f.runner.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "5m", res.Timeframe)
	assert.Equal(t, 2, res.BarsScanned)
}

func TestBatchRunner_OrderAndIsolation(t *testing.T) {
	f := newFixture(t, winningBars())
	f.bars.delay = 20 * time.Millisecond
	batch := NewBatchRunner(f.runner, 2)

	bad := request()
	bad.Strategy.EntryConditions = nil
	reqs := []models.BacktestRequest{request(), bad, request(), request()}
	reqs[2].RunID = "third"

	items := batch.Run(context.Background(), reqs)
	require.Len(t, items, 4)
	assert.NotNil(t, items[0].Result)
	assert.Nil(t, items[1].Result)
	assert.NotEmpty(t, items[1].Error)
	assert.NotEmpty(t, items[1].Fields)
	assert.Equal(t, "third", items[2].RunID)
	assert.Equal(t, "third", items[2].Result.RunID)
	assert.NotNil(t, items[3].Result)
	assert.LessOrEqual(t, atomic.LoadInt32(&f.bars.maxSeen), int32(2))
}

func TestResultSink_Backends(t *testing.T) {
	_, err := NewResultSink(BackendKafka, nil, nil, nil, 0, nil)
	assert.Error(t, err)
	_, err = NewResultSink(BackendBoth, newMemStore(), nil, nil, 0, nil)
	assert.Error(t, err)
	_, err = NewResultSink("s3", nil, nil, nil, 0, nil)
	assert.Error(t, err)

	pub := &fakePublisher{}
	mem := cache.NewMemoryCache()
	defer mem.Close()
	sink, err := NewResultSink(BackendKafka, nil, pub, mem, time.Minute, nil)
	require.NoError(t, err)

	res := &models.StrategyResult{RunID: "k1", Symbol: "ES", Trades: []models.TradeResult{}}
	require.NoError(t, sink.Save(context.Background(), res))
	assert.Len(t, pub.results, 1)

	got, err := sink.Get(context.Background(), "k1")
	require.NoError(t, err)
	assert.Equal(t, "ES", got.Symbol)

	_, err = sink.Get(context.Background(), "unknown")
	assert.ErrorIs(t, err, models.ErrRunNotFound)
}

func TestResultSink_BothWritesStoreAndPublishes(t *testing.T) {
	store := newMemStore()
	pub := &fakePublisher{}
	sink, err := NewResultSink(BackendBoth, store, pub, nil, time.Minute, nil)
	require.NoError(t, err)

	require.NoError(t, sink.Save(context.Background(), &models.StrategyResult{RunID: "b1"}))
	assert.Contains(t, store.runs, "b1")
	assert.Len(t, pub.results, 1)

	store.saveE = errors.New("insert failed")
	err = sink.Save(context.Background(), &models.StrategyResult{RunID: "b2"})
	assert.ErrorContains(t, err, "save result")
	assert.Len(t, pub.results, 1)
}

type fakeNarrative struct{ err error }

func (n fakeNarrative) Generate(_ context.Context, f models.TradeFacts) (string, error) {
	return "trade " + string(f.Result), n.err
}

func TestDiagnosticsUseCase(t *testing.T) {
	f := newFixture(t, winningBars())
	res, err := f.runner.Run(context.Background(), request())
	require.NoError(t, err)

	mem := cache.NewMemoryCache()
	defer mem.Close()
	sink, err := NewResultSink(BackendClickHouse, f.store, nil, mem, time.Minute, nil)
	require.NoError(t, err)
	uc := NewDiagnosticsUseCase(sink, f.bars, fakeNarrative{}, mem, time.Minute, 0, nil)
	ctx := context.Background()

	hm, err := uc.Heatmap(ctx, res.RunID, models.DimensionHour)
	require.NoError(t, err)
	assert.Equal(t, res.RunID, hm.RunID)
	require.Len(t, hm.Cells, 1)
	assert.Equal(t, "14", hm.Cells[0].Key)

	gets := f.store.gets
	_, err = uc.Heatmap(ctx, res.RunID, models.DimensionHour)
	require.NoError(t, err)
	assert.Equal(t, gets, f.store.gets, "second heatmap is served from cache")

	similar, err := uc.Similar(ctx, res.RunID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, similar)

	_, err = uc.Similar(ctx, res.RunID, 5, 0)
	assert.ErrorIs(t, err, models.ErrTradeNotFound)

	facts, err := uc.Facts(ctx, res.RunID, 0, true)
	require.NoError(t, err)
	assert.Equal(t, "us_open", facts.HourBucket)
	assert.Equal(t, "trade win", facts.Narrative)

	plain, err := uc.Facts(ctx, res.RunID, 0, false)
	require.NoError(t, err)
	assert.Empty(t, plain.Narrative)

	_, err = uc.Facts(ctx, "nope", 0, false)
	assert.ErrorIs(t, err, models.ErrRunNotFound)
}

func TestRequestHandler(t *testing.T) {
	f := newFixture(t, winningBars())
	h := NewRequestHandler("backtest.requests", f.runner, nil, nil)
	assert.Equal(t, "backtest.requests", h.Topic())

	assert.Error(t, h.Handle(context.Background(), []byte("{not json")))

	bad := request()
	bad.Strategy.Direction = "sideways"
	raw, _ := json.Marshal(bad)
	assert.NoError(t, h.Handle(context.Background(), raw))

	good := request()
	good.RunID = "from-kafka"
	raw, _ = json.Marshal(good)
	require.NoError(t, h.Handle(context.Background(), raw))
	assert.Contains(t, f.store.runs, "from-kafka")

	f.bars.err = errors.New("timeout")
	good.RunID = "retry-me"
	raw, _ = json.Marshal(good)
	assert.Error(t, h.Handle(context.Background(), raw))
}

type fakeQueue struct {
	msgType string
	payload interface{}
	err     error
}

func (q *fakeQueue) Enqueue(_ context.Context, msgType string, payload interface{}) (string, error) {
	q.msgType, q.payload = msgType, payload
	return "msg-1", q.err
}

func TestAsyncSubmitterAndRunJob(t *testing.T) {
	f := newFixture(t, winningBars())
	q := &fakeQueue{}
	sub := NewAsyncSubmitter(q, f.runner, f.events)

	req := request()
	req.Async = true
	acc, err := sub.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "run-a", acc.RunID)
	assert.Equal(t, "queued", acc.Status)
	assert.Equal(t, RunJobType, q.msgType)

	queued := q.payload.(models.BacktestRequest)
	assert.False(t, queued.Async)
	raw, err := json.Marshal(queued)
	require.NoError(t, err)

	job := NewRunJob(f.runner)
	require.NoError(t, job.Handle(context.Background(), raw))
	assert.Contains(t, f.store.runs, "run-a")
	assert.Equal(t, []models.RunStatus{models.RunQueued, models.RunRunning, models.RunDone}, f.events.statuses())

	var disabled *AsyncSubmitter
	_, err = disabled.Submit(context.Background(), req)
	assert.ErrorIs(t, err, models.ErrServiceUnavailable)
}

func TestRunHub(t *testing.T) {
	hub := NewRunHub(nil, 1)
	ch, cancel := hub.Subscribe()
	assert.Equal(t, 1, hub.Subscribers())

	hub.Emit(models.RunEvent{RunID: "a", Status: models.RunRunning})
	// buffer of one: the second event is dropped
	hub.Emit(models.RunEvent{RunID: "a", Status: models.RunDone})

	ev := <-ch
	assert.Equal(t, models.RunRunning, ev.Status)
	assert.False(t, ev.At.IsZero())

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, hub.Subscribers())
}
