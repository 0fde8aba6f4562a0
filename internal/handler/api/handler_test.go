package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StratLab/internal/domain/models"
	"StratLab/internal/usecase"
	"StratLab/pkg/queue"
)

var t0 = time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)

func bar(i int, o, h, l, c float64) models.Bar {
	return models.Bar{Symbol: "ES", Timestamp: t0.Add(time.Duration(i) * time.Minute), Open: o, High: h, Low: l, Close: c, Volume: 1000}
}

type staticBars []models.Bar

func (b staticBars) GetBars(context.Context, string, time.Time, time.Time) ([]models.Bar, error) {
	return b, nil
}

type memStore struct {
	mu   sync.Mutex
	runs map[string]*models.StrategyResult
}

func (s *memStore) Init(context.Context) error { return nil }

func (s *memStore) Save(_ context.Context, res *models.StrategyResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[res.RunID] = res
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*models.StrategyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.runs[id]; ok {
		return r, nil
	}
	return nil, models.ErrRunNotFound
}

func (s *memStore) Health(context.Context) error { return nil }
func (s *memStore) Close() error                 { return nil }

type fakeQueue struct{ msgType string }

func (q *fakeQueue) Enqueue(_ context.Context, msgType string, _ interface{}) (string, error) {
	q.msgType = msgType
	return "msg-1", nil
}

type fixedParser struct{ st models.Strategy }

func (p fixedParser) Parse(_ context.Context, _, symbol string) (models.Strategy, error) {
	st := p.st
	st.Symbol = symbol
	return st, nil
}

func strategy() models.Strategy {
	return models.Strategy{
		Name:            "close above 99",
		Direction:       models.Long,
		Symbol:          "ES",
		EntryConditions: []models.Condition{{Indicator: "close", Operator: models.OpGreater, Operand: "99"}},
		StopLoss:        &models.RiskRule{Type: models.RiskPoints, Value: 5},
		TakeProfit:      &models.RiskRule{Type: models.RiskPoints, Value: 10},
	}
}

type env struct {
	e     *echo.Echo
	hub   *usecase.RunHub
	queue *fakeQueue
}

func newEnv(t *testing.T, q queue.Publisher) *env {
	t.Helper()
	bars := staticBars{
		bar(0, 100, 100.5, 99.5, 100),
		bar(1, 101, 111, 100.5, 110),
		bar(2, 110, 110.5, 109, 110),
	}
	sink, err := usecase.NewResultSink(usecase.BackendClickHouse, &memStore{runs: map[string]*models.StrategyResult{}}, nil, nil, time.Minute, nil)
	require.NoError(t, err)
	hub := usecase.NewRunHub(nil, 8)
	runner := usecase.NewBacktestRunner(bars, sink, nil, nil, hub, nil, usecase.RunnerConfig{FillPolicy: "close"})
	h := NewBacktestsEchoHandler(
		nil,
		runner,
		usecase.NewBatchRunner(runner, 2),
		usecase.NewAsyncSubmitter(q, runner, hub),
		usecase.NewDiagnosticsUseCase(sink, bars, nil, nil, time.Minute, 5, nil),
		fixedParser{st: strategy()},
	)
	e := echo.New()
	h.RegisterRoutes(e)
	NewRunEventsHandler(nil, hub).RegisterRoutes(e)
	fq, _ := q.(*fakeQueue)
	return &env{e: e, hub: hub, queue: fq}
}

func (v *env) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	v.e.ServeHTTP(rec, req)
	return rec
}

func runBody(t *testing.T, mutate func(map[string]interface{})) string {
	t.Helper()
	body := map[string]interface{}{
		"strategy": strategy(),
		"start":    t0.Format(time.RFC3339),
		"end":      t0.Add(3 * time.Minute).Format(time.RFC3339),
	}
	if mutate != nil {
		mutate(body)
	}
	b, err := json.Marshal(body)
	require.NoError(t, err)
	return string(b)
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) models.StrategyResult {
	t.Helper()
	var out struct {
		Data models.StrategyResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.Data
}

func TestBacktests_CreateAndRead(t *testing.T) {
	v := newEnv(t, nil)

	rec := v.do(http.MethodPost, "/api/backtests", runBody(t, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeResult(t, rec)
	require.NotEmpty(t, res.RunID)
	assert.Equal(t, 1, res.TotalTrades)
	assert.Equal(t, 500.0, res.TotalPnl)

	rec = v.do(http.MethodGet, "/api/backtests/"+res.RunID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, res.RunID, decodeResult(t, rec).RunID)

	rec = v.do(http.MethodGet, "/api/backtests/"+res.RunID+"/trades/0/facts", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"result":"win"`)

	rec = v.do(http.MethodGet, "/api/backtests/"+res.RunID+"/trades/7/similar", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = v.do(http.MethodGet, "/api/backtests/"+res.RunID+"/heatmap?dimension=weekday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBacktests_UnknownRun(t *testing.T) {
	v := newEnv(t, nil)

	rec := v.do(http.MethodGet, "/api/backtests/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_NOT_FOUND")
}

func TestBacktests_InvalidStrategy(t *testing.T) {
	v := newEnv(t, nil)

	rec := v.do(http.MethodPost, "/api/backtests", runBody(t, func(m map[string]interface{}) {
		st := strategy()
		st.StopLoss = nil
		m["strategy"] = st
	}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"strategy.stop_loss"`)

	rec = v.do(http.MethodPost, "/api/backtests", runBody(t, func(m map[string]interface{}) {
		m["end"] = t0.Add(-time.Minute).Format(time.RFC3339)
	}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_GTFIELD")
}

func TestBacktests_Async(t *testing.T) {
	v := newEnv(t, nil)
	rec := v.do(http.MethodPost, "/api/backtests", runBody(t, func(m map[string]interface{}) { m["async"] = true }))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	v = newEnv(t, &fakeQueue{})
	rec = v.do(http.MethodPost, "/api/backtests", runBody(t, func(m map[string]interface{}) { m["async"] = true }))
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"queued"`)
	assert.Equal(t, usecase.RunJobType, v.queue.msgType)
}

func TestBacktests_Batch(t *testing.T) {
	v := newEnv(t, nil)
	one := json.RawMessage(runBody(t, func(m map[string]interface{}) {
		st := strategy()
		st.Timeframe = "1m"
		st.PositionSizing.Contracts = 1
		m["strategy"] = st
		m["fill_policy"] = "close"
	}))
	body, err := json.Marshal(map[string]interface{}{"runs": []json.RawMessage{one, one}})
	require.NoError(t, err)

	rec := v.do(http.MethodPost, "/api/backtests/batch", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		Data struct {
			Rows  []usecase.BatchItem `json:"rows"`
			Total int64               `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Data.Rows, 2)
	assert.NotEqual(t, out.Data.Rows[0].RunID, out.Data.Rows[1].RunID)
	for _, it := range out.Data.Rows {
		assert.Empty(t, it.Error)
		assert.Equal(t, 500.0, it.Result.TotalPnl)
	}

	rec = v.do(http.MethodPost, "/api/backtests/batch", `{"runs":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBacktests_FromText(t *testing.T) {
	v := newEnv(t, nil)
	body := `{"text":"buy when close > 99, stop 5 points, target 10 points","symbol":"ES",` +
		`"start":"2024-03-04T14:30:00Z","end":"2024-03-04T14:33:00Z"}`

	rec := v.do(http.MethodPost, "/api/backtests/from-text", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		Data FromTextResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "ES", out.Data.Strategy.Symbol)
	require.NotNil(t, out.Data.Result)
	assert.Equal(t, 1, out.Data.Result.TotalTrades)
}

func TestRunEvents_StreamFiltersByRun(t *testing.T) {
	v := newEnv(t, nil)
	srv := httptest.NewServer(v.e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/runs?run_id=wanted"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return v.hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	v.hub.Emit(models.RunEvent{RunID: "other", Status: models.RunRunning})
	v.hub.Emit(models.RunEvent{RunID: "wanted", Status: models.RunDone, Trades: 3})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev models.RunEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "wanted", ev.RunID)
	assert.Equal(t, models.RunDone, ev.Status)
	assert.Equal(t, 3, ev.Trades)
}
