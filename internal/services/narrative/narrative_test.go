package narrative

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StratLab/internal/domain/models"
	"StratLab/pkg/config"
)

func sampleFacts() models.TradeFacts {
	return models.TradeFacts{
		RunID:        "run-1",
		TradeIndex:   3,
		Direction:    models.Long,
		Result:       models.OutcomeLoss,
		Pnl:          -125,
		EntryReasons: []string{"close > vwap (5001 vs 4998)"},
		ExitReason:   models.ExitStopLoss,
		HourBucket:   "us_open",
		Trend:        "uptrend",
		Volatility:   "high",
		EntryQuality: 42,
		ExitQuality:  10,
		BarsHeld:     4,
	}
}

func TestTemplate_Generate(t *testing.T) {
	text, err := Template{}.Generate(context.Background(), sampleFacts())
	require.NoError(t, err)
	assert.Equal(t, "Long trade #3 lost 125.00 after 4 bars. Entered on close > vwap (5001 vs 4998). Exit: stop loss."+
		" Context: us_open session, trend uptrend, volatility high. Entry quality 42/100, exit quality 10/100.", text)
}

func TestClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer k1", r.Header.Get("Authorization"))
		var f models.TradeFacts
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&f))
		assert.Equal(t, 3, f.TradeIndex)
		_, _ = w.Write([]byte(`{"narrative":"A stop-out right at the open."}`))
	}))
	defer srv.Close()

	c := NewClient(config.RemoteConfig{URL: srv.URL, APIKey: "k1", Timeout: time.Second}, nil)
	text, err := c.Generate(context.Background(), sampleFacts())
	require.NoError(t, err)
	assert.Equal(t, "A stop-out right at the open.", text)
}

func TestClient_FallsBackToTemplate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(config.RemoteConfig{URL: srv.URL, Timeout: time.Second}, nil)
	text, err := c.Generate(context.Background(), sampleFacts())
	require.NoError(t, err)
	assert.Contains(t, text, "Long trade #3 lost 125.00")
}

func TestNew(t *testing.T) {
	assert.IsType(t, Template{}, New(config.RemoteConfig{}, nil))
	assert.IsType(t, &Client{}, New(config.RemoteConfig{URL: "http://narrative:9000"}, nil))
}
