package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain repository.Metrics using Prometheus.
type Recorder struct {
	runsTotal     *prometheus.CounterVec
	tradesTotal   *prometheus.CounterVec
	failuresTotal *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

// New registers the recorder on the default registry. Call it once per process.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		runsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratlab_backtest_runs_total",
				Help: "Backtest runs by final status",
			},
			[]string{"status"},
		),
		tradesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratlab_backtest_trades_total",
				Help: "Simulated trades by symbol",
			},
			[]string{"symbol"},
		),
		failuresTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratlab_backtest_failures_total",
				Help: "Recoverable failures recorded during scans, by error type",
			},
			[]string{"type"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratlab_errors_total",
				Help: "Operational errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stratlab_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"operation"},
		),
	}
}

// RecordRun counts a finished run (ok, empty, invalid, failed).
func (r *Recorder) RecordRun(status string) {
	r.runsTotal.WithLabelValues(status).Inc()
}

func (r *Recorder) RecordTrades(symbol string, n int) {
	r.tradesTotal.WithLabelValues(symbol).Add(float64(n))
}

func (r *Recorder) RecordFailure(kind string) {
	r.failuresTotal.WithLabelValues(kind).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards everything. Used by the CLI and tests.
type Nop struct{}

func (Nop) RecordRun(string)              {}
func (Nop) RecordTrades(string, int)      {}
func (Nop) RecordFailure(string)          {}
func (Nop) RecordError(string)            {}
func (Nop) RecordLatency(string, float64) {}
