package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics for outbound calls to the narrative and strategy-parser services.
var (
	once sync.Once

	RemoteLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stratlab",
			Subsystem: "remote",
			Name:      "latency_seconds",
			Help:      "Latency of calls to remote collaborators",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	RemoteErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stratlab",
			Subsystem: "remote",
			Name:      "errors_total",
			Help:      "Failed calls to remote collaborators, including open-breaker rejections",
		},
		[]string{"service", "reason"},
	)

	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "stratlab",
			Subsystem: "remote",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"service"},
	)
)

// Register adds the remote metrics to the default registry once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(RemoteLatency, RemoteErrors, BreakerState)
	})
}
