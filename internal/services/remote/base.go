package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"StratLab/internal/domain/models"
	"StratLab/internal/service/metrics"
	"StratLab/pkg/config"
	xhttp "StratLab/pkg/http"
)

// HTTPServiceBase is the shared JSON client of the remote collaborators.
// Calls go through a circuit breaker; 4xx answers do not count as failures.
type HTTPServiceBase struct {
	name    string
	baseURL string
	client  *xhttp.Client
	breaker *gobreaker.CircuitBreaker
}

// BreakerOption tunes the breaker of an HTTPServiceBase.
type BreakerOption func(*gobreaker.Settings)

// WithTripAfter opens the breaker after n consecutive failures.
func WithTripAfter(n uint32) BreakerOption {
	return func(s *gobreaker.Settings) {
		s.ReadyToTrip = func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= n }
	}
}

// WithOpenTimeout sets how long the breaker stays open before probing.
func WithOpenTimeout(d time.Duration) BreakerOption {
	return func(s *gobreaker.Settings) {
		s.Timeout = d
	}
}

func NewHTTPServiceBase(name string, cfg config.RemoteConfig, opts ...BreakerOption) *HTTPServiceBase {
	metrics.Register()
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
		IsSuccessful: func(err error) bool {
			var se *xhttp.StatusError
			return err == nil || (errors.As(err, &se) && !se.Temporary())
		},
		OnStateChange: func(name string, _, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		},
	}
	for _, opt := range opts {
		opt(&st)
	}
	clientOpts := []xhttp.ClientOption{xhttp.WithTimeout(timeout)}
	if cfg.APIKey != "" {
		clientOpts = append(clientOpts, xhttp.WithHeader("Authorization", "Bearer "+cfg.APIKey))
	}
	return &HTTPServiceBase{
		name:    name,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		client:  xhttp.NewClient(clientOpts...),
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

func (b *HTTPServiceBase) Name() string { return b.name }

// PostJSON posts payload to path under the base URL and decodes the answer into dest.
// An open breaker or a transport failure is reported as models.ErrServiceUnavailable.
func (b *HTTPServiceBase) PostJSON(ctx context.Context, path string, payload, dest interface{}) error {
	if b == nil || b.baseURL == "" {
		return fmt.Errorf("remote client not configured: %w", models.ErrServiceUnavailable)
	}
	start := time.Now()
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.client.PostJSON(ctx, b.baseURL+path, payload, dest)
	})
	metrics.RemoteLatency.WithLabelValues(b.name).Observe(time.Since(start).Seconds())
	if err == nil {
		return nil
	}

	var se *xhttp.StatusError
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RemoteErrors.WithLabelValues(b.name, "breaker_open").Inc()
		return fmt.Errorf("%s: %w", b.name, models.ErrServiceUnavailable)
	case errors.As(err, &se) && !se.Temporary():
		metrics.RemoteErrors.WithLabelValues(b.name, "rejected").Inc()
		return fmt.Errorf("post %s: %w", path, err)
	default:
		metrics.RemoteErrors.WithLabelValues(b.name, "request").Inc()
		return fmt.Errorf("post %s: %v: %w", path, err, models.ErrServiceUnavailable)
	}
}
