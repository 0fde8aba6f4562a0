package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"StratLab/pkg/config"
	xhttp "StratLab/pkg/http"
	pkgkafka "StratLab/pkg/kafka"
	applogger "StratLab/pkg/logger"
	"StratLab/pkg/queue"
)

// App owns the process lifecycle: the HTTP API, the optional Kafka request
// consumer and the optional Redis run queue.
type App struct {
	cfg      *config.Config
	log      *applogger.Logger
	http     *xhttp.Server
	consumer *pkgkafka.Consumer
	handlers []pkgkafka.MessageHandler
	queue    *queue.RedisQueue
	jobs     []queue.Job
	closers  []namedCloser
}

type namedCloser struct {
	name string
	fn   func() error
}

// New creates the app. consumer and q may be nil when Kafka or Redis is not configured.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	http *xhttp.Server,
	consumer *pkgkafka.Consumer,
	q *queue.RedisQueue,
) *App {
	if log == nil {
		log = applogger.NewNop()
	}
	return &App{cfg: cfg, log: log, http: http, consumer: consumer, queue: q}
}

// AddKafkaHandler registers a topic handler started with the consumer.
func (a *App) AddKafkaHandler(h pkgkafka.MessageHandler) {
	if h != nil {
		a.handlers = append(a.handlers, h)
	}
}

// AddJob registers a queue job started with the run queue.
func (a *App) AddJob(j queue.Job) {
	if j != nil {
		a.jobs = append(a.jobs, j)
	}
}

// OnClose registers infrastructure closed after every worker stopped, in reverse order.
func (a *App) OnClose(name string, fn func() error) {
	if fn != nil {
		a.closers = append(a.closers, namedCloser{name: name, fn: fn})
	}
}

// Run starts every component and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and blocks until ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	if err := a.start(); err != nil {
		_ = a.shutdown()
		return err
	}
	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown()
}

func (a *App) start() error {
	if a.queue != nil && len(a.jobs) > 0 {
		for _, j := range a.jobs {
			a.queue.RegisterJob(j)
		}
		if err := a.queue.Start(); err != nil {
			return err
		}
		a.log.Info("run queue started", applogger.Int("jobs", len(a.jobs)))
	}
	if a.consumer != nil && len(a.handlers) > 0 {
		topics := make([]string, 0, len(a.handlers))
		for _, h := range a.handlers {
			a.consumer.RegisterHandler(h)
			topics = append(topics, h.Topic())
		}
		if err := a.consumer.Start(); err != nil {
			return err
		}
		a.log.Info("kafka intake started", applogger.Strings("topics", topics))
	}
	if a.http != nil {
		if err := a.http.Start(); err != nil {
			return err
		}
	}
	a.log.Info("stratlab started",
		applogger.String("env", a.cfg.Environment),
		applogger.String("backend", a.cfg.Backend.Type),
	)
	return nil
}

// shutdown stops intake first so no new run starts, then drains workers,
// then closes the stores they write to.
func (a *App) shutdown() error {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if a.http != nil {
		if err := a.http.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.consumer != nil && len(a.handlers) > 0 {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			a.log.Warn("run queue stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	// flush collected logs while the producer is still open
	a.log.RemoveCollector()
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.log.Warn("close error", applogger.String("component", c.name), applogger.Error(err))
		}
	}
	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
