package di

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"StratLab/internal/domain/repository"
	domsvc "StratLab/internal/domain/service"
	"StratLab/internal/handler/api"
	internalrepo "StratLab/internal/repository"
	"StratLab/internal/service/errortrack"
	"StratLab/internal/service/ratelimit"
	"StratLab/internal/services/narrative"
	"StratLab/internal/services/parser"
	"StratLab/internal/usecase"
	"StratLab/pkg/cache"
	pkgch "StratLab/pkg/clickhouse"
	"StratLab/pkg/config"
	xhttp "StratLab/pkg/http"
	"StratLab/pkg/http/middleware"
	pkgkafka "StratLab/pkg/kafka"
	applogger "StratLab/pkg/logger"
	"StratLab/pkg/metrics"
	"StratLab/pkg/queue"
	"StratLab/pkg/server"
)

// Optional infrastructure (Kafka, Redis) is provided as nil when it is not
// configured; every consumer of these providers accepts nil.

func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Output:  cfg.Logging.Output,
		Service: "stratlab",
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient connects and, unless disabled, creates the bar table.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if !cfg.ClickHouse.InitSchema {
		return client, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, []string{internalrepo.BarsSchema(cfg.ClickHouse.BarsTable)}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

func ProvideBarStore(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) repository.BarStore {
	s := internalrepo.NewCHBarStore(ch, cfg.ClickHouse.BarsTable)
	s.SetLogger(l)
	return s
}

// ProvideResultStore returns nil for the kafka-only backend.
func ProvideResultStore(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) (repository.ResultStore, error) {
	if cfg.Backend.Type == usecase.BackendKafka {
		return nil, nil
	}
	s := internalrepo.NewCHResultStore(ch, l)
	if cfg.ClickHouse.InitSchema {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Init(ctx); err != nil {
			return nil, fmt.Errorf("result schema: %w", err)
		}
	}
	return s, nil
}

// ProvideKafkaProducer returns nil when no brokers are configured.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled() {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

func ProvideResultPublisher(p *pkgkafka.Producer, cfg *config.Config) repository.ResultPublisher {
	if p == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(p, cfg.Kafka.Topics.Results, cfg.Kafka.Topics.Errors)
}

// ProvideKafkaConsumer returns nil unless request intake is enabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.SetHook(pkgkafka.HookChain{pkgkafka.TraceHook{}})
	return consumer, nil
}

// ProvideRedisClient returns nil when Redis is disabled.
func ProvideRedisClient(cfg *config.Config) (redis.UniversalClient, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc.Client(), nil
}

// ProvideCache layers an in-process LRU over Redis, or uses the LRU alone.
func ProvideCache(rc redis.UniversalClient, cfg *config.Config) cache.Service {
	memOpts := []cache.MemoryOption{
		cache.WithMemoryMaxSize(cfg.Cache.MaxEntries),
		cache.WithMemoryTTL(cfg.Cache.TTL),
		cache.WithMemoryCleanup(cfg.Cache.CleanupInterval),
	}
	if rc == nil {
		return cache.NewMemoryCache(memOpts...)
	}
	return cache.NewLayeredCache(cache.NewRedisCacheFromClient(rc, "stratlab:cache"), memOpts...)
}

// ProvideRunQueue returns nil without Redis; async submissions then answer 503.
func ProvideRunQueue(rc redis.UniversalClient, cfg *config.Config, l *applogger.Logger) *queue.RedisQueue {
	if rc == nil {
		return nil
	}
	return queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:     cfg.Queue.Workers,
		RetryLimit:  cfg.Queue.MaxRetries,
		RetryDelay:  cfg.Queue.RetryDelay,
		PollTimeout: cfg.Queue.PollTimeout,
	}, rc, queue.WithKeyPrefix(cfg.Queue.Name))
}

func ProvideErrorTracker(l *applogger.Logger, m repository.Metrics, pub repository.ResultPublisher) domsvc.ErrorTracker {
	return errortrack.New(l, m, pub)
}

func ProvideRunHub(m repository.Metrics) *usecase.RunHub {
	return usecase.NewRunHub(m, 64)
}

func ProvideResultSink(
	cfg *config.Config,
	store repository.ResultStore,
	pub repository.ResultPublisher,
	c cache.Service,
	m repository.Metrics,
) (*usecase.ResultSink, error) {
	return usecase.NewResultSink(cfg.Backend.Type, store, pub, c, cfg.Cache.TTL, m)
}

func ProvideBacktestRunner(
	bars repository.BarStore,
	sink *usecase.ResultSink,
	tracker domsvc.ErrorTracker,
	m repository.Metrics,
	hub *usecase.RunHub,
	l *applogger.Logger,
	cfg *config.Config,
) *usecase.BacktestRunner {
	return usecase.NewBacktestRunner(bars, sink, tracker, m, hub, l, usecase.RunnerConfig{
		FillPolicy:       cfg.Backtest.FillPolicy,
		CancelCheckEvery: cfg.Backtest.CancelCheckEvery,
		RunTimeout:       cfg.Backtest.RunTimeout,
	})
}

func ProvideBatchRunner(runner *usecase.BacktestRunner, cfg *config.Config) *usecase.BatchRunner {
	return usecase.NewBatchRunner(runner, cfg.Backtest.MaxWorkers)
}

func ProvideAsyncSubmitter(q *queue.RedisQueue, runner *usecase.BacktestRunner, hub *usecase.RunHub) *usecase.AsyncSubmitter {
	if q == nil {
		// a nil *RedisQueue inside the interface would look enabled
		return usecase.NewAsyncSubmitter(nil, runner, hub)
	}
	return usecase.NewAsyncSubmitter(q, runner, hub)
}

func ProvideNarrativeGenerator(cfg *config.Config, l *applogger.Logger) domsvc.NarrativeGenerator {
	return narrative.New(cfg.Narrative, l)
}

func ProvideStrategyParser(cfg *config.Config, l *applogger.Logger) domsvc.StrategyParser {
	return parser.New(cfg.Parser, l)
}

func ProvideDiagnostics(
	sink *usecase.ResultSink,
	bars repository.BarStore,
	gen domsvc.NarrativeGenerator,
	c cache.Service,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.DiagnosticsUseCase {
	return usecase.NewDiagnosticsUseCase(sink, bars, gen, c, cfg.Cache.TTL, cfg.Backtest.SimilarTopN, l)
}

func ProvideRequestHandler(cfg *config.Config, runner *usecase.BacktestRunner, m repository.Metrics, l *applogger.Logger) *usecase.RequestHandler {
	return usecase.NewRequestHandler(cfg.Kafka.Topics.Requests, runner, m, l)
}

func ProvideBacktestsHandler(
	l *applogger.Logger,
	runner *usecase.BacktestRunner,
	batch *usecase.BatchRunner,
	async *usecase.AsyncSubmitter,
	diag *usecase.DiagnosticsUseCase,
	p domsvc.StrategyParser,
) *api.BacktestsEchoHandler {
	return api.NewBacktestsEchoHandler(l, runner, batch, async, diag, p)
}

func ProvideRunEventsHandler(l *applogger.Logger, hub *usecase.RunHub) *api.RunEventsHandler {
	return api.NewRunEventsHandler(l, hub)
}

func ProvideHTTPServer(
	cfg *config.Config,
	l *applogger.Logger,
	backtests *api.BacktestsEchoHandler,
	events *api.RunEventsHandler,
) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithAllowedOrigins(cfg.Server.AllowedOrigins),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetricsPath(cfg.Metrics.Path))
	} else {
		opts = append(opts, xhttp.WithMetricsPath(""))
	}
	if cfg.RateLimit.Enabled {
		var limiter middleware.Limiter = ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		opts = append(opts, xhttp.WithLimiter(limiter))
	}
	return xhttp.NewServer(l, []xhttp.Handler{backtests, events}, opts...)
}

// ProvideApp assembles the lifecycle and the close order of the infrastructure.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	consumer *pkgkafka.Consumer,
	requests *usecase.RequestHandler,
	q *queue.RedisQueue,
	runner *usecase.BacktestRunner,
	ch *pkgch.Client,
	producer *pkgkafka.Producer,
	rc redis.UniversalClient,
	sink *usecase.ResultSink,
) *server.App {
	app := server.New(cfg, l, srv, consumer, q)
	app.OnClose("clickhouse", ch.Close)
	if producer != nil && cfg.Logging.Collect {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval: cfg.Logging.Flush,
			Topic:        cfg.Logging.Topic,
			Publisher:    producer,
			Levels:       []string{"warn", "error"},
		})
	}
	if rc != nil {
		app.OnClose("redis", rc.Close)
	}
	// the sink owns the result store and the publisher, which owns the producer
	app.OnClose("result sink", func() error {
		sink.Close()
		return nil
	})
	if consumer != nil {
		app.AddKafkaHandler(requests)
	}
	if q != nil {
		app.AddJob(usecase.NewRunJob(runner))
	}
	return app
}
