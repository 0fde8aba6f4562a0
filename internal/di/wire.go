//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"StratLab/pkg/config"
	"StratLab/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideRedisClient,
		ProvideCache,
		ProvideRunQueue,

		// Repositories
		ProvideBarStore,
		ProvideResultStore,
		ProvideResultPublisher,

		// Services and use cases
		ProvideErrorTracker,
		ProvideRunHub,
		ProvideResultSink,
		ProvideBacktestRunner,
		ProvideBatchRunner,
		ProvideAsyncSubmitter,
		ProvideNarrativeGenerator,
		ProvideStrategyParser,
		ProvideDiagnostics,
		ProvideRequestHandler,

		// Transport
		ProvideBacktestsHandler,
		ProvideRunEventsHandler,
		ProvideHTTPServer,

		ProvideApp,
	)
	return &server.App{}, nil
}
