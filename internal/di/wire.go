//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"github.com/algorithmical-ai/automated-day-trading-sub001/pkg/config"
	"github.com/algorithmical-ai/automated-day-trading-sub001/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		ProvideLocation,

		// Infrastructure clients
		ProvideRedis,
		ProvideKafkaProducer,
		ProvideAuditSink,
		ProvideMarketClock,

		// Repositories and market data
		ProvideStatsStore,
		ProvideBarBook,
		ProvideMarketData,
		ProvideStreamCollector,

		// Use cases
		ProvideAdmissionController,
		ProvideCycleRunner,
		ProvideOutcomeRecorder,
		ProvideKafkaConsumer,

		// HTTP
		ProvideHTTPHandler,
		ProvideRateLimiter,

		ProvideApp,
	)
	return &server.App{}, nil
}
