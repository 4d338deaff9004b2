//go:build wireinject
// +build wireinject

package di

import (
	"github.com/anshul202/derivative-api/pkg/config"
	"github.com/anshul202/derivative-api/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideCache,
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Repositories
		ProvidePriceHistory,
		ProvideQuotePublisher,

		// Providers
		ProvideSolarResource,
		ProvideMarketData,
		ProvideFXSource,

		// Engine and use case
		ProvideOrchestrator,
		ProvidePricingService,

		// HTTP
		ProvideFuturesHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
