//go:build wireinject
// +build wireinject

package di

import (
	"PricePulse/internal/domain/repository"
	internalrepo "PricePulse/internal/repository"
	"PricePulse/pkg/config"
	"PricePulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
    wire.Build(
        // Ambient
        ProvideLogger,
        ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideCatalog,
		wire.Bind(new(repository.Catalog), new(*internalrepo.StaticCatalog)),
		ProvidePriceStore,
		ProvideActivityStore,
		ProvidePayloadCache,

		// Core services
		ProvideForecaster,
		ProvideDetector,
		ProvideRanker,

        // Use cases
        ProvideForecastService,
        ProvideRecommendService,
        ProvideDealHub,
        ProvideAlertPublisher,
        ProvideIngestService,
        ProvideIngestPipeline,
        ProvideKafkaPricesHandler,
        ProvideDealSweep,

        // Application server
        ProvideRateLimiter,
        ProvidePricingHandler,
        ProvideApp,
    )
    return &server.App{}, nil
}
