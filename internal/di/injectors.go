//go:build wireinject
// +build wireinject

package di

import (
	wire "github.com/google/wire"

	"crawlerd/internal"
	"crawlerd/internal/controllers"
	"crawlerd/internal/providers"
	"crawlerd/internal/services"
	"crawlerd/internal/statistic"
	"crawlerd/internal/structures"
)

func InitApp(cfg *structures.CliFlags) (*internal.App, func(), error) {

	wire.Build(
		providers.NewConfigProvider,
		providers.NewLogProvider,
		providers.NewMetricsProvider,
		providers.NewInstrumentedCacheProvider,
		providers.NewRateLimiter,

		NewStores,
		wire.FieldsOf(new(*Stores), "Events", "Rollups", "Tenants", "Records"),
		NewKeyValidator,
		NewCompressor,

		services.NewIngestionService,
		statistic.NewFileManager,
		statistic.NewScheduler,
		controllers.NewEventsController,
		controllers.NewApiController,
		controllers.NewHealthController,
		internal.InitRoutes,
		internal.NewApp,
	)

	return nil, nil, nil
}
