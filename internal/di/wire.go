//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"SignalDesk/pkg/config"
	"SignalDesk/pkg/server"
)

var infraSet = wire.NewSet(
	ProvideKafkaProducer,
	ProvideLogger,
	ProvideMetrics,
	ProvidePostgres,
	ProvideStore,
	ProvideSignalRepository,
	ProvidePositionRepository,
	ProvideAllocationRepository,
	ProvideClickHouseClient,
	ProvideCandleStore,
	ProvideRedis,
	ProvideCache,
	ProvideRunLocker,
	ProvideEventPublisher,
	ProvideQuoteProvider,
	ProvideInfra,
)

var usecaseSet = wire.NewSet(
	ProvideStrategyRegistry,
	ProvideScreener,
	ProvideEnsembleService,
	ProvideRankingService,
	ProvideAllocationService,
	ProvideLifecycleService,
	ProvidePipelineService,
	ProvideBacktestService,
	ProvideCandlesUseCase,
	ProvideJobQueue,
	ProvideKafkaConsumer,
	ProvideScheduler,
)

var handlerSet = wire.NewSet(
	ProvideJWT,
	ProvideSignalsHandler,
	ProvidePortfolioHandler,
	ProvideResearchHandler,
	ProvideJobsHandler,
)

// InitializeApp wires up all dependencies and returns the application.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(infraSet, usecaseSet, handlerSet, ProvideApp)
	return &server.App{}, nil
}
