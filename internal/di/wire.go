//go:build wireinject
// +build wireinject

package di

import (
	"TWSignal/pkg/config"
	"TWSignal/pkg/server"

	"github.com/google/wire"
)

var serviceSet = wire.NewSet(
	// Ambient
	ProvideLogger,
	ProvideMetrics,
	ProvideCache,
	ProvideLimiter,
	ProvideHTTPClient,

	// Upstream sources
	ProvideYahoo,
	ProvideTWSE,

	// Local stores and optional infrastructure
	ProvideBarCache,
	ProvideFlowCache,
	ProvideUniverseStore,
	ProvideClickHouseClient,
	ProvideBarArchive,
	ProvideKafkaProducer,
	ProvideSignalPublisher,
	ProvideModelRegistry,

	// Use cases
	ProvideMarketData,
	ProvideAnalysis,
	ProvideBacktester,
	ProvideTrainer,

	wire.Struct(new(Services), "*"),
)

// InitializeServices wires the use cases for the CLI.
func InitializeServices(cfg *config.Config) (*Services, func(), error) {
	wire.Build(serviceSet)
	return nil, nil, nil
}

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(serviceSet, ProvideHandler, ProvideApp)
	return nil, nil, nil
}
