//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"commodities/infrastructure/config"

	"github.com/google/wire"
)

// BaseSet provides what both the API and the rebuild need
var BaseSet = wire.NewSet(
	ProvideLogger,
	ProvideDomainConfig,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideS3Client,
	ProvideSnapshotArchive,
	ProvideIndexBackend,
	ProvideIndexReader,
	ProvideCollector,
	ProvideTracer,
	ProvideInMemoryCache,
	ProvideCache,
)

// SuperSet is the provider set of the HTTP API
var SuperSet = wire.NewSet(
	BaseSet,
	ProvideQueryBus,
	ProvideRateLimiter,
	wire.Struct(new(Container), "*"),
)

// RebuildSet is the provider set of the batch rebuild
var RebuildSet = wire.NewSet(
	BaseSet,
	ProvideIndexPublisher,
	ProvideEventBridgeClient,
	ProvideCloudWatchClient,
	ProvideEventPublisher,
	ProvideRunMetrics,
	ProvideFactStore,
	ProvideRebuildLock,
	ProvideRebuildHandler,
	ProvideCommandBus,
	wire.Struct(new(RebuildContainer), "*"),
)

// InitializeContainer creates a fully wired API container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil // Wire will replace this
}

// InitializeRebuildContainer creates a fully wired rebuild container
func InitializeRebuildContainer(ctx context.Context, cfg *config.Config) (*RebuildContainer, func(), error) {
	wire.Build(RebuildSet)
	return nil, nil, nil // Wire will replace this
}
