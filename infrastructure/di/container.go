package di

import (
	commandbus "commodities/application/commands/bus"
	commandhandlers "commodities/application/commands/handlers"
	"commodities/application/ports"
	querybus "commodities/application/queries/bus"
	"commodities/infrastructure/config"
	"commodities/infrastructure/observability"
	"commodities/infrastructure/persistence/sqlite"
	pkgobs "commodities/pkg/observability"
	"commodities/pkg/ratelimit"

	"go.uber.org/zap"
)

// Container holds the dependencies of the HTTP API
type Container struct {
	Config    *config.Config
	Logger    *zap.Logger
	Index     ports.IndexReader
	QueryBus  *querybus.QueryBus
	Collector *observability.Collector
	Tracer    *pkgobs.Tracer
	Cache     ports.Cache
	// RateLimiter is nil when rate limiting is disabled
	RateLimiter ratelimit.Limiter
}

// RebuildContainer holds the dependencies of the batch rebuild
type RebuildContainer struct {
	Config     *config.Config
	Logger     *zap.Logger
	FactStore  *sqlite.Store
	Index      ports.IndexReader
	Rebuild    *commandhandlers.RebuildIndexHandler
	CommandBus *commandbus.CommandBus
}
