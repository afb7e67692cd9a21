package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"commodities/application/commands"
	"commodities/application/commands/bus"
	commandhandlers "commodities/application/commands/handlers"
	"commodities/application/ports"
	querybus "commodities/application/queries/bus"
	queryhandlers "commodities/application/queries/handlers"
	domainconfig "commodities/domain/config"
	"commodities/domain/readindex"
	"commodities/domain/services"
	"commodities/infrastructure/config"
	"commodities/infrastructure/messaging/eventbridge"
	"commodities/infrastructure/observability"
	"commodities/infrastructure/persistence/dynamodb"
	"commodities/infrastructure/persistence/memory"
	"commodities/infrastructure/persistence/sqlite"
	"commodities/infrastructure/storage"
	pkgobs "commodities/pkg/observability"
	"commodities/pkg/ratelimit"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "commodities"

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.IsProduction() || cfg.IsLambda {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", serviceName)), nil
}

// ProvideDomainConfig selects the domain rules for the environment
func ProvideDomainConfig(cfg *config.Config) (*domainconfig.DomainConfig, error) {
	dc := domainconfig.LoadDomainConfig(cfg.Environment)
	if err := dc.Validate(); err != nil {
		return nil, err
	}
	return dc, nil
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if cfg.AWSEndpoint != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.AWSEndpoint)
	}
	return awsCfg, nil
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideCloudWatchClient creates a CloudWatch client
func ProvideCloudWatchClient(awsCfg aws.Config) *awscloudwatch.Client {
	return awscloudwatch.NewFromConfig(awsCfg)
}

// ProvideS3Client creates an S3 client
func ProvideS3Client(awsCfg aws.Config, cfg *config.Config) *awss3.Client {
	s3cfg := storage.S3Config{Endpoint: cfg.AWSEndpoint, UsePathStyle: cfg.S3PathStyle}
	return awss3.NewFromConfig(awsCfg, s3cfg.ClientOptions()...)
}

// ProvideSnapshotArchive opens the archive named by SNAPSHOT_LOCATION:
// s3://bucket/prefix or a local directory. Nil when unset.
func ProvideSnapshotArchive(cfg *config.Config, client *awss3.Client, logger *zap.Logger) (*storage.SnapshotArchive, error) {
	loc := cfg.SnapshotLocation
	if loc == "" {
		return nil, nil
	}
	if rest, ok := strings.CutPrefix(loc, "s3://"); ok {
		bucket, prefix, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return nil, fmt.Errorf("snapshot location %q has no bucket", loc)
		}
		return storage.NewSnapshotArchive(storage.NewS3Store(client, bucket), prefix, logger), nil
	}
	local, err := storage.NewLocalStore(loc)
	if err != nil {
		return nil, err
	}
	return storage.NewSnapshotArchive(local, "", logger), nil
}

// IndexBackend is the reader/publisher pair selected by INDEX_BACKEND
type IndexBackend struct {
	Reader    ports.IndexReader
	Publisher ports.IndexPublisher
}

// ProvideIndexBackend builds the configured index. The memory backend is
// warmed from the latest archived snapshot when one exists.
func ProvideIndexBackend(
	ctx context.Context,
	cfg *config.Config,
	client *awsdynamodb.Client,
	archive *storage.SnapshotArchive,
	logger *zap.Logger,
) (IndexBackend, error) {
	if cfg.IndexBackend == config.BackendDynamoDB {
		store := dynamodb.NewIndexStore(client, cfg.DynamoDBTable, cfg.PointerCacheTTL, logger)
		return IndexBackend{Reader: store, Publisher: store}, nil
	}

	store := memory.NewIndexStore(logger)
	if archive != nil {
		if err := warmFromArchive(ctx, store, archive, logger); err != nil {
			return IndexBackend{}, err
		}
	}
	return IndexBackend{Reader: store, Publisher: store}, nil
}

func warmFromArchive(ctx context.Context, store *memory.IndexStore, archive *storage.SnapshotArchive, logger *zap.Logger) error {
	version, entries, err := archive.LoadLatest(ctx)
	if errors.Is(err, storage.ErrObjectNotFound) {
		logger.Warn("No archived index snapshot, serving an empty index")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load index snapshot: %w", err)
	}
	return store.Publish(ctx, version, entries)
}

// ProvideIndexReader applies the optional circuit breaker
func ProvideIndexReader(backend IndexBackend, cfg *config.Config, logger *zap.Logger) ports.IndexReader {
	if cfg.EnableBreaker {
		return dynamodb.NewBreakerReader(backend.Reader, dynamodb.DefaultBreakerConfig("read-index"), logger)
	}
	return backend.Reader
}

// ProvideIndexPublisher exposes the backend's publisher
func ProvideIndexPublisher(backend IndexBackend) ports.IndexPublisher {
	return backend.Publisher
}

// ProvideCollector creates the Prometheus collector
func ProvideCollector(cfg *config.Config) *observability.Collector {
	return observability.NewCollector(strings.ToLower(cfg.MetricsNamespace))
}

// ProvideTracer creates the X-Ray tracer
func ProvideTracer(cfg *config.Config) *pkgobs.Tracer {
	return pkgobs.NewTracer(serviceName, cfg.EnableTracing)
}

// ProvideRunMetrics fans rebuild statistics out to Prometheus and, when
// enabled, CloudWatch
func ProvideRunMetrics(cfg *config.Config, client *awscloudwatch.Client, collector *observability.Collector, logger *zap.Logger) ports.RunMetrics {
	sinks := observability.MultiRunMetrics{collector}
	if cfg.EnableMetrics {
		namespace := fmt.Sprintf("%s/%s", cfg.MetricsNamespace, cfg.Environment)
		sinks = append(sinks, observability.NewCloudWatchMetrics(namespace, client, logger))
	}
	return sinks
}

// ProvideEventPublisher publishes to EventBridge when a bus is configured
func ProvideEventPublisher(cfg *config.Config, client *awseventbridge.Client, logger *zap.Logger) ports.EventPublisher {
	if cfg.EventBusName == "" {
		return eventbridge.NewLogPublisher(logger)
	}
	return eventbridge.NewPublisher(client, cfg.EventBusName, logger)
}

// ProvideInMemoryCache creates the query result cache
func ProvideInMemoryCache() (*InMemoryCache, func()) {
	cache := NewInMemoryCache(time.Minute)
	return cache, cache.Close
}

// ProvideCache exposes the cache through its port
func ProvideCache(cache *InMemoryCache) ports.Cache {
	return cache
}

// ProvideRateLimiter limits API clients when RATE_LIMIT_PER_MINUTE is set.
// Nil when disabled.
func ProvideRateLimiter(cfg *config.Config) (ratelimit.Limiter, func()) {
	if cfg.RateLimitPerMinute <= 0 {
		return nil, func() {}
	}
	limiter := ratelimit.NewPerMinute(cfg.RateLimitPerMinute)
	return limiter, limiter.StartSweeper(5 * time.Minute)
}

// ProvideQueryBus creates a query bus with every catalog handler registered
func ProvideQueryBus(
	index ports.IndexReader,
	domainCfg *domainconfig.DomainConfig,
	cache ports.Cache,
	collector *observability.Collector,
	cfg *config.Config,
	logger *zap.Logger,
) (*querybus.QueryBus, error) {
	middlewares := []querybus.Middleware{querybus.NewMetricsMiddleware(collector)}
	if cfg.QueryCacheTTL > 0 {
		middlewares = append(middlewares, querybus.NewCachingMiddleware(cache, cfg.QueryCacheTTL).WithVersion(index.Version))
	}
	queryBus := querybus.NewQueryBus(middlewares...)

	handler, err := queryhandlers.NewCatalogHandler(index, domainCfg, logger)
	if err != nil {
		return nil, err
	}
	if err := handler.Register(queryBus); err != nil {
		return nil, err
	}
	return queryBus, nil
}

// ProvideFactStore opens the SQLite fact store
func ProvideFactStore(cfg *config.Config, logger *zap.Logger) (*sqlite.Store, func(), error) {
	store, err := sqlite.Open(cfg.SQLitePath, logger)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close fact store", zap.Error(err))
		}
	}, nil
}

// ProvideRebuildLock uses the DynamoDB lock item when the index lives in
// DynamoDB; a memory index belongs to one process and needs none.
func ProvideRebuildLock(cfg *config.Config, client *awsdynamodb.Client, logger *zap.Logger) ports.RebuildLock {
	if cfg.IndexBackend != config.BackendDynamoDB {
		return nil
	}
	return dynamodb.NewDistributedLock(client, cfg.DynamoDBTable, dynamodb.RebuildResource, logger)
}

// ProvideRebuildHandler wires the batch pipeline
func ProvideRebuildHandler(
	facts *sqlite.Store,
	domainCfg *domainconfig.DomainConfig,
	publisher ports.IndexPublisher,
	archive *storage.SnapshotArchive,
	events ports.EventPublisher,
	metrics ports.RunMetrics,
	lock ports.RebuildLock,
	cache ports.Cache,
	tracer *pkgobs.Tracer,
	cfg *config.Config,
	logger *zap.Logger,
) *commandhandlers.RebuildIndexHandler {
	deps := commandhandlers.RebuildDeps{
		Facts:     facts,
		Engine:    services.NewDerivedMetricsEngine(domainCfg, logger),
		Projector: readindex.NewProjector(domainCfg),
		Publisher: publisher,
		Events:    events,
		Metrics:   metrics,
		Lock:      lock,
		Cache:     cache,
		Tracer:    tracer,
	}
	if archive != nil {
		deps.Exporter = archive
	}
	opts := commandhandlers.RebuildOptions{LockTTL: cfg.LockTTL, LockTimeout: cfg.LockTimeout}
	return commandhandlers.NewRebuildIndexHandler(deps, opts, logger)
}

// ProvideCommandBus creates a command bus with the rebuild handler registered
func ProvideCommandBus(handler *commandhandlers.RebuildIndexHandler, cfg *config.Config, logger *zap.Logger) (*bus.CommandBus, error) {
	commandBus := bus.NewCommandBus(
		bus.LoggingMiddleware(logger),
		bus.TimeoutMiddleware(cfg.LockTTL),
	)
	if err := commandBus.Register(commands.RebuildIndexCommand{}, handler); err != nil {
		return nil, err
	}
	return commandBus, nil
}
