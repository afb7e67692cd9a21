package handlers

import (
	"context"
	"fmt"
	"time"

	"commodities/application/commands"
	"commodities/application/commands/bus"
	"commodities/application/ports"
	"commodities/domain/core/entities"
	"commodities/domain/events"
	"commodities/domain/readindex"
	"commodities/domain/services"
	pkgerrors "commodities/pkg/errors"
	"commodities/pkg/observability"

	"go.uber.org/zap"
)

// RebuildOptions tunes lock behaviour of the rebuild
type RebuildOptions struct {
	LockTTL     time.Duration
	LockTimeout time.Duration
}

// RebuildIndexHandler runs the batch pipeline: rank and share, write-back,
// balances, projection, publish, archive, notify.
type RebuildIndexHandler struct {
	facts     ports.FactStore
	engine    *services.DerivedMetricsEngine
	projector *readindex.Projector
	publisher ports.IndexPublisher
	exporter  ports.SnapshotExporter
	events    ports.EventPublisher
	metrics   ports.RunMetrics
	lock      ports.RebuildLock
	cache     ports.Cache
	tracer    *observability.Tracer
	opts      RebuildOptions
	logger    *zap.Logger
}

// RebuildDeps groups the collaborators of the rebuild handler. Exporter,
// Events, Metrics, Lock, Cache and Tracer are optional.
type RebuildDeps struct {
	Facts     ports.FactStore
	Engine    *services.DerivedMetricsEngine
	Projector *readindex.Projector
	Publisher ports.IndexPublisher
	Exporter  ports.SnapshotExporter
	Events    ports.EventPublisher
	Metrics   ports.RunMetrics
	Lock      ports.RebuildLock
	Cache     ports.Cache
	Tracer    *observability.Tracer
}

// NewRebuildIndexHandler creates a new rebuild handler
func NewRebuildIndexHandler(deps RebuildDeps, opts RebuildOptions, logger *zap.Logger) *RebuildIndexHandler {
	return &RebuildIndexHandler{
		facts:     deps.Facts,
		engine:    deps.Engine,
		projector: deps.Projector,
		publisher: deps.Publisher,
		exporter:  deps.Exporter,
		events:    deps.Events,
		metrics:   deps.Metrics,
		lock:      deps.Lock,
		cache:     deps.Cache,
		tracer:    deps.Tracer,
		opts:      opts,
		logger:    logger,
	}
}

// Handle implements bus.CommandHandler
func (h *RebuildIndexHandler) Handle(ctx context.Context, c bus.Command) error {
	cmd, ok := c.(commands.RebuildIndexCommand)
	if !ok {
		return pkgerrors.NewInternalError(fmt.Sprintf("unexpected command type %T", c))
	}
	_, err := h.Rebuild(ctx, cmd)
	return err
}

// Rebuild runs the pipeline and returns the statistics of the run
func (h *RebuildIndexHandler) Rebuild(ctx context.Context, cmd commands.RebuildIndexCommand) (ports.RebuildStats, error) {
	start := time.Now()
	stats := ports.RebuildStats{RunID: cmd.RunID, IndexVersion: cmd.RunID}
	logger := h.logger.With(zap.String("runID", cmd.RunID), zap.Bool("dryRun", cmd.DryRun))

	if h.lock != nil && !cmd.DryRun {
		release, err := h.lock.Acquire(ctx, cmd.Owner, h.opts.LockTTL, h.opts.LockTimeout)
		if err != nil {
			return stats, pkgerrors.NewConflictError("another rebuild is running").WithCause(err)
		}
		defer func() {
			// release on a fresh context so a cancelled run still frees the lock
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := release(releaseCtx); err != nil {
				logger.Warn("Failed to release rebuild lock", zap.Error(err))
			}
		}()
	}

	var ranked []entities.Fact
	var rankStats services.RankStats
	err := h.tracer.TraceFunction(ctx, "derived-metrics", func(ctx context.Context) error {
		var facts []entities.Fact
		for _, t := range entities.RankedTypes {
			rows, err := h.facts.QueryFacts(ctx, t, ports.FactFilter{})
			if err != nil {
				return fmt.Errorf("load %s facts: %w", t, err)
			}
			facts = append(facts, rows...)
		}

		var err error
		ranked, rankStats, err = h.engine.ComputeRankAndShare(ctx, facts)
		if err != nil {
			return err
		}
		if cmd.DryRun {
			return nil
		}
		return h.facts.UpdateDerived(ctx, ranked)
	})
	if err != nil {
		return stats, err
	}
	stats.Facts = len(ranked)
	stats.Groups = rankStats.Groups
	stats.ParseFailures = rankStats.ParseFailures
	stats.MissingWorldTotal = rankStats.MissingWorldTotal

	var in readindex.Input
	err = h.tracer.TraceFunction(ctx, "load-catalog", func(ctx context.Context) error {
		return h.loadInput(ctx, &in, cmd.DryRun)
	})
	if err != nil {
		return stats, err
	}
	in.Facts = ranked
	stats.Balances = len(in.Balances)

	entries, err := h.projector.Project(in)
	if err != nil {
		logger.Error("Projection rejected the catalog", zap.Error(err))
		return stats, err
	}
	stats.Entries = len(entries)

	if cmd.DryRun {
		stats.Duration = time.Since(start)
		logger.Info("Dry run complete",
			zap.Int("facts", stats.Facts),
			zap.Int("entries", stats.Entries),
			zap.Int("parseFailures", stats.ParseFailures),
		)
		return stats, nil
	}

	err = h.tracer.TraceFunction(ctx, "publish", func(ctx context.Context) error {
		return h.publisher.Publish(ctx, stats.IndexVersion, entries)
	})
	if err != nil {
		return stats, fmt.Errorf("publish index %s: %w", stats.IndexVersion, err)
	}

	// everything below is best effort: the index is already live
	snapshotURI := h.export(ctx, logger, stats.IndexVersion, entries)
	h.notify(ctx, logger, cmd, stats, snapshotURI)
	if h.cache != nil {
		if err := h.cache.Clear(ctx); err != nil {
			logger.Warn("Failed to clear query cache", zap.Error(err))
		}
	}

	stats.Duration = time.Since(start)
	if h.metrics != nil {
		h.metrics.RecordRebuild(ctx, stats)
	}

	logger.Info("Read index rebuilt",
		zap.String("version", stats.IndexVersion),
		zap.Int("facts", stats.Facts),
		zap.Int("groups", stats.Groups),
		zap.Int("parseFailures", stats.ParseFailures),
		zap.Int("missingWorldTotal", stats.MissingWorldTotal),
		zap.Int("balances", stats.Balances),
		zap.Int("entries", stats.Entries),
		zap.Duration("duration", stats.Duration),
	)
	return stats, nil
}

func (h *RebuildIndexHandler) loadInput(ctx context.Context, in *readindex.Input, dryRun bool) error {
	imports, err := h.facts.TradeFacts(ctx, entities.DirectionImport, ports.FactFilter{})
	if err != nil {
		return fmt.Errorf("load imports: %w", err)
	}
	exports, err := h.facts.TradeFacts(ctx, entities.DirectionExport, ports.FactFilter{})
	if err != nil {
		return fmt.Errorf("load exports: %w", err)
	}
	in.Trade = append(append(in.Trade, imports...), exports...)

	in.Balances = services.ComputeBalances(imports, exports)
	if !dryRun {
		if err := h.facts.ReplaceBalances(ctx, in.Balances); err != nil {
			return fmt.Errorf("store balances: %w", err)
		}
	}

	if in.GovInfo, err = h.facts.GovInfo(ctx); err != nil {
		return fmt.Errorf("load gov info: %w", err)
	}
	if in.Prices, err = h.facts.Prices(ctx); err != nil {
		return fmt.Errorf("load prices: %w", err)
	}
	if in.Countries, err = h.facts.Countries(ctx); err != nil {
		return fmt.Errorf("load countries: %w", err)
	}
	if in.Commodities, err = h.facts.Commodities(ctx); err != nil {
		return fmt.Errorf("load commodities: %w", err)
	}
	return nil
}

func (h *RebuildIndexHandler) export(ctx context.Context, logger *zap.Logger, version string, entries []readindex.IndexEntry) string {
	if h.exporter == nil {
		return ""
	}
	uri, err := h.exporter.Export(ctx, version, entries)
	if err != nil {
		logger.Warn("Failed to archive index snapshot", zap.Error(err))
		return ""
	}
	return uri
}

func (h *RebuildIndexHandler) notify(ctx context.Context, logger *zap.Logger, cmd commands.RebuildIndexCommand, stats ports.RebuildStats, snapshotURI string) {
	if h.events == nil {
		return
	}
	at := cmd.RequestedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	batch := []events.DomainEvent{
		events.NewDerivedMetricsRecomputed(cmd.RunID, stats.Facts, stats.Groups, stats.ParseFailures, stats.MissingWorldTotal, at),
		events.NewIndexPublished(stats.IndexVersion, stats.Entries, snapshotURI, at),
	}
	if err := h.events.PublishBatch(ctx, batch); err != nil {
		logger.Warn("Failed to publish rebuild events", zap.Error(err))
	}
}
