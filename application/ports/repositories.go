package ports

import (
	"context"
	"time"

	"commodities/domain/core/entities"
	"commodities/domain/events"
	"commodities/domain/readindex"
)

// FactFilter narrows a fact query. Zero fields are unconstrained.
type FactFilter struct {
	Year      int
	Country   string
	Commodity string
}

// FactStore is the relational store of normalised facts.
// This is a port in hexagonal architecture - the domain doesn't know about the implementation
type FactStore interface {
	// QueryFacts returns production or reserves facts matching filter
	QueryFacts(ctx context.Context, factType entities.FactType, filter FactFilter) ([]entities.Fact, error)

	// UpsertFact inserts or replaces a single fact by its natural key
	UpsertFact(ctx context.Context, fact entities.Fact) error

	// UpdateDerived writes rank and share back for every fact in one transaction
	UpdateDerived(ctx context.Context, facts []entities.Fact) error

	// TradeFacts returns import or export rows matching filter
	TradeFacts(ctx context.Context, direction entities.TradeDirection, filter FactFilter) ([]entities.TradeFact, error)

	// UpsertTrade inserts or replaces a single import or export row
	UpsertTrade(ctx context.Context, fact entities.TradeFact) error

	// ReplaceBalances swaps the balance table contents in one transaction
	ReplaceBalances(ctx context.Context, balances []entities.BalanceSummary) error

	// Balances returns the materialised balance summaries
	Balances(ctx context.Context) ([]entities.BalanceSummary, error)

	// GovInfo returns every government report
	GovInfo(ctx context.Context) ([]entities.GovInfo, error)

	// Prices returns every price point
	Prices(ctx context.Context) ([]entities.PricePoint, error)

	// Countries lists the country dimension, pseudo-countries included
	Countries(ctx context.Context) ([]entities.Country, error)

	// Commodities lists the commodity dimension
	Commodities(ctx context.Context) ([]entities.Commodity, error)
}

// IndexReader answers read-index lookups
type IndexReader interface {
	// Query returns one partition of one access path in sort-key order
	Query(ctx context.Context, q readindex.Query) ([]readindex.IndexEntry, error)

	// Get returns a single entry by primary identity; found=false when absent
	Get(ctx context.Context, key readindex.IndexKey, sort int) (entry readindex.IndexEntry, found bool, err error)

	// Version identifies the index currently served
	Version(ctx context.Context) (string, error)
}

// IndexPublisher makes a fully built index visible to readers atomically
type IndexPublisher interface {
	Publish(ctx context.Context, version string, entries []readindex.IndexEntry) error
}

// SnapshotExporter archives a published index
type SnapshotExporter interface {
	// Export writes the entries and returns the location they were written to
	Export(ctx context.Context, version string, entries []readindex.IndexEntry) (string, error)
}

// EventPublisher publishes domain events
type EventPublisher interface {
	Publish(ctx context.Context, event events.DomainEvent) error
	PublishBatch(ctx context.Context, events []events.DomainEvent) error
}

// RunMetrics receives statistics of a batch rebuild
type RunMetrics interface {
	RecordRebuild(ctx context.Context, stats RebuildStats)
}

// RebuildStats describes one completed rebuild run
type RebuildStats struct {
	RunID             string
	IndexVersion      string
	Facts             int
	Groups            int
	ParseFailures     int
	MissingWorldTotal int
	Balances          int
	Entries           int
	Duration          time.Duration
}

// RebuildLock excludes concurrent rebuilds
type RebuildLock interface {
	// Acquire blocks until the lock is held or timeout elapses; release frees it
	Acquire(ctx context.Context, owner string, ttl, timeout time.Duration) (release func(context.Context) error, err error)
}

// Cache defines the query result cache
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, bool)
	Set(ctx context.Context, key string, value interface{}, ttl int) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}
