package events

import (
	"time"
)

// SourceCatalog is the EventBridge source of every event this service emits
const SourceCatalog = "commodities.catalog"

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

// DerivedMetricsRecomputed is raised after rank and share were written back
type DerivedMetricsRecomputed struct {
	BaseEvent
	RunID             string `json:"run_id"`
	Facts             int    `json:"facts"`
	Groups            int    `json:"groups"`
	ParseFailures     int    `json:"parse_failures"`
	MissingWorldTotal int    `json:"missing_world_total"`
}

// NewDerivedMetricsRecomputed creates a DerivedMetricsRecomputed event
func NewDerivedMetricsRecomputed(runID string, facts, groups, parseFailures, missingWorld int, timestamp time.Time) DerivedMetricsRecomputed {
	return DerivedMetricsRecomputed{
		BaseEvent: BaseEvent{
			AggregateID: runID,
			EventType:   "metrics.recomputed",
			Timestamp:   timestamp,
			Version:     1,
		},
		RunID:             runID,
		Facts:             facts,
		Groups:            groups,
		ParseFailures:     parseFailures,
		MissingWorldTotal: missingWorld,
	}
}

// IndexPublished is raised once a new read index version is visible to readers
type IndexPublished struct {
	BaseEvent
	IndexVersion string `json:"index_version"`
	Entries      int    `json:"entries"`
	SnapshotURI  string `json:"snapshot_uri,omitempty"`
}

// NewIndexPublished creates an IndexPublished event
func NewIndexPublished(version string, entries int, snapshotURI string, timestamp time.Time) IndexPublished {
	return IndexPublished{
		BaseEvent: BaseEvent{
			AggregateID: version,
			EventType:   "index.published",
			Timestamp:   timestamp,
			Version:     1,
		},
		IndexVersion: version,
		Entries:      entries,
		SnapshotURI:  snapshotURI,
	}
}
