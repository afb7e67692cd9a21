package observability

import (
	"context"
	"strconv"
	"time"

	"commodities/application/ports"
	"commodities/application/queries/bus"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all Prometheus metrics for the application
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Query bus metrics
	Queries       *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec

	// Rebuild metrics
	Rebuilds        prometheus.Counter
	IndexEntries    prometheus.Gauge
	ParseFailures   prometheus.Gauge
	RebuildDuration prometheus.Histogram
}

// NewCollector creates a collector registered on its own registry
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Query bus dispatches by query type and event",
			},
			[]string{"event", "query"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "Query handler duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"query"},
		),
		Rebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rebuilds_total",
			Help:      "Completed index rebuilds",
		}),
		IndexEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_entries",
			Help:      "Entries in the most recently published index",
		}),
		ParseFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "amount_parse_failures",
			Help:      "Non-numeric amounts seen by the most recent rebuild",
		}),
		RebuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rebuild_duration_seconds",
			Help:      "Index rebuild duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.Queries,
		c.QueryDuration,
		c.Rebuilds,
		c.IndexEntries,
		c.ParseFailures,
		c.RebuildDuration,
	)
	return c
}

// GetRegistry returns the Prometheus registry for this collector
func (c *Collector) GetRegistry() *prometheus.Registry {
	return c.registry
}

// ObserveHTTP records one served request
func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordRebuild implements ports.RunMetrics
func (c *Collector) RecordRebuild(_ context.Context, stats ports.RebuildStats) {
	c.Rebuilds.Inc()
	c.IndexEntries.Set(float64(stats.Entries))
	c.ParseFailures.Set(float64(stats.ParseFailures))
	c.RebuildDuration.Observe(stats.Duration.Seconds())
}

// StartTimer implements bus.Metrics
func (c *Collector) StartTimer(_ string, label string) bus.Timer {
	return &queryTimer{
		observer: c.QueryDuration.WithLabelValues(label),
		start:    time.Now(),
	}
}

// Increment implements bus.Metrics. The metric name becomes the event label.
func (c *Collector) Increment(metric, label string) {
	c.Queries.WithLabelValues(metric, label).Inc()
}

type queryTimer struct {
	observer prometheus.Observer
	start    time.Time
}

func (t *queryTimer) Stop() {
	t.observer.Observe(time.Since(t.start).Seconds())
}

// MultiRunMetrics fans rebuild statistics out to several sinks
type MultiRunMetrics []ports.RunMetrics

// RecordRebuild implements ports.RunMetrics
func (m MultiRunMetrics) RecordRebuild(ctx context.Context, stats ports.RebuildStats) {
	for _, sink := range m {
		sink.RecordRebuild(ctx, stats)
	}
}
