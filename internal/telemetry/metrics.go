package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/mlop-ai/pluto"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Query cache, attributed by op
	CacheHitsTotal   metric.Int64Counter
	CacheMissesTotal metric.Int64Counter
	CacheErrorsTotal metric.Int64Counter
	CacheComputeTime metric.Float64Histogram

	// ClickHouse
	ClickHouseQueriesTotal metric.Int64Counter
	ClickHouseErrorsTotal  metric.Int64Counter
	ClickHouseQueryTime    metric.Float64Histogram

	// Analytics
	AnalyticsEventsTotal   metric.Int64Counter
	AnalyticsDroppedTotal  metric.Int64Counter
	AnalyticsFlushDuration metric.Float64Histogram

	// Version fan-out
	VersionPeerErrorsTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.CacheHitsTotal, _ = meter.Int64Counter(
		"pluto.cache.hits.total",
		metric.WithDescription("Query cache lookups served from the backend"),
		metric.WithUnit("{lookup}"),
	)

	m.CacheMissesTotal, _ = meter.Int64Counter(
		"pluto.cache.misses.total",
		metric.WithDescription("Query cache lookups that required a compute"),
		metric.WithUnit("{lookup}"),
	)

	m.CacheErrorsTotal, _ = meter.Int64Counter(
		"pluto.cache.errors.total",
		metric.WithDescription("Query cache backend read or write failures"),
		metric.WithUnit("{error}"),
	)

	m.CacheComputeTime, _ = meter.Float64Histogram(
		"pluto.cache.compute.duration",
		metric.WithDescription("Duration of cache miss computations"),
		metric.WithUnit("ms"),
	)

	m.ClickHouseQueriesTotal, _ = meter.Int64Counter(
		"pluto.clickhouse.queries.total",
		metric.WithDescription("Total number of ClickHouse queries issued"),
		metric.WithUnit("{query}"),
	)

	m.ClickHouseErrorsTotal, _ = meter.Int64Counter(
		"pluto.clickhouse.errors.total",
		metric.WithDescription("Total number of failed ClickHouse queries after retries"),
		metric.WithUnit("{error}"),
	)

	m.ClickHouseQueryTime, _ = meter.Float64Histogram(
		"pluto.clickhouse.query.duration",
		metric.WithDescription("Duration of ClickHouse queries including retries"),
		metric.WithUnit("ms"),
	)

	m.AnalyticsEventsTotal, _ = meter.Int64Counter(
		"pluto.analytics.events.total",
		metric.WithDescription("Total number of analytics events sent"),
		metric.WithUnit("{event}"),
	)

	m.AnalyticsDroppedTotal, _ = meter.Int64Counter(
		"pluto.analytics.dropped.total",
		metric.WithDescription("Total number of analytics events dropped after failed delivery"),
		metric.WithUnit("{event}"),
	)

	m.AnalyticsFlushDuration, _ = meter.Float64Histogram(
		"pluto.analytics.flush.duration",
		metric.WithDescription("Duration of analytics batch deliveries"),
		metric.WithUnit("ms"),
	)

	m.VersionPeerErrorsTotal, _ = meter.Int64Counter(
		"pluto.version.peer_errors.total",
		metric.WithDescription("Total number of failed version peer lookups"),
		metric.WithUnit("{error}"),
	)

	return m
}
