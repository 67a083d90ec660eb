package telemetry

import (
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestSampler(t *testing.T) {
	require.Equal(t, sdktrace.ParentBased(sdktrace.AlwaysSample()).Description(), sampler(0).Description())
	require.Equal(t, sdktrace.ParentBased(sdktrace.AlwaysSample()).Description(), sampler(1).Description())
	require.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestGetMetrics(t *testing.T) {
	m := GetMetrics()
	require.NotNil(t, m)
	require.Same(t, m, GetMetrics())
	require.NotNil(t, m.CacheHitsTotal)
	require.NotNil(t, m.ClickHouseQueriesTotal)
	require.NotNil(t, m.AnalyticsEventsTotal)
}
