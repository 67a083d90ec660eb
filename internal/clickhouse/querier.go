package clickhouse

import (
	"context"
	"encoding/json"
)

// Querier is the read surface the procedures need from the analytical store.
type Querier interface {
	Ping(ctx context.Context) error
	Histograms(ctx context.Context, q HistogramQuery) ([]Histogram, error)
	MetricSeries(ctx context.Context, q MetricQuery) ([]MetricPoint, error)
	LogNames(ctx context.Context, q LogNamesQuery) ([]LogName, error)
}

// RunScope identifies one run's data. Every query is tenant scoped.
type RunScope struct {
	TenantID    string
	ProjectName string
	RunID       int64
}

type HistogramQuery struct {
	RunScope
	LogName string
}

type MetricQuery struct {
	RunScope
	LogName string

	// MaxPoints bounds the returned series; 0 returns every point.
	MaxPoints int
}

type LogNamesQuery struct {
	RunScope
}

// Histogram is one logged histogram step. Data is the payload as logged.
type Histogram struct {
	Step int64           `json:"step"`
	Time int64           `json:"time"`
	Data json.RawMessage `json:"data"`
}

type MetricPoint struct {
	Step  int64 `json:"step"`
	Time  int64 `json:"time"`
	Value Value `json:"value"`
}

type LogName struct {
	Name  string `json:"name"`
	Group string `json:"group"`
}

// Downsample keeps at most maxPoints points, evenly strided, always
// including the last point.
func Downsample(points []MetricPoint, maxPoints int) []MetricPoint {
	if maxPoints <= 0 || len(points) <= maxPoints {
		return points
	}
	if maxPoints == 1 {
		return points[len(points)-1:]
	}

	stride := float64(len(points)-1) / float64(maxPoints-1)
	out := make([]MetricPoint, 0, maxPoints)
	for i := range maxPoints {
		out = append(out, points[int(float64(i)*stride+0.5)])
	}
	out[len(out)-1] = points[len(points)-1]
	return out
}
