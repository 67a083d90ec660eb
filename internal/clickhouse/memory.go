package clickhouse

import (
	"context"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
)

var _ Querier = (*MemoryQuerier)(nil)

// MemoryQuerier serves run data from memory. It backs demo mode when no
// ClickHouse is configured, and tests.
type MemoryQuerier struct {
	mu         sync.RWMutex
	metrics    map[RunScope]map[string][]MetricPoint
	histograms map[RunScope]map[string][]Histogram

	// Err, when set, is returned by every query.
	Err error

	calls atomic.Int64
}

// NewMemoryQuerier creates an empty in-memory querier.
func NewMemoryQuerier() *MemoryQuerier {
	return &MemoryQuerier{
		metrics:    make(map[RunScope]map[string][]MetricPoint),
		histograms: make(map[RunScope]map[string][]Histogram),
	}
}

// AddMetric appends points to a run's metric.
func (m *MemoryQuerier) AddMetric(scope RunScope, logName string, points ...MetricPoint) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.metrics[scope] == nil {
		m.metrics[scope] = make(map[string][]MetricPoint)
	}
	m.metrics[scope][logName] = append(m.metrics[scope][logName], points...)
}

// AddHistogram appends histogram steps to a run.
func (m *MemoryQuerier) AddHistogram(scope RunScope, logName string, steps ...Histogram) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.histograms[scope] == nil {
		m.histograms[scope] = make(map[string][]Histogram)
	}
	m.histograms[scope][logName] = append(m.histograms[scope][logName], steps...)
}

// Calls returns the number of queries served, Ping excluded.
func (m *MemoryQuerier) Calls() int64 {
	return m.calls.Load()
}

func (m *MemoryQuerier) Ping(ctx context.Context) error {
	return m.Err
}

func (m *MemoryQuerier) Histograms(ctx context.Context, q HistogramQuery) ([]Histogram, error) {
	m.calls.Add(1)
	if m.Err != nil {
		return nil, m.Err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := slices.Clone(m.histograms[q.RunScope][q.LogName])
	sort.SliceStable(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out, nil
}

func (m *MemoryQuerier) MetricSeries(ctx context.Context, q MetricQuery) ([]MetricPoint, error) {
	m.calls.Add(1)
	if m.Err != nil {
		return nil, m.Err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := slices.Clone(m.metrics[q.RunScope][q.LogName])
	sort.SliceStable(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return Downsample(out, q.MaxPoints), nil
}

func (m *MemoryQuerier) LogNames(ctx context.Context, q LogNamesQuery) ([]LogName, error) {
	m.calls.Add(1)
	if m.Err != nil {
		return nil, m.Err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []LogName
	for name := range m.metrics[q.RunScope] {
		out = append(out, LogName{Name: name, Group: LogGroup(name)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
