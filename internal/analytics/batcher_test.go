package analytics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type batchRecorder struct {
	mu      sync.Mutex
	batches [][]Event
}

func (b *batchRecorder) onFlush(events []Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batches = append(b.batches, events)
	return nil
}

func (b *batchRecorder) sizes() []int {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]int, len(b.batches))
	for i, batch := range b.batches {
		out[i] = len(batch)
	}
	return out
}

func TestBatcher_FlushOnSize(t *testing.T) {
	rec := &batchRecorder{}
	b := NewBatcher(BatcherConfig{FlushInterval: time.Hour, MaxBatchSize: 3}, rec.onFlush)

	for i := 0; i < 7; i++ {
		require.NoError(t, b.Add(Event{Event: "e"}))
	}
	require.Equal(t, []int{3, 3}, rec.sizes())

	require.NoError(t, b.Stop())
	require.Equal(t, []int{3, 3, 1}, rec.sizes())
}

func TestBatcher_FlushOnInterval(t *testing.T) {
	rec := &batchRecorder{}
	b := NewBatcher(BatcherConfig{FlushInterval: 20 * time.Millisecond, MaxBatchSize: 100}, rec.onFlush)
	defer b.Stop()

	require.NoError(t, b.Add(Event{Event: "e"}))
	require.NoError(t, b.Add(Event{Event: "e"}))

	require.Eventually(t, func() bool {
		sizes := rec.sizes()
		return len(sizes) == 1 && sizes[0] == 2
	}, time.Second, 5*time.Millisecond)
}

func TestBatcher_StopRejectsNewEvents(t *testing.T) {
	rec := &batchRecorder{}
	b := NewBatcher(BatcherConfig{}, rec.onFlush)

	require.NoError(t, b.Stop())
	require.NoError(t, b.Stop())
	require.Error(t, b.Add(Event{Event: "e"}))
	require.Empty(t, rec.sizes())
}

func TestBatcher_FlushEmptyIsNoop(t *testing.T) {
	rec := &batchRecorder{}
	b := NewBatcher(BatcherConfig{}, rec.onFlush)

	require.NoError(t, b.Flush())
	require.Empty(t, rec.sizes())

	require.NoError(t, b.Add(Event{Event: "e"}))
	require.NoError(t, b.Flush())
	require.Equal(t, []int{1}, rec.sizes())
}
