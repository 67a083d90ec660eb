package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryBackend_Expiry(t *testing.T) {
	b := NewMemoryBackend(0)
	now := time.Now()
	b.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "k", []byte("v"), 30*time.Second))

	got, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), got)

	now = now.Add(30 * time.Second)

	_, ok, err = b.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 0, b.Len())
}

func TestMemoryBackend_EvictsOldestInsertion(t *testing.T) {
	b := NewMemoryBackend(2)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, b.Set(ctx, "b", []byte("2"), time.Minute))

	// reading does not refresh insertion order
	_, ok, _ := b.Get(ctx, "a")
	require.True(t, ok)

	require.NoError(t, b.Set(ctx, "c", []byte("3"), time.Minute))
	require.Equal(t, 2, b.Len())

	_, ok, _ = b.Get(ctx, "a")
	require.False(t, ok)
	_, ok, _ = b.Get(ctx, "b")
	require.True(t, ok)

	// overwrite moves "b" to newest, so "c" is evicted next
	require.NoError(t, b.Set(ctx, "b", []byte("2b"), time.Minute))
	require.NoError(t, b.Set(ctx, "d", []byte("4"), time.Minute))

	_, ok, _ = b.Get(ctx, "c")
	require.False(t, ok)
	got, ok, _ := b.Get(ctx, "b")
	require.True(t, ok)
	require.Equal(t, []byte("2b"), got)
}

func TestMemoryBackend_ValuesAreCopied(t *testing.T) {
	b := NewMemoryBackend(0)
	ctx := context.Background()

	value := []byte("abc")
	require.NoError(t, b.Set(ctx, "k", value, time.Minute))
	value[0] = 'X'

	got, _, _ := b.Get(ctx, "k")
	require.Equal(t, []byte("abc"), got)
}
