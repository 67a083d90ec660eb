// Package cache memoizes expensive read operations (ClickHouse queries) keyed
// by operation name and canonicalized parameters.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mlop-ai/pluto/internal/telemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is the entry lifetime used when Options.TTL is zero.
const DefaultTTL = 30 * time.Second

// sharedComputeTimeout bounds a coalesced compute, which runs detached from
// the caller that started it.
const sharedComputeTimeout = time.Minute

// Backend stores opaque values with an expiry.
type Backend interface {
	// Get returns the value and true when an unexpired entry exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value, replacing any previous entry for key.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Options configure a Cache.
type Options struct {
	TTL time.Duration

	// Coalesce makes concurrent misses for the same key share one compute.
	Coalesce bool
}

// Cache wraps a Backend with the read-through policy.
type Cache struct {
	backend Backend
	ttl     time.Duration
	group   *singleflight.Group
	metrics *telemetry.Metrics
}

// New creates a cache over backend.
func New(backend Backend, opts Options) *Cache {
	c := &Cache{
		backend: backend,
		ttl:     opts.TTL,
		metrics: telemetry.GetMetrics(),
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if opts.Coalesce {
		c.group = &singleflight.Group{}
	}
	return c
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// WithCache returns the cached result of op for params, or runs compute and
// stores its result. Backend failures never fail the call: they are logged
// and the value is computed. Compute errors are returned and not stored.
func WithCache[T any](ctx context.Context, c *Cache, op string, params Params, compute func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	key, err := Key(op, params)
	if err != nil {
		return zero, err
	}

	opAttr := metric.WithAttributes(attribute.String("op", op))

	if value, ok := c.lookup(ctx, key, opAttr); ok {
		var result T
		if err := json.Unmarshal(value, &result); err == nil {
			c.metrics.CacheHitsTotal.Add(ctx, 1, opAttr)
			return result, nil
		}
		log.Warn().Str("op", op).Str("key", key).Msg("Ignoring undecodable cache entry")
	}

	c.metrics.CacheMissesTotal.Add(ctx, 1, opAttr)

	if c.group == nil {
		return fill(ctx, c, key, op, opAttr, compute)
	}

	// The shared compute outlives any single caller; each caller still
	// returns early when its own context ends.
	ch := c.group.DoChan(key, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedComputeTimeout)
		defer cancel()
		return fill(shared, c, key, op, opAttr, compute)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		if res.Shared {
			log.Debug().Str("op", op).Msg("Shared in-flight cache compute")
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (c *Cache) lookup(ctx context.Context, key string, opAttr metric.MeasurementOption) ([]byte, bool) {
	value, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.metrics.CacheErrorsTotal.Add(ctx, 1, opAttr)
		log.Warn().Err(err).Str("key", key).Msg("Cache read failed, treating as miss")
		return nil, false
	}
	return value, ok
}

func (c *Cache) store(ctx context.Context, key string, value []byte, opAttr metric.MeasurementOption) {
	if err := c.backend.Set(ctx, key, value, c.ttl); err != nil {
		c.metrics.CacheErrorsTotal.Add(ctx, 1, opAttr)
		log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
}

func fill[T any](ctx context.Context, c *Cache, key, op string, opAttr metric.MeasurementOption, compute func(ctx context.Context) (T, error)) (T, error) {
	start := time.Now()

	result, err := compute(ctx)

	c.metrics.CacheComputeTime.Record(ctx, float64(time.Since(start).Milliseconds()), opAttr)

	if err != nil {
		return result, err
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		log.Warn().Err(err).Str("op", op).Msg("Cache value not encodable, skipping store")
		return result, nil
	}

	c.store(ctx, key, encoded, opAttr)

	return result, nil
}

// String describes the cache for startup logs.
func (c *Cache) String() string {
	return fmt.Sprintf("cache(ttl=%s, coalesce=%t)", c.ttl, c.group != nil)
}
