package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// CacheStore is a shared query cache backend on the query_cache table.
// It satisfies cache.Backend.
type CacheStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewCacheStore creates a new PostgreSQL-backed cache store.
func NewCacheStore(pool *pgxpool.Pool) *CacheStore {
	return &CacheStore{pool: pool, now: time.Now}
}

// Get returns the value stored under key if present and unexpired.
// Corrupt payloads are reported as a miss.
func (s *CacheStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		compressed []byte
		sum        int64
	)
	err := s.pool.QueryRow(ctx, `
		SELECT value, checksum
		FROM query_cache
		WHERE cache_key = $1 AND expires_at > $2
	`, key, s.now()).Scan(&compressed, &sum)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cache entry: %w", mapPostgresError(err))
	}

	value, err := decodePayload(compressed, uint64(sum))
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Discarding corrupt cache entry")
		return nil, false, nil
	}

	return value, true, nil
}

// Set stores value under key, overwriting any existing entry.
func (s *CacheStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	compressed, sum := encodePayload(value)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO query_cache (cache_key, value, checksum, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cache_key) DO UPDATE
		SET value = EXCLUDED.value, checksum = EXCLUDED.checksum, expires_at = EXCLUDED.expires_at
	`, key, compressed, int64(sum), s.now().Add(ttl))
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", mapPostgresError(err))
	}

	return nil
}

// DeleteExpired removes expired entries.
func (s *CacheStore) DeleteExpired(ctx context.Context) (int, error) {
	result, err := s.pool.Exec(ctx, `DELETE FROM query_cache WHERE expires_at <= $1`, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", mapPostgresError(err))
	}

	return int(result.RowsAffected()), nil
}
