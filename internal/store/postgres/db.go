package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// DB owns the connection pool shared by all PostgreSQL stores and runs the
// background maintenance loops (pool stats, expired cache rows and sessions).
type DB struct {
	pool *pgxpool.Pool
	cfg  *Config

	Users          *UserStore
	Organizations  *OrganizationStore
	Sessions       *SessionStore
	Runs           *RunStore
	DashboardViews *DashboardViewStore
	RunTriggers    *RunTriggerStore
	Cache          *CacheStore

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Open connects to PostgreSQL, optionally runs migrations and builds the stores.
func Open(ctx context.Context, cfg *Config) (*DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("postgres config is required")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	pool, err := NewPool(ctx, &cfg.Pool)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("database", pool.Config().ConnConfig.Database).
		Str("host", pool.Config().ConnConfig.Host).
		Int32("max_conns", cfg.Pool.MaxConns).
		Msg("Connected to PostgreSQL")

	if cfg.AutoMigrate {
		if err := runMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info().Msg("Database migrations completed")
	}

	return &DB{
		pool:           pool,
		cfg:            cfg,
		Users:          NewUserStore(pool),
		Organizations:  NewOrganizationStore(pool),
		Sessions:       NewSessionStore(pool),
		Runs:           NewRunStore(pool),
		DashboardViews: NewDashboardViewStore(pool),
		RunTriggers:    NewRunTriggerStore(pool),
		Cache:          NewCacheStore(pool),
		stopCh:         make(chan struct{}),
	}, nil
}

// Pool returns the underlying connection pool.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Ping checks connectivity, used by the readiness probe.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// Start launches the background maintenance loops.
func (db *DB) Start() {
	log.Info().Msg("Starting PostgreSQL maintenance loops")

	db.wg.Add(1)
	go func() {
		defer db.wg.Done()
		db.monitorConnectionPool()
	}()

	if db.cfg.CacheSweepInterval > 0 {
		db.wg.Add(1)
		go func() {
			defer db.wg.Done()
			db.sweep(db.cfg.CacheSweepInterval, "query_cache", db.Cache.DeleteExpired)
		}()
	}

	if db.cfg.SessionSweepInterval > 0 {
		db.wg.Add(1)
		go func() {
			defer db.wg.Done()
			db.sweep(db.cfg.SessionSweepInterval, "sessions", db.Sessions.DeleteExpired)
		}()
	}
}

// Stop halts the background loops and closes the pool.
func (db *DB) Stop() {
	log.Info().Msg("Stopping PostgreSQL stores")

	close(db.stopCh)
	db.wg.Wait()
	db.pool.Close()
}

func (db *DB) monitorConnectionPool() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := db.pool.Stat()
			log.Debug().
				Int32("total_conns", stats.TotalConns()).
				Int32("idle_conns", stats.IdleConns()).
				Int32("acquired_conns", stats.AcquiredConns()).
				Int64("acquire_count", stats.AcquireCount()).
				Msg("Connection pool stats")
		case <-db.stopCh:
			return
		}
	}
}

func (db *DB) sweep(interval time.Duration, table string, deleteExpired func(context.Context) (int, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			n, err := deleteExpired(ctx)
			cancel()
			if err != nil {
				log.Error().Err(err).Str("table", table).Msg("Failed to delete expired rows")
				continue
			}
			if n > 0 {
				log.Debug().Int("deleted", n).Str("table", table).Msg("Deleted expired rows")
			}
		case <-db.stopCh:
			return
		}
	}
}
