package postgres

import (
	"fmt"
	"time"
)

// Config holds configuration for the PostgreSQL stores.
// Pool configuration is handled separately via PoolConfig.
type Config struct {
	Pool PoolConfig

	// AutoMigrate applies embedded migrations on Open.
	AutoMigrate bool

	// CacheSweepInterval is how often expired query_cache rows are deleted.
	// Default: 5 minutes. Negative disables the sweeper.
	CacheSweepInterval time.Duration

	// SessionSweepInterval is how often expired sessions are deleted.
	// Default: 1 hour. Negative disables the sweeper.
	SessionSweepInterval time.Duration
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if err := c.Pool.Validate(); err != nil {
		return fmt.Errorf("pool: %w", err)
	}
	return nil
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	c.Pool.ApplyDefaults()

	if c.CacheSweepInterval == 0 {
		c.CacheSweepInterval = 5 * time.Minute
	}
	if c.SessionSweepInterval == 0 {
		c.SessionSweepInterval = time.Hour
	}
}
