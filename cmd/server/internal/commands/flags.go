package commands

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

type PostgresStoreFlags struct {
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32         `help:"maximum number of connections in pool" default:"20" env:"PLUTO_POSTGRES_MAX_CONNS"`
	MinConns        int32         `help:"minimum number of connections in pool" default:"5" env:"PLUTO_POSTGRES_MIN_CONNS"`
	MaxConnLifetime time.Duration `help:"maximum connection lifetime" default:"1h"`
	MaxConnIdleTime time.Duration `help:"maximum connection idle time" default:"30m"`

	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"PLUTO_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

type ClickHouseFlags struct {
	URL      string        `help:"ClickHouse HTTP interface URL; empty serves run data from memory" env:"PLUTO_CLICKHOUSE_URL"`
	User     string        `help:"ClickHouse user" default:"default" env:"PLUTO_CLICKHOUSE_USER"`
	Password string        `help:"ClickHouse password" env:"PLUTO_CLICKHOUSE_PASSWORD"`
	Database string        `help:"ClickHouse database" default:"default" env:"PLUTO_CLICKHOUSE_DATABASE"`
	Timeout  time.Duration `help:"per-attempt query timeout" default:"15s" env:"PLUTO_CLICKHOUSE_TIMEOUT"`
}

type CacheFlags struct {
	Backend    string        `help:"query cache backend (memory or postgres)" default:"memory" enum:"memory,postgres" env:"PLUTO_CACHE_BACKEND"`
	TTL        time.Duration `help:"query cache entry lifetime" default:"30s" env:"PLUTO_CACHE_TTL"`
	MaxEntries int           `help:"maximum entries in the memory cache" default:"10000" env:"PLUTO_CACHE_MAX_ENTRIES"`
	Coalesce   bool          `help:"share one query between concurrent misses for the same key" default:"false" env:"PLUTO_CACHE_COALESCE"`
}

type PostHogFlags struct {
	Enabled bool   `help:"report product analytics to PostHog" default:"false" env:"PLUTO_POSTHOG_ENABLED"`
	APIKey  string `help:"PostHog project API key" env:"PLUTO_POSTHOG_API_KEY"`
	Host    string `help:"PostHog ingestion host" default:"https://us.i.posthog.com" env:"PLUTO_POSTHOG_HOST"`
}

func (p *PostHogFlags) validate() error {
	if p.Enabled && p.APIKey == "" {
		return errors.New("PostHog API key is required when analytics is enabled (--posthog-api-key or PLUTO_POSTHOG_API_KEY)")
	}
	return nil
}

type GitHubFlags struct {
	ClientID     string `help:"GitHub OAuth client ID" env:"PLUTO_GITHUB_CLIENT_ID"`
	ClientSecret string `help:"GitHub OAuth client secret" env:"PLUTO_GITHUB_CLIENT_SECRET"`
	CallbackURL  string `help:"GitHub OAuth callback URL; defaults to <base-url>/auth/github/callback" env:"PLUTO_GITHUB_CALLBACK_URL"`
}

type SessionFlags struct {
	Secret string        `help:"HMAC secret for session cookies, at least 32 bytes" env:"PLUTO_SESSION_SECRET"`
	TTL    time.Duration `help:"session lifetime" default:"168h" env:"PLUTO_SESSION_TTL"`
}

func (s *SessionFlags) validate() error {
	if len(s.Secret) < 32 {
		return errors.New("session secret must be at least 32 bytes (--session-secret or PLUTO_SESSION_SECRET)")
	}
	return nil
}

type DemoFlags struct {
	Mode bool   `help:"serve a read-only demo organization without sign-in" default:"false" env:"PLUTO_DEMO_MODE"`
	Slug string `help:"slug of the demo organization" default:"demo" env:"PLUTO_DEMO_SLUG"`
}

// Validate is called by kong before Run.
func (c *ServerCmd) Validate() error {
	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		return fmt.Errorf("invalid base URL %q: %w", c.BaseURL, err)
	}
	if (c.Cert == "") != (c.Key == "") {
		return errors.New("TLS needs both --cert and --key")
	}
	if c.StoreType == "postgres" {
		if err := c.Postgres.validate(); err != nil {
			return err
		}
	}
	if c.Cache.Backend == "postgres" && c.StoreType != "postgres" {
		return errors.New("the postgres cache backend requires --store-type=postgres")
	}
	if !c.Demo.Mode || c.Session.Secret != "" {
		if err := c.Session.validate(); err != nil {
			return err
		}
	}
	if err := c.PostHog.validate(); err != nil {
		return err
	}
	if !c.Demo.Mode && (c.GitHub.ClientID == "" || c.GitHub.ClientSecret == "") {
		return errors.New("GitHub OAuth client ID and secret are required outside demo mode")
	}
	if c.Demo.Mode && c.Demo.Slug == "" {
		return errors.New("demo slug is required in demo mode")
	}
	return nil
}
