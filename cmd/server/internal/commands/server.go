package commands

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	connectcors "connectrpc.com/cors"
	"connectrpc.com/otelconnect"
	"filippo.io/csrf"
	"github.com/mlop-ai/pluto/internal/analytics"
	"github.com/mlop-ai/pluto/internal/auth"
	"github.com/mlop-ai/pluto/internal/cache"
	"github.com/mlop-ai/pluto/internal/clickhouse"
	httpmiddleware "github.com/mlop-ai/pluto/internal/http"
	"github.com/mlop-ai/pluto/internal/logger"
	"github.com/mlop-ai/pluto/internal/login"
	"github.com/mlop-ai/pluto/internal/models"
	"github.com/mlop-ai/pluto/internal/server"
	"github.com/mlop-ai/pluto/internal/telemetry"
	"github.com/mlop-ai/pluto/internal/version"
	"github.com/rs/cors"
	zlog "github.com/rs/zerolog/log"
)

const serviceName = "pluto-server"

type ServerCmd struct {
	// Server configuration
	Listen  string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"PLUTO_LISTEN"`
	Cert    string `help:"path to TLS cert file; plain HTTP when empty" default:"" env:"PLUTO_TLS_CERT"`
	Key     string `help:"path to TLS key file; plain HTTP when empty" default:"" env:"PLUTO_TLS_KEY"`
	BaseURL string `help:"public base URL of the dashboard" default:"http://localhost:8080" env:"PLUTO_BASE_URL"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"http://localhost:3000" env:"PLUTO_CORS_ORIGINS"`

	// BackendOrigin receives /api/ and procedure traffic this server does not host.
	BackendOrigin string `help:"origin of the backend API to proxy to" default:"" env:"PLUTO_BACKEND_ORIGIN"`

	Demo    DemoFlags    `embed:"" prefix:"demo-"`
	GitHub  GitHubFlags  `embed:"" prefix:"github-"`
	Session SessionFlags `embed:"" prefix:"session-"`

	// Store configuration
	StoreType  string             `help:"store type (memory or postgres)" default:"memory" env:"PLUTO_STORE_TYPE" enum:"memory,postgres"`
	Postgres   PostgresStoreFlags `embed:"" prefix:"postgres-"`
	ClickHouse ClickHouseFlags    `embed:"" prefix:"clickhouse-"`
	Cache      CacheFlags         `embed:"" prefix:"cache-"`
	PostHog    PostHogFlags       `embed:"" prefix:"posthog-"`

	VersionServices string `help:"YAML file listing peer services for /api/version/all" default:"" env:"PLUTO_VERSION_SERVICES"`

	Tracing          bool    `help:"enable tracing" default:"false" env:"PLUTO_TRACING"`
	TraceSampleRatio float64 `help:"fraction of traces sampled" default:"1" env:"PLUTO_TRACE_SAMPLE_RATIO"`
}

func (c *ServerCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)
	zlog.Logger = log

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Bool("demo", c.Demo.Mode).Msg("Starting server")

	// Setup telemetry if enabled
	var interceptors []connect.Interceptor
	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName: serviceName,
			Version:     globals.Version,
			SampleRatio: c.TraceSampleRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
		otelInterceptor, err := otelconnect.NewInterceptor()
		if err != nil {
			return fmt.Errorf("failed to create OTEL interceptor: %w", err)
		}
		interceptors = append(interceptors, otelInterceptor)
	}

	stores, err := c.openStores(ctx)
	if err != nil {
		return err
	}
	defer stores.close()

	querier, err := c.openQuerier()
	if err != nil {
		return err
	}

	backend := stores.cacheBackend
	if backend == nil {
		backend = cache.NewMemoryBackend(c.Cache.MaxEntries)
	}
	queryCache := cache.New(backend, cache.Options{TTL: c.Cache.TTL, Coalesce: c.Cache.Coalesce})
	log.Info().Stringer("cache", queryCache).Msg("Query cache configured")

	secret := []byte(c.Session.Secret)
	if len(secret) == 0 {
		// demo sessions never outlive the process
		secret = make([]byte, 32)
		_, _ = rand.Read(secret)
	}
	tokens, err := auth.NewSessionTokens(secret, c.BaseURL, strings.HasPrefix(c.BaseURL, "https://"))
	if err != nil {
		return fmt.Errorf("failed to configure session tokens: %w", err)
	}

	var (
		authenticator auth.Authenticator
		provider      login.Provider
		demoSlug      string
	)
	if c.Demo.Mode {
		org, err := ensureDemo(ctx, stores, c.Demo.Slug)
		if err != nil {
			return err
		}
		authenticator = &auth.DemoAuthenticator{Principal: auth.Principal{
			UserID: demoUserID,
			Name:   "Demo",
			OrgID:  org.ID,
			Role:   models.RoleMember,
		}}
		demoSlug = org.Slug
		log.Warn().Str("slug", demoSlug).Msg("Demo mode: every request acts as the demo user")
	} else {
		authenticator = auth.NewSessionAuthenticator(tokens, stores.sessions, stores.users, stores.organizations)

		callbackURL := c.GitHub.CallbackURL
		if callbackURL == "" {
			callbackURL = strings.TrimSuffix(c.BaseURL, "/") + "/auth/github/callback"
		}
		gh, err := login.NewGitHub(c.GitHub.ClientID, c.GitHub.ClientSecret, callbackURL)
		if err != nil {
			return fmt.Errorf("failed to initialize GitHub OAuth: %w", err)
		}
		provider = gh
	}

	// Analytics stays a nil client when disabled so the tracker passes through.
	var analyticsClient analytics.Client
	if c.PostHog.Enabled {
		posthog, err := analytics.NewPostHog(analytics.PostHogConfig{Host: c.PostHog.Host, APIKey: c.PostHog.APIKey}, nil)
		if err != nil {
			return fmt.Errorf("failed to configure PostHog: %w", err)
		}
		defer func() {
			if err := posthog.Stop(); err != nil {
				log.Error().Err(err).Msg("Failed to flush analytics")
			}
		}()
		analyticsClient = posthog
	}
	tracker := analytics.NewTracker(analyticsClient, stores.organizations, c.Session.TTL)
	if analyticsClient != nil {
		go tracker.Run(ctx, 10*time.Minute)
	}

	loginHandlers, err := login.NewHandlers(login.Config{
		Provider:      provider,
		Tokens:        tokens,
		Authenticator: authenticator,
		Navigator:     login.NewNavigator(stores.organizations, demoSlug),
		Users:         stores.users,
		Organizations: stores.organizations,
		Sessions:      stores.sessions,
		SessionTTL:    c.Session.TTL,
		Analytics:     tracker,
	})
	if err != nil {
		return fmt.Errorf("failed to configure sign-in routes: %w", err)
	}

	healthChecks := map[string]server.Pinger{"clickhouse": querier}
	if stores.db != nil {
		healthChecks["postgres"] = stores.db
	}

	procedures, err := server.NewServer(server.Config{
		Authenticator: authenticator,
		Organizations: stores.organizations,
		Sessions:      stores.sessions,
		Runs:          stores.runs,
		Views:         stores.views,
		Triggers:      stores.triggers,
		Cache:         queryCache,
		Querier:       querier,
		HealthChecks:  healthChecks,
		Interceptors:  interceptors,
	})
	if err != nil {
		return fmt.Errorf("failed to create procedure server: %w", err)
	}

	peers, err := version.LoadPeers(c.VersionServices)
	if err != nil {
		return fmt.Errorf("failed to load version peers: %w", err)
	}
	versions := version.NewAggregator(version.Local(serviceName, globals.Version), peers, nil, 0)

	var proxy http.Handler
	if c.BackendOrigin != "" {
		if proxy, err = httpmiddleware.NewBackendProxy(c.BackendOrigin); err != nil {
			return fmt.Errorf("failed to create backend proxy: %w", err)
		}
		log.Info().Str("origin", c.BackendOrigin).Msg("Proxying /api/ and backend procedures")
	}

	mux := http.NewServeMux()

	api := procedures.Handler(log)
	mux.Handle("GET /health", api)
	mux.Handle("GET /health/ready", api)
	for _, service := range server.Services {
		mux.Handle("/"+service+"/", api)
	}

	mux.Handle("GET /version", versions.LocalHandler())
	mux.Handle("GET /api/version/all", versions.AllHandler())

	loginHandlers.Register(mux)

	mux.Handle("/", fallback(proxy))

	handler := c.routeHandler(mux, tracker)
	handler = auth.OptionalSessionMiddleware(authenticator)(handler)
	handler = httpmiddleware.ClientIPMiddleware()(handler)

	srv := configureHTTPServer(c.Listen, handler)

	errCh := make(chan error, 1)
	go func() {
		tls := c.Cert != "" && c.Key != ""
		log.Info().Str("addr", c.Listen).Bool("tls", tls).Msg("Starting HTTP server")
		if tls {
			errCh <- srv.ListenAndServeTLS(c.Cert, c.Key)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (c *ServerCmd) openQuerier() (clickhouse.Querier, error) {
	if c.ClickHouse.URL == "" {
		zlog.Warn().Msg("No ClickHouse URL configured, serving run data from memory")
		return clickhouse.NewMemoryQuerier(), nil
	}

	client, err := clickhouse.NewClient(clickhouse.Config{
		URL:      c.ClickHouse.URL,
		User:     c.ClickHouse.User,
		Password: c.ClickHouse.Password,
		Database: c.ClickHouse.Database,
		Timeout:  c.ClickHouse.Timeout,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to configure ClickHouse: %w", err)
	}
	return client, nil
}

// routeHandler sends API and procedure routes through CORS and browser routes
// through CSRF protection and the analytics tracker.
func (c *ServerCmd) routeHandler(mux http.Handler, tracker *analytics.Tracker) http.Handler {
	api := withCORS(c.CORSOrigins, mux)
	browser := csrf.New().Handler(tracker.Middleware(mux))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isAPIRoute(r.URL.Path) {
			api.ServeHTTP(w, r)
			return
		}
		browser.ServeHTTP(w, r)
	})
}

// fallback proxies backend-owned paths when a backend is configured.
func fallback(proxy http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if proxy != nil && httpmiddleware.IsProxiedPath(r.URL.Path) {
			proxy.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	})
}

// isAPIRoute returns true if the path is an API route that needs CORS instead of CSRF
func isAPIRoute(path string) bool {
	return httpmiddleware.IsProxiedPath(path) ||
		path == "/version" ||
		path == "/health" ||
		strings.HasPrefix(path, "/health/")
}

// withCORS adds CORS support to a Connect HTTP handler.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   connectcors.AllowedMethods(),
		AllowedHeaders:   connectcors.AllowedHeaders(),
		ExposedHeaders:   connectcors.ExposedHeaders(),
		AllowCredentials: true, // Required for cookie-based authentication
	})
	return middleware.Handler(h)
}
