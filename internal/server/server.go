package server

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/authn"
	"connectrpc.com/connect"
	"github.com/mlop-ai/pluto/internal/auth"
	"github.com/mlop-ai/pluto/internal/cache"
	"github.com/mlop-ai/pluto/internal/clickhouse"
	"github.com/mlop-ai/pluto/internal/logger"
	"github.com/mlop-ai/pluto/internal/resolver"
	"github.com/mlop-ai/pluto/internal/store"
	"github.com/rs/zerolog"
)

// Service names, as they appear in procedure paths.
const (
	OrganizationServiceName  = "pluto.v1.OrganizationService"
	RunServiceName           = "pluto.v1.RunService"
	DashboardViewServiceName = "pluto.v1.DashboardViewService"
)

// Services lists every service the server hosts.
var Services = []string{OrganizationServiceName, RunServiceName, DashboardViewServiceName}

// Config holds the dependencies of the procedure server.
type Config struct {
	Authenticator auth.Authenticator

	Organizations store.OrganizationStore
	Sessions      store.SessionStore
	Runs          store.RunStore
	Views         store.DashboardViewStore
	Triggers      store.RunTriggerStore

	Cache   *cache.Cache
	Querier clickhouse.Querier

	// HealthChecks are probed by /health/ready.
	HealthChecks map[string]Pinger

	// Interceptors run after request logging, e.g. tracing.
	Interceptors []connect.Interceptor
}

func (c *Config) validate() error {
	switch {
	case c.Authenticator == nil:
		return errors.New("authenticator is required")
	case c.Organizations == nil, c.Sessions == nil, c.Runs == nil, c.Views == nil, c.Triggers == nil:
		return errors.New("all stores are required")
	case c.Cache == nil:
		return errors.New("cache is required")
	case c.Querier == nil:
		return errors.New("querier is required")
	}
	return nil
}

// Server hosts the organization, run and dashboard view procedures.
type Server struct {
	cfg           Config
	organizations *OrganizationService
	runs          *RunService
	views         *DashboardViewService
}

func NewServer(cfg Config) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	res := resolver.New(cfg.Runs)

	return &Server{
		cfg:           cfg,
		organizations: NewOrganizationService(cfg.Organizations, cfg.Sessions),
		runs:          NewRunService(res, cfg.Cache, cfg.Querier, cfg.Triggers),
		views:         NewDashboardViewService(res, cfg.Views),
	}, nil
}

// Handler returns the HTTP handler serving health endpoints and every
// procedure. Procedures require an authenticated session.
func (s *Server) Handler(log zerolog.Logger) http.Handler {
	interceptors := append([]connect.Interceptor{logger.NewConnectRequests(log, principalFields)}, s.cfg.Interceptors...)
	opts := []connect.HandlerOption{
		Codec(),
		connect.WithInterceptors(interceptors...),
	}

	rpc := http.NewServeMux()

	handle(rpc, OrganizationServiceName, "ListOrganizations", s.organizations.ListOrganizations, opts)
	handle(rpc, OrganizationServiceName, "SetActiveOrganization", s.organizations.SetActiveOrganization, opts)

	handle(rpc, RunServiceName, "ResolveRun", s.runs.ResolveRun, opts)
	handle(rpc, RunServiceName, "GetHistograms", s.runs.GetHistograms, opts)
	handle(rpc, RunServiceName, "GetMetricSeries", s.runs.GetMetricSeries, opts)
	handle(rpc, RunServiceName, "ListLogNames", s.runs.ListLogNames, opts)
	handle(rpc, RunServiceName, "ListRunTriggers", s.runs.ListRunTriggers, opts)
	handle(rpc, RunServiceName, "CreateRunTrigger", s.runs.CreateRunTrigger, opts)

	handle(rpc, DashboardViewServiceName, "ListViews", s.views.ListViews, opts)
	handle(rpc, DashboardViewServiceName, "GetView", s.views.GetView, opts)
	handle(rpc, DashboardViewServiceName, "CreateView", s.views.CreateView, opts)
	handle(rpc, DashboardViewServiceName, "UpdateView", s.views.UpdateView, opts)
	handle(rpc, DashboardViewServiceName, "DeleteView", s.views.DeleteView, opts)

	mux := http.NewServeMux()

	// Health check endpoints for load balancer
	mux.HandleFunc("GET /health", healthHandler)
	mux.Handle("GET /health/ready", readinessHandler(s.cfg.HealthChecks))

	authenticated := authn.NewMiddleware(auth.AuthFunc(s.cfg.Authenticator), Codec())
	for _, service := range Services {
		mux.Handle("/"+service+"/", authenticated.Wrap(rpc))
	}

	return mux
}

func handle[Req, Res any](
	mux *http.ServeMux,
	service, method string,
	fn func(context.Context, *connect.Request[Req]) (*connect.Response[Res], error),
	opts []connect.HandlerOption,
) {
	procedure := "/" + service + "/" + method
	mux.Handle(procedure, connect.NewUnaryHandler(procedure, fn, opts...))
}

func principalFields(ctx context.Context, e *zerolog.Event) {
	p := auth.PrincipalFromContext(ctx)
	if p == nil {
		return
	}
	e.Str("user_id", p.UserID)
	if p.OrgID != "" {
		e.Str("org_id", p.OrgID)
	}
}
