package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mlop-ai/pluto/internal/auth"
	"github.com/mlop-ai/pluto/internal/cache"
	"github.com/mlop-ai/pluto/internal/clickhouse"
	"github.com/mlop-ai/pluto/internal/models"
	"github.com/mlop-ai/pluto/internal/runid"
	"github.com/mlop-ai/pluto/internal/store/memory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testUserHeader = "X-Test-User"

// headerAuthenticator picks the principal named by a request header.
type headerAuthenticator map[string]*auth.Principal

func (h headerAuthenticator) Authenticate(ctx context.Context, r *http.Request) (*auth.Principal, error) {
	if p, ok := h[r.Header.Get(testUserHeader)]; ok {
		clone := *p
		return &clone, nil
	}
	return nil, auth.ErrUnauthenticated
}

type fixture struct {
	srv      *httptest.Server
	views    *memory.DashboardViewStore
	sessions *memory.SessionStore
	querier  *clickhouse.MemoryQuerier

	run      *models.Run // org1/mnist
	otherRun *models.Run // org2/mnist
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	orgs := memory.NewOrganizationStore()
	sessions := memory.NewSessionStore()
	runs := memory.NewRunStore()
	views := memory.NewDashboardViewStore()
	triggers := memory.NewRunTriggerStore()
	querier := clickhouse.NewMemoryQuerier()

	require.NoError(t, orgs.Create(ctx, &models.Organization{ID: "org1", Name: "Acme", Slug: "acme"}))
	require.NoError(t, orgs.Create(ctx, &models.Organization{ID: "org2", Name: "Globex", Slug: "globex"}))
	for _, m := range []models.Member{
		{OrgID: "org1", UserID: "admin", Role: models.RoleAdmin},
		{OrgID: "org1", UserID: "alice", Role: models.RoleMember},
		{OrgID: "org1", UserID: "bob", Role: models.RoleMember},
		{OrgID: "org2", UserID: "alice", Role: models.RoleOwner},
		{OrgID: "org2", UserID: "mallory", Role: models.RoleOwner},
	} {
		require.NoError(t, orgs.AddMember(ctx, &m))
	}

	principals := headerAuthenticator{}
	for _, p := range []auth.Principal{
		{UserID: "admin", OrgID: "org1", Role: models.RoleAdmin},
		{UserID: "alice", OrgID: "org1", Role: models.RoleMember},
		{UserID: "bob", OrgID: "org1", Role: models.RoleMember},
		{UserID: "mallory", OrgID: "org2", Role: models.RoleOwner},
		{UserID: "newcomer"},
		{UserID: "demo", OrgID: "org1", Role: models.RoleMember, Demo: true},
	} {
		p.SessionID = uuid.Must(uuid.NewV7())
		now := time.Now()
		require.NoError(t, sessions.Create(ctx, &models.Session{
			SessionID:   p.SessionID,
			UserID:      p.UserID,
			ActiveOrgID: p.OrgID,
			CreatedAt:   now,
			ExpiresAt:   now.Add(time.Hour),
			LastUsedAt:  now,
		}))
		principals[p.UserID] = &p
	}

	f := &fixture{views: views, sessions: sessions, querier: querier}
	for _, org := range []string{"org1", "org2"} {
		project := &models.Project{OrgID: org, Name: "mnist"}
		require.NoError(t, runs.CreateProject(ctx, project))
		run := &models.Run{OrgID: org, ProjectID: project.ID, Name: "baseline", CreatedByID: "alice"}
		require.NoError(t, runs.CreateRun(ctx, run))
		if org == "org1" {
			f.run = run
		} else {
			f.otherRun = run
		}
	}

	querier.AddMetric(clickhouse.RunScope{TenantID: "org1", ProjectName: "mnist", RunID: f.run.ID}, "train/loss",
		clickhouse.MetricPoint{Step: 1, Time: 1000, Value: 0.9},
		clickhouse.MetricPoint{Step: 2, Time: 2000, Value: 0.5},
	)
	querier.AddHistogram(clickhouse.RunScope{TenantID: "org1", ProjectName: "mnist", RunID: f.run.ID}, "weights/fc1",
		clickhouse.Histogram{Step: 1, Time: 1000, Data: json.RawMessage(`{"bins":[0,1],"freq":[3]}`)},
	)

	s, err := NewServer(Config{
		Authenticator: principals,
		Organizations: orgs,
		Sessions:      sessions,
		Runs:          runs,
		Views:         views,
		Triggers:      triggers,
		Cache:         cache.New(cache.NewMemoryBackend(100), cache.Options{TTL: time.Minute}),
		Querier:       querier,
		HealthChecks:  map[string]Pinger{"clickhouse": querier},
	})
	require.NoError(t, err)

	f.srv = httptest.NewServer(s.Handler(zerolog.Nop()))
	t.Cleanup(f.srv.Close)

	return f
}

func call[Req, Res any](t *testing.T, f *fixture, user, service, method string, msg *Req) (*Res, error) {
	t.Helper()

	client := connect.NewClient[Req, Res](f.srv.Client(), f.srv.URL+"/"+service+"/"+method, Codec())
	req := connect.NewRequest(msg)
	if user != "" {
		req.Header().Set(testUserHeader, user)
	}

	resp, err := client.CallUnary(context.Background(), req)
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func requireCode(t *testing.T, err error, code connect.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, connect.CodeOf(err), "error: %v", err)
}

func (f *fixture) ref() RunRef {
	return RunRef{ProjectName: "mnist", RunID: runid.Encode(f.run.ID)}
}

func TestNewServerValidatesConfig(t *testing.T) {
	_, err := NewServer(Config{})
	require.Error(t, err)
}

func TestProceduresRequireSession(t *testing.T) {
	f := newFixture(t)

	_, err := call[ListOrganizationsRequest, ListOrganizationsResponse](t, f, "", OrganizationServiceName, "ListOrganizations", &ListOrganizationsRequest{})
	requireCode(t, err, connect.CodeUnauthenticated)

	_, err = call[ResolveRunRequest, ResolveRunResponse](t, f, "stranger", RunServiceName, "ResolveRun", &ResolveRunRequest{RunRef: f.ref()})
	requireCode(t, err, connect.CodeUnauthenticated)
}

func TestListOrganizations(t *testing.T) {
	f := newFixture(t)

	resp, err := call[ListOrganizationsRequest, ListOrganizationsResponse](t, f, "alice", OrganizationServiceName, "ListOrganizations", &ListOrganizationsRequest{})
	require.NoError(t, err)
	require.Len(t, resp.Organizations, 2)

	active := map[string]bool{}
	for _, org := range resp.Organizations {
		active[org.Slug] = org.Active
	}
	require.Equal(t, map[string]bool{"acme": true, "globex": false}, active)
}

func TestSetActiveOrganization(t *testing.T) {
	f := newFixture(t)

	resp, err := call[SetActiveOrganizationRequest, SetActiveOrganizationResponse](t, f, "alice", OrganizationServiceName, "SetActiveOrganization",
		&SetActiveOrganizationRequest{OrganizationID: "org2"})
	require.NoError(t, err)
	require.Equal(t, "globex", resp.Organization.Slug)
	require.Equal(t, string(models.RoleOwner), resp.Organization.Role)
	require.True(t, resp.Organization.Active)

	t.Run("non member gets not found", func(t *testing.T) {
		_, err := call[SetActiveOrganizationRequest, SetActiveOrganizationResponse](t, f, "bob", OrganizationServiceName, "SetActiveOrganization",
			&SetActiveOrganizationRequest{OrganizationID: "org2"})
		requireCode(t, err, connect.CodeNotFound)
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := call[SetActiveOrganizationRequest, SetActiveOrganizationResponse](t, f, "bob", OrganizationServiceName, "SetActiveOrganization",
			&SetActiveOrganizationRequest{})
		requireCode(t, err, connect.CodeInvalidArgument)
	})

	t.Run("demo mode", func(t *testing.T) {
		_, err := call[SetActiveOrganizationRequest, SetActiveOrganizationResponse](t, f, "demo", OrganizationServiceName, "SetActiveOrganization",
			&SetActiveOrganizationRequest{OrganizationID: "org1"})
		requireCode(t, err, connect.CodeFailedPrecondition)
	})
}

func TestResolveRun(t *testing.T) {
	f := newFixture(t)

	resp, err := call[ResolveRunRequest, ResolveRunResponse](t, f, "alice", RunServiceName, "ResolveRun", &ResolveRunRequest{RunRef: f.ref()})
	require.NoError(t, err)
	require.Equal(t, formatID(f.run.ID), resp.InternalID)
	require.Equal(t, f.ref().RunID, resp.RunID)

	tests := []struct {
		name string
		user string
		ref  RunRef
		code connect.Code
	}{
		{"malformed run id", "alice", RunRef{ProjectName: "mnist", RunID: "0OIl"}, connect.CodeInvalidArgument},
		{"missing project", "alice", RunRef{RunID: f.ref().RunID}, connect.CodeInvalidArgument},
		{"other organization's run", "alice", RunRef{ProjectName: "mnist", RunID: runid.Encode(f.otherRun.ID)}, connect.CodeNotFound},
		{"other organization's caller", "mallory", f.ref(), connect.CodeNotFound},
		{"unknown project", "alice", RunRef{ProjectName: "cifar", RunID: f.ref().RunID}, connect.CodeNotFound},
		{"no active organization", "newcomer", f.ref(), connect.CodeFailedPrecondition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := call[ResolveRunRequest, ResolveRunResponse](t, f, tt.user, RunServiceName, "ResolveRun", &ResolveRunRequest{RunRef: tt.ref})
			requireCode(t, err, tt.code)
		})
	}
}

func TestGetMetricSeriesIsCached(t *testing.T) {
	f := newFixture(t)
	req := &GetMetricSeriesRequest{RunRef: f.ref(), LogName: "train/loss"}

	first, err := call[GetMetricSeriesRequest, GetMetricSeriesResponse](t, f, "alice", RunServiceName, "GetMetricSeries", req)
	require.NoError(t, err)
	require.Len(t, first.Points, 2)
	require.Equal(t, int64(1), f.querier.Calls())

	second, err := call[GetMetricSeriesRequest, GetMetricSeriesResponse](t, f, "bob", RunServiceName, "GetMetricSeries", req)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, int64(1), f.querier.Calls())

	// a different parameter is a different entry
	_, err = call[GetMetricSeriesRequest, GetMetricSeriesResponse](t, f, "alice", RunServiceName, "GetMetricSeries",
		&GetMetricSeriesRequest{RunRef: f.ref(), LogName: "train/loss", MaxPoints: 1})
	require.NoError(t, err)
	require.Equal(t, int64(2), f.querier.Calls())
}

func TestGetMetricSeriesValidation(t *testing.T) {
	f := newFixture(t)

	_, err := call[GetMetricSeriesRequest, GetMetricSeriesResponse](t, f, "alice", RunServiceName, "GetMetricSeries",
		&GetMetricSeriesRequest{RunRef: f.ref()})
	requireCode(t, err, connect.CodeInvalidArgument)

	_, err = call[GetMetricSeriesRequest, GetMetricSeriesResponse](t, f, "alice", RunServiceName, "GetMetricSeries",
		&GetMetricSeriesRequest{RunRef: f.ref(), LogName: "train/loss", MaxPoints: maxMetricPoints + 1})
	requireCode(t, err, connect.CodeInvalidArgument)
	require.Equal(t, int64(0), f.querier.Calls())
}

func TestAnalyticalStoreUnavailable(t *testing.T) {
	f := newFixture(t)
	f.querier.Err = errors.Join(clickhouse.ErrUnavailable, errors.New("connection refused"))

	_, err := call[ListLogNamesRequest, ListLogNamesResponse](t, f, "alice", RunServiceName, "ListLogNames", &ListLogNamesRequest{RunRef: f.ref()})
	requireCode(t, err, connect.CodeUnavailable)
}

func TestGetHistogramsAndLogNames(t *testing.T) {
	f := newFixture(t)

	hist, err := call[GetHistogramsRequest, GetHistogramsResponse](t, f, "alice", RunServiceName, "GetHistograms",
		&GetHistogramsRequest{RunRef: f.ref(), LogName: "weights/fc1"})
	require.NoError(t, err)
	require.Len(t, hist.Histograms, 1)
	require.JSONEq(t, `{"bins":[0,1],"freq":[3]}`, string(hist.Histograms[0].Data))

	empty, err := call[GetHistogramsRequest, GetHistogramsResponse](t, f, "alice", RunServiceName, "GetHistograms",
		&GetHistogramsRequest{RunRef: f.ref(), LogName: "weights/missing"})
	require.NoError(t, err)
	require.NotNil(t, empty.Histograms)
	require.Empty(t, empty.Histograms)

	names, err := call[ListLogNamesRequest, ListLogNamesResponse](t, f, "alice", RunServiceName, "ListLogNames", &ListLogNamesRequest{RunRef: f.ref()})
	require.NoError(t, err)
	require.Equal(t, []clickhouse.LogName{{Name: "train/loss", Group: "train"}}, names.LogNames)
}

func TestRunTriggers(t *testing.T) {
	f := newFixture(t)

	created, err := call[CreateRunTriggerRequest, CreateRunTriggerResponse](t, f, "bob", RunServiceName, "CreateRunTrigger",
		&CreateRunTriggerRequest{RunRef: f.ref(), TriggerType: models.TriggerTypeAlert, Context: map[string]string{"alert": "loss spike"}})
	require.NoError(t, err)
	require.Equal(t, "bob", created.Trigger.CreatedByID)
	require.Equal(t, formatID(f.run.ID), created.Trigger.RunID)

	listed, err := call[ListRunTriggersRequest, ListRunTriggersResponse](t, f, "alice", RunServiceName, "ListRunTriggers",
		&ListRunTriggersRequest{RunRef: f.ref()})
	require.NoError(t, err)
	require.Len(t, listed.Triggers, 1)
	require.Equal(t, created.Trigger.ID, listed.Triggers[0].ID)

	_, err = call[CreateRunTriggerRequest, CreateRunTriggerResponse](t, f, "bob", RunServiceName, "CreateRunTrigger",
		&CreateRunTriggerRequest{RunRef: f.ref(), TriggerType: "carrier-pigeon"})
	requireCode(t, err, connect.CodeInvalidArgument)
}

const sampleConfig = `{
  "version": 1,
  "sections": [
    {
      "id": "s1",
      "title": "Loss",
      "widgets": [
        {"id": "w1", "type": "line", "logNames": ["train/loss"], "layout": {"x": 0, "y": 0, "w": 6, "h": 4}}
      ]
    }
  ]
}`

func TestDashboardViewLifecycle(t *testing.T) {
	f := newFixture(t)

	created, err := call[CreateViewRequest, CreateViewResponse](t, f, "alice", DashboardViewServiceName, "CreateView",
		&CreateViewRequest{ProjectName: "mnist", Name: "Training", IsDefault: true, Config: json.RawMessage(sampleConfig)})
	require.NoError(t, err)
	require.Equal(t, "alice", created.View.CreatedByID)
	require.JSONEq(t, sampleConfig, string(created.View.Config))

	got, err := call[GetViewRequest, GetViewResponse](t, f, "bob", DashboardViewServiceName, "GetView", &GetViewRequest{ViewID: created.View.ID})
	require.NoError(t, err)
	require.JSONEq(t, sampleConfig, string(got.View.Config))

	listed, err := call[ListViewsRequest, ListViewsResponse](t, f, "bob", DashboardViewServiceName, "ListViews", &ListViewsRequest{ProjectName: "mnist"})
	require.NoError(t, err)
	require.Len(t, listed.Views, 1)

	rename := "Training v2"
	updated, err := call[UpdateViewRequest, UpdateViewResponse](t, f, "alice", DashboardViewServiceName, "UpdateView",
		&UpdateViewRequest{ViewID: created.View.ID, Name: &rename})
	require.NoError(t, err)
	require.Equal(t, rename, updated.View.Name)
	require.True(t, updated.View.IsDefault)
	require.JSONEq(t, sampleConfig, string(updated.View.Config))

	t.Run("other organization cannot see it", func(t *testing.T) {
		_, err := call[GetViewRequest, GetViewResponse](t, f, "mallory", DashboardViewServiceName, "GetView", &GetViewRequest{ViewID: created.View.ID})
		requireCode(t, err, connect.CodeNotFound)
	})

	t.Run("member who did not create it cannot update or delete", func(t *testing.T) {
		_, err := call[UpdateViewRequest, UpdateViewResponse](t, f, "bob", DashboardViewServiceName, "UpdateView",
			&UpdateViewRequest{ViewID: created.View.ID, Name: &rename})
		requireCode(t, err, connect.CodePermissionDenied)

		_, err = call[DeleteViewRequest, DeleteViewResponse](t, f, "bob", DashboardViewServiceName, "DeleteView", &DeleteViewRequest{ViewID: created.View.ID})
		requireCode(t, err, connect.CodePermissionDenied)
		require.Equal(t, "permission denied", connectMessage(err))

		id, err := parseID("viewId", created.View.ID)
		require.NoError(t, err)
		stored, err := f.views.Get(context.Background(), "org1", id)
		require.NoError(t, err)
		require.Equal(t, rename, stored.Name)
	})

	t.Run("admin can delete", func(t *testing.T) {
		_, err := call[DeleteViewRequest, DeleteViewResponse](t, f, "admin", DashboardViewServiceName, "DeleteView", &DeleteViewRequest{ViewID: created.View.ID})
		require.NoError(t, err)

		_, err = call[GetViewRequest, GetViewResponse](t, f, "alice", DashboardViewServiceName, "GetView", &GetViewRequest{ViewID: created.View.ID})
		requireCode(t, err, connect.CodeNotFound)
	})
}

func TestCreateViewValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		req  *CreateViewRequest
		code connect.Code
	}{
		{"missing name", &CreateViewRequest{ProjectName: "mnist", Config: json.RawMessage(sampleConfig)}, connect.CodeInvalidArgument},
		{"missing config", &CreateViewRequest{ProjectName: "mnist", Name: "x"}, connect.CodeInvalidArgument},
		{"config violates schema", &CreateViewRequest{ProjectName: "mnist", Name: "x", Config: json.RawMessage(`{"version":0,"sections":[]}`)}, connect.CodeInvalidArgument},
		{"unknown project", &CreateViewRequest{ProjectName: "cifar", Name: "x", Config: json.RawMessage(sampleConfig)}, connect.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := call[CreateViewRequest, CreateViewResponse](t, f, "alice", DashboardViewServiceName, "CreateView", tt.req)
			requireCode(t, err, tt.code)
		})
	}

	t.Run("duplicate name", func(t *testing.T) {
		req := &CreateViewRequest{ProjectName: "mnist", Name: "dup", Config: json.RawMessage(sampleConfig)}
		_, err := call[CreateViewRequest, CreateViewResponse](t, f, "alice", DashboardViewServiceName, "CreateView", req)
		require.NoError(t, err)
		_, err = call[CreateViewRequest, CreateViewResponse](t, f, "bob", DashboardViewServiceName, "CreateView", req)
		requireCode(t, err, connect.CodeAlreadyExists)
	})
}

func TestStoredConfigIsValidatedOnRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := call[CreateViewRequest, CreateViewResponse](t, f, "alice", DashboardViewServiceName, "CreateView",
		&CreateViewRequest{ProjectName: "mnist", Name: "Training", Config: json.RawMessage(sampleConfig)})
	require.NoError(t, err)

	legacy := &models.DashboardView{
		OrgID:       "org1",
		ProjectID:   f.run.ProjectID,
		Name:        "Legacy",
		Config:      json.RawMessage(`{"garbage":true}`),
		CreatedByID: "alice",
	}
	require.NoError(t, f.views.Create(ctx, legacy))

	_, err = call[GetViewRequest, GetViewResponse](t, f, "alice", DashboardViewServiceName, "GetView",
		&GetViewRequest{ViewID: formatID(legacy.ID)})
	requireCode(t, err, connect.CodeInternal)
	require.Equal(t, "stored dashboard view config is invalid", connectMessage(err))

	_, err = call[ListViewsRequest, ListViewsResponse](t, f, "alice", DashboardViewServiceName, "ListViews",
		&ListViewsRequest{ProjectName: "mnist"})
	requireCode(t, err, connect.CodeInternal)

	got, err := call[GetViewRequest, GetViewResponse](t, f, "alice", DashboardViewServiceName, "GetView",
		&GetViewRequest{ViewID: created.View.ID})
	require.NoError(t, err)
	require.JSONEq(t, sampleConfig, string(got.View.Config))
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ready, err := http.Get(f.srv.URL + "/health/ready")
	require.NoError(t, err)
	defer ready.Body.Close()
	require.Equal(t, http.StatusOK, ready.StatusCode)

	var body readiness
	require.NoError(t, json.NewDecoder(ready.Body).Decode(&body))
	require.Equal(t, "healthy", body.Status)
	require.Equal(t, "up", body.Checks["clickhouse"].Status)

	f.querier.Err = errors.New("connection refused")

	down, err := http.Get(f.srv.URL + "/health/ready")
	require.NoError(t, err)
	defer down.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, down.StatusCode)

	require.NoError(t, json.NewDecoder(down.Body).Decode(&body))
	require.Equal(t, "unhealthy", body.Status)
	require.Equal(t, "connection refused", body.Checks["clickhouse"].Error)
}

func connectMessage(err error) string {
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return connectErr.Message()
	}
	return ""
}
