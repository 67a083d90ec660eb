package server

import (
	"context"
	"fmt"
	"slices"

	"connectrpc.com/connect"
	"github.com/mlop-ai/pluto/internal/auth"
	"github.com/mlop-ai/pluto/internal/cache"
	"github.com/mlop-ai/pluto/internal/clickhouse"
	"github.com/mlop-ai/pluto/internal/models"
	"github.com/mlop-ai/pluto/internal/resolver"
	"github.com/mlop-ai/pluto/internal/store"
	"github.com/rs/zerolog/log"
)

// Cache operation names.
const (
	opHistograms   = "histograms"
	opMetricSeries = "metric_series"
	opLogNames     = "log_names"
)

var triggerTypes = []string{
	models.TriggerTypeWebhook,
	models.TriggerTypeAlert,
	models.TriggerTypeManual,
	models.TriggerTypeSchedule,
}

// RunService serves run resolution, cached analytical reads and run triggers.
type RunService struct {
	resolver *resolver.Resolver
	cache    *cache.Cache
	querier  clickhouse.Querier
	triggers store.RunTriggerStore
}

func NewRunService(res *resolver.Resolver, c *cache.Cache, querier clickhouse.Querier, triggers store.RunTriggerStore) *RunService {
	return &RunService{resolver: res, cache: c, querier: querier, triggers: triggers}
}

// resolve authorizes a read on the caller's organization and resolves the run.
func (s *RunService) resolve(ctx context.Context, ref RunRef, action auth.Action) (*auth.Principal, int64, error) {
	if err := ref.validate(); err != nil {
		return nil, 0, err
	}

	p, err := orgPrincipal(ctx)
	if err != nil {
		return nil, 0, err
	}

	if err := auth.Authorize(p, auth.Resource{Kind: "run", OrgID: p.OrgID}, action); err != nil {
		return nil, 0, err
	}

	runID, err := s.resolver.ResolveRun(ctx, p.OrgID, ref.ProjectName, ref.RunID)
	if err != nil {
		return nil, 0, err
	}

	return p, runID, nil
}

func (s *RunService) ResolveRun(
	ctx context.Context,
	req *connect.Request[ResolveRunRequest],
) (*connect.Response[ResolveRunResponse], error) {
	_, runID, err := s.resolve(ctx, req.Msg.RunRef, auth.ActionRead)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&ResolveRunResponse{
		RunID:      req.Msg.RunID,
		InternalID: formatID(runID),
	}), nil
}

func (s *RunService) GetHistograms(
	ctx context.Context,
	req *connect.Request[GetHistogramsRequest],
) (*connect.Response[GetHistogramsResponse], error) {
	if err := requireName("logName", req.Msg.LogName, maxLogNameLength); err != nil {
		return nil, toConnectError(err)
	}

	p, runID, err := s.resolve(ctx, req.Msg.RunRef, auth.ActionRead)
	if err != nil {
		return nil, toConnectError(err)
	}

	params := cache.Params{
		cache.OrgIDParam: p.OrgID,
		"projectName":    req.Msg.ProjectName,
		"runId":          runID,
		"logName":        req.Msg.LogName,
	}

	histograms, err := cache.WithCache(ctx, s.cache, opHistograms, params, func(ctx context.Context) ([]clickhouse.Histogram, error) {
		return s.querier.Histograms(ctx, clickhouse.HistogramQuery{
			RunScope: scope(p.OrgID, req.Msg.ProjectName, runID),
			LogName:  req.Msg.LogName,
		})
	})
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&GetHistogramsResponse{
		LogName:    req.Msg.LogName,
		Histograms: nonNil(histograms),
	}), nil
}

func (s *RunService) GetMetricSeries(
	ctx context.Context,
	req *connect.Request[GetMetricSeriesRequest],
) (*connect.Response[GetMetricSeriesResponse], error) {
	if err := requireName("logName", req.Msg.LogName, maxLogNameLength); err != nil {
		return nil, toConnectError(err)
	}
	if req.Msg.MaxPoints < 0 || req.Msg.MaxPoints > maxMetricPoints {
		return nil, toConnectError(invalid("maxPoints", fmt.Sprintf("must be between 0 and %d", maxMetricPoints)))
	}

	p, runID, err := s.resolve(ctx, req.Msg.RunRef, auth.ActionRead)
	if err != nil {
		return nil, toConnectError(err)
	}

	params := cache.Params{
		cache.OrgIDParam: p.OrgID,
		"projectName":    req.Msg.ProjectName,
		"runId":          runID,
		"logName":        req.Msg.LogName,
		"maxPoints":      req.Msg.MaxPoints,
	}

	points, err := cache.WithCache(ctx, s.cache, opMetricSeries, params, func(ctx context.Context) ([]clickhouse.MetricPoint, error) {
		return s.querier.MetricSeries(ctx, clickhouse.MetricQuery{
			RunScope:  scope(p.OrgID, req.Msg.ProjectName, runID),
			LogName:   req.Msg.LogName,
			MaxPoints: req.Msg.MaxPoints,
		})
	})
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&GetMetricSeriesResponse{
		LogName: req.Msg.LogName,
		Points:  nonNil(points),
	}), nil
}

func (s *RunService) ListLogNames(
	ctx context.Context,
	req *connect.Request[ListLogNamesRequest],
) (*connect.Response[ListLogNamesResponse], error) {
	p, runID, err := s.resolve(ctx, req.Msg.RunRef, auth.ActionRead)
	if err != nil {
		return nil, toConnectError(err)
	}

	params := cache.Params{
		cache.OrgIDParam: p.OrgID,
		"projectName":    req.Msg.ProjectName,
		"runId":          runID,
	}

	names, err := cache.WithCache(ctx, s.cache, opLogNames, params, func(ctx context.Context) ([]clickhouse.LogName, error) {
		return s.querier.LogNames(ctx, clickhouse.LogNamesQuery{
			RunScope: scope(p.OrgID, req.Msg.ProjectName, runID),
		})
	})
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&ListLogNamesResponse{LogNames: nonNil(names)}), nil
}

func (s *RunService) ListRunTriggers(
	ctx context.Context,
	req *connect.Request[ListRunTriggersRequest],
) (*connect.Response[ListRunTriggersResponse], error) {
	p, runID, err := s.resolve(ctx, req.Msg.RunRef, auth.ActionRead)
	if err != nil {
		return nil, toConnectError(err)
	}

	triggers, err := s.triggers.ListByRun(ctx, p.OrgID, runID)
	if err != nil {
		return nil, toConnectError(err)
	}

	out := make([]RunTrigger, 0, len(triggers))
	for _, t := range triggers {
		out = append(out, toRunTrigger(t))
	}

	return connect.NewResponse(&ListRunTriggersResponse{Triggers: out}), nil
}

func (s *RunService) CreateRunTrigger(
	ctx context.Context,
	req *connect.Request[CreateRunTriggerRequest],
) (*connect.Response[CreateRunTriggerResponse], error) {
	if !slices.Contains(triggerTypes, req.Msg.TriggerType) {
		return nil, toConnectError(invalid("triggerType", fmt.Sprintf("must be one of %v", triggerTypes)))
	}
	if len(req.Msg.Context) > maxTriggerContext {
		return nil, toConnectError(invalid("context", fmt.Sprintf("must have at most %d entries", maxTriggerContext)))
	}

	p, runID, err := s.resolve(ctx, req.Msg.RunRef, auth.ActionCreate)
	if err != nil {
		return nil, toConnectError(err)
	}

	trigger := &models.RunTrigger{
		OrgID:       p.OrgID,
		RunID:       runID,
		TriggerType: req.Msg.TriggerType,
		Context:     req.Msg.Context,
		CreatedByID: p.UserID,
	}
	if err := s.triggers.Create(ctx, trigger); err != nil {
		return nil, toConnectError(err)
	}

	log.Info().
		Str("org_id", p.OrgID).
		Int64("run_id", runID).
		Str("trigger_type", trigger.TriggerType).
		Msg("Run trigger created")

	return connect.NewResponse(&CreateRunTriggerResponse{Trigger: toRunTrigger(trigger)}), nil
}

func scope(orgID, projectName string, runID int64) clickhouse.RunScope {
	return clickhouse.RunScope{TenantID: orgID, ProjectName: projectName, RunID: runID}
}

func toRunTrigger(t *models.RunTrigger) RunTrigger {
	return RunTrigger{
		ID:          formatID(t.ID),
		RunID:       formatID(t.RunID),
		TriggerType: t.TriggerType,
		Context:     t.Context,
		CreatedByID: t.CreatedByID,
		CreatedAt:   t.CreatedAt,
	}
}

// nonNil keeps empty results rendering as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
