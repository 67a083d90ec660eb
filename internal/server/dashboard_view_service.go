package server

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"github.com/mlop-ai/pluto/internal/auth"
	"github.com/mlop-ai/pluto/internal/models"
	"github.com/mlop-ai/pluto/internal/resolver"
	"github.com/mlop-ai/pluto/internal/store"
	"github.com/rs/zerolog/log"
)

const viewKind = "dashboard_view"

// DashboardViewService manages saved dashboard views for a project.
type DashboardViewService struct {
	resolver *resolver.Resolver
	views    store.DashboardViewStore
}

func NewDashboardViewService(res *resolver.Resolver, views store.DashboardViewStore) *DashboardViewService {
	return &DashboardViewService{resolver: res, views: views}
}

func (s *DashboardViewService) ListViews(
	ctx context.Context,
	req *connect.Request[ListViewsRequest],
) (*connect.Response[ListViewsResponse], error) {
	if err := requireName("projectName", req.Msg.ProjectName, maxNameLength); err != nil {
		return nil, toConnectError(err)
	}

	p, err := orgPrincipal(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	if err := auth.Authorize(p, auth.Resource{Kind: viewKind, OrgID: p.OrgID}, auth.ActionRead); err != nil {
		return nil, toConnectError(err)
	}

	projectID, err := s.resolver.ResolveProject(ctx, p.OrgID, req.Msg.ProjectName)
	if err != nil {
		return nil, toConnectError(err)
	}

	views, err := s.views.ListByProject(ctx, p.OrgID, projectID)
	if err != nil {
		return nil, toConnectError(err)
	}

	out := make([]DashboardView, 0, len(views))
	for _, v := range views {
		shaped, err := toDashboardView(v)
		if err != nil {
			return nil, err
		}
		out = append(out, shaped)
	}

	return connect.NewResponse(&ListViewsResponse{Views: out}), nil
}

func (s *DashboardViewService) GetView(
	ctx context.Context,
	req *connect.Request[GetViewRequest],
) (*connect.Response[GetViewResponse], error) {
	viewID, err := parseID("viewId", req.Msg.ViewID)
	if err != nil {
		return nil, toConnectError(err)
	}

	p, err := orgPrincipal(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}

	view, err := s.views.Get(ctx, p.OrgID, viewID)
	if err != nil {
		return nil, toConnectError(err)
	}
	if err := auth.Authorize(p, viewResource(view), auth.ActionRead); err != nil {
		return nil, toConnectError(err)
	}

	shaped, err := toDashboardView(view)
	if err != nil {
		return nil, err
	}

	return connect.NewResponse(&GetViewResponse{View: shaped}), nil
}

func (s *DashboardViewService) CreateView(
	ctx context.Context,
	req *connect.Request[CreateViewRequest],
) (*connect.Response[CreateViewResponse], error) {
	if err := requireName("projectName", req.Msg.ProjectName, maxNameLength); err != nil {
		return nil, toConnectError(err)
	}
	if err := requireName("name", req.Msg.Name, maxNameLength); err != nil {
		return nil, toConnectError(err)
	}
	config, err := parseViewConfig(req.Msg.Config)
	if err != nil {
		return nil, toConnectError(err)
	}

	p, err := orgPrincipal(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	if err := auth.Authorize(p, auth.Resource{Kind: viewKind, OrgID: p.OrgID}, auth.ActionCreate); err != nil {
		return nil, toConnectError(err)
	}

	projectID, err := s.resolver.ResolveProject(ctx, p.OrgID, req.Msg.ProjectName)
	if err != nil {
		return nil, toConnectError(err)
	}

	view := &models.DashboardView{
		OrgID:       p.OrgID,
		ProjectID:   projectID,
		Name:        req.Msg.Name,
		IsDefault:   req.Msg.IsDefault,
		Config:      config,
		CreatedByID: p.UserID,
	}
	if err := s.views.Create(ctx, view); err != nil {
		return nil, toConnectError(err)
	}

	log.Info().
		Str("org_id", p.OrgID).
		Int64("view_id", view.ID).
		Int64("project_id", projectID).
		Msg("Dashboard view created")

	shaped, err := toDashboardView(view)
	if err != nil {
		return nil, err
	}

	return connect.NewResponse(&CreateViewResponse{View: shaped}), nil
}

func (s *DashboardViewService) UpdateView(
	ctx context.Context,
	req *connect.Request[UpdateViewRequest],
) (*connect.Response[UpdateViewResponse], error) {
	viewID, err := parseID("viewId", req.Msg.ViewID)
	if err != nil {
		return nil, toConnectError(err)
	}
	if req.Msg.Name != nil {
		if err := requireName("name", *req.Msg.Name, maxNameLength); err != nil {
			return nil, toConnectError(err)
		}
	}

	var config []byte
	if len(req.Msg.Config) > 0 {
		if config, err = parseViewConfig(req.Msg.Config); err != nil {
			return nil, toConnectError(err)
		}
	}

	p, err := orgPrincipal(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}

	// authorization is decided against the stored row, never the request
	view, err := s.views.Get(ctx, p.OrgID, viewID)
	if err != nil {
		return nil, toConnectError(err)
	}
	if err := auth.Authorize(p, viewResource(view), auth.ActionUpdate); err != nil {
		return nil, toConnectError(err)
	}

	if req.Msg.Name != nil {
		view.Name = *req.Msg.Name
	}
	if req.Msg.IsDefault != nil {
		view.IsDefault = *req.Msg.IsDefault
	}
	if config != nil {
		view.Config = config
	}

	if err := s.views.Update(ctx, view); err != nil {
		return nil, toConnectError(err)
	}

	log.Info().Str("org_id", p.OrgID).Int64("view_id", view.ID).Msg("Dashboard view updated")

	shaped, err := toDashboardView(view)
	if err != nil {
		return nil, err
	}

	return connect.NewResponse(&UpdateViewResponse{View: shaped}), nil
}

func (s *DashboardViewService) DeleteView(
	ctx context.Context,
	req *connect.Request[DeleteViewRequest],
) (*connect.Response[DeleteViewResponse], error) {
	viewID, err := parseID("viewId", req.Msg.ViewID)
	if err != nil {
		return nil, toConnectError(err)
	}

	p, err := orgPrincipal(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}

	view, err := s.views.Get(ctx, p.OrgID, viewID)
	if err != nil {
		return nil, toConnectError(err)
	}
	if err := auth.Authorize(p, viewResource(view), auth.ActionDelete); err != nil {
		log.Warn().
			Str("user_id", p.UserID).
			Int64("view_id", view.ID).
			Msg("Dashboard view delete denied")
		return nil, toConnectError(err)
	}

	if err := s.views.Delete(ctx, p.OrgID, viewID); err != nil {
		return nil, toConnectError(err)
	}

	log.Info().Str("org_id", p.OrgID).Int64("view_id", viewID).Msg("Dashboard view deleted")

	return connect.NewResponse(&DeleteViewResponse{}), nil
}

func viewResource(v *models.DashboardView) auth.Resource {
	return auth.Resource{Kind: viewKind, OrgID: v.OrgID, CreatedByID: v.CreatedByID}
}

var errStoredConfigInvalid = errors.New("stored dashboard view config is invalid")

// toDashboardView shapes a stored view for the wire. The stored config is
// checked against the view schema; rows that fail are an internal error.
func toDashboardView(v *models.DashboardView) (DashboardView, error) {
	config, err := parseViewConfig(v.Config)
	if err != nil {
		log.Error().
			Err(err).
			Str("org_id", v.OrgID).
			Int64("view_id", v.ID).
			Msg("Stored dashboard view config failed validation")
		return DashboardView{}, connect.NewError(connect.CodeInternal, errStoredConfigInvalid)
	}

	return DashboardView{
		ID:          formatID(v.ID),
		ProjectID:   formatID(v.ProjectID),
		Name:        v.Name,
		IsDefault:   v.IsDefault,
		Config:      config,
		CreatedByID: v.CreatedByID,
		CreatedAt:   v.CreatedAt,
		UpdatedAt:   v.UpdatedAt,
	}, nil
}
