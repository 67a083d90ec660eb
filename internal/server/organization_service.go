package server

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"github.com/mlop-ai/pluto/internal/auth"
	"github.com/mlop-ai/pluto/internal/store"
	"github.com/rs/zerolog/log"
)

// OrganizationService lists the caller's organizations and switches the
// session's active organization.
type OrganizationService struct {
	orgs     store.OrganizationStore
	sessions store.SessionStore
}

func NewOrganizationService(orgs store.OrganizationStore, sessions store.SessionStore) *OrganizationService {
	return &OrganizationService{orgs: orgs, sessions: sessions}
}

func (s *OrganizationService) ListOrganizations(
	ctx context.Context,
	req *connect.Request[ListOrganizationsRequest],
) (*connect.Response[ListOrganizationsResponse], error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}

	memberships, err := s.orgs.ListForUser(ctx, p.UserID)
	if err != nil {
		return nil, toConnectError(err)
	}

	out := make([]Organization, 0, len(memberships))
	for _, m := range memberships {
		out = append(out, Organization{
			ID:     m.Organization.ID,
			Name:   m.Organization.Name,
			Slug:   m.Organization.Slug,
			Role:   string(m.Role),
			Active: m.Organization.ID == p.OrgID,
		})
	}

	return connect.NewResponse(&ListOrganizationsResponse{Organizations: out}), nil
}

func (s *OrganizationService) SetActiveOrganization(
	ctx context.Context,
	req *connect.Request[SetActiveOrganizationRequest],
) (*connect.Response[SetActiveOrganizationResponse], error) {
	if req.Msg.OrganizationID == "" {
		return nil, toConnectError(invalid("organizationId", "is required"))
	}

	p, err := principal(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	if p.Demo {
		return nil, connect.NewError(connect.CodeFailedPrecondition, errors.New("organization is fixed in demo mode"))
	}

	// non-members get NotFound so organization ids cannot be probed
	member, err := s.orgs.GetMember(ctx, req.Msg.OrganizationID, p.UserID)
	if err != nil {
		if errors.Is(err, store.ErrMemberNotFound) {
			return nil, toConnectError(store.ErrOrganizationNotFound)
		}
		return nil, toConnectError(err)
	}

	org, err := s.orgs.Get(ctx, member.OrgID)
	if err != nil {
		return nil, toConnectError(err)
	}

	if err := s.sessions.SetActiveOrganization(ctx, p.SessionID, org.ID); err != nil {
		return nil, toConnectError(err)
	}

	log.Info().Str("user_id", p.UserID).Str("org_id", org.ID).Msg("Active organization changed")

	return connect.NewResponse(&SetActiveOrganizationResponse{Organization: Organization{
		ID:     org.ID,
		Name:   org.Name,
		Slug:   org.Slug,
		Role:   string(member.Role),
		Active: true,
	}}), nil
}

// principal returns the authenticated caller.
func principal(ctx context.Context) (*auth.Principal, error) {
	p := auth.PrincipalFromContext(ctx)
	if p == nil {
		return nil, auth.ErrUnauthenticated
	}
	return p, nil
}

// orgPrincipal returns the caller and requires an active organization.
func orgPrincipal(ctx context.Context) (*auth.Principal, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if !p.HasActiveOrg() {
		return nil, connect.NewError(connect.CodeFailedPrecondition, errors.New("no active organization"))
	}
	return p, nil
}
