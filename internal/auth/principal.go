package auth

import (
	"context"

	"connectrpc.com/authn"
	"github.com/google/uuid"
	"github.com/mlop-ai/pluto/internal/models"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID string
	Email  string
	Name   string

	// OrgID and Role describe the active organization membership.
	// Both are empty when the user has not selected an organization.
	OrgID string
	Role  models.Role

	SessionID uuid.UUID
	Demo      bool
}

// HasActiveOrg reports whether the principal acts within an organization.
func (p *Principal) HasActiveOrg() bool {
	return p != nil && p.OrgID != "" && p.Role.Valid()
}

type contextKey int

const (
	principalContextKey contextKey = iota
)

// WithPrincipal returns a copy of ctx carrying the principal.
func WithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// PrincipalFromContext extracts the authenticated principal from the request context.
// Returns nil if no principal is present (unauthenticated request).
func PrincipalFromContext(ctx context.Context) *Principal {
	if principal, ok := ctx.Value(principalContextKey).(*Principal); ok {
		return principal
	}
	// set by authn.Middleware on RPC routes
	principal, _ := authn.GetInfo(ctx).(*Principal)
	return principal
}
