package login

import (
	"context"
	"net/url"

	"github.com/mlop-ai/pluto/internal/store"
	"github.com/rs/zerolog/log"
)

// State is the navigation state derived from the session at request time.
type State int

const (
	Unauthenticated State = iota
	AuthenticatedNoActiveOrg
	AuthenticatedWithActiveOrg
)

func (s State) String() string {
	switch s {
	case AuthenticatedNoActiveOrg:
		return "authenticated_no_active_org"
	case AuthenticatedWithActiveOrg:
		return "authenticated_with_active_org"
	default:
		return "unauthenticated"
	}
}

// NavState is the input to Navigator.Decide.
type NavState struct {
	UserID      string // empty when unauthenticated
	ActiveOrgID string
	// RequestedPath is the destination the user asked for, kept across sign-in
	// when it is a safe relative path.
	RequestedPath string
}

func (n NavState) State() State {
	switch {
	case n.UserID == "":
		return Unauthenticated
	case n.ActiveOrgID == "":
		return AuthenticatedNoActiveOrg
	default:
		return AuthenticatedWithActiveOrg
	}
}

// Navigator decides where a navigation lands.
type Navigator struct {
	orgs     store.OrganizationStore
	demoSlug string
}

// NewNavigator creates a navigator. A non-empty demoSlug enables demo mode,
// which sends every navigation to that organization.
func NewNavigator(orgs store.OrganizationStore, demoSlug string) *Navigator {
	return &Navigator{orgs: orgs, demoSlug: demoSlug}
}

// Demo reports whether the navigator runs in demo mode.
func (n *Navigator) Demo() bool {
	return n.demoSlug != ""
}

// Decide returns the redirect target for the navigation. Failures to resolve
// the organization fall back to the organization selector.
func (n *Navigator) Decide(ctx context.Context, nav NavState) string {
	if n.Demo() {
		return orgPath(n.demoSlug)
	}

	switch nav.State() {
	case Unauthenticated:
		return signInPath(nav.RequestedPath)
	case AuthenticatedNoActiveOrg:
		return DefaultDestination
	}

	memberships, err := n.orgs.ListForUser(ctx, nav.UserID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", nav.UserID).Msg("Failed to list organizations, falling back to selector")
		return DefaultDestination
	}

	for _, m := range memberships {
		if m.Organization.ID == nav.ActiveOrgID && m.Organization.Slug != "" {
			return orgPath(m.Organization.Slug)
		}
	}

	log.Debug().Str("user_id", nav.UserID).Str("org_id", nav.ActiveOrgID).Msg("Active organization not in membership list")
	return DefaultDestination
}

func orgPath(slug string) string {
	return DefaultDestination + "/" + url.PathEscape(slug)
}

func signInPath(requested string) string {
	if requested == "" || requested == "/" || !isSafePath(requested) {
		return "/sign-in"
	}
	return "/sign-in?" + url.Values{"redirect": {requested}}.Encode()
}
