package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"connectrpc.com/authn"
	"github.com/mlop-ai/pluto/internal/store"
	"github.com/rs/zerolog/log"
)

// ErrUnauthenticated is returned when authentication fails.
var ErrUnauthenticated = errors.New("unauthenticated")

// lastUsedGranularity limits last_used_at writes to one per interval per session.
const lastUsedGranularity = 5 * time.Minute

// Authenticator resolves a request's session cookie into a Principal.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (*Principal, error)
}

// SessionAuthenticator authenticates requests using the session cookie and
// the stored session, user and membership rows.
type SessionAuthenticator struct {
	tokens   *SessionTokens
	sessions store.SessionStore
	users    store.UserStore
	orgs     store.OrganizationStore
}

// NewSessionAuthenticator creates an authenticator over the stores.
func NewSessionAuthenticator(tokens *SessionTokens, sessions store.SessionStore, users store.UserStore, orgs store.OrganizationStore) *SessionAuthenticator {
	return &SessionAuthenticator{tokens: tokens, sessions: sessions, users: users, orgs: orgs}
}

// Authenticate returns the principal for the request. A session whose active
// organization no longer has the user as a member yields a principal with no
// active organization.
func (a *SessionAuthenticator) Authenticate(ctx context.Context, r *http.Request) (*Principal, error) {
	token := tokenFromRequest(r)
	if token == "" {
		return nil, ErrUnauthenticated
	}

	sessionID, userID, err := a.tokens.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	session, err := a.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) || errors.Is(err, store.ErrSessionExpired) {
			return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if session.UserID != userID {
		return nil, fmt.Errorf("%w: session subject mismatch", ErrUnauthenticated)
	}

	user, err := a.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	principal := &Principal{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		SessionID: session.SessionID,
	}

	if session.ActiveOrgID != "" {
		member, err := a.orgs.GetMember(ctx, session.ActiveOrgID, user.ID)
		switch {
		case err == nil:
			principal.OrgID = member.OrgID
			principal.Role = member.Role
		case errors.Is(err, store.ErrMemberNotFound):
			log.Debug().Str("user_id", user.ID).Str("org_id", session.ActiveOrgID).Msg("Active organization membership gone")
		default:
			return nil, fmt.Errorf("failed to load membership: %w", err)
		}
	}

	if time.Since(session.LastUsedAt) > lastUsedGranularity {
		if err := a.sessions.UpdateLastUsed(ctx, session.SessionID); err != nil {
			log.Warn().Err(err).Str("session_id", session.SessionID.String()).Msg("Failed to update session last_used_at")
		}
	}

	return principal, nil
}

// AuthFunc adapts an Authenticator for authn.NewMiddleware on RPC routes.
// Unauthenticated requests fail with CodeUnauthenticated.
func AuthFunc(a Authenticator) authn.AuthFunc {
	return func(ctx context.Context, r *http.Request) (any, error) {
		principal, err := a.Authenticate(ctx, r)
		if err != nil {
			log.Debug().Err(err).Str("path", r.URL.Path).Msg("Session auth: rejected")
			return nil, authn.Errorf("unauthenticated")
		}
		return principal, nil
	}
}

// SessionMiddleware authenticates plain HTTP API routes. Unauthenticated
// requests get a 401 JSON error.
func SessionMiddleware(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := a.Authenticate(r.Context(), r)
			if err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("Session auth: rejected")
				writeUnauthenticated(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// OptionalSessionMiddleware attaches the principal when the request carries a
// valid session and passes the request through either way.
func OptionalSessionMiddleware(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if principal, err := a.Authenticate(r.Context(), r); err == nil {
				r = r.WithContext(WithPrincipal(r.Context(), principal))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// DemoAuthenticator always returns the fixed demo principal.
type DemoAuthenticator struct {
	Principal Principal
}

func (d *DemoAuthenticator) Authenticate(ctx context.Context, r *http.Request) (*Principal, error) {
	p := d.Principal
	p.Demo = true
	return &p, nil
}

// DemoMiddleware attaches the demo principal to every request.
func DemoMiddleware(principal Principal) func(http.Handler) http.Handler {
	return SessionMiddleware(&DemoAuthenticator{Principal: principal})
}

func writeUnauthenticated(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    "unauthenticated",
		"message": "authentication required",
	})
}
