package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mlop-ai/pluto/internal/models"
	"github.com/mlop-ai/pluto/internal/store/memory"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	tokens   *SessionTokens
	sessions *memory.SessionStore
	auth     *SessionAuthenticator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	tokens, err := NewSessionTokens(testSecret, "http://localhost:3000", false)
	require.NoError(t, err)

	users := memory.NewUserStore()
	orgs := memory.NewOrganizationStore()
	sessions := memory.NewSessionStore()

	require.NoError(t, users.Create(ctx, &models.User{ID: "u1", Email: "ada@example.com", Name: "Ada"}))
	require.NoError(t, orgs.Create(ctx, &models.Organization{ID: "org1", Name: "Acme", Slug: "acme"}))
	require.NoError(t, orgs.AddMember(ctx, &models.Member{OrgID: "org1", UserID: "u1", Role: models.RoleAdmin}))

	return &fixture{
		tokens:   tokens,
		sessions: sessions,
		auth:     NewSessionAuthenticator(tokens, sessions, users, orgs),
	}
}

func (f *fixture) request(t *testing.T, activeOrg string, ttl time.Duration) *http.Request {
	t.Helper()

	now := time.Now()
	session := &models.Session{
		SessionID:   uuid.New(),
		UserID:      "u1",
		ActiveOrgID: activeOrg,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
		LastUsedAt:  now,
	}
	require.NoError(t, f.sessions.Create(context.Background(), session))

	token, err := f.tokens.Issue(session.SessionID, "u1", now.Add(time.Hour))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/version/all", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	return req
}

func TestSessionAuthenticator(t *testing.T) {
	f := newFixture(t)

	t.Run("with active organization", func(t *testing.T) {
		p, err := f.auth.Authenticate(context.Background(), f.request(t, "org1", time.Hour))
		require.NoError(t, err)
		require.Equal(t, "u1", p.UserID)
		require.Equal(t, "org1", p.OrgID)
		require.Equal(t, models.RoleAdmin, p.Role)
		require.True(t, p.HasActiveOrg())
	})

	t.Run("without active organization", func(t *testing.T) {
		p, err := f.auth.Authenticate(context.Background(), f.request(t, "", time.Hour))
		require.NoError(t, err)
		require.False(t, p.HasActiveOrg())
	})

	t.Run("active organization without membership", func(t *testing.T) {
		p, err := f.auth.Authenticate(context.Background(), f.request(t, "org9", time.Hour))
		require.NoError(t, err)
		require.Empty(t, p.OrgID)
	})

	t.Run("expired session", func(t *testing.T) {
		_, err := f.auth.Authenticate(context.Background(), f.request(t, "org1", -time.Minute))
		require.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("no cookie", func(t *testing.T) {
		_, err := f.auth.Authenticate(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
		require.ErrorIs(t, err, ErrUnauthenticated)
	})
}

func TestSessionMiddleware(t *testing.T) {
	f := newFixture(t)

	var seen *Principal
	handler := SessionMiddleware(f.auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, f.request(t, "org1", time.Hour))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	require.Equal(t, "org1", seen.OrgID)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.JSONEq(t, `{"code":"unauthenticated","message":"authentication required"}`, rec.Body.String())
}

func TestDemoMiddleware(t *testing.T) {
	var seen *Principal
	handler := DemoMiddleware(Principal{UserID: "demo", OrgID: "org-demo", Role: models.RoleMember})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = PrincipalFromContext(r.Context())
		}),
	)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotNil(t, seen)
	require.True(t, seen.Demo)
	require.Equal(t, "org-demo", seen.OrgID)
}

func TestPrincipalFromContext_Empty(t *testing.T) {
	require.Nil(t, PrincipalFromContext(context.Background()))
}
