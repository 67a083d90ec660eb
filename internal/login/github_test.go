package login

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTestGitHub(t *testing.T, profileEmail string) *GitHub {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok", "token_type": "bearer"})
	})
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(githubUser{ID: 7, Login: "grace", Email: profileEmail})
	})
	mux.HandleFunc("GET /user/emails", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]githubEmail{
			{Email: "old@example.com", Primary: false, Verified: true},
			{Email: "grace@example.com", Primary: true, Verified: true},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	g, err := NewGitHub("client", "secret", "http://localhost:3000/auth/github/callback")
	require.NoError(t, err)
	g.config.Endpoint = oauth2.Endpoint{
		AuthURL:   srv.URL + "/login/oauth/authorize",
		TokenURL:  srv.URL + "/login/oauth/access_token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	g.apiURL = srv.URL
	return g
}

func TestGitHub_Identify(t *testing.T) {
	g := newTestGitHub(t, "grace@navy.example")

	identity, err := g.Identify(context.Background(), "code")
	require.NoError(t, err)
	require.Equal(t, &Identity{
		ProviderID: "7",
		Login:      "grace",
		Name:       "grace",
		Email:      "grace@navy.example",
	}, identity)
}

func TestGitHub_IdentifyFallsBackToPrimaryEmail(t *testing.T) {
	g := newTestGitHub(t, "")

	identity, err := g.Identify(context.Background(), "code")
	require.NoError(t, err)
	require.Equal(t, "grace@example.com", identity.Email)
}

func TestGitHub_AuthCodeURL(t *testing.T) {
	g, err := NewGitHub("client", "secret", "http://localhost:3000/auth/github/callback")
	require.NoError(t, err)
	require.Contains(t, g.AuthCodeURL("xyz"), "state=xyz")

	_, err = NewGitHub("", "secret", "cb")
	require.Error(t, err)
}
