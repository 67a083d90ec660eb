package login

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mlop-ai/pluto/internal/auth"
	httpmiddleware "github.com/mlop-ai/pluto/internal/http"
	"github.com/mlop-ai/pluto/internal/models"
	"github.com/mlop-ai/pluto/internal/store"
	"github.com/rs/zerolog/log"
)

const (
	stateCookieName    = "pluto_oauth_state"
	redirectCookieName = "pluto_redirect"
	flowCookieMaxAge   = 300 // seconds, enough for the OAuth round trip
)

// SessionResetter is notified when a session signs out.
type SessionResetter interface {
	Reset(sessionID string)
}

// Config wires the browser routes.
type Config struct {
	Provider      Provider // nil in demo mode
	Tokens        *auth.SessionTokens
	Authenticator auth.Authenticator
	Navigator     *Navigator
	Users         store.UserStore
	Organizations store.OrganizationStore
	Sessions      store.SessionStore
	SessionTTL    time.Duration
	Analytics     SessionResetter // optional
}

// Handlers serves the root redirect, sign-in, OAuth callback and sign-out routes.
type Handlers struct {
	cfg Config
}

func NewHandlers(cfg Config) (*Handlers, error) {
	if cfg.Tokens == nil || cfg.Authenticator == nil || cfg.Navigator == nil {
		return nil, fmt.Errorf("tokens, authenticator and navigator are required")
	}
	if cfg.Users == nil || cfg.Organizations == nil || cfg.Sessions == nil {
		return nil, fmt.Errorf("user, organization and session stores are required")
	}
	if cfg.Provider == nil && !cfg.Navigator.Demo() {
		return nil, fmt.Errorf("a sign-in provider is required outside demo mode")
	}
	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("session TTL must be greater than 0")
	}
	return &Handlers{cfg: cfg}, nil
}

// Register mounts the routes on mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.Root)
	mux.HandleFunc("GET /sign-in", h.SignIn)
	mux.HandleFunc("GET /auth/github/callback", h.Callback)
	mux.HandleFunc("POST /sign-out", h.SignOut)
}

// Root redirects to wherever the navigation state says the user belongs.
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	nav := NavState{RequestedPath: r.URL.RequestURI()}
	if p := h.principal(r); p != nil {
		nav.UserID = p.UserID
		nav.ActiveOrgID = p.OrgID
	}

	target := h.cfg.Navigator.Decide(r.Context(), nav)
	log.Debug().Str("state", nav.State().String()).Str("target", target).Msg("Root redirect")
	http.Redirect(w, r, target, http.StatusFound)
}

// SignIn starts the OAuth flow, or sends an already signed-in user on.
func (h *Handlers) SignIn(w http.ResponseWriter, r *http.Request) {
	requested := SafeRedirect(r.URL.Query().Get("redirect"), "")

	if h.cfg.Navigator.Demo() {
		http.Redirect(w, r, h.cfg.Navigator.Decide(r.Context(), NavState{}), http.StatusFound)
		return
	}

	if p := h.principal(r); p != nil {
		http.Redirect(w, r, SafeRedirect(requested, DefaultDestination), http.StatusFound)
		return
	}

	state := rand.Text()
	h.setFlowCookie(w, stateCookieName, state, flowCookieMaxAge)
	if requested != "" {
		h.setFlowCookie(w, redirectCookieName, requested, flowCookieMaxAge)
	}

	log.Debug().Msg("Initiating GitHub OAuth flow")
	http.Redirect(w, r, h.cfg.Provider.AuthCodeURL(state), http.StatusFound)
}

// Callback completes the OAuth flow: it creates the user and a personal
// organization on first sign-in, opens a session and sets the cookie.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Provider == nil {
		http.NotFound(w, r)
		return
	}

	state := r.FormValue("state")
	code := r.FormValue("code")
	if state == "" || code == "" {
		log.Warn().Msg("OAuth callback missing state or code")
		http.Error(w, "Authentication failed", http.StatusBadRequest)
		return
	}

	cookie, err := r.Cookie(stateCookieName)
	if err != nil || cookie.Value != state {
		log.Warn().Msg("OAuth callback state mismatch")
		http.Error(w, "Authentication failed", http.StatusBadRequest)
		return
	}
	h.setFlowCookie(w, stateCookieName, "", -1)

	destination := "/"
	if c, err := r.Cookie(redirectCookieName); err == nil {
		destination = SafeRedirect(c.Value, "/")
		h.setFlowCookie(w, redirectCookieName, "", -1)
	}

	identity, err := h.cfg.Provider.Identify(r.Context(), code)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to identify user with GitHub")
		http.Error(w, "Authentication failed", http.StatusBadRequest)
		return
	}

	user, activeOrgID, err := h.ensureUser(r.Context(), identity)
	if err != nil {
		log.Error().Err(err).Msg("Failed to provision user")
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	sessionID, err := uuid.NewV7()
	if err != nil {
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	session := &models.Session{
		SessionID:   sessionID,
		UserID:      user.ID,
		ActiveOrgID: activeOrgID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(h.cfg.SessionTTL),
		LastUsedAt:  now,
		UserAgent:   r.UserAgent(),
		IPAddress:   clientIP(r),
	}
	if err := h.cfg.Sessions.Create(r.Context(), session); err != nil {
		log.Error().Err(err).Msg("Failed to store session")
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	token, err := h.cfg.Tokens.Issue(sessionID, user.ID, session.ExpiresAt)
	if err != nil {
		log.Error().Err(err).Msg("Failed to issue session token")
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	h.cfg.Tokens.SetCookie(w, token, session.ExpiresAt)

	log.Info().Str("user_id", user.ID).Str("session_id", sessionID.String()).Msg("User signed in")
	http.Redirect(w, r, destination, http.StatusFound)
}

// SignOut deletes the session, clears the cookie and resets analytics state.
func (h *Handlers) SignOut(w http.ResponseWriter, r *http.Request) {
	if p := h.principal(r); p != nil && p.SessionID != uuid.Nil {
		if err := h.cfg.Sessions.Delete(r.Context(), p.SessionID); err != nil && !errors.Is(err, store.ErrSessionNotFound) {
			log.Warn().Err(err).Str("session_id", p.SessionID.String()).Msg("Failed to delete session")
		}
		if h.cfg.Analytics != nil {
			h.cfg.Analytics.Reset(p.SessionID.String())
		}
		log.Info().Str("user_id", p.UserID).Msg("User signed out")
	}

	h.cfg.Tokens.ClearCookie(w)
	http.Redirect(w, r, "/sign-in", http.StatusSeeOther)
}

func (h *Handlers) principal(r *http.Request) *auth.Principal {
	if p := auth.PrincipalFromContext(r.Context()); p != nil {
		return p
	}
	p, err := h.cfg.Authenticator.Authenticate(r.Context(), r)
	if err != nil {
		return nil
	}
	return p
}

// ensureUser returns the user for the identity and the organization the new
// session should start in.
func (h *Handlers) ensureUser(ctx context.Context, identity *Identity) (*models.User, string, error) {
	user, err := h.cfg.Users.GetByEmail(ctx, identity.Email)
	switch {
	case err == nil:
		memberships, err := h.cfg.Organizations.ListForUser(ctx, user.ID)
		if err != nil {
			return nil, "", fmt.Errorf("failed to list organizations: %w", err)
		}
		if len(memberships) == 0 {
			return user, "", nil
		}
		return user, memberships[0].Organization.ID, nil
	case !errors.Is(err, store.ErrUserNotFound):
		return nil, "", fmt.Errorf("failed to load user: %w", err)
	}

	now := time.Now()
	user = &models.User{
		ID:        "usr_" + uuid.NewString(),
		Email:     identity.Email,
		Name:      identity.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if identity.ProviderID != "" {
		user.GitHubID = &identity.ProviderID
	}
	if identity.AvatarURL != "" {
		user.AvatarURL = &identity.AvatarURL
	}

	if err := h.cfg.Users.Create(ctx, user); err != nil {
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	org, err := h.createPersonalOrganization(ctx, user, identity.Login)
	if err != nil {
		return nil, "", err
	}

	log.Info().Str("user_id", user.ID).Str("org_id", org.ID).Msg("Provisioned new user")
	return user, org.ID, nil
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9-]+`)

func (h *Handlers) createPersonalOrganization(ctx context.Context, user *models.User, login string) (*models.Organization, error) {
	base := strings.Trim(slugInvalid.ReplaceAllString(strings.ToLower(login), "-"), "-")
	if base == "" {
		base = "personal"
	}

	now := time.Now()
	org := &models.Organization{
		ID:        "org_" + uuid.NewString(),
		Name:      user.Name,
		Slug:      base,
		CreatedAt: now,
		UpdatedAt: now,
	}

	const maxAttempts = 5
	for attempt := range maxAttempts {
		if attempt > 0 {
			org.Slug = base + "-" + strings.ToLower(rand.Text()[:6])
		}
		err := h.cfg.Organizations.Create(ctx, org)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrOrganizationAlreadyExists) || attempt == maxAttempts-1 {
			return nil, fmt.Errorf("failed to create organization: %w", err)
		}
	}

	member := &models.Member{OrgID: org.ID, UserID: user.ID, Role: models.RoleOwner, CreatedAt: now}
	if err := h.cfg.Organizations.AddMember(ctx, member); err != nil {
		return nil, fmt.Errorf("failed to add owner: %w", err)
	}

	return org, nil
}

func clientIP(r *http.Request) string {
	if ip := httpmiddleware.ClientIPFromContext(r.Context()); ip != "" {
		return ip
	}
	return httpmiddleware.ExtractClientIP(r)
}

func (h *Handlers) setFlowCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.Tokens.Secure(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}
