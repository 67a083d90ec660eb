package analytics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/mlop-ai/pluto/internal/auth"
	"github.com/mlop-ai/pluto/internal/models"
	"github.com/mlop-ai/pluto/internal/store"
	"github.com/rs/zerolog/log"
)

// Tracker owns one Reporter per signed-in session. Reporters idle for longer
// than the idle TTL are dropped by Prune.
type Tracker struct {
	client  Client
	orgs    store.OrganizationStore
	idleTTL time.Duration
	now     func() time.Time

	mu        sync.Mutex
	reporters map[string]*trackedReporter
}

type trackedReporter struct {
	reporter *Reporter
	lastSeen time.Time
}

// NewTracker creates a tracker. A nil client disables reporting. idleTTL is
// normally the session lifetime; a non-positive value keeps reporters until
// sign-out.
func NewTracker(client Client, orgs store.OrganizationStore, idleTTL time.Duration) *Tracker {
	return &Tracker{
		client:    client,
		orgs:      orgs,
		idleTTL:   idleTTL,
		now:       time.Now,
		reporters: make(map[string]*trackedReporter),
	}
}

// Reporter returns the session's reporter, creating it on first use.
func (t *Tracker) Reporter(sessionID string) *Reporter {
	t.mu.Lock()
	defer t.mu.Unlock()

	tr, ok := t.reporters[sessionID]
	if !ok {
		tr = &trackedReporter{reporter: NewReporter(t.client, sessionID)}
		t.reporters[sessionID] = tr
	}
	tr.lastSeen = t.now()
	return tr.reporter
}

// Reset drops the session's reporter. Called on sign-out.
func (t *Tracker) Reset(sessionID string) {
	t.mu.Lock()
	tr, ok := t.reporters[sessionID]
	delete(t.reporters, sessionID)
	t.mu.Unlock()

	if ok {
		tr.reporter.Reset()
	}
}

// Prune drops reporters not seen within the idle TTL and returns how many
// were removed.
func (t *Tracker) Prune() int {
	if t.idleTTL <= 0 {
		return 0
	}

	cutoff := t.now().Add(-t.idleTTL)

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, tr := range t.reporters {
		if tr.lastSeen.Before(cutoff) {
			delete(t.reporters, id)
			removed++
		}
	}
	return removed
}

// Run prunes idle reporters every interval until ctx is done.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := t.Prune(); n > 0 {
				log.Debug().Int("removed", n).Msg("Pruned idle analytics sessions")
			}
		case <-ctx.Done():
			return
		}
	}
}

// Sessions returns the number of tracked sessions.
func (t *Tracker) Sessions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.reporters)
}

// Middleware reports identity, organization and a page view for each
// navigation by a signed-in user. It reads the principal attached by the
// session middleware and passes every request through unchanged.
func (t *Tracker) Middleware(next http.Handler) http.Handler {
	if t.client == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p := auth.PrincipalFromContext(r.Context()); p != nil && r.Method == http.MethodGet {
			t.observe(r, p)
		}
		next.ServeHTTP(w, r)
	})
}

func (t *Tracker) observe(r *http.Request, p *auth.Principal) {
	rep := t.Reporter(p.SessionID.String())

	rep.IdentityChanged(&models.User{ID: p.UserID, Email: p.Email, Name: p.Name})

	switch {
	case !p.HasActiveOrg():
		rep.OrganizationChanged(nil)
	case p.OrgID != rep.OrganizationID():
		org, err := t.orgs.Get(r.Context(), p.OrgID)
		if err != nil {
			log.Debug().Err(err).Str("org_id", p.OrgID).Msg("Failed to load organization for analytics")
			break
		}
		rep.OrganizationChanged(org)
	}

	rep.PageView(requestURL(r))
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
