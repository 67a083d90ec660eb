package analytics

import (
	"sync"

	"github.com/mlop-ai/pluto/internal/models"
	"github.com/rs/zerolog/log"
)

// Reporter emits analytics calls for one session and deduplicates identify
// and group calls against the last reported ids. A Reporter with a nil
// client emits nothing.
type Reporter struct {
	client      Client
	anonymousID string

	mu         sync.Mutex
	lastUserID string
	lastOrgID  string
}

// NewReporter creates a reporter. anonymousID is the distinct id used before
// a user has been identified.
func NewReporter(client Client, anonymousID string) *Reporter {
	return &Reporter{client: client, anonymousID: anonymousID}
}

// Enabled reports whether events are sent.
func (r *Reporter) Enabled() bool {
	return r.client != nil
}

// IdentityChanged emits identify when the user differs from the last one reported.
func (r *Reporter) IdentityChanged(user *models.User) {
	if !r.Enabled() || user == nil || user.ID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if user.ID == r.lastUserID {
		return
	}

	err := r.client.Identify(user.ID, Properties{"email": user.Email, "name": user.Name})
	if err != nil {
		log.Debug().Err(err).Str("user_id", user.ID).Msg("Failed to report identify")
		return
	}
	r.lastUserID = user.ID
}

// OrganizationChanged emits a group association when the active organization
// differs from the last one reported. A nil organization clears the tracked
// id without emitting anything.
func (r *Reporter) OrganizationChanged(org *models.Organization) {
	if !r.Enabled() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if org == nil {
		r.lastOrgID = ""
		return
	}
	if org.ID == r.lastOrgID {
		return
	}

	err := r.client.Group(r.distinctIDLocked(), GroupTypeOrganization, org.ID, Properties{"name": org.Name, "slug": org.Slug})
	if err != nil {
		log.Debug().Err(err).Str("org_id", org.ID).Msg("Failed to report group")
		return
	}
	r.lastOrgID = org.ID
}

// OrganizationID returns the last reported organization id.
func (r *Reporter) OrganizationID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastOrgID
}

// PageView emits a page view for the URL.
func (r *Reporter) PageView(currentURL string) {
	if !r.Enabled() {
		return
	}

	r.mu.Lock()
	distinctID := r.distinctIDLocked()
	r.mu.Unlock()

	if err := r.client.Capture(distinctID, EventPageView, Properties{"$current_url": currentURL}); err != nil {
		log.Debug().Err(err).Msg("Failed to report page view")
	}
}

// Reset forgets the reported user and organization.
func (r *Reporter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastUserID = ""
	r.lastOrgID = ""
}

func (r *Reporter) distinctIDLocked() string {
	if r.lastUserID != "" {
		return r.lastUserID
	}
	return r.anonymousID
}
