package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mlop-ai/pluto/internal/models"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// SessionStore persists server-side session state.
type SessionStore interface {
	// Create stores a new session.
	Create(ctx context.Context, session *models.Session) error

	// Get retrieves a session by ID.
	// Returns ErrSessionNotFound if missing and ErrSessionExpired if past its expiry.
	Get(ctx context.Context, sessionID uuid.UUID) (*models.Session, error)

	// SetActiveOrganization records the organization selected in the session.
	// An empty orgID clears the selection.
	SetActiveOrganization(ctx context.Context, sessionID uuid.UUID, orgID string) error

	// UpdateLastUsed updates the last_used_at timestamp for a session.
	UpdateLastUsed(ctx context.Context, sessionID uuid.UUID) error

	// Delete deletes a session by ID (sign-out).
	Delete(ctx context.Context, sessionID uuid.UUID) error

	// DeleteExpired deletes all expired sessions and returns how many were removed.
	DeleteExpired(ctx context.Context) (int, error)
}
