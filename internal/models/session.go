package models

import (
	"time"

	"github.com/google/uuid"
)

// Session represents a user's authenticated session.
// The session ID is carried in a signed cookie, while all session data lives server-side.
type Session struct {
	SessionID uuid.UUID // UUIDv7
	UserID    string

	// ActiveOrgID is the organization currently selected by the user.
	// Empty when the user has not picked one yet.
	ActiveOrgID string

	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastUsedAt time.Time

	// Optional audit metadata
	UserAgent string
	IPAddress string
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}
