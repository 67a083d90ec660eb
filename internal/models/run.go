package models

import "time"

// Project groups runs within an organization. Names are unique per organization.
type Project struct {
	ID        int64
	OrgID     string
	Name      string
	CreatedAt time.Time
}

// Run is a recorded experiment. Runs are immutable once created; triggers and
// annotations live in side tables.
type Run struct {
	ID          int64
	OrgID       string
	ProjectID   int64
	ProjectName string
	Name        string
	Status      string
	CreatedByID string
	CreatedAt   time.Time
}
