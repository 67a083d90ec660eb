package models

import (
	"encoding/json"
	"time"
)

// DashboardView is a saved, named visual configuration over a project's runs.
type DashboardView struct {
	ID          int64
	OrgID       string
	ProjectID   int64
	Name        string
	IsDefault   bool
	Config      json.RawMessage // validated against the view config schema before storing
	CreatedByID string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
