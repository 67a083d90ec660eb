package models

import "time"

// Trigger types accepted for run triggers.
const (
	TriggerTypeWebhook  = "webhook"
	TriggerTypeAlert    = "alert"
	TriggerTypeManual   = "manual"
	TriggerTypeSchedule = "schedule"
)

// RunTrigger records that something fired against a run. Append-only.
type RunTrigger struct {
	ID          int64
	OrgID       string
	RunID       int64
	TriggerType string
	Context     map[string]string // originating context, e.g. alert name or webhook url
	CreatedByID string
	CreatedAt   time.Time
}
