package store

import (
	"context"

	"github.com/mlop-ai/pluto/internal/models"
)

// RunTriggerStore persists run triggers. Triggers are append-only.
type RunTriggerStore interface {
	// Create stores a trigger and assigns its ID and creation time.
	Create(ctx context.Context, trigger *models.RunTrigger) error

	// ListByRun returns a run's triggers, newest first.
	ListByRun(ctx context.Context, orgID string, runID int64) ([]*models.RunTrigger, error)
}
