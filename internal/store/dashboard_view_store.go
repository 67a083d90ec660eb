package store

import (
	"context"
	"errors"

	"github.com/mlop-ai/pluto/internal/models"
)

var (
	ErrViewNotFound      = errors.New("dashboard view not found")
	ErrViewAlreadyExists = errors.New("dashboard view already exists")
	ErrViewConflict      = errors.New("dashboard view default changed concurrently")
)

// DashboardViewStore persists dashboard views. All operations are organization scoped:
// a view ID belonging to another organization behaves as if it does not exist.
type DashboardViewStore interface {
	// Create stores a view and assigns its ID and timestamps. When the view is the
	// default, any previous default of the same project is cleared in the same write.
	// Returns ErrViewAlreadyExists if the project already has a view with that name.
	Create(ctx context.Context, view *models.DashboardView) error

	// Get returns a view by ID within an organization.
	Get(ctx context.Context, orgID string, viewID int64) (*models.DashboardView, error)

	// ListByProject returns a project's views, default first then by name.
	ListByProject(ctx context.Context, orgID string, projectID int64) ([]*models.DashboardView, error)

	// Update overwrites name, default flag and config of an existing view.
	Update(ctx context.Context, view *models.DashboardView) error

	// Delete removes a view. Returns ErrViewNotFound if no row was removed.
	Delete(ctx context.Context, orgID string, viewID int64) error
}
