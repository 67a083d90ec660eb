package store

import (
	"context"
	"errors"

	"github.com/mlop-ai/pluto/internal/models"
)

var (
	ErrProjectNotFound      = errors.New("project not found")
	ErrProjectAlreadyExists = errors.New("project already exists")
	ErrRunNotFound          = errors.New("run not found")
)

// RunStore provides project and run lookups. Every lookup is scoped to an organization.
type RunStore interface {
	// CreateProject creates a project and assigns its ID.
	// Returns ErrProjectAlreadyExists if the organization already has a project with that name.
	CreateProject(ctx context.Context, project *models.Project) error

	// GetProjectByName looks a project up by name within an organization.
	// Returns ErrProjectNotFound if missing.
	GetProjectByName(ctx context.Context, orgID, name string) (*models.Project, error)

	// CreateRun creates a run and assigns its ID.
	// Returns ErrProjectNotFound if the project does not belong to the run's organization.
	CreateRun(ctx context.Context, run *models.Run) error

	// ResolveRun returns the run with the given key if, and only if, it belongs
	// to the named project of the given organization. This is a single lookup.
	// Returns ErrRunNotFound otherwise.
	ResolveRun(ctx context.Context, orgID, projectName string, runID int64) (*models.Run, error)
}
