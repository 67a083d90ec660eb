package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mlop-ai/pluto/internal/models"
	"github.com/mlop-ai/pluto/internal/store"
	"github.com/rs/zerolog/log"
)

var _ store.RunStore = (*RunStore)(nil)

// RunStore implements store.RunStore using PostgreSQL.
type RunStore struct {
	pool *pgxpool.Pool
}

// NewRunStore creates a new PostgreSQL-backed run store.
func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{pool: pool}
}

// CreateProject inserts a project and sets its generated ID.
func (s *RunStore) CreateProject(ctx context.Context, project *models.Project) error {
	if project.CreatedAt.IsZero() {
		project.CreatedAt = time.Now()
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO projects (org_id, name, created_at)
		VALUES ($1, $2, $3)
		RETURNING project_id
	`, project.OrgID, project.Name, project.CreatedAt).Scan(&project.ID)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("org_id", project.OrgID).
		Int64("project_id", project.ID).
		Str("name", project.Name).
		Msg("Created project")

	return nil
}

// GetProjectByName looks a project up by name within an organization.
func (s *RunStore) GetProjectByName(ctx context.Context, orgID, name string) (*models.Project, error) {
	var p models.Project
	err := s.pool.QueryRow(ctx, `
		SELECT project_id, org_id, name, created_at
		FROM projects
		WHERE org_id = $1 AND name = $2
	`, orgID, name).Scan(&p.ID, &p.OrgID, &p.Name, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", mapPostgresError(err))
	}

	return &p, nil
}

// CreateRun inserts a run into an existing project of the same organization.
func (s *RunStore) CreateRun(ctx context.Context, run *models.Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = "RUNNING"
	}

	// the project must belong to the run's organization
	err := s.pool.QueryRow(ctx, `
		INSERT INTO runs (org_id, project_id, name, status, created_by_id, created_at)
		SELECT p.org_id, p.project_id, $3, $4, $5, $6
		FROM projects p
		WHERE p.org_id = $1 AND p.project_id = $2
		RETURNING run_id, (SELECT name FROM projects WHERE project_id = $2)
	`, run.OrgID, run.ProjectID, run.Name, run.Status, run.CreatedByID, run.CreatedAt).Scan(&run.ID, &run.ProjectName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrProjectNotFound
		}
		return fmt.Errorf("failed to create run: %w", mapPostgresError(err))
	}

	return nil
}

// ResolveRun joins run and project in a single query scoped to the organization.
func (s *RunStore) ResolveRun(ctx context.Context, orgID, projectName string, runID int64) (*models.Run, error) {
	var r models.Run
	err := s.pool.QueryRow(ctx, `
		SELECT r.run_id, r.org_id, r.project_id, p.name, r.name, r.status, r.created_by_id, r.created_at
		FROM runs r
		JOIN projects p ON p.project_id = r.project_id AND p.org_id = r.org_id
		WHERE r.run_id = $1 AND r.org_id = $2 AND p.name = $3
	`, runID, orgID, projectName).Scan(
		&r.ID,
		&r.OrgID,
		&r.ProjectID,
		&r.ProjectName,
		&r.Name,
		&r.Status,
		&r.CreatedByID,
		&r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to resolve run: %w", mapPostgresError(err))
	}

	return &r, nil
}
