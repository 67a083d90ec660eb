package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mlop-ai/pluto/internal/models"
	"github.com/mlop-ai/pluto/internal/store"
	"github.com/rs/zerolog/log"
)

var _ store.DashboardViewStore = (*DashboardViewStore)(nil)

const viewColumns = `view_id, org_id, project_id, name, is_default, config, created_by_id, created_at, updated_at`

// DashboardViewStore implements store.DashboardViewStore using PostgreSQL.
type DashboardViewStore struct {
	pool *pgxpool.Pool
}

// NewDashboardViewStore creates a new PostgreSQL-backed dashboard view store.
func NewDashboardViewStore(pool *pgxpool.Pool) *DashboardViewStore {
	return &DashboardViewStore{pool: pool}
}

// Create inserts a view. When it is the default, the previous default of the
// project is cleared in the same transaction.
func (s *DashboardViewStore) Create(ctx context.Context, view *models.DashboardView) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if view.IsDefault {
			if err := clearDefault(ctx, tx, view.OrgID, view.ProjectID, 0); err != nil {
				return err
			}
		}

		err := tx.QueryRow(ctx, `
			INSERT INTO dashboard_views (org_id, project_id, name, is_default, config, created_by_id)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING view_id, created_at, updated_at
		`, view.OrgID, view.ProjectID, view.Name, view.IsDefault, []byte(view.Config), view.CreatedByID).
			Scan(&view.ID, &view.CreatedAt, &view.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create dashboard view: %w", mapPostgresError(err))
		}

		log.Debug().
			Str("org_id", view.OrgID).
			Int64("view_id", view.ID).
			Bool("is_default", view.IsDefault).
			Msg("Created dashboard view")

		return nil
	})
}

// Get returns a view by ID within an organization.
func (s *DashboardViewStore) Get(ctx context.Context, orgID string, viewID int64) (*models.DashboardView, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+viewColumns+` FROM dashboard_views WHERE view_id = $1 AND org_id = $2`, viewID, orgID)

	view, err := scanView(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrViewNotFound
		}
		return nil, fmt.Errorf("failed to get dashboard view: %w", mapPostgresError(err))
	}

	return view, nil
}

// ListByProject returns a project's views, default first then by name.
func (s *DashboardViewStore) ListByProject(ctx context.Context, orgID string, projectID int64) ([]*models.DashboardView, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+viewColumns+`
		FROM dashboard_views
		WHERE org_id = $1 AND project_id = $2
		ORDER BY is_default DESC, name
	`, orgID, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dashboard views: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var views []*models.DashboardView
	for rows.Next() {
		view, err := scanView(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dashboard view: %w", err)
		}
		views = append(views, view)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dashboard views: %w", err)
	}

	return views, nil
}

// Update overwrites name, default flag and config of an existing view.
func (s *DashboardViewStore) Update(ctx context.Context, view *models.DashboardView) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var projectID int64
		err := tx.QueryRow(ctx,
			`SELECT project_id FROM dashboard_views WHERE view_id = $1 AND org_id = $2 FOR UPDATE`,
			view.ID, view.OrgID,
		).Scan(&projectID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ErrViewNotFound
			}
			return fmt.Errorf("failed to lock dashboard view: %w", mapPostgresError(err))
		}

		if view.IsDefault {
			if err := clearDefault(ctx, tx, view.OrgID, projectID, view.ID); err != nil {
				return err
			}
		}

		row := tx.QueryRow(ctx, `
			UPDATE dashboard_views
			SET name = $3, is_default = $4, config = $5, updated_at = NOW()
			WHERE view_id = $1 AND org_id = $2
			RETURNING `+viewColumns,
			view.ID, view.OrgID, view.Name, view.IsDefault, []byte(view.Config),
		)

		updated, err := scanView(row)
		if err != nil {
			return fmt.Errorf("failed to update dashboard view: %w", mapPostgresError(err))
		}

		*view = *updated
		return nil
	})
}

// Delete removes a view.
func (s *DashboardViewStore) Delete(ctx context.Context, orgID string, viewID int64) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM dashboard_views WHERE view_id = $1 AND org_id = $2`, viewID, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete dashboard view: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrViewNotFound
	}

	log.Debug().Str("org_id", orgID).Int64("view_id", viewID).Msg("Deleted dashboard view")

	return nil
}

// clearDefault locks the project row so concurrent default changes on the same
// project serialize, then clears every default except keepID.
func clearDefault(ctx context.Context, tx pgx.Tx, orgID string, projectID, keepID int64) error {
	var locked int64
	err := tx.QueryRow(ctx,
		`SELECT project_id FROM projects WHERE project_id = $1 AND org_id = $2 FOR UPDATE`,
		projectID, orgID,
	).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrProjectNotFound
		}
		return fmt.Errorf("failed to lock project: %w", mapPostgresError(err))
	}

	_, err = tx.Exec(ctx, `
		UPDATE dashboard_views
		SET is_default = FALSE, updated_at = NOW()
		WHERE org_id = $1 AND project_id = $2 AND is_default AND view_id <> $3
	`, orgID, projectID, keepID)
	if err != nil {
		return fmt.Errorf("failed to clear default dashboard view: %w", mapPostgresError(err))
	}
	return nil
}

func scanView(row pgx.Row) (*models.DashboardView, error) {
	var v models.DashboardView
	var config []byte
	err := row.Scan(
		&v.ID,
		&v.OrgID,
		&v.ProjectID,
		&v.Name,
		&v.IsDefault,
		&config,
		&v.CreatedByID,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	v.Config = config
	return &v, nil
}
