package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mlop-ai/pluto/internal/models"
	"github.com/mlop-ai/pluto/internal/store"
)

var _ store.RunTriggerStore = (*RunTriggerStore)(nil)

// RunTriggerStore implements store.RunTriggerStore using PostgreSQL.
type RunTriggerStore struct {
	pool *pgxpool.Pool
}

// NewRunTriggerStore creates a new PostgreSQL-backed run trigger store.
func NewRunTriggerStore(pool *pgxpool.Pool) *RunTriggerStore {
	return &RunTriggerStore{pool: pool}
}

// Create appends a trigger.
func (s *RunTriggerStore) Create(ctx context.Context, trigger *models.RunTrigger) error {
	triggerContext := trigger.Context
	if triggerContext == nil {
		triggerContext = map[string]string{}
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO run_triggers (org_id, run_id, trigger_type, context, created_by_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING trigger_id, created_at
	`, trigger.OrgID, trigger.RunID, trigger.TriggerType, triggerContext, trigger.CreatedByID).
		Scan(&trigger.ID, &trigger.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create run trigger: %w", mapPostgresError(err))
	}

	return nil
}

// ListByRun returns a run's triggers, newest first.
func (s *RunTriggerStore) ListByRun(ctx context.Context, orgID string, runID int64) ([]*models.RunTrigger, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT trigger_id, org_id, run_id, trigger_type, context, created_by_id, created_at
		FROM run_triggers
		WHERE org_id = $1 AND run_id = $2
		ORDER BY created_at DESC, trigger_id DESC
	`, orgID, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run triggers: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var triggers []*models.RunTrigger
	for rows.Next() {
		var t models.RunTrigger
		if err := rows.Scan(&t.ID, &t.OrgID, &t.RunID, &t.TriggerType, &t.Context, &t.CreatedByID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run trigger: %w", err)
		}
		triggers = append(triggers, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run triggers: %w", err)
	}

	return triggers, nil
}
