package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mlop-ai/pluto/internal/store"
)

// mapPostgresError maps PostgreSQL-specific errors to sentinel errors.
// Returns the original error if it's not a PostgreSQL error or doesn't match known patterns.
func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		switch pgErr.ConstraintName {
		case "organizations_slug_key", "organizations_pkey":
			return store.ErrOrganizationAlreadyExists
		case "users_pkey", "idx_users_email", "users_github_id_key":
			return store.ErrUserAlreadyExists
		case "projects_org_id_name_key":
			return store.ErrProjectAlreadyExists
		case "dashboard_views_org_id_project_id_name_key":
			return store.ErrViewAlreadyExists
		case "idx_dashboard_views_default":
			return store.ErrViewConflict
		}
		return fmt.Errorf("unique constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.ForeignKeyViolation:
		switch pgErr.ConstraintName {
		case "members_org_id_fkey", "sessions_active_org_id_fkey":
			return fmt.Errorf("%w: %s", store.ErrOrganizationNotFound, pgErr.Detail)
		case "members_user_id_fkey", "sessions_user_id_fkey":
			return fmt.Errorf("%w: %s", store.ErrUserNotFound, pgErr.Detail)
		case "runs_project_id_fkey", "dashboard_views_project_id_fkey":
			return fmt.Errorf("%w: %s", store.ErrProjectNotFound, pgErr.Detail)
		case "run_triggers_run_id_fkey":
			return fmt.Errorf("%w: %s", store.ErrRunNotFound, pgErr.Detail)
		}
		return fmt.Errorf("foreign key violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.CheckViolation:
		return fmt.Errorf("check constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		return fmt.Errorf("transaction conflict (retryable): %w", err)

	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.SQLClientUnableToEstablishSQLConnection,
		pgerrcode.AdminShutdown,
		pgerrcode.CrashShutdown:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)

	case pgerrcode.QueryCanceled:
		return fmt.Errorf("query canceled: %w", err)

	case pgerrcode.InsufficientResources,
		pgerrcode.DiskFull,
		pgerrcode.OutOfMemory,
		pgerrcode.TooManyConnections:
		return fmt.Errorf("database resource limit: %w", err)

	default:
		return fmt.Errorf("postgres error [%s]: %s (detail: %s, hint: %s): %w",
			pgErr.Code, pgErr.Message, pgErr.Detail, pgErr.Hint, err)
	}
}

// ErrUnavailable marks errors caused by the database being unreachable.
var ErrUnavailable = store.ErrUnavailable
