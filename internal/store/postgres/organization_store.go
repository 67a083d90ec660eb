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

var _ store.OrganizationStore = (*OrganizationStore)(nil)

// OrganizationStore implements store.OrganizationStore using PostgreSQL.
type OrganizationStore struct {
	pool *pgxpool.Pool
}

// NewOrganizationStore creates a new PostgreSQL-backed organization store.
// It shares the connection pool with other stores.
func NewOrganizationStore(pool *pgxpool.Pool) *OrganizationStore {
	return &OrganizationStore{
		pool: pool,
	}
}

// Create creates a new organization in the database.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	now := time.Now()
	if org.CreatedAt.IsZero() {
		org.CreatedAt = now
	}
	if org.UpdatedAt.IsZero() {
		org.UpdatedAt = now
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO organizations (org_id, name, slug, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, org.ID, org.Name, org.Slug, org.CreatedAt, org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("org_id", org.ID).
		Str("slug", org.Slug).
		Msg("Created organization")

	return nil
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID string) (*models.Organization, error) {
	return s.getOne(ctx, `
		SELECT org_id, name, slug, created_at, updated_at
		FROM organizations
		WHERE org_id = $1
	`, orgID)
}

// GetBySlug retrieves an organization by slug.
func (s *OrganizationStore) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	return s.getOne(ctx, `
		SELECT org_id, name, slug, created_at, updated_at
		FROM organizations
		WHERE slug = $1
	`, slug)
}

func (s *OrganizationStore) getOne(ctx context.Context, query string, arg string) (*models.Organization, error) {
	var org models.Organization
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&org.ID,
		&org.Name,
		&org.Slug,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", mapPostgresError(err))
	}

	return &org, nil
}

// ListForUser returns the organizations a user belongs to, ordered by name.
func (s *OrganizationStore) ListForUser(ctx context.Context, userID string) ([]*models.Membership, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT o.org_id, o.name, o.slug, o.created_at, o.updated_at, m.role
		FROM members m
		JOIN organizations o ON o.org_id = m.org_id
		WHERE m.user_id = $1
		ORDER BY o.name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var memberships []*models.Membership
	for rows.Next() {
		var m models.Membership
		err := rows.Scan(
			&m.Organization.ID,
			&m.Organization.Name,
			&m.Organization.Slug,
			&m.Organization.CreatedAt,
			&m.Organization.UpdatedAt,
			&m.Role,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memberships: %w", err)
	}

	return memberships, nil
}

// AddMember adds a membership, replacing the role of an existing one.
func (s *OrganizationStore) AddMember(ctx context.Context, member *models.Member) error {
	if member.CreatedAt.IsZero() {
		member.CreatedAt = time.Now()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO members (org_id, user_id, role, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (org_id, user_id) DO UPDATE SET role = EXCLUDED.role
	`, member.OrgID, member.UserID, string(member.Role), member.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("org_id", member.OrgID).
		Str("user_id", member.UserID).
		Str("role", string(member.Role)).
		Msg("Added organization member")

	return nil
}

// GetMember returns a user's membership in an organization.
func (s *OrganizationStore) GetMember(ctx context.Context, orgID, userID string) (*models.Member, error) {
	var m models.Member
	err := s.pool.QueryRow(ctx, `
		SELECT org_id, user_id, role, created_at
		FROM members
		WHERE org_id = $1 AND user_id = $2
	`, orgID, userID).Scan(&m.OrgID, &m.UserID, &m.Role, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to get member: %w", mapPostgresError(err))
	}

	return &m, nil
}
