package store

import (
	"context"
	"errors"

	"github.com/mlop-ai/pluto/internal/models"
)

// Sentinel errors for organization store operations
var (
	ErrOrganizationNotFound      = errors.New("organization not found")
	ErrOrganizationAlreadyExists = errors.New("organization already exists")
	ErrMemberNotFound            = errors.New("member not found")
)

// OrganizationStore defines the interface for organization storage operations.
// Organizations are the tenant boundary; membership carries the member's role.
type OrganizationStore interface {
	// Create creates a new organization.
	// Returns ErrOrganizationAlreadyExists if the ID or slug is taken.
	Create(ctx context.Context, org *models.Organization) error

	// Get retrieves an organization by ID.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	Get(ctx context.Context, orgID string) (*models.Organization, error)

	// GetBySlug retrieves an organization by its slug.
	// Returns ErrOrganizationNotFound if no organization has that slug.
	GetBySlug(ctx context.Context, slug string) (*models.Organization, error)

	// ListForUser returns every organization the user belongs to, with the user's role.
	ListForUser(ctx context.Context, userID string) ([]*models.Membership, error)

	// AddMember adds a user to an organization, replacing any existing role.
	AddMember(ctx context.Context, member *models.Member) error

	// GetMember returns the membership of a user in an organization.
	// Returns ErrMemberNotFound if the user is not a member.
	GetMember(ctx context.Context, orgID, userID string) (*models.Member, error)
}
