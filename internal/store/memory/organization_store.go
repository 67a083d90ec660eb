package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mlop-ai/pluto/internal/models"
	"github.com/mlop-ai/pluto/internal/store"
)

// OrganizationStore implements store.OrganizationStore using in-memory storage.
// This implementation is for testing and demo mode - data is lost on restart.
type OrganizationStore struct {
	mu sync.RWMutex

	organizations map[string]*models.Organization     // org_id -> Organization
	slugs         map[string]string                   // slug -> org_id
	members       map[string]map[string]*models.Member // org_id -> user_id -> Member
}

// NewOrganizationStore creates a new in-memory organization store.
func NewOrganizationStore() *OrganizationStore {
	return &OrganizationStore{
		organizations: make(map[string]*models.Organization),
		slugs:         make(map[string]string),
		members:       make(map[string]map[string]*models.Member),
	}
}

// Create creates a new organization in memory.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.organizations[org.ID]; exists {
		return store.ErrOrganizationAlreadyExists
	}
	if _, exists := s.slugs[org.Slug]; exists {
		return store.ErrOrganizationAlreadyExists
	}

	// Clone to avoid external modifications
	clone := *org
	s.organizations[org.ID] = &clone
	s.slugs[org.Slug] = org.ID

	return nil
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID string) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, exists := s.organizations[orgID]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	clone := *org
	return &clone, nil
}

// GetBySlug retrieves an organization by slug.
func (s *OrganizationStore) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orgID, exists := s.slugs[slug]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	clone := *s.organizations[orgID]
	return &clone, nil
}

// ListForUser returns the organizations a user belongs to, ordered by name.
func (s *OrganizationStore) ListForUser(ctx context.Context, userID string) ([]*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Membership
	for orgID, members := range s.members {
		member, ok := members[userID]
		if !ok {
			continue
		}
		org, ok := s.organizations[orgID]
		if !ok {
			continue
		}
		result = append(result, &models.Membership{
			Organization: *org,
			Role:         member.Role,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Organization.Name < result[j].Organization.Name
	})

	return result, nil
}

// AddMember adds or replaces a membership.
func (s *OrganizationStore) AddMember(ctx context.Context, member *models.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.organizations[member.OrgID]; !exists {
		return store.ErrOrganizationNotFound
	}

	if s.members[member.OrgID] == nil {
		s.members[member.OrgID] = make(map[string]*models.Member)
	}

	clone := *member
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	s.members[member.OrgID][member.UserID] = &clone

	return nil
}

// GetMember returns a user's membership in an organization.
func (s *OrganizationStore) GetMember(ctx context.Context, orgID, userID string) (*models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	member, ok := s.members[orgID][userID]
	if !ok {
		return nil, store.ErrMemberNotFound
	}

	clone := *member
	return &clone, nil
}
