package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mlop-ai/pluto/internal/models"
	"github.com/mlop-ai/pluto/internal/store"
)

// DashboardViewStore implements store.DashboardViewStore using in-memory storage.
type DashboardViewStore struct {
	mu sync.RWMutex

	nextID int64
	views  map[int64]*models.DashboardView
}

// NewDashboardViewStore creates a new in-memory dashboard view store.
func NewDashboardViewStore() *DashboardViewStore {
	return &DashboardViewStore{
		views: make(map[int64]*models.DashboardView),
	}
}

// Create stores a view, clearing any previous default of the same project.
func (s *DashboardViewStore) Create(ctx context.Context, view *models.DashboardView) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.views {
		if v.OrgID == view.OrgID && v.ProjectID == view.ProjectID && v.Name == view.Name {
			return store.ErrViewAlreadyExists
		}
	}

	if view.IsDefault {
		s.clearDefaultLocked(view.OrgID, view.ProjectID, 0)
	}

	s.nextID++
	now := time.Now()
	view.ID = s.nextID
	view.CreatedAt = now
	view.UpdatedAt = now

	s.views[view.ID] = cloneView(view)

	return nil
}

// Get returns a view by ID within an organization.
func (s *DashboardViewStore) Get(ctx context.Context, orgID string, viewID int64) (*models.DashboardView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	view, exists := s.views[viewID]
	if !exists || view.OrgID != orgID {
		return nil, store.ErrViewNotFound
	}

	return cloneView(view), nil
}

// ListByProject returns a project's views, default first then by name.
func (s *DashboardViewStore) ListByProject(ctx context.Context, orgID string, projectID int64) ([]*models.DashboardView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.DashboardView
	for _, v := range s.views {
		if v.OrgID == orgID && v.ProjectID == projectID {
			result = append(result, cloneView(v))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].IsDefault != result[j].IsDefault {
			return result[i].IsDefault
		}
		return strings.Compare(result[i].Name, result[j].Name) < 0
	})

	return result, nil
}

// Update overwrites name, default flag and config of an existing view.
func (s *DashboardViewStore) Update(ctx context.Context, view *models.DashboardView) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.views[view.ID]
	if !exists || existing.OrgID != view.OrgID {
		return store.ErrViewNotFound
	}

	for _, v := range s.views {
		if v.ID != view.ID && v.OrgID == existing.OrgID && v.ProjectID == existing.ProjectID && v.Name == view.Name {
			return store.ErrViewAlreadyExists
		}
	}

	if view.IsDefault {
		s.clearDefaultLocked(existing.OrgID, existing.ProjectID, view.ID)
	}

	existing.Name = view.Name
	existing.IsDefault = view.IsDefault
	existing.Config = slices.Clone(view.Config)
	existing.UpdatedAt = time.Now()

	view.ProjectID = existing.ProjectID
	view.CreatedByID = existing.CreatedByID
	view.CreatedAt = existing.CreatedAt
	view.UpdatedAt = existing.UpdatedAt

	return nil
}

// Delete removes a view.
func (s *DashboardViewStore) Delete(ctx context.Context, orgID string, viewID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	view, exists := s.views[viewID]
	if !exists || view.OrgID != orgID {
		return store.ErrViewNotFound
	}

	delete(s.views, viewID)
	return nil
}

func (s *DashboardViewStore) clearDefaultLocked(orgID string, projectID, keepID int64) {
	for _, v := range s.views {
		if v.IsDefault && v.OrgID == orgID && v.ProjectID == projectID && v.ID != keepID {
			v.IsDefault = false
			v.UpdatedAt = time.Now()
		}
	}
}

func cloneView(v *models.DashboardView) *models.DashboardView {
	clone := *v
	clone.Config = slices.Clone(v.Config)
	return &clone
}
