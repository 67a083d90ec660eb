package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mlop-ai/pluto/internal/models"
	"github.com/mlop-ai/pluto/internal/store"
)

type projectKey struct {
	orgID string
	name  string
}

// RunStore implements store.RunStore using in-memory storage.
type RunStore struct {
	mu sync.RWMutex

	nextProjectID int64
	nextRunID     int64

	projects       map[int64]*models.Project
	projectsByName map[projectKey]int64
	runs           map[int64]*models.Run

	lookups int // ResolveRun calls, for tests asserting single-lookup resolution
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{
		projects:       make(map[int64]*models.Project),
		projectsByName: make(map[projectKey]int64),
		runs:           make(map[int64]*models.Run),
	}
}

// CreateProject creates a project and assigns its ID.
func (s *RunStore) CreateProject(ctx context.Context, project *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := projectKey{orgID: project.OrgID, name: project.Name}
	if _, exists := s.projectsByName[key]; exists {
		return store.ErrProjectAlreadyExists
	}

	s.nextProjectID++
	project.ID = s.nextProjectID
	if project.CreatedAt.IsZero() {
		project.CreatedAt = time.Now()
	}

	clone := *project
	s.projects[project.ID] = &clone
	s.projectsByName[key] = project.ID

	return nil
}

// GetProjectByName looks a project up by name within an organization.
func (s *RunStore) GetProjectByName(ctx context.Context, orgID, name string) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.projectsByName[projectKey{orgID: orgID, name: name}]
	if !exists {
		return nil, store.ErrProjectNotFound
	}

	clone := *s.projects[id]
	return &clone, nil
}

// CreateRun creates a run and assigns its ID.
func (s *RunStore) CreateRun(ctx context.Context, run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	project, exists := s.projects[run.ProjectID]
	if !exists || project.OrgID != run.OrgID {
		return store.ErrProjectNotFound
	}

	s.nextRunID++
	run.ID = s.nextRunID
	run.ProjectName = project.Name
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	clone := *run
	s.runs[run.ID] = &clone

	return nil
}

// ResolveRun returns the run only if it belongs to the organization's named project.
func (s *RunStore) ResolveRun(ctx context.Context, orgID, projectName string, runID int64) (*models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lookups++

	run, exists := s.runs[runID]
	if !exists || run.OrgID != orgID || run.ProjectName != projectName {
		return nil, store.ErrRunNotFound
	}

	clone := *run
	return &clone, nil
}

// Lookups returns the number of ResolveRun calls served.
func (s *RunStore) Lookups() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookups
}
