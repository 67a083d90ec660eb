package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/mlop-ai/pluto/internal/models"
	"github.com/mlop-ai/pluto/internal/store"
)

var _ store.RunTriggerStore = (*RunTriggerStore)(nil)

// RunTriggerStore implements store.RunTriggerStore using in-memory storage.
type RunTriggerStore struct {
	mu sync.RWMutex

	nextID   int64
	triggers []*models.RunTrigger
}

// NewRunTriggerStore creates a new in-memory run trigger store.
func NewRunTriggerStore() *RunTriggerStore {
	return &RunTriggerStore{}
}

// Create appends a trigger.
func (s *RunTriggerStore) Create(ctx context.Context, trigger *models.RunTrigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	trigger.ID = s.nextID
	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = time.Now()
	}

	clone := *trigger
	clone.Context = maps.Clone(trigger.Context)
	s.triggers = append(s.triggers, &clone)

	return nil
}

// ListByRun returns a run's triggers, newest first.
func (s *RunTriggerStore) ListByRun(ctx context.Context, orgID string, runID int64) ([]*models.RunTrigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.RunTrigger
	for _, t := range s.triggers {
		if t.OrgID == orgID && t.RunID == runID {
			clone := *t
			clone.Context = maps.Clone(t.Context)
			result = append(result, &clone)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	return result, nil
}
