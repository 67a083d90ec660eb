// Package resolver turns the identifiers callers use in URLs and requests
// (organization, project name, encoded run id) into internal row ids.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/mlop-ai/pluto/internal/runid"
	"github.com/mlop-ai/pluto/internal/store"
)

// Resolver maps external identifiers to internal ids with a single store
// lookup per call. Anything not visible to the organization is NotFound.
type Resolver struct {
	runs store.RunStore
}

// New creates a resolver over the run store.
func New(runs store.RunStore) *Resolver {
	return &Resolver{runs: runs}
}

// ResolveRun decodes encodedRunID and returns the internal run id if the run
// belongs to projectName within orgID.
//
// Returns runid.ErrInvalidIdentifier for malformed ids and store.ErrRunNotFound
// when the run does not exist or belongs to another organization or project.
func (r *Resolver) ResolveRun(ctx context.Context, orgID, projectName, encodedRunID string) (int64, error) {
	id, err := runid.Decode(encodedRunID)
	if err != nil {
		return 0, err
	}

	run, err := r.runs.ResolveRun(ctx, orgID, projectName, id)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			return 0, store.ErrRunNotFound
		}
		return 0, fmt.Errorf("failed to resolve run: %w", err)
	}

	return run.ID, nil
}

// ResolveProject returns the internal id of projectName within orgID.
func (r *Resolver) ResolveProject(ctx context.Context, orgID, projectName string) (int64, error) {
	project, err := r.runs.GetProjectByName(ctx, orgID, projectName)
	if err != nil {
		if errors.Is(err, store.ErrProjectNotFound) {
			return 0, store.ErrProjectNotFound
		}
		return 0, fmt.Errorf("failed to resolve project: %w", err)
	}

	return project.ID, nil
}
