package server

import (
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"
	"github.com/mlop-ai/pluto/internal/auth"
	"github.com/mlop-ai/pluto/internal/cache"
	"github.com/mlop-ai/pluto/internal/clickhouse"
	"github.com/mlop-ai/pluto/internal/runid"
	"github.com/mlop-ai/pluto/internal/store"
	"github.com/rs/zerolog/log"
)

// ValidationError reports malformed input on one request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

var notFoundErrors = []error{
	store.ErrRunNotFound,
	store.ErrProjectNotFound,
	store.ErrViewNotFound,
	store.ErrOrganizationNotFound,
	store.ErrMemberNotFound,
	store.ErrUserNotFound,
	store.ErrSessionNotFound,
}

var alreadyExistsErrors = []error{
	store.ErrViewAlreadyExists,
	store.ErrProjectAlreadyExists,
	store.ErrOrganizationAlreadyExists,
	store.ErrUserAlreadyExists,
}

// toConnectError maps domain errors to connect codes. It is the only place
// that decides which code a failure surfaces as.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}

	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return connectErr
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return connect.NewError(connect.CodeInvalidArgument, validationErr)
	}

	switch {
	case errors.Is(err, runid.ErrInvalidIdentifier):
		return connect.NewError(connect.CodeInvalidArgument, invalid("runId", "invalid identifier"))
	case errors.Is(err, cache.ErrInvalidParams):
		return connect.NewError(connect.CodeInternal, errors.New("internal error"))
	case errors.Is(err, auth.ErrUnauthenticated):
		return connect.NewError(connect.CodeUnauthenticated, errors.New("authentication required"))
	case errors.Is(err, auth.ErrForbidden):
		return connect.NewError(connect.CodePermissionDenied, errors.New("permission denied"))
	case errors.Is(err, clickhouse.ErrUnavailable), errors.Is(err, store.ErrUnavailable):
		return connect.NewError(connect.CodeUnavailable, errors.New("upstream unavailable"))
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	}

	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return connect.NewError(connect.CodeNotFound, target)
		}
	}
	if errors.Is(err, store.ErrViewConflict) {
		return connect.NewError(connect.CodeAborted, store.ErrViewConflict)
	}
	for _, target := range alreadyExistsErrors {
		if errors.Is(err, target) {
			return connect.NewError(connect.CodeAlreadyExists, target)
		}
	}

	log.Error().Err(err).Msg("Unhandled procedure error")
	return connect.NewError(connect.CodeInternal, fmt.Errorf("internal error"))
}
