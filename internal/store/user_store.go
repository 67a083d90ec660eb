package store

import (
	"context"
	"errors"

	"github.com/mlop-ai/pluto/internal/models"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
)

// UserStore persists user accounts.
type UserStore interface {
	// Create creates a new user. Returns ErrUserAlreadyExists on a duplicate ID or email.
	Create(ctx context.Context, user *models.User) error

	// Get retrieves a user by ID. Returns ErrUserNotFound if missing.
	Get(ctx context.Context, userID string) (*models.User, error)

	// GetByEmail retrieves a user by email. Returns ErrUserNotFound if missing.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}
