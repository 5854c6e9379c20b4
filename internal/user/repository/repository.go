package repository

import (
	"context"
	"errors"

	"siteguard/backend/internal/user/domain"
)

var (
	// ErrConstraintViolation is returned when a write breaks a database
	// constraint, most notably the unique index on external_id when two
	// first logins for the same identity race.
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrNotFound is returned by updates that target a user that does not exist.
	ErrNotFound = errors.New("user not found")
)

// Repository defines persistence for users.
type Repository interface {
	// GetByID returns the user for the internal id, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// GetByExternalID returns the user for the provider-issued id, or nil if not found.
	GetByExternalID(ctx context.Context, externalID string) (*domain.User, error)
	// Create persists a new user. The caller assigns ID. A duplicate
	// external_id fails with ErrConstraintViolation.
	Create(ctx context.Context, u *domain.User) error
	// UpdateProfile refreshes email, name, organization, and last_login for
	// the user with the given external_id. Role is never touched here.
	UpdateProfile(ctx context.Context, u *domain.User) error
	// UpdateRole sets the role for the user with the given internal id.
	// Fails with ErrNotFound if no such user exists.
	UpdateRole(ctx context.Context, id string, role domain.Role) error
}
