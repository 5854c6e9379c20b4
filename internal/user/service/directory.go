package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"siteguard/backend/internal/user/domain"
	"siteguard/backend/internal/user/repository"
)

// Profile is the provider-asserted profile for one login, used to create or
// refresh a directory entry.
type Profile struct {
	ExternalID   string
	Email        string
	Name         string
	Organization string
}

// UserRepo is the minimal user repository needed by the directory service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	UpdateProfile(ctx context.Context, u *domain.User) error
	UpdateRole(ctx context.Context, id string, role domain.Role) error
}

// Directory manages the user directory: idempotent provisioning on login and
// explicit role assignment.
type Directory struct {
	repo UserRepo
}

// NewDirectory returns a Directory backed by the given repository.
func NewDirectory(repo UserRepo) *Directory {
	return &Directory{repo: repo}
}

// GetOrCreate returns the user for the profile's external id, creating one
// with the default Viewer role on first login. On every subsequent login it
// refreshes email, name, organization, and last_login but never the role.
//
// Two racing first logins both succeed: the loser's insert hits the unique
// index on external_id and is retried exactly once as a profile refresh.
// Reports whether a new user was created.
func (s *Directory) GetOrCreate(ctx context.Context, p Profile) (*domain.User, bool, error) {
	existing, err := s.repo.GetByExternalID(ctx, p.ExternalID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		refreshed, err := s.refresh(ctx, existing, p)
		return refreshed, false, err
	}

	now := time.Now().UTC()
	u := &domain.User{
		ID:           uuid.New().String(),
		ExternalID:   p.ExternalID,
		Email:        p.Email,
		Name:         p.Name,
		Role:         domain.RoleViewer,
		Organization: p.Organization,
		CreatedAt:    now,
		LastLogin:    now,
	}
	if err := u.Validate(); err != nil {
		return nil, false, err
	}

	err = s.repo.Create(ctx, u)
	if err == nil {
		return u, true, nil
	}
	if !errors.Is(err, repository.ErrConstraintViolation) {
		return nil, false, err
	}

	// Lost the first-login race: the row exists now, so retry as a refresh.
	existing, lookupErr := s.repo.GetByExternalID(ctx, p.ExternalID)
	if lookupErr != nil {
		return nil, false, lookupErr
	}
	if existing == nil {
		return nil, false, err
	}
	refreshed, err := s.refresh(ctx, existing, p)
	return refreshed, false, err
}

func (s *Directory) refresh(ctx context.Context, existing *domain.User, p Profile) (*domain.User, error) {
	updated := *existing
	updated.Email = p.Email
	updated.Name = p.Name
	updated.Organization = p.Organization
	updated.LastLogin = time.Now().UTC()
	if err := s.repo.UpdateProfile(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// GetByID returns the user for the internal id, or nil if not found.
func (s *Directory) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByExternalID returns the user for the provider-issued id, or nil if not found.
func (s *Directory) GetByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	return s.repo.GetByExternalID(ctx, externalID)
}

// UpdateRole validates rawRole against the closed role set and assigns it to
// the user with the given internal id. Returns the updated user.
// Fails with domain.ErrInvalidRole for a value outside the set and
// repository.ErrNotFound for an unknown user.
func (s *Directory) UpdateRole(ctx context.Context, id, rawRole string) (*domain.User, error) {
	role, err := domain.ParseRole(rawRole)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateRole(ctx, id, role); err != nil {
		return nil, err
	}
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, repository.ErrNotFound
	}
	return u, nil
}
