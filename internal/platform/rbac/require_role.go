// Package rbac implements role-based access checks over the ordered role set.
package rbac

import (
	"context"
	"errors"

	"siteguard/backend/internal/server/middleware"
	"siteguard/backend/internal/user/domain"
)

var (
	// ErrUnauthenticated is returned when no authenticated user is in context.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden is returned when the caller is authenticated but their role
	// is below the required level.
	ErrForbidden = errors.New("insufficient role")
)

// Allow reports whether a caller holding have may perform an action requiring
// want. A role outside the closed set has level 0 and fails closed, on either
// side of the comparison.
func Allow(have, want domain.Role) bool {
	return want.Valid() && have.Level() >= want.Level()
}

// RequireRole resolves the authenticated user from ctx and checks their role
// against required. Returns the user on success, ErrUnauthenticated when no
// user is in context, and ErrForbidden when the role level is insufficient.
func RequireRole(ctx context.Context, required domain.Role) (*domain.User, error) {
	u, ok := middleware.GetUser(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	if !Allow(u.Role, required) {
		return nil, ErrForbidden
	}
	return u, nil
}
