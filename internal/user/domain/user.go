package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRole is returned when a role value is not a member of the closed role set.
var ErrInvalidRole = errors.New("invalid role")

// Role is the closed, ordered set of access roles. Higher level means more access.
type Role string

const (
	RoleViewer   Role = "Viewer"
	RoleOperator Role = "Operator"
	RoleAdmin    Role = "Admin"
)

// roleLevels defines the total order over the role set. Access checks compare levels.
var roleLevels = map[Role]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// ParseRole validates a raw role value against the closed set.
// Returns ErrInvalidRole for anything outside it, including the empty string.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := roleLevels[r]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// Level returns the role's position in the order, or 0 for an unknown role.
// A zero level fails every role check, so an unrecognized stored value fails closed.
func (r Role) Level() int {
	return roleLevels[r]
}

// Valid reports whether the role is a member of the closed set.
func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// User is the core user entity, keyed internally by ID and externally by ExternalID.
type User struct {
	ID           string
	ExternalID   string
	Email        string
	Name         string
	Role         Role
	Organization string
	CreatedAt    time.Time
	LastLogin    time.Time
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.ExternalID == "" {
		return errors.New("external id is required")
	}
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.Role == "" {
		u.Role = RoleViewer
	}
	if !u.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, u.Role)
	}
	return nil
}
