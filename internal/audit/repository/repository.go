package repository

import (
	"context"

	"siteguard/backend/internal/audit/domain"
)

// Repository defines persistence for audit entries.
type Repository interface {
	// Create persists the entry. The entry must have ID set.
	Create(ctx context.Context, e *domain.Entry) error
}
