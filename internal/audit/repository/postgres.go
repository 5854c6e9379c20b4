package repository

import (
	"context"

	"siteguard/backend/internal/audit/domain"
	"siteguard/backend/internal/db"
)

type PostgresRepository struct {
	pool *db.Pool
}

// NewPostgresRepository returns an audit repository backed by the given
// connection pool.
func NewPostgresRepository(pool *db.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create persists the entry. The entry must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.Entry) error {
	return r.pool.WithConn(ctx, func(ctx context.Context, q db.Querier) error {
		userID := any(e.UserID)
		if e.UserID == "" {
			userID = nil
		}
		_, err := q.Exec(ctx,
			`INSERT INTO audit_log (id, user_id, action, detail, ip, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			e.ID, userID, e.Action, e.Detail, e.IP, e.CreatedAt)
		return err
	})
}
