package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"siteguard/backend/internal/db"
	"siteguard/backend/internal/user/domain"
)

const userColumns = "id, external_id, email, name, role, organization, created_at, last_login"

type PostgresRepository struct {
	pool *db.Pool
}

// NewPostgresRepository returns a user repository backed by the given
// connection pool.
func NewPostgresRepository(pool *db.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
}

// GetByExternalID returns the user for the provider-issued id, or nil if not
// found. It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE external_id = $1", externalID)
}

func (r *PostgresRepository) getOne(ctx context.Context, query, arg string) (*domain.User, error) {
	var u domain.User
	err := r.pool.WithConn(ctx, func(ctx context.Context, q db.Querier) error {
		return scanUser(q.QueryRow(ctx, query, arg), &u)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// Create persists the user. The user must have ID set; it is not assigned by
// this method. A duplicate external_id fails with ErrConstraintViolation.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	err := r.pool.WithConn(ctx, func(ctx context.Context, q db.Querier) error {
		_, err := q.Exec(ctx,
			`INSERT INTO users (id, external_id, email, name, role, organization, created_at, last_login)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			u.ID, u.ExternalID, u.Email, u.Name, string(u.Role), u.Organization, u.CreatedAt, u.LastLogin)
		return err
	})
	return mapWriteErr(err)
}

// UpdateProfile refreshes the mutable profile fields and last_login for the
// user with u.ExternalID. The stored role is deliberately left alone: a login
// must never reset an assignment made through the role endpoint.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, u *domain.User) error {
	err := r.pool.WithConn(ctx, func(ctx context.Context, q db.Querier) error {
		tag, err := q.Exec(ctx,
			`UPDATE users SET email = $2, name = $3, organization = $4, last_login = $5
			 WHERE external_id = $1`,
			u.ExternalID, u.Email, u.Name, u.Organization, u.LastLogin)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	return mapWriteErr(err)
}

// UpdateRole sets the role for the user with the given internal id inside a
// transaction, locking the row so a concurrent profile refresh cannot
// interleave. Fails with ErrNotFound if no such user exists.
func (r *PostgresRepository) UpdateRole(ctx context.Context, id string, role domain.Role) error {
	err := r.pool.WithTx(ctx, func(ctx context.Context, q db.Querier) error {
		var current string
		if err := q.QueryRow(ctx, "SELECT role FROM users WHERE id = $1 FOR UPDATE", id).Scan(&current); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		_, err := q.Exec(ctx, "UPDATE users SET role = $2 WHERE id = $1", id, string(role))
		return err
	})
	return mapWriteErr(err)
}

func scanUser(row pgx.Row, u *domain.User) error {
	var role string
	var createdAt, lastLogin time.Time
	if err := row.Scan(&u.ID, &u.ExternalID, &u.Email, &u.Name, &role, &u.Organization, &createdAt, &lastLogin); err != nil {
		return err
	}
	u.Role = domain.Role(role)
	u.CreatedAt = createdAt.UTC()
	u.LastLogin = lastLogin.UTC()
	return nil
}

// mapWriteErr translates integrity-constraint failures (SQLSTATE class 23)
// into ErrConstraintViolation so callers can branch without importing pgconn.
func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23") {
		return fmt.Errorf("%w: %s", ErrConstraintViolation, pgErr.ConstraintName)
	}
	return err
}
