// Package migrate drives the embedded schema migrations (users, audit_log)
// against the configured Postgres database using golang-migrate.
package migrate

import (
	"errors"
	"fmt"

	"siteguard/backend/internal/db"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// ErrNoChange reports that the schema is already at the requested version.
var ErrNoChange = migrate.ErrNoChange

// Run sweeps the embedded migrations against dsn: "up" to the latest version,
// "down" back to an empty schema. A schema already at the target returns
// ErrNoChange; callers decide whether that counts as success.
func Run(dsn, direction string) error {
	if dsn == "" {
		return errors.New("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	var sweep func(*migrate.Migrate) error
	switch direction {
	case "up":
		sweep = (*migrate.Migrate).Up
	case "down":
		sweep = (*migrate.Migrate).Down
	default:
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}

	src, err := iofs.New(db.MigrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	return sweep(m)
}
