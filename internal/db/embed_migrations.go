package db

import "embed"

// MigrationFS carries the users and audit_log schema files compiled into the
// binary, so cmd/migrate needs no SQL files on disk at deploy time.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
