// Package postgres implements the ledger, subscription and vendor stores on
// PostgreSQL through pgx/v5.
//
// Ledger mutations are single statements: the monthly refresh is an
// INSERT ... ON CONFLICT DO UPDATE guarded by the period stamp, and a
// decrement is an UPDATE guarded by "counter = -1 OR counter >= n".
package postgres

import (
	"context"
	"embed"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Migrations holds the goose migrations for every table used by this package.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations.
const MigrationsDir = "migrations"

// DB is the subset of *pgxpool.Pool used by the stores.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
