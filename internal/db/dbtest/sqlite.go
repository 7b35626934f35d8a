// Package dbtest provides migrated throwaway databases for package tests.
package dbtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	"github.com/salonbook/salonapi/internal/db/bunx"
	"github.com/salonbook/salonapi/internal/migrations"
)

// NewSQLite opens a private in-memory SQLite database, applies every migration
// and closes the database when the test ends.
func NewSQLite(t testing.TB) *bun.DB {
	t.Helper()

	db, err := bunx.NewDB("sqlite://:memory:")
	require.NoError(t, err, "open sqlite")
	t.Cleanup(func() { _ = bunx.Close(db) })

	Migrate(t, db)
	return db
}

// Migrate applies all registered migrations to db.
func Migrate(t testing.TB, db *bun.DB) {
	t.Helper()

	ctx := context.Background()
	migrator := migrate.NewMigrator(db, migrations.Migrations)
	require.NoError(t, migrator.Init(ctx), "init migrator")
	_, err := migrator.Migrate(ctx)
	require.NoError(t, err, "apply migrations")
}
