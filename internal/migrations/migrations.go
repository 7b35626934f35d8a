package migrations

import "github.com/uptrace/bun/migrate"

// Migrations holds every schema migration, registered from init functions in
// this package and applied in filename order.
var Migrations = migrate.NewMigrations()
