package migrations

import (
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// Backend names the database engine behind db for operator output.
func Backend(db *bun.DB) string {
	switch db.Dialect().Name() {
	case dialect.PG:
		return "postgresql"
	case dialect.SQLite:
		return "sqlite"
	default:
		return db.Dialect().Name().String()
	}
}
