package bunx

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	_ "modernc.org/sqlite"
)

// Driver names the backend a DSN selects.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

const (
	defaultMaxOpenConns = 25
	connectTimeout      = 10 * time.Second
)

// Options tunes the connection pool. Zero values fall back to defaults.
// SQLite ignores them and always runs on one connection.
type Options struct {
	MaxOpenConns    int
	ConnMaxIdleTime time.Duration
}

// DriverFor picks the backend for dsn. postgres://, postgresql:// and
// pgdriver's unix:// socket form select Postgres; sqlite://, file:,
// :memory: and bare paths select SQLite.
func DriverFor(dsn string) Driver {
	for _, prefix := range []string{"postgres://", "postgresql://", "unix://"} {
		if strings.HasPrefix(dsn, prefix) {
			return DriverPostgres
		}
	}
	return DriverSQLite
}

// NewDB opens and pings the database behind dsn.
func NewDB(dsn string, opts ...Options) (*bun.DB, error) {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.MaxOpenConns <= 0 {
		o.MaxOpenConns = defaultMaxOpenConns
	}

	var (
		db    *bun.DB
		setup []string
	)
	switch DriverFor(dsn) {
	case DriverPostgres:
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		sqldb.SetMaxOpenConns(o.MaxOpenConns)
		sqldb.SetMaxIdleConns(o.MaxOpenConns)
		if o.ConnMaxIdleTime > 0 {
			sqldb.SetConnMaxIdleTime(o.ConnMaxIdleTime)
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		sqldb, err := sql.Open("sqlite", strings.TrimPrefix(dsn, "sqlite://"))
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// One connection keeps :memory: databases shared and serializes writers.
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
		setup = []string{"PRAGMA foreign_keys = ON", "PRAGMA journal_mode = WAL"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	for _, stmt := range setup {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", stmt, err)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", db.Dialect().Name(), err)
	}
	return db, nil
}

// Close closes db. A nil db is ignored.
func Close(db *bun.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}
