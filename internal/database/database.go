package database

import (
	"context"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

type Options struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Connect opens and pings the database. SQLite is limited to one connection
// so in-memory databases are shared and writers never hit SQLITE_BUSY.
func Connect(ctx context.Context, opts Options) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, opts.Driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", opts.Driver, err)
	}

	if opts.Driver == "sqlite" {
		db.SetMaxOpenConns(1)
		return db, nil
	}

	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	return db, nil
}
