// Package sqlite stores operators in a single SQLite file using the
// pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lborres/opgate"
	"github.com/lborres/opgate/internal/migrate"
	_ "modernc.org/sqlite" // registers "sqlite"
)

type Adapter struct {
	db *sql.DB
}

var _ opgate.OperatorStorage = (*Adapter)(nil)

func New(db *sql.DB) *Adapter {
	return &Adapter{
		db: db,
	}
}

// OpenDB opens the database file at path without touching the schema.
func OpenDB(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// SQLite has one writer; a single connection avoids SQLITE_BUSY between our own goroutines.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return db, nil
}

// Open opens the database at path, applies pending migrations and returns
// a store that owns the handle.
func Open(ctx context.Context, path string) (*Adapter, error) {
	db, err := OpenDB(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := migrate.SQLite(db, migrate.Up); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return New(db), nil
}

func (a *Adapter) DB() *sql.DB {
	return a.db
}

func (a *Adapter) Close() error {
	return a.db.Close()
}

func dsn(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}
