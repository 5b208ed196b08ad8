// Package migrate applies the embedded schema with golang-migrate.
package migrate

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // registers pgx5://
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lborres/opgate/migrations"
)

const (
	Up   = "up"
	Down = "down"
)

// ErrNoChange is returned by callers that want to report "already current".
var ErrNoChange = migrate.ErrNoChange

// Postgres applies the postgres migrations to the database at dsn.
// Both postgres:// and postgresql:// urls are accepted.
func Postgres(dsn, direction string) error {
	if dsn == "" {
		return errors.New("DATABASE_URL is not set")
	}
	if err := checkDirection(direction); err != nil {
		return err
	}

	src, err := embedded("postgres")
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, pgx5URL(dsn))
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	return apply(m, direction)
}

// SQLite applies the sqlite migrations through an already open handle.
// The handle stays open; it is shared with the store.
func SQLite(db *sql.DB, direction string) error {
	if db == nil {
		return errors.New("sqlite handle is nil")
	}
	if err := checkDirection(direction); err != nil {
		return err
	}

	src, err := embedded("sqlite")
	if err != nil {
		return err
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// m.Close would close db as well.
	return apply(m, direction)
}

func embedded(dir string) (source.Driver, error) {
	sub, err := fs.Sub(migrations.FS, dir)
	if err != nil {
		return nil, fmt.Errorf("migrate source: %w", err)
	}
	d, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("migrate source: %w", err)
	}
	return d, nil
}

func apply(m *migrate.Migrate, direction string) error {
	var err error
	switch direction {
	case Up:
		err = m.Up()
	case Down:
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func checkDirection(direction string) error {
	if direction != Up && direction != Down {
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}
	return nil
}

func pgx5URL(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}
