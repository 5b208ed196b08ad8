package main

import (
	"context"
	"fmt"

	"github.com/lborres/opgate"
	pgxadapter "github.com/lborres/opgate/adapters/pgx"
	sqliteadapter "github.com/lborres/opgate/adapters/sqlite"
	"github.com/lborres/opgate/internal/config"
)

// openStore returns the configured operator store and a func that releases it.
// SQLite is migrated on open; Postgres is migrated with "opgate migrate up".
func openStore(ctx context.Context, cfg *config.Config) (opgate.OperatorStorage, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreSQLite:
		store, err := sqliteadapter.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil

	case config.StorePostgres:
		store, err := pgxadapter.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
