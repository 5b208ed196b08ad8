package main

import (
	"fmt"

	sqliteadapter "github.com/lborres/opgate/adapters/sqlite"
	"github.com/lborres/opgate/internal/config"
	"github.com/lborres/opgate/internal/logger"
	"github.com/lborres/opgate/internal/migrate"
	"github.com/spf13/cobra"
)

func newMigrateCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate up|down",
		Short:     "Apply or revert the operator schema",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{migrate.Up, migrate.Down},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			direction := args[0]
			log := logger.Named("migrate")

			switch cfg.StoreDriver {
			case config.StorePostgres:
				err = migrate.Postgres(cfg.DatabaseURL, direction)
			case config.StoreSQLite:
				db, openErr := sqliteadapter.OpenDB(cmd.Context(), cfg.SQLitePath)
				if openErr != nil {
					return openErr
				}
				defer db.Close()
				err = migrate.SQLite(db, direction)
			default:
				err = fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
			}
			if err != nil {
				return fmt.Errorf("migrate %s: %w", direction, err)
			}

			log.Info("migrations applied")
			return nil
		},
	}
}
