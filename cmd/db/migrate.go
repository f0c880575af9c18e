package main

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/garrettladley/sesgate/internal/config"
	"github.com/garrettladley/sesgate/internal/migrations"
	"github.com/garrettladley/sesgate/internal/migrations/postgres"
	"github.com/garrettladley/sesgate/internal/storage"
)

func migrateCmd() *cobra.Command {
	var driver string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations to the configured sink database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := config.Read()
			if err != nil {
				return err
			}

			var applied int
			switch driver {
			case config.SinkPostgres:
				if cfg.Database.URL == "" {
					return errors.New("DATABASE_URL is required")
				}
				pool, err := pgxpool.New(ctx, cfg.Database.URL)
				if err != nil {
					return fmt.Errorf("failed to connect: %w", err)
				}
				defer pool.Close()

				if applied, err = postgres.Apply(ctx, pool); err != nil {
					return err
				}
			case config.SinkSQLite:
				db, err := storage.OpenSQLite(cfg.SQLite.Path)
				if err != nil {
					return err
				}
				defer func() { _ = db.Close() }()

				if applied, err = migrations.Apply(ctx, db); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown driver %q (want postgres or sqlite)", driver)
			}

			fmt.Printf("Applied %d migration(s)\n", applied)
			return nil
		},
	}

	cmd.Flags().StringVar(&driver, "driver", config.SinkPostgres, "postgres or sqlite")
	return cmd
}
