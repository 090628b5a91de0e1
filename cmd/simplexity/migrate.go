package main

import (
	"github.com/mohammad-safakhou/simplexity/config"
	"github.com/mohammad-safakhou/simplexity/internal/store"
	"github.com/spf13/cobra"
)

func migrateCMD(cfgPath *string) *cobra.Command {
	var migDir string
	var direction string
	var steps int

	var migrate = &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations for the postgres conversation store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if err := cfg.Storage.Postgres.Validate(); err != nil {
				return err
			}
			if migDir == "" {
				migDir = cfg.Storage.Postgres.MigrationsDir
			}
			if err := store.Migrate(migDir, cfg.Storage.Postgres.DSN(), direction, steps); err != nil {
				return err
			}
			cmd.Printf("migrations %s applied\n", direction)
			return nil
		},
	}
	migrate.Flags().StringVar(&migDir, "dir", "", "migrations source (default storage.postgres.migrations_dir)")
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")

	return migrate
}
