package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"djeworker/internal/config"
	"djeworker/internal/storage"
)

var errMigrateSQLite = errors.New("migrations apply to postgres only; sqlite schemas are created on open")

func migrateCMD(flags *rootFlags) *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:       "migrate [up|down|version]",
		Short:     "Run database migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{storage.MigrateUp, storage.MigrateDown, "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags.configPath)
			if err != nil {
				return err
			}

			if cfg.Storage.Driver != config.DriverPostgres {
				return errMigrateSQLite
			}

			direction := storage.MigrateUp
			if len(args) == 1 {
				direction = args[0]
			}

			dsn := cfg.Storage.DSN()

			if direction != "version" {
				if err := storage.Migrate(dsn, direction, steps); err != nil {
					return err
				}
			}

			version, dirty, err := storage.MigrationVersion(dsn)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty: %t)\n", version, dirty)

			return nil
		},
	}

	cmd.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")

	return cmd
}
