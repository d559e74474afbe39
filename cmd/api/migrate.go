package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/persistence"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

func init() {
	for _, direction := range []persistence.MigrationDirection{
		persistence.MigrateUp,
		persistence.MigrateDown,
		persistence.MigrateStatus,
	} {
		migrateCmd.AddCommand(newMigrateCmd(direction))
	}
}

func newMigrateCmd(direction persistence.MigrationDirection) *cobra.Command {
	short := map[persistence.MigrationDirection]string{
		persistence.MigrateUp:     "Apply all pending migrations",
		persistence.MigrateDown:   "Roll back the latest migration",
		persistence.MigrateStatus: "Print migration status",
	}[direction]

	return &cobra.Command{
		Use:   string(direction),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			pg, err := persistence.NewPostgres(cmd.Context(), cfg.Postgres, logger)
			if err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			defer pg.Close()

			if err := persistence.Migrate(cmd.Context(), pg.PoolHandle(), logger, direction); err != nil {
				return fmt.Errorf("migrate %s: %w", direction, err)
			}
			logger.Info("migrate done", zap.String("direction", string(direction)))
			return nil
		},
	}
}
