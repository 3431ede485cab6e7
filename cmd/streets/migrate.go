package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/constituency-streets/internal/storage"
)

// getMigrateCmd returns the migrate command with its up, down and
// version subcommands.
func getMigrateCmd() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long: `Migrate applies the embedded schema migrations to PostgreSQL.

Examples:
  streets migrate up
  streets migrate down
  streets migrate version`,
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := storage.RunMigrations(cfg.Database.Postgres.URL()); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			logger.Info("migrations applied")
			return nil
		},
	}

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := storage.RollbackMigrations(cfg.Database.Postgres.URL()); err != nil {
				return fmt.Errorf("roll back migrations: %w", err)
			}
			logger.Info("migration rolled back")
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			version, dirty, err := storage.MigrationVersion(cfg.Database.Postgres.URL())
			if err != nil {
				return fmt.Errorf("read migration version: %w", err)
			}
			fmt.Printf("schema version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	}

	migrateCmd.AddCommand(upCmd, downCmd, versionCmd)
	return migrateCmd
}
