// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Worldsmith Contributors

package main

import (
	"os"
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/worldsmith/worldsmith/internal/store"
)

// NewMigrateCmd creates the migrate subcommand and its children.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
		Long:  `Apply, roll back, and inspect schema migrations against the PostgreSQL database.`,
	}

	cmd.AddCommand(newMigrateUpCmd())
	cmd.AddCommand(newMigrateDownCmd())
	cmd.AddCommand(newMigrateStatusCmd())
	cmd.AddCommand(newMigrateForceCmd())

	return cmd
}

// databaseURL resolves the connection string from the environment.
func databaseURL() (string, error) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		return "", oops.Code("CONFIG_INVALID").Errorf("DATABASE_URL environment variable is required")
	}
	return url, nil
}

func withMigrator(cmd *cobra.Command, fn func(*store.Migrator) error) error {
	url, err := databaseURL()
	if err != nil {
		return err
	}

	migrator, err := store.NewMigrator(url)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			cmd.PrintErrln("warning: failed to close migrator:", closeErr)
		}
	}()

	return fn(migrator)
}

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m *store.Migrator) error {
				pending, err := m.PendingMigrations()
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					cmd.Println("No pending migrations")
					return nil
				}
				if err := m.Up(); err != nil {
					return err
				}
				cmd.Printf("Applied %d migration(s)\n", len(pending))
				return nil
			})
		},
	}
}

func newMigrateDownCmd() *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations (destructive)",
		Long:  `Roll back every migration, dropping all tables and their data.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirmed {
				return oops.Code("CONFIRMATION_REQUIRED").Errorf("migrate down drops all data; re-run with --yes to confirm")
			}
			return withMigrator(cmd, func(m *store.Migrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("All migrations rolled back")
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&confirmed, "yes", false, "confirm the rollback")
	return cmd
}

func newMigrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show current migration version and pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m *store.Migrator) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}

				if version == 0 {
					cmd.Println("Current version: none (empty schema)")
				} else {
					name, err := store.MigrationName(version)
					if err != nil {
						return err
					}
					cmd.Printf("Current version: %d (%s)\n", version, name)
				}
				if dirty {
					cmd.Println("WARNING: schema is dirty; a migration failed partway")
				}

				pending, err := m.PendingMigrations()
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					cmd.Println("No pending migrations")
					return nil
				}
				cmd.Println("Pending migrations:")
				for _, v := range pending {
					name, err := store.MigrationName(v)
					if err != nil {
						return err
					}
					cmd.Printf("  %d (%s)\n", v, name)
				}
				return nil
			})
		},
	}
}

func newMigrateForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Set the migration version without running migrations",
		Long: `Set the recorded schema version directly. Use only to recover from a
dirty state after fixing the database by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil || version < 0 {
				return oops.Code("INVALID_VERSION").Errorf("version must be a non-negative integer, got %q", args[0])
			}
			return withMigrator(cmd, func(m *store.Migrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				cmd.Printf("Forced version to %d\n", version)
				return nil
			})
		},
	}
}
