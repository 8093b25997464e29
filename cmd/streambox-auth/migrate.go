// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

package main

import (
	"fmt"
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/streambox/auth-service/internal/config"
	"github.com/streambox/auth-service/internal/store"
)

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Version() (uint, bool, error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	Close() error
}

// migratorFactory creates the migrator used by the migrate subcommands.
var migratorFactory = func(databaseURL string) (Migrator, error) {
	return store.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long:  `Apply, roll back or inspect the auth schema migrations.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: withMigrator(func(cmd *cobra.Command, m Migrator, _ []string) error {
			pending, err := m.PendingMigrations()
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				cmd.Println("Schema is up to date")
				return nil
			}
			for _, v := range pending {
				name, err := store.MigrationName(v)
				if err != nil {
					return err
				}
				cmd.Printf("Applying %s\n", name)
			}
			if err := m.Up(); err != nil {
				return err
			}
			cmd.Println("Migrations completed successfully")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration, dropping all auth data",
		RunE: withMigrator(func(cmd *cobra.Command, m Migrator, _ []string) error {
			if err := m.Down(); err != nil {
				return err
			}
			cmd.Println("All migrations rolled back")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the current schema version",
		RunE: withMigrator(func(cmd *cobra.Command, m Migrator, _ []string) error {
			v, dirty, err := m.Version()
			if err != nil {
				return err
			}
			status := "clean"
			if dirty {
				status = "dirty"
			}
			cmd.Printf("Schema version %d (%s)\n", v, status)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it",
		Long: `Mark VERSION as applied without running anything. Use this to clear
a dirty state after repairing a failed migration by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: withMigrator(func(cmd *cobra.Command, m Migrator, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("INVALID_VERSION").With("version", args[0]).Wrap(err)
			}
			if err := m.Force(v); err != nil {
				return err
			}
			cmd.Printf("Forced schema version %d\n", v)
			return nil
		}),
	})

	return cmd
}

// withMigrator loads the configuration and opens a migrator for fn.
func withMigrator(fn func(cmd *cobra.Command, m Migrator, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Storage.Backend != config.BackendPostgres {
			return oops.Code("CONFIG_INVALID").Errorf("migrations require the postgres backend, got %q", cfg.Storage.Backend)
		}

		m, err := migratorFactory(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := m.Close(); closeErr != nil {
				cmd.PrintErrln(fmt.Sprintf("warning: closing migrator: %v", closeErr))
			}
		}()
		return fn(cmd, m, args)
	}
}
