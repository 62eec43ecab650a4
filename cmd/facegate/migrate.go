// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

package main

import (
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/facegate/facegate/internal/config"
	"github.com/facegate/facegate/internal/store"
)

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
	Pending() ([]uint, error)
	Close() error
}

// newMigrator is replaced in tests.
var newMigrator = func(databaseURL string) (Migrator, error) {
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage PostgreSQL schema migrations",
		Long: `Manage the user schema in PostgreSQL. With no subcommand, applies
all pending migrations. Mongo and Redis stores need no migrations.`,
		RunE: runMigrateUp,
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Revert the last migration (or all with --all)",
		RunE:  runMigrateDown,
	}
	down.Flags().Bool("all", false, "revert every migration, dropping the users table")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE:  runMigrateUp,
		},
		down,
		&cobra.Command{
			Use:   "status",
			Short: "Show the applied version and pending migrations",
			RunE:  runMigrateStatus,
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Mark VERSION as applied without running it",
			Args:  cobra.ExactArgs(1),
			RunE:  runMigrateForce,
		},
	)
	return cmd
}

// withMigrator opens a migrator for the configured postgres store and
// closes it after fn.
func withMigrator(cmd *cobra.Command, fn func(Migrator) error) (err error) {
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	if cfg.Store.Driver != config.DriverPostgres {
		return oops.Code("CONFIG_INVALID").With("key", "store.driver").
			Errorf("migrations apply only to the postgres store, driver is %q", cfg.Store.Driver)
	}
	if cfg.Store.URL == "" {
		return oops.Code("CONFIG_INVALID").With("key", "store.url").Errorf("store.url is required")
	}

	m, err := newMigrator(cfg.Store.URL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "open migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(m)
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	return withMigrator(cmd, func(m Migrator) error {
		cmd.Println("Running migrations...")
		if err := m.Up(); err != nil {
			return err
		}
		return printVersion(cmd, m)
	})
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	all, err := cmd.Flags().GetBool("all")
	if err != nil {
		return oops.Wrap(err)
	}
	return withMigrator(cmd, func(m Migrator) error {
		if all {
			cmd.Println("Reverting all migrations...")
			if err := m.Down(); err != nil {
				return err
			}
		} else {
			cmd.Println("Reverting last migration...")
			if err := m.Steps(-1); err != nil {
				return err
			}
		}
		return printVersion(cmd, m)
	})
}

func runMigrateStatus(cmd *cobra.Command, _ []string) error {
	return withMigrator(cmd, func(m Migrator) error {
		if err := printVersion(cmd, m); err != nil {
			return err
		}
		pending, err := m.Pending()
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			cmd.Println("No pending migrations")
			return nil
		}
		cmd.Printf("Pending migrations (%d):\n", len(pending))
		for _, v := range pending {
			name, err := store.MigrationName(v)
			if err != nil {
				return err
			}
			cmd.Printf("  %s\n", name)
		}
		return nil
	})
}

func runMigrateForce(cmd *cobra.Command, args []string) error {
	version, err := parseForceVersion(args[0])
	if err != nil {
		return err
	}
	return withMigrator(cmd, func(m Migrator) error {
		if err := m.Force(version); err != nil {
			return err
		}
		cmd.Printf("Forced schema version to %d\n", version)
		return nil
	})
}

// parseForceVersion parses a non-negative migration version.
func parseForceVersion(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be an integer: %q", s)
	}
	if v < 0 {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be non-negative, got %d", v)
	}
	return v, nil
}

func printVersion(cmd *cobra.Command, m Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	if dirty {
		cmd.Printf("Schema version: %d (dirty)\n", version)
		return nil
	}
	cmd.Printf("Schema version: %d\n", version)
	return nil
}
