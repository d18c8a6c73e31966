package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/civicpulse/civicpulse/internal/config"
	"github.com/civicpulse/civicpulse/internal/storage"
)

// The migration runner is not safe for concurrent invocation; run at
// most one of these commands at a time against a given database.

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		return migrateUp(cmd)
	},
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return migrateUp(cmd)
	},
}

var migrateResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop all tables and re-run every migration (refused in production)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return err
		}
		defer store.Close()

		printWarning("Resetting database in %s", cfg.Storage.DataDir)
		if err := store.Reset(cmd.Context(), cfg.Env); err != nil {
			return err
		}

		applied, err := store.AppliedMigrations(cmd.Context())
		if err != nil {
			return err
		}
		printSuccess("Database reset, %d migrations applied", len(applied))
		return nil
	},
}

var migrateVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that the schema matches what the repositories expect",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return err
		}
		defer store.Close()

		missing, err := store.VerifySchema(cmd.Context())
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			for _, m := range missing {
				printError("missing: %s", m)
			}
			return fmt.Errorf("schema verification failed: %d missing objects", len(missing))
		}

		printSuccess("Schema verified")
		return nil
	},
}

func migrateUp(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	before, err := store.AppliedMigrations(cmd.Context())
	if err != nil {
		// The ledger does not exist on a fresh database.
		before = nil
	}

	printStep("Applying migrations in %s", cfg.Storage.DataDir)
	if err := store.Migrate(cmd.Context()); err != nil {
		return err
	}

	after, err := store.AppliedMigrations(cmd.Context())
	if err != nil {
		return err
	}

	if len(after) == len(before) {
		printSuccess("Schema up to date, version %d", len(after))
	} else {
		printSuccess("Migrated schema, from %d to %d", len(before), len(after))
	}
	return nil
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateResetCmd)
	migrateCmd.AddCommand(migrateVerifyCmd)
}
