package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/storage"
)

// NewMigrateCmd manages the session_slots schema used by SLOT_BACKEND=postgres.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the postgres session slot schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m *storage.Migrator, _ []string) error {
			if err := m.Up(); err != nil {
				return err
			}
			cmd.Println("Migrated up successfully")
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Revert all migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m *storage.Migrator, _ []string) error {
			if err := m.Down(); err != nil {
				return err
			}
			cmd.Println("Migrated down successfully")
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m *storage.Migrator, _ []string) error {
			v, dirty, err := m.Version()
			if err != nil {
				return fmt.Errorf("read version: %w", err)
			}
			cmd.Printf("Version: %d, Dirty: %t\n", v, dirty)
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: withMigrator(func(cmd *cobra.Command, m *storage.Migrator, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
			if err := m.Force(v); err != nil {
				return fmt.Errorf("force version: %w", err)
			}
			cmd.Printf("Forced version to %d\n", v)
			return nil
		}),
	})
	return cmd
}

func withMigrator(run func(*cobra.Command, *storage.Migrator, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		m, err := storage.NewMigrator(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer m.Close()
		return run(cmd, m, args)
	}
}
