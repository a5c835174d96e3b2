// Package cli holds the portal's cobra commands.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// Execute runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds the portal command tree.
func NewRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "portal",
		Short:         "ExStem exam portal: one tab's exam session lifecycle",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// config.Load reads the YAML overlay from CONFIG_FILE.
			if configPath != "" {
				return os.Setenv("CONFIG_FILE", configPath)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config overlay")
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSandboxCmd())
	return cmd
}
