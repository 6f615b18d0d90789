package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the worldsmith CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worldsmith",
		Short: "Worldsmith - campaign world management backend",
		Long: `Worldsmith manages hierarchical campaign worlds: entities, their
parent/child relationships, and background cascading soft-deletes.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}
