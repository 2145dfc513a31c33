// Package cli provides the command-line interface for NeuraReport.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/AlfRonDon/NeuraReport-sub002/internal/cli/commands"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "neurareport",
		Short: "NeuraReport - report contract builder and batch discovery",
		Long: `NeuraReport turns report templates plus a database connection into
SQL contracts and batch discovery results.

A contract maps template tokens to SQL expressions, built once per template
via a model call and cached by input signature. Discovery enumerates report
batches from the contract's join and date rules against the live database.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(
		commands.NewBuildCommand(),
		commands.NewDiscoverCommand(),
		commands.NewChartsCommand(),
		commands.NewServeCommand(),
		commands.NewVersionCommand(Version, GitCommit),
	)

	return rootCmd
}
