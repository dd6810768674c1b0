// Package cli implements the nexdag command line.
package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the command tree. Output goes to the command's writers so
// tests can capture it.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "nexdag",
		Short: "Dependency-aware task runner",
		Long: `nexdag runs a plan of tasks in dependency order. Failing tasks are retried
a bounded number of times; tasks depending on a failed or skipped task are
skipped.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newOrderCmd(), newRunCmd(), newInitCmd())
	return root
}

// ExecuteContext runs the command line with os.Args.
func ExecuteContext(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}
