package cli

import (
	"fmt"
	"os"

	"github.com/nadmax/nexdag/internal/plan"
	"github.com/nadmax/nexdag/internal/task"
	"github.com/spf13/cobra"
)

// samplePlan is a small build pipeline with one flaky step.
var samplePlan = plan.File{
	Tasks: []task.Task{
		{ID: "fetch", Name: "Fetch sources", DurationMs: 200},
		{ID: "deps", Name: "Install dependencies", DurationMs: 500, FailureRate: 0.1, Dependencies: []string{"fetch"}},
		{ID: "lint", Name: "Lint", DurationMs: 300, Dependencies: []string{"deps"}},
		{ID: "test", Name: "Unit tests", DurationMs: 800, FailureRate: 0.2, Dependencies: []string{"deps"}},
		{ID: "package", Name: "Package", DurationMs: 400, Dependencies: []string{"lint", "test"}},
	},
}

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init <plan>",
		Short: "Write a sample plan file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			}

			if err := plan.Save(&samplePlan, path); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d tasks to %s\n", len(samplePlan.Tasks), path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}
