package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/nadmax/nexdag/internal/engine"
	"github.com/nadmax/nexdag/internal/notify"
	"github.com/nadmax/nexdag/internal/plan"
	"github.com/nadmax/nexdag/internal/task"
	"github.com/spf13/cobra"
)

type runOptions struct {
	maxRetries int
	seed       uint64
	timeScale  float64
	quiet      bool
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run <plan>",
		Short: "Execute a plan and print the final state of every task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, args[0], opts)
		},
	}

	cmd.Flags().IntVar(&opts.maxRetries, "max-retries", engine.DefaultMaxRetries, "retries after a failed first attempt")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "seed for simulated failures (0 picks one)")
	cmd.Flags().Float64Var(&opts.timeScale, "time-scale", 1.0, "multiplier applied to task durations")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "do not print transitions")

	return cmd
}

func runPlan(cmd *cobra.Command, path string, opts runOptions) error {
	if opts.maxRetries < 0 {
		return errors.New("--max-retries must not be negative")
	}

	eng, err := loadEngine(path,
		engine.WithExecutor(engine.NewSimulatedExecutor(opts.timeScale, opts.seed)),
		engine.WithMaxRetries(opts.maxRetries),
	)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !opts.quiet {
		eng.Subscribe(notify.ListenerFunc(func(e notify.Event) {
			printTransition(out, e)
		}))
	}

	result, err := eng.Execute(cmd.Context())
	if err != nil {
		return err
	}

	if !opts.quiet {
		fmt.Fprintln(out)
	}
	if err := plan.Render(out, plan.Rows(result.Order, eng.Details())); err != nil {
		return err
	}
	fmt.Fprintln(out)
	if err := plan.RenderStats(out, result.Stats); err != nil {
		return err
	}

	switch result.Outcome {
	case engine.OutcomeCancelled:
		return fmt.Errorf("run %s: %w", result.RunID, cmd.Context().Err())
	case engine.OutcomeDeadlocked:
		return fmt.Errorf("%w: unresolved %v", ErrDeadlocked, result.Unresolved)
	}
	if result.Stats.Unsuccessful() > 0 {
		return fmt.Errorf("%w: %d failed, %d skipped", ErrUnsuccessful, result.Stats.Failed, result.Stats.Skipped)
	}

	return nil
}

func printTransition(w io.Writer, e notify.Event) {
	switch {
	case e.Status == task.StatusSkipped:
		fmt.Fprintf(w, "%s %-9s (due to %s)\n", e.TaskID, e.Status, e.SkippedDueTo)
	case e.Status == task.StatusFailed:
		fmt.Fprintf(w, "%s %-9s (after %d attempts)\n", e.TaskID, e.Status, e.RetryCount)
	case e.RetryCount > 0:
		fmt.Fprintf(w, "%s %-9s (retry %d)\n", e.TaskID, e.Status, e.RetryCount)
	default:
		fmt.Fprintf(w, "%s %s\n", e.TaskID, e.Status)
	}
}
