package cli

import (
	"fmt"

	"github.com/nadmax/nexdag/internal/engine"
	"github.com/nadmax/nexdag/internal/plan"
	"github.com/spf13/cobra"
)

func newOrderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "order <plan>",
		Short: "Print the execution order of a plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := loadEngine(args[0])
			if err != nil {
				return err
			}

			order, err := eng.Order()
			if err != nil {
				return err
			}

			rows := plan.Rows(order, eng.Details())
			return plan.Render(cmd.OutOrStdout(), rows)
		},
	}
}

func loadEngine(path string, opts ...engine.Option) (*engine.Engine, error) {
	f, err := plan.Load(path)
	if err != nil {
		return nil, err
	}

	eng := engine.New(nil, opts...)
	if err := plan.Apply(eng, f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return eng, nil
}
