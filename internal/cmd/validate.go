package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrison/maestro/internal/planner"
)

// NewValidateCommand creates the validate command
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <plan-file>",
		Short: "Parse and validate a markdown plan file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := planner.NewMarkdownPlanner().Load(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "plan is valid: %d tasks\n", len(plan.Tasks))
			printPlan(cmd, plan)
			return nil
		},
	}
}
