package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for maestro
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maestro",
		Short: "Natural-language workflow engine for development tasks",
		Long: `Maestro turns a natural-language request into a plan of concrete
development tasks (code generation, edits, test generation, git operations)
and executes it through the Claude Code CLI.

Failed tasks are classified, retried with enriched context, and when the
current approach keeps failing the whole plan is regenerated.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewRunsCommand())

	return cmd
}
