package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrison/maestro/internal/config"
	"github.com/harrison/maestro/internal/trace"
)

// NewRunsCommand creates the runs command for inspecting recorded runs
func NewRunsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List recorded workflow runs, or show one run's history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadTraceConfig(cmd)
			if err != nil {
				return err
			}
			store, err := trace.NewStore(cfg.TraceDB)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 1 {
				return showRun(cmd, store, args[0])
			}
			limit, _ := cmd.Flags().GetInt("limit")
			return listRuns(cmd, store, limit)
		},
	}

	cmd.Flags().String("config", "", "Path to config file (default: .maestro/config.yaml)")
	cmd.Flags().Int("limit", 20, "Maximum number of runs to list")
	return cmd
}

func loadTraceConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		return config.LoadConfig(configPath)
	}
	return config.LoadConfigFromDir(".")
}

func listRuns(cmd *cobra.Command, store *trace.Store, limit int) error {
	runs, err := store.ListRuns(limit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "no recorded runs")
		return nil
	}
	for _, r := range runs {
		line := fmt.Sprintf("%s  %s  %-9s  %s",
			r.StartedAt.Format(time.DateTime), r.RunID, r.Phase, r.OriginalRequest)
		if r.FailureReason != "" {
			line += " (" + r.FailureReason + ")"
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

func showRun(cmd *cobra.Command, store *trace.Store, runID string) error {
	snap, err := store.LoadRun(runID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s (%s): %s\n", snap.RunID, snap.Phase, snap.OriginalRequest)
	if snap.FailureReason != "" {
		fmt.Fprintf(out, "failure: %s\n", snap.FailureReason)
	}
	for _, r := range snap.History {
		fmt.Fprintf(out, "  %-9s %s attempt %d confidence %.2f: %s\n",
			r.Status, r.TaskID, r.Metadata.Attempt, r.Confidence, firstLine(r.Output))
	}
	for i, rp := range snap.Replans {
		fmt.Fprintf(out, "  replan %d: %s\n", i+1, rp.Reason)
	}
	return nil
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
