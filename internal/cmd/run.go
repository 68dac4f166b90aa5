package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrison/maestro/internal/agent"
	"github.com/harrison/maestro/internal/config"
	"github.com/harrison/maestro/internal/executor"
	"github.com/harrison/maestro/internal/llm"
	"github.com/harrison/maestro/internal/logger"
	"github.com/harrison/maestro/internal/models"
	"github.com/harrison/maestro/internal/planner"
	"github.com/harrison/maestro/internal/trace"
	"github.com/harrison/maestro/internal/workflow"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [request]",
		Short: "Execute a natural-language request or a plan file",
		Long: `Run plans and executes development tasks.

With a request argument, the planner asks the model for a task breakdown:

  maestro run "add input validation to the signup handler"

With --plan, a hand-written markdown plan file is executed instead:

  maestro run --plan plan.md`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCommand,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .maestro/config.yaml)")
	cmd.Flags().String("plan", "", "Execute a markdown plan file instead of planning from a request")
	cmd.Flags().Bool("dry-run", false, "Show the plan without executing tasks")
	cmd.Flags().String("timeout", "", "Per-task execution budget (e.g. 90s, 5m)")
	cmd.Flags().Int("max-retries", -1, "Retry budget per task (-1 = use config)")
	cmd.Flags().Bool("strict", false, "Treat validation warnings as errors")
	cmd.Flags().Bool("no-auto-correct", false, "Disable the correction round-trip on validation failure")
	cmd.Flags().String("log-level", "", "Logging verbosity (debug, info, warn, error)")
	cmd.Flags().Bool("no-trace", false, "Do not record this run in the trace database")

	return cmd
}

func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	planPath, _ := cmd.Flags().GetString("plan")
	if len(args) == 0 && planPath == "" {
		return fmt.Errorf("provide a request argument or --plan <file>")
	}

	log := logger.NewConsoleLogger(os.Stdout, cfg.LogLevel)

	client := &llm.Client{
		BinPath:      cfg.LLM.Bin,
		Timeout:      cfg.CallTimeout,
		SystemPrompt: cfg.LLM.SystemPrompt,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var plan *models.Plan
	llmPlanner := planner.NewLLMPlanner(client)
	if planPath != "" {
		plan, err = planner.NewMarkdownPlanner().Load(planPath)
		if err != nil {
			return err
		}
	} else {
		log.Infof("planning: %s", args[0])
		plan, err = llmPlanner.Plan(ctx, args[0], nil)
		if err != nil {
			return err
		}
	}

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		printPlan(cmd, plan)
		return nil
	}

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to determine working directory: %w", err)
	}

	registry := agent.NewRegistry(
		agent.NewCodeAgent(client),
		agent.NewGitAgent(client, workDir),
		agent.NewChatAgent(client),
	)

	exec := executor.New(registry, client, executor.Config{
		AutoCorrect:       cfg.AutoCorrect,
		StrictValidation:  cfg.StrictValidation,
		PenaltyPerWarning: cfg.PenaltyPerWarning,
		PenaltyPerRetry:   cfg.PenaltyPerRetry,
		CallTimeout:       cfg.CallTimeout,
	})

	retry := &workflow.RetryController{MaxRetries: cfg.MaxRetries}
	replan := &workflow.ReplanController{
		ConfidenceThreshold: cfg.ReplanConfidence,
		Window:              cfg.ConfidenceWindow,
		CountNonBlocking:    cfg.CountNonBlockingFailures,
	}

	machine := workflow.New(exec, retry, replan, workflow.Config{
		StepBudget:       cfg.StepBudget,
		MaxReplans:       cfg.MaxReplans,
		AcceptConfidence: cfg.AcceptConfidence,
		SnapshotDir:      cfg.RunDir,
	})
	machine.SetPlanner(llmPlanner)
	machine.SetLogger(log)

	noTrace, _ := cmd.Flags().GetBool("no-trace")
	if !noTrace && cfg.TraceDB != "" {
		store, err := trace.NewStore(cfg.TraceDB)
		if err != nil {
			log.Warnf("trace database unavailable: %v", err)
		} else {
			defer store.Close()
			machine.SetSink(store)
		}
	}

	result, err := machine.Run(ctx, plan)
	if err != nil {
		return err
	}
	if !result.Succeeded() {
		return fmt.Errorf("workflow failed: %s", result.FailureReason)
	}
	return nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadConfig(configPath)
	} else {
		cfg, err = config.LoadConfigFromDir(".")
	}
	if err != nil {
		return nil, err
	}

	var timeout *time.Duration
	if cmd.Flags().Changed("timeout") {
		raw, _ := cmd.Flags().GetString("timeout")
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", raw, err)
		}
		timeout = &d
	}
	var maxRetries *int
	if cmd.Flags().Changed("max-retries") {
		v, _ := cmd.Flags().GetInt("max-retries")
		maxRetries = &v
	}
	var strict *bool
	if cmd.Flags().Changed("strict") {
		v, _ := cmd.Flags().GetBool("strict")
		strict = &v
	}
	var autoCorrect *bool
	if cmd.Flags().Changed("no-auto-correct") {
		v, _ := cmd.Flags().GetBool("no-auto-correct")
		enabled := !v
		autoCorrect = &enabled
	}
	var logLevel *string
	if cmd.Flags().Changed("log-level") {
		v, _ := cmd.Flags().GetString("log-level")
		logLevel = &v
	}

	cfg.MergeWithFlags(timeout, maxRetries, strict, autoCorrect, logLevel)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func printPlan(cmd *cobra.Command, plan *models.Plan) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "plan %s: %d tasks\n", plan.ID, len(plan.Tasks))
	for _, task := range plan.Tasks {
		blocking := "blocking"
		if !task.Blocking {
			blocking = "non-blocking"
		}
		fmt.Fprintf(out, "  %s [%s, %s] %s\n", task.ID, task.Type, blocking, task.Description)
		if len(task.DependsOn) > 0 {
			fmt.Fprintf(out, "    depends on: %v\n", task.DependsOn)
		}
	}
}
