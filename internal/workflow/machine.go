package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harrison/maestro/internal/classify"
	"github.com/harrison/maestro/internal/models"
)

// Runner executes a single attempt of one task. Implementations report every
// failure through the returned result, never through a panic.
type Runner interface {
	Execute(ctx context.Context, task models.Task, taskCtx map[string]any, attempt int) models.TaskResult
}

// Planner produces a fresh plan for a request, informed by the attempt
// history of the approaches that already failed.
type Planner interface {
	Plan(ctx context.Context, request string, history []models.TaskResult) (*models.Plan, error)
}

// Logger receives workflow progress events. All methods must tolerate being
// called from a single goroutine only.
type Logger interface {
	LogWorkflowStart(runID string, taskCount int)
	LogTaskStart(task models.Task, attempt int)
	LogTaskComplete(result models.TaskResult)
	LogTaskFail(result models.TaskResult, category models.ErrorCategory)
	LogRetry(taskID string, attempt, max int, category models.ErrorCategory)
	LogReplan(reason string, count int)
	LogSummary(result models.WorkflowResult)
}

// Sink receives the terminal snapshot of a run for persistence.
type Sink interface {
	SaveRun(snap Snapshot) error
}

// Config tunes workflow-level policy.
type Config struct {
	// StepBudget caps the total number of task attempts in one run.
	StepBudget int
	// MaxReplans caps how many times the run may abandon its plan.
	MaxReplans int
	// AcceptConfidence is the floor below which a successful result still
	// triggers a replan evaluation.
	AcceptConfidence float64
	// SnapshotDir receives the terminal run snapshot; empty disables.
	SnapshotDir string
}

// DefaultConfig returns the standard workflow policy.
func DefaultConfig() Config {
	return Config{
		StepBudget:       50,
		MaxReplans:       2,
		AcceptConfidence: 0.8,
	}
}

// Machine sequences a plan through execution, classification, retry, and
// replanning until the run reaches a terminal phase. A Machine drives
// exactly one run; create a new one per plan.
type Machine struct {
	runner  Runner
	retry   *RetryController
	replan  *ReplanController
	planner Planner
	logger  Logger
	sink    Sink
	cfg     Config
	state   *State
	now     func() time.Time
}

// New creates a workflow machine. planner, logger, and sink may be nil:
// without a planner every replan decision degrades to terminal failure,
// without a logger the run is silent, without a sink nothing is persisted
// beyond the snapshot file.
func New(runner Runner, retry *RetryController, replan *ReplanController, cfg Config) *Machine {
	return &Machine{
		runner: runner,
		retry:  retry,
		replan: replan,
		cfg:    cfg,
		now:    time.Now,
	}
}

// SetPlanner wires the planner used for replanning.
func (m *Machine) SetPlanner(p Planner) { m.planner = p }

// SetLogger wires progress logging.
func (m *Machine) SetLogger(l Logger) { m.logger = l }

// SetSink wires run persistence.
func (m *Machine) SetSink(s Sink) { m.sink = s }

// State exposes the run state, primarily for inspection after Run returns.
func (m *Machine) State() *State { return m.state }

// Run executes the plan to a terminal phase. The returned error covers only
// misuse (nil or invalid plan, reusing a finished machine); failures of the
// workflow itself are reported through WorkflowResult.FailureReason.
func (m *Machine) Run(ctx context.Context, plan *models.Plan) (*models.WorkflowResult, error) {
	if m.state != nil {
		return nil, fmt.Errorf("workflow machine already ran %s; create a new machine per run", m.state.RunID)
	}
	if plan == nil {
		return nil, fmt.Errorf("nil plan")
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}

	m.state = NewState(plan)
	m.state.Phase = PhaseRunning
	m.state.StartedAt = m.now()
	if m.logger != nil {
		m.logger.LogWorkflowStart(m.state.RunID, len(plan.Tasks))
	}

	m.execute(ctx)

	m.state.CompletedAt = m.now()
	result := m.summarize()
	if m.logger != nil {
		m.logger.LogSummary(*result)
	}
	m.persist()
	return result, nil
}

// execute walks the plan task by task, restarting from the top whenever a
// replan swaps the task list. It mutates m.state to a terminal phase.
func (m *Machine) execute(ctx context.Context) {
	steps := 0
	i := 0
	// Per-task enrichment contexts survive retries but not replans.
	contexts := make(map[string]map[string]any)

	for i < len(m.state.Plan.Tasks) {
		task := m.state.Plan.Tasks[i]

		if err := ctx.Err(); err != nil {
			m.terminate("cancelled", i)
			return
		}
		if done := m.state.CurrentResult(task.ID); done != nil && done.Status.Terminal() && done.Success {
			i++
			continue
		}
		if skipReason := m.dependencyFailure(task); skipReason != "" {
			m.skip(task, skipReason)
			i++
			continue
		}

		steps++
		if m.cfg.StepBudget > 0 && steps > m.cfg.StepBudget {
			m.terminate(fmt.Sprintf("step budget of %d attempts exceeded", m.cfg.StepBudget), i)
			return
		}

		taskCtx := contexts[task.ID]
		if taskCtx == nil {
			taskCtx = copyContext(task.Context)
			contexts[task.ID] = taskCtx
		}
		attempt := m.state.RetryCount(task.ID)
		if m.logger != nil {
			m.logger.LogTaskStart(task, attempt)
		}

		result := m.runner.Execute(ctx, task, taskCtx, attempt)
		m.state.Append(result)

		if result.Success {
			if m.logger != nil {
				m.logger.LogTaskComplete(result)
			}
			if result.Confidence < m.cfg.AcceptConfidence {
				if decision := m.replan.Decide(m.state, task, nil, false); decision.ShouldReplan {
					if m.tryReplan(ctx, decision, task.ID) {
						i = 0
						contexts = make(map[string]map[string]any)
						continue
					}
				}
			}
			i++
			continue
		}

		fb := classify.Classify(result.Output, task, taskCtx, result.LatestValidation())
		m.state.RecordFeedback(task.ID, fb)
		if m.logger != nil {
			m.logger.LogTaskFail(result, fb.Category)
		}

		if rd := m.retry.Decide(m.state, task, taskCtx, fb); rd.Retry {
			contexts[task.ID] = rd.Context
			if m.logger != nil {
				m.logger.LogRetry(task.ID, m.state.RetryCount(task.ID), m.retry.MaxRetries, fb.Category)
			}
			continue
		}

		exhausted := m.state.RetryCount(task.ID) >= m.retry.MaxRetries
		if decision := m.replan.Decide(m.state, task, &fb, exhausted); decision.ShouldReplan {
			if m.tryReplan(ctx, decision, task.ID) {
				i = 0
				contexts = make(map[string]map[string]any)
				continue
			}
		}

		if task.Blocking {
			m.terminate(fmt.Sprintf("blocking task %s failed: %s", task.ID, fb.Message), i+1)
			return
		}
		i++
	}

	m.state.Phase = PhaseCompleted
}

// tryReplan asks the planner for a replacement plan. It reports false when
// replanning is unavailable or the budget is spent, leaving the caller to
// fall through to its failure handling.
func (m *Machine) tryReplan(ctx context.Context, decision models.ReplanDecision, failedTaskID string) bool {
	if m.planner == nil || m.state.ReplanCount() >= m.cfg.MaxReplans {
		return false
	}

	request := fmt.Sprintf("%s\n\nThe previous plan did not work out: %s. Produce a different approach.",
		m.state.OriginalRequest, decision.Reason)
	plan, err := m.planner.Plan(ctx, request, m.state.History())
	if err != nil {
		return false
	}
	if err := plan.Validate(); err != nil {
		return false
	}

	m.state.AdoptPlan(plan, ReplanRecord{
		At:           m.now(),
		Reason:       decision.Reason,
		Confidence:   decision.Confidence,
		FailedTaskID: failedTaskID,
	})
	if m.logger != nil {
		m.logger.LogReplan(decision.Reason, m.state.ReplanCount())
	}
	return true
}

// dependencyFailure returns a skip reason when any dependency of the task
// ended in failure or was itself skipped.
func (m *Machine) dependencyFailure(task models.Task) string {
	for _, dep := range task.DependsOn {
		r := m.state.CurrentResult(dep)
		if r == nil {
			continue
		}
		if r.Status == models.StatusFailed || r.Status == models.StatusSkipped {
			return fmt.Sprintf("dependency %s did not complete", dep)
		}
	}
	return ""
}

// skip records a skipped attempt without invoking the runner.
func (m *Machine) skip(task models.Task, reason string) {
	now := m.now()
	m.state.Append(models.TaskResult{
		ID:          uuid.New().String(),
		TaskID:      task.ID,
		Status:      models.StatusSkipped,
		Output:      reason,
		StartedAt:   now,
		CompletedAt: now,
	})
}

// terminate fails the run and marks every remaining unfinished task skipped.
func (m *Machine) terminate(reason string, from int) {
	m.state.Phase = PhaseFailed
	m.state.FailureReason = reason
	for _, task := range m.state.Plan.Tasks[min(from, len(m.state.Plan.Tasks)):] {
		if r := m.state.CurrentResult(task.ID); r != nil && r.Status.Terminal() {
			continue
		}
		m.skip(task, "workflow terminated: "+reason)
	}
}

// summarize builds the run summary from the latest result of each task in
// the final plan.
func (m *Machine) summarize() *models.WorkflowResult {
	out := &models.WorkflowResult{
		RunID:         m.state.RunID,
		TotalTasks:    len(m.state.Plan.Tasks),
		Replans:       m.state.ReplanCount(),
		Duration:      m.state.CompletedAt.Sub(m.state.StartedAt),
		FailureReason: m.state.FailureReason,
	}
	var confSum float64
	for _, task := range m.state.Plan.Tasks {
		r := m.state.CurrentResult(task.ID)
		if r == nil {
			out.Skipped++
			continue
		}
		switch r.Status {
		case models.StatusSucceeded:
			out.Completed++
			confSum += r.Confidence
		case models.StatusFailed:
			out.Failed++
			out.FailedTasks = append(out.FailedTasks, *r)
		case models.StatusSkipped:
			out.Skipped++
		}
	}
	if out.Completed > 0 {
		out.AverageConfidence = confSum / float64(out.Completed)
	}
	return out
}

// persist writes the terminal snapshot to disk and hands it to the sink.
// Persistence failures never fail the run.
func (m *Machine) persist() {
	snap := m.state.Snapshot()
	if m.cfg.SnapshotDir != "" {
		_, _ = SaveSnapshot(m.cfg.SnapshotDir, snap)
	}
	if m.sink != nil {
		_ = m.sink.SaveRun(snap)
	}
}

func copyContext(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
