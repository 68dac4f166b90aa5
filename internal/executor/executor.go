// Package executor runs individual plan tasks through the agent registry
// and turns every outcome, including panics and timeouts, into a TaskResult.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harrison/maestro/internal/agent"
	"github.com/harrison/maestro/internal/llm"
	"github.com/harrison/maestro/internal/models"
	"github.com/harrison/maestro/internal/validate"
)

// Config tunes per-task execution behavior.
type Config struct {
	AutoCorrect       bool          // Attempt one correction round-trip on validation failure
	StrictValidation  bool          // Treat validation warnings as errors
	PenaltyPerWarning float64       // Confidence deduction per validation warning
	PenaltyPerRetry   float64       // Confidence deduction per consumed retry
	CallTimeout       time.Duration // Per-task execution budget; 0 disables
}

// DefaultConfig returns executor settings matching the standard workflow
// defaults.
func DefaultConfig() Config {
	return Config{
		AutoCorrect:       true,
		StrictValidation:  false,
		PenaltyPerWarning: 0.1,
		PenaltyPerRetry:   0.2,
		CallTimeout:       2 * time.Minute,
	}
}

// TaskExecutor dispatches tasks to agents, validates produced content,
// and optionally runs one auto-correction round-trip before reporting.
type TaskExecutor struct {
	registry  *agent.Registry
	generator llm.Generator
	cfg       Config
	now       func() time.Time
}

// New creates a TaskExecutor backed by the given registry and generator.
func New(registry *agent.Registry, generator llm.Generator, cfg Config) *TaskExecutor {
	return &TaskExecutor{
		registry:  registry,
		generator: generator,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Execute runs a single attempt of one task. It never returns an error and
// never panics: every failure mode, including agent panics and timeouts, is
// reported through the returned TaskResult. attempt is the number of retries
// already consumed (0 on the first try).
func (e *TaskExecutor) Execute(ctx context.Context, task models.Task, taskCtx map[string]any, attempt int) (result models.TaskResult) {
	started := e.now()
	result = models.TaskResult{
		ID:        uuid.New().String(),
		TaskID:    task.ID,
		Status:    models.StatusRunning,
		StartedAt: started,
		Metadata: models.ResultMetadata{
			Attempt: attempt,
		},
	}

	defer func() {
		if r := recover(); r != nil {
			result.Status = models.StatusFailed
			result.Success = false
			result.Confidence = 0
			result.Output = fmt.Sprintf("internal error: panic during execution: %v", r)
		}
		result.CompletedAt = e.now()
		result.Metadata.Duration = result.CompletedAt.Sub(result.StartedAt)
	}()

	if e.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()
	}

	ag, err := e.registry.ForTask(task.Type)
	if err != nil {
		ce := &ConfigurationError{TaskID: task.ID, Reason: err.Error()}
		return e.fail(result, ce.Error())
	}
	result.Metadata.Agent = string(ag.Kind())

	agentResult, err := ag.Handle(ctx, task, taskCtx)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			te := &TimeoutError{TaskID: task.ID, Timeout: e.cfg.CallTimeout}
			return e.fail(result, te.Error())
		}
		return e.fail(result, NewTaskError(task.ID, "execute", err).Error())
	}
	if !agentResult.Success {
		output := agentResult.Output
		if agentResult.Diagnostics != "" {
			output = output + "\n" + agentResult.Diagnostics
		}
		return e.fail(result, output)
	}

	result.Output = agentResult.Output
	result.Metadata.Filename = agentResult.Filename

	if task.Type.ProducesCode() && agentResult.Content != "" {
		if failed := e.validateAndCorrect(ctx, task, taskCtx, ag, agentResult, &result); failed {
			return result
		}
	}

	result.Status = models.StatusSucceeded
	result.Success = true
	result.Confidence = e.confidence(&result, attempt)
	return result
}

// validateAndCorrect runs the validation adapter over generated content and,
// when enabled, a single corrective round-trip through the generator. It
// reports true when the attempt must be marked failed.
func (e *TaskExecutor) validateAndCorrect(ctx context.Context, task models.Task, taskCtx map[string]any, ag agent.Agent, agentResult *agent.Result, result *models.TaskResult) bool {
	kind := validate.KindFromFilename(agentResult.Filename)
	vr := validate.Validate(agentResult.Content, kind)
	result.Validations = append(result.Validations, vr)
	if e.accepted(vr) {
		return false
	}
	result.Metadata.ValidationFailures++

	if !e.autoCorrectEnabled(taskCtx) || e.generator == nil {
		e.failValidation(result, vr)
		return true
	}

	result.Metadata.CorrectionAttempted = true
	corrected, err := e.generator.Complete(ctx, correctionPrompt(task, agentResult, vr))
	if err != nil {
		e.failValidation(result, vr)
		return true
	}
	corrected = agent.SanitizeResponse(corrected)

	fixed := validate.Validate(corrected, kind)
	result.Validations = append(result.Validations, fixed)
	if !e.accepted(fixed) {
		result.Metadata.ValidationFailures++
		e.failValidation(result, fixed)
		return true
	}

	if ca, ok := ag.(*agent.CodeAgent); ok && agentResult.Filename != "" {
		if err := ca.Rewrite(agentResult.Filename, corrected, taskCtx); err != nil {
			*result = e.fail(*result, NewTaskError(task.ID, "correction", err).Error())
			return true
		}
	}
	agentResult.Content = corrected
	result.Output = fmt.Sprintf("%s (corrected after validation failure)", result.Output)
	return false
}

// accepted reports whether a validation result is good enough to keep the
// attempt alive under the current strictness setting.
func (e *TaskExecutor) accepted(vr models.ValidationResult) bool {
	if !vr.Valid {
		return false
	}
	if e.cfg.StrictValidation && len(vr.Warnings) > 0 {
		return false
	}
	return true
}

func (e *TaskExecutor) autoCorrectEnabled(taskCtx map[string]any) bool {
	if e.cfg.AutoCorrect {
		return true
	}
	v, ok := taskCtx[agent.CtxAutoCorrect].(bool)
	return ok && v
}

func (e *TaskExecutor) fail(result models.TaskResult, output string) models.TaskResult {
	result.Status = models.StatusFailed
	result.Success = false
	result.Confidence = 0
	result.Output = output
	return result
}

// failValidation marks the attempt failed with the first validation error as
// the failure description, so the classifier sees the underlying diagnostic.
func (e *TaskExecutor) failValidation(result *models.TaskResult, vr models.ValidationResult) {
	msg := "validation failed"
	if len(vr.Errors) > 0 {
		issue := vr.Errors[0]
		if issue.Location != "" {
			msg = fmt.Sprintf("%s error at %s: %s", issue.Kind, issue.Location, issue.Message)
		} else {
			msg = fmt.Sprintf("%s error: %s", issue.Kind, issue.Message)
		}
	} else if len(vr.Warnings) > 0 {
		msg = fmt.Sprintf("validation failed under strict mode: %s", vr.Warnings[0].Message)
	}
	*result = e.fail(*result, msg)
}

// confidence scores a successful attempt: a clean first try is 1.0, and each
// validation warning and each consumed retry lowers trust in the output.
func (e *TaskExecutor) confidence(result *models.TaskResult, attempt int) float64 {
	score := 1.0
	if v := result.LatestValidation(); v != nil {
		score -= e.cfg.PenaltyPerWarning * float64(len(v.Warnings))
	}
	score -= e.cfg.PenaltyPerRetry * float64(attempt)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func correctionPrompt(task models.Task, agentResult *agent.Result, vr models.ValidationResult) string {
	var sb strings.Builder
	sb.WriteString("The following generated content failed validation. Fix the reported problems and return the complete corrected content only, with no explanation and no markdown fences.\n\n")
	fmt.Fprintf(&sb, "Task: %s\n", task.Description)
	if agentResult.Filename != "" {
		fmt.Fprintf(&sb, "File: %s\n", agentResult.Filename)
	}
	sb.WriteString("\nProblems:\n")
	for _, issue := range vr.Errors {
		if issue.Location != "" {
			fmt.Fprintf(&sb, "- %s (%s): %s\n", issue.Kind, issue.Location, issue.Message)
		} else {
			fmt.Fprintf(&sb, "- %s: %s\n", issue.Kind, issue.Message)
		}
	}
	for _, issue := range vr.Warnings {
		fmt.Fprintf(&sb, "- warning: %s\n", issue.Message)
	}
	sb.WriteString("\nContent:\n")
	sb.WriteString(agentResult.Content)
	return sb.String()
}
