package workflow

import (
	"github.com/harrison/maestro/internal/agent"
	"github.com/harrison/maestro/internal/models"
)

// RetryController decides whether a failed task gets another attempt and
// with what additional context.
type RetryController struct {
	MaxRetries int
}

// RetryDecision is the outcome of one retry evaluation. Context is the
// enriched task context for the next attempt; it always contains everything
// from the previous attempt.
type RetryDecision struct {
	Retry   bool
	Context map[string]any
}

// Decide evaluates classified feedback against the remaining retry budget.
// A positive decision consumes one retry from the state. Context enrichment
// is strictly additive: each retry carries every key of the attempt before
// it, plus whatever the error category calls for.
func (c *RetryController) Decide(state *State, task models.Task, taskCtx map[string]any, fb models.ErrorFeedback) RetryDecision {
	if !fb.RetryRecommended || !fb.Category.Recoverable() {
		return RetryDecision{Context: taskCtx}
	}
	if state.RetryCount(task.ID) >= c.MaxRetries {
		return RetryDecision{Context: taskCtx}
	}

	enriched := make(map[string]any, len(taskCtx)+4)
	for k, v := range taskCtx {
		enriched[k] = v
	}
	enriched["previous_error"] = fb.Message
	if len(fb.SuggestedFixes) > 0 {
		enriched["suggested_fixes"] = fb.SuggestedFixes
	}

	switch fb.Category {
	case models.ErrorSyntax:
		enriched[agent.CtxStrictValidation] = true
		enriched[agent.CtxAutoCorrect] = true
	case models.ErrorImport:
		enriched[agent.CtxVerifyDeps] = true
	case models.ErrorFilesystem:
		enriched[agent.CtxCreateParentDirs] = true
	}

	state.IncrementRetry(task.ID)
	return RetryDecision{Retry: true, Context: enriched}
}
