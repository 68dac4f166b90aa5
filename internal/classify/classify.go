// Package classify turns raw task failures into typed, categorized
// error feedback. Classification is pure: it inspects text and validation
// diagnostics, recommends a retry strategy, and never executes any
// corrective action itself.
package classify

import (
	"regexp"
	"strings"

	"github.com/harrison/maestro/internal/models"
)

// lineMarker matches syntax-style positions such as "line 12" or
// "main.py 14:3". A bare line:col pair only counts when it follows a
// file extension, so clock times in messages do not read as positions.
var lineMarker = regexp.MustCompile(`(?i)\b(?:line|column|col)\s+\d+\b|\.[a-z0-9_]+[:\s]+\d+:\d+\b`)

// Rule order matters: the first matching category wins, so the more
// specific categories (configuration, syntax, import) are checked before
// the catch-all transient/unknown buckets.
var (
	configurationTokens = []string{
		"unsupported task type", "no agent registered", "missing required context",
		"invalid configuration",
	}
	syntaxTokens = []string{
		"syntax", "unexpected token", "unterminated string", "unclosed",
		"invalid character", "parse error",
	}
	importTokens = []string{
		"import", "module not found", "no module named", "cannot find package",
		"unresolved dependency", "package not found", "undefined:",
	}
	permissionTokens = []string{
		"permission denied", "access denied", "operation not permitted", "read-only file system",
	}
	filesystemTokens = []string{
		"no such file", "file does not exist", "does not exist", "not found in directory",
		"missing path", "directory not found",
	}
	transientTokens = []string{
		"timeout", "timed out", "deadline exceeded", "connection refused",
		"connection reset", "temporarily unavailable", "rate limit", "overloaded",
	}
)

// Classify derives structured ErrorFeedback from a raw failure message,
// the failed task, its execution context, and the validation diagnostics
// of the failed attempt (nil when the attempt was never validated).
func Classify(failure string, task models.Task, taskCtx map[string]any, validation *models.ValidationResult) models.ErrorFeedback {
	feedback := models.ErrorFeedback{
		Message:      failure,
		FailedTaskID: task.ID,
		Context:      snapshotContext(taskCtx),
	}

	text := strings.ToLower(failure)

	switch {
	case containsAny(text, configurationTokens):
		feedback.Category = models.ErrorConfiguration
		feedback.RetryRecommended = false
		feedback.SuggestedFixes = []string{"fix the plan or the agent registry; re-executing cannot resolve this"}

	case isSyntaxFailure(text, validation):
		feedback.Category = models.ErrorSyntax
		feedback.RetryRecommended = true
		feedback.SuggestedFixes = []string{"enable stricter validation and auto-correction on retry"}

	case containsAny(text, importTokens):
		feedback.Category = models.ErrorImport
		feedback.RetryRecommended = true
		feedback.SuggestedFixes = []string{"verify dependency availability before regenerating"}

	case containsAny(text, permissionTokens):
		feedback.Category = models.ErrorPermission
		feedback.RetryRecommended = false
		feedback.SuggestedFixes = []string{"fix file permissions or run with sufficient privileges"}

	case containsAny(text, filesystemTokens):
		feedback.Category = models.ErrorFilesystem
		feedback.RetryRecommended = true
		feedback.SuggestedFixes = []string{"create missing parent directories before writing"}

	case containsAny(text, transientTokens):
		feedback.Category = models.ErrorTransient
		feedback.RetryRecommended = true
		feedback.SuggestedFixes = []string{"retry after a short delay"}

	default:
		feedback.Category = models.ErrorUnknown
		feedback.RetryRecommended = false
	}

	return feedback
}

// isSyntaxFailure checks the failure text and, when present, the
// validation diagnostics for syntax-level signals.
func isSyntaxFailure(text string, validation *models.ValidationResult) bool {
	if containsAny(text, syntaxTokens) {
		return true
	}
	if validation != nil && !validation.Valid {
		for _, issue := range validation.Errors {
			if issue.Kind == "syntax" {
				return true
			}
		}
	}
	// Bare line/column markers without a named category read as compiler
	// or parser output.
	return lineMarker.MatchString(text)
}

func containsAny(text string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(text, token) {
			return true
		}
	}
	return false
}

func snapshotContext(taskCtx map[string]any) map[string]any {
	if taskCtx == nil {
		return nil
	}
	snapshot := make(map[string]any, len(taskCtx))
	for k, v := range taskCtx {
		snapshot[k] = v
	}
	return snapshot
}
