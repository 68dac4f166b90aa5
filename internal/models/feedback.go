package models

// ErrorCategory classifies why a task execution failed.
// Categories decide retry and replan behaviour: configuration and
// permission errors are never retried, transient errors always are.
type ErrorCategory string

const (
	ErrorSyntax        ErrorCategory = "syntax"
	ErrorImport        ErrorCategory = "import"
	ErrorFilesystem    ErrorCategory = "filesystem"
	ErrorPermission    ErrorCategory = "permission"
	ErrorConfiguration ErrorCategory = "configuration"
	ErrorTransient     ErrorCategory = "transient"
	ErrorUnknown       ErrorCategory = "unknown"
)

// Recoverable reports whether a failure of this category can in principle
// be fixed by re-executing with enriched context.
func (c ErrorCategory) Recoverable() bool {
	return c != ErrorPermission && c != ErrorConfiguration
}

// ErrorFeedback is the structured, categorized description of a task
// failure. It is derived deterministically from a failed TaskResult and
// never mutated; the classifier only recommends, it never acts.
type ErrorFeedback struct {
	Category         ErrorCategory  `json:"category"`
	Message          string         `json:"message"`
	FailedTaskID     string         `json:"failed_task_id"`
	Context          map[string]any `json:"context,omitempty"` // Snapshot of the enriched context at failure time
	SuggestedFixes   []string       `json:"suggested_fixes,omitempty"`
	RetryRecommended bool           `json:"retry_recommended"`
}

// ReplanDecision records the outcome of one replan evaluation point.
type ReplanDecision struct {
	ShouldReplan bool    `json:"should_replan"`
	Reason       string  `json:"reason"`
	Confidence   float64 `json:"confidence"` // Rolling confidence at decision time
}
