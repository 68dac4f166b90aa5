package models

import "time"

// TaskStatus tracks the lifecycle of one execution attempt.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusSucceeded TaskStatus = "succeeded"
	StatusFailed    TaskStatus = "failed"
	StatusSkipped   TaskStatus = "skipped"
)

// Terminal reports whether the status is final.
func (s TaskStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusSkipped
}

// ValidationIssue is a single diagnostic produced by the validation adapter.
type ValidationIssue struct {
	Kind     string `json:"kind"`     // syntax, structure, style
	Location string `json:"location"` // best-effort position, e.g. "line 12"
	Message  string `json:"message"`
}

// ValidationResult holds the diagnostics for one validation call.
// Values are never mutated after creation; re-validating identical content
// yields an identical result.
type ValidationResult struct {
	Valid       bool              `json:"valid"`
	Errors      []ValidationIssue `json:"errors,omitempty"`
	Warnings    []ValidationIssue `json:"warnings,omitempty"`
	Suggestions []string          `json:"suggestions,omitempty"`
}

// ResultMetadata captures execution details attached to a TaskResult.
type ResultMetadata struct {
	Agent               string        `json:"agent"`                // Agent kind that executed the task
	Attempt             int           `json:"attempt"`              // Retries consumed before this attempt (0 = first)
	Duration            time.Duration `json:"duration"`             // Wall-clock execution time
	CorrectionAttempted bool          `json:"correction_attempted"` // Whether an auto-correction round-trip ran
	ValidationFailures  int           `json:"validation_failures"`  // Validation failures seen during this attempt
	Filename            string        `json:"filename,omitempty"`   // Primary file the attempt produced or edited
}

// TaskResult is the outcome of one execution attempt of one task.
// Multiple results exist per task across retries; all are retained in the
// run history and the most recent is authoritative.
type TaskResult struct {
	ID          string             `json:"id"`      // Unique per attempt
	TaskID      string             `json:"task_id"` // The task that was executed
	Status      TaskStatus         `json:"status"`
	Success     bool               `json:"success"`
	Output      string             `json:"output"`     // Agent output, or failure description on error
	Confidence  float64            `json:"confidence"` // Heuristic trust score in [0,1]
	Validations []ValidationResult `json:"validations,omitempty"` // Ordered; most recent is authoritative
	Metadata    ResultMetadata     `json:"metadata"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt time.Time          `json:"completed_at"`
}

// LatestValidation returns the most recent validation result, or nil when
// the attempt was never validated.
func (r *TaskResult) LatestValidation() *ValidationResult {
	if len(r.Validations) == 0 {
		return nil
	}
	return &r.Validations[len(r.Validations)-1]
}

// WorkflowResult summarizes a complete workflow run.
type WorkflowResult struct {
	RunID             string        `json:"run_id"`
	TotalTasks        int           `json:"total_tasks"`
	Completed         int           `json:"completed"`
	Failed            int           `json:"failed"`
	Skipped           int           `json:"skipped"`
	Replans           int           `json:"replans"`
	Duration          time.Duration `json:"duration"`
	AverageConfidence float64       `json:"average_confidence"`
	FailedTasks       []TaskResult  `json:"failed_tasks,omitempty"`
	FailureReason     string        `json:"failure_reason,omitempty"`
}

// Succeeded reports whether the run completed without a workflow-level failure.
func (w *WorkflowResult) Succeeded() bool {
	return w.FailureReason == "" && w.Completed > 0
}
