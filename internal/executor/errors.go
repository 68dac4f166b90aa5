package executor

import (
	"errors"
	"fmt"
	"time"
)

// TaskError wraps a failure that occurred while executing a single task.
type TaskError struct {
	TaskID string
	Phase  string
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s failed during %s: %v", e.TaskID, e.Phase, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// NewTaskError creates a TaskError for the given task and phase.
func NewTaskError(taskID, phase string, err error) *TaskError {
	return &TaskError{TaskID: taskID, Phase: phase, Err: err}
}

// TimeoutError indicates a task exceeded its allotted execution time.
type TimeoutError struct {
	TaskID  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task %s timed out after %s", e.TaskID, e.Timeout)
}

// ConfigurationError indicates the task could not be dispatched at all:
// an unsupported type, a missing agent, or required context that was
// never supplied. These are not retryable.
type ConfigurationError struct {
	TaskID string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("task %s misconfigured: %s", e.TaskID, e.Reason)
}

// IsTimeout reports whether err is or wraps a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsConfiguration reports whether err is or wraps a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
