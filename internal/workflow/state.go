// Package workflow drives plan execution: it owns the run state, the
// retry and replan policies, and the state machine that sequences tasks
// through agents until the plan completes or fails.
package workflow

import (
	"time"

	"github.com/google/uuid"

	"github.com/harrison/maestro/internal/models"
)

// Phase is the lifecycle stage of a workflow run.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseRunning   Phase = "running"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
)

// ReplanRecord captures one replanning event for the run history.
type ReplanRecord struct {
	At           time.Time `json:"at"`
	Reason       string    `json:"reason"`
	Confidence   float64   `json:"confidence"`
	FailedTaskID string    `json:"failed_task_id,omitempty"`
	NewPlanID    string    `json:"new_plan_id"`
}

// State holds everything accumulated during one workflow run. The result
// history is append-only: retries and replans add results, nothing removes
// or rewrites them.
type State struct {
	RunID           string
	OriginalRequest string
	Plan            *models.Plan
	Phase           Phase
	FailureReason   string
	StartedAt       time.Time
	CompletedAt     time.Time

	history  []models.TaskResult
	retries  map[string]int
	feedback map[string][]models.ErrorFeedback
	replans  []ReplanRecord
}

// NewState initializes run state for the given plan.
func NewState(plan *models.Plan) *State {
	return &State{
		RunID:           uuid.New().String(),
		OriginalRequest: plan.OriginalRequest,
		Plan:            plan,
		Phase:           PhaseIdle,
		retries:         make(map[string]int),
		feedback:        make(map[string][]models.ErrorFeedback),
	}
}

// Append records one task attempt outcome.
func (s *State) Append(result models.TaskResult) {
	s.history = append(s.history, result)
}

// History returns a copy of the full attempt history in execution order.
func (s *State) History() []models.TaskResult {
	out := make([]models.TaskResult, len(s.history))
	copy(out, s.history)
	return out
}

// CurrentResult returns the most recent attempt for a task, or nil when the
// task has not run yet.
func (s *State) CurrentResult(taskID string) *models.TaskResult {
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].TaskID == taskID {
			r := s.history[i]
			return &r
		}
	}
	return nil
}

// RetryCount returns how many retries the task has consumed.
func (s *State) RetryCount(taskID string) int {
	return s.retries[taskID]
}

// IncrementRetry consumes one retry for the task and returns the new count.
func (s *State) IncrementRetry(taskID string) int {
	s.retries[taskID]++
	return s.retries[taskID]
}

// RecordFeedback appends classified error feedback for a task.
func (s *State) RecordFeedback(taskID string, fb models.ErrorFeedback) {
	s.feedback[taskID] = append(s.feedback[taskID], fb)
}

// LastFeedback returns the most recent feedback for a task, or nil.
func (s *State) LastFeedback(taskID string) *models.ErrorFeedback {
	list := s.feedback[taskID]
	if len(list) == 0 {
		return nil
	}
	fb := list[len(list)-1]
	return &fb
}

// RollingConfidence averages the confidence of the most recent attempts.
// window bounds how many attempts are considered; countNonBlocking controls
// whether failures of non-blocking tasks drag the average down. With no
// eligible attempts the run is treated as fully trusted.
func (s *State) RollingConfidence(window int, countNonBlocking bool) float64 {
	if window <= 0 {
		window = len(s.history)
	}
	var sum float64
	var n int
	for i := len(s.history) - 1; i >= 0 && n < window; i-- {
		r := s.history[i]
		if !r.Success && !countNonBlocking && !s.taskBlocking(r.TaskID) {
			continue
		}
		sum += r.Confidence
		n++
	}
	if n == 0 {
		return 1.0
	}
	return sum / float64(n)
}

// taskBlocking looks up a task's blocking flag in the current plan. Tasks
// from a superseded plan are treated as blocking.
func (s *State) taskBlocking(taskID string) bool {
	if s.Plan == nil {
		return true
	}
	for _, t := range s.Plan.Tasks {
		if t.ID == taskID {
			return t.Blocking
		}
	}
	return true
}

// AdoptPlan switches the run to a replanned task list. The attempt history,
// recorded feedback, and replan log all survive the switch; only the retry
// budget starts fresh for the new tasks.
func (s *State) AdoptPlan(plan *models.Plan, record ReplanRecord) {
	record.NewPlanID = plan.ID
	s.replans = append(s.replans, record)
	s.Plan = plan
	s.retries = make(map[string]int)
}

// Replans returns a copy of the replan log.
func (s *State) Replans() []ReplanRecord {
	out := make([]ReplanRecord, len(s.replans))
	copy(out, s.replans)
	return out
}

// ReplanCount returns how many replans the run has performed.
func (s *State) ReplanCount() int {
	return len(s.replans)
}

// Snapshot is the serializable form of a run's state, written at the end of
// every run and loadable for inspection.
type Snapshot struct {
	RunID           string                            `json:"run_id"`
	OriginalRequest string                            `json:"original_request"`
	Phase           Phase                             `json:"phase"`
	FailureReason   string                            `json:"failure_reason,omitempty"`
	Plan            *models.Plan                      `json:"plan"`
	History         []models.TaskResult               `json:"history"`
	Retries         map[string]int                    `json:"retries,omitempty"`
	Feedback        map[string][]models.ErrorFeedback `json:"feedback,omitempty"`
	Replans         []ReplanRecord                    `json:"replans,omitempty"`
	StartedAt       time.Time                         `json:"started_at"`
	CompletedAt     time.Time                         `json:"completed_at"`
}

// Snapshot captures the current state for persistence.
func (s *State) Snapshot() Snapshot {
	retries := make(map[string]int, len(s.retries))
	for k, v := range s.retries {
		retries[k] = v
	}
	feedback := make(map[string][]models.ErrorFeedback, len(s.feedback))
	for k, v := range s.feedback {
		list := make([]models.ErrorFeedback, len(v))
		copy(list, v)
		feedback[k] = list
	}
	return Snapshot{
		RunID:           s.RunID,
		OriginalRequest: s.OriginalRequest,
		Phase:           s.Phase,
		FailureReason:   s.FailureReason,
		Plan:            s.Plan,
		History:         s.History(),
		Retries:         retries,
		Feedback:        feedback,
		Replans:         s.Replans(),
		StartedAt:       s.StartedAt,
		CompletedAt:     s.CompletedAt,
	}
}
