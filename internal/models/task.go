package models

import (
	"errors"
	"fmt"
	"time"
)

// TaskType enumerates the kinds of work a plan may contain.
// The set is closed: every type maps to exactly one agent kind at
// construction time, so an unsupported type is a configuration error
// rather than a silent no-op.
type TaskType string

const (
	TaskCodeGeneration TaskType = "code_generation"
	TaskCodeEdit       TaskType = "code_edit"
	TaskTestGeneration TaskType = "test_generation"
	TaskGitOperation   TaskType = "git_operation"
	TaskChat           TaskType = "chat"
)

// Valid reports whether t is one of the known task types.
func (t TaskType) Valid() bool {
	switch t {
	case TaskCodeGeneration, TaskCodeEdit, TaskTestGeneration, TaskGitOperation, TaskChat:
		return true
	}
	return false
}

// ProducesCode reports whether the task's output is source content that
// should pass through syntax validation before being accepted.
func (t TaskType) ProducesCode() bool {
	switch t {
	case TaskCodeGeneration, TaskCodeEdit, TaskTestGeneration:
		return true
	}
	return false
}

// Task represents a single unit of delegated work in a plan.
// Tasks are immutable once created; retries vary the execution context,
// never the task itself.
type Task struct {
	ID          string         // Unique identifier within the plan
	Type        TaskType       // Task type, dispatched to a matching agent
	Description string         // Natural-language description of the work
	Blocking    bool           // Whether a terminal failure fails the whole run
	Context     map[string]any // Input context (target file, original request, flags)
	DependsOn   []string       // Task IDs this task depends on
}

// Validate checks that the task has all required fields. Whether the type
// is actually executable is the agent registry's call at dispatch time: an
// unrecognized type becomes a configuration-category task failure, so the
// rest of the plan still runs.
func (t *Task) Validate() error {
	if t.ID == "" {
		return errors.New("task id is required")
	}
	if t.Description == "" {
		return errors.New("task description is required")
	}
	if t.Type == "" {
		return errors.New("task type is required")
	}
	return nil
}

// Plan is an ordered sequence of tasks produced by a planner for one request.
// A plan is owned by a single workflow run and replaced wholesale on replan;
// the run's result history survives the replacement.
type Plan struct {
	ID              string    // Plan identifier
	OriginalRequest string    // The user request this plan was derived from
	CreatedAt       time.Time // When the plan was produced
	Tasks           []Task    // Ordered tasks
}

// Validate checks every task, rejects duplicate IDs, unknown dependencies
// and circular dependencies.
func (p *Plan) Validate() error {
	if len(p.Tasks) == 0 {
		return errors.New("plan contains no tasks")
	}

	seen := make(map[string]bool, len(p.Tasks))
	for i := range p.Tasks {
		task := &p.Tasks[i]
		if err := task.Validate(); err != nil {
			return fmt.Errorf("task %d: %w", i+1, err)
		}
		if seen[task.ID] {
			return fmt.Errorf("duplicate task id %q", task.ID)
		}
		seen[task.ID] = true
	}

	for i := range p.Tasks {
		for _, dep := range p.Tasks[i].DependsOn {
			if !seen[dep] {
				return fmt.Errorf("task %q depends on unknown task %q", p.Tasks[i].ID, dep)
			}
		}
	}

	if HasCyclicDependencies(p.Tasks) {
		return errors.New("plan contains circular dependencies")
	}
	return nil
}

// HasCyclicDependencies detects circular dependencies in a list of tasks
// using DFS with color marking (white=unvisited, gray=visiting, black=visited).
func HasCyclicDependencies(tasks []Task) bool {
	graph := make(map[string][]string)
	known := make(map[string]bool)

	for _, task := range tasks {
		known[task.ID] = true
		graph[task.ID] = []string{}
	}

	// Edge direction: if A depends on B, then B -> A.
	for _, task := range tasks {
		for _, dep := range task.DependsOn {
			if dep == task.ID {
				return true
			}
			if known[dep] {
				graph[dep] = append(graph[dep], task.ID)
			}
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)

	colors := make(map[string]int, len(known))

	var dfs func(string) bool
	dfs = func(node string) bool {
		colors[node] = gray
		for _, neighbor := range graph[node] {
			if colors[neighbor] == gray {
				return true
			}
			if colors[neighbor] == white && dfs(neighbor) {
				return true
			}
		}
		colors[node] = black
		return false
	}

	for id := range known {
		if colors[id] == white {
			if dfs(id) {
				return true
			}
		}
	}
	return false
}
