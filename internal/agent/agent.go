// Package agent defines the task-executing capability and its concrete
// implementations. The registry is a closed set bound at construction
// time: dispatch is a static lookup, never runtime discovery, so an
// unsupported task type surfaces as a configuration error immediately.
package agent

import (
	"context"
	"fmt"

	"github.com/harrison/maestro/internal/models"
)

// Kind identifies a concrete agent capability.
type Kind string

const (
	KindGit  Kind = "git"
	KindCode Kind = "code"
	KindChat Kind = "chat"
)

// KindForTask maps a task type to the agent kind that handles it.
func KindForTask(t models.TaskType) (Kind, error) {
	switch t {
	case models.TaskCodeGeneration, models.TaskCodeEdit, models.TaskTestGeneration:
		return KindCode, nil
	case models.TaskGitOperation:
		return KindGit, nil
	case models.TaskChat:
		return KindChat, nil
	default:
		return "", fmt.Errorf("unsupported task type %q", t)
	}
}

// Result is the outcome of one agent invocation.
type Result struct {
	Success     bool
	Output      string // Human-readable outcome or failure description
	Content     string // Generated source content, when the task produced any
	Filename    string // File the agent wrote or edited, when applicable
	Diagnostics string // Raw diagnostics from the underlying tool, if any
}

// Agent executes one task with the given (possibly retry-enriched)
// context. Implementations return an error only for infrastructure
// failures; task-level failures are reported through Result.Success.
type Agent interface {
	Kind() Kind
	Handle(ctx context.Context, task models.Task, taskCtx map[string]any) (*Result, error)
}

// Registry binds each agent kind to one implementation. The set is fixed
// at construction; there is no dynamic registration.
type Registry struct {
	agents map[Kind]Agent
}

// NewRegistry builds a registry from the given agents. Nil entries are
// allowed and simply leave that capability unbound.
func NewRegistry(agents ...Agent) *Registry {
	r := &Registry{agents: make(map[Kind]Agent, len(agents))}
	for _, a := range agents {
		if a != nil {
			r.agents[a.Kind()] = a
		}
	}
	return r
}

// ForTask resolves the agent responsible for the task's type.
// An unknown type or an unbound capability is a configuration error.
func (r *Registry) ForTask(t models.TaskType) (Agent, error) {
	kind, err := KindForTask(t)
	if err != nil {
		return nil, err
	}
	a, ok := r.agents[kind]
	if !ok {
		return nil, fmt.Errorf("no agent registered for kind %q", kind)
	}
	return a, nil
}

// stringValue pulls a string out of a task context map, tolerating both
// missing keys and non-string values.
func stringValue(taskCtx map[string]any, key string) string {
	if taskCtx == nil {
		return ""
	}
	if v, ok := taskCtx[key].(string); ok {
		return v
	}
	return ""
}

// boolValue pulls a bool flag out of a task context map.
func boolValue(taskCtx map[string]any, key string) bool {
	if taskCtx == nil {
		return false
	}
	v, ok := taskCtx[key].(bool)
	return ok && v
}
