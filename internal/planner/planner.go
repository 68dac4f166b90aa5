// Package planner turns a natural-language request into an executable plan,
// either by asking the LLM or by loading a hand-written markdown plan file.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harrison/maestro/internal/agent"
	"github.com/harrison/maestro/internal/llm"
	"github.com/harrison/maestro/internal/models"
)

const planningPrompt = `You are a planning assistant for a development workflow engine.
Break the user's request into a short sequence of concrete tasks.

Respond with JSON only, no markdown fences, in this shape:
{"tasks": [{"id": "task-1", "type": "code_generation", "description": "...", "blocking": true, "depends_on": [], "context": {"target_file": "..."}}]}

Rules:
- type is one of: code_generation, code_edit, test_generation, git_operation, chat
- every task that creates or edits a file sets context.target_file
- blocking is false only for tasks whose failure should not stop the run
- depends_on lists ids of tasks that must succeed first
- keep plans small: the fewest tasks that satisfy the request`

// LLMPlanner generates plans by prompting the configured model.
type LLMPlanner struct {
	generator llm.Generator
}

// NewLLMPlanner creates a planner backed by the given generator.
func NewLLMPlanner(g llm.Generator) *LLMPlanner {
	return &LLMPlanner{generator: g}
}

// Plan produces a validated plan for the request. history, when non-empty,
// tells the model which approaches already failed so the new plan takes a
// different route.
func (p *LLMPlanner) Plan(ctx context.Context, request string, history []models.TaskResult) (*models.Plan, error) {
	var sb strings.Builder
	sb.WriteString(planningPrompt)
	sb.WriteString("\n\nRequest:\n")
	sb.WriteString(request)

	if failed := failureSummary(history); failed != "" {
		sb.WriteString("\n\nEarlier attempts that failed, do not repeat them:\n")
		sb.WriteString(failed)
	}

	raw, err := p.generator.Complete(ctx, sb.String())
	if err != nil {
		return nil, fmt.Errorf("planning request failed: %w", err)
	}

	plan, err := parsePlanJSON(agent.SanitizeResponse(raw), request)
	if err != nil {
		return nil, err
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("model produced an invalid plan: %w", err)
	}
	return plan, nil
}

func failureSummary(history []models.TaskResult) string {
	var sb strings.Builder
	for _, r := range history {
		if r.Status != models.StatusFailed {
			continue
		}
		fmt.Fprintf(&sb, "- task %s: %s\n", r.TaskID, firstLine(r.Output))
	}
	return sb.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

type planDoc struct {
	Tasks []taskDoc `json:"tasks"`
}

type taskDoc struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Blocking    *bool          `json:"blocking"`
	DependsOn   []string       `json:"depends_on"`
	Context     map[string]any `json:"context"`
}

// parsePlanJSON accepts either the documented {"tasks": [...]} shape or a
// bare task array, which some models emit despite the prompt.
func parsePlanJSON(raw, request string) (*models.Plan, error) {
	raw = strings.TrimSpace(raw)

	var doc planDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil || len(doc.Tasks) == 0 {
		var bare []taskDoc
		if arrErr := json.Unmarshal([]byte(raw), &bare); arrErr != nil {
			if err == nil {
				err = fmt.Errorf("no tasks in response")
			}
			return nil, fmt.Errorf("failed to parse plan from model response: %w", err)
		}
		doc.Tasks = bare
	}
	if len(doc.Tasks) == 0 {
		return nil, fmt.Errorf("model response contained no tasks")
	}

	plan := &models.Plan{
		ID:              uuid.New().String(),
		OriginalRequest: request,
		CreatedAt:       time.Now(),
	}
	for i, td := range doc.Tasks {
		task := models.Task{
			ID:          td.ID,
			Type:        models.TaskType(td.Type),
			Description: td.Description,
			Blocking:    true,
			DependsOn:   td.DependsOn,
			Context:     td.Context,
		}
		if task.ID == "" {
			task.ID = fmt.Sprintf("task-%d", i+1)
		}
		if td.Blocking != nil {
			task.Blocking = *td.Blocking
		}
		plan.Tasks = append(plan.Tasks, task)
	}
	return plan, nil
}
