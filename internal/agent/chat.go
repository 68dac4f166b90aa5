package agent

import (
	"context"
	"fmt"

	"github.com/harrison/maestro/internal/llm"
	"github.com/harrison/maestro/internal/models"
)

// ChatAgent answers explanation and question tasks directly through the
// generation capability.
type ChatAgent struct {
	Generator llm.Generator
}

// NewChatAgent creates a ChatAgent backed by the given generator.
func NewChatAgent(generator llm.Generator) *ChatAgent {
	return &ChatAgent{Generator: generator}
}

// Kind implements Agent.
func (a *ChatAgent) Kind() Kind {
	return KindChat
}

// Handle implements Agent.
func (a *ChatAgent) Handle(ctx context.Context, task models.Task, taskCtx map[string]any) (*Result, error) {
	prompt := task.Description
	if request := stringValue(taskCtx, "original_request"); request != "" {
		prompt = fmt.Sprintf("Original request: %s\n\n%s", request, task.Description)
	}

	raw, err := a.Generator.Complete(ctx, prompt)
	if err != nil {
		return &Result{Success: false, Output: fmt.Sprintf("generation failed: %v", err)}, nil
	}

	return &Result{Success: true, Output: SanitizeResponse(raw)}, nil
}
