package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/harrison/maestro/internal/models"
)

// stubGenerator returns canned completions for agent tests.
type stubGenerator struct {
	response string
	err      error
	prompts  []string
}

func (s *stubGenerator) Complete(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.response, s.err
}

func TestKindForTask(t *testing.T) {
	tests := []struct {
		taskType models.TaskType
		want     Kind
		wantErr  bool
	}{
		{models.TaskCodeGeneration, KindCode, false},
		{models.TaskCodeEdit, KindCode, false},
		{models.TaskTestGeneration, KindCode, false},
		{models.TaskGitOperation, KindGit, false},
		{models.TaskChat, KindChat, false},
		{models.TaskType("deploy"), "", true},
	}

	for _, tt := range tests {
		kind, err := KindForTask(tt.taskType)
		if tt.wantErr {
			if err == nil {
				t.Errorf("KindForTask(%q) expected error", tt.taskType)
			}
			continue
		}
		if err != nil {
			t.Errorf("KindForTask(%q) unexpected error: %v", tt.taskType, err)
			continue
		}
		if kind != tt.want {
			t.Errorf("KindForTask(%q) = %q, want %q", tt.taskType, kind, tt.want)
		}
	}
}

func TestRegistryForTask(t *testing.T) {
	gen := &stubGenerator{}
	registry := NewRegistry(NewCodeAgent(gen), NewChatAgent(gen))

	if _, err := registry.ForTask(models.TaskCodeGeneration); err != nil {
		t.Errorf("ForTask(code_generation) = %v, want nil", err)
	}

	_, err := registry.ForTask(models.TaskGitOperation)
	if err == nil || !strings.Contains(err.Error(), "no agent registered") {
		t.Errorf("ForTask on unbound kind = %v, want registration error", err)
	}

	_, err = registry.ForTask(models.TaskType("deploy"))
	if err == nil || !strings.Contains(err.Error(), "unsupported task type") {
		t.Errorf("ForTask on unknown type = %v, want unsupported type error", err)
	}
}

func TestRegistryIgnoresNilAgents(t *testing.T) {
	registry := NewRegistry(nil, NewChatAgent(&stubGenerator{}))
	if _, err := registry.ForTask(models.TaskChat); err != nil {
		t.Errorf("ForTask(chat) = %v, want nil", err)
	}
}

func TestContextValueHelpers(t *testing.T) {
	taskCtx := map[string]any{
		"name":   "plan.md",
		"strict": true,
		"count":  3,
	}

	if got := stringValue(taskCtx, "name"); got != "plan.md" {
		t.Errorf("stringValue(name) = %q", got)
	}
	if got := stringValue(taskCtx, "count"); got != "" {
		t.Errorf("stringValue on non-string = %q, want empty", got)
	}
	if got := stringValue(nil, "name"); got != "" {
		t.Errorf("stringValue on nil map = %q, want empty", got)
	}
	if !boolValue(taskCtx, "strict") {
		t.Error("boolValue(strict) = false, want true")
	}
	if boolValue(taskCtx, "count") {
		t.Error("boolValue on non-bool = true, want false")
	}
	if boolValue(nil, "strict") {
		t.Error("boolValue on nil map = true, want false")
	}
}
