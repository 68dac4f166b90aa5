package executor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/harrison/maestro/internal/agent"
	"github.com/harrison/maestro/internal/models"
)

// stubAgent is a canned agent implementation for executor tests.
type stubAgent struct {
	kind   agent.Kind
	result *agent.Result
	err    error
	handle func(ctx context.Context, task models.Task, taskCtx map[string]any) (*agent.Result, error)
}

func (s *stubAgent) Kind() agent.Kind { return s.kind }

func (s *stubAgent) Handle(ctx context.Context, task models.Task, taskCtx map[string]any) (*agent.Result, error) {
	if s.handle != nil {
		return s.handle(ctx, task, taskCtx)
	}
	return s.result, s.err
}

type stubGenerator struct {
	response string
	err      error
	prompts  []string
}

func (s *stubGenerator) Complete(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.response, s.err
}

func codeRegistry(a agent.Agent) *agent.Registry {
	return agent.NewRegistry(a)
}

func chatTask() models.Task {
	return models.Task{ID: "t1", Type: models.TaskChat, Description: "explain", Blocking: true}
}

func codeTask() models.Task {
	return models.Task{ID: "t1", Type: models.TaskCodeGeneration, Description: "generate", Blocking: true}
}

func TestExecuteSuccess(t *testing.T) {
	exec := New(codeRegistry(&stubAgent{
		kind:   agent.KindChat,
		result: &agent.Result{Success: true, Output: "it works by retrying"},
	}), nil, DefaultConfig())

	result := exec.Execute(context.Background(), chatTask(), nil, 0)

	if result.Status != models.StatusSucceeded || !result.Success {
		t.Fatalf("result = %+v, want success", result)
	}
	if result.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0 for a clean first attempt", result.Confidence)
	}
	if result.TaskID != "t1" || result.ID == "" {
		t.Errorf("result identity = %+v", result)
	}
	if result.Metadata.Agent != "chat" {
		t.Errorf("agent metadata = %q", result.Metadata.Agent)
	}
	if result.CompletedAt.Before(result.StartedAt) {
		t.Error("completed before started")
	}
}

func TestExecuteUnsupportedTaskType(t *testing.T) {
	exec := New(agent.NewRegistry(), nil, DefaultConfig())
	task := models.Task{ID: "t1", Type: "deploy", Description: "ship"}

	result := exec.Execute(context.Background(), task, nil, 0)

	if result.Success || result.Status != models.StatusFailed {
		t.Fatalf("result = %+v, want failure", result)
	}
	if !strings.Contains(result.Output, "unsupported task type") {
		t.Errorf("output = %q, want unsupported type message", result.Output)
	}
	if !strings.Contains(result.Output, "misconfigured") {
		t.Errorf("output = %q, want configuration error framing", result.Output)
	}
	if result.Confidence != 0 {
		t.Errorf("confidence = %v, want 0 on failure", result.Confidence)
	}
}

func TestExecuteRecoversPanic(t *testing.T) {
	exec := New(codeRegistry(&stubAgent{
		kind: agent.KindChat,
		handle: func(context.Context, models.Task, map[string]any) (*agent.Result, error) {
			panic("agent blew up")
		},
	}), nil, DefaultConfig())

	result := exec.Execute(context.Background(), chatTask(), nil, 0)

	if result.Success || result.Status != models.StatusFailed {
		t.Fatalf("result = %+v, want failure after panic", result)
	}
	if !strings.Contains(result.Output, "agent blew up") {
		t.Errorf("output = %q, want panic message", result.Output)
	}
}

func TestExecuteTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CallTimeout = 20 * time.Millisecond

	exec := New(codeRegistry(&stubAgent{
		kind: agent.KindChat,
		handle: func(ctx context.Context, _ models.Task, _ map[string]any) (*agent.Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}), nil, cfg)

	result := exec.Execute(context.Background(), chatTask(), nil, 0)

	if result.Success {
		t.Fatal("timed-out task reported success")
	}
	if !strings.Contains(result.Output, "timed out after") {
		t.Errorf("output = %q, want timeout description", result.Output)
	}
}

func TestExecuteAgentFailureCarriesDiagnostics(t *testing.T) {
	exec := New(codeRegistry(&stubAgent{
		kind:   agent.KindGit,
		result: &agent.Result{Success: false, Output: "git commit failed", Diagnostics: "nothing to commit"},
	}), nil, DefaultConfig())
	task := models.Task{ID: "t1", Type: models.TaskGitOperation, Description: "commit"}

	result := exec.Execute(context.Background(), task, nil, 0)

	if result.Success {
		t.Fatal("failed agent result reported success")
	}
	if !strings.Contains(result.Output, "nothing to commit") {
		t.Errorf("output = %q, want diagnostics included", result.Output)
	}
}

// A generated file that fails validation gets one correction round-trip;
// both validation results stay on the task result.
func TestExecuteCorrectsInvalidContent(t *testing.T) {
	gen := &stubGenerator{response: "package main\n\nfunc main() {}\n"}
	exec := New(codeRegistry(&stubAgent{
		kind: agent.KindCode,
		result: &agent.Result{
			Success:  true,
			Output:   "wrote main.go",
			Content:  "package main\n\nfunc main() {\n",
			Filename: "main.go",
		},
	}), gen, DefaultConfig())

	result := exec.Execute(context.Background(), codeTask(), nil, 0)

	if !result.Success {
		t.Fatalf("corrected attempt failed: %s", result.Output)
	}
	if len(result.Validations) != 2 {
		t.Fatalf("validations = %d, want the failed and the corrected one", len(result.Validations))
	}
	if result.Validations[0].Valid || !result.Validations[1].Valid {
		t.Errorf("validation order wrong: %+v", result.Validations)
	}
	if !result.Metadata.CorrectionAttempted {
		t.Error("correction not recorded")
	}
	if result.Metadata.ValidationFailures != 1 {
		t.Errorf("validation failures = %d, want 1", result.Metadata.ValidationFailures)
	}
	if !strings.Contains(result.Output, "corrected") {
		t.Errorf("output = %q, want correction note", result.Output)
	}

	// The correction prompt carries the diagnostics and the bad content.
	if len(gen.prompts) != 1 {
		t.Fatalf("generator called %d times, want 1", len(gen.prompts))
	}
	if !strings.Contains(gen.prompts[0], "unclosed") {
		t.Error("correction prompt missing validation diagnostics")
	}
}

func TestExecuteFailsWhenCorrectionFails(t *testing.T) {
	gen := &stubGenerator{response: "still broken {"}
	exec := New(codeRegistry(&stubAgent{
		kind: agent.KindCode,
		result: &agent.Result{
			Success:  true,
			Output:   "wrote main.go",
			Content:  "broken {",
			Filename: "main.go",
		},
	}), gen, DefaultConfig())

	result := exec.Execute(context.Background(), codeTask(), nil, 0)

	if result.Success {
		t.Fatal("uncorrectable content reported success")
	}
	if result.Metadata.ValidationFailures != 2 {
		t.Errorf("validation failures = %d, want 2", result.Metadata.ValidationFailures)
	}
	if !strings.Contains(result.Output, "syntax") {
		t.Errorf("output = %q, want the validation diagnostic as failure text", result.Output)
	}
}

func TestExecuteWithoutAutoCorrect(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoCorrect = false
	gen := &stubGenerator{response: "package main\n"}

	exec := New(codeRegistry(&stubAgent{
		kind: agent.KindCode,
		result: &agent.Result{
			Success:  true,
			Output:   "wrote main.go",
			Content:  "broken {",
			Filename: "main.go",
		},
	}), gen, cfg)

	result := exec.Execute(context.Background(), codeTask(), nil, 0)

	if result.Success {
		t.Fatal("invalid content accepted without correction")
	}
	if len(gen.prompts) != 0 {
		t.Error("generator consulted despite auto-correct being off")
	}
	if result.Metadata.CorrectionAttempted {
		t.Error("correction recorded but never ran")
	}

	// The retry enrichment flag re-enables correction per task.
	result = exec.Execute(context.Background(), codeTask(), map[string]any{
		agent.CtxAutoCorrect: true,
	}, 1)
	if !result.Success {
		t.Fatalf("enriched retry failed: %s", result.Output)
	}
	if len(gen.prompts) != 1 {
		t.Error("generator not consulted on enriched retry")
	}
}

func TestExecuteStrictValidationTreatsWarningsAsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StrictValidation = true
	cfg.AutoCorrect = false

	// Valid Go apart from a missing package clause, which is only a warning.
	exec := New(codeRegistry(&stubAgent{
		kind: agent.KindCode,
		result: &agent.Result{
			Success:  true,
			Output:   "wrote util.go",
			Content:  "func helper() {}\n",
			Filename: "util.go",
		},
	}), nil, cfg)

	result := exec.Execute(context.Background(), codeTask(), nil, 0)

	if result.Success {
		t.Fatal("warning accepted under strict validation")
	}
	if !strings.Contains(result.Output, "strict mode") {
		t.Errorf("output = %q, want strict-mode failure", result.Output)
	}
}

func TestExecuteConfidencePenalties(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoCorrect = false

	warned := &stubAgent{
		kind: agent.KindCode,
		result: &agent.Result{
			Success:  true,
			Output:   "wrote util.go",
			Content:  "func helper() {}\n", // missing package clause: one warning
			Filename: "util.go",
		},
	}

	tests := []struct {
		name    string
		agent   agent.Agent
		task    models.Task
		attempt int
		want    float64
	}{
		{"clean first attempt", &stubAgent{kind: agent.KindChat, result: &agent.Result{Success: true, Output: "ok"}}, chatTask(), 0, 1.0},
		{"one retry consumed", &stubAgent{kind: agent.KindChat, result: &agent.Result{Success: true, Output: "ok"}}, chatTask(), 1, 0.8},
		{"warning penalty", warned, codeTask(), 0, 0.9},
		{"warning plus retries", warned, codeTask(), 2, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := New(codeRegistry(tt.agent), nil, cfg)
			result := exec.Execute(context.Background(), tt.task, nil, tt.attempt)
			if !result.Success {
				t.Fatalf("execution failed: %s", result.Output)
			}
			if diff := result.Confidence - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("confidence = %v, want %v", result.Confidence, tt.want)
			}
		})
	}
}

func TestExecuteNeverReturnsError(t *testing.T) {
	exec := New(codeRegistry(&stubAgent{
		kind: agent.KindChat,
		err:  errors.New("infrastructure exploded"),
	}), nil, DefaultConfig())

	result := exec.Execute(context.Background(), chatTask(), nil, 0)
	if result.Success {
		t.Fatal("agent error reported success")
	}
	if !strings.Contains(result.Output, "infrastructure exploded") {
		t.Errorf("output = %q, want the agent error", result.Output)
	}
	if !strings.Contains(result.Output, "failed during execute") {
		t.Errorf("output = %q, want execute phase in the message", result.Output)
	}
}
