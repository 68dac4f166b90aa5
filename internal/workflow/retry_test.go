package workflow

import (
	"testing"

	"github.com/harrison/maestro/internal/agent"
	"github.com/harrison/maestro/internal/models"
)

func retryTask() models.Task {
	return models.Task{ID: "t1", Type: models.TaskCodeGeneration, Description: "generate", Blocking: true}
}

func TestRetryDecideRecoverable(t *testing.T) {
	controller := &RetryController{MaxRetries: 3}
	state := NewState(testPlan())

	fb := models.ErrorFeedback{
		Category:         models.ErrorSyntax,
		Message:          "syntax error at line 3",
		RetryRecommended: true,
	}

	decision := controller.Decide(state, retryTask(), map[string]any{"target_file": "a.go"}, fb)
	if !decision.Retry {
		t.Fatal("recoverable failure with budget left should retry")
	}
	if state.RetryCount("t1") != 1 {
		t.Errorf("retry count = %d, want 1 after a positive decision", state.RetryCount("t1"))
	}
}

func TestRetryDecideRespectsBudget(t *testing.T) {
	controller := &RetryController{MaxRetries: 2}
	state := NewState(testPlan())
	fb := models.ErrorFeedback{Category: models.ErrorTransient, Message: "timeout", RetryRecommended: true}

	attempts := 0
	for i := 0; i < 10; i++ {
		if !controller.Decide(state, retryTask(), nil, fb).Retry {
			break
		}
		attempts++
	}
	if attempts != 2 {
		t.Errorf("retries granted = %d, want exactly MaxRetries", attempts)
	}
}

func TestRetryDecideRejectsUnrecoverable(t *testing.T) {
	controller := &RetryController{MaxRetries: 3}

	tests := []struct {
		name string
		fb   models.ErrorFeedback
	}{
		{"permission", models.ErrorFeedback{Category: models.ErrorPermission, RetryRecommended: false}},
		{"configuration", models.ErrorFeedback{Category: models.ErrorConfiguration, RetryRecommended: false}},
		{"unknown", models.ErrorFeedback{Category: models.ErrorUnknown, RetryRecommended: false}},
		{"recoverable category but no recommendation", models.ErrorFeedback{Category: models.ErrorSyntax, RetryRecommended: false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := NewState(testPlan())
			decision := controller.Decide(state, retryTask(), nil, tt.fb)
			if decision.Retry {
				t.Error("retry granted")
			}
			if state.RetryCount("t1") != 0 {
				t.Error("negative decision consumed budget")
			}
		})
	}
}

// Retry context is strictly additive: every key of the previous attempt
// survives, and each category adds its own flags.
func TestRetryEnrichmentIsMonotonic(t *testing.T) {
	controller := &RetryController{MaxRetries: 5}
	state := NewState(testPlan())

	taskCtx := map[string]any{"target_file": "a.go"}

	first := controller.Decide(state, retryTask(), taskCtx, models.ErrorFeedback{
		Category: models.ErrorSyntax, Message: "syntax error", RetryRecommended: true,
	})
	if !first.Retry {
		t.Fatal("first retry denied")
	}
	if first.Context[agent.CtxStrictValidation] != true || first.Context[agent.CtxAutoCorrect] != true {
		t.Errorf("syntax enrichment missing: %v", first.Context)
	}
	if first.Context["target_file"] != "a.go" {
		t.Error("original context lost")
	}

	second := controller.Decide(state, retryTask(), first.Context, models.ErrorFeedback{
		Category: models.ErrorFilesystem, Message: "no such file", RetryRecommended: true,
	})
	if !second.Retry {
		t.Fatal("second retry denied")
	}
	// Everything from the first enrichment is still present.
	for key := range first.Context {
		if key == "previous_error" || key == "suggested_fixes" {
			continue
		}
		if _, ok := second.Context[key]; !ok {
			t.Errorf("key %q dropped on second enrichment", key)
		}
	}
	if second.Context[agent.CtxCreateParentDirs] != true {
		t.Errorf("filesystem enrichment missing: %v", second.Context)
	}
	if second.Context[agent.CtxStrictValidation] != true {
		t.Error("earlier syntax enrichment dropped")
	}

	// The caller's map is never mutated.
	if _, ok := taskCtx[agent.CtxStrictValidation]; ok {
		t.Error("Decide mutated the input context")
	}
}

func TestRetryEnrichmentPerCategory(t *testing.T) {
	tests := []struct {
		category models.ErrorCategory
		wantKey  string
	}{
		{models.ErrorSyntax, agent.CtxStrictValidation},
		{models.ErrorImport, agent.CtxVerifyDeps},
		{models.ErrorFilesystem, agent.CtxCreateParentDirs},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			controller := &RetryController{MaxRetries: 3}
			state := NewState(testPlan())
			decision := controller.Decide(state, retryTask(), nil, models.ErrorFeedback{
				Category: tt.category, Message: "failure", RetryRecommended: true,
			})
			if !decision.Retry {
				t.Fatal("retry denied")
			}
			if decision.Context[tt.wantKey] != true {
				t.Errorf("context = %v, want %s flag", decision.Context, tt.wantKey)
			}
		})
	}

	// Transient failures retry without extra flags.
	controller := &RetryController{MaxRetries: 3}
	state := NewState(testPlan())
	decision := controller.Decide(state, retryTask(), nil, models.ErrorFeedback{
		Category: models.ErrorTransient, Message: "overloaded", RetryRecommended: true,
	})
	if !decision.Retry {
		t.Fatal("transient retry denied")
	}
	for _, key := range []string{agent.CtxStrictValidation, agent.CtxVerifyDeps, agent.CtxCreateParentDirs} {
		if _, ok := decision.Context[key]; ok {
			t.Errorf("transient enrichment added %s", key)
		}
	}
}
