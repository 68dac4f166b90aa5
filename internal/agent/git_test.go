package agent

import (
	"context"
	"os/exec"
	"strings"
	"testing"

	"github.com/harrison/maestro/internal/models"
)

// fakeGit records git invocations and replies with a canned command.
type fakeGit struct {
	calls [][]string
	fail  bool
}

func (f *fakeGit) install(t *testing.T) {
	t.Helper()
	orig := GitCommandContext
	GitCommandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		f.calls = append(f.calls, args)
		if f.fail {
			return exec.CommandContext(ctx, "false")
		}
		return exec.CommandContext(ctx, "echo", "ok")
	}
	t.Cleanup(func() { GitCommandContext = orig })
}

func TestGitAgentStatus(t *testing.T) {
	fake := &fakeGit{}
	fake.install(t)

	agent := NewGitAgent(nil, "")
	task := models.Task{ID: "t1", Type: models.TaskGitOperation, Description: "show repository status"}

	result, err := agent.Handle(context.Background(), task, nil)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("status failed: %s", result.Output)
	}
	if len(fake.calls) != 1 || fake.calls[0][0] != "status" {
		t.Errorf("git calls = %v, want a single status", fake.calls)
	}
}

func TestGitAgentCommitWithMessage(t *testing.T) {
	fake := &fakeGit{}
	fake.install(t)

	agent := NewGitAgent(nil, "")
	task := models.Task{ID: "t1", Type: models.TaskGitOperation, Description: "commit the changes"}

	result, err := agent.Handle(context.Background(), task, map[string]any{
		CtxCommitMessage: "add input validation",
	})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("commit failed: %s", result.Output)
	}

	if len(fake.calls) != 2 {
		t.Fatalf("git calls = %v, want add then commit", fake.calls)
	}
	if fake.calls[0][0] != "add" {
		t.Errorf("first call = %v, want add -A", fake.calls[0])
	}
	commit := fake.calls[1]
	if commit[0] != "commit" || commit[len(commit)-1] != "add input validation" {
		t.Errorf("commit call = %v, want provided message", commit)
	}
}

func TestGitAgentCommitFallbackMessage(t *testing.T) {
	fake := &fakeGit{}
	fake.install(t)

	// No generator and no message in context: the default subject is used.
	agent := NewGitAgent(nil, "")
	task := models.Task{ID: "t1", Type: models.TaskGitOperation, Description: "commit everything"}

	result, err := agent.Handle(context.Background(), task, nil)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("commit failed: %s", result.Output)
	}
	last := fake.calls[len(fake.calls)-1]
	if last[len(last)-1] != "update working tree" {
		t.Errorf("commit call = %v, want fallback message", last)
	}
}

func TestGitAgentFailureIsResultNotError(t *testing.T) {
	fake := &fakeGit{fail: true}
	fake.install(t)

	agent := NewGitAgent(nil, "")
	task := models.Task{ID: "t1", Type: models.TaskGitOperation, Description: "show status"}

	result, err := agent.Handle(context.Background(), task, nil)
	if err != nil {
		t.Fatalf("git failures must not surface as errors, got %v", err)
	}
	if result.Success {
		t.Fatal("failed git command reported success")
	}
	if !strings.Contains(result.Output, "git status failed") {
		t.Errorf("output = %q, want git failure description", result.Output)
	}
}

func TestGitAgentUnsupportedOperation(t *testing.T) {
	fake := &fakeGit{}
	fake.install(t)

	agent := NewGitAgent(nil, "")
	task := models.Task{ID: "t1", Type: models.TaskGitOperation, Description: "whatever"}

	result, err := agent.Handle(context.Background(), task, map[string]any{
		CtxGitOperation: "rebase",
	})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if result.Success || !strings.Contains(result.Output, "unsupported git operation") {
		t.Errorf("result = %+v, want unsupported operation failure", result)
	}
	if len(fake.calls) != 0 {
		t.Errorf("git invoked for unsupported operation: %v", fake.calls)
	}
}

func TestInferGitOperation(t *testing.T) {
	tests := []struct {
		description string
		want        string
	}{
		{"commit the current changes", "commit"},
		{"show me the diff", "diff"},
		{"show recent history", "log"},
		{"stage all files", "add"},
		{"what changed?", "status"},
	}

	for _, tt := range tests {
		if got := inferGitOperation(tt.description); got != tt.want {
			t.Errorf("inferGitOperation(%q) = %q, want %q", tt.description, got, tt.want)
		}
	}
}
