package agent

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/harrison/maestro/internal/llm"
	"github.com/harrison/maestro/internal/models"
)

// Context keys the git agent understands.
const (
	CtxGitOperation  = "operation" // status, diff, add, commit, log
	CtxCommitMessage = "message"
)

// GitCommandContext creates the exec.Cmd used to run git. Tests replace
// it to avoid touching a real repository.
var GitCommandContext = exec.CommandContext

// GitAgent executes git operations in a repository. Commit messages are
// either taken from the task context or generated from the staged diff.
type GitAgent struct {
	Generator llm.Generator // Used for commit message generation; may be nil
	RepoDir   string        // Repository directory; "" means cwd
}

// NewGitAgent creates a GitAgent for the given repository directory.
func NewGitAgent(generator llm.Generator, repoDir string) *GitAgent {
	return &GitAgent{Generator: generator, RepoDir: repoDir}
}

// Kind implements Agent.
func (a *GitAgent) Kind() Kind {
	return KindGit
}

// Handle implements Agent. The git exit status and combined output map
// onto Result; git-level failures never surface as errors.
func (a *GitAgent) Handle(ctx context.Context, task models.Task, taskCtx map[string]any) (*Result, error) {
	operation := stringValue(taskCtx, CtxGitOperation)
	if operation == "" {
		operation = inferGitOperation(task.Description)
	}

	switch operation {
	case "status":
		return a.run(ctx, "status", "--short")
	case "diff":
		return a.run(ctx, "diff", "--stat")
	case "log":
		return a.run(ctx, "log", "--oneline", "-10")
	case "add":
		return a.run(ctx, "add", "-A")
	case "commit":
		return a.commit(ctx, taskCtx)
	default:
		return &Result{
			Success: false,
			Output:  fmt.Sprintf("unsupported git operation %q", operation),
		}, nil
	}
}

func (a *GitAgent) commit(ctx context.Context, taskCtx map[string]any) (*Result, error) {
	if result, err := a.run(ctx, "add", "-A"); err != nil || !result.Success {
		return result, err
	}

	message := stringValue(taskCtx, CtxCommitMessage)
	if message == "" {
		message = a.generateMessage(ctx)
	}
	if message == "" {
		message = "update working tree"
	}

	return a.run(ctx, "commit", "-m", message)
}

// generateMessage asks the generator for a conventional commit subject
// based on the staged diff. Any failure falls back to an empty string so
// the commit still happens with a default message.
func (a *GitAgent) generateMessage(ctx context.Context) string {
	if a.Generator == nil {
		return ""
	}

	diff, err := a.run(ctx, "diff", "--cached", "--stat")
	if err != nil || !diff.Success || strings.TrimSpace(diff.Output) == "" {
		return ""
	}

	prompt := fmt.Sprintf(`Write a conventional commit message subject line (max 72 chars) for these staged changes:

%s

Return ONLY the subject line.`, diff.Output)

	raw, err := a.Generator.Complete(ctx, prompt)
	if err != nil {
		return ""
	}
	message := SanitizeResponse(raw)
	if idx := strings.IndexByte(message, '\n'); idx >= 0 {
		message = message[:idx]
	}
	return strings.TrimSpace(message)
}

func (a *GitAgent) run(ctx context.Context, args ...string) (*Result, error) {
	cmd := GitCommandContext(ctx, "git", args...)
	if a.RepoDir != "" {
		cmd.Dir = a.RepoDir
	}

	output, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(output))

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if text == "" {
			text = err.Error()
		}
		return &Result{
			Success:     false,
			Output:      fmt.Sprintf("git %s failed: %s", args[0], text),
			Diagnostics: text,
		}, nil
	}

	return &Result{Success: true, Output: text}, nil
}

func inferGitOperation(description string) string {
	text := strings.ToLower(description)
	switch {
	case strings.Contains(text, "commit"):
		return "commit"
	case strings.Contains(text, "diff"):
		return "diff"
	case strings.Contains(text, "log") || strings.Contains(text, "history"):
		return "log"
	case strings.Contains(text, "add") || strings.Contains(text, "stage"):
		return "add"
	default:
		return "status"
	}
}
