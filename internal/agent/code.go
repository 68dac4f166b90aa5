package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harrison/maestro/internal/llm"
	"github.com/harrison/maestro/internal/models"
)

// Context keys the code agent understands. Retry enrichment may set the
// flag keys; the planner sets target_file.
const (
	CtxTargetFile       = "target_file"
	CtxCreateParentDirs = "create_parent_dirs"
	CtxVerifyDeps       = "verify_dependencies"
	CtxStrictValidation = "strict_validation"
	CtxAutoCorrect      = "auto_correct"
)

// CodeAgent generates new source files, edits existing ones, and writes
// test files, delegating the actual content to the generation capability.
type CodeAgent struct {
	Generator llm.Generator
	WorkDir   string // Base directory for relative file paths; "" means cwd
}

// NewCodeAgent creates a CodeAgent backed by the given generator.
func NewCodeAgent(generator llm.Generator) *CodeAgent {
	return &CodeAgent{Generator: generator}
}

// Kind implements Agent.
func (a *CodeAgent) Kind() Kind {
	return KindCode
}

// Handle implements Agent. Failures that the workflow can act on (missing
// file, write errors) come back as unsuccessful results, not errors.
func (a *CodeAgent) Handle(ctx context.Context, task models.Task, taskCtx map[string]any) (*Result, error) {
	filename := stringValue(taskCtx, CtxTargetFile)
	if filename == "" {
		return &Result{
			Success: false,
			Output:  "missing required context key target_file",
		}, nil
	}

	switch task.Type {
	case models.TaskCodeEdit:
		return a.editFile(ctx, task, taskCtx, filename)
	case models.TaskCodeGeneration, models.TaskTestGeneration:
		return a.createFile(ctx, task, taskCtx, filename)
	default:
		return nil, fmt.Errorf("code agent cannot handle task type %q", task.Type)
	}
}

func (a *CodeAgent) createFile(ctx context.Context, task models.Task, taskCtx map[string]any, filename string) (*Result, error) {
	prompt := a.buildCreatePrompt(task, taskCtx, filename)

	raw, err := a.Generator.Complete(ctx, prompt)
	if err != nil {
		return &Result{Success: false, Output: fmt.Sprintf("generation failed: %v", err)}, nil
	}
	content := SanitizeResponse(raw)

	if result := a.writeFile(filename, content, taskCtx); result != nil {
		return result, nil
	}

	return &Result{
		Success:  true,
		Output:   fmt.Sprintf("wrote %s (%d bytes)", filename, len(content)),
		Content:  content,
		Filename: filename,
	}, nil
}

func (a *CodeAgent) editFile(ctx context.Context, task models.Task, taskCtx map[string]any, filename string) (*Result, error) {
	path := a.resolve(filename)
	current, err := os.ReadFile(path)
	if err != nil {
		return &Result{Success: false, Output: fmt.Sprintf("cannot read %s: %v", filename, err)}, nil
	}

	prompt := fmt.Sprintf(`Edit the following file according to the instructions.

File: %s
Current content:
%s

Instructions: %s

Return the complete edited file content, not just the changes.`, filename, string(current), task.Description)

	raw, err := a.Generator.Complete(ctx, prompt)
	if err != nil {
		return &Result{Success: false, Output: fmt.Sprintf("generation failed: %v", err)}, nil
	}
	content := SanitizeResponse(raw)

	if result := a.writeFile(filename, content, taskCtx); result != nil {
		return result, nil
	}

	return &Result{
		Success:  true,
		Output:   fmt.Sprintf("edited %s", filename),
		Content:  content,
		Filename: filename,
	}, nil
}

// Rewrite replaces the content of filename, re-using the write path so
// the executor's correction round-trip lands on disk the same way the
// original attempt did.
func (a *CodeAgent) Rewrite(filename, content string, taskCtx map[string]any) error {
	if result := a.writeFile(filename, content, taskCtx); result != nil {
		return fmt.Errorf("%s", result.Output)
	}
	return nil
}

func (a *CodeAgent) buildCreatePrompt(task models.Task, taskCtx map[string]any, filename string) string {
	var sb strings.Builder
	language := languageForFilename(filename)

	if task.Type == models.TaskTestGeneration {
		fmt.Fprintf(&sb, "Generate %s tests for the following request.\n\n", language)
	} else {
		fmt.Fprintf(&sb, "Generate %s code for the following request.\n\n", language)
	}
	fmt.Fprintf(&sb, "Request: %s\nFilename: %s\n\n", task.Description, filename)
	sb.WriteString("Requirements:\n- Complete, runnable code\n- Include all necessary imports\n")
	if boolValue(taskCtx, CtxVerifyDeps) {
		sb.WriteString("- Use only standard-library dependencies that are guaranteed to be available\n")
	}
	if boolValue(taskCtx, CtxStrictValidation) {
		sb.WriteString("- The output must parse cleanly; double-check brackets and string literals\n")
	}
	sb.WriteString("\nReturn ONLY the file content, nothing else.")
	return sb.String()
}

// writeFile writes content beneath the work dir. Returns a failure Result
// on error, nil on success.
func (a *CodeAgent) writeFile(filename, content string, taskCtx map[string]any) *Result {
	path := a.resolve(filename)

	if boolValue(taskCtx, CtxCreateParentDirs) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return &Result{Success: false, Output: fmt.Sprintf("cannot create directory for %s: %v", filename, err)}
		}
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return &Result{Success: false, Output: fmt.Sprintf("cannot write %s: %v", filename, err)}
	}
	return nil
}

func (a *CodeAgent) resolve(filename string) string {
	if a.WorkDir == "" || filepath.IsAbs(filename) {
		return filename
	}
	return filepath.Join(a.WorkDir, filename)
}

func languageForFilename(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".go":
		return "Go"
	case ".py":
		return "Python"
	case ".js":
		return "JavaScript"
	case ".ts":
		return "TypeScript"
	case ".rb":
		return "Ruby"
	case ".rs":
		return "Rust"
	case ".sh":
		return "shell"
	case ".json":
		return "JSON"
	case ".yaml", ".yml":
		return "YAML"
	default:
		return "plain text"
	}
}
