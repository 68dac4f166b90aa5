// Package llm provides the generation capability used by agents and the
// planner. The default implementation shells out to a claude-compatible
// CLI; the Generator interface keeps everything above it testable with
// in-process stubs.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultSystemPrompt keeps completions plain: no markdown fences, no
// surrounding prose, content only. Individual callers override it when
// they need structured JSON output.
const DefaultSystemPrompt = "You are a developer assistant. Return ONLY the requested content. No markdown fences, no explanations, no XML tags."

// Generator is the text-completion capability consumed by the core.
// Implementations must honor context cancellation and deadlines.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CommandContext creates the exec.Cmd used to invoke the CLI binary.
// It is a variable so tests can substitute a fake command factory.
var CommandContext = exec.CommandContext

// Client invokes a claude-compatible CLI binary for completions.
// Create once and reuse; it is safe for concurrent use.
type Client struct {
	// BinPath is the CLI binary. Defaults to "claude".
	BinPath string

	// Timeout bounds a single completion when the caller's context has
	// no deadline. Zero means no default timeout.
	Timeout time.Duration

	// SystemPrompt is sent with every invocation. Defaults to
	// DefaultSystemPrompt when empty.
	SystemPrompt string
}

// cliResponse is the JSON envelope produced by --output-format json.
type cliResponse struct {
	Result  string `json:"result"`
	Content string `json:"content"`
	IsError bool   `json:"is_error"`
	Error   string `json:"error"`
}

// NewClient returns a Client with default settings.
func NewClient() *Client {
	return &Client{
		BinPath:      "claude",
		SystemPrompt: DefaultSystemPrompt,
	}
}

// Available reports whether the CLI binary can be found in PATH.
func (c *Client) Available() bool {
	bin := c.BinPath
	if bin == "" {
		bin = "claude"
	}
	_, err := exec.LookPath(bin)
	return err == nil
}

// Complete sends prompt to the CLI and returns the completion text.
// Transient failures (timeouts, rate limits, service overload) come back
// as *TransientError; authentication and usage failures as *PermanentError.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", &PermanentError{Reason: "prompt is required"}
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	systemPrompt := c.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	bin := c.BinPath
	if bin == "" {
		bin = "claude"
	}

	args := []string{
		"--system-prompt", systemPrompt,
		"-p", prompt,
		"--output-format", "json",
		"--settings", `{"disableAllHooks": true}`,
	}

	cmd := CommandContext(ctx, bin, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &TransientError{Reason: "completion timed out"}
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", ctx.Err()
		}
		return "", classifyFailure(string(output), err)
	}

	return parseResponse(output)
}

// parseResponse unwraps the CLI's JSON envelope. Non-JSON output is
// returned verbatim so a misconfigured binary still yields usable text.
func parseResponse(output []byte) (string, error) {
	var resp cliResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return strings.TrimSpace(string(output)), nil
	}
	if resp.IsError || resp.Error != "" {
		message := resp.Error
		if message == "" {
			message = resp.Result
		}
		return "", classifyFailure(message, nil)
	}
	if resp.Result != "" {
		return resp.Result, nil
	}
	return resp.Content, nil
}

// classifyFailure maps CLI failures to transient or permanent errors.
// Unrecognized failures default to transient so the retry controller gets
// a chance before the run gives up.
func classifyFailure(output string, err error) error {
	text := strings.ToLower(output)

	permanent := []string{"authentication", "invalid api key", "unauthorized", "credit balance", "billing"}
	for _, token := range permanent {
		if strings.Contains(text, token) {
			return &PermanentError{Reason: strings.TrimSpace(output)}
		}
	}

	reason := strings.TrimSpace(output)
	if reason == "" && err != nil {
		reason = err.Error()
	}
	return &TransientError{Reason: reason, Err: err}
}

// TransientError marks a generation failure that may succeed on retry.
type TransientError struct {
	Reason string
	Err    error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient generation failure: %s", e.Reason)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError marks a generation failure that retrying cannot fix,
// such as an authentication problem.
type PermanentError struct {
	Reason string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent generation failure: %s", e.Reason)
}

// IsTransient reports whether err is or wraps a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsPermanent reports whether err is or wraps a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
