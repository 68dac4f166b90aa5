// Package logger provides progress logging for workflow runs.
//
// The console logger writes timestamped, optionally colorized progress lines
// and is safe for concurrent use. Color output is enabled automatically when
// writing to a terminal and suppressed everywhere else.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/harrison/maestro/internal/models"
)

const (
	levelDebug = iota
	levelInfo
	levelWarn
	levelError
)

// ConsoleLogger logs workflow progress to a writer. Every line carries an
// [HH:MM:SS] timestamp. Messages below the configured level are discarded.
type ConsoleLogger struct {
	writer   io.Writer
	level    int
	mutex    sync.Mutex
	colorize bool

	success *color.Color
	fail    *color.Color
	warn    *color.Color
	label   *color.Color
}

// NewConsoleLogger creates a logger writing to w. A nil writer discards all
// output. level is one of debug, info, warn, error; anything else means info.
func NewConsoleLogger(w io.Writer, level string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:   w,
		level:    parseLevel(level),
		colorize: isTerminal(w),
		success:  color.New(color.FgGreen),
		fail:     color.New(color.FgRed),
		warn:     color.New(color.FgYellow),
		label:    color.New(color.FgCyan),
	}
}

func parseLevel(level string) int {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return levelDebug
	case "warn", "warning":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (cl *ConsoleLogger) log(level int, line string) {
	if cl.writer == nil || level < cl.level {
		return
	}
	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	fmt.Fprintf(cl.writer, "[%s] %s\n", time.Now().Format("15:04:05"), line)
}

// paint applies c to s when colors are enabled.
func (cl *ConsoleLogger) paint(c *color.Color, s string) string {
	if !cl.colorize {
		return s
	}
	return c.Sprint(s)
}

// Debugf logs a formatted debug message.
func (cl *ConsoleLogger) Debugf(format string, args ...any) {
	cl.log(levelDebug, fmt.Sprintf(format, args...))
}

// Infof logs a formatted info message.
func (cl *ConsoleLogger) Infof(format string, args ...any) {
	cl.log(levelInfo, fmt.Sprintf(format, args...))
}

// Warnf logs a formatted warning.
func (cl *ConsoleLogger) Warnf(format string, args ...any) {
	cl.log(levelWarn, cl.paint(cl.warn, fmt.Sprintf(format, args...)))
}

// Errorf logs a formatted error.
func (cl *ConsoleLogger) Errorf(format string, args ...any) {
	cl.log(levelError, cl.paint(cl.fail, fmt.Sprintf(format, args...)))
}

// LogWorkflowStart announces the beginning of a run.
func (cl *ConsoleLogger) LogWorkflowStart(runID string, taskCount int) {
	cl.log(levelInfo, fmt.Sprintf("%s run %s with %d tasks",
		cl.paint(cl.label, "starting"), runID, taskCount))
}

// LogTaskStart announces one task attempt.
func (cl *ConsoleLogger) LogTaskStart(task models.Task, attempt int) {
	suffix := ""
	if attempt > 0 {
		suffix = fmt.Sprintf(" (retry %d)", attempt)
	}
	cl.log(levelInfo, fmt.Sprintf("%s %s [%s]%s: %s",
		cl.paint(cl.label, "task"), task.ID, task.Type, suffix, task.Description))
}

// LogTaskComplete reports a successful attempt with its confidence.
func (cl *ConsoleLogger) LogTaskComplete(result models.TaskResult) {
	cl.log(levelInfo, fmt.Sprintf("%s %s in %s (confidence %.2f)",
		cl.paint(cl.success, "done"), result.TaskID,
		result.Metadata.Duration.Round(time.Millisecond), result.Confidence))
}

// LogTaskFail reports a failed attempt and its error category.
func (cl *ConsoleLogger) LogTaskFail(result models.TaskResult, category models.ErrorCategory) {
	cl.log(levelWarn, fmt.Sprintf("%s %s [%s]: %s",
		cl.paint(cl.fail, "failed"), result.TaskID, category, firstLine(result.Output)))
}

// LogRetry reports a retry decision.
func (cl *ConsoleLogger) LogRetry(taskID string, attempt, max int, category models.ErrorCategory) {
	cl.log(levelInfo, fmt.Sprintf("%s %s attempt %d/%d after %s error",
		cl.paint(cl.warn, "retrying"), taskID, attempt, max, category))
}

// LogReplan reports that the run abandoned its plan.
func (cl *ConsoleLogger) LogReplan(reason string, count int) {
	cl.log(levelWarn, fmt.Sprintf("%s #%d: %s", cl.paint(cl.warn, "replanning"), count, reason))
}

// LogSummary prints the final run summary.
func (cl *ConsoleLogger) LogSummary(result models.WorkflowResult) {
	status := cl.paint(cl.success, "completed")
	if !result.Succeeded() {
		status = cl.paint(cl.fail, "failed")
	}
	line := fmt.Sprintf("%s: %d/%d tasks, %d failed, %d skipped, %d replans, avg confidence %.2f, %s",
		status, result.Completed, result.TotalTasks, result.Failed, result.Skipped,
		result.Replans, result.AverageConfidence, result.Duration.Round(time.Millisecond))
	if result.FailureReason != "" {
		line += ": " + result.FailureReason
	}
	cl.log(levelInfo, line)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
