package logger

import (
	"bytes"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/harrison/maestro/internal/models"
)

var timestampPrefix = regexp.MustCompile(`^\[\d{2}:\d{2}:\d{2}\] `)

func TestLogLinesCarryTimestamps(t *testing.T) {
	var buf bytes.Buffer
	log := NewConsoleLogger(&buf, "info")

	log.Infof("hello %s", "world")

	line := buf.String()
	if !timestampPrefix.MatchString(line) {
		t.Errorf("line = %q, want [HH:MM:SS] prefix", line)
	}
	if !strings.Contains(line, "hello world") {
		t.Errorf("line = %q", line)
	}
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"debug", true, true, true},
		{"info", false, true, true},
		{"warn", false, false, true},
		{"error", false, false, false},
		{"nonsense", false, true, true}, // unknown levels mean info
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			log := NewConsoleLogger(&buf, tt.level)

			log.Debugf("dbg")
			log.Infof("inf")
			log.Warnf("wrn")

			out := buf.String()
			if got := strings.Contains(out, "dbg"); got != tt.wantDebug {
				t.Errorf("debug logged = %v, want %v", got, tt.wantDebug)
			}
			if got := strings.Contains(out, "inf"); got != tt.wantInfo {
				t.Errorf("info logged = %v, want %v", got, tt.wantInfo)
			}
			if got := strings.Contains(out, "wrn"); got != tt.wantWarn {
				t.Errorf("warn logged = %v, want %v", got, tt.wantWarn)
			}
		})
	}
}

func TestNilWriterIsSilent(t *testing.T) {
	log := NewConsoleLogger(nil, "debug")
	log.Infof("nothing happens")
	log.LogWorkflowStart("run-1", 3)
	log.LogSummary(models.WorkflowResult{})
}

func TestNoColorForPlainWriters(t *testing.T) {
	var buf bytes.Buffer
	log := NewConsoleLogger(&buf, "info")

	log.LogTaskFail(models.TaskResult{TaskID: "t1", Output: "boom"}, models.ErrorUnknown)

	if strings.Contains(buf.String(), "\x1b[") {
		t.Errorf("output carries ANSI escapes for a non-terminal writer: %q", buf.String())
	}
}

func TestWorkflowEventOutput(t *testing.T) {
	var buf bytes.Buffer
	log := NewConsoleLogger(&buf, "debug")

	log.LogWorkflowStart("run-1", 2)
	log.LogTaskStart(models.Task{ID: "t1", Type: models.TaskCodeGeneration, Description: "generate handler"}, 0)
	log.LogTaskStart(models.Task{ID: "t1", Type: models.TaskCodeGeneration, Description: "generate handler"}, 1)
	log.LogTaskComplete(models.TaskResult{
		TaskID:     "t1",
		Confidence: 0.85,
		Metadata:   models.ResultMetadata{Duration: 1500 * time.Millisecond},
	})
	log.LogTaskFail(models.TaskResult{TaskID: "t2", Output: "permission denied\ndetail"}, models.ErrorPermission)
	log.LogRetry("t2", 1, 3, models.ErrorTransient)
	log.LogReplan("rolling confidence 0.40 below threshold 0.50", 1)
	log.LogSummary(models.WorkflowResult{
		TotalTasks: 2, Completed: 1, Failed: 1,
		AverageConfidence: 0.85,
		FailureReason:     "blocking task t2 failed: permission denied",
	})

	out := buf.String()
	for _, want := range []string{
		"starting run run-1 with 2 tasks",
		"task t1 [code_generation]: generate handler",
		"(retry 1)",
		"done t1 in 1.5s (confidence 0.85)",
		"failed t2 [permission]: permission denied",
		"retrying t2 attempt 1/3 after transient error",
		"replanning #1: rolling confidence 0.40 below threshold 0.50",
		"failed: 1/2 tasks",
		"blocking task t2 failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}

	// The failure detail beyond the first line stays out of the log.
	if strings.Contains(out, "detail") {
		t.Error("multi-line failure output was not trimmed to its first line")
	}
}
