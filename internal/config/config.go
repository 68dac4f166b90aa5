package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// LLMConfig configures the model CLI used for generation and planning.
type LLMConfig struct {
	// Bin is the model CLI binary to invoke
	Bin string `yaml:"bin"`

	// SystemPrompt is prepended to every model invocation
	SystemPrompt string `yaml:"system_prompt"`
}

// Config represents maestro configuration options.
type Config struct {
	// MaxRetries is the retry budget per task
	MaxRetries int `yaml:"max_retries"`

	// MaxReplans caps how many times a run may abandon its plan
	MaxReplans int `yaml:"max_replans"`

	// StepBudget caps the total task attempts in one run (0 = unlimited)
	StepBudget int `yaml:"step_budget"`

	// AcceptConfidence is the confidence floor for accepting a result outright
	AcceptConfidence float64 `yaml:"accept_confidence"`

	// ReplanConfidence is the rolling-confidence floor that triggers replanning
	ReplanConfidence float64 `yaml:"replan_confidence"`

	// ConfidenceWindow is how many recent attempts feed the rolling confidence
	ConfidenceWindow int `yaml:"confidence_window"`

	// CountNonBlockingFailures includes non-blocking failures in the rolling confidence
	CountNonBlockingFailures bool `yaml:"count_non_blocking_failures"`

	// CallTimeout is the execution budget per task attempt
	CallTimeout time.Duration `yaml:"call_timeout"`

	// AutoCorrect enables the correction round-trip on validation failure
	AutoCorrect bool `yaml:"auto_correct"`

	// StrictValidation treats validation warnings as errors
	StrictValidation bool `yaml:"strict_validation"`

	// PenaltyPerWarning is the confidence deduction per validation warning
	PenaltyPerWarning float64 `yaml:"penalty_per_warning"`

	// PenaltyPerRetry is the confidence deduction per consumed retry
	PenaltyPerRetry float64 `yaml:"penalty_per_retry"`

	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// TraceDB is the sqlite database recording run traces; empty disables
	TraceDB string `yaml:"trace_db"`

	// RunDir receives terminal run snapshots; empty disables
	RunDir string `yaml:"run_dir"`

	// LLM configures the model CLI
	LLM LLMConfig `yaml:"llm"`
}

// DefaultConfig returns a Config with the standard defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:               3,
		MaxReplans:               2,
		StepBudget:               50,
		AcceptConfidence:         0.8,
		ReplanConfidence:         0.5,
		ConfidenceWindow:         3,
		CountNonBlockingFailures: true,
		CallTimeout:              2 * time.Minute,
		AutoCorrect:              true,
		StrictValidation:         false,
		PenaltyPerWarning:        0.1,
		PenaltyPerRetry:          0.2,
		LogLevel:                 "info",
		TraceDB:                  ".maestro/trace.db",
		RunDir:                   ".maestro/runs",
		LLM: LLMConfig{
			Bin: "claude",
		},
	}
}

// yamlConfig mirrors Config with string durations and pointer fields so a
// key left out of the file keeps its default.
type yamlConfig struct {
	MaxRetries               *int       `yaml:"max_retries"`
	MaxReplans               *int       `yaml:"max_replans"`
	StepBudget               *int       `yaml:"step_budget"`
	AcceptConfidence         *float64   `yaml:"accept_confidence"`
	ReplanConfidence         *float64   `yaml:"replan_confidence"`
	ConfidenceWindow         *int       `yaml:"confidence_window"`
	CountNonBlockingFailures *bool      `yaml:"count_non_blocking_failures"`
	CallTimeout              *string    `yaml:"call_timeout"`
	AutoCorrect              *bool      `yaml:"auto_correct"`
	StrictValidation         *bool      `yaml:"strict_validation"`
	PenaltyPerWarning        *float64   `yaml:"penalty_per_warning"`
	PenaltyPerRetry          *float64   `yaml:"penalty_per_retry"`
	LogLevel                 *string    `yaml:"log_level"`
	TraceDB                  *string    `yaml:"trace_db"`
	RunDir                   *string    `yaml:"run_dir"`
	LLM                      *LLMConfig `yaml:"llm"`
}

// LoadConfig loads configuration from the specified file path.
// A missing file returns defaults without error; a malformed file errors.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if yc.MaxRetries != nil {
		cfg.MaxRetries = *yc.MaxRetries
	}
	if yc.MaxReplans != nil {
		cfg.MaxReplans = *yc.MaxReplans
	}
	if yc.StepBudget != nil {
		cfg.StepBudget = *yc.StepBudget
	}
	if yc.AcceptConfidence != nil {
		cfg.AcceptConfidence = *yc.AcceptConfidence
	}
	if yc.ReplanConfidence != nil {
		cfg.ReplanConfidence = *yc.ReplanConfidence
	}
	if yc.ConfidenceWindow != nil {
		cfg.ConfidenceWindow = *yc.ConfidenceWindow
	}
	if yc.CountNonBlockingFailures != nil {
		cfg.CountNonBlockingFailures = *yc.CountNonBlockingFailures
	}
	if yc.CallTimeout != nil {
		timeout, err := time.ParseDuration(*yc.CallTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid call_timeout %q: %w", *yc.CallTimeout, err)
		}
		cfg.CallTimeout = timeout
	}
	if yc.AutoCorrect != nil {
		cfg.AutoCorrect = *yc.AutoCorrect
	}
	if yc.StrictValidation != nil {
		cfg.StrictValidation = *yc.StrictValidation
	}
	if yc.PenaltyPerWarning != nil {
		cfg.PenaltyPerWarning = *yc.PenaltyPerWarning
	}
	if yc.PenaltyPerRetry != nil {
		cfg.PenaltyPerRetry = *yc.PenaltyPerRetry
	}
	if yc.LogLevel != nil {
		cfg.LogLevel = *yc.LogLevel
	}
	if yc.TraceDB != nil {
		cfg.TraceDB = *yc.TraceDB
	}
	if yc.RunDir != nil {
		cfg.RunDir = *yc.RunDir
	}
	if yc.LLM != nil {
		if yc.LLM.Bin != "" {
			cfg.LLM.Bin = yc.LLM.Bin
		}
		if yc.LLM.SystemPrompt != "" {
			cfg.LLM.SystemPrompt = yc.LLM.SystemPrompt
		}
	}

	return cfg, nil
}

// LoadConfigFromDir loads configuration from .maestro/config.yaml in the
// specified directory. A missing directory or file yields defaults.
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, ".maestro", "config.yaml"))
}

// MergeWithFlags merges CLI flag values into the configuration. Non-nil
// values override file settings, so flags always win.
func (c *Config) MergeWithFlags(timeout *time.Duration, maxRetries *int, strict, autoCorrect *bool, logLevel *string) {
	if timeout != nil {
		c.CallTimeout = *timeout
	}
	if maxRetries != nil {
		c.MaxRetries = *maxRetries
	}
	if strict != nil {
		c.StrictValidation = *strict
	}
	if autoCorrect != nil {
		c.AutoCorrect = *autoCorrect
	}
	if logLevel != nil {
		c.LogLevel = *logLevel
	}
}

// Validate checks configuration values and returns an error for any value
// outside its allowed range.
func (c *Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.MaxReplans < 0 {
		return fmt.Errorf("max_replans must be >= 0, got %d", c.MaxReplans)
	}
	if c.StepBudget < 0 {
		return fmt.Errorf("step_budget must be >= 0, got %d", c.StepBudget)
	}
	if c.AcceptConfidence < 0 || c.AcceptConfidence > 1 {
		return fmt.Errorf("accept_confidence must be in [0,1], got %v", c.AcceptConfidence)
	}
	if c.ReplanConfidence < 0 || c.ReplanConfidence > 1 {
		return fmt.Errorf("replan_confidence must be in [0,1], got %v", c.ReplanConfidence)
	}
	if c.ConfidenceWindow < 1 {
		return fmt.Errorf("confidence_window must be >= 1, got %d", c.ConfidenceWindow)
	}
	if c.CallTimeout < 0 {
		return fmt.Errorf("call_timeout must be >= 0, got %v", c.CallTimeout)
	}
	if c.PenaltyPerWarning < 0 || c.PenaltyPerRetry < 0 {
		return fmt.Errorf("confidence penalties must be >= 0")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q, must be one of: debug, info, warn, error", c.LogLevel)
	}
	if c.LLM.Bin == "" {
		return fmt.Errorf("llm.bin cannot be empty")
	}
	return nil
}
