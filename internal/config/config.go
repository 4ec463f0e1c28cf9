// Package config holds explicit configuration for the goal pursuit engine.
// The config object is constructed once at startup and passed into each
// component; nothing reads it from ambient global state.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the root configuration object.
type Config struct {
	Workspace string         `json:"workspace"`
	Engine    EngineConfig   `json:"engine"`
	Strength  StrengthConfig `json:"strength"`
	Planner   PlannerConfig  `json:"planner"`
	Review    ReviewConfig   `json:"review"`
	Executor  ExecutorConfig `json:"executor"`
	LLM       LLMConfig      `json:"llm"`
	Logging   LoggingConfig  `json:"logging"`
}

// EngineConfig controls the lifecycle manager.
type EngineConfig struct {
	TickInterval      time.Duration `json:"tick_interval"`       // pipeline tick
	LockWait          time.Duration `json:"lock_wait"`           // bounded per-desire lock wait
	StuckAfter        time.Duration `json:"stuck_after"`         // executing beyond this is reportable as stuck
	RetentionWindow   time.Duration `json:"retention_window"`    // terminal desires pruned after this
	RetentionInterval time.Duration `json:"retention_interval"`  // how often pruning runs
	MaxWorkers        int           `json:"max_workers"`         // concurrent desires per tick
	ProgressBuffer    int           `json:"progress_buffer"`     // progress channel capacity
	DefaultTrustLevel string        `json:"default_trust_level"` // trust granted to autonomous runs
}

// StrengthConfig controls decay and activation.
type StrengthConfig struct {
	DecayInterval       time.Duration `json:"decay_interval"`
	DecayRate           float64       `json:"decay_rate"`
	MinStrength         float64       `json:"min_strength"`
	ActivationThreshold float64       `json:"activation_threshold"`
}

// PlannerConfig controls plan generation.
type PlannerConfig struct {
	Timeout          time.Duration `json:"timeout"`
	EmptyPlanRetries int           `json:"empty_plan_retries"`
	Temperature      float64       `json:"temperature"`
}

// ReviewConfig controls the reviewer's verdict thresholds. The defaults are
// deliberate: scores below either lower threshold reject the plan; only
// clearing the auto-approve threshold on both axes skips human approval.
type ReviewConfig struct {
	Timeout              time.Duration `json:"timeout"`
	AlignmentThreshold   float64       `json:"alignment_threshold"`
	SafetyThreshold      float64       `json:"safety_threshold"`
	AutoApproveThreshold float64       `json:"auto_approve_threshold"`
}

// ExecutorConfig selects and bounds the execution backends.
type ExecutorConfig struct {
	Backend         string        `json:"backend"` // delegate | skill
	DelegateTimeout time.Duration `json:"delegate_timeout"`
	SkillTimeout    time.Duration `json:"skill_timeout"`
	VerifyTimeout   time.Duration `json:"verify_timeout"`
}

// LLMConfig configures the model client.
type LLMConfig struct {
	Provider  string        `json:"provider"` // openai | anthropic | gemini
	Model     string        `json:"model"`
	BaseURL   string        `json:"base_url,omitempty"`
	APIKeyEnv string        `json:"api_key_env"`
	Timeout   time.Duration `json:"timeout"`
	MaxTokens int           `json:"max_tokens"`
}

// LoggingConfig mirrors logging.Config for file loading.
type LoggingConfig struct {
	Debug    bool            `json:"debug"`
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	Enabled  map[string]bool `json:"enabled,omitempty"`
	AuditLog bool            `json:"audit_log"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			TickInterval:      30 * time.Second,
			LockWait:          2 * time.Second,
			StuckAfter:        10 * time.Minute,
			RetentionWindow:   7 * 24 * time.Hour,
			RetentionInterval: time.Hour,
			MaxWorkers:        4,
			ProgressBuffer:    64,
			DefaultTrustLevel: "supervised_auto",
		},
		Strength: StrengthConfig{
			DecayInterval:       time.Minute,
			DecayRate:           0.01,
			MinStrength:         0.05,
			ActivationThreshold: 0.70,
		},
		Planner: PlannerConfig{
			Timeout:          45 * time.Second,
			EmptyPlanRetries: 2,
			Temperature:      0.2,
		},
		Review: ReviewConfig{
			Timeout:              30 * time.Second,
			AlignmentThreshold:   0.70,
			SafetyThreshold:      0.80,
			AutoApproveThreshold: 0.90,
		},
		Executor: ExecutorConfig{
			Backend:         "skill",
			DelegateTimeout: 2 * time.Minute,
			SkillTimeout:    30 * time.Second,
			VerifyTimeout:   90 * time.Second,
		},
		LLM: LLMConfig{
			Provider:  "anthropic",
			Model:     "claude-sonnet-4-20250514",
			APIKeyEnv: "VOLITION_API_KEY",
			Timeout:   45 * time.Second,
			MaxTokens: 4096,
		},
		Logging: LoggingConfig{
			Debug:    false,
			Level:    "info",
			AuditLog: true,
		},
	}
}

// Path returns the config file location for a workspace.
func Path(workspace string) string {
	return filepath.Join(workspace, ".volition", "config.json")
}

// Load reads config from the workspace, layering file values over defaults
// and environment overrides over both. A missing file is not an error.
func Load(workspace string) (Config, error) {
	cfg := Default()
	cfg.Workspace = workspace

	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Workspace = workspace
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// Save writes the config back to the workspace.
func Save(cfg Config) error {
	path := Path(cfg.Workspace)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VOLITION_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("VOLITION_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("VOLITION_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("VOLITION_EXECUTOR_BACKEND"); v != "" {
		cfg.Executor.Backend = v
	}
	if v := os.Getenv("VOLITION_DEBUG"); v == "1" || v == "true" {
		cfg.Logging.Debug = true
	}
}
