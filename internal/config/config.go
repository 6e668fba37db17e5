// Package config loads runtime configuration: environment first, with an
// optional YAML file overlay for the non-secret knobs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"forgecad/internal/llm"
)

type Config struct {
	Model         string `yaml:"model"`
	MaxSteps      int    `yaml:"max_steps"`
	MaxIdleRounds int    `yaml:"max_idle_rounds"`
	SessionID     string `yaml:"session_id"`
	WorkRoot      string `yaml:"work_root"`
	CompilerBin   string `yaml:"compiler_bin"`
	MeasureBin    string `yaml:"measure_bin"`
	RunLogPath    string `yaml:"run_log_path"`

	// APIKey never comes from the YAML file.
	APIKey string `yaml:"-"`
}

const (
	defaultModel    = "claude-sonnet-4-5"
	defaultWorkRoot = ".forgecad"
)

// Load reads the optional YAML file (empty path skips it), then applies
// environment overrides, then validates. Missing credentials are fatal
// here, before any work starts.
func Load(path string) (Config, error) {
	cfg := Config{
		Model:    defaultModel,
		WorkRoot: defaultWorkRoot,
	}

	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if v := os.Getenv("FORGECAD_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("FORGECAD_MAX_STEPS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, &llm.ConfigurationError{Message: "FORGECAD_MAX_STEPS must be a positive integer"}
		}
		cfg.MaxSteps = n
	}
	if v := os.Getenv("FORGECAD_MAX_IDLE_ROUNDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, &llm.ConfigurationError{Message: "FORGECAD_MAX_IDLE_ROUNDS must be a positive integer"}
		}
		cfg.MaxIdleRounds = n
	}
	if v := os.Getenv("FORGECAD_SESSION"); v != "" {
		cfg.SessionID = v
	}
	if v := os.Getenv("FORGECAD_WORKROOT"); v != "" {
		cfg.WorkRoot = v
	}
	if v := os.Getenv("FORGECAD_OPENSCAD_BIN"); v != "" {
		cfg.CompilerBin = v
	}
	if v := os.Getenv("FORGECAD_MEASURE_BIN"); v != "" {
		cfg.MeasureBin = v
	}
	if v := os.Getenv("FORGECAD_RUNLOG"); v != "" {
		cfg.RunLogPath = v
	}
	cfg.APIKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))

	if cfg.RunLogPath == "" {
		cfg.RunLogPath = cfg.WorkRoot + "/runs.db"
	}
	return cfg, nil
}

// RequireCredentials enforces the fatal-startup contract for commands that
// talk to the model. Offline commands (lower, runs) skip it.
func (c Config) RequireCredentials() error {
	if c.APIKey == "" {
		return &llm.ConfigurationError{Message: "ANTHROPIC_API_KEY is required"}
	}
	if strings.TrimSpace(c.Model) == "" {
		return &llm.ConfigurationError{Message: "model identifier is required"}
	}
	return nil
}
