// Package config loads utforge configuration from YAML with environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all utforge configuration.
type Config struct {
	// LLM configures the generation model.
	LLM LLMConfig `yaml:"llm"`

	// Toolchain configures the C build/run/coverage tools.
	Toolchain ToolchainConfig `yaml:"toolchain"`

	// Pipeline configures request orchestration.
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Store configures run-history persistence.
	Store StoreConfig `yaml:"store"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the text-completion collaborator.
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Timeout  string `yaml:"timeout"`
}

// ToolchainConfig configures external build tools and execution limits.
type ToolchainConfig struct {
	MakePath      string `yaml:"make_path"`
	GcovPath      string `yaml:"gcov_path"`
	RunTimeout    string `yaml:"run_timeout"`
	WorkspaceRoot string `yaml:"workspace_root"`
	KeepArtifacts bool   `yaml:"keep_artifacts"`
	MaxOutputKB   int    `yaml:"max_output_kb"`
}

// PipelineConfig bounds concurrent toolchain executions.
type PipelineConfig struct {
	MaxConcurrentRuns int `yaml:"max_concurrent_runs"`
}

// StoreConfig configures the SQLite run history.
type StoreConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures categorized logging.
type LoggingConfig struct {
	Debug      bool            `yaml:"debug"`
	Categories map[string]bool `yaml:"categories"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.5-pro",
			Timeout:  "3m",
		},
		Toolchain: ToolchainConfig{
			MakePath:      "make",
			GcovPath:      "gcov",
			RunTimeout:    "5m",
			WorkspaceRoot: filepath.Join(os.TempDir(), "utforge"),
			MaxOutputKB:   1024,
		},
		Pipeline: PipelineConfig{
			MaxConcurrentRuns: 4,
		},
		Store: StoreConfig{
			Enabled:      true,
			DatabasePath: "utforge.db",
		},
	}
}

// Load reads config from path, merged over defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays UTFORGE_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("UTFORGE_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("GOOGLE_API_KEY"); v != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("UTFORGE_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("UTFORGE_WORKSPACE_ROOT"); v != "" {
		c.Toolchain.WorkspaceRoot = v
	}
	if v := os.Getenv("UTFORGE_DB_PATH"); v != "" {
		c.Store.DatabasePath = v
	}
}

// Validate checks structural invariants that would otherwise surface deep
// inside the pipeline.
func (c *Config) Validate() error {
	if _, err := c.LLMTimeout(); err != nil {
		return fmt.Errorf("llm.timeout: %w", err)
	}
	if _, err := c.RunTimeout(); err != nil {
		return fmt.Errorf("toolchain.run_timeout: %w", err)
	}
	if c.Pipeline.MaxConcurrentRuns < 1 {
		return fmt.Errorf("pipeline.max_concurrent_runs must be >= 1, got %d", c.Pipeline.MaxConcurrentRuns)
	}
	return nil
}

// LLMTimeout parses the model call deadline.
func (c *Config) LLMTimeout() (time.Duration, error) {
	return parseDuration(c.LLM.Timeout, 3*time.Minute)
}

// RunTimeout parses the overall compile+run+coverage deadline.
func (c *Config) RunTimeout() (time.Duration, error) {
	return parseDuration(c.Toolchain.RunTimeout, 5*time.Minute)
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", d)
	}
	return d, nil
}
