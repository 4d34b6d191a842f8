package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all stridecoach configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Tool-server boundary
	Tools ToolsConfig `yaml:"tools"`

	// Turn and pipeline deadlines
	Deadlines DeadlinesConfig `yaml:"deadlines"`

	// Data server storage
	Store StoreConfig `yaml:"store"`

	// Retrieval corpus
	Corpus CorpusConfig `yaml:"corpus"`

	// Prompt server
	Prompts PromptsConfig `yaml:"prompts"`

	// Reserved for the external activity-sync collaborator
	Sync SyncConfig `yaml:"sync"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ToolsConfig configures the MCP tool-client boundary.
type ToolsConfig struct {
	DataEndpoint   string `yaml:"data_tool_endpoint"`
	PromptEndpoint string `yaml:"prompt_tool_endpoint"`
	CallTimeoutSec int    `yaml:"tool_call_timeout_seconds"`
}

// DeadlinesConfig configures per-turn and per-plan deadlines.
type DeadlinesConfig struct {
	TurnSec int `yaml:"turn_deadline_seconds"`
	PlanSec int `yaml:"plan_deadline_seconds"`
}

// StoreConfig configures the data server's SQLite database.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// CorpusConfig configures the retrieval corpus.
type CorpusConfig struct {
	Dir string `yaml:"dir"`
}

// PromptsConfig configures the prompt file server.
type PromptsConfig struct {
	Dir string `yaml:"dir"`
}

// SyncConfig is reserved; consumed by the external activity-sync collaborator.
type SyncConfig struct {
	RecentUserWindowHours int `yaml:"sync_recent_user_window_hours"`
}

// LoggingConfig configures logging output.
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

// DefaultConfig returns a Config with sane defaults. Tool endpoints are
// deliberately left empty: the controller must refuse to run without them.
func DefaultConfig() *Config {
	return &Config{
		Name:    "stridecoach",
		Version: "0.1.0",
		Tools: ToolsConfig{
			CallTimeoutSec: 30,
		},
		Deadlines: DeadlinesConfig{
			TurnSec: 60,
			PlanSec: 120,
		},
		Store: StoreConfig{
			DatabasePath: filepath.Join(".stride", "stride.db"),
		},
		Corpus: CorpusConfig{
			Dir: "corpus",
		},
		Prompts: PromptsConfig{
			Dir: "prompts",
		},
		Sync: SyncConfig{
			RecentUserWindowHours: 2,
		},
	}
}

// Load reads configuration from the given YAML file, applying defaults for
// missing fields and environment overrides last. A missing file yields the
// defaults plus env overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// LoadEnvFile loads a .env file if present; missing files are not an error.
func LoadEnvFile(path string) {
	_ = godotenv.Load(path)
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("STRIDE_DATA_TOOL_URL"); v != "" {
		c.Tools.DataEndpoint = v
	}
	if v := os.Getenv("STRIDE_PROMPT_TOOL_URL"); v != "" {
		c.Tools.PromptEndpoint = v
	}
	if v := os.Getenv("STRIDE_DB_PATH"); v != "" {
		c.Store.DatabasePath = v
	}
	if v := os.Getenv("STRIDE_CORPUS_DIR"); v != "" {
		c.Corpus.Dir = v
	}
	if v := os.Getenv("STRIDE_PROMPTS_DIR"); v != "" {
		c.Prompts.Dir = v
	}
	if os.Getenv("STRIDE_DEBUG") == "1" {
		c.Logging.Debug = true
	}
}

// Save writes the configuration to the given path as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate enforces the fail-closed rule: both tool endpoints must be
// configured before the controller may start.
func (c *Config) Validate() error {
	if c.Tools.DataEndpoint == "" {
		return fmt.Errorf("data_tool_endpoint is not configured")
	}
	if c.Tools.PromptEndpoint == "" {
		return fmt.Errorf("prompt_tool_endpoint is not configured")
	}
	if c.Tools.CallTimeoutSec <= 0 {
		return fmt.Errorf("tool_call_timeout_seconds must be positive, got %d", c.Tools.CallTimeoutSec)
	}
	if c.Deadlines.TurnSec <= 0 {
		return fmt.Errorf("turn_deadline_seconds must be positive, got %d", c.Deadlines.TurnSec)
	}
	if c.Deadlines.PlanSec <= 0 {
		return fmt.Errorf("plan_deadline_seconds must be positive, got %d", c.Deadlines.PlanSec)
	}
	return nil
}

// ToolCallTimeout returns the default per-call timeout for the tool client.
func (c *Config) ToolCallTimeout() time.Duration {
	return time.Duration(c.Tools.CallTimeoutSec) * time.Second
}

// TurnDeadline returns the total deadline for one controller turn.
func (c *Config) TurnDeadline() time.Duration {
	return time.Duration(c.Deadlines.TurnSec) * time.Second
}

// PlanDeadline returns the total deadline for one planning invocation.
func (c *Config) PlanDeadline() time.Duration {
	return time.Duration(c.Deadlines.PlanSec) * time.Second
}
