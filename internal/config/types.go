package config

import (
	"os"
	"strings"
)

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Ollama    OllamaConfig    `json:"ollama"`
	Workspace WorkspaceConfig `json:"workspace"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Memory    MemoryConfig    `json:"memory"`
	Logging   LoggingConfig   `json:"logging"`

	// SystemPrompt is the base persona. When empty, Load falls back to the
	// contents of soul.md next to the config file.
	SystemPrompt string `json:"system_prompt,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	AllowedUsers []int64 `json:"allowed_users,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type OllamaConfig struct {
	Host          string  `json:"host,omitempty"`
	Model         string  `json:"model,omitempty"`
	ContextLength int     `json:"context_length,omitempty"`
	Temperature   float64 `json:"temperature,omitempty"`
}

type WorkspaceConfig struct {
	Path string `json:"path,omitempty"`
}

// SchedulerConfig controls the cron engine.
//
// Enabled is a pointer so we can distinguish "omitted" (defaults to true)
// from an explicit false.
type SchedulerConfig struct {
	Enabled *bool `json:"enabled,omitempty"`
}

func (c SchedulerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

type MemoryConfig struct {
	Database   string `json:"database,omitempty"`
	FactsFile  string `json:"facts_file,omitempty"`
	MaxHistory int    `json:"max_history,omitempty"`
}

type LoggingConfig struct {
	Level   string            `json:"level,omitempty"`
	Console *bool             `json:"console,omitempty"`
	File    LoggingFileConfig `json:"file,omitempty"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

func (c LoggingConfig) ConsoleEnabled() bool {
	return c.Console == nil || *c.Console
}

// applyDefaults fills zero fields in place. Called after every successful parse.
func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Ollama.Host) == "" {
		c.Ollama.Host = "http://localhost:11434"
	}
	if strings.TrimSpace(c.Ollama.Model) == "" {
		c.Ollama.Model = "tinyllama"
	}
	if c.Ollama.ContextLength <= 0 {
		c.Ollama.ContextLength = 4096
	}
	if c.Ollama.Temperature <= 0 {
		c.Ollama.Temperature = 0.7
	}
	if strings.TrimSpace(c.Workspace.Path) == "" {
		c.Workspace.Path = "./workspace"
	}
	if strings.TrimSpace(c.Memory.Database) == "" {
		c.Memory.Database = "./clawbot.db"
	}
	if strings.TrimSpace(c.Memory.FactsFile) == "" {
		c.Memory.FactsFile = "./memory.md"
	}
	if c.Memory.MaxHistory <= 0 {
		c.Memory.MaxHistory = 50
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
}

// loadSoulFallback reads soul.md when no system prompt is configured.
func (c *Config) loadSoulFallback(path string) {
	if strings.TrimSpace(c.SystemPrompt) != "" {
		return
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return
	}
	c.SystemPrompt = string(b)
}
