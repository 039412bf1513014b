// Package config provides configuration loading for agentflow.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then environment variables. See LoadWithFile.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the complete agentflow configuration.
type Config struct {
	System    SystemConfig    `koanf:"system"`
	Workflow  WorkflowConfig  `koanf:"workflow"`
	Agents    AgentsConfig    `koanf:"agents"`
	LLM       LLMConfig       `koanf:"llm"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Server    ServerConfig    `koanf:"server"`
	Events    EventsConfig    `koanf:"events"`
	VCS       VCSConfig       `koanf:"vcs"`
	Secrets   SecretsConfig   `koanf:"secrets"`
}

// SystemConfig locates templates and on-disk state.
type SystemConfig struct {
	AgentTemplatesDir  string `koanf:"agent_templates_dir"`
	CustomTemplatesDir string `koanf:"custom_templates_dir"`
	StorageRoot        string `koanf:"storage_root"`
	WatchTemplates     bool   `koanf:"watch_templates"`
}

// ContextDir is where context snapshots are written.
func (s SystemConfig) ContextDir() string { return filepath.Join(s.StorageRoot, "context") }

// WorkflowsDir is where workflow states are written.
func (s SystemConfig) WorkflowsDir() string { return filepath.Join(s.StorageRoot, "workflows") }

// LogDir is where activity logs are written.
func (s SystemConfig) LogDir() string { return filepath.Join(s.StorageRoot, "logs") }

// WorkflowConfig bounds workflow execution.
type WorkflowConfig struct {
	MaxRollbackAttempts int      `koanf:"max_rollback_attempts"`
	ValidationTimeout   Duration `koanf:"validation_timeout"`
}

// AgentsConfig bounds agent execution.
type AgentsConfig struct {
	MaxRetryAttempts int      `koanf:"max_retry_attempts"`
	Timeout          Duration `koanf:"timeout"`
}

// ProviderConfig configures one generation backend.
type ProviderConfig struct {
	APIKey      Secret  `koanf:"api_key"`
	Model       string  `koanf:"model"`
	BaseURL     string  `koanf:"base_url"`
	MaxTokens   int     `koanf:"max_tokens"`
	Temperature float64 `koanf:"temperature"`
}

// LLMConfig selects and tunes generation backends.
type LLMConfig struct {
	DefaultProvider string         `koanf:"default_provider"`
	Claude          ProviderConfig `koanf:"claude"`
	OpenAI          ProviderConfig `koanf:"openai"`
	Ollama          ProviderConfig `koanf:"ollama"`
	RateLimit       float64        `koanf:"rate_limit"`
	Burst           int            `koanf:"burst"`
	MaxRetries      int            `koanf:"max_retries"`
	RetryDelay      Duration       `koanf:"retry_delay"`
	Timeout         Duration       `koanf:"timeout"`
}

// Provider returns the settings for name.
func (l LLMConfig) Provider(name string) (ProviderConfig, bool) {
	switch name {
	case ProviderClaude:
		return l.Claude, true
	case ProviderOpenAI:
		return l.OpenAI, true
	case ProviderOllama:
		return l.Ollama, true
	}
	return ProviderConfig{}, false
}

// Provider names.
const (
	ProviderClaude = "claude"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// LoggingConfig is the user-facing subset of logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	OTEL   bool   `koanf:"otel"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled        bool    `koanf:"enabled"`
	Endpoint       string  `koanf:"endpoint"`
	Protocol       string  `koanf:"protocol"`
	Insecure       bool    `koanf:"insecure"`
	ServiceName    string  `koanf:"service_name"`
	ServiceVersion string  `koanf:"service_version"`
	SamplingRate   float64 `koanf:"sampling_rate"`
}

// ServerConfig configures the HTTP status API.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// EventsConfig configures the NATS event bus. An empty URL disables it.
type EventsConfig struct {
	NATSURL       string `koanf:"nats_url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// VCSConfig configures git integration.
type VCSConfig struct {
	Enabled      bool   `koanf:"enabled"`
	RepoPath     string `koanf:"repo_path"`
	AuthorName   string `koanf:"author_name"`
	AuthorEmail  string `koanf:"author_email"`
	CreateBranch bool   `koanf:"create_branch"`
}

// SecretsConfig configures prompt scrubbing.
type SecretsConfig struct {
	ScrubPrompts bool `koanf:"scrub_prompts"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		System: SystemConfig{
			AgentTemplatesDir:  filepath.Join("agents", "templates"),
			CustomTemplatesDir: filepath.Join("agents", "custom"),
			StorageRoot:        ".multi_agent",
		},
		Workflow: WorkflowConfig{
			MaxRollbackAttempts: 3,
			ValidationTimeout:   Duration(300 * time.Second),
		},
		Agents: AgentsConfig{
			MaxRetryAttempts: 3,
			Timeout:          Duration(600 * time.Second),
		},
		LLM: LLMConfig{
			DefaultProvider: ProviderClaude,
			Claude: ProviderConfig{
				Model:       "claude-3-5-sonnet-20241022",
				BaseURL:     "https://api.anthropic.com",
				MaxTokens:   4096,
				Temperature: 0.7,
			},
			OpenAI: ProviderConfig{
				Model:       "gpt-4-turbo-preview",
				BaseURL:     "https://api.openai.com",
				MaxTokens:   4096,
				Temperature: 0.7,
			},
			Ollama: ProviderConfig{
				Model:       "llama3",
				BaseURL:     "http://localhost:11434",
				MaxTokens:   4096,
				Temperature: 0.7,
			},
			RateLimit:  50.0 / 60.0,
			Burst:      5,
			MaxRetries: 3,
			RetryDelay: Duration(time.Second),
			Timeout:    Duration(120 * time.Second),
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Telemetry: TelemetryConfig{
			Endpoint:       "localhost:4317",
			Protocol:       "grpc",
			Insecure:       true,
			ServiceName:    "agentflow",
			ServiceVersion: "0.1.0",
			SamplingRate:   1.0,
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            9090,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Events: EventsConfig{SubjectPrefix: "agentflow"},
		VCS: VCSConfig{
			RepoPath:    ".",
			AuthorName:  "agentflow",
			AuthorEmail: "agentflow@localhost",
		},
		Secrets: SecretsConfig{ScrubPrompts: true},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.System.StorageRoot == "" {
		errs = append(errs, errors.New("system.storage_root is required"))
	}
	if c.Workflow.MaxRollbackAttempts < 0 {
		errs = append(errs, fmt.Errorf("workflow.max_rollback_attempts must be >= 0, got %d", c.Workflow.MaxRollbackAttempts))
	}
	if c.Agents.MaxRetryAttempts < 1 {
		errs = append(errs, fmt.Errorf("agents.max_retry_attempts must be >= 1, got %d", c.Agents.MaxRetryAttempts))
	}
	if _, ok := c.LLM.Provider(c.LLM.DefaultProvider); !ok {
		errs = append(errs, fmt.Errorf("llm.default_provider %q is not one of claude, openai, ollama", c.LLM.DefaultProvider))
	}
	if c.LLM.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("llm.max_retries must be >= 1, got %d", c.LLM.MaxRetries))
	}
	if c.LLM.RateLimit <= 0 || c.LLM.Burst < 1 {
		errs = append(errs, errors.New("llm.rate_limit must be > 0 and llm.burst >= 1"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port))
	}
	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			errs = append(errs, errors.New("telemetry.endpoint is required when telemetry is enabled"))
		}
		if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
			errs = append(errs, fmt.Errorf("telemetry.sampling_rate must be between 0 and 1, got %f", c.Telemetry.SamplingRate))
		}
	}
	if c.Events.NATSURL != "" && c.Events.SubjectPrefix == "" {
		errs = append(errs, errors.New("events.subject_prefix is required when events.nats_url is set"))
	}

	return errors.Join(errs...)
}
