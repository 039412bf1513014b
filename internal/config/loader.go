package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
	envPrefix         = "AGENTFLOW_"
)

// wellKnownEnv maps provider-native variables onto config keys. They are
// applied after AGENTFLOW_ variables only when those left the key empty.
var wellKnownEnv = map[string]string{
	"ANTHROPIC_API_KEY": "llm.claude.api_key",
	"OPENAI_API_KEY":    "llm.openai.api_key",
	"OLLAMA_HOST":       "llm.ollama.base_url",
}

// LoadWithFile loads configuration from a YAML file, then overrides it with
// environment variables.
//
// Precedence (highest first):
//  1. AGENTFLOW_* environment variables
//  2. ANTHROPIC_API_KEY, OPENAI_API_KEY, OLLAMA_HOST
//  3. the YAML file
//  4. Default()
//
// An empty configPath means ~/.config/agentflow/config.yaml. A missing file
// is not an error.
//
// # Security
//
// The file must live in ~/.config/agentflow/, /etc/agentflow/ or the
// working directory's .multi_agent/, must be 0600 or 0400 and at most 1MB.
//
// # Environment mapping
//
// The prefix is stripped, the rest lowercased and split on the first
// underscore into section.field; a double underscore descends one level:
//
//	AGENTFLOW_LLM_DEFAULT_PROVIDER -> llm.default_provider
//	AGENTFLOW_SERVER_HTTP_PORT     -> server.http_port
//	AGENTFLOW_LLM_CLAUDE__MODEL    -> llm.claude.model
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "agentflow", "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	for name, key := range wellKnownEnv {
		if v := os.Getenv(name); v != "" {
			if err := k.Set(key, v); err != nil {
				return nil, fmt.Errorf("failed to apply %s: %w", name, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// envKey maps AGENTFLOW_SECTION_FIELD__SUB to section.field.sub.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	lower = strings.ReplaceAll(lower, "__", ".")
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// readConfigFile validates and reads path through a single descriptor.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// EnsureConfigDir creates ~/.config/agentflow with 0700 permissions.
func EnsureConfigDir() error {
	dir, err := userConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}
	return nil
}

func userConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "agentflow"), nil
}

// validateConfigPath rejects paths outside the allowed directories.
// Symlinks are resolved first; paths that do not exist yet are checked as-is.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolved = absPath
	}

	userDir, err := userConfigDir()
	if err != nil {
		return err
	}
	allowed := []string{userDir, filepath.Join(string(filepath.Separator), "etc", "agentflow")}
	if wd, err := os.Getwd(); err == nil {
		allowed = append(allowed, filepath.Join(wd, ".multi_agent"))
	}

	for _, dir := range allowed {
		if resolved == dir || strings.HasPrefix(resolved, dir+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/agentflow/, /etc/agentflow/ or ./.multi_agent/")
}

// validateConfigFileProperties checks permissions and size of an open file.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}
