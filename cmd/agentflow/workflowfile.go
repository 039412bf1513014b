package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/agentflow/internal/core"
)

// loadWorkflowConfig reads a workflow definition from a .yaml, .yml or
// .toml file. Missing fields fall back to the default five-phase workflow.
func loadWorkflowConfig(path string) (core.WorkflowConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.WorkflowConfig{}, fmt.Errorf("failed to read workflow config %s: %w", path, err)
	}

	var cfg core.WorkflowConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	default:
		return core.WorkflowConfig{}, fmt.Errorf("unsupported workflow config format %q (want .yaml or .toml)", ext)
	}
	if err != nil {
		return core.WorkflowConfig{}, fmt.Errorf("failed to parse workflow config %s: %w", path, err)
	}

	def := core.DefaultWorkflowConfig(cfg.Name)
	if len(cfg.Phases) == 0 {
		cfg.Phases = def.Phases
	}
	if len(cfg.AgentRoles) == 0 {
		cfg.AgentRoles = def.AgentRoles
	}
	if cfg.ValidationRules == nil {
		cfg.ValidationRules = def.ValidationRules
	}
	if cfg.Metadata == nil {
		cfg.Metadata = def.Metadata
	}
	return cfg, nil
}

// parsePhases turns "analysis,architecture" into phases, rejecting unknown
// names.
func parsePhases(list []string) ([]core.WorkflowPhase, error) {
	phases := make([]core.WorkflowPhase, 0, len(list))
	for _, raw := range list {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		p := core.WorkflowPhase(name)
		if !p.Valid() {
			return nil, fmt.Errorf("unknown phase %q", name)
		}
		phases = append(phases, p)
	}
	return phases, nil
}
