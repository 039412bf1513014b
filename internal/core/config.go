package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("phase", func(fl validator.FieldLevel) bool {
		return WorkflowPhase(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return AgentRole(fl.Field().String()).Valid()
	})
	return v
}

// WorkflowConfig describes one workflow run. Phase order drives execution;
// phase to role resolution is fixed by the orchestrator, not by AgentRoles.
type WorkflowConfig struct {
	ID              string                     `json:"id,omitempty" yaml:"id" toml:"id" validate:"omitempty,max=128"`
	Name            string                     `json:"name,omitempty" yaml:"name" toml:"name" validate:"max=256"`
	Phases          []WorkflowPhase            `json:"phases" yaml:"phases" toml:"phases" validate:"dive,phase"`
	AgentRoles      []AgentRole                `json:"agent_roles" yaml:"agent_roles" toml:"agent_roles" validate:"dive,role"`
	ValidationRules map[WorkflowPhase][]string `json:"validation_rules,omitempty" yaml:"validation_rules" toml:"validation_rules" validate:"dive,keys,phase,endkeys"`
	Metadata        map[string]any             `json:"metadata,omitempty" yaml:"metadata" toml:"metadata"`
}

// DefaultWorkflowConfig returns the five-phase development workflow.
func DefaultWorkflowConfig(name string) WorkflowConfig {
	return WorkflowConfig{
		Name:   name,
		Phases: append([]WorkflowPhase(nil), DefaultPhases...),
		AgentRoles: []AgentRole{
			RoleProductAnalyst,
			RoleArchitect,
			RoleDeveloper,
			RoleDebugger,
			RoleCodeReviewer,
		},
		ValidationRules: map[WorkflowPhase][]string{},
		Metadata:        map[string]any{},
	}
}

// Validate checks enum membership and field bounds.
func (c WorkflowConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return NewError(KindConfiguration, "invalid workflow config", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: %v failed %q", fe.Namespace(), fe.Value(), fe.Tag()))
	}
	return NewError(KindConfiguration, "invalid workflow config: "+strings.Join(msgs, "; "), err)
}
