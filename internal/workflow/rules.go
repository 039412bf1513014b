package workflow

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/agentflow/internal/core"
)

// RuleValidator evaluates one rule against a phase's outputs and returns a
// message per finding. No findings means the rule passed.
type RuleValidator interface {
	Validate(rule ValidationRule, outputs []core.AgentOutput) []string
}

// RuleValidatorFunc adapts a function to RuleValidator.
type RuleValidatorFunc func(rule ValidationRule, outputs []core.AgentOutput) []string

// Validate calls f.
func (f RuleValidatorFunc) Validate(rule ValidationRule, outputs []core.AgentOutput) []string {
	return f(rule, outputs)
}

// Built-in validator names.
const (
	ValidatorMinContentLength = "min_content_length"
	ValidatorHasArtifacts     = "has_artifacts"
	ValidatorNoPlaceholders   = "no_placeholders"
)

// minContentLength is the threshold used by the min_content_length validator.
const minContentLength = 50

// BuiltinValidators returns the validators registered by NewManager.
func BuiltinValidators() map[string]RuleValidator {
	return map[string]RuleValidator{
		ValidatorMinContentLength: RuleValidatorFunc(validateMinContentLength),
		ValidatorHasArtifacts:     RuleValidatorFunc(validateHasArtifacts),
		ValidatorNoPlaceholders:   RuleValidatorFunc(validateNoPlaceholders),
	}
}

func validateMinContentLength(_ ValidationRule, outputs []core.AgentOutput) []string {
	var findings []string
	for _, out := range outputs {
		if len(strings.TrimSpace(out.Content)) < minContentLength {
			findings = append(findings, fmt.Sprintf("output of %s for task %s is shorter than %d characters",
				out.AgentRole, out.TaskID, minContentLength))
		}
	}
	return findings
}

func validateHasArtifacts(_ ValidationRule, outputs []core.AgentOutput) []string {
	for _, out := range outputs {
		if len(out.Artifacts) > 0 {
			return nil
		}
	}
	return []string{"no artifacts were produced"}
}

var placeholderMarkers = []string{"TODO", "FIXME", "lorem ipsum"}

func validateNoPlaceholders(_ ValidationRule, outputs []core.AgentOutput) []string {
	var findings []string
	for _, out := range outputs {
		lower := strings.ToLower(out.Content)
		for _, marker := range placeholderMarkers {
			if strings.Contains(lower, strings.ToLower(marker)) {
				findings = append(findings, fmt.Sprintf("output of %s contains placeholder %q", out.AgentRole, marker))
			}
		}
	}
	return findings
}
