// Package templates parses markdown agent templates and resolves them to
// agent roles.
//
// A template is a markdown document whose title names the role and whose
// second-level sections describe it:
//
//	# Agent Role: Developer
//
//	## Responsibilities
//	- Write clean, maintainable code
//
//	## System Prompt
//	You are an expert {{language}} developer.
//
//	## Variables
//	language: Python
//
// Recognised sections are Responsibilities, Constraints, System Prompt,
// Input Format, Output Format, Validation Rules and Metadata/Variables.
// Unknown sections are ignored.
package templates

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// UnknownRole is the role name of a template without any title.
const UnknownRole = "Unknown"

var (
	// ErrEmptyTemplate is returned by Parse for blank input.
	ErrEmptyTemplate = errors.New("template is empty")

	// ErrNoTemplate is returned when no template is registered for a role.
	ErrNoTemplate = errors.New("no template found for role")
)

var (
	roleTitlePattern = regexp.MustCompile(`(?i)#\s+Agent Role:\s*(.+)`)
	titlePattern     = regexp.MustCompile(`(?m)^#\s+(.+)$`)
	sectionPattern   = regexp.MustCompile(`^##\s+(.+)$`)
	listItemPattern  = regexp.MustCompile(`(?m)^\s*[-*]\s+(.+)$`)
	variablePattern  = regexp.MustCompile(`^\s*-?\s*(\w+):\s*(.+)$`)
)

// Template is a parsed agent template.
type Template struct {
	RoleName         string            `json:"role_name"`
	Responsibilities []string          `json:"responsibilities"`
	Constraints      []string          `json:"constraints"`
	SystemPrompt     string            `json:"system_prompt"`
	InputFormat      string            `json:"input_format"`
	OutputFormat     string            `json:"output_format"`
	ValidationRules  []string          `json:"validation_rules"`
	Metadata         map[string]any    `json:"metadata"`
	Variables        map[string]string `json:"variables"`

	// Source is the file the template was loaded from, empty for built-ins.
	Source string `json:"source,omitempty"`
}

// Parse parses markdown template content.
func Parse(content string) (*Template, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyTemplate
	}

	t := &Template{
		RoleName:         roleName(content),
		Responsibilities: []string{},
		Constraints:      []string{},
		ValidationRules:  []string{},
		Metadata:         map[string]any{},
		Variables:        map[string]string{},
	}

	for _, s := range splitSections(content) {
		name := strings.ToLower(s.name)
		switch {
		case strings.Contains(name, "responsibilit"):
			t.Responsibilities = listItems(s.body)
		case strings.Contains(name, "constraint"):
			t.Constraints = listItems(s.body)
		case strings.Contains(name, "system prompt"):
			t.SystemPrompt = strings.TrimSpace(s.body)
		case strings.Contains(name, "input format"):
			t.InputFormat = strings.TrimSpace(s.body)
		case strings.Contains(name, "output format"):
			t.OutputFormat = strings.TrimSpace(s.body)
		case strings.Contains(name, "validation"):
			t.ValidationRules = listItems(s.body)
		case strings.Contains(name, "metadata"), strings.Contains(name, "variable"):
			t.Variables = variables(s.body)
		}
	}
	return t, nil
}

// ParseFile reads and parses the template at path.
func ParseFile(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading template: %w", err)
	}
	t, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	t.Source = path
	return t, nil
}

// Render returns a copy of t with {{name}} placeholders in the system prompt
// replaced. vars override the template's own variables.
func (t *Template) Render(vars map[string]string) *Template {
	out := t.clone()
	for k, v := range vars {
		out.Variables[k] = v
	}
	prompt := out.SystemPrompt
	for k, v := range out.Variables {
		prompt = strings.ReplaceAll(prompt, "{{"+k+"}}", v)
	}
	out.SystemPrompt = prompt
	return out
}

func (t *Template) clone() *Template {
	out := *t
	out.Responsibilities = append([]string{}, t.Responsibilities...)
	out.Constraints = append([]string{}, t.Constraints...)
	out.ValidationRules = append([]string{}, t.ValidationRules...)
	out.Metadata = make(map[string]any, len(t.Metadata))
	for k, v := range t.Metadata {
		out.Metadata[k] = v
	}
	out.Variables = make(map[string]string, len(t.Variables))
	for k, v := range t.Variables {
		out.Variables[k] = v
	}
	return &out
}

// Validate reports what t is missing. An empty slice means t is usable.
func Validate(t *Template) []string {
	var errs []string
	if t.RoleName == "" || t.RoleName == UnknownRole {
		errs = append(errs, "Template missing role name")
	}
	if t.SystemPrompt == "" {
		errs = append(errs, "Template missing system prompt")
	}
	if len(t.Responsibilities) == 0 {
		errs = append(errs, "Template missing responsibilities")
	}
	return errs
}

// ValidateFile parses path and validates the result. Parse failures are
// reported as a single message.
func ValidateFile(path string) []string {
	t, err := ParseFile(path)
	if err != nil {
		return []string{"Failed to parse template: " + err.Error()}
	}
	return Validate(t)
}

func roleName(content string) string {
	if m := roleTitlePattern.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := titlePattern.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	return UnknownRole
}

type section struct {
	name string
	body string
}

// splitSections returns the "## " sections of content in document order.
// Text before the first section is dropped.
func splitSections(content string) []section {
	var (
		out     []section
		current *section
		lines   []string
	)
	flush := func() {
		if current != nil {
			current.body = strings.Join(lines, "\n")
			out = append(out, *current)
		}
	}
	for _, line := range strings.Split(content, "\n") {
		if m := sectionPattern.FindStringSubmatch(line); m != nil {
			flush()
			current = &section{name: strings.TrimSpace(m[1])}
			lines = nil
			continue
		}
		if current != nil {
			lines = append(lines, line)
		}
	}
	flush()
	return out
}

func listItems(body string) []string {
	items := []string{}
	for _, m := range listItemPattern.FindAllStringSubmatch(body, -1) {
		if item := strings.TrimSpace(m[1]); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func variables(body string) map[string]string {
	vars := map[string]string{}
	for _, line := range strings.Split(body, "\n") {
		if m := variablePattern.FindStringSubmatch(line); m != nil {
			vars[strings.TrimSpace(m[1])] = strings.TrimSpace(m[2])
		}
	}
	return vars
}
