package agents

import (
	"context"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/agentflow/internal/contextstore"
	"github.com/fyrsmithlabs/agentflow/internal/core"
)

const analystInstructions = `Please provide a comprehensive product analysis including:

1. **Problem Statement**: Clear definition of the problem being solved
2. **User Stories**: User stories in "As a... I want... So that..." format
3. **Success Metrics**: Measurable KPIs and success criteria
4. **Technical Constraints**: Any technical limitations or requirements
5. **Risk Assessment**: Potential risks and mitigation strategies
6. **Acceptance Criteria**: Clear, testable acceptance criteria for each user story

Format your response as a structured document.`

const architectInstructions = `Please provide a comprehensive architecture design including:

1. **System Overview**: High-level architecture description
2. **Component Design**: Detailed component specifications
3. **Data Flow**: How data moves through the system
4. **API Contracts**: Interface definitions between components
5. **Design Patterns**: Architectural patterns being used
6. **Technology Stack**: Recommended technologies and frameworks
7. **Scalability Considerations**: How the system will scale
8. **Security Considerations**: Security measures and best practices

Include diagrams where appropriate (using Mermaid syntax or ASCII art).`

const developerInstructions = `Please implement the required functionality with:

1. **Clean Code**: Well-structured, readable code following best practices
2. **Error Handling**: Proper exception handling and error messages
3. **Documentation**: Docstrings and comments for complex logic
4. **Type Hints**: Use type annotations where applicable
5. **Tests**: Unit tests for the implemented functionality

Provide the code in clearly marked code blocks with file paths.`

const debuggerInstructions = `Please analyze the code for issues and provide:

1. **Issue Identification**: List all identified issues with severity levels
2. **Root Cause Analysis**: Explain the root cause of each issue
3. **Proposed Fixes**: Specific code changes to fix each issue
4. **Test Validation**: How to verify the fixes work
5. **Prevention**: Recommendations to prevent similar issues

For each issue, provide:
- Issue type (syntax, logic, runtime, performance, security)
- Severity (critical, high, medium, low)
- Location (file and line number if applicable)
- Fix code with clear before/after examples`

const reviewerInstructions = `Please provide a comprehensive code review including:

1. **Code Quality Assessment**:
   - Readability and clarity
   - Code organization and structure
   - Naming conventions
   - Code complexity

2. **Best Practices**:
   - Design patterns usage
   - SOLID principles adherence
   - DRY principle compliance
   - Error handling

3. **Performance**:
   - Potential bottlenecks
   - Resource usage
   - Optimization opportunities

4. **Security**:
   - Security vulnerabilities
   - Input validation
   - Data protection

5. **Testing**:
   - Test coverage
   - Test quality
   - Edge cases

6. **Documentation**:
   - Code comments
   - Docstrings
   - API documentation

7. **Technical Debt**:
   - Code smells
   - Refactoring opportunities
   - Maintenance concerns

Provide specific examples and actionable recommendations.`

// DefaultArtifactPath names code blocks that carry no path comment.
const DefaultArtifactPath = "generated_code.py"

// DebuggerMaxIterations is recorded on every debugger output.
const DebuggerMaxIterations = 3

var codeBlockPattern = regexp.MustCompile("(?s)```(?:python|javascript|typescript|java|go)?\\s*(?:#\\s*(.+?))?\\n(.*?)```")

// keywordCheck warns with message when keyword is absent from lowercased
// content.
type keywordCheck struct {
	keyword string
	message string
}

func warnMissing(result *core.ValidationResult, content string, checks []keywordCheck) {
	lower := strings.ToLower(content)
	for _, c := range checks {
		if !strings.Contains(lower, c.keyword) {
			result.AddWarning(c.message)
		}
	}
}

// ProductAnalyst turns a task into requirements and user stories.
type ProductAnalyst struct{ Base }

func (a *ProductAnalyst) Execute(ctx context.Context, task core.Task, c contextstore.Context) (core.AgentOutput, error) {
	return a.run(ctx, task, c, analystInstructions)
}

// ValidateOutput adds warnings for missing analysis sections and
// non-standard user stories.
func (a *ProductAnalyst) ValidateOutput(output core.AgentOutput) core.ValidationResult {
	result := a.Base.ValidateOutput(output)
	if !result.IsValid {
		return result
	}
	warnMissing(&result, output.Content, []keywordCheck{
		{"user stor", "Missing or unclear User stories section"},
		{"success", "Missing or unclear Success metrics section"},
		{"acceptance", "Missing or unclear Acceptance criteria section"},
	})
	lower := strings.ToLower(output.Content)
	if !strings.Contains(lower, "as a") || !strings.Contains(lower, "i want") {
		result.AddWarning("User stories may not follow standard format (As a... I want... So that...)")
	}
	return result
}

// Architect produces the system design.
type Architect struct{ Base }

func (a *Architect) Execute(ctx context.Context, task core.Task, c contextstore.Context) (core.AgentOutput, error) {
	return a.run(ctx, task, c, architectInstructions)
}

// ValidateOutput adds warnings for missing design elements.
func (a *Architect) ValidateOutput(output core.AgentOutput) core.ValidationResult {
	result := a.Base.ValidateOutput(output)
	if !result.IsValid {
		return result
	}
	warnMissing(&result, output.Content, []keywordCheck{
		{"component", "Missing or unclear Component design"},
		{"api", "Missing or unclear API specifications"},
		{"security", "Missing or unclear Security considerations"},
		{"pattern", "No design patterns mentioned"},
	})
	return result
}

// Developer implements the design and extracts code blocks as artifacts.
type Developer struct{ Base }

func (a *Developer) Execute(ctx context.Context, task core.Task, c contextstore.Context) (core.AgentOutput, error) {
	out, err := a.run(ctx, task, c, developerInstructions)
	if err != nil {
		return out, err
	}
	out.Artifacts = ExtractCodeArtifacts(out.Content)
	return out, nil
}

// ExtractCodeArtifacts returns one code artifact per non-empty fenced code
// block. A leading "# path" comment on the fence line or the line after it
// names the file.
func ExtractCodeArtifacts(content string) []core.Artifact {
	artifacts := []core.Artifact{}
	for _, m := range codeBlockPattern.FindAllStringSubmatch(content, -1) {
		code := strings.TrimSpace(m[2])
		if code == "" {
			continue
		}
		path := strings.TrimSpace(m[1])
		if path == "" {
			path = DefaultArtifactPath
		}
		artifacts = append(artifacts, core.Artifact{
			Type:     core.ArtifactCode,
			Path:     path,
			Content:  code,
			Metadata: map[string]any{},
		})
	}
	return artifacts
}

// Debugger finds defects in the implementation.
type Debugger struct{ Base }

func (a *Debugger) Execute(ctx context.Context, task core.Task, c contextstore.Context) (core.AgentOutput, error) {
	out, err := a.run(ctx, task, c, debuggerInstructions)
	if err != nil {
		return out, err
	}
	out.Metadata["iteration"] = 1
	out.Metadata["max_iterations"] = DebuggerMaxIterations
	return out, nil
}

// CodeReviewer reviews the finished work.
type CodeReviewer struct{ Base }

func (a *CodeReviewer) Execute(ctx context.Context, task core.Task, c contextstore.Context) (core.AgentOutput, error) {
	out, err := a.run(ctx, task, c, reviewerInstructions)
	if err != nil {
		return out, err
	}
	out.Metadata["review_type"] = "comprehensive"
	out.Metadata["approval_required"] = true
	return out, nil
}

var (
	_ Agent = (*ProductAnalyst)(nil)
	_ Agent = (*Architect)(nil)
	_ Agent = (*Developer)(nil)
	_ Agent = (*Debugger)(nil)
	_ Agent = (*CodeReviewer)(nil)
)
