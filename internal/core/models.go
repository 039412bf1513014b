package core

import (
	"time"

	"github.com/google/uuid"
)

// AgentRole identifies the specialisation of an agent.
type AgentRole string

const (
	RoleProductAnalyst AgentRole = "product_analyst"
	RoleArchitect      AgentRole = "architect"
	RoleDeveloper      AgentRole = "developer"
	RoleDebugger       AgentRole = "debugger"
	RoleCodeReviewer   AgentRole = "code_reviewer"
	RoleDataScientist  AgentRole = "data_scientist"
	RoleAIEngineer     AgentRole = "ai_engineer"
	RoleMLEngineer     AgentRole = "ml_engineer"
)

// AllRoles lists every known role in declaration order.
var AllRoles = []AgentRole{
	RoleProductAnalyst,
	RoleArchitect,
	RoleDeveloper,
	RoleDebugger,
	RoleCodeReviewer,
	RoleDataScientist,
	RoleAIEngineer,
	RoleMLEngineer,
}

// Valid reports whether r is a known role.
func (r AgentRole) Valid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

// WorkflowPhase is a named stage of a workflow.
type WorkflowPhase string

const (
	PhaseAnalysis         WorkflowPhase = "analysis"
	PhaseArchitecture     WorkflowPhase = "architecture"
	PhaseImplementation   WorkflowPhase = "implementation"
	PhaseDebugging        WorkflowPhase = "debugging"
	PhaseReview           WorkflowPhase = "review"
	PhaseDeployment       WorkflowPhase = "deployment"
	PhaseDataAnalysis     WorkflowPhase = "data_analysis"
	PhaseModelDevelopment WorkflowPhase = "model_development"
	PhaseModelEvaluation  WorkflowPhase = "model_evaluation"
)

// AllPhases lists every known phase in declaration order.
var AllPhases = []WorkflowPhase{
	PhaseAnalysis,
	PhaseArchitecture,
	PhaseImplementation,
	PhaseDebugging,
	PhaseReview,
	PhaseDeployment,
	PhaseDataAnalysis,
	PhaseModelDevelopment,
	PhaseModelEvaluation,
}

// DefaultPhases is the standard five-phase development workflow.
var DefaultPhases = []WorkflowPhase{
	PhaseAnalysis,
	PhaseArchitecture,
	PhaseImplementation,
	PhaseDebugging,
	PhaseReview,
}

// Valid reports whether p is a known phase.
func (p WorkflowPhase) Valid() bool {
	for _, known := range AllPhases {
		if p == known {
			return true
		}
	}
	return false
}

// TaskPriority orders tasks by urgency.
type TaskPriority string

const (
	PriorityLow      TaskPriority = "low"
	PriorityMedium   TaskPriority = "medium"
	PriorityHigh     TaskPriority = "high"
	PriorityCritical TaskPriority = "critical"
)

// ValidationStatus tracks where an output is in validation.
type ValidationStatus string

const (
	ValidationPending     ValidationStatus = "pending"
	ValidationPassed      ValidationStatus = "passed"
	ValidationFailed      ValidationStatus = "failed"
	ValidationNeedsReview ValidationStatus = "needs_review"
)

// ArtifactType is the kind of file-like output attached to an AgentOutput.
type ArtifactType string

const (
	ArtifactCode          ArtifactType = "code"
	ArtifactDocumentation ArtifactType = "documentation"
	ArtifactDiagram       ArtifactType = "diagram"
	ArtifactTest          ArtifactType = "test"
	ArtifactConfig        ArtifactType = "config"
	ArtifactData          ArtifactType = "data"
	ArtifactModel         ArtifactType = "model"
	ArtifactReport        ArtifactType = "report"
)

// Severity grades validation findings.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Task is one unit of work for a single agent invocation.
type Task struct {
	ID           string         `json:"id"`
	Description  string         `json:"description"`
	Requirements []string       `json:"requirements"`
	ContextIDs   []string       `json:"context_ids"`
	Priority     TaskPriority   `json:"priority"`
	Metadata     map[string]any `json:"metadata"`
	CreatedAt    time.Time      `json:"created_at"`
}

// NewTask creates a medium priority task with a fresh id.
func NewTask(description string, requirements []string, metadata map[string]any) Task {
	if metadata == nil {
		metadata = map[string]any{}
	}
	if requirements == nil {
		requirements = []string{}
	}
	return Task{
		ID:           uuid.NewString(),
		Description:  description,
		Requirements: requirements,
		ContextIDs:   []string{},
		Priority:     PriorityMedium,
		Metadata:     metadata,
		CreatedAt:    time.Now().UTC(),
	}
}

// Artifact is a generated file-like output.
type Artifact struct {
	Type     ArtifactType   `json:"type"`
	Path     string         `json:"path"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// AgentOutput is the result of one agent invocation.
type AgentOutput struct {
	AgentRole        AgentRole        `json:"agent_role"`
	TaskID           string           `json:"task_id"`
	Content          string           `json:"content"`
	Artifacts        []Artifact       `json:"artifacts"`
	ValidationStatus ValidationStatus `json:"validation_status"`
	Metadata         map[string]any   `json:"metadata"`
	CreatedAt        time.Time        `json:"created_at"`
}

// NewAgentOutput creates a pending output for role and task.
func NewAgentOutput(role AgentRole, taskID, content string) AgentOutput {
	return AgentOutput{
		AgentRole:        role,
		TaskID:           taskID,
		Content:          content,
		Artifacts:        []Artifact{},
		ValidationStatus: ValidationPending,
		Metadata:         map[string]any{},
		CreatedAt:        time.Now().UTC(),
	}
}

// ValidationError is a structured validation finding.
type ValidationError struct {
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Severity   Severity `json:"severity"`
	Location   string   `json:"location,omitempty"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// ValidationResult is the outcome of validating one agent output.
// IsValid is false iff at least one error is present.
type ValidationResult struct {
	IsValid     bool              `json:"is_valid"`
	Errors      []ValidationError `json:"errors"`
	Warnings    []string          `json:"warnings"`
	Suggestions []string          `json:"suggestions"`
}

// NewValidationResult returns a valid, empty result.
func NewValidationResult() ValidationResult {
	return ValidationResult{
		IsValid:     true,
		Errors:      []ValidationError{},
		Warnings:    []string{},
		Suggestions: []string{},
	}
}

// AddError appends err and marks the result invalid.
func (r *ValidationResult) AddError(err ValidationError) {
	r.Errors = append(r.Errors, err)
	r.IsValid = false
}

// AddWarning appends a warning; validity is unchanged.
func (r *ValidationResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// PhaseValidationResult is the outcome of validating a whole phase.
type PhaseValidationResult struct {
	Phase       WorkflowPhase     `json:"phase"`
	IsValid     bool              `json:"is_valid"`
	Errors      []ValidationError `json:"errors"`
	Warnings    []string          `json:"warnings"`
	Suggestions []string          `json:"suggestions"`
	ValidatedAt time.Time         `json:"validated_at"`
}

// NewPhaseValidationResult returns a valid, empty result for phase.
func NewPhaseValidationResult(phase WorkflowPhase) PhaseValidationResult {
	return PhaseValidationResult{
		Phase:       phase,
		IsValid:     true,
		Errors:      []ValidationError{},
		Warnings:    []string{},
		Suggestions: []string{},
		ValidatedAt: time.Now().UTC(),
	}
}

// AddError appends err and marks the result invalid.
func (r *PhaseValidationResult) AddError(err ValidationError) {
	r.Errors = append(r.Errors, err)
	r.IsValid = false
}

// CloneMetadata returns a shallow copy of m, never nil.
func CloneMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
