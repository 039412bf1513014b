package core

import (
	"errors"
	"fmt"
)

// Kind classifies failures by how they should be resolved.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindValidation    Kind = "validation"
	KindLLM           Kind = "llm"
	KindWorkflow      Kind = "workflow"
	KindUnknown       Kind = "unknown"
)

// Strategy is the resolution applied to a failure kind.
type Strategy string

const (
	StrategyFailFast Strategy = "fail_fast"
	StrategyRollback Strategy = "rollback"
	StrategyRetry    Strategy = "retry"
	StrategyEscalate Strategy = "escalate"
	// StrategyNone means there is nothing to resolve.
	StrategyNone Strategy = "none"
)

// DefaultMaxRetries bounds retries of LLM-kind failures.
const DefaultMaxRetries = 3

// Error is a kind-tagged failure.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a kind-tagged error wrapping err (which may be nil).
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithDetails attaches context to the error and returns it.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// Classify returns the kind of the outermost tagged error in err's chain.
// Untagged errors are KindUnknown.
func Classify(err error) Kind {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is tagged with kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && Classify(err) == kind
}

// Resolution describes how a failure is handled.
type Resolution struct {
	Kind        Kind     `json:"kind"`
	Strategy    Strategy `json:"strategy"`
	Message     string   `json:"message"`
	Recoverable bool     `json:"recoverable"`
	MaxRetries  int      `json:"max_retries,omitempty"`
}

// Resolve maps err to its resolution strategy. A nil err resolves to
// StrategyNone.
func Resolve(err error, maxRetries int) Resolution {
	if err == nil {
		return Resolution{Kind: KindUnknown, Strategy: StrategyNone, Recoverable: true}
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	kind := Classify(err)
	switch kind {
	case KindConfiguration:
		return Resolution{Kind: kind, Strategy: StrategyFailFast, Message: "Configuration error: " + err.Error()}
	case KindValidation:
		return Resolution{Kind: kind, Strategy: StrategyRollback, Message: "Validation failed: " + err.Error(), Recoverable: true}
	case KindLLM:
		return Resolution{Kind: kind, Strategy: StrategyRetry, Message: "LLM error: " + err.Error(), Recoverable: true, MaxRetries: maxRetries}
	case KindWorkflow:
		return Resolution{Kind: kind, Strategy: StrategyRollback, Message: "Workflow error: " + err.Error(), Recoverable: true}
	default:
		return Resolution{Kind: KindUnknown, Strategy: StrategyEscalate, Message: "Unknown error: " + err.Error()}
	}
}
