// internal/logging/context.go
package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type workflowCtxKey struct{}
type phaseCtxKey struct{}
type roleCtxKey struct{}
type requestCtxKey struct{}
type loggerCtxKey struct{}

// ContextFields extracts correlation data from ctx.
func ContextFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	fields := make([]zap.Field, 0, 6)

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}
	if id := WorkflowIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("workflow_id", id))
	}
	if phase := PhaseFromContext(ctx); phase != "" {
		fields = append(fields, zap.String("phase", phase))
	}
	if role := AgentRoleFromContext(ctx); role != "" {
		fields = append(fields, zap.String("agent_role", role))
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	return fields
}

// WithWorkflowID tags ctx with the workflow being executed.
func WithWorkflowID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workflowCtxKey{}, id)
}

// WorkflowIDFromContext returns the workflow id in ctx, if any.
func WorkflowIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(workflowCtxKey{}).(string)
	return s
}

// WithPhase tags ctx with the current workflow phase.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, phaseCtxKey{}, phase)
}

// PhaseFromContext returns the phase in ctx, if any.
func PhaseFromContext(ctx context.Context) string {
	s, _ := ctx.Value(phaseCtxKey{}).(string)
	return s
}

// WithAgentRole tags ctx with the acting agent role.
func WithAgentRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleCtxKey{}, role)
}

// AgentRoleFromContext returns the agent role in ctx, if any.
func AgentRoleFromContext(ctx context.Context) string {
	s, _ := ctx.Value(roleCtxKey{}).(string)
	return s
}

// WithRequestID tags ctx with an inbound request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestCtxKey{}, id)
}

// RequestIDFromContext returns the request id in ctx, if any.
func RequestIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(requestCtxKey{}).(string)
	return s
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves the logger stored in ctx, or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok && l != nil {
		return l
	}
	return NewNop()
}
