package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentflow/internal/activitylog"
	"github.com/fyrsmithlabs/agentflow/internal/logging"
	"github.com/fyrsmithlabs/agentflow/internal/secrets"
	"github.com/fyrsmithlabs/agentflow/internal/workflow"
)

// Workflows reads workflow state. *workflow.Manager satisfies it.
type Workflows interface {
	State(id string) (*workflow.State, bool)
	History(id string) []workflow.Transition
	List() []string
}

// Activities reads the activity log. *activitylog.Log satisfies it.
type Activities interface {
	Query(f activitylog.Filter) []activitylog.Entry
	SummaryReport(workflowID string) activitylog.Summary
}

// Server is an MCP server over workflow state and the activity log.
type Server struct {
	mcp          *mcp.Server
	workflows    Workflows
	activities   Activities
	scrubber     secrets.Scrubber
	toolRegistry *ToolRegistry
	metrics      *toolMetrics
	logger       *logging.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "agentflow")
	Name string

	// Version is the server version (default: "1.0.0")
	Version string

	// Logger for structured logging
	Logger *logging.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "agentflow",
		Version: "1.0.0",
		Logger:  logging.NewNop(),
	}
}

// NewServer creates a new MCP server reading from wf and acts.
func NewServer(cfg *Config, wf Workflows, acts Activities, scrubber secrets.Scrubber) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if wf == nil {
		return nil, fmt.Errorf("workflow source is required")
	}
	if acts == nil {
		return nil, fmt.Errorf("activity source is required")
	}
	if scrubber == nil {
		return nil, fmt.Errorf("scrubber is required")
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	logger := cfg.Logger.Named("mcp")
	metrics, err := newToolMetrics(otel.Meter(instrumentationName))
	if err != nil {
		logger.Warn(context.Background(), "tool metrics disabled", zap.Error(err))
		metrics, _ = newToolMetrics(noop.Meter{})
	}
	s := &Server{
		mcp:          mcpServer,
		workflows:    wf,
		activities:   acts,
		scrubber:     scrubber,
		toolRegistry: NewToolRegistry(),
		metrics:      metrics,
		logger:       logger,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	return s, nil
}

// MCP returns the underlying SDK server, for custom transports.
func (s *Server) MCP() *mcp.Server { return s.mcp }

// Tools returns the registry of tools this server exposes.
func (s *Server) Tools() *ToolRegistry { return s.toolRegistry }

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Close releases server resources.
func (s *Server) Close() error {
	s.logger.Info(context.Background(), "closing MCP server")
	return nil
}
