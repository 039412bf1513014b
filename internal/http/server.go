// Package http serves a read-only JSON API over workflow state and the
// activity log.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentflow/internal/activitylog"
	"github.com/fyrsmithlabs/agentflow/internal/core"
	"github.com/fyrsmithlabs/agentflow/internal/logging"
	"github.com/fyrsmithlabs/agentflow/internal/secrets"
	"github.com/fyrsmithlabs/agentflow/internal/workflow"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 1000
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

// Server provides HTTP endpoints for agentflow.
type Server struct {
	echo       *echo.Echo
	workflows  Workflows
	activities Activities
	scrubber   secrets.Scrubber
	logger     *logging.Logger
	config     *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(wf Workflows, acts Activities, scrubber secrets.Scrubber, logger *logging.Logger, cfg *Config) (*Server, error) {
	if wf == nil || acts == nil {
		return nil, fmt.Errorf("workflow and activity sources are required")
	}
	if scrubber == nil {
		return nil, fmt.Errorf("scrubber cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "127.0.0.1",
			Port: 9090,
		}
	}
	logger = logger.Named("http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if metrics, err := newRequestMetrics(otel.Meter(instrumentationName)); err != nil {
		logger.Warn(context.Background(), "request metrics disabled", zap.Error(err))
	} else {
		e.Use(metrics.middleware())
	}
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			reqID := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithRequestID(c.Request().Context(), reqID)
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)

			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return err
		}
	})

	s := &Server{
		echo:       e,
		workflows:  wf,
		activities: acts,
		scrubber:   scrubber,
		logger:     logger,
		config:     cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/workflows", s.handleListWorkflows)
	v1.GET("/workflows/:id", s.handleGetWorkflow)
	v1.GET("/workflows/:id/summary", s.handleSummary)
	v1.GET("/workflows/:id/history", s.handleHistory)
	v1.GET("/logs", s.handleLogs)
	v1.POST("/scrub", s.handleScrub)
}

// Echo returns the underlying echo instance for additional routes.
func (s *Server) Echo() *echo.Echo { return s.echo }

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleListWorkflows(c echo.Context) error {
	ids := s.workflows.List()
	items := make([]WorkflowItem, 0, len(ids))
	for _, id := range ids {
		state, ok := s.workflows.State(id)
		if !ok {
			continue
		}
		items = append(items, WorkflowItem{
			WorkflowID:   id,
			Status:       string(state.Status),
			CurrentPhase: string(state.CurrentPhase),
		})
	}
	return c.JSON(http.StatusOK, WorkflowListResponse{Workflows: items, Count: len(items)})
}

func (s *Server) handleGetWorkflow(c echo.Context) error {
	state, ok := s.workflows.State(c.Param("id"))
	if !ok {
		return notFound(c)
	}
	return c.JSON(http.StatusOK, state)
}

// handleSummary serves the activity summary. Workflows known only from the
// activity log are still summarised.
func (s *Server) handleSummary(c echo.Context) error {
	id := c.Param("id")
	summary := s.activities.SummaryReport(id)
	if _, ok := s.workflows.State(id); !ok && summary.TotalEntries == 0 {
		return notFound(c)
	}
	return c.JSON(http.StatusOK, summary)
}

func (s *Server) handleHistory(c echo.Context) error {
	id := c.Param("id")
	if _, ok := s.workflows.State(id); !ok {
		return notFound(c)
	}
	return c.JSON(http.StatusOK, HistoryResponse{WorkflowID: id, Transitions: s.workflows.History(id)})
}

func (s *Server) handleLogs(c echo.Context) error {
	f, err := parseFilter(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}
	entries := s.activities.Query(f)
	return c.JSON(http.StatusOK, LogsResponse{Entries: entries, Count: len(entries)})
}

var errBadLimit = errors.New("limit must be a positive integer")

// parseFilter reads role, phase, type, search, workflow_id and limit.
func parseFilter(c echo.Context) (activitylog.Filter, error) {
	f := activitylog.Filter{
		SearchText: c.QueryParam("search"),
		WorkflowID: c.QueryParam("workflow_id"),
		Limit:      defaultLogLimit,
	}
	if v := c.QueryParam("role"); v != "" {
		if !core.AgentRole(v).Valid() {
			return f, fmt.Errorf("unknown role %q", v)
		}
		f.AgentRole = core.AgentRole(v)
	}
	if v := c.QueryParam("phase"); v != "" {
		if !core.WorkflowPhase(v).Valid() {
			return f, fmt.Errorf("unknown phase %q", v)
		}
		f.WorkflowPhase = core.WorkflowPhase(v)
	}
	if v := c.QueryParam("type"); v != "" {
		if !activitylog.ActivityType(v).Valid() {
			return f, fmt.Errorf("unknown activity type %q", v)
		}
		f.ActivityType = activitylog.ActivityType(v)
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, errBadLimit
		}
		f.Limit = min(n, maxLogLimit)
	}
	return f, nil
}

func (s *Server) handleScrub(c echo.Context) error {
	var req ScrubRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid scrub request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content field is required")
	}

	result := s.scrubber.Scrub(req.Content)
	s.logger.Debug(c.Request().Context(), "scrubbed content", zap.Int("findings", result.TotalFindings))

	return c.JSON(http.StatusOK, ScrubResponse{
		Content:       result.Scrubbed,
		FindingsCount: result.TotalFindings,
	})
}

func notFound(c echo.Context) error {
	return c.JSON(http.StatusNotFound, ErrorResponse{Error: "Workflow not found"})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
