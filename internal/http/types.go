package http

import (
	"github.com/fyrsmithlabs/agentflow/internal/activitylog"
	"github.com/fyrsmithlabs/agentflow/internal/workflow"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is returned for every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WorkflowItem is one row of GET /api/v1/workflows.
type WorkflowItem struct {
	WorkflowID   string `json:"workflow_id"`
	Status       string `json:"status"`
	CurrentPhase string `json:"current_phase"`
}

// WorkflowListResponse is the response body for GET /api/v1/workflows.
type WorkflowListResponse struct {
	Workflows []WorkflowItem `json:"workflows"`
	Count     int            `json:"count"`
}

// HistoryResponse is the response body for GET /api/v1/workflows/:id/history.
type HistoryResponse struct {
	WorkflowID  string                `json:"workflow_id"`
	Transitions []workflow.Transition `json:"transitions"`
}

// LogsResponse is the response body for GET /api/v1/logs.
type LogsResponse struct {
	Entries []activitylog.Entry `json:"entries"`
	Count   int                 `json:"count"`
}

// ScrubRequest is the request body for POST /api/v1/scrub.
type ScrubRequest struct {
	Content string `json:"content"`
}

// ScrubResponse is the response body for POST /api/v1/scrub.
type ScrubResponse struct {
	Content       string `json:"content"`
	FindingsCount int    `json:"findings_count"`
}
