package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentflow/internal/activitylog"
	"github.com/fyrsmithlabs/agentflow/internal/core"
	"github.com/fyrsmithlabs/agentflow/internal/workflow"
)

const (
	defaultLogLimit    = 20
	maxLogLimit        = 1000
	defaultSearchLimit = 5
)

// addTool registers a tool with the SDK and the discovery registry, wrapping
// the handler with metrics.
func addTool[In, Out any](s *Server, meta *ToolMetadata, h mcp.ToolHandlerFor[In, Out]) error {
	if err := s.toolRegistry.Register(meta); err != nil {
		return err
	}
	name := meta.Name
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        name,
		Description: meta.Description,
	}, func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		done := s.metrics.begin(ctx, name)
		res, out, err := h(ctx, req, in)
		done(err)
		if err != nil {
			s.logger.Debug(ctx, "tool call failed", zap.String("tool", name), zap.Error(err))
		}
		return res, out, err
	})
	return nil
}

func (s *Server) registerTools() error {
	regs := []func() error{
		func() error {
			return addTool(s, &ToolMetadata{
				Name:        "workflow_status",
				Description: "Get the status, current phase and completed phases of a workflow",
				Category:    CategoryWorkflow,
				Keywords:    []string{"state", "progress", "phase"},
			}, s.workflowStatus)
		},
		func() error {
			return addTool(s, &ToolMetadata{
				Name:        "workflow_history",
				Description: "List the phase transitions of a workflow in order",
				Category:    CategoryWorkflow,
				Keywords:    []string{"transitions", "timeline"},
			}, s.workflowHistory)
		},
		func() error {
			return addTool(s, &ToolMetadata{
				Name:        "workflow_summary",
				Description: "Summarise a workflow's activity log: counts per activity and agent plus a timeline",
				Category:    CategoryLogs,
				Keywords:    []string{"report", "counts", "timeline"},
			}, s.workflowSummary)
		},
		func() error {
			return addTool(s, &ToolMetadata{
				Name:        "query_logs",
				Description: "Query agent activity and decision log entries by role, phase, type, workflow or text",
				Category:    CategoryLogs,
				Keywords:    []string{"activity", "decision", "search", "filter"},
			}, s.queryLogs)
		},
		func() error {
			return addTool(s, &ToolMetadata{
				Name:        "list_workflows",
				Description: "List known workflows with their status and current phase",
				Category:    CategoryWorkflow,
				Keywords:    []string{"workflows", "runs"},
			}, s.listWorkflows)
		},
		func() error {
			return addTool(s, &ToolMetadata{
				Name:        "tool_search",
				Description: "Find available tools by name, description or keyword (regex supported)",
				Category:    CategorySearch,
				Keywords:    []string{"discover", "help"},
			}, s.toolSearch)
		},
	}
	for _, reg := range regs {
		if err := reg(); err != nil {
			return err
		}
	}
	return nil
}

// ===== WORKFLOW TOOLS =====

type workflowIDInput struct {
	WorkflowID string `json:"workflow_id" jsonschema:"Workflow identifier"`
}

type workflowStatusOutput struct {
	WorkflowID      string   `json:"workflow_id" jsonschema:"Workflow identifier"`
	Status          string   `json:"status" jsonschema:"Lifecycle status"`
	CurrentPhase    string   `json:"current_phase" jsonschema:"Phase the workflow is in"`
	CompletedPhases []string `json:"completed_phases" jsonschema:"Phases that completed"`
	FailedPhases    []string `json:"failed_phases" jsonschema:"Phases that failed"`
	FailureReason   string   `json:"failure_reason,omitempty" jsonschema:"Why the workflow failed"`
	Transitions     int      `json:"transitions" jsonschema:"Number of recorded transitions"`
}

func (s *Server) lookup(id string) (*workflow.State, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("invalid input: workflow_id is required")
	}
	state, ok := s.workflows.State(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", workflow.ErrWorkflowNotFound, id)
	}
	return state, nil
}

func (s *Server) workflowStatus(_ context.Context, _ *mcp.CallToolRequest, args workflowIDInput) (*mcp.CallToolResult, workflowStatusOutput, error) {
	state, err := s.lookup(args.WorkflowID)
	if err != nil {
		return nil, workflowStatusOutput{}, err
	}
	out := workflowStatusOutput{
		WorkflowID:      state.WorkflowID,
		Status:          string(state.Status),
		CurrentPhase:    string(state.CurrentPhase),
		CompletedPhases: phaseNames(state.CompletedPhases),
		FailedPhases:    phaseNames(state.FailedPhases),
		Transitions:     len(state.Transitions),
	}
	if reason, ok := state.Metadata["failure_reason"].(string); ok {
		out.FailureReason = s.scrubber.Scrub(reason).Scrubbed
	}
	return textResult(fmt.Sprintf("Workflow %s is %s in phase %s", out.WorkflowID, out.Status, out.CurrentPhase)), out, nil
}

type transitionItem struct {
	FromPhase string `json:"from_phase,omitempty" jsonschema:"Phase left, empty for the initial transition"`
	ToPhase   string `json:"to_phase" jsonschema:"Phase entered"`
	AgentRole string `json:"agent_role,omitempty" jsonschema:"Role that triggered the transition"`
	Success   bool   `json:"success" jsonschema:"Whether the transition succeeded"`
	Timestamp string `json:"timestamp" jsonschema:"RFC3339 timestamp"`
}

type workflowHistoryOutput struct {
	WorkflowID  string           `json:"workflow_id" jsonschema:"Workflow identifier"`
	Transitions []transitionItem `json:"transitions" jsonschema:"Transitions in order"`
	Count       int              `json:"count" jsonschema:"Number of transitions"`
}

func (s *Server) workflowHistory(_ context.Context, _ *mcp.CallToolRequest, args workflowIDInput) (*mcp.CallToolResult, workflowHistoryOutput, error) {
	if _, err := s.lookup(args.WorkflowID); err != nil {
		return nil, workflowHistoryOutput{}, err
	}
	history := s.workflows.History(args.WorkflowID)
	out := workflowHistoryOutput{
		WorkflowID:  args.WorkflowID,
		Transitions: make([]transitionItem, 0, len(history)),
		Count:       len(history),
	}
	for _, tr := range history {
		item := transitionItem{
			ToPhase:   string(tr.ToPhase),
			Success:   tr.Success,
			Timestamp: tr.Timestamp.UTC().Format(time.RFC3339),
		}
		if tr.FromPhase != nil {
			item.FromPhase = string(*tr.FromPhase)
		}
		if tr.AgentRole != nil {
			item.AgentRole = string(*tr.AgentRole)
		}
		out.Transitions = append(out.Transitions, item)
	}
	return textResult(fmt.Sprintf("Workflow %s has %d transitions", args.WorkflowID, out.Count)), out, nil
}

type workflowItem struct {
	WorkflowID   string `json:"workflow_id" jsonschema:"Workflow identifier"`
	Status       string `json:"status" jsonschema:"Lifecycle status"`
	CurrentPhase string `json:"current_phase" jsonschema:"Phase the workflow is in"`
}

type listWorkflowsInput struct {
	Status string `json:"status,omitempty" jsonschema:"Only list workflows with this status"`
}

type listWorkflowsOutput struct {
	Workflows []workflowItem `json:"workflows" jsonschema:"Known workflows"`
	Count     int            `json:"count" jsonschema:"Number of workflows returned"`
}

func (s *Server) listWorkflows(_ context.Context, _ *mcp.CallToolRequest, args listWorkflowsInput) (*mcp.CallToolResult, listWorkflowsOutput, error) {
	out := listWorkflowsOutput{Workflows: make([]workflowItem, 0)}
	for _, id := range s.workflows.List() {
		state, ok := s.workflows.State(id)
		if !ok {
			continue
		}
		if args.Status != "" && string(state.Status) != args.Status {
			continue
		}
		out.Workflows = append(out.Workflows, workflowItem{
			WorkflowID:   id,
			Status:       string(state.Status),
			CurrentPhase: string(state.CurrentPhase),
		})
	}
	out.Count = len(out.Workflows)
	return textResult(fmt.Sprintf("Found %d workflows", out.Count)), out, nil
}

// ===== LOG TOOLS =====

type timelineItem struct {
	Timestamp string `json:"timestamp" jsonschema:"RFC3339 timestamp"`
	Phase     string `json:"phase,omitempty" jsonschema:"Phase of the entry"`
	Activity  string `json:"activity,omitempty" jsonschema:"Activity description"`
}

type workflowSummaryOutput struct {
	WorkflowID     string         `json:"workflow_id" jsonschema:"Workflow identifier"`
	TotalEntries   int            `json:"total_entries" jsonschema:"Number of log entries"`
	ActivityCounts map[string]int `json:"activity_counts" jsonschema:"Entries per activity type"`
	AgentCounts    map[string]int `json:"agent_counts" jsonschema:"Entries per agent role"`
	Timeline       []timelineItem `json:"timeline" jsonschema:"Entries in time order"`
	StartTime      string         `json:"start_time,omitempty" jsonschema:"First entry time"`
	EndTime        string         `json:"end_time,omitempty" jsonschema:"Last entry time"`
}

func (s *Server) workflowSummary(_ context.Context, _ *mcp.CallToolRequest, args workflowIDInput) (*mcp.CallToolResult, workflowSummaryOutput, error) {
	if strings.TrimSpace(args.WorkflowID) == "" {
		return nil, workflowSummaryOutput{}, fmt.Errorf("invalid input: workflow_id is required")
	}
	summary := s.activities.SummaryReport(args.WorkflowID)
	if _, ok := s.workflows.State(args.WorkflowID); !ok && summary.TotalEntries == 0 {
		return nil, workflowSummaryOutput{}, fmt.Errorf("%w: %s", workflow.ErrWorkflowNotFound, args.WorkflowID)
	}

	out := workflowSummaryOutput{
		WorkflowID:     args.WorkflowID,
		TotalEntries:   summary.TotalEntries,
		ActivityCounts: make(map[string]int, len(summary.ActivityCounts)),
		AgentCounts:    make(map[string]int, len(summary.AgentCounts)),
		Timeline:       make([]timelineItem, 0, len(summary.Timeline)),
	}
	for k, v := range summary.ActivityCounts {
		out.ActivityCounts[string(k)] = v
	}
	for k, v := range summary.AgentCounts {
		out.AgentCounts[string(k)] = v
	}
	for _, item := range summary.Timeline {
		ti := timelineItem{Timestamp: item.Timestamp.UTC().Format(time.RFC3339)}
		if item.Phase != nil {
			ti.Phase = string(*item.Phase)
		}
		if item.Activity != nil {
			ti.Activity = s.scrubber.Scrub(*item.Activity).Scrubbed
		}
		out.Timeline = append(out.Timeline, ti)
	}
	if summary.StartTime != nil {
		out.StartTime = summary.StartTime.UTC().Format(time.RFC3339)
	}
	if summary.EndTime != nil {
		out.EndTime = summary.EndTime.UTC().Format(time.RFC3339)
	}
	return textResult(fmt.Sprintf("Workflow %s has %d log entries", args.WorkflowID, out.TotalEntries)), out, nil
}

type queryLogsInput struct {
	Role       string `json:"role,omitempty" jsonschema:"Agent role, e.g. architect"`
	Phase      string `json:"phase,omitempty" jsonschema:"Workflow phase, e.g. implementation"`
	Type       string `json:"type,omitempty" jsonschema:"Activity type, e.g. task_complete"`
	WorkflowID string `json:"workflow_id,omitempty" jsonschema:"Workflow identifier"`
	Search     string `json:"search,omitempty" jsonschema:"Case-insensitive text to find in reasoning or descriptions"`
	Limit      int    `json:"limit,omitempty" jsonschema:"Maximum most recent entries to return (default: 20)"`
}

type logItem struct {
	ID          string `json:"id" jsonschema:"Entry identifier"`
	Timestamp   string `json:"timestamp" jsonschema:"RFC3339 timestamp"`
	Kind        string `json:"kind" jsonschema:"activity or decision"`
	Type        string `json:"type" jsonschema:"Activity or decision type"`
	AgentRole   string `json:"agent_role,omitempty" jsonschema:"Agent role"`
	Phase       string `json:"phase,omitempty" jsonschema:"Workflow phase"`
	WorkflowID  string `json:"workflow_id,omitempty" jsonschema:"Workflow identifier"`
	Description string `json:"description,omitempty" jsonschema:"Activity description or decision rationale"`
	Reasoning   string `json:"reasoning,omitempty" jsonschema:"Agent reasoning"`
}

type queryLogsOutput struct {
	Entries []logItem `json:"entries" jsonschema:"Matching entries, oldest first"`
	Count   int       `json:"count" jsonschema:"Number of entries returned"`
}

// filterFrom validates the enum inputs the same way the HTTP API does.
func filterFrom(args queryLogsInput) (activitylog.Filter, error) {
	f := activitylog.Filter{
		WorkflowID: args.WorkflowID,
		SearchText: args.Search,
		Limit:      defaultLogLimit,
	}
	if args.Role != "" {
		if !core.AgentRole(args.Role).Valid() {
			return f, fmt.Errorf("invalid role %q", args.Role)
		}
		f.AgentRole = core.AgentRole(args.Role)
	}
	if args.Phase != "" {
		if !core.WorkflowPhase(args.Phase).Valid() {
			return f, fmt.Errorf("invalid phase %q", args.Phase)
		}
		f.WorkflowPhase = core.WorkflowPhase(args.Phase)
	}
	if args.Type != "" {
		if !activitylog.ActivityType(args.Type).Valid() {
			return f, fmt.Errorf("invalid activity type %q", args.Type)
		}
		f.ActivityType = activitylog.ActivityType(args.Type)
	}
	if args.Limit > 0 {
		f.Limit = min(args.Limit, maxLogLimit)
	}
	return f, nil
}

func (s *Server) queryLogs(_ context.Context, _ *mcp.CallToolRequest, args queryLogsInput) (*mcp.CallToolResult, queryLogsOutput, error) {
	f, err := filterFrom(args)
	if err != nil {
		return nil, queryLogsOutput{}, err
	}
	entries := s.activities.Query(f)
	out := queryLogsOutput{Entries: make([]logItem, 0, len(entries)), Count: len(entries)}
	for _, e := range entries {
		out.Entries = append(out.Entries, s.logItem(e))
	}
	return textResult(fmt.Sprintf("Found %d log entries", out.Count)), out, nil
}

func (s *Server) logItem(e activitylog.Entry) logItem {
	item := logItem{
		ID:         e.ID,
		Timestamp:  e.Timestamp.UTC().Format(time.RFC3339),
		WorkflowID: e.WorkflowID(),
		Reasoning:  s.scrubber.Scrub(e.Reasoning).Scrubbed,
	}
	if e.AgentRole != nil {
		item.AgentRole = string(*e.AgentRole)
	}
	if e.WorkflowPhase != nil {
		item.Phase = string(*e.WorkflowPhase)
	}
	switch {
	case e.Activity != nil:
		item.Kind = "activity"
		item.Type = string(e.Activity.Type)
		item.Description = s.scrubber.Scrub(e.Activity.Description).Scrubbed
	case e.Decision != nil:
		item.Kind = "decision"
		item.Type = e.Decision.DecisionType
		item.Description = s.scrubber.Scrub(e.Decision.Rationale).Scrubbed
	}
	return item
}

// ===== TOOL DISCOVERY =====

type toolSearchInput struct {
	Query    string `json:"query" jsonschema:"Regex pattern or text to match against tool names, descriptions and keywords"`
	Category string `json:"category,omitempty" jsonschema:"Restrict results to a category (workflow, logs, search)"`
	Limit    int    `json:"limit,omitempty" jsonschema:"Maximum results to return (default: 5)"`
}

type toolSearchItem struct {
	Name        string `json:"name" jsonschema:"Tool name"`
	Description string `json:"description" jsonschema:"Tool description"`
	Category    string `json:"category" jsonschema:"Tool category"`
	Score       int    `json:"score" jsonschema:"Match score, higher is better"`
	MatchReason string `json:"match_reason" jsonschema:"Why the tool matched"`
}

type toolSearchOutput struct {
	Query      string           `json:"query" jsonschema:"Search query used"`
	Results    []toolSearchItem `json:"results" jsonschema:"Matching tools"`
	Count      int              `json:"count" jsonschema:"Number of tools found"`
	TotalTools int              `json:"total_tools" jsonschema:"Total number of tools in registry"`
}

func (s *Server) toolSearch(_ context.Context, _ *mcp.CallToolRequest, args toolSearchInput) (*mcp.CallToolResult, toolSearchOutput, error) {
	if args.Query == "" {
		return nil, toolSearchOutput{}, fmt.Errorf("invalid input: query is required")
	}
	limit := args.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	var results []*SearchResult
	if args.Category != "" {
		results = s.toolRegistry.SearchByCategory(args.Query, ToolCategory(args.Category))
	} else {
		results = s.toolRegistry.Search(args.Query)
	}
	if len(results) > limit {
		results = results[:limit]
	}

	out := toolSearchOutput{
		Query:      args.Query,
		Results:    make([]toolSearchItem, 0, len(results)),
		Count:      len(results),
		TotalTools: s.toolRegistry.Count(),
	}
	names := make([]string, 0, len(results))
	for _, r := range results {
		out.Results = append(out.Results, toolSearchItem{
			Name:        r.Tool.Name,
			Description: r.Tool.Description,
			Category:    string(r.Tool.Category),
			Score:       r.Score,
			MatchReason: r.MatchReason,
		})
		names = append(names, r.Tool.Name)
	}
	text := "No tools found"
	if len(names) > 0 {
		text = "Found tools: " + strings.Join(names, ", ")
	}
	return textResult(text), out, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func phaseNames(phases []core.WorkflowPhase) []string {
	out := make([]string, 0, len(phases))
	for _, p := range phases {
		out = append(out, string(p))
	}
	return out
}
