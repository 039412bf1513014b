package mcp

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
)

// ToolCategory represents the functional category of a tool.
type ToolCategory string

const (
	// CategoryWorkflow is for workflow state tools.
	CategoryWorkflow ToolCategory = "workflow"
	// CategoryLogs is for activity log tools.
	CategoryLogs ToolCategory = "logs"
	// CategorySearch is for tool discovery (tool_search itself).
	CategorySearch ToolCategory = "search"
)

// ToolMetadata contains metadata about a registered MCP tool.
type ToolMetadata struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Category    ToolCategory `json:"category"`

	// Keywords are additional searchable terms for this tool.
	Keywords []string `json:"keywords,omitempty"`
}

// ToolRegistry indexes registered tools for discovery via tool_search.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]*ToolMetadata
}

// NewToolRegistry creates a new tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]*ToolMetadata),
	}
}

// Register adds a tool to the registry. Names must be unique.
func (r *ToolRegistry) Register(tool *ToolMetadata) error {
	if tool == nil || tool.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[tool.Name]; ok {
		return fmt.Errorf("tool %q already registered", tool.Name)
	}
	r.tools[tool.Name] = tool
	return nil
}

// Get returns the metadata for a specific tool.
func (r *ToolRegistry) Get(name string) (*ToolMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all registered tools sorted by name.
func (r *ToolRegistry) List() []*ToolMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*ToolMetadata, 0, len(r.tools))
	for _, tool := range r.tools {
		result = append(result, tool)
	}
	slices.SortFunc(result, func(a, b *ToolMetadata) int { return strings.Compare(a.Name, b.Name) })
	return result
}

// ListByCategory returns the tools in category sorted by name.
func (r *ToolRegistry) ListByCategory(category ToolCategory) []*ToolMetadata {
	var result []*ToolMetadata
	for _, tool := range r.List() {
		if tool.Category == category {
			result = append(result, tool)
		}
	}
	return result
}

// Count returns the total number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// SearchResult contains a tool match from a search query.
type SearchResult struct {
	Tool *ToolMetadata `json:"tool"`

	// Score indicates match quality (higher is better).
	// 3 = exact name match
	// 2 = name contains query
	// 1 = description/keywords match
	Score int `json:"score"`

	MatchReason string `json:"match_reason"`
}

// Search finds tools matching query, case-insensitively, against names,
// descriptions and keywords. A query that compiles as a regex is also
// matched as a pattern. Results are ordered by score, then name.
func (r *ToolRegistry) Search(query string) []*SearchResult {
	if query == "" {
		return nil
	}

	queryLower := strings.ToLower(query)
	var regex *regexp.Regexp
	if re, err := regexp.Compile("(?i)" + query); err == nil {
		regex = re
	}

	var results []*SearchResult
	for _, tool := range r.List() {
		if res := matchTool(tool, queryLower, regex); res != nil {
			results = append(results, res)
		}
	}
	slices.SortStableFunc(results, func(a, b *SearchResult) int { return b.Score - a.Score })
	return results
}

func matchTool(tool *ToolMetadata, queryLower string, regex *regexp.Regexp) *SearchResult {
	hit := func(score int, reason string) *SearchResult {
		return &SearchResult{Tool: tool, Score: score, MatchReason: reason}
	}
	matches := func(s string) bool { return regex != nil && regex.MatchString(s) }

	nameLower := strings.ToLower(tool.Name)
	switch {
	case nameLower == queryLower:
		return hit(3, "exact name match")
	case strings.Contains(nameLower, queryLower):
		return hit(2, "name contains query")
	case matches(tool.Name):
		return hit(2, "name matches pattern")
	case strings.Contains(strings.ToLower(tool.Description), queryLower):
		return hit(1, "description contains query")
	case matches(tool.Description):
		return hit(1, "description matches pattern")
	}
	for _, kw := range tool.Keywords {
		if strings.Contains(strings.ToLower(kw), queryLower) {
			return hit(1, "keyword contains query")
		}
		if matches(kw) {
			return hit(1, "keyword matches pattern")
		}
	}
	return nil
}

// SearchByCategory searches within a specific category.
func (r *ToolRegistry) SearchByCategory(query string, category ToolCategory) []*SearchResult {
	filtered := make([]*SearchResult, 0)
	for _, result := range r.Search(query) {
		if result.Tool.Category == category {
			filtered = append(filtered, result)
		}
	}
	return filtered
}
