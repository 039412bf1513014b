package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fyrsmithlabs/agentflow/internal/activitylog"
	"github.com/fyrsmithlabs/agentflow/internal/workflow"
)

// ErrNotFound is returned when the API does not know the workflow.
var ErrNotFound = errors.New("workflow not found")

// Client reads workflow state from the agentflow HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for the API at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 2 * time.Second,
		},
	}
}

// BaseURL returns the API root this client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Workflow fetches the state of workflow id.
func (c *Client) Workflow(ctx context.Context, id string) (*workflow.State, error) {
	var state workflow.State
	if err := c.getJSON(ctx, "/api/v1/workflows/"+url.PathEscape(id), &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Summary fetches the activity summary of workflow id.
func (c *Client) Summary(ctx context.Context, id string) (*activitylog.Summary, error) {
	var summary activitylog.Summary
	if err := c.getJSON(ctx, "/api/v1/workflows/"+url.PathEscape(id)+"/summary", &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Fetch builds a Snapshot of workflow id.
func (c *Client) Fetch(ctx context.Context, id string) (Snapshot, error) {
	state, err := c.Workflow(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	summary, err := c.Summary(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	return NewSnapshot(state, summary, time.Now()), nil
}
