package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/agentflow/internal/config"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
	defaultHTTPTimeout      = 120 * time.Second
)

// Anthropic generates text with the Claude Messages API.
type Anthropic struct {
	apiKey     string
	baseURL    string
	defaults   GenerationConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      retryPolicy
}

type anthropicRequest struct {
	Model         string             `json:"model"`
	MaxTokens     int                `json:"max_tokens"`
	Messages      []anthropicMessage `json:"messages"`
	Temperature   *float64           `json:"temperature,omitempty"`
	TopP          *float64           `json:"top_p,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewAnthropic creates a Claude provider.
func NewAnthropic(pc config.ProviderConfig, opts httpOptions) (*Anthropic, error) {
	if !pc.APIKey.IsSet() {
		return nil, fmt.Errorf("anthropic: %w", ErrMissingAPIKey)
	}
	baseURL := strings.TrimRight(pc.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	return &Anthropic{
		apiKey:     pc.APIKey.Value(),
		baseURL:    baseURL,
		defaults:   defaultsFrom(pc),
		httpClient: newHTTPClient(opts.timeout),
		limiter:    limiterOrDefault(opts.limiter),
		retry:      opts.retry.observed(config.ProviderClaude),
	}, nil
}

func (a *Anthropic) Name() string { return config.ProviderClaude }

// Generate sends prompt as a single user message.
func (a *Anthropic) Generate(ctx context.Context, prompt string, cfg *GenerationConfig) (string, error) {
	merged := a.defaults.Merge(cfg)
	req := anthropicRequest{
		Model:         merged.Model,
		MaxTokens:     merged.MaxTokens,
		Messages:      []anthropicMessage{{Role: "user", Content: prompt}},
		Temperature:   merged.Temperature,
		TopP:          merged.TopP,
		StopSequences: merged.StopSequences,
	}

	return observe(config.ProviderClaude, func() (string, error) {
		return a.retry.do(ctx, config.ProviderClaude, func(ctx context.Context) (string, error) {
			if err := a.limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("rate limiter error: %w", err)
			}
			return a.doRequest(ctx, req)
		})
	})
}

func (a *Anthropic) doRequest(ctx context.Context, req anthropicRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", a.apiKey)
	httpReq.Header.Set("Anthropic-Version", anthropicVersion)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", &retryableError{err: fmt.Errorf("API request failed: %w", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if err := classifyStatus(resp.StatusCode, data, func(b []byte) string {
		var e anthropicError
		if json.Unmarshal(b, &e) == nil {
			return e.Error.Message
		}
		return ""
	}); err != nil {
		return "", err
	}

	var out anthropicResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(out.Content) == 0 {
		// Output validation reports empty completions.
		return "", nil
	}
	return out.Content[0].Text, nil
}

// classifyStatus maps an HTTP status to nil, a retryable error (429, 5xx)
// or a terminal API error. message extracts the provider's error text.
func classifyStatus(status int, body []byte, message func([]byte) string) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusTooManyRequests:
		return &retryableError{err: fmt.Errorf("rate limited (429)")}
	case status >= 500:
		return &retryableError{err: fmt.Errorf("server error (%d): %s", status, truncate(string(body), 512))}
	}
	if msg := message(body); msg != "" {
		return fmt.Errorf("API error (%d): %s", status, msg)
	}
	return fmt.Errorf("API error (%d): %s", status, truncate(string(body), 512))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &http.Client{Timeout: timeout}
}

func limiterOrDefault(l *rate.Limiter) *rate.Limiter {
	if l != nil {
		return l
	}
	return rate.NewLimiter(rate.Limit(50.0/60.0), 5)
}

var _ Provider = (*Anthropic)(nil)
