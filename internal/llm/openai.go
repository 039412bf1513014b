package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/agentflow/internal/config"
)

const defaultOpenAIBaseURL = "https://api.openai.com"

// OpenAI generates text with the Chat Completions API.
type OpenAI struct {
	apiKey     string
	baseURL    string
	defaults   GenerationConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      retryPolicy
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Index        int           `json:"index"`
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
}

type openAIError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewOpenAI creates an OpenAI provider.
func NewOpenAI(pc config.ProviderConfig, opts httpOptions) (*OpenAI, error) {
	if !pc.APIKey.IsSet() {
		return nil, fmt.Errorf("openai: %w", ErrMissingAPIKey)
	}
	baseURL := strings.TrimRight(pc.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAI{
		apiKey:     pc.APIKey.Value(),
		baseURL:    baseURL,
		defaults:   defaultsFrom(pc),
		httpClient: newHTTPClient(opts.timeout),
		limiter:    limiterOrDefault(opts.limiter),
		retry:      opts.retry.observed(config.ProviderOpenAI),
	}, nil
}

func (o *OpenAI) Name() string { return config.ProviderOpenAI }

// Generate sends prompt as a single user message.
func (o *OpenAI) Generate(ctx context.Context, prompt string, cfg *GenerationConfig) (string, error) {
	merged := o.defaults.Merge(cfg)
	req := openAIRequest{
		Model:       merged.Model,
		Messages:    []openAIMessage{{Role: "user", Content: prompt}},
		MaxTokens:   merged.MaxTokens,
		Temperature: merged.Temperature,
		TopP:        merged.TopP,
		Stop:        merged.StopSequences,
	}

	return observe(config.ProviderOpenAI, func() (string, error) {
		return o.retry.do(ctx, config.ProviderOpenAI, func(ctx context.Context) (string, error) {
			if err := o.limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("rate limiter error: %w", err)
			}
			return o.doRequest(ctx, req)
		})
	})
}

func (o *OpenAI) doRequest(ctx context.Context, req openAIRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", &retryableError{err: fmt.Errorf("API request failed: %w", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if err := classifyStatus(resp.StatusCode, data, func(b []byte) string {
		var e openAIError
		if json.Unmarshal(b, &e) == nil {
			return e.Error.Message
		}
		return ""
	}); err != nil {
		return "", err
	}

	var out openAIResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(out.Choices) == 0 {
		// Output validation reports empty completions.
		return "", nil
	}
	return out.Choices[0].Message.Content, nil
}

var _ Provider = (*OpenAI)(nil)
