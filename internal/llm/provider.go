// Package llm talks to text-generation backends. Providers produce text from
// a prompt; GenerateStructured layers JSON-schema output on top of any
// provider.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/agentflow/internal/config"
	"github.com/fyrsmithlabs/agentflow/internal/core"
)

var (
	// ErrNoProvider is returned for provider names that are not configured.
	ErrNoProvider = errors.New("llm provider not configured")

	// ErrMissingAPIKey is returned when a hosted provider has no key.
	ErrMissingAPIKey = errors.New("api key required")
)

// Provider produces text from a prompt.
type Provider interface {
	// Name identifies the backend, e.g. "claude".
	Name() string

	// Generate returns the completion for prompt. cfg overrides the
	// provider defaults field by field and may be nil.
	Generate(ctx context.Context, prompt string, cfg *GenerationConfig) (string, error)
}

// GenerationConfig tunes one generation call. Pointer fields distinguish
// "unset" from zero.
type GenerationConfig struct {
	Model         string         `json:"model,omitempty"`
	MaxTokens     int            `json:"max_tokens,omitempty"`
	Temperature   *float64       `json:"temperature,omitempty"`
	TopP          *float64       `json:"top_p,omitempty"`
	StopSequences []string       `json:"stop_sequences,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Float returns a pointer to v, for Temperature and TopP.
func Float(v float64) *float64 { return &v }

// Merge returns c with every field set in override replacing the
// corresponding default. Metadata maps are merged key by key.
func (c GenerationConfig) Merge(override *GenerationConfig) GenerationConfig {
	out := c
	out.StopSequences = append([]string(nil), c.StopSequences...)
	out.Metadata = core.CloneMetadata(c.Metadata)
	if override == nil {
		return out
	}

	if override.Model != "" {
		out.Model = override.Model
	}
	if override.MaxTokens > 0 {
		out.MaxTokens = override.MaxTokens
	}
	if override.Temperature != nil {
		out.Temperature = Float(*override.Temperature)
	}
	if override.TopP != nil {
		out.TopP = Float(*override.TopP)
	}
	if len(override.StopSequences) > 0 {
		out.StopSequences = append([]string(nil), override.StopSequences...)
	}
	for k, v := range override.Metadata {
		out.Metadata[k] = v
	}
	return out
}

// defaultsFrom builds provider defaults from configuration.
func defaultsFrom(pc config.ProviderConfig) GenerationConfig {
	return GenerationConfig{
		Model:       pc.Model,
		MaxTokens:   pc.MaxTokens,
		Temperature: Float(pc.Temperature),
		TopP:        Float(1.0),
		Metadata:    map[string]any{},
	}
}

// httpOptions are shared by the hosted HTTP providers.
type httpOptions struct {
	limiter *rate.Limiter
	retry   retryPolicy
	timeout time.Duration
}

func httpOptionsFrom(cfg config.LLMConfig) httpOptions {
	return httpOptions{
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		retry:   retryPolicy{maxAttempts: cfg.MaxRetries, baseDelay: cfg.RetryDelay.Duration()},
		timeout: cfg.Timeout.Duration(),
	}
}

// New builds the provider called name from cfg.
func New(cfg config.LLMConfig, name string) (Provider, error) {
	pc, ok := cfg.Provider(name)
	if !ok {
		return nil, core.NewError(core.KindConfiguration, fmt.Sprintf("unknown llm provider %q", name), ErrNoProvider)
	}

	var (
		p   Provider
		err error
	)
	switch name {
	case config.ProviderClaude:
		p, err = NewAnthropic(pc, httpOptionsFrom(cfg))
	case config.ProviderOpenAI:
		p, err = NewOpenAI(pc, httpOptionsFrom(cfg))
	case config.ProviderOllama:
		p, err = NewOllama(pc, retryPolicy{maxAttempts: cfg.MaxRetries, baseDelay: cfg.RetryDelay.Duration()})
	}
	if err != nil {
		return nil, core.NewError(core.KindConfiguration, fmt.Sprintf("configure %s provider", name), err)
	}
	return p, nil
}
