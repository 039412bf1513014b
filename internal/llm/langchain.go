package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/fyrsmithlabs/agentflow/internal/config"
)

// LangChain adapts any langchaingo model to Provider. It backs local models
// served by Ollama.
type LangChain struct {
	name     string
	model    llms.Model
	defaults GenerationConfig
	retry    retryPolicy
}

// NewLangChain wraps model under name.
func NewLangChain(name string, model llms.Model, defaults GenerationConfig) *LangChain {
	return &LangChain{name: name, model: model, defaults: defaults, retry: retryPolicy{maxAttempts: 1}}
}

// NewOllama connects to an Ollama server.
func NewOllama(pc config.ProviderConfig, retry retryPolicy) (*LangChain, error) {
	opts := []ollama.Option{ollama.WithModel(pc.Model)}
	if pc.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(pc.BaseURL))
	}
	model, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	lc := NewLangChain(config.ProviderOllama, model, defaultsFrom(pc))
	lc.retry = retry.observed(config.ProviderOllama)
	return lc, nil
}

func (l *LangChain) Name() string { return l.name }

// Generate runs prompt through the wrapped model. langchaingo errors carry
// no status code, so every error is terminal.
func (l *LangChain) Generate(ctx context.Context, prompt string, cfg *GenerationConfig) (string, error) {
	merged := l.defaults.Merge(cfg)

	var opts []llms.CallOption
	if merged.Model != "" {
		opts = append(opts, llms.WithModel(merged.Model))
	}
	if merged.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(merged.MaxTokens))
	}
	if merged.Temperature != nil {
		opts = append(opts, llms.WithTemperature(*merged.Temperature))
	}
	if merged.TopP != nil {
		opts = append(opts, llms.WithTopP(*merged.TopP))
	}
	if len(merged.StopSequences) > 0 {
		opts = append(opts, llms.WithStopWords(merged.StopSequences))
	}

	return observe(l.name, func() (string, error) {
		return l.retry.do(ctx, l.name, func(ctx context.Context) (string, error) {
			return llms.GenerateFromSinglePrompt(ctx, l.model, prompt, opts...)
		})
	})
}

var _ Provider = (*LangChain)(nil)
