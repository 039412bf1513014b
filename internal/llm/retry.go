package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/agentflow/internal/core"
)

// retryableError marks a failure worth another attempt: rate limiting,
// server errors and transport failures.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }

func (e *retryableError) Unwrap() error { return e.err }

func isRetryableError(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// retryPolicy waits baseDelay*(attempt+1) after a failed attempt and gives
// up after maxAttempts tries.
type retryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	// onRetry observes each scheduled retry.
	onRetry func(attempt int, err error)
}

func (p retryPolicy) attempts() int {
	if p.maxAttempts < 1 {
		return core.DefaultMaxRetries
	}
	return p.maxAttempts
}

// delay returns the wait after the failed attempt with zero-based index.
func (p retryPolicy) delay(attempt int) time.Duration {
	return p.baseDelay * time.Duration(attempt+1)
}

// do runs fn until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. Every failure is returned as an llm-kind error.
func (p retryPolicy) do(ctx context.Context, provider string, fn func(context.Context) (string, error)) (string, error) {
	var lastErr error
	n := p.attempts()
	for attempt := 0; attempt < n; attempt++ {
		text, err := fn(ctx)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !isRetryableError(err) {
			return "", core.NewError(core.KindLLM, provider+" request failed", err)
		}
		if attempt == n-1 {
			break
		}
		if p.onRetry != nil {
			p.onRetry(attempt, err)
		}
		select {
		case <-time.After(p.delay(attempt)):
		case <-ctx.Done():
			return "", core.NewError(core.KindLLM, provider+" request cancelled", ctx.Err())
		}
	}
	return "", core.NewError(core.KindLLM, fmt.Sprintf("%s: max retries exceeded after %d attempts", provider, n), lastErr)
}
