package retry

import (
	"context"
	"fmt"
	"time"

	"querycore/pkg/llm"
)

// Middleware wraps a provider with retry logic under the given policy.
func Middleware(policy *Policy) llm.Middleware {
	return func(next llm.Provider) llm.Provider {
		return llm.PassThrough(next,
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				var lastErr error

				for attempt := 1; attempt <= policy.Config.MaxAttempts; attempt++ {
					if attempt > 1 {
						if delay := policy.CalculateDelay(attempt); delay > 0 {
							select {
							case <-ctx.Done():
								return llm.CompletionResponse{}, fmt.Errorf("retry cancelled: %w", ctx.Err())
							case <-time.After(delay):
							}
						}
					}

					resp, err := next.Complete(ctx, req)
					if err == nil {
						return resp, nil
					}
					lastErr = err

					if !policy.ShouldRetry(err) || attempt >= policy.Config.MaxAttempts {
						break
					}
				}

				return llm.CompletionResponse{}, lastErr
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				var lastErr error

				for attempt := 1; attempt <= policy.Config.MaxAttempts; attempt++ {
					if attempt > 1 {
						if delay := policy.CalculateDelay(attempt); delay > 0 {
							select {
							case <-ctx.Done():
								return nil, fmt.Errorf("stream retry cancelled: %w", ctx.Err())
							case <-time.After(delay):
							}
						}
					}

					// Only stream establishment is retried; mid-stream
					// failures surface as chunk errors.
					ch, err := next.Stream(ctx, req)
					if err == nil {
						return ch, nil
					}
					lastErr = err

					if !policy.ShouldRetry(err) || attempt >= policy.Config.MaxAttempts {
						break
					}
				}

				return nil, lastErr
			},
		)
	}
}
