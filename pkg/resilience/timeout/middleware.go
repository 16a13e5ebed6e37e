// Package timeout provides per-request timeout middleware for provider calls.
package timeout

import (
	"context"
	"errors"
	"time"

	"querycore/pkg/errx"
	"querycore/pkg/llm"
)

// Middleware wraps a provider so every call runs under its own deadline.
// Deadline hits are tagged as timeout errors naming the provider operation.
func Middleware(duration time.Duration) llm.Middleware {
	return func(next llm.Provider) llm.Provider {
		return llm.PassThrough(next,
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()

				start := time.Now()
				resp, err := next.Complete(timeoutCtx, req)
				if err != nil && errors.Is(err, context.DeadlineExceeded) {
					return llm.CompletionResponse{}, errx.NewTimeout("provider completion", time.Since(start))
				}
				return resp, err
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)

				ch, err := next.Stream(timeoutCtx, req)
				if err != nil {
					cancel()
					return nil, err
				}

				// Cancel once the stream drains so the timer does not leak.
				out := make(chan llm.StreamChunk, 16)
				go func() {
					defer cancel()
					defer close(out)
					for chunk := range ch {
						out <- chunk
					}
				}()
				return out, nil
			},
		)
	}
}
