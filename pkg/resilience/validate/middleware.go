// Package validate provides response validation middleware for provider calls.
package validate

import (
	"context"
	"fmt"
	"strings"

	"querycore/pkg/llm"
	"querycore/pkg/logx"
)

// guidance is appended on the single retry after an empty response.
const guidance = "Your previous response was empty. Provide a direct, substantive answer to the request above."

// Middleware validates completions: an empty response triggers one immediate
// retry with guidance appended; a second empty response is an error.
func Middleware() llm.Middleware {
	logger := logx.NewLogger("response-validator")

	return func(next llm.Provider) llm.Provider {
		return llm.PassThrough(next,
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				const maxAttempts = 2

				for attempt := 1; attempt <= maxAttempts; attempt++ {
					resp, err := next.Complete(ctx, req)
					if err != nil {
						return resp, err
					}
					if strings.TrimSpace(resp.Content) != "" {
						return resp, nil
					}

					if attempt == 1 {
						logger.Warn("empty response, retrying with guidance")
						retried := req
						retried.Messages = append(retried.Messages, llm.CompletionMessage{
							Role:    llm.RoleUser,
							Content: guidance,
						})
						req = retried
					}
				}

				return llm.CompletionResponse{}, fmt.Errorf("empty response after retry with guidance")
			},
			// Streaming chunks are validated by consumers; pass through.
			next.Stream,
		)
	}
}
