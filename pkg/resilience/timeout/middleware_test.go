package timeout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querycore/pkg/errx"
	"querycore/pkg/llm"
)

func provider(complete func(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error)) llm.Provider {
	return llm.WrapProvider(
		complete,
		func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
			ch := make(chan llm.StreamChunk, 1)
			ch <- llm.StreamChunk{Content: "chunk", Done: true}
			close(ch)
			return ch, nil
		},
		func(context.Context, string) ([]float32, error) { return nil, errors.New("not used") },
		func() string { return "test" },
	)
}

func TestMiddleware_FastCallSucceeds(t *testing.T) {
	p := llm.Chain(provider(func(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{Content: "quick"}, nil
	}), Middleware(time.Second))

	resp, err := p.Complete(context.Background(), llm.NewCompletionRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "quick", resp.Content)
}

func TestMiddleware_SlowCallTaggedAsTimeout(t *testing.T) {
	p := llm.Chain(provider(func(ctx context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		select {
		case <-ctx.Done():
			return llm.CompletionResponse{}, ctx.Err()
		case <-time.After(time.Second):
			return llm.CompletionResponse{Content: "too late"}, nil
		}
	}), Middleware(10*time.Millisecond))

	_, err := p.Complete(context.Background(), llm.NewCompletionRequest(nil))
	require.Error(t, err)
	assert.True(t, errx.IsKind(err, errx.KindTimeout))
	assert.Contains(t, err.Error(), "provider completion")
}

func TestMiddleware_NonDeadlineErrorsPassThrough(t *testing.T) {
	p := llm.Chain(provider(func(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{}, errors.New("backend down")
	}), Middleware(time.Second))

	_, err := p.Complete(context.Background(), llm.NewCompletionRequest(nil))
	assert.EqualError(t, err, "backend down")
}

func TestMiddleware_StreamDrains(t *testing.T) {
	p := llm.Chain(provider(nil), Middleware(time.Second))

	ch, err := p.Stream(context.Background(), llm.NewCompletionRequest(nil))
	require.NoError(t, err)

	var chunks []llm.StreamChunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	require.Len(t, chunks, 1)
	assert.Equal(t, "chunk", chunks[0].Content)
	assert.True(t, chunks[0].Done)
}
