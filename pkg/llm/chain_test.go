package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scriptedProvider(content string) Provider {
	return WrapProvider(
		func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
			return CompletionResponse{Content: content}, nil
		},
		func(_ context.Context, _ CompletionRequest) (<-chan StreamChunk, error) {
			ch := make(chan StreamChunk, 1)
			ch <- StreamChunk{Content: content, Done: true}
			close(ch)
			return ch, nil
		},
		func(_ context.Context, _ string) ([]float32, error) {
			return nil, errors.New("embeddings not scripted")
		},
		func() string { return "scripted" },
	)
}

// tagMiddleware appends its tag on the way in (request mutation order shows
// which middleware ran first).
func tagMiddleware(tag string, trace *[]string) Middleware {
	return func(next Provider) Provider {
		return PassThrough(next,
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				*trace = append(*trace, tag)
				return next.Complete(ctx, req)
			},
			next.Stream,
		)
	}
}

func TestChain_FirstMiddlewareIsOutermost(t *testing.T) {
	var trace []string
	p := Chain(scriptedProvider("ok"),
		tagMiddleware("outer", &trace),
		tagMiddleware("middle", &trace),
		tagMiddleware("inner", &trace),
	)

	resp, err := p.Complete(context.Background(), NewCompletionRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, []string{"outer", "middle", "inner"}, trace)
}

func TestChain_NoMiddlewareReturnsBase(t *testing.T) {
	base := scriptedProvider("base")
	assert.Equal(t, "scripted", Chain(base).ModelName())
}

func TestPassThrough_DelegatesEmbedAndModelName(t *testing.T) {
	base := scriptedProvider("x")
	wrapped := PassThrough(base, base.Complete, base.Stream)

	assert.Equal(t, "scripted", wrapped.ModelName())
	_, err := wrapped.Embed(context.Background(), "text")
	assert.Error(t, err, "scripted provider has no embedder")
}

func TestCompleteText(t *testing.T) {
	out, err := CompleteText(context.Background(), scriptedProvider("hello"), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}
