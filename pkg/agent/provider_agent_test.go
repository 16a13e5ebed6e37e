package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querycore/pkg/llm"
)

type fakeProvider struct {
	content string
	err     error
	lastReq llm.CompletionRequest
}

func (f *fakeProvider) Complete(_ context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return llm.CompletionResponse{}, f.err
	}
	return llm.CompletionResponse{Content: f.content}, nil
}

func (f *fakeProvider) Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	resp, err := f.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	ch := make(chan llm.StreamChunk, 1)
	ch <- llm.StreamChunk{Content: resp.Content, Done: true}
	close(ch)
	return ch, nil
}

func (f *fakeProvider) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("not supported")
}

func (f *fakeProvider) ModelName() string { return "fake" }

func TestProviderAgent_ExecuteFramesTaskWithContext(t *testing.T) {
	provider := &fakeProvider{content: "the answer"}
	a := NewProviderAgent(TypeResearch, provider, nil)

	res := a.Execute(context.Background(), Task{
		Description: "find prior art",
		Context:     "earlier findings",
	})

	require.True(t, res.Success)
	assert.Equal(t, "the answer", res.Output)

	require.Len(t, provider.lastReq.Messages, 2)
	assert.Equal(t, llm.RoleSystem, provider.lastReq.Messages[0].Role)
	assert.Contains(t, provider.lastReq.Messages[1].Content, "earlier findings")
	assert.Contains(t, provider.lastReq.Messages[1].Content, "find prior art")
}

func TestProviderAgent_ExecuteReportsFailureInResult(t *testing.T) {
	provider := &fakeProvider{err: errors.New("backend down")}
	a := NewProviderAgent(TypeGeneral, provider, nil)

	res := a.Execute(context.Background(), Task{Description: "anything"})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "backend down")
	assert.Empty(t, res.Output)
}

func TestProviderAgent_ExecuteWithTool(t *testing.T) {
	tools := NewToolRegistry()
	tools.Register(CurrentTimeTool())
	a := NewProviderAgent(TypeToolExecutor, &fakeProvider{}, tools)

	res := a.ExecuteWithTool(context.Background(), ToolInvocation{Name: "current_time"})
	require.True(t, res.Success)
	assert.NotEmpty(t, res.Output)

	res = a.ExecuteWithTool(context.Background(), ToolInvocation{Name: "missing"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "missing")
}

func TestProviderAgent_GetToolWithoutRegistry(t *testing.T) {
	a := NewProviderAgent(TypeGeneral, &fakeProvider{}, nil)
	assert.Nil(t, a.GetTool("anything"))
}
