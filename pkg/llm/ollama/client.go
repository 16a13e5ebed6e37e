// Package ollama provides the Ollama implementation of the llm.Provider
// interface for locally hosted open-source models.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"querycore/pkg/llm"
)

// DefaultHost is the standard local Ollama endpoint.
const DefaultHost = "http://localhost:11434"

// Client wraps the Ollama API client to implement llm.Provider.
type Client struct {
	client *api.Client
	model  string
}

// NewClient creates a raw Ollama provider. hostURL may be empty, in which
// case the standard local endpoint is used.
func NewClient(hostURL, model string) *Client {
	if hostURL == "" {
		hostURL = DefaultHost
	}
	parsed, err := url.Parse(hostURL)
	if err != nil {
		parsed, _ = url.Parse(DefaultHost)
	}
	return &Client{
		client: api.NewClient(parsed, http.DefaultClient),
		model:  model,
	}
}

func convertMessages(messages []llm.CompletionMessage) []api.Message {
	out := make([]api.Message, 0, len(messages))
	for i := range messages {
		msg := &messages[i]
		out = append(out, api.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return out
}

// Complete implements llm.Provider.
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if len(in.Messages) == 0 {
		return llm.CompletionResponse{}, fmt.Errorf("message list cannot be empty")
	}

	stream := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: convertMessages(in.Messages),
		Stream:   &stream,
		Options: map[string]any{
			"temperature": in.Temperature,
			"num_predict": in.MaxTokens,
		},
	}

	var response api.ChatResponse
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return llm.CompletionResponse{}, fmt.Errorf("ollama completion failed: %w", err)
	}

	return llm.CompletionResponse{
		Content:    response.Message.Content,
		StopReason: response.DoneReason,
	}, nil
}

// Stream implements llm.Provider via Ollama's chunked chat callback.
func (c *Client) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	if len(in.Messages) == 0 {
		return nil, fmt.Errorf("message list cannot be empty")
	}

	stream := true
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: convertMessages(in.Messages),
		Stream:   &stream,
		Options: map[string]any{
			"temperature": in.Temperature,
			"num_predict": in.MaxTokens,
		},
	}

	ch := make(chan llm.StreamChunk, 16)
	go func() {
		defer close(ch)
		err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			if resp.Message.Content != "" {
				ch <- llm.StreamChunk{Content: resp.Message.Content}
			}
			return nil
		})
		if err != nil {
			ch <- llm.StreamChunk{Error: fmt.Errorf("ollama stream failed: %w", err)}
			return
		}
		ch <- llm.StreamChunk{Done: true}
	}()
	return ch, nil
}

// Embed implements llm.Provider using Ollama's embeddings endpoint with the
// chat model itself.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.Embeddings(ctx, &api.EmbeddingRequest{
		Model:  c.model,
		Prompt: text,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embedding failed: %w", err)
	}

	vec := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// ModelName returns the model identifier.
func (c *Client) ModelName() string {
	return c.model
}
