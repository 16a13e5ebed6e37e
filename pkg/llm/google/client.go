// Package google provides the Gemini implementation of the llm.Provider
// interface via the Google GenAI SDK.
package google

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"

	"querycore/pkg/llm"
)

// Default models used when none are configured.
const (
	DefaultModel          = "gemini-2.0-flash"
	DefaultEmbeddingModel = "gemini-embedding-001"
)

// Client wraps the GenAI client to implement llm.Provider. Client creation
// requires a context, so the underlying SDK client is created lazily on
// first use.
type Client struct {
	mu             sync.Mutex
	client         *genai.Client
	apiKey         string
	model          string
	embeddingModel string
}

// NewClient creates a raw Gemini provider.
func NewClient(apiKey, model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		apiKey:         apiKey,
		model:          model,
		embeddingModel: DefaultEmbeddingModel,
	}
}

func (c *Client) ensureClient(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	c.client = client
	return client, nil
}

func convertMessages(messages []llm.CompletionMessage) (contents []*genai.Content, systemInstruction string) {
	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			if systemInstruction != "" {
				systemInstruction += "\n\n"
			}
			systemInstruction += msg.Content
		case llm.RoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		}
	}
	return contents, systemInstruction
}

// Complete implements llm.Provider.
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	client, err := c.ensureClient(ctx)
	if err != nil {
		return llm.CompletionResponse{}, err
	}

	contents, systemInstruction := convertMessages(in.Messages)
	if len(contents) == 0 {
		return llm.CompletionResponse{}, fmt.Errorf("message list cannot be empty")
	}

	temp := in.Temperature
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: int32(in.MaxTokens), //nolint:gosec // MaxTokens validated at config layer
	}
	if systemInstruction != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}

	result, err := client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return llm.CompletionResponse{}, fmt.Errorf("gemini completion failed: %w", err)
	}
	if result == nil || len(result.Candidates) == 0 {
		return llm.CompletionResponse{}, fmt.Errorf("empty response from Gemini API")
	}

	stopReason := ""
	if result.Candidates[0].FinishReason != "" {
		stopReason = string(result.Candidates[0].FinishReason)
	}

	return llm.CompletionResponse{
		Content:    result.Text(),
		StopReason: stopReason,
	}, nil
}

// Stream implements llm.Provider. The synchronous API is wrapped in a
// single-chunk stream.
func (c *Client) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, 2)
	go func() {
		defer close(ch)
		resp, err := c.Complete(ctx, in)
		if err != nil {
			ch <- llm.StreamChunk{Error: err}
			return
		}
		ch <- llm.StreamChunk{Content: resp.Content}
		ch <- llm.StreamChunk{Done: true}
	}()
	return ch, nil
}

// Embed implements llm.Provider using the Gemini embeddings model.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	client, err := c.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	contents := []*genai.Content{{Parts: []*genai.Part{{Text: text}}}}
	result, err := client.Models.EmbedContent(ctx, c.embeddingModel, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini embedding failed: %w", err)
	}
	if result == nil || len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("empty embedding response from Gemini API")
	}
	return result.Embeddings[0].Values, nil
}

// ModelName returns the model identifier.
func (c *Client) ModelName() string {
	return c.model
}
