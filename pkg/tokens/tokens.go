// Package tokens provides tiktoken-based token counting used for rate-limit
// budgeting and prompt-size checks.
package tokens

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// Counter provides token counting for prompt text. All supported chat models
// are approximated with the GPT-4 encoding, which is close enough for
// budgeting purposes.
type Counter struct {
	codec tokenizer.Codec
}

// NewCounter creates a token counter.
func NewCounter() (*Counter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec: %w", err)
	}
	return &Counter{codec: codec}, nil
}

// Count returns the number of tokens in the given text. Falls back to a
// character-based estimate (4 chars per token) if the codec fails.
func (c *Counter) Count(text string) int {
	if c == nil || c.codec == nil {
		return len(text) / 4
	}
	count, err := c.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// CountSimple counts tokens without a Counter instance.
func CountSimple(text string) int {
	counter, err := NewCounter()
	if err != nil {
		return len(text) / 4
	}
	return counter.Count(text)
}

// Truncate trims text to roughly fit within the token limit. Truncation is
// proportional by characters, not exact token boundaries.
func (c *Counter) Truncate(text string, limit int) string {
	current := c.Count(text)
	if current <= limit {
		return text
	}
	ratio := float64(limit) / float64(current)
	charLimit := int(float64(len(text)) * ratio * 0.9)
	if charLimit >= len(text) {
		return text
	}
	return text[:charLimit] + "..."
}
