package augment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuleClassifier_DisabledNeverAugments(t *testing.T) {
	c := NewRuleClassifier(Config{Enabled: false, RolloutPercent: 100})
	assert.False(t, c.ShouldAugment("some prompt", "analysis"))
}

func TestRuleClassifier_SkipsAlreadyAugmentedPrompts(t *testing.T) {
	c := NewRuleClassifier(Config{Enabled: true, RolloutPercent: 100, Markers: []string{Marker}})

	assert.True(t, c.ShouldAugment("plain prompt", "analysis"))
	assert.False(t, c.ShouldAugment(Apply("plain prompt", "analysis"), "analysis"),
		"an augmented prompt must never be augmented twice")
}

func TestRuleClassifier_SkipsEmptyPrompts(t *testing.T) {
	c := NewRuleClassifier(Config{Enabled: true, RolloutPercent: 100})
	assert.False(t, c.ShouldAugment("   ", "analysis"))
}

func TestRuleClassifier_RolloutIsDeterministic(t *testing.T) {
	c := NewRuleClassifier(Config{Enabled: true, RolloutPercent: 50})

	first := c.ShouldAugment("the same prompt", "analysis")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, c.ShouldAugment("the same prompt", "analysis"),
			"rollout decision must be stable per (prompt, category)")
	}
}

func TestRuleClassifier_RolloutBounds(t *testing.T) {
	all := NewRuleClassifier(Config{Enabled: true, RolloutPercent: 100})
	none := NewRuleClassifier(Config{Enabled: true, RolloutPercent: 0})

	for _, prompt := range []string{"a", "b", "c", "d"} {
		assert.True(t, all.ShouldAugment(prompt, "x"))
		assert.False(t, none.ShouldAugment(prompt, "x"))
	}
}

func TestApply_PrependsMarkerAndKeepsPrompt(t *testing.T) {
	out := Apply("what is the capital of France?", "analysis")

	assert.True(t, strings.HasPrefix(out, Marker))
	assert.Contains(t, out, "what is the capital of France?")
}

func TestApply_CategoryInstructions(t *testing.T) {
	assert.Contains(t, Apply("p", "planning"), "ordered steps")
	assert.Contains(t, Apply("p", "analysis"), "confidence")
	assert.Contains(t, Apply("p", "anything-else"), "concise")
}
