// Package augment decides whether and how to enrich prompts before provider
// calls. Augmentation is an optimization: any gate (scope, markers, rollout,
// rate limit) failing means the original prompt is sent unchanged.
package augment

import (
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Classifier decides whether a prompt is eligible for augmentation.
// Pluggable so deployments can swap in model-driven scoping.
type Classifier interface {
	// ShouldAugment reports whether the prompt, in the given enhancement
	// category, should be augmented.
	ShouldAugment(prompt, category string) bool
}

// Config controls the default classifier.
type Config struct {
	Enabled        bool
	RolloutPercent int      // A/B rollout slice, 0-100
	Markers        []string // substrings indicating the prompt is already augmented
}

// RuleClassifier is the default Classifier: a prompt is in scope when
// augmentation is enabled, the prompt carries no enhancement markers, and
// the deterministic rollout hash selects this request.
type RuleClassifier struct {
	config Config
}

// NewRuleClassifier creates the default classifier.
func NewRuleClassifier(config Config) *RuleClassifier {
	return &RuleClassifier{config: config}
}

// ShouldAugment implements Classifier.
func (c *RuleClassifier) ShouldAugment(prompt, category string) bool {
	if !c.config.Enabled {
		return false
	}
	if strings.TrimSpace(prompt) == "" {
		return false
	}
	for _, marker := range c.config.Markers {
		if marker != "" && strings.Contains(prompt, marker) {
			return false
		}
	}
	return c.inRollout(prompt, category)
}

// inRollout hashes (prompt, category) to a stable [0,100) slot so the same
// request is consistently in or out of the rollout.
func (c *RuleClassifier) inRollout(prompt, category string) bool {
	if c.config.RolloutPercent >= 100 {
		return true
	}
	if c.config.RolloutPercent <= 0 {
		return false
	}
	sum := blake2b.Sum256([]byte(category + "\x00" + prompt))
	slot := int(sum[0]) % 100
	return slot < c.config.RolloutPercent
}

// Marker is prepended to augmented prompts so they are never augmented twice.
const Marker = "[context-enhanced]"

// Apply enriches the prompt for the given category. The enhancement text is
// deliberately lightweight; category-specific instruction blocks are the
// extension point.
func Apply(prompt, category string) string {
	var b strings.Builder
	b.WriteString(Marker)
	b.WriteString(" ")
	switch category {
	case "analysis":
		b.WriteString("Answer precisely and state your confidence where uncertain.\n\n")
	case "planning":
		b.WriteString("Respond with concrete, ordered steps.\n\n")
	default:
		b.WriteString("Be concise and factual.\n\n")
	}
	b.WriteString(prompt)
	return b.String()
}
