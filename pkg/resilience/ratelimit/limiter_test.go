package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_AllowsUntilExhausted(t *testing.T) {
	l := New(map[string]BucketConfig{
		"analysis": {Capacity: 100, RefillPerMinute: 0},
	}, nil)

	assert.True(t, l.Allow("analysis", 60))
	assert.True(t, l.Allow("analysis", 40))
	assert.False(t, l.Allow("analysis", 1), "bucket is empty and refill is zero")
}

func TestLimiter_UnknownCategoryUsesDefaultBucket(t *testing.T) {
	l := New(map[string]BucketConfig{
		DefaultCategory: {Capacity: 10, RefillPerMinute: 0},
	}, nil)

	assert.True(t, l.Allow("never-configured", 10))
	assert.False(t, l.Allow("never-configured", 1))
}

func TestLimiter_CategoriesAreIndependent(t *testing.T) {
	l := New(map[string]BucketConfig{
		"a": {Capacity: 5, RefillPerMinute: 0},
		"b": {Capacity: 5, RefillPerMinute: 0},
	}, nil)

	assert.True(t, l.Allow("a", 5))
	assert.False(t, l.Allow("a", 1))
	assert.True(t, l.Allow("b", 5), "exhausting one category must not affect another")
}

func TestLimiter_OverCapacityCostNeverAllowed(t *testing.T) {
	l := New(map[string]BucketConfig{
		"small": {Capacity: 10, RefillPerMinute: 600},
	}, nil)

	assert.False(t, l.Allow("small", 50), "cost above capacity can never be satisfied")
}

func TestLimiter_Stats(t *testing.T) {
	l := New(map[string]BucketConfig{
		"analysis": {Capacity: 100, RefillPerMinute: 0},
	}, nil)

	l.Allow("analysis", 30)
	stats := l.Stats()
	assert.InDelta(t, 70, stats["analysis"], 0.01)
}
