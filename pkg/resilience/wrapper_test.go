package resilience

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querycore/pkg/config"
	"querycore/pkg/llm"
	"querycore/pkg/resilience/augment"
	"querycore/pkg/resilience/circuit"
	"querycore/pkg/testkit"
)

// testConfig keeps retries and timeouts out of the way so tests exercise
// one stage at a time.
func testConfig() *config.ResilienceConfig {
	return &config.ResilienceConfig{
		Circuit: config.CircuitConfig{FailureThreshold: 3, SuccessThreshold: 1, CooldownSec: 60},
		Cache:   config.CacheConfig{TTLSec: 60, StaleWindowSec: 60, MaxEntries: 100, JanitorIntervalSec: 60},
		Retry:   config.RetryConfig{MaxAttempts: 1, InitialDelayMs: 1, MaxDelayMs: 1, BackoffFactor: 2},
		Augment: config.AugmentConfig{Enabled: false},
		RateLimit: config.RateLimitConfig{Buckets: map[string]config.BucketConfig{
			"default": {Capacity: 100000, RefillPerMinute: 0},
		}},
		RequestTimeoutSec: 30,
	}
}

func TestWrapper_ServesFromCacheOnRepeatPrompt(t *testing.T) {
	provider := testkit.NewMockProvider("first answer")
	w := New(testConfig(), provider, nil, nil)
	defer w.Shutdown()

	ctx := context.Background()
	resp, err := w.Complete(ctx, Request{Prompt: "what is the capital of France?"})
	require.NoError(t, err)
	assert.Equal(t, "first answer", resp.Content)

	resp, err = w.Complete(ctx, Request{Prompt: "what is the capital of France?"})
	require.NoError(t, err)
	assert.Equal(t, "first answer", resp.Content)
	assert.Equal(t, 1, provider.Calls(), "second call must be a cache hit")
}

func TestWrapper_LocationSeparatesCacheEntries(t *testing.T) {
	provider := testkit.NewMockProvider("answer")
	w := New(testConfig(), provider, nil, nil)
	defer w.Shutdown()

	ctx := context.Background()
	_, err := w.Complete(ctx, Request{Prompt: "p", Location: "store-a"})
	require.NoError(t, err)
	_, err = w.Complete(ctx, Request{Prompt: "p", Location: "store-b"})
	require.NoError(t, err)

	assert.Equal(t, 2, provider.Calls())
}

func TestWrapper_CircuitOpensAfterThresholdFailures(t *testing.T) {
	provider := testkit.NewMockProvider()
	provider.Fail(errors.New("backend down"))
	w := New(testConfig(), provider, nil, nil)
	defer w.Shutdown()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := w.Complete(ctx, Request{Prompt: "q"})
		require.Error(t, err)
	}

	assert.Equal(t, circuit.Open, w.BreakerState())
}

// TestWrapper_OpenCircuitBypassesCacheAndAugmentation drives the breaker
// open and verifies the next call inside the cooldown goes straight to the
// provider: no cached answer served, no augmentation applied.
func TestWrapper_OpenCircuitBypassesCacheAndAugmentation(t *testing.T) {
	cfg := testConfig()
	cfg.Augment = config.AugmentConfig{Enabled: true, RolloutPercent: 100, Markers: []string{augment.Marker}}

	provider := testkit.NewMockProvider("live answer")
	w := New(cfg, provider, nil, nil)
	defer w.Shutdown()

	ctx := context.Background()

	// Warm the cache while the circuit is closed.
	_, err := w.Complete(ctx, Request{Prompt: "warm"})
	require.NoError(t, err)
	callsAfterWarm := provider.Calls()

	provider.Fail(errors.New("backend down"))
	for i := 0; i < 3; i++ {
		_, err := w.Complete(ctx, Request{Prompt: "failing"})
		require.Error(t, err)
	}
	require.Equal(t, circuit.Open, w.BreakerState())

	provider.Fail(nil)
	resp, err := w.Complete(ctx, Request{Prompt: "warm"})
	require.NoError(t, err)
	assert.Equal(t, "live answer", resp.Content)
	assert.Equal(t, circuit.Open, w.BreakerState(), "bypass must not move the breaker inside the cooldown")

	prompts := provider.Prompts()
	last := prompts[len(prompts)-1]
	assert.Equal(t, "warm", last, "bypassed call sends the raw prompt, unaugmented")
	assert.Greater(t, provider.Calls(), callsAfterWarm+3, "cached prompt must reach the provider while open")
}

func TestWrapper_AugmentsWithinRateBudget(t *testing.T) {
	cfg := testConfig()
	cfg.Augment = config.AugmentConfig{Enabled: true, RolloutPercent: 100, Markers: []string{augment.Marker}}

	provider := testkit.NewMockProvider("ok")
	w := New(cfg, provider, nil, nil)
	defer w.Shutdown()

	_, err := w.Complete(context.Background(), Request{Prompt: "analyze this", Category: "analysis"})
	require.NoError(t, err)

	prompts := provider.Prompts()
	require.Len(t, prompts, 1)
	assert.True(t, strings.HasPrefix(prompts[0], augment.Marker))
}

func TestWrapper_ProceedsUnaugmentedWhenBucketExhausted(t *testing.T) {
	cfg := testConfig()
	cfg.Augment = config.AugmentConfig{Enabled: true, RolloutPercent: 100, Markers: []string{augment.Marker}}
	cfg.RateLimit.Buckets = map[string]config.BucketConfig{
		"default": {Capacity: 1, RefillPerMinute: 0},
	}

	provider := testkit.NewMockProvider("ok")
	w := New(cfg, provider, nil, nil)
	defer w.Shutdown()

	resp, err := w.Complete(context.Background(), Request{Prompt: "needs more tokens than the bucket holds"})
	require.NoError(t, err, "rate-limit exhaustion must never fail the call")
	assert.Equal(t, "ok", resp.Content)

	prompts := provider.Prompts()
	require.Len(t, prompts, 1)
	assert.False(t, strings.HasPrefix(prompts[0], augment.Marker), "augmentation skipped on exhaustion")
}

// TestWrapper_EmbedRunsUnderDeadline verifies embedding calls never reach
// the provider with an open-ended context.
func TestWrapper_EmbedRunsUnderDeadline(t *testing.T) {
	var sawDeadline bool
	provider := llm.WrapProvider(
		func(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
			return llm.CompletionResponse{Content: "ok"}, nil
		},
		func(context.Context, llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
			return nil, errors.New("not used")
		},
		func(ctx context.Context, _ string) ([]float32, error) {
			_, sawDeadline = ctx.Deadline()
			return []float32{1, 0}, nil
		},
		func() string { return "embed-test" },
	)

	w := New(testConfig(), provider, nil, nil)
	defer w.Shutdown()

	vec, err := w.Embed(context.Background(), "some text")
	require.NoError(t, err)
	assert.NotEmpty(t, vec)
	assert.True(t, sawDeadline, "embedding must run under an explicit deadline")
}

func toReq(prompt string) llm.CompletionRequest {
	return llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage(prompt)})
}

func TestWrapper_ProviderPassesThroughBreaker(t *testing.T) {
	provider := testkit.NewMockProvider("ok")
	w := New(testConfig(), provider, nil, nil)
	defer w.Shutdown()

	p := w.Provider()
	resp, err := p.Complete(context.Background(), toReq("hello"))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, "mock-model", p.ModelName())
}
