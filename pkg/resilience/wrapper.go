// Package resilience wraps the completion provider with circuit breaking,
// response caching, augmentation rate limiting, retry, timeout and metrics.
// Every outbound completion call in the core goes through this wrapper.
package resilience

import (
	"context"
	"time"

	"querycore/pkg/config"
	"querycore/pkg/errx"
	"querycore/pkg/llm"
	"querycore/pkg/logx"
	"querycore/pkg/metrics"
	"querycore/pkg/resilience/augment"
	"querycore/pkg/resilience/cache"
	"querycore/pkg/resilience/circuit"
	"querycore/pkg/resilience/ratelimit"
	"querycore/pkg/resilience/retry"
	"querycore/pkg/resilience/timeout"
	"querycore/pkg/resilience/validate"
	"querycore/pkg/tokens"
)

// Request is one prompt-level completion request through the wrapper.
type Request struct {
	Prompt      string
	Location    string // optional context key folded into the cache key
	Category    string // enhancement category for augmentation rate limiting
	MaxTokens   int
	Temperature float32
}

// Wrapper is the provider resilience layer. Process-wide: constructed once
// at startup, shared by all concurrent requests, torn down via Shutdown.
type Wrapper struct {
	raw            llm.Provider // unwrapped provider, used when the circuit bypasses the chain
	chain          llm.Provider // retry -> validate -> timeout -> record -> provider
	breaker        *circuit.Breaker
	cache          *cache.Cache
	limiter        *ratelimit.Limiter
	classifier     augment.Classifier
	counter        *tokens.Counter
	recorder       metrics.Recorder
	logger         *logx.Logger
	requestTimeout time.Duration
	cancel         context.CancelFunc
}

// New builds the wrapper from configuration. classifier may be nil, in which
// case the rule-based classifier from the config is used.
func New(cfg *config.ResilienceConfig, provider llm.Provider, recorder metrics.Recorder, classifier augment.Classifier) *Wrapper {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	if classifier == nil {
		classifier = augment.NewRuleClassifier(augment.Config{
			Enabled:        cfg.Augment.Enabled,
			RolloutPercent: cfg.Augment.RolloutPercent,
			Markers:        append([]string{augment.Marker}, cfg.Augment.Markers...),
		})
	}

	breaker := circuit.New(circuit.Config{
		FailureThreshold: cfg.Circuit.FailureThreshold,
		SuccessThreshold: cfg.Circuit.SuccessThreshold,
		Cooldown:         cfg.Circuit.Cooldown(),
	}, recorder)

	buckets := make(map[string]ratelimit.BucketConfig, len(cfg.RateLimit.Buckets))
	for name, b := range cfg.RateLimit.Buckets {
		buckets[name] = ratelimit.BucketConfig{Capacity: b.Capacity, RefillPerMinute: b.RefillPerMinute}
	}

	counter, err := tokens.NewCounter()
	if err != nil {
		counter = nil // Count falls back to a character estimate
	}

	w := &Wrapper{
		raw:     provider,
		breaker: breaker,
		cache: cache.New(cache.Config{
			TTL:             cfg.Cache.TTL(),
			StaleWindow:     cfg.Cache.StaleWindow(),
			MaxEntries:      cfg.Cache.MaxEntries,
			JanitorInterval: time.Duration(cfg.Cache.JanitorIntervalSec) * time.Second,
		}, recorder),
		limiter:        ratelimit.New(buckets, recorder),
		classifier:     classifier,
		counter:        counter,
		recorder:       recorder,
		logger:         logx.NewLogger("resilience"),
		requestTimeout: cfg.RequestTimeout(),
	}

	w.chain = llm.Chain(provider,
		retry.Middleware(retry.NewPolicy(retry.Config{
			MaxAttempts:   cfg.Retry.MaxAttempts,
			InitialDelay:  time.Duration(cfg.Retry.InitialDelayMs) * time.Millisecond,
			MaxDelay:      time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond,
			BackoffFactor: cfg.Retry.BackoffFactor,
			Jitter:        cfg.Retry.Jitter,
		}, nil)),
		validate.Middleware(),
		timeout.Middleware(cfg.RequestTimeout()),
		w.recordMiddleware(),
	)

	janitorCtx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.cache.RunJanitor(janitorCtx)

	return w
}

// recordMiddleware is the innermost layer: it feeds the circuit breaker and
// records per-call latency metrics around the actual provider invocation.
func (w *Wrapper) recordMiddleware() llm.Middleware {
	return func(next llm.Provider) llm.Provider {
		return llm.PassThrough(next,
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				resp, err := next.Complete(ctx, req)
				w.breaker.Record(err == nil)
				w.recorder.ObserveProviderCall(next.ModelName(), err == nil, errorType(err), time.Since(start))
				return resp, err
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				start := time.Now()
				ch, err := next.Stream(ctx, req)
				// Stream establishment is what the breaker tracks; chunks are not.
				w.breaker.Record(err == nil)
				w.recorder.ObserveProviderCall(next.ModelName(), err == nil, errorType(err), time.Since(start))
				return ch, err
			},
		)
	}
}

func errorType(err error) string {
	if err == nil {
		return ""
	}
	return errx.KindOf(err).String()
}

// Provider returns the resilient message-level provider (circuit, retry,
// validation, timeout, metrics — no response cache). Use for multi-message
// conversations where caching on the prompt makes no sense.
func (w *Wrapper) Provider() llm.Provider {
	return llm.PassThrough(w.chain,
		func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
			if !w.breaker.Allow() {
				return w.bypass(ctx, req)
			}
			return w.chain.Complete(ctx, req)
		},
		func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
			if !w.breaker.Allow() {
				return w.raw.Stream(ctx, req)
			}
			return w.chain.Stream(ctx, req)
		},
	)
}

// Complete runs one prompt-level completion through the full stage order:
// circuit check, cache lookup, rate-limited augmentation decision, provider
// call, validation, cache store, metric recording.
func (w *Wrapper) Complete(ctx context.Context, req Request) (llm.CompletionResponse, error) {
	// Circuit open inside the cooldown: bypass the wrapper entirely and call
	// the provider directly — no cache, no rate limit, no augmentation.
	if !w.breaker.Allow() {
		w.logger.Debug("circuit open, bypassing wrapper")
		return w.bypass(ctx, w.toCompletionRequest(req.Prompt, req))
	}

	key := cache.Key(req.Prompt, req.Location)
	if cached, outcome := w.cache.Lookup(key); outcome != cache.OutcomeMiss {
		if outcome == cache.OutcomeStale {
			w.scheduleRevalidation(key, req)
		}
		return cached, nil
	}

	prompt := req.Prompt
	if w.classifier.ShouldAugment(prompt, req.Category) {
		cost := w.estimateTokens(prompt, req.MaxTokens)
		if w.limiter.Allow(category(req), cost) {
			prompt = augment.Apply(prompt, req.Category)
		}
		// On exhaustion the call proceeds unaugmented; the limiter has
		// already recorded the throttle.
	}

	resp, err := w.chain.Complete(ctx, w.toCompletionRequest(prompt, req))
	if err != nil {
		return llm.CompletionResponse{}, err
	}

	w.cache.Store(key, resp)
	return resp, nil
}

// Embed passes embedding requests straight to the provider; embeddings are
// cheap and deterministic, so only the circuit and the per-call deadline
// apply.
func (w *Wrapper) Embed(ctx context.Context, text string) ([]float32, error) {
	if w.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.requestTimeout)
		defer cancel()
	}

	vec, err := w.raw.Embed(ctx, text)
	w.breaker.Record(err == nil)
	return vec, err
}

// BreakerState exposes the circuit state for diagnostics and tests.
func (w *Wrapper) BreakerState() circuit.State {
	return w.breaker.GetState()
}

// CacheLen exposes the cache entry count for diagnostics and tests.
func (w *Wrapper) CacheLen() int {
	return w.cache.Len()
}

// Shutdown stops the cache janitor. Pending revalidations finish on their
// own bounded deadlines.
func (w *Wrapper) Shutdown() {
	w.cancel()
}

func (w *Wrapper) bypass(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	return w.raw.Complete(ctx, req)
}

func (w *Wrapper) toCompletionRequest(prompt string, req Request) llm.CompletionRequest {
	out := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage(prompt)})
	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		out.Temperature = req.Temperature
	}
	return out
}

func (w *Wrapper) estimateTokens(prompt string, maxTokens int) int {
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}
	return w.counter.Count(prompt) + maxTokens
}

func category(req Request) string {
	if req.Category == "" {
		return ratelimit.DefaultCategory
	}
	return req.Category
}

// scheduleRevalidation refreshes a stale cache entry in the background. The
// refresh runs detached from the request under its own deadline.
func (w *Wrapper) scheduleRevalidation(key string, req Request) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		resp, err := w.chain.Complete(ctx, w.toCompletionRequest(req.Prompt, req))
		if err != nil {
			w.logger.Debug("revalidation failed for %s: %v", key[:8], err)
			return
		}
		w.cache.Store(key, resp)
	}()
}
