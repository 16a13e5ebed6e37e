// Package ratelimit provides the per-category token-bucket limiter gating
// prompt augmentation.
package ratelimit

import (
	"sync"
	"time"

	"querycore/pkg/logx"
	"querycore/pkg/metrics"
)

// DefaultCategory is the bucket applied to categories without an explicit
// configuration.
const DefaultCategory = "default"

// BucketConfig sizes one token bucket, in estimated prompt tokens.
type BucketConfig struct {
	Capacity        int // maximum tokens in the bucket
	RefillPerMinute int // tokens added per minute
}

type bucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}

// Limiter manages token buckets per enhancement category. Exhaustion never
// blocks or fails a call: the caller proceeds without augmentation.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	configs  map[string]BucketConfig
	recorder metrics.Recorder
	logger   *logx.Logger

	throttleHits int64
}

// New creates a limiter from per-category bucket configs. A DefaultCategory
// entry backs any category without its own bucket.
func New(configs map[string]BucketConfig, recorder metrics.Recorder) *Limiter {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	if configs == nil {
		configs = map[string]BucketConfig{}
	}
	if _, ok := configs[DefaultCategory]; !ok {
		configs[DefaultCategory] = BucketConfig{Capacity: 10, RefillPerMinute: 10}
	}
	return &Limiter{
		buckets:  make(map[string]*bucket),
		configs:  configs,
		recorder: recorder,
		logger:   logx.NewLogger("augment-ratelimit"),
	}
}

func (l *Limiter) bucketFor(category string) *bucket {
	if b, ok := l.buckets[category]; ok {
		return b
	}
	cfg, ok := l.configs[category]
	if !ok {
		cfg = l.configs[DefaultCategory]
	}
	b := &bucket{
		tokens:     float64(cfg.Capacity),
		capacity:   float64(cfg.Capacity),
		refillRate: float64(cfg.RefillPerMinute) / 60.0,
		lastRefill: time.Now(),
	}
	l.buckets[category] = b
	return b
}

// Allow attempts to consume cost tokens from the category's bucket. Returns
// false on exhaustion, in which case the augmentation is skipped and a
// throttle event recorded.
func (l *Limiter) Allow(category string, cost int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.bucketFor(category)
	b.refill(time.Now())

	if b.tokens < float64(cost) {
		l.throttleHits++
		l.recorder.IncThrottle(category)
		l.logger.Debug("category %s exhausted (need %d, have %.0f), augmentation skipped",
			category, cost, b.tokens)
		return false
	}
	b.tokens -= float64(cost)
	return true
}

// Stats reports the current token level per instantiated bucket.
func (l *Limiter) Stats() map[string]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	out := make(map[string]float64, len(l.buckets))
	for name, b := range l.buckets {
		b.refill(now)
		out[name] = b.tokens
	}
	return out
}
