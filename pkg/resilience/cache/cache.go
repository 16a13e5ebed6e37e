// Package cache provides the stale-while-revalidate response cache used by
// the provider resilience wrapper.
package cache

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"querycore/pkg/llm"
	"querycore/pkg/logx"
	"querycore/pkg/metrics"
)

// Outcome classifies a cache lookup.
type Outcome string

// Lookup outcomes.
const (
	OutcomeHit   Outcome = "hit"   // entry younger than ttl, served as-is
	OutcomeStale Outcome = "stale" // within the stale window, served while revalidating
	OutcomeMiss  Outcome = "miss"  // absent or beyond ttl+staleWindow
)

type entry struct {
	response     llm.CompletionResponse
	timestamp    time.Time
	hitCount     int
	revalidating bool
}

// Config controls cache behavior.
type Config struct {
	TTL             time.Duration // fresh window
	StaleWindow     time.Duration // additional serve-stale window
	MaxEntries      int           // eviction bound
	JanitorInterval time.Duration // expired-entry sweep interval
}

// Cache is a process-wide response cache shared by all concurrent requests.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	config   Config
	recorder metrics.Recorder
	logger   *logx.Logger
}

// New creates a response cache.
func New(config Config, recorder metrics.Recorder) *Cache {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &Cache{
		entries:  make(map[string]*entry),
		config:   config,
		recorder: recorder,
		logger:   logx.NewLogger("response-cache"),
	}
}

// Key derives the cache key from the prompt and optional location context.
func Key(prompt, location string) string {
	sum := blake2b.Sum256([]byte(prompt + "\x00" + location))
	return hex.EncodeToString(sum[:])
}

// Lookup returns the cached response for key and classifies its freshness.
// A stale outcome is returned at most once per entry until Store refreshes
// it, so only one revalidation is scheduled per expiry.
func (c *Cache) Lookup(key string) (llm.CompletionResponse, Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.recorder.ObserveCacheEvent(string(OutcomeMiss))
		return llm.CompletionResponse{}, OutcomeMiss
	}

	age := time.Since(e.timestamp)
	switch {
	case age < c.config.TTL:
		e.hitCount++
		c.recorder.ObserveCacheEvent(string(OutcomeHit))
		return e.response, OutcomeHit
	case age < c.config.TTL+c.config.StaleWindow:
		e.hitCount++
		c.recorder.ObserveCacheEvent(string(OutcomeStale))
		if e.revalidating {
			// Revalidation already in flight; serve stale as a plain hit.
			return e.response, OutcomeHit
		}
		e.revalidating = true
		return e.response, OutcomeStale
	default:
		delete(c.entries, key)
		c.recorder.ObserveCacheEvent(string(OutcomeMiss))
		return llm.CompletionResponse{}, OutcomeMiss
	}
}

// Store caches a response under key, evicting the oldest entry when the
// cache is at capacity.
func (c *Cache) Store(key string, response llm.CompletionResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.config.MaxEntries > 0 && len(c.entries) >= c.config.MaxEntries {
		c.evictOldestLocked()
	}

	c.entries[key] = &entry{
		response:  response,
		timestamp: time.Now(),
	}
}

func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.timestamp.Before(oldest) {
			oldestKey = k
			oldest = e.timestamp
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// RunJanitor sweeps entries older than ttl+staleWindow until ctx is
// cancelled. Started once at wrapper construction.
func (c *Cache) RunJanitor(ctx context.Context) {
	interval := c.config.JanitorInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.sweep()
			}
		}
	}()
}

func (c *Cache) sweep() {
	deadline := c.config.TTL + c.config.StaleWindow
	c.mu.Lock()
	removed := 0
	for k, e := range c.entries {
		if time.Since(e.timestamp) >= deadline {
			delete(c.entries, k)
			removed++
		}
	}
	remaining := len(c.entries)
	c.mu.Unlock()

	if removed > 0 {
		c.logger.Debug("swept %d expired entries, %d remaining", removed, remaining)
	}
}
