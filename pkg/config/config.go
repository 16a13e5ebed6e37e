// Package config provides configuration loading, validation, and management
// for the orchestration core. It handles JSON config files, environment
// variable substitution, and the YAML calibration parameter file.
package config

import (
	"fmt"
	"time"
)

// Provider backend names.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderGoogle    = "google"
)

// Default executor policy values. The failure-ratio limit and critical-error
// abort are policy, not constants: both are configurable per deployment.
const (
	DefaultFailureRatioLimit   = 0.5
	DefaultRetrievalTimeoutSec = 5
	DefaultToolTimeoutSec      = 30
	DefaultAgentTimeoutSec     = 60
)

// ProviderConfig selects and configures the completion backend.
type ProviderConfig struct {
	Backend        string `json:"backend"`         // anthropic | openai | ollama | google
	Model          string `json:"model"`           // backend-specific model name
	APIKey         string `json:"api_key"`         // supports ${ENV_VAR} substitution
	Host           string `json:"host,omitempty"`  // for ollama
	EmbeddingModel string `json:"embedding_model"` // optional override
}

// CircuitConfig controls the provider circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `json:"failure_threshold"` // consecutive failures before opening
	SuccessThreshold int `json:"success_threshold"` // successes to close from half-open
	CooldownSec      int `json:"cooldown_sec"`      // wait before trying half-open
}

// Cooldown returns the cooldown as a duration.
func (c *CircuitConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSec) * time.Second
}

// CacheConfig controls the stale-while-revalidate response cache.
type CacheConfig struct {
	TTLSec             int `json:"ttl_sec"`              // fresh window
	StaleWindowSec     int `json:"stale_window_sec"`     // serve-stale-and-revalidate window
	MaxEntries         int `json:"max_entries"`          // LRU-ish eviction bound
	JanitorIntervalSec int `json:"janitor_interval_sec"` // expired-entry sweep interval
}

// TTL returns the fresh window as a duration.
func (c *CacheConfig) TTL() time.Duration { return time.Duration(c.TTLSec) * time.Second }

// StaleWindow returns the stale window as a duration.
func (c *CacheConfig) StaleWindow() time.Duration {
	return time.Duration(c.StaleWindowSec) * time.Second
}

// BucketConfig is one token bucket in the augmentation rate limiter.
type BucketConfig struct {
	Capacity        int `json:"capacity"`          // maximum tokens in the bucket
	RefillPerMinute int `json:"refill_per_minute"` // tokens added per minute
}

// RateLimitConfig holds the per-category augmentation buckets. The "default"
// key applies to categories without an explicit bucket.
type RateLimitConfig struct {
	Buckets map[string]BucketConfig `json:"buckets"`
}

// AugmentConfig controls prompt augmentation decisions.
type AugmentConfig struct {
	Enabled        bool     `json:"enabled"`
	RolloutPercent int      `json:"rollout_percent"` // A/B rollout, 0-100
	Markers        []string `json:"markers"`         // prompts containing these are already augmented
}

// RetryConfig controls the provider retry policy.
type RetryConfig struct {
	MaxAttempts    int     `json:"max_attempts"`
	InitialDelayMs int     `json:"initial_delay_ms"`
	MaxDelayMs     int     `json:"max_delay_ms"`
	BackoffFactor  float64 `json:"backoff_factor"`
	Jitter         bool    `json:"jitter"`
}

// ResilienceConfig groups the provider resilience wrapper settings.
type ResilienceConfig struct {
	Circuit           CircuitConfig   `json:"circuit"`
	Cache             CacheConfig     `json:"cache"`
	RateLimit         RateLimitConfig `json:"rate_limit"`
	Augment           AugmentConfig   `json:"augment"`
	Retry             RetryConfig     `json:"retry"`
	RequestTimeoutSec int             `json:"request_timeout_sec"` // per provider call
}

// RequestTimeout returns the per-call provider timeout.
func (c *ResilienceConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// ExecutorConfig controls plan execution policy.
type ExecutorConfig struct {
	RetrievalTimeoutSec int     `json:"retrieval_timeout_sec"` // best-effort context gathering
	ToolTimeoutSec      int     `json:"tool_timeout_sec"`
	AgentTimeoutSec     int     `json:"agent_timeout_sec"`
	FailureRatioLimit   float64 `json:"failure_ratio_limit"` // stop once failed/total exceeds this
	AbortOnCritical     bool    `json:"abort_on_critical"`   // halt plan on a critical error class
	RetrievalTopK       int     `json:"retrieval_top_k"`
}

// RetrievalTimeout returns the retrieval timeout as a duration.
func (c *ExecutorConfig) RetrievalTimeout() time.Duration {
	return time.Duration(c.RetrievalTimeoutSec) * time.Second
}

// ToolTimeout returns the tool invocation timeout as a duration.
func (c *ExecutorConfig) ToolTimeout() time.Duration {
	return time.Duration(c.ToolTimeoutSec) * time.Second
}

// AgentTimeout returns the agent execution timeout as a duration.
func (c *ExecutorConfig) AgentTimeout() time.Duration {
	return time.Duration(c.AgentTimeoutSec) * time.Second
}

// PoolConfig controls the agent pool.
type PoolConfig struct {
	MaxPerType     int `json:"max_per_type"`     // pooled instances per agent type
	IdleTimeoutSec int `json:"idle_timeout_sec"` // idle agents beyond this are evicted
	AcquireWaitSec int `json:"acquire_wait_sec"` // how long Get blocks when the pool is full
}

// IdleTimeout returns the idle eviction timeout as a duration.
func (c *PoolConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSec) * time.Second
}

// AcquireWait returns the pool acquisition wait bound as a duration.
func (c *PoolConfig) AcquireWait() time.Duration {
	return time.Duration(c.AcquireWaitSec) * time.Second
}

// OrchestratorConfig holds top-level orchestrator wiring.
type OrchestratorConfig struct {
	CalibrationPath string `json:"calibration_path"` // YAML calibration parameter file
	FeedbackDBPath  string `json:"feedback_db_path"` // sqlite feedback store
}

// Config is the root configuration for the orchestration core. Constructed
// once at startup and passed by reference to all services.
type Config struct {
	Provider      ProviderConfig     `json:"provider"`
	Resilience    ResilienceConfig   `json:"resilience"`
	Executor      ExecutorConfig     `json:"executor"`
	Pool          PoolConfig         `json:"pool"`
	Orchestrator  OrchestratorConfig `json:"orchestrator"`
	MetricsAddr   string             `json:"metrics_addr,omitempty"`   // prometheus scrape endpoint
	PrometheusURL string             `json:"prometheus_url,omitempty"` // for the calibration query service
}

// applyDefaults fills zero values with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Provider.Backend == "" {
		cfg.Provider.Backend = ProviderAnthropic
	}
	if cfg.Resilience.Circuit.FailureThreshold == 0 {
		cfg.Resilience.Circuit.FailureThreshold = 5
	}
	if cfg.Resilience.Circuit.SuccessThreshold == 0 {
		cfg.Resilience.Circuit.SuccessThreshold = 1
	}
	if cfg.Resilience.Circuit.CooldownSec == 0 {
		cfg.Resilience.Circuit.CooldownSec = 30
	}
	if cfg.Resilience.Cache.TTLSec == 0 {
		cfg.Resilience.Cache.TTLSec = 300
	}
	if cfg.Resilience.Cache.StaleWindowSec == 0 {
		cfg.Resilience.Cache.StaleWindowSec = 60
	}
	if cfg.Resilience.Cache.MaxEntries == 0 {
		cfg.Resilience.Cache.MaxEntries = 1000
	}
	if cfg.Resilience.Cache.JanitorIntervalSec == 0 {
		cfg.Resilience.Cache.JanitorIntervalSec = 60
	}
	if cfg.Resilience.RateLimit.Buckets == nil {
		cfg.Resilience.RateLimit.Buckets = map[string]BucketConfig{
			"default": {Capacity: 10, RefillPerMinute: 10},
		}
	}
	if cfg.Resilience.Retry.MaxAttempts == 0 {
		cfg.Resilience.Retry.MaxAttempts = 3
	}
	if cfg.Resilience.Retry.InitialDelayMs == 0 {
		cfg.Resilience.Retry.InitialDelayMs = 100
	}
	if cfg.Resilience.Retry.MaxDelayMs == 0 {
		cfg.Resilience.Retry.MaxDelayMs = 10000
	}
	if cfg.Resilience.Retry.BackoffFactor == 0 {
		cfg.Resilience.Retry.BackoffFactor = 2.0
	}
	if cfg.Resilience.RequestTimeoutSec == 0 {
		cfg.Resilience.RequestTimeoutSec = 120
	}
	if cfg.Executor.RetrievalTimeoutSec == 0 {
		cfg.Executor.RetrievalTimeoutSec = DefaultRetrievalTimeoutSec
	}
	if cfg.Executor.ToolTimeoutSec == 0 {
		cfg.Executor.ToolTimeoutSec = DefaultToolTimeoutSec
	}
	if cfg.Executor.AgentTimeoutSec == 0 {
		cfg.Executor.AgentTimeoutSec = DefaultAgentTimeoutSec
	}
	if cfg.Executor.FailureRatioLimit == 0 {
		cfg.Executor.FailureRatioLimit = DefaultFailureRatioLimit
		cfg.Executor.AbortOnCritical = true
	}
	if cfg.Executor.RetrievalTopK == 0 {
		cfg.Executor.RetrievalTopK = 5
	}
	if cfg.Pool.MaxPerType == 0 {
		cfg.Pool.MaxPerType = 4
	}
	if cfg.Pool.IdleTimeoutSec == 0 {
		cfg.Pool.IdleTimeoutSec = 300
	}
	if cfg.Pool.AcquireWaitSec == 0 {
		cfg.Pool.AcquireWaitSec = 30
	}
	if cfg.Orchestrator.FeedbackDBPath == "" {
		cfg.Orchestrator.FeedbackDBPath = "querycore.db"
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = ":9090"
	}
}

// validate rejects configurations the core cannot run with.
func validate(cfg *Config) error {
	switch cfg.Provider.Backend {
	case ProviderAnthropic, ProviderOpenAI, ProviderOllama, ProviderGoogle:
	default:
		return fmt.Errorf("unknown provider backend %q", cfg.Provider.Backend)
	}
	if cfg.Provider.Backend != ProviderOllama && cfg.Provider.APIKey == "" {
		return fmt.Errorf("provider %s requires an api_key", cfg.Provider.Backend)
	}
	if cfg.Resilience.Circuit.FailureThreshold < 1 {
		return fmt.Errorf("circuit failure_threshold must be >= 1, got %d", cfg.Resilience.Circuit.FailureThreshold)
	}
	if cfg.Resilience.Cache.StaleWindowSec < 0 {
		return fmt.Errorf("cache stale_window_sec cannot be negative")
	}
	if cfg.Executor.FailureRatioLimit <= 0 || cfg.Executor.FailureRatioLimit > 1 {
		return fmt.Errorf("executor failure_ratio_limit must be in (0,1], got %v", cfg.Executor.FailureRatioLimit)
	}
	if cfg.Resilience.Augment.RolloutPercent < 0 || cfg.Resilience.Augment.RolloutPercent > 100 {
		return fmt.Errorf("augment rollout_percent must be in [0,100], got %d", cfg.Resilience.Augment.RolloutPercent)
	}
	for name, b := range cfg.Resilience.RateLimit.Buckets {
		if b.Capacity < 1 {
			return fmt.Errorf("rate limit bucket %q capacity must be >= 1", name)
		}
	}
	return nil
}

// Default returns a fully defaulted configuration suitable for tests.
func Default() *Config {
	cfg := &Config{}
	cfg.Provider.APIKey = "test-key"
	applyDefaults(cfg)
	return cfg
}
