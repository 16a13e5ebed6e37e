// Package metrics provides Prometheus-based metrics recording for the
// orchestration core, and a query service for offline calibration aggregates.
package metrics

import "time"

// Recorder defines the interface for recording core metrics. Injected
// explicitly rather than emitted through hidden observers so tests can
// assert on what was recorded.
type Recorder interface {
	// ObserveProviderCall records a completed provider completion call.
	ObserveProviderCall(model string, success bool, errorType string, duration time.Duration)

	// ObserveCacheEvent records a cache lookup outcome: "hit", "stale" or "miss".
	ObserveCacheEvent(outcome string)

	// IncThrottle records an augmentation skipped due to rate limiting.
	IncThrottle(category string)

	// IncCircuitTransition records a circuit state transition.
	IncCircuitTransition(from, to string)

	// ObservePath records which orchestration path served a query and its
	// delivered confidence.
	ObservePath(path string, confidence float64, duration time.Duration)

	// ObservePlanStep records one executed plan step.
	ObservePlanStep(agentType string, success bool, duration time.Duration)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are
// disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveProviderCall does nothing.
func (n *NoopRecorder) ObserveProviderCall(string, bool, string, time.Duration) {}

// ObserveCacheEvent does nothing.
func (n *NoopRecorder) ObserveCacheEvent(string) {}

// IncThrottle does nothing.
func (n *NoopRecorder) IncThrottle(string) {}

// IncCircuitTransition does nothing.
func (n *NoopRecorder) IncCircuitTransition(string, string) {}

// ObservePath does nothing.
func (n *NoopRecorder) ObservePath(string, float64, time.Duration) {}

// ObservePlanStep does nothing.
func (n *NoopRecorder) ObservePlanStep(string, bool, time.Duration) {}
