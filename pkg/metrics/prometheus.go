package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus
// metrics registered with the default registry.
type PrometheusRecorder struct {
	providerCalls      *prometheus.CounterVec
	providerDuration   *prometheus.HistogramVec
	cacheEvents        *prometheus.CounterVec
	throttleTotal      *prometheus.CounterVec
	circuitTransitions *prometheus.CounterVec
	pathTotal          *prometheus.CounterVec
	pathConfidence     *prometheus.HistogramVec
	pathDuration       *prometheus.HistogramVec
	planSteps          *prometheus.CounterVec
	planStepDuration   *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a Prometheus-based metrics recorder.
func NewPrometheusRecorder() *PrometheusRecorder {
	return &PrometheusRecorder{
		providerCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "provider_requests_total",
				Help: "Total provider completion calls by model, status, and error type",
			},
			[]string{"model", "status", "error_type"},
		),
		providerDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "provider_request_duration_seconds",
				Help:    "Duration of provider completion calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model"},
		),
		cacheEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "provider_cache_events_total",
				Help: "Provider response cache lookups by outcome (hit/stale/miss)",
			},
			[]string{"outcome"},
		),
		throttleTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "augmentation_throttle_total",
				Help: "Prompt augmentations skipped due to rate limiting, by category",
			},
			[]string{"category"},
		),
		circuitTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "circuit_transitions_total",
				Help: "Circuit breaker state transitions",
			},
			[]string{"from", "to"},
		),
		pathTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestration_path_total",
				Help: "Queries served by orchestration path",
			},
			[]string{"path"},
		),
		pathConfidence: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchestration_confidence",
				Help:    "Delivered confidence by orchestration path",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
			[]string{"path"},
		),
		pathDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchestration_duration_seconds",
				Help:    "End-to-end query processing duration by path",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path"},
		),
		planSteps: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plan_steps_total",
				Help: "Executed plan steps by agent type and status",
			},
			[]string{"agent_type", "status"},
		),
		planStepDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "plan_step_duration_seconds",
				Help:    "Duration of plan steps in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"agent_type"},
		),
	}
}

// ObserveProviderCall records a completed provider completion call.
func (p *PrometheusRecorder) ObserveProviderCall(model string, success bool, errorType string, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	p.providerCalls.WithLabelValues(model, status, errorType).Inc()
	p.providerDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// ObserveCacheEvent records a cache lookup outcome.
func (p *PrometheusRecorder) ObserveCacheEvent(outcome string) {
	p.cacheEvents.WithLabelValues(outcome).Inc()
}

// IncThrottle records an augmentation skipped due to rate limiting.
func (p *PrometheusRecorder) IncThrottle(category string) {
	p.throttleTotal.WithLabelValues(category).Inc()
}

// IncCircuitTransition records a circuit state transition.
func (p *PrometheusRecorder) IncCircuitTransition(from, to string) {
	p.circuitTransitions.WithLabelValues(from, to).Inc()
}

// ObservePath records which orchestration path served a query.
func (p *PrometheusRecorder) ObservePath(path string, confidence float64, duration time.Duration) {
	p.pathTotal.WithLabelValues(path).Inc()
	p.pathConfidence.WithLabelValues(path).Observe(confidence)
	p.pathDuration.WithLabelValues(path).Observe(duration.Seconds())
}

// ObservePlanStep records one executed plan step.
func (p *PrometheusRecorder) ObservePlanStep(agentType string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	p.planSteps.WithLabelValues(agentType, status).Inc()
	p.planStepDuration.WithLabelValues(agentType).Observe(duration.Seconds())
}
