package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// PathStats represents aggregated per-path statistics used by the offline
// calibration job to retune path thresholds and confidence weights.
type PathStats struct {
	Path           string  `json:"path"`
	Requests       int64   `json:"requests"`
	AvgConfidence  float64 `json:"avg_confidence"`
	P90DurationSec float64 `json:"p90_duration_sec"`
}

// QueryService queries recorded orchestration metrics back out of Prometheus.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a metrics query service against the given
// Prometheus base URL.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{Address: prometheusURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}
	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

func (q *QueryService) scalar(ctx context.Context, query string) (float64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("prometheus query %q failed: %w", query, err)
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return float64(vector[0].Value), nil
	}
	return 0, nil
}

// GetPathStats retrieves aggregated statistics for one orchestration path
// over the given window.
func (q *QueryService) GetPathStats(ctx context.Context, path string, window time.Duration) (*PathStats, error) {
	rng := model.Duration(window).String()

	requests, err := q.scalar(ctx,
		fmt.Sprintf(`sum(increase(orchestration_path_total{path=%q}[%s]))`, path, rng))
	if err != nil {
		return nil, err
	}

	avgConfidence, err := q.scalar(ctx, fmt.Sprintf(
		`sum(rate(orchestration_confidence_sum{path=%q}[%s])) / sum(rate(orchestration_confidence_count{path=%q}[%s]))`,
		path, rng, path, rng))
	if err != nil {
		return nil, err
	}

	p90, err := q.scalar(ctx, fmt.Sprintf(
		`histogram_quantile(0.9, sum(rate(orchestration_duration_seconds_bucket{path=%q}[%s])) by (le))`,
		path, rng))
	if err != nil {
		return nil, err
	}

	return &PathStats{
		Path:           path,
		Requests:       int64(requests),
		AvgConfidence:  avgConfidence,
		P90DurationSec: p90,
	}, nil
}

// GetCacheHitRatio returns the fraction of cache lookups served from fresh
// or stale entries over the given window.
func (q *QueryService) GetCacheHitRatio(ctx context.Context, window time.Duration) (float64, error) {
	rng := model.Duration(window).String()
	return q.scalar(ctx, fmt.Sprintf(
		`sum(increase(provider_cache_events_total{outcome=~"hit|stale"}[%s])) / sum(increase(provider_cache_events_total[%s]))`,
		rng, rng))
}
