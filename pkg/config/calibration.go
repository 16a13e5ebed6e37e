package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Calibration holds the tunable parameters of the confidence orchestrator:
// the thresholds deciding between the three execution paths, and the
// coefficients weighting confidence computation. Loaded at startup; updated
// offline from accumulated feedback.
type Calibration struct {
	// Path selection thresholds.
	DirectComplexityMax int `yaml:"direct_complexity_max"` // at or below: direct path candidate
	RAGComplexityMax    int `yaml:"rag_complexity_max"`    // at or below: confidence-RAG candidate
	MultiDomainMin      int `yaml:"multi_domain_min"`      // at or above this many domains: orchestration

	// Confidence coefficients.
	DirectConfidence      float64 `yaml:"direct_confidence"`       // fixed confidence of the direct path
	RAGRelevanceWeight    float64 `yaml:"rag_relevance_weight"`    // weight of retrieval relevance
	RAGValidationWeight   float64 `yaml:"rag_validation_weight"`   // weight of answer-validation heuristics
	PlanSuccessWeight     float64 `yaml:"plan_success_weight"`     // weight of step success ratio
	AgentConfidenceWeight float64 `yaml:"agent_confidence_weight"` // weight of routed agent confidence
	FallbackConfidence    float64 `yaml:"fallback_confidence"`     // confidence of canned fallback responses
}

// DefaultCalibration returns the shipped calibration values.
func DefaultCalibration() Calibration {
	return Calibration{
		DirectComplexityMax:   3,
		RAGComplexityMax:      6,
		MultiDomainMin:        3,
		DirectConfidence:      0.9,
		RAGRelevanceWeight:    0.6,
		RAGValidationWeight:   0.4,
		PlanSuccessWeight:     0.7,
		AgentConfidenceWeight: 0.3,
		FallbackConfidence:    0.2,
	}
}

// LoadCalibration reads calibration parameters from a YAML file. Missing
// fields keep their defaults; a missing file returns the defaults unchanged.
func LoadCalibration(path string) (Calibration, error) {
	cal := DefaultCalibration()
	if path == "" {
		return cal, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cal, nil
		}
		return cal, fmt.Errorf("failed to read calibration file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cal); err != nil {
		return cal, fmt.Errorf("failed to parse calibration file %s: %w", path, err)
	}
	if err := cal.Validate(); err != nil {
		return cal, fmt.Errorf("invalid calibration %s: %w", path, err)
	}
	return cal, nil
}

// SaveCalibration writes calibration parameters to a YAML file, for the
// offline calibration job to persist updated values.
func SaveCalibration(path string, cal Calibration) error {
	data, err := yaml.Marshal(cal)
	if err != nil {
		return fmt.Errorf("failed to marshal calibration: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write calibration file %s: %w", path, err)
	}
	return nil
}

// Validate rejects calibration values outside their meaningful ranges.
func (c *Calibration) Validate() error {
	if c.DirectComplexityMax < 1 || c.DirectComplexityMax > 10 {
		return fmt.Errorf("direct_complexity_max must be in [1,10], got %d", c.DirectComplexityMax)
	}
	if c.RAGComplexityMax < c.DirectComplexityMax || c.RAGComplexityMax > 10 {
		return fmt.Errorf("rag_complexity_max must be in [direct_complexity_max,10], got %d", c.RAGComplexityMax)
	}
	if c.MultiDomainMin < 1 {
		return fmt.Errorf("multi_domain_min must be >= 1, got %d", c.MultiDomainMin)
	}
	for name, v := range map[string]float64{
		"direct_confidence":       c.DirectConfidence,
		"rag_relevance_weight":    c.RAGRelevanceWeight,
		"rag_validation_weight":   c.RAGValidationWeight,
		"plan_success_weight":     c.PlanSuccessWeight,
		"agent_confidence_weight": c.AgentConfidenceWeight,
		"fallback_confidence":     c.FallbackConfidence,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0,1], got %v", name, v)
		}
	}
	return nil
}
