// Package plan defines dependency-ordered execution plans and the executor
// that runs them against the agent pool and a retrieval store.
package plan

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"querycore/pkg/agent"
)

// Step is one unit of work in a plan.
type Step struct {
	ID             string            `json:"id"`
	Description    string            `json:"description"`
	AgentType      agent.Type        `json:"agent_type"`
	RequiresTool   bool              `json:"requires_tool"`
	ToolName       string            `json:"tool_name,omitempty"`
	RAGQuery       string            `json:"rag_query,omitempty"`
	ExpectedOutput string            `json:"expected_output,omitempty"`
	Dependencies   []string          `json:"dependencies,omitempty"`
	Parameters     map[string]string `json:"parameters,omitempty"`
}

// Plan is a DAG of steps representing one orchestrated request.
type Plan struct {
	ID    string `json:"id"`
	Steps []Step `json:"steps"`
}

// New builds a plan with a fresh id.
func New(steps []Step) Plan {
	return Plan{ID: uuid.New().String(), Steps: steps}
}

// Validate checks structural invariants: unique step ids, tool names
// present where required, and dependencies that reference declared steps.
// A dangling dependency is legal at execution time (the step fails instead
// of the plan), so Validate reports it without rejecting the plan.
func (p Plan) Validate() error {
	ids := make(map[string]bool, len(p.Steps))
	for _, s := range p.Steps {
		if s.ID == "" {
			return fmt.Errorf("plan %s: step with empty id", p.ID)
		}
		if ids[s.ID] {
			return fmt.Errorf("plan %s: duplicate step id %q", p.ID, s.ID)
		}
		ids[s.ID] = true

		if s.RequiresTool && s.ToolName == "" {
			return fmt.Errorf("plan %s: step %q requires a tool but names none", p.ID, s.ID)
		}
	}
	return nil
}

// StepResult is the outcome of one step.
type StepResult struct {
	StepID   string
	Success  bool
	Output   string
	Data     map[string]any
	Error    string
	Duration time.Duration
}

// ExecutionResult aggregates one plan run.
type ExecutionResult struct {
	Success        bool // all steps succeeded
	Results        []StepResult
	CompletedSteps int
	FailedSteps    int
	Summary        string
	Error          string // first failure, if any
	CycleDetected  bool   // order fell back to submission order
	Aborted        bool   // stopped early by the continuation policy
}

// ProgressFunc receives progress as steps finish. completed counts terminal
// steps so far (success or failure), total is the full step count.
type ProgressFunc func(completed, total int, current Step)
