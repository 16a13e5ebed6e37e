package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"querycore/pkg/agent"
	"querycore/pkg/analyzer"
	"querycore/pkg/plan"
	"querycore/pkg/router"
)

// maxPlanSteps bounds generated plans; anything larger is almost certainly
// a decomposition runaway.
const maxPlanSteps = 10

const planPrompt = `Decompose the request below into a short sequence of execution steps. Respond with only a JSON array, no prose. Each element:
{"id": "step-1", "description": "...", "agent_type": "...", "dependencies": ["step-ids"], "rag_query": "optional search query"}

agent_type must be one of: %s. Use dependencies only where one step needs another step's output. Use at most %d steps.

Request: %s

JSON:`

// plannedStep is the decomposition wire shape the provider fills in.
type plannedStep struct {
	ID           string   `json:"id"`
	Description  string   `json:"description"`
	AgentType    string   `json:"agent_type"`
	Dependencies []string `json:"dependencies"`
	RAGQuery     string   `json:"rag_query"`
}

// buildPlan asks the provider to decompose the query into steps and
// validates the result. Any construction failure degrades to a single-step
// plan on the routed primary agent, so orchestration never dies at the
// planning stage.
func (o *Orchestrator) buildPlan(ctx context.Context, query string, a analyzer.Analysis, routing router.Plan) (plan.Plan, error) {
	prompt := fmt.Sprintf(planPrompt, agentTypeList(), maxPlanSteps, query)

	raw, err := o.completeDeterministic(ctx, prompt, "planning")
	if err != nil {
		o.logger.Warn("plan construction completion failed, using single-step plan: %v", err)
		return o.singleStepPlan(query, a, routing), nil
	}

	steps, err := parsePlannedSteps(raw, routing.Primary())
	if err != nil {
		o.logger.Warn("plan construction returned unusable output, using single-step plan: %v", err)
		return o.singleStepPlan(query, a, routing), nil
	}

	p := plan.New(steps)
	if err := p.Validate(); err != nil {
		o.logger.Warn("generated plan invalid, using single-step plan: %v", err)
		return o.singleStepPlan(query, a, routing), nil
	}
	return p, nil
}

// singleStepPlan is the degenerate plan: the whole query as one task on the
// routed primary agent.
func (o *Orchestrator) singleStepPlan(query string, a analyzer.Analysis, routing router.Plan) plan.Plan {
	ragQuery := ""
	if a.Resources.NeedsVectorSearch {
		ragQuery = query
	}
	return plan.New([]plan.Step{{
		ID:          "step-1",
		Description: query,
		AgentType:   routing.Primary(),
		RAGQuery:    ragQuery,
	}})
}

// parsePlannedSteps decodes the provider's JSON array, tolerating prose or
// code fences around it. Unknown agent types fall back to the routed
// primary rather than failing the plan.
func parsePlannedSteps(raw string, primary agent.Type) ([]plan.Step, error) {
	jsonText := extractJSONArray(raw)
	if jsonText == "" {
		return nil, fmt.Errorf("no JSON array in plan output")
	}

	var planned []plannedStep
	if err := json.Unmarshal([]byte(jsonText), &planned); err != nil {
		return nil, fmt.Errorf("decoding plan steps: %w", err)
	}
	if len(planned) == 0 {
		return nil, fmt.Errorf("plan output decoded to zero steps")
	}
	if len(planned) > maxPlanSteps {
		planned = planned[:maxPlanSteps]
	}

	steps := make([]plan.Step, 0, len(planned))
	for i, ps := range planned {
		id := strings.TrimSpace(ps.ID)
		if id == "" {
			id = fmt.Sprintf("step-%d", i+1)
		}

		agentType := agent.Type(strings.TrimSpace(ps.AgentType))
		if !agentType.Valid() {
			agentType = primary
		}

		steps = append(steps, plan.Step{
			ID:           id,
			Description:  strings.TrimSpace(ps.Description),
			AgentType:    agentType,
			Dependencies: ps.Dependencies,
			RAGQuery:     strings.TrimSpace(ps.RAGQuery),
		})
	}
	return steps, nil
}

// extractJSONArray pulls the outermost JSON array out of possibly-fenced,
// possibly-chatty model output.
func extractJSONArray(raw string) string {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

func agentTypeList() string {
	types := agent.AllTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
