// Package router maps a query analysis to a ranked set of candidate agent
// types with fallbacks, required capabilities and a risk assessment.
package router

import (
	"querycore/pkg/agent"
	"querycore/pkg/analyzer"
	"querycore/pkg/logx"
)

// SelectedAgent is one ranked routing candidate.
type SelectedAgent struct {
	AgentType            agent.Type
	Priority             int     // 1 is highest
	Confidence           float64 // 0..1
	RequiredCapabilities []agent.Capability
}

// RiskAssessment summarizes execution risk for the plan builder.
type RiskAssessment struct {
	Level   string // low, medium, high
	Factors []string
}

// Plan is the router's output: a non-empty ordered selection plus a
// fallback chain that never repeats the primary type.
type Plan struct {
	SelectedAgents    []SelectedAgent
	FallbackAgents    []agent.Type
	OverallConfidence float64
	ExecutionStrategy string // sequential or parallel
	Risk              RiskAssessment
}

// Primary returns the top-ranked agent type.
func (p Plan) Primary() agent.Type {
	return p.SelectedAgents[0].AgentType
}

// rule maps analysis features to an agent type. Rules are checked in order;
// the first match wins, so more specific rules come first.
type rule struct {
	agentType  agent.Type
	confidence float64
	matches    func(a analyzer.Analysis) bool
}

//nolint:gochecknoglobals // Static routing table
var rules = []rule{
	{agent.TypeToolExecutor, 0.9, func(a analyzer.Analysis) bool {
		return a.Intent == analyzer.IntentCommand
	}},
	{agent.TypeDataAnalysis, 0.85, func(a analyzer.Analysis) bool {
		return a.Intent == analyzer.IntentAnalyze || hasDomain(a, "data")
	}},
	{agent.TypeCode, 0.85, func(a analyzer.Analysis) bool {
		if a.Intent == analyzer.IntentDebug || a.Intent == analyzer.IntentImplement {
			return true
		}
		return len(a.Entities["code_block"]) > 0 || len(a.Entities["language"]) > 0
	}},
	{agent.TypeWriter, 0.8, func(a analyzer.Analysis) bool {
		return a.Intent == analyzer.IntentWrite || hasDomain(a, "documentation")
	}},
	{agent.TypeResearch, 0.75, func(a analyzer.Analysis) bool {
		return a.Intent == analyzer.IntentResearch || a.Resources.NeedsNetwork
	}},
}

// fallbackTable is the static type→fallbacks chain. Chains never include
// their own primary type.
//
//nolint:gochecknoglobals // Static routing table
var fallbackTable = map[agent.Type][]agent.Type{
	agent.TypeResearch:     {agent.TypeGeneral},
	agent.TypeCode:         {agent.TypeGeneral, agent.TypeResearch},
	agent.TypeDataAnalysis: {agent.TypeCode, agent.TypeGeneral},
	agent.TypeWriter:       {agent.TypeGeneral, agent.TypeResearch},
	agent.TypeToolExecutor: {agent.TypeCode, agent.TypeGeneral},
	agent.TypeGeneral:      {agent.TypeResearch},
}

// Router is stateless; the struct exists so a logger travels with it.
type Router struct {
	logger *logx.Logger
}

// New builds a router.
func New() *Router {
	return &Router{logger: logx.NewLogger("router")}
}

// Route maps an analysis to a routing plan. Deterministic, and the
// selection is never empty: an unmatched analysis routes to the general
// agent at reduced confidence.
func (r *Router) Route(a analyzer.Analysis) Plan {
	primary := SelectedAgent{
		AgentType:  agent.TypeGeneral,
		Priority:   1,
		Confidence: 0.6,
	}
	for _, rl := range rules {
		if rl.matches(a) {
			primary.AgentType = rl.agentType
			primary.Confidence = rl.confidence
			break
		}
	}
	primary.RequiredCapabilities = requiredCapabilities(primary.AgentType, a.Resources)

	selected := []SelectedAgent{primary}

	// Multi-domain queries get a research candidate alongside the primary,
	// ranked second.
	if len(a.Domains) > 1 && primary.AgentType != agent.TypeResearch {
		selected = append(selected, SelectedAgent{
			AgentType:            agent.TypeResearch,
			Priority:             2,
			Confidence:           0.6,
			RequiredCapabilities: requiredCapabilities(agent.TypeResearch, a.Resources),
		})
	}

	plan := Plan{
		SelectedAgents:    selected,
		FallbackAgents:    fallbacks(primary.AgentType),
		OverallConfidence: primary.Confidence,
		ExecutionStrategy: strategy(a),
		Risk:              assessRisk(a),
	}

	r.logger.Debug("routed intent=%s to %s (confidence %.2f)", a.Intent, primary.AgentType, primary.Confidence)
	return plan
}

// requiredCapabilities unions the type's base set with capabilities implied
// by the analysis resource flags.
func requiredCapabilities(t agent.Type, res analyzer.ResourceRequirements) []agent.Capability {
	caps := agent.BaseCapabilities(t)
	seen := make(map[agent.Capability]bool, len(caps))
	for _, c := range caps {
		seen[c] = true
	}
	addCap := func(c agent.Capability) {
		if !seen[c] {
			seen[c] = true
			caps = append(caps, c)
		}
	}

	if res.NeedsNetwork {
		addCap(agent.CapabilityInternetAccess)
	}
	if res.NeedsStorage {
		addCap(agent.CapabilityStorageAccess)
	}
	if res.NeedsVectorSearch {
		addCap(agent.CapabilityVectorSearch)
	}
	return caps
}

// fallbacks returns the static chain for a type, guaranteed not to contain
// the type itself.
func fallbacks(primary agent.Type) []agent.Type {
	chain := fallbackTable[primary]
	out := make([]agent.Type, 0, len(chain))
	for _, t := range chain {
		if t != primary {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		out = append(out, agent.TypeGeneral)
	}
	return out
}

// strategy picks the execution strategy hint. The baseline executor runs
// sequentially either way; the hint records what the plan could support.
func strategy(a analyzer.Analysis) string {
	if len(a.Domains) > 2 && a.Complexity >= 7 {
		return "parallel"
	}
	return "sequential"
}

func assessRisk(a analyzer.Analysis) RiskAssessment {
	var factors []string
	if a.Complexity >= 8 {
		factors = append(factors, "high complexity")
	}
	if len(a.Domains) >= 3 {
		factors = append(factors, "spans multiple domains")
	}
	if a.Intent == analyzer.IntentCommand {
		factors = append(factors, "executes commands")
	}
	if a.Resources.NeedsNetwork {
		factors = append(factors, "requires network access")
	}

	level := "low"
	switch {
	case len(factors) >= 3:
		level = "high"
	case len(factors) >= 1:
		level = "medium"
	}
	return RiskAssessment{Level: level, Factors: factors}
}

func hasDomain(a analyzer.Analysis, domain string) bool {
	for _, d := range a.Domains {
		if d == domain {
			return true
		}
	}
	return false
}
