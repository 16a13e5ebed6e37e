// Package analyzer classifies raw queries into the structured analysis the
// router and orchestrator act on: intent, entities, complexity, domains,
// priority and resource needs.
package analyzer

import (
	"context"
	"strings"
	"time"

	"querycore/pkg/llm"
	"querycore/pkg/logx"
)

// Intent is the coarse purpose of a query.
type Intent string

// Known intents. Keyword classification produces one of these; the
// provider fallback is validated against the same vocabulary.
const (
	IntentQuestion  Intent = "question"
	IntentCommand   Intent = "command"
	IntentDebug     Intent = "debug"
	IntentImplement Intent = "implement"
	IntentAnalyze   Intent = "analyze"
	IntentWrite     Intent = "write"
	IntentResearch  Intent = "research"
	IntentOther     Intent = "other"
	IntentUnknown   Intent = "unknown"
)

// Priority buckets, derived from urgency keywords and intent.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ResourceRequirements flags what a query will need downstream.
type ResourceRequirements struct {
	NeedsNetwork      bool
	NeedsStorage      bool
	NeedsCompletion   bool
	NeedsVectorSearch bool
	ComputeIntensive  bool
	MemoryIntensive   bool
}

// Analysis is the structured understanding of one query.
type Analysis struct {
	Intent            Intent
	Entities          map[string][]string
	Complexity        int // 1..10
	Domains           []string
	Priority          Priority
	EstimatedDuration time.Duration
	Resources         ResourceRequirements
}

// Analyzer classifies queries. The provider is only consulted when keyword
// classification cannot determine the intent.
type Analyzer struct {
	provider llm.Provider
	logger   *logx.Logger
}

// New builds an analyzer. provider may be nil, in which case ambiguous
// intents resolve to "other" without escalation.
func New(provider llm.Provider) *Analyzer {
	return &Analyzer{
		provider: provider,
		logger:   logx.NewLogger("analyzer"),
	}
}

// defaultAnalysis is returned when classification fails internally.
// Routing always needs some analysis to act on.
func defaultAnalysis() Analysis {
	return Analysis{
		Intent:            IntentUnknown,
		Entities:          map[string][]string{},
		Complexity:        5,
		Domains:           []string{"general"},
		Priority:          PriorityMedium,
		EstimatedDuration: estimateDuration(5, 1),
		Resources:         ResourceRequirements{NeedsCompletion: true},
	}
}

// Analyze classifies a query. It never returns an error: internal failures
// degrade to a safe default analysis.
func (a *Analyzer) Analyze(ctx context.Context, text string) (analysis Analysis) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("analysis panicked: %v", r)
			analysis = defaultAnalysis()
		}
	}()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return defaultAnalysis()
	}

	entities := extractEntities(trimmed)
	intent := a.classifyIntent(ctx, trimmed)
	complexity := scoreComplexity(trimmed, entities)
	domains := deriveDomains(trimmed, intent)
	priority := derivePriority(trimmed, intent)
	resources := deriveResources(trimmed, intent, entities)

	return Analysis{
		Intent:            intent,
		Entities:          entities,
		Complexity:        complexity,
		Domains:           domains,
		Priority:          priority,
		EstimatedDuration: estimateDuration(complexity, len(domains)),
		Resources:         resources,
	}
}

// intentKeywords maps trigger words to intents, checked in declaration
// order so the more specific intents win over generic question words.
//
//nolint:gochecknoglobals // Static classification table
var intentKeywords = []struct {
	intent Intent
	words  []string
}{
	{IntentDebug, []string{"debug", "fix", "error", "bug", "broken", "crash", "failing", "traceback"}},
	{IntentImplement, []string{"implement", "build", "create", "add", "develop", "write code", "refactor"}},
	{IntentAnalyze, []string{"analyze", "analyse", "compare", "evaluate", "measure", "profile", "benchmark"}},
	{IntentWrite, []string{"write", "draft", "document", "summarize", "summarise", "compose", "rewrite"}},
	{IntentResearch, []string{"research", "investigate", "find out", "look up", "explore", "survey"}},
	{IntentCommand, []string{"run", "execute", "deploy", "install", "start", "stop", "restart", "delete"}},
	{IntentQuestion, []string{"what", "why", "how", "when", "where", "which", "who", "is", "are", "can", "does"}},
}

// validIntents is the vocabulary the provider fallback must answer within.
//
//nolint:gochecknoglobals // Static vocabulary
var validIntents = map[Intent]bool{
	IntentQuestion:  true,
	IntentCommand:   true,
	IntentDebug:     true,
	IntentImplement: true,
	IntentAnalyze:   true,
	IntentWrite:     true,
	IntentResearch:  true,
	IntentOther:     true,
}

const intentPrompt = `Classify the intent of the following request. Answer with exactly one word from this list: question, command, debug, implement, analyze, write, research, other.

Request: %s

Intent:`

// classifyIntent tries the keyword table first and escalates to the
// provider only when nothing matches. Provider failures or answers outside
// the vocabulary resolve to "other".
func (a *Analyzer) classifyIntent(ctx context.Context, text string) Intent {
	lower := strings.ToLower(text)
	words := tokenize(lower)

	for _, row := range intentKeywords {
		for _, w := range row.words {
			if strings.Contains(w, " ") {
				if strings.Contains(lower, w) {
					return row.intent
				}
			} else if words[w] {
				return row.intent
			}
		}
	}

	if a.provider == nil {
		return IntentOther
	}

	answer, err := llm.CompleteText(ctx, a.provider, strings.ReplaceAll(intentPrompt, "%s", text))
	if err != nil {
		a.logger.Debug("intent escalation failed: %v", err)
		return IntentOther
	}

	candidate := Intent(strings.ToLower(strings.TrimSpace(answer)))
	if validIntents[candidate] {
		return candidate
	}
	a.logger.Debug("intent escalation returned %q, defaulting to other", answer)
	return IntentOther
}

// Connective words indicating multi-step requests.
//
//nolint:gochecknoglobals // Static vocabulary
var connectives = []string{"then", "after", "afterwards", "finally", "next", "subsequently", "followed"}

// Technical indicators that raise complexity independently of the entity
// matchers.
//
//nolint:gochecknoglobals // Static vocabulary
var technicalIndicators = []string{
	"concurrent", "distributed", "scale", "optimize", "migrate", "integrate",
	"architecture", "refactor", "performance", "transaction", "replicate",
}

// scoreComplexity maps text length, entity count, technical indicators and
// multi-step connectives to a 1..10 score. Monotonic: more of anything
// never lowers the score.
func scoreComplexity(text string, entities map[string][]string) int {
	score := 1

	switch length := len(text); {
	case length > 500:
		score += 3
	case length > 200:
		score += 2
	case length > 80:
		score++
	}

	switch n := countEntities(entities); {
	case n > 8:
		score += 3
	case n > 4:
		score += 2
	case n > 1:
		score++
	}

	lower := strings.ToLower(text)
	words := tokenize(lower)
	for _, ind := range technicalIndicators {
		if words[ind] {
			score++
		}
	}
	for _, c := range connectives {
		if words[c] {
			score++
		}
	}

	if score > 10 {
		score = 10
	}
	return score
}

// domainKeywords maps domains to their trigger vocabularies.
//
//nolint:gochecknoglobals // Static classification table
var domainKeywords = map[string][]string{
	"development":   {"code", "function", "class", "compile", "test", "git", "refactor", "implement", "debug"},
	"web":           {"http", "html", "css", "browser", "frontend", "website", "api", "rest", "endpoint"},
	"data":          {"data", "database", "sql", "csv", "json", "analytics", "dataset", "query"},
	"security":      {"security", "vulnerability", "encryption", "auth", "password", "token", "exploit"},
	"performance":   {"performance", "latency", "throughput", "optimize", "slow", "memory", "profiling"},
	"documentation": {"document", "readme", "docs", "tutorial", "guide", "explain", "documentation"},
}

// intentDomains adds a domain implied by the intent itself.
//
//nolint:gochecknoglobals // Static classification table
var intentDomains = map[Intent]string{
	IntentDebug:     "development",
	IntentImplement: "development",
	IntentWrite:     "documentation",
	IntentAnalyze:   "data",
}

// deriveDomains collects domains from keyword presence plus the intent.
// Always non-empty: defaults to {"general"}.
func deriveDomains(text string, intent Intent) []string {
	lower := strings.ToLower(text)
	words := tokenize(lower)

	seen := make(map[string]bool)
	var domains []string
	appendDomain := func(d string) {
		if !seen[d] {
			seen[d] = true
			domains = append(domains, d)
		}
	}

	// Stable iteration so repeated analyses agree on ordering.
	for _, domain := range []string{"development", "web", "data", "security", "performance", "documentation"} {
		for _, kw := range domainKeywords[domain] {
			if words[kw] {
				appendDomain(domain)
				break
			}
		}
	}
	if d, ok := intentDomains[intent]; ok {
		appendDomain(d)
	}

	if len(domains) == 0 {
		return []string{"general"}
	}
	return domains
}

// derivePriority buckets urgency. Debug work is high priority by default;
// an explicit "when you have time" defers anything.
func derivePriority(text string, intent Intent) Priority {
	lower := strings.ToLower(text)

	if strings.Contains(lower, "when you have time") || strings.Contains(lower, "no rush") {
		return PriorityLow
	}
	for _, w := range []string{"urgent", "emergency", "critical", "asap", "immediately"} {
		if strings.Contains(lower, w) {
			return PriorityUrgent
		}
	}
	if strings.Contains(lower, "important") || strings.Contains(lower, "deadline") || intent == IntentDebug {
		return PriorityHigh
	}
	return PriorityMedium
}

// deriveResources flags downstream needs from intent, entities and keywords.
func deriveResources(text string, intent Intent, entities map[string][]string) ResourceRequirements {
	lower := strings.ToLower(text)

	res := ResourceRequirements{
		NeedsCompletion: true,
		NeedsNetwork:    len(entities["url"]) > 0 || intent == IntentResearch,
		NeedsStorage: strings.Contains(lower, "save") || strings.Contains(lower, "store") ||
			strings.Contains(lower, "persist") || len(entities["file_path"]) > 0,
		NeedsVectorSearch: intent == IntentResearch || strings.Contains(lower, "similar") ||
			strings.Contains(lower, "related") || strings.Contains(lower, "context"),
	}

	words := tokenize(lower)
	for _, w := range []string{"benchmark", "train", "compute", "simulation", "render"} {
		if words[w] {
			res.ComputeIntensive = true
			break
		}
	}
	for _, w := range []string{"large", "dataset", "corpus", "bulk", "batch"} {
		if words[w] {
			res.MemoryIntensive = true
			break
		}
	}
	return res
}

// estimateDuration scales with complexity and domain spread, clamped to
// [10s, 300s].
func estimateDuration(complexity, domainCount int) time.Duration {
	seconds := complexity*30 + domainCount*15
	if seconds < 10 {
		seconds = 10
	}
	if seconds > 300 {
		seconds = 300
	}
	return time.Duration(seconds) * time.Second
}
