package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"querycore/pkg/analyzer"
	"querycore/pkg/llm"
	"querycore/pkg/resilience"
)

// ragTopK bounds how many retrieved fragments feed the RAG prompt.
const ragTopK = 5

// processDirect answers low-complexity queries with a single completion at
// the calibrated direct-path confidence.
func (o *Orchestrator) processDirect(ctx context.Context, query string) Response {
	resp, err := o.wrapper.Complete(ctx, resilience.Request{
		Prompt:   query,
		Category: "direct",
	})
	if err != nil {
		return o.fallback(PathDirect, err.Error())
	}

	return Response{
		Text:       resp.Content,
		Confidence: o.cal.DirectConfidence,
		Path:       PathDirect,
	}
}

// processRAG retrieves supporting context, answers over it, and scores
// confidence from retrieval relevance and answer-validation heuristics.
func (o *Orchestrator) processRAG(ctx context.Context, query string) Response {
	if o.store == nil {
		// No retrieval collaborator wired: answer directly but keep the
		// path tag honest about what was attempted.
		resp, err := o.wrapper.Complete(ctx, resilience.Request{Prompt: query, Category: "rag"})
		if err != nil {
			return o.fallback(PathRAG, err.Error())
		}
		return Response{
			Text:       resp.Content,
			Confidence: o.cal.RAGValidationWeight * validateAnswer(query, resp.Content),
			Path:       PathRAG,
		}
	}

	// Retrieval is a suspension point like any other: it runs under the
	// executor's retrieval deadline, never the caller's open-ended context.
	searchCtx := ctx
	if d := o.executor.RetrievalTimeout(); d > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	results, err := o.store.Search(searchCtx, query, ragTopK)
	if err != nil {
		o.logger.Debug("retrieval failed: %v", err)
		results = nil
	}

	var (
		contextParts []string
		sources      []string
		relevanceSum float64
	)
	for _, r := range results {
		contextParts = append(contextParts, r.Content)
		if r.Source != "" {
			sources = append(sources, r.Source)
		}
		relevanceSum += r.RelevanceScore
	}

	prompt := query
	if len(contextParts) > 0 {
		prompt = fmt.Sprintf(
			"Answer the question using the context below. If the context is insufficient, say so.\n\nContext:\n%s\n\nQuestion: %s",
			strings.Join(contextParts, "\n---\n"), query,
		)
	}

	resp, err := o.wrapper.Complete(ctx, resilience.Request{Prompt: prompt, Category: "rag"})
	if err != nil {
		return o.fallback(PathRAG, err.Error())
	}

	avgRelevance := 0.0
	if len(results) > 0 {
		avgRelevance = relevanceSum / float64(len(results))
	}
	confidence := clamp01(o.cal.RAGRelevanceWeight*avgRelevance +
		o.cal.RAGValidationWeight*validateAnswer(query, resp.Content))

	return Response{
		Text:       resp.Content,
		Confidence: confidence,
		Path:       PathRAG,
		Sources:    sources,
	}
}

// processOrchestration runs the full multi-agent pipeline: routing, plan
// construction, dependency-ordered execution, and output consolidation.
func (o *Orchestrator) processOrchestration(ctx context.Context, query string, a analyzer.Analysis) Response {
	routing := o.router.Route(a)

	p, err := o.buildPlan(ctx, query, a, routing)
	if err != nil {
		return o.fallback(PathOrchestration, err.Error())
	}

	execution := o.executor.Execute(ctx, p)

	text := o.consolidate(ctx, query, execution.Summary)
	if strings.TrimSpace(text) == "" {
		return o.fallback(PathOrchestration, "plan produced no output")
	}

	total := execution.CompletedSteps + execution.FailedSteps
	successRatio := 0.0
	if total > 0 {
		successRatio = float64(execution.CompletedSteps) / float64(total)
	}
	confidence := clamp01(o.cal.PlanSuccessWeight*successRatio +
		o.cal.AgentConfidenceWeight*routing.OverallConfidence)

	return Response{
		Text:       text,
		Confidence: confidence,
		Path:       PathOrchestration,
	}
}

// consolidate merges a multi-step summary into one coherent answer. On
// provider failure the raw summary is still a usable answer.
func (o *Orchestrator) consolidate(ctx context.Context, query, summary string) string {
	if strings.TrimSpace(summary) == "" {
		return ""
	}

	prompt := fmt.Sprintf(
		"Combine the following step results into one coherent answer to the request. Do not mention the steps themselves.\n\nRequest: %s\n\nStep results:\n%s",
		query, summary,
	)
	resp, err := o.wrapper.Complete(ctx, resilience.Request{Prompt: prompt, Category: "consolidation"})
	if err != nil {
		o.logger.Debug("consolidation failed, using raw summary: %v", err)
		return summary
	}
	return resp.Content
}

// hedging phrases that reduce an answer's validation score.
//
//nolint:gochecknoglobals // Static vocabulary
var hedges = []string{
	"i don't know", "i do not know", "cannot answer", "can't answer",
	"not sure", "unsure", "insufficient", "no information",
}

// validateAnswer is the answer-quality heuristic for the RAG path: a 0..1
// score from answer substance, query-term coverage and hedging.
func validateAnswer(query, answer string) float64 {
	trimmed := strings.TrimSpace(answer)
	if trimmed == "" {
		return 0
	}

	score := 0.4
	if len(trimmed) >= 40 {
		score += 0.2
	}

	lowerAnswer := strings.ToLower(trimmed)
	queryTerms := strings.Fields(strings.ToLower(query))
	matched := 0
	considered := 0
	for _, term := range queryTerms {
		if len(term) < 4 {
			continue
		}
		considered++
		if strings.Contains(lowerAnswer, term) {
			matched++
		}
	}
	if considered > 0 {
		score += 0.4 * float64(matched) / float64(considered)
	} else {
		score += 0.2
	}

	for _, h := range hedges {
		if strings.Contains(lowerAnswer, h) {
			score -= 0.3
			break
		}
	}

	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// completeDeterministic is a helper for constrained classification-style
// prompts where sampling variation hurts.
func (o *Orchestrator) completeDeterministic(ctx context.Context, prompt, category string) (string, error) {
	resp, err := o.wrapper.Complete(ctx, resilience.Request{
		Prompt:      prompt,
		Category:    category,
		Temperature: llm.TemperatureDeterministic,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
