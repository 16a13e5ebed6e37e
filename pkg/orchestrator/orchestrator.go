// Package orchestrator is the top-level entry point: it analyzes a query,
// picks one of three processing paths, and always delivers a
// confidence-tagged response.
package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"querycore/pkg/analyzer"
	"querycore/pkg/config"
	"querycore/pkg/errx"
	"querycore/pkg/feedback"
	"querycore/pkg/logx"
	"querycore/pkg/metrics"
	"querycore/pkg/plan"
	"querycore/pkg/resilience"
	"querycore/pkg/retrieval"
	"querycore/pkg/router"
)

// Path identifies the processing strategy a response went through.
type Path string

const (
	PathDirect        Path = "simple"
	PathRAG           Path = "confidence-rag"
	PathOrchestration Path = "agent-orchestration"
)

// Response is the final answer delivered to the caller.
type Response struct {
	Text       string
	Confidence float64 // 0..1
	Path       Path
	FeedbackID string
	Sources    []string // retrieval attribution, RAG path only
}

// Orchestrator wires the analyzer, router, executor, retrieval store and
// resilience wrapper into the three-path state machine.
type Orchestrator struct {
	analyzer *analyzer.Analyzer
	router   *router.Router
	executor *plan.Executor
	wrapper  *resilience.Wrapper
	store    retrieval.Store
	sink     feedback.Sink
	cal      config.Calibration
	recorder metrics.Recorder
	logger   *logx.Logger
}

// New builds an orchestrator. store and sink may be nil: the RAG path then
// degrades to a direct completion and feedback is discarded.
func New(
	queryAnalyzer *analyzer.Analyzer,
	agentRouter *router.Router,
	executor *plan.Executor,
	wrapper *resilience.Wrapper,
	store retrieval.Store,
	sink feedback.Sink,
	cal config.Calibration,
	recorder metrics.Recorder,
) *Orchestrator {
	if sink == nil {
		sink = feedback.NopSink{}
	}
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &Orchestrator{
		analyzer: queryAnalyzer,
		router:   agentRouter,
		executor: executor,
		wrapper:  wrapper,
		store:    store,
		sink:     sink,
		cal:      cal,
		recorder: recorder,
		logger:   logx.NewLogger("orchestrator"),
	}
}

// Process answers one query. The only error it returns is a validation
// error for an empty query, raised before analysis; every other failure
// degrades to a fallback response with reduced confidence.
func (o *Orchestrator) Process(ctx context.Context, query string) (Response, error) {
	if strings.TrimSpace(query) == "" {
		return Response{}, errx.New(errx.KindValidation, "query must not be empty")
	}

	start := time.Now()
	analysis := o.analyzer.Analyze(ctx, query)
	path := o.selectPath(analysis)
	o.logger.Debug("query routed to %s path (complexity=%d domains=%d)", path, analysis.Complexity, len(analysis.Domains))

	var resp Response
	switch path {
	case PathDirect:
		resp = o.processDirect(ctx, query)
	case PathRAG:
		resp = o.processRAG(ctx, query)
	default:
		resp = o.processOrchestration(ctx, query, analysis)
	}

	resp.FeedbackID = uuid.New().String()
	o.recorder.ObservePath(string(resp.Path), resp.Confidence, time.Since(start))
	o.sink.Record(resp.FeedbackID, feedback.Feedback{
		Query:      query,
		Path:       string(resp.Path),
		Confidence: resp.Confidence,
		CreatedAt:  time.Now(),
	})

	return resp, nil
}

// selectPath applies the calibration thresholds: low-complexity,
// single-domain queries with no external information need answer directly;
// medium complexity goes through retrieval; everything else gets the full
// multi-agent treatment.
func (o *Orchestrator) selectPath(a analyzer.Analysis) Path {
	multiDomain := len(a.Domains) >= o.cal.MultiDomainMin

	needsExternal := a.Resources.NeedsVectorSearch || a.Resources.NeedsNetwork
	if a.Complexity <= o.cal.DirectComplexityMax && !needsExternal && !multiDomain {
		return PathDirect
	}
	if a.Complexity <= o.cal.RAGComplexityMax && !multiDomain {
		return PathRAG
	}
	return PathOrchestration
}

// fallback builds the path-specific canned response used when a path fails
// internally. A response is always delivered, never an error.
func (o *Orchestrator) fallback(path Path, reason string) Response {
	o.logger.Warn("%s path failed: %s", path, reason)

	var text string
	switch path {
	case PathDirect:
		text = "I could not produce an answer for this query right now. Please try again."
	case PathRAG:
		text = "I could not gather enough supporting information to answer confidently. Please try rephrasing or try again later."
	default:
		text = "I could not complete the multi-step processing this request needs. Please simplify the request or try again."
	}

	return Response{
		Text:       text,
		Confidence: o.cal.FallbackConfidence,
		Path:       path,
	}
}
