package plan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"querycore/pkg/agent"
	"querycore/pkg/agent/pool"
	"querycore/pkg/config"
	"querycore/pkg/errx"
	"querycore/pkg/logx"
	"querycore/pkg/metrics"
	"querycore/pkg/retrieval"
)

// depsUnsatisfied is the error text on steps whose dependencies never all
// completed, whether missing from the plan or failed upstream.
const depsUnsatisfied = "dependencies not satisfied"

// Executor runs plans in dependency order against pooled agents, gathering
// best-effort retrieval context per step.
type Executor struct {
	pool     *pool.Pool
	store    retrieval.Store
	cfg      config.ExecutorConfig
	recorder metrics.Recorder
	logger   *logx.Logger
}

// NewExecutor builds an executor. store may be nil, in which case steps run
// without retrieval context.
func NewExecutor(agentPool *pool.Pool, store retrieval.Store, cfg config.ExecutorConfig, recorder metrics.Recorder) *Executor {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &Executor{
		pool:     agentPool,
		store:    store,
		cfg:      cfg,
		recorder: recorder,
		logger:   logx.NewLogger("plan-executor"),
	}
}

// RetrievalTimeout exposes the configured retrieval deadline so callers that
// query the store outside a plan can bound their searches the same way.
func (e *Executor) RetrievalTimeout() time.Duration {
	return e.cfg.RetrievalTimeout()
}

// Execute runs the plan and aggregates step outcomes. Step-level failures
// land inside the result; only a nil-plan misuse is an error.
func (e *Executor) Execute(ctx context.Context, p Plan) ExecutionResult {
	return e.ExecuteWithProgress(ctx, p, nil)
}

// ExecuteWithProgress is Execute with a progress side channel. progress may
// be nil.
func (e *Executor) ExecuteWithProgress(ctx context.Context, p Plan, progress ProgressFunc) ExecutionResult {
	if len(p.Steps) == 0 {
		return ExecutionResult{Success: true, Summary: "empty plan, nothing to execute"}
	}

	ordered, cycle := topoOrder(p.Steps)
	if cycle {
		// Degrade instead of failing: run in submission order and flag the
		// anomaly. Dependency checks below still gate each step.
		e.logger.Warn("plan %s contains a dependency cycle, executing in submission order", p.ID)
		ordered = p.Steps
	}

	result := ExecutionResult{CycleDetected: cycle}
	completed := make(map[string]bool, len(p.Steps))
	total := len(p.Steps)

	for _, step := range ordered {
		if !depsSatisfied(step, completed) {
			e.logger.Debug("step %s skipped: %s", step.ID, depsUnsatisfied)
			result.Results = append(result.Results, StepResult{StepID: step.ID, Error: depsUnsatisfied})
			result.FailedSteps++
			e.noteFailure(&result, step.ID, depsUnsatisfied)
			e.report(progress, &result, total, step)
			if e.shouldAbort(&result, total, nil) {
				result.Aborted = true
				e.logger.Warn("plan %s aborted after step %s", p.ID, step.ID)
				break
			}
			continue
		}

		stepResult := e.executeStep(ctx, step)
		result.Results = append(result.Results, stepResult)
		e.recorder.ObservePlanStep(string(step.AgentType), stepResult.Success, stepResult.Duration)

		if stepResult.Success {
			completed[step.ID] = true
			result.CompletedSteps++
		} else {
			result.FailedSteps++
			e.noteFailure(&result, step.ID, stepResult.Error)
		}

		e.report(progress, &result, total, step)

		if e.shouldAbort(&result, total, &stepResult) {
			result.Aborted = true
			e.logger.Warn("plan %s aborted after step %s", p.ID, step.ID)
			break
		}
	}

	result.Success = result.CompletedSteps == total
	result.Summary = summarize(result)
	return result
}

// executeStep leases an agent, gathers retrieval context, and dispatches to
// the tool or general execution path under per-operation timeouts.
func (e *Executor) executeStep(ctx context.Context, step Step) StepResult {
	start := time.Now()

	lease, err := e.pool.Get(ctx, step.AgentType)
	if err != nil {
		return StepResult{StepID: step.ID, Error: err.Error(), Duration: time.Since(start)}
	}
	defer e.pool.Release(lease)

	retrievalContext := e.gatherContext(ctx, step)

	var res agent.Result
	if step.RequiresTool {
		res = e.executeTool(ctx, lease.Agent, step)
	} else {
		res = e.executeTask(ctx, lease.Agent, step, retrievalContext)
	}

	return StepResult{
		StepID:   step.ID,
		Success:  res.Success,
		Output:   res.Output,
		Data:     stepData(res),
		Error:    res.Error,
		Duration: time.Since(start),
	}
}

// gatherContext runs the step's retrieval query under a hard timeout.
// Retrieval is best-effort: timeouts and errors yield empty context.
func (e *Executor) gatherContext(ctx context.Context, step Step) string {
	if e.store == nil {
		return ""
	}
	query := step.RAGQuery
	if query == "" {
		query = step.Description
	}

	retrievalCtx, cancel := context.WithTimeout(ctx, e.cfg.RetrievalTimeout())
	defer cancel()

	results, err := e.store.Search(retrievalCtx, query, e.cfg.RetrievalTopK)
	if err != nil {
		e.logger.Debug("retrieval for step %s failed: %v", step.ID, err)
		return ""
	}

	var sb strings.Builder
	for _, r := range results {
		if sb.Len() > 0 {
			sb.WriteString("\n---\n")
		}
		sb.WriteString(r.Content)
	}
	return sb.String()
}

func (e *Executor) executeTool(ctx context.Context, ag agent.Agent, step Step) agent.Result {
	if ag.GetTool(step.ToolName) == nil {
		err := errx.Newf(errx.KindToolNotFound, "tool %q not available on %s agent", step.ToolName, step.AgentType)
		return agent.Result{Error: err.Error()}
	}

	toolCtx, cancel := context.WithTimeout(ctx, e.cfg.ToolTimeout())
	defer cancel()

	params := make(map[string]any, len(step.Parameters))
	for k, v := range step.Parameters {
		params[k] = v
	}
	return ag.ExecuteWithTool(toolCtx, agent.ToolInvocation{Name: step.ToolName, Parameters: params})
}

func (e *Executor) executeTask(ctx context.Context, ag agent.Agent, step Step, retrievalContext string) agent.Result {
	agentCtx, cancel := context.WithTimeout(ctx, e.cfg.AgentTimeout())
	defer cancel()

	return ag.Execute(agentCtx, agent.Task{
		Description: step.Description,
		Context:     retrievalContext,
		Parameters:  step.Parameters,
	})
}

// shouldAbort applies the continuation policy: stop once the failure ratio
// exceeds the configured limit, or immediately on a critical failure.
func (e *Executor) shouldAbort(result *ExecutionResult, total int, last *StepResult) bool {
	if e.cfg.AbortOnCritical && last != nil && !last.Success && isCritical(*last) {
		return true
	}
	return float64(result.FailedSteps)/float64(total) > e.cfg.FailureRatioLimit
}

func isCritical(res StepResult) bool {
	if res.Data == nil {
		return false
	}
	critical, _ := res.Data["critical"].(bool)
	return critical
}

func (e *Executor) noteFailure(result *ExecutionResult, stepID, errText string) {
	if result.Error == "" {
		result.Error = fmt.Sprintf("step %s: %s", stepID, errText)
	}
}

func (e *Executor) report(progress ProgressFunc, result *ExecutionResult, total int, step Step) {
	if progress != nil {
		progress(result.CompletedSteps+result.FailedSteps, total, step)
	}
}

func stepData(res agent.Result) map[string]any {
	if !res.Critical {
		return res.Data
	}
	data := make(map[string]any, len(res.Data)+1)
	for k, v := range res.Data {
		data[k] = v
	}
	data["critical"] = true
	return data
}

// summarize renders the textual summary callers display: successful outputs
// concatenated, failed steps listed with their error text.
func summarize(result ExecutionResult) string {
	var sb strings.Builder

	for _, r := range result.Results {
		if r.Success && strings.TrimSpace(r.Output) != "" {
			if sb.Len() > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString(r.Output)
		}
	}

	var failed []string
	for _, r := range result.Results {
		if !r.Success {
			failed = append(failed, fmt.Sprintf("- %s: %s", r.StepID, r.Error))
		}
	}
	if len(failed) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("Failed steps:\n")
		sb.WriteString(strings.Join(failed, "\n"))
	}

	if sb.Len() == 0 {
		return "no step produced output"
	}
	return sb.String()
}

// depsSatisfied reports whether every declared dependency has completed
// successfully. Dependencies on ids outside the plan can never be
// satisfied.
func depsSatisfied(step Step, completed map[string]bool) bool {
	for _, dep := range step.Dependencies {
		if !completed[dep] {
			return false
		}
	}
	return true
}

// topoOrder runs Kahn's algorithm over step dependencies. The second return
// is true when a cycle prevents a complete ordering. Dependencies on ids
// outside the plan contribute no edges; the per-step dependency check
// handles them at execution time.
func topoOrder(steps []Step) ([]Step, bool) {
	byID := make(map[string]Step, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
	}

	inDegree := make(map[string]int, len(steps))
	dependents := make(map[string][]string, len(steps))
	for _, s := range steps {
		inDegree[s.ID] = 0
	}
	for _, s := range steps {
		for _, dep := range s.Dependencies {
			if _, ok := byID[dep]; !ok {
				continue
			}
			inDegree[s.ID]++
			dependents[dep] = append(dependents[dep], s.ID)
		}
	}

	// Seed the queue in submission order so independent steps keep a
	// stable, predictable ordering.
	var queue []string
	for _, s := range steps {
		if inDegree[s.ID] == 0 {
			queue = append(queue, s.ID)
		}
	}

	ordered := make([]Step, 0, len(steps))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		ordered = append(ordered, byID[id])

		for _, next := range dependents[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(ordered) != len(steps) {
		return nil, true
	}
	return ordered, false
}
