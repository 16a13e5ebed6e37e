package plan

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querycore/pkg/agent"
	"querycore/pkg/agent/pool"
	"querycore/pkg/config"
	"querycore/pkg/retrieval"
	"querycore/pkg/testkit"
)

func testExecutorConfig() config.ExecutorConfig {
	return config.ExecutorConfig{
		RetrievalTimeoutSec: 1,
		ToolTimeoutSec:      5,
		AgentTimeoutSec:     5,
		FailureRatioLimit:   0.5,
		AbortOnCritical:     true,
		RetrievalTopK:       3,
	}
}

// newTestExecutor builds an executor whose general agents run execFn and
// records execution order into the returned slice.
func newTestExecutor(t *testing.T, execFn func(ctx context.Context, task agent.Task) agent.Result) (*Executor, *[]string) {
	t.Helper()

	var mu sync.Mutex
	order := &[]string{}
	wrapped := func(ctx context.Context, task agent.Task) agent.Result {
		mu.Lock()
		*order = append(*order, task.Description)
		mu.Unlock()
		if execFn != nil {
			return execFn(ctx, task)
		}
		return agent.Result{Success: true, Output: "done: " + task.Description}
	}

	registry := pool.NewRegistry()
	for _, at := range agent.AllTypes() {
		agentType := at
		registry.Register(agentType, func() (agent.Agent, error) {
			return &testkit.MockAgent{AgentType: agentType, ExecFn: wrapped}, nil
		})
	}

	p := pool.New(registry, config.PoolConfig{MaxPerType: 2, IdleTimeoutSec: 300, AcquireWaitSec: 1})
	t.Cleanup(p.Shutdown)

	return NewExecutor(p, nil, testExecutorConfig(), nil), order
}

func step(id string, deps ...string) Step {
	return Step{ID: id, Description: id, AgentType: agent.TypeGeneral, Dependencies: deps}
}

// TestExecute_TopologicalOrder verifies every step runs after all of its
// dependencies on a diamond-shaped plan.
func TestExecute_TopologicalOrder(t *testing.T) {
	e, order := newTestExecutor(t, nil)

	p := New([]Step{
		step("d", "b", "c"),
		step("b", "a"),
		step("c", "a"),
		step("a"),
	})

	result := e.Execute(context.Background(), p)
	require.True(t, result.Success)
	require.Equal(t, 4, result.CompletedSteps)

	position := make(map[string]int, len(*order))
	for i, id := range *order {
		position[id] = i
	}
	for _, s := range p.Steps {
		for _, dep := range s.Dependencies {
			assert.Less(t, position[dep], position[s.ID], "step %s ran before its dependency %s", s.ID, dep)
		}
	}
}

// TestExecute_MissingDependencyFailsStep is the A/B/C shape: A free, B
// depends on A, C depends on a step that does not exist.
func TestExecute_MissingDependencyFailsStep(t *testing.T) {
	e, _ := newTestExecutor(t, nil)

	p := New([]Step{
		step("A"),
		step("B", "A"),
		step("C", "Z"),
	})

	result := e.Execute(context.Background(), p)

	assert.False(t, result.Success)
	assert.Equal(t, 2, result.CompletedSteps)
	assert.Equal(t, 1, result.FailedSteps)

	var cResult *StepResult
	for i := range result.Results {
		if result.Results[i].StepID == "C" {
			cResult = &result.Results[i]
		}
	}
	require.NotNil(t, cResult)
	assert.False(t, cResult.Success)
	assert.Equal(t, "dependencies not satisfied", cResult.Error)
	assert.Contains(t, result.Summary, "dependencies not satisfied")
}

// TestExecute_CycleTerminates verifies a cyclic plan still terminates and
// returns a result instead of looping or crashing.
func TestExecute_CycleTerminates(t *testing.T) {
	e, _ := newTestExecutor(t, nil)

	p := New([]Step{
		step("a", "b"),
		step("b", "a"),
	})

	result := e.Execute(context.Background(), p)

	assert.True(t, result.CycleDetected)
	assert.False(t, result.Success)
	// In submission order neither step's dependency can complete.
	assert.Equal(t, 0, result.CompletedSteps)
	assert.Equal(t, 2, result.FailedSteps)
}

func TestExecute_StopsOnceFailureRatioExceeded(t *testing.T) {
	failing := map[string]bool{"s1": true, "s2": true, "s3": true}
	e, order := newTestExecutor(t, func(_ context.Context, task agent.Task) agent.Result {
		if failing[task.Description] {
			return agent.Result{Error: "induced failure"}
		}
		return agent.Result{Success: true, Output: "ok"}
	})

	p := New([]Step{step("s1"), step("s2"), step("s3"), step("s4")})
	result := e.Execute(context.Background(), p)

	assert.True(t, result.Aborted)
	assert.Equal(t, 3, result.FailedSteps)
	assert.NotContains(t, *order, "s4", "no step may run after the ratio is exceeded")
	assert.Len(t, result.Results, 3, "unstarted steps get no result entries")
}

// TestExecute_DependencySkipCanAbort verifies a policy stop triggered by a
// skipped step is reported as an abort, same as one from an executed step.
func TestExecute_DependencySkipCanAbort(t *testing.T) {
	e, order := newTestExecutor(t, nil)
	e.cfg.FailureRatioLimit = 0.2

	p := New([]Step{step("s1", "missing"), step("s2"), step("s3"), step("s4")})
	result := e.Execute(context.Background(), p)

	assert.True(t, result.Aborted)
	assert.Equal(t, 1, result.FailedSteps)
	assert.Empty(t, *order, "no step may run after the ratio is exceeded")
	assert.Len(t, result.Results, 1)
}

func TestExecute_CriticalFailureAbortsImmediately(t *testing.T) {
	e, order := newTestExecutor(t, func(_ context.Context, task agent.Task) agent.Result {
		if task.Description == "s1" {
			return agent.Result{Error: "corrupted state", Critical: true}
		}
		return agent.Result{Success: true}
	})

	p := New([]Step{step("s1"), step("s2"), step("s3"), step("s4")})
	result := e.Execute(context.Background(), p)

	assert.True(t, result.Aborted)
	assert.Equal(t, 1, result.FailedSteps)
	assert.Len(t, *order, 1, "one failure out of four is under the ratio, only the critical class aborts here")
}

func TestExecute_ToolDispatch(t *testing.T) {
	tools := map[string]agent.Tool{"current_time": agent.CurrentTimeTool()}

	registry := pool.NewRegistry()
	registry.Register(agent.TypeToolExecutor, func() (agent.Agent, error) {
		return &testkit.MockAgent{AgentType: agent.TypeToolExecutor, Tools: tools}, nil
	})
	p := pool.New(registry, config.PoolConfig{MaxPerType: 1, IdleTimeoutSec: 300, AcquireWaitSec: 1})
	t.Cleanup(p.Shutdown)
	e := NewExecutor(p, nil, testExecutorConfig(), nil)

	pl := New([]Step{
		{ID: "t1", Description: "what time is it", AgentType: agent.TypeToolExecutor, RequiresTool: true, ToolName: "current_time"},
		{ID: "t2", Description: "use a missing tool", AgentType: agent.TypeToolExecutor, RequiresTool: true, ToolName: "nope"},
	})

	result := e.Execute(context.Background(), pl)

	require.Len(t, result.Results, 2)
	assert.True(t, result.Results[0].Success)
	assert.NotEmpty(t, result.Results[0].Output)
	assert.False(t, result.Results[1].Success)
	assert.Contains(t, result.Results[1].Error, "nope")
}

func TestExecute_RetrievalContextFlowsIntoTasks(t *testing.T) {
	var captured string
	e, _ := newTestExecutor(t, func(_ context.Context, task agent.Task) agent.Result {
		captured = task.Context
		return agent.Result{Success: true}
	})
	store := &testkit.MockStore{Results: []retrieval.Result{
		{Content: "fragment one", RelevanceScore: 0.9},
		{Content: "fragment two", RelevanceScore: 0.8},
	}}
	e.store = store

	pl := New([]Step{{ID: "r", Description: "needs context", AgentType: agent.TypeGeneral, RAGQuery: "lookup this"}})
	result := e.Execute(context.Background(), pl)

	require.True(t, result.Success)
	assert.Contains(t, captured, "fragment one")
	assert.Contains(t, captured, "fragment two")
	assert.Equal(t, []string{"lookup this"}, store.Queries())
}

func TestExecute_RetrievalFailureIsBestEffort(t *testing.T) {
	var captured string
	e, _ := newTestExecutor(t, func(_ context.Context, task agent.Task) agent.Result {
		captured = task.Context
		return agent.Result{Success: true}
	})
	e.store = &testkit.MockStore{Err: errors.New("store offline")}

	pl := New([]Step{{ID: "r", Description: "needs context", AgentType: agent.TypeGeneral}})
	result := e.Execute(context.Background(), pl)

	require.True(t, result.Success, "retrieval failure must not fail the step")
	assert.Empty(t, captured)
}

func TestExecute_EmptyPlan(t *testing.T) {
	e, _ := newTestExecutor(t, nil)
	result := e.Execute(context.Background(), New(nil))
	assert.True(t, result.Success)
	assert.Empty(t, result.Results)
}

func TestExecute_ProgressCallback(t *testing.T) {
	e, _ := newTestExecutor(t, nil)
	p := New([]Step{step("a"), step("b", "a")})

	var calls []int
	result := e.ExecuteWithProgress(context.Background(), p, func(completed, total int, _ Step) {
		assert.Equal(t, 2, total)
		calls = append(calls, completed)
	})

	require.True(t, result.Success)
	assert.Equal(t, []int{1, 2}, calls)
}

func TestExecute_UnknownAgentTypeFailsStep(t *testing.T) {
	registry := pool.NewRegistry()
	registry.Register(agent.TypeGeneral, func() (agent.Agent, error) {
		return &testkit.MockAgent{}, nil
	})
	p := pool.New(registry, config.PoolConfig{MaxPerType: 1, IdleTimeoutSec: 300, AcquireWaitSec: 1})
	t.Cleanup(p.Shutdown)
	e := NewExecutor(p, nil, testExecutorConfig(), nil)

	pl := New([]Step{{ID: "x", Description: "x", AgentType: agent.TypeCode}})
	result := e.Execute(context.Background(), pl)

	require.Len(t, result.Results, 1)
	assert.False(t, result.Results[0].Success)
	assert.Contains(t, result.Results[0].Error, "no factory registered")
}

func TestValidate(t *testing.T) {
	assert.NoError(t, New([]Step{step("a"), step("b", "a")}).Validate())
	assert.Error(t, New([]Step{step("a"), step("a")}).Validate(), "duplicate id")
	assert.Error(t, New([]Step{{ID: "t", AgentType: agent.TypeGeneral, RequiresTool: true}}).Validate(), "tool required but unnamed")
	assert.Error(t, New([]Step{{AgentType: agent.TypeGeneral}}).Validate(), "empty id")
}
