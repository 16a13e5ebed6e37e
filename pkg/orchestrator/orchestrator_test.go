package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querycore/pkg/agent"
	"querycore/pkg/agent/pool"
	"querycore/pkg/analyzer"
	"querycore/pkg/config"
	"querycore/pkg/errx"
	"querycore/pkg/plan"
	"querycore/pkg/resilience"
	"querycore/pkg/retrieval"
	"querycore/pkg/router"
	"querycore/pkg/testkit"
)

type fixture struct {
	orch     *Orchestrator
	provider *testkit.MockProvider
	store    *testkit.MockStore
	sink     *testkit.MockSink
}

func newFixture(t *testing.T, responses ...string) *fixture {
	t.Helper()

	provider := testkit.NewMockProvider(responses...)
	cfg := config.Default()

	wrapper := resilience.New(&cfg.Resilience, provider, nil, nil)
	t.Cleanup(wrapper.Shutdown)

	registry := pool.NewRegistry()
	for _, at := range agent.AllTypes() {
		agentType := at
		registry.Register(agentType, func() (agent.Agent, error) {
			return &testkit.MockAgent{AgentType: agentType}, nil
		})
	}
	agentPool := pool.New(registry, cfg.Pool)
	t.Cleanup(agentPool.Shutdown)

	store := &testkit.MockStore{}
	sink := &testkit.MockSink{}
	executor := plan.NewExecutor(agentPool, store, cfg.Executor, nil)

	orch := New(
		analyzer.New(wrapper.Provider()),
		router.New(),
		executor,
		wrapper,
		store,
		sink,
		config.DefaultCalibration(),
		nil,
	)
	return &fixture{orch: orch, provider: provider, store: store, sink: sink}
}

// TestProcess_EmptyQueryRejectedBeforeAnalysis is the empty-input contract:
// a validation error, no response, no provider traffic.
func TestProcess_EmptyQueryRejectedBeforeAnalysis(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Process(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, errx.IsKind(err, errx.KindValidation))
	assert.Equal(t, 0, f.provider.Calls())
	assert.Empty(t, f.sink.Recorded())
}

// TestProcess_SimpleQueryTakesDirectPath sends a trivially simple question
// and expects the direct path at the calibrated direct confidence.
func TestProcess_SimpleQueryTakesDirectPath(t *testing.T) {
	f := newFixture(t, "4")

	resp, err := f.orch.Process(context.Background(), "What is 2+2?")
	require.NoError(t, err)

	assert.Equal(t, PathDirect, resp.Path)
	assert.Equal(t, "4", resp.Text)
	cal := config.DefaultCalibration()
	assert.Equal(t, cal.DirectConfidence, resp.Confidence)
	assert.GreaterOrEqual(t, resp.Confidence, cal.FallbackConfidence)
	assert.NotEmpty(t, resp.FeedbackID)
}

func TestProcess_RecordsFeedback(t *testing.T) {
	f := newFixture(t, "4")

	resp, err := f.orch.Process(context.Background(), "What is 2+2?")
	require.NoError(t, err)

	recorded := f.sink.Recorded()
	require.Len(t, recorded, 1)
	fb, ok := recorded[resp.FeedbackID]
	require.True(t, ok, "feedback is keyed by the delivered feedback id")
	assert.Equal(t, "What is 2+2?", fb.Query)
	assert.Equal(t, string(PathDirect), fb.Path)
	assert.Equal(t, resp.Confidence, fb.Confidence)
}

func TestProcess_FeedbackIDsAreUnique(t *testing.T) {
	f := newFixture(t, "4")
	ctx := context.Background()

	first, err := f.orch.Process(ctx, "What is 2+2?")
	require.NoError(t, err)
	second, err := f.orch.Process(ctx, "What is 2+2?")
	require.NoError(t, err)

	assert.NotEqual(t, first.FeedbackID, second.FeedbackID)
}

func TestSelectPath(t *testing.T) {
	f := newFixture(t)

	base := analyzer.Analysis{
		Intent:    analyzer.IntentQuestion,
		Domains:   []string{"general"},
		Resources: analyzer.ResourceRequirements{NeedsCompletion: true},
	}

	low := base
	low.Complexity = 2
	assert.Equal(t, PathDirect, f.orch.selectPath(low))

	medium := base
	medium.Complexity = 5
	assert.Equal(t, PathRAG, f.orch.selectPath(medium))

	high := base
	high.Complexity = 9
	assert.Equal(t, PathOrchestration, f.orch.selectPath(high))

	needy := base
	needy.Complexity = 2
	needy.Resources.NeedsVectorSearch = true
	assert.Equal(t, PathRAG, f.orch.selectPath(needy), "external info need disqualifies the direct path")

	multi := base
	multi.Complexity = 2
	multi.Domains = []string{"development", "data", "security"}
	assert.Equal(t, PathOrchestration, f.orch.selectPath(multi), "domain spread forces orchestration")
}

func TestProcessRAG_ConfidenceFromRelevanceAndValidation(t *testing.T) {
	f := newFixture(t, "Paris is the capital of France, confirmed by the provided context.")
	f.store.Results = []retrieval.Result{
		{Content: "Paris is the capital of France.", Source: "geo.txt", RelevanceScore: 0.9},
		{Content: "France is in Europe.", Source: "geo.txt", RelevanceScore: 0.7},
	}

	resp := f.orch.processRAG(context.Background(), "what is the capital of France")

	assert.Equal(t, PathRAG, resp.Path)
	assert.NotEmpty(t, resp.Sources)
	assert.Greater(t, resp.Confidence, 0.4, "strong retrieval and a substantive answer score well")

	prompts := f.provider.Prompts()
	require.NotEmpty(t, prompts)
	assert.Contains(t, prompts[0], "Paris is the capital of France.", "retrieved context flows into the prompt")
}

// deadlineStore records whether Search received a context with a deadline.
type deadlineStore struct {
	sawDeadline bool
}

func (s *deadlineStore) Search(ctx context.Context, _ string, _ int) ([]retrieval.Result, error) {
	_, s.sawDeadline = ctx.Deadline()
	return nil, nil
}

func TestProcessRAG_SearchRunsUnderDeadline(t *testing.T) {
	f := newFixture(t, "an answer")
	ds := &deadlineStore{}
	f.orch.store = ds

	resp := f.orch.processRAG(context.Background(), "what is the capital of France")

	assert.Equal(t, PathRAG, resp.Path)
	assert.True(t, ds.sawDeadline, "retrieval must run under an explicit deadline")
}

func TestProcessRAG_HedgedAnswerScoresLower(t *testing.T) {
	confident := newFixture(t, "The capital of France is Paris, as the context states.")
	confident.store.Results = []retrieval.Result{{Content: "c", RelevanceScore: 0.8}}
	hedged := newFixture(t, "I don't know, the context has no information about this capital question France.")
	hedged.store.Results = []retrieval.Result{{Content: "c", RelevanceScore: 0.8}}

	ctx := context.Background()
	strong := confident.orch.processRAG(ctx, "what is the capital of France")
	weak := hedged.orch.processRAG(ctx, "what is the capital of France")

	assert.Greater(t, strong.Confidence, weak.Confidence)
}

func TestProcessRAG_ProviderFailureFallsBack(t *testing.T) {
	f := newFixture(t)
	f.provider.Fail(errors.New("backend down"))

	resp := f.orch.processRAG(context.Background(), "anything")

	assert.Equal(t, PathRAG, resp.Path)
	assert.Equal(t, config.DefaultCalibration().FallbackConfidence, resp.Confidence)
	assert.NotEmpty(t, resp.Text, "fallback still delivers explanatory text")
}

func TestProcessOrchestration_RunsPlanAndConsolidates(t *testing.T) {
	planJSON := `[
		{"id": "s1", "description": "gather background", "agent_type": "research"},
		{"id": "s2", "description": "draft the report", "agent_type": "writer", "dependencies": ["s1"]}
	]`
	f := newFixture(t, planJSON, "the consolidated final answer")

	a := analyzer.Analysis{
		Intent:     analyzer.IntentWrite,
		Complexity: 9,
		Domains:    []string{"documentation", "data", "development"},
		Resources:  analyzer.ResourceRequirements{NeedsCompletion: true},
	}
	resp := f.orch.processOrchestration(context.Background(), "write a report on our data pipeline", a)

	assert.Equal(t, PathOrchestration, resp.Path)
	assert.Equal(t, "the consolidated final answer", resp.Text)
	assert.Greater(t, resp.Confidence, 0.5, "all steps succeeded")
}

func TestProcessOrchestration_ProviderFailureFallsBack(t *testing.T) {
	f := newFixture(t)
	f.provider.Fail(errors.New("backend down"))

	a := analyzer.Analysis{
		Intent:     analyzer.IntentWrite,
		Complexity: 9,
		Domains:    []string{"documentation", "data", "development"},
	}
	resp := f.orch.processOrchestration(context.Background(), "big request", a)

	assert.Equal(t, PathOrchestration, resp.Path)
	assert.NotEmpty(t, resp.Text)
}

func TestBuildPlan_UnusableOutputFallsBackToSingleStep(t *testing.T) {
	f := newFixture(t, "I cannot produce JSON today.")

	a := analyzer.Analysis{Intent: analyzer.IntentWrite, Complexity: 9, Domains: []string{"documentation"}}
	routing := router.New().Route(a)

	p, err := f.orch.buildPlan(context.Background(), "the query", a, routing)
	require.NoError(t, err)
	require.Len(t, p.Steps, 1)
	assert.Equal(t, routing.Primary(), p.Steps[0].AgentType)
	assert.Equal(t, "the query", p.Steps[0].Description)
}

func TestParsePlannedSteps(t *testing.T) {
	raw := "Here is the plan:\n```json\n[{\"id\":\"a\",\"description\":\"d\",\"agent_type\":\"code\"},{\"description\":\"e\",\"agent_type\":\"made-up\"}]\n```"

	steps, err := parsePlannedSteps(raw, agent.TypeGeneral)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, agent.TypeCode, steps[0].AgentType)
	assert.Equal(t, "step-2", steps[1].ID, "missing ids are filled in")
	assert.Equal(t, agent.TypeGeneral, steps[1].AgentType, "unknown agent types fall back to the primary")

	_, err = parsePlannedSteps("no json here", agent.TypeGeneral)
	assert.Error(t, err)
}

func TestValidateAnswer(t *testing.T) {
	assert.Equal(t, 0.0, validateAnswer("query", "   "))
	substantive := validateAnswer("capital France", "The capital of France is Paris, a city of about two million people.")
	hedged := validateAnswer("capital France", "I don't know.")
	assert.Greater(t, substantive, hedged)
}

func TestFallbackTextsArePathSpecific(t *testing.T) {
	f := newFixture(t)

	direct := f.orch.fallback(PathDirect, "x")
	rag := f.orch.fallback(PathRAG, "x")
	orchestration := f.orch.fallback(PathOrchestration, "x")

	assert.NotEqual(t, direct.Text, rag.Text)
	assert.NotEqual(t, rag.Text, orchestration.Text)
	for _, r := range []Response{direct, rag, orchestration} {
		assert.Equal(t, config.DefaultCalibration().FallbackConfidence, r.Confidence)
		assert.NotEmpty(t, r.Text)
	}
}
