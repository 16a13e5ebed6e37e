// Package testkit provides scriptable fakes for the collaborator
// interfaces: completion provider, retrieval store, agents and feedback
// sink. Tests drive them instead of live backends.
package testkit

import (
	"context"
	"fmt"
	"sync"

	"querycore/pkg/agent"
	"querycore/pkg/feedback"
	"querycore/pkg/llm"
	"querycore/pkg/retrieval"
)

// MockProvider is a scriptable completion provider. Responses are served
// in order and the last one repeats; Fail forces every call to error.
type MockProvider struct {
	mu        sync.Mutex
	responses []string
	next      int
	failErr   error
	calls     int
	prompts   []string
	embedDim  int
}

// NewMockProvider scripts the given responses. With none scripted, calls
// return "ok".
func NewMockProvider(responses ...string) *MockProvider {
	return &MockProvider{responses: responses, embedDim: 8}
}

// Fail makes subsequent calls return err; Fail(nil) restores success.
func (m *MockProvider) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

// Calls reports how many Complete calls the provider has served.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Prompts returns the user-message content of every Complete call.
func (m *MockProvider) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}

func (m *MockProvider) Complete(_ context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	for _, msg := range req.Messages {
		if msg.Role == llm.RoleUser {
			m.prompts = append(m.prompts, msg.Content)
		}
	}

	if m.failErr != nil {
		return llm.CompletionResponse{}, m.failErr
	}

	content := "ok"
	if len(m.responses) > 0 {
		content = m.responses[m.next]
		if m.next < len(m.responses)-1 {
			m.next++
		}
	}
	return llm.CompletionResponse{Content: content}, nil
}

func (m *MockProvider) Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	resp, err := m.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	ch := make(chan llm.StreamChunk, 2)
	ch <- llm.StreamChunk{Content: resp.Content}
	ch <- llm.StreamChunk{Done: true}
	close(ch)
	return ch, nil
}

// Embed returns a deterministic vector derived from the text so cosine
// similarity behaves consistently across calls.
func (m *MockProvider) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	failErr := m.failErr
	dim := m.embedDim
	m.mu.Unlock()

	if failErr != nil {
		return nil, failErr
	}

	vec := make([]float32, dim)
	for i, r := range text {
		vec[i%dim] += float32(r % 13)
	}
	return vec, nil
}

func (m *MockProvider) ModelName() string { return "mock-model" }

// MockStore serves fixed retrieval results.
type MockStore struct {
	Results []retrieval.Result
	Err     error

	mu      sync.Mutex
	queries []string
}

func (s *MockStore) Search(_ context.Context, query string, topK int) ([]retrieval.Result, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Results) > topK {
		return s.Results[:topK], nil
	}
	return s.Results, nil
}

// Queries returns every search query the store has seen.
func (s *MockStore) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.queries))
	copy(out, s.queries)
	return out
}

// MockAgent executes via a scriptable function. The zero value succeeds
// with a canned output.
type MockAgent struct {
	AgentType agent.Type
	ExecFn    func(ctx context.Context, task agent.Task) agent.Result
	Tools     map[string]agent.Tool

	mu    sync.Mutex
	tasks []agent.Task
}

func (a *MockAgent) Type() agent.Type {
	if a.AgentType == "" {
		return agent.TypeGeneral
	}
	return a.AgentType
}

func (a *MockAgent) Execute(ctx context.Context, task agent.Task) agent.Result {
	a.mu.Lock()
	a.tasks = append(a.tasks, task)
	a.mu.Unlock()

	if a.ExecFn != nil {
		return a.ExecFn(ctx, task)
	}
	return agent.Result{Success: true, Output: "done: " + task.Description}
}

func (a *MockAgent) ExecuteWithTool(ctx context.Context, inv agent.ToolInvocation) agent.Result {
	tool := a.GetTool(inv.Name)
	if tool == nil {
		return agent.Result{Error: fmt.Sprintf("tool %q not found", inv.Name)}
	}
	out, err := tool.Invoke(ctx, inv.Parameters)
	if err != nil {
		return agent.Result{Error: err.Error()}
	}
	return agent.Result{Success: true, Output: out}
}

func (a *MockAgent) GetTool(name string) agent.Tool {
	return a.Tools[name]
}

// Tasks returns every task the agent has executed.
func (a *MockAgent) Tasks() []agent.Task {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]agent.Task, len(a.tasks))
	copy(out, a.tasks)
	return out
}

// MockSink captures recorded feedback in memory.
type MockSink struct {
	mu      sync.Mutex
	records map[string]feedback.Feedback
}

func (s *MockSink) Record(feedbackID string, fb feedback.Feedback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records == nil {
		s.records = make(map[string]feedback.Feedback)
	}
	s.records[feedbackID] = fb
}

// Recorded returns a copy of everything recorded so far.
func (s *MockSink) Recorded() map[string]feedback.Feedback {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]feedback.Feedback, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	return out
}
