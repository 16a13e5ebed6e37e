package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"querycore/pkg/llm"
	"querycore/pkg/logx"
)

// systemPrompts frames the completion per agent specialty.
//
//nolint:gochecknoglobals // Static prompt table
var systemPrompts = map[Type]string{
	TypeGeneral:      "You are a capable general-purpose assistant. Answer the task directly and concisely.",
	TypeResearch:     "You are a research assistant. Gather and synthesize relevant information, cite the context you were given, and flag anything you could not verify.",
	TypeCode:         "You are a software engineering assistant. Produce correct, idiomatic code and precise technical explanations. Prefer small, reviewable changes.",
	TypeDataAnalysis: "You are a data analysis assistant. Reason carefully over the data described in the task, show intermediate results, and state assumptions.",
	TypeWriter:       "You are a writing assistant. Produce clear, well-structured prose matched to the requested audience and tone.",
	TypeToolExecutor: "You are a tool execution assistant. Interpret tool outputs faithfully and report results without embellishment.",
}

// ProviderAgent is the default Agent implementation: a specialty system
// prompt over a shared completion provider, plus access to a tool registry.
type ProviderAgent struct {
	agentType Type
	provider  llm.Provider
	tools     *ToolRegistry
	logger    *logx.Logger
}

// NewProviderAgent builds an agent of the given type over a provider. The
// tool registry may be nil for agents that never invoke tools.
func NewProviderAgent(agentType Type, provider llm.Provider, tools *ToolRegistry) *ProviderAgent {
	return &ProviderAgent{
		agentType: agentType,
		provider:  provider,
		tools:     tools,
		logger:    logx.NewLogger("agent-" + string(agentType)),
	}
}

func (a *ProviderAgent) Type() Type {
	return a.agentType
}

// Execute runs the task as a single completion framed by the agent's
// specialty prompt. Failures are reported in the Result, never panicked.
func (a *ProviderAgent) Execute(ctx context.Context, task Task) Result {
	start := time.Now()

	var sb strings.Builder
	if task.Context != "" {
		sb.WriteString("Relevant context:\n")
		sb.WriteString(task.Context)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Task: ")
	sb.WriteString(task.Description)
	for key, val := range task.Parameters {
		fmt.Fprintf(&sb, "\n%s: %s", key, val)
	}

	req := llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage(systemPrompts[a.agentType]),
		llm.NewUserMessage(sb.String()),
	})

	resp, err := a.provider.Complete(ctx, req)
	if err != nil {
		a.logger.Warn("task failed: %v", err)
		return Result{Error: err.Error(), Duration: time.Since(start)}
	}

	return Result{
		Success:  true,
		Output:   resp.Content,
		Duration: time.Since(start),
	}
}

// ExecuteWithTool resolves and invokes a named tool from the registry.
func (a *ProviderAgent) ExecuteWithTool(ctx context.Context, inv ToolInvocation) Result {
	start := time.Now()

	tool := a.GetTool(inv.Name)
	if tool == nil {
		return Result{
			Error:    fmt.Sprintf("tool %q not found", inv.Name),
			Duration: time.Since(start),
		}
	}

	out, err := tool.Invoke(ctx, inv.Parameters)
	if err != nil {
		a.logger.Warn("tool %s failed: %v", inv.Name, err)
		return Result{Error: err.Error(), Duration: time.Since(start)}
	}

	return Result{
		Success:  true,
		Output:   out,
		Data:     map[string]any{"tool": inv.Name},
		Duration: time.Since(start),
	}
}

func (a *ProviderAgent) GetTool(name string) Tool {
	if a.tools == nil {
		return nil
	}
	return a.tools.Get(name)
}
