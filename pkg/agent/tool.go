package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Tool is a named capability an agent can invoke with structured parameters.
type Tool interface {
	// Name returns the tool's unique identifier.
	Name() string

	// Description explains what the tool does, for plan construction prompts.
	Description() string

	// Invoke runs the tool. Parameter validation failures and execution
	// failures are both returned as errors.
	Invoke(ctx context.Context, params map[string]any) (string, error)
}

// ToolRegistry holds the tools available to agents. Registration is open so
// deployments can add their own tools next to the built-ins.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewToolRegistry returns an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any previous tool with the same name.
func (r *ToolRegistry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns the named tool, or nil when it is not registered.
func (r *ToolRegistry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns the registered tool names, sorted.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FuncTool adapts a plain function into a Tool.
type FuncTool struct {
	ToolName string
	Desc     string
	Fn       func(ctx context.Context, params map[string]any) (string, error)
}

func (t *FuncTool) Name() string        { return t.ToolName }
func (t *FuncTool) Description() string { return t.Desc }

func (t *FuncTool) Invoke(ctx context.Context, params map[string]any) (string, error) {
	return t.Fn(ctx, params)
}

// CurrentTimeTool reports the current time, optionally in a named location.
func CurrentTimeTool() Tool {
	return &FuncTool{
		ToolName: "current_time",
		Desc:     "Returns the current time in RFC 3339 format. Optional parameter: location (IANA timezone name).",
		Fn: func(_ context.Context, params map[string]any) (string, error) {
			now := time.Now()
			if loc, ok := params["location"].(string); ok && loc != "" {
				tz, err := time.LoadLocation(loc)
				if err != nil {
					return "", fmt.Errorf("unknown location %q: %w", loc, err)
				}
				now = now.In(tz)
			}
			return now.Format(time.RFC3339), nil
		},
	}
}

// StringParam extracts a required string parameter, erroring when absent or
// of the wrong type. Tools use it for uniform validation messages.
func StringParam(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing required parameter %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %q must be a string, got %T", key, v)
	}
	return s, nil
}
