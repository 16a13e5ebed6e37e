// Package agent defines the closed set of worker agent types, their
// capability tables, and the provider-backed default implementations.
package agent

import (
	"context"
	"time"
)

// Type identifies an agent variant. The set is closed: routing and pooling
// work over these tags, while open registration happens through the pool's
// factory registry.
type Type string

// Agent types, ordered least to most specific for routing purposes.
const (
	TypeGeneral      Type = "general"
	TypeResearch     Type = "research"
	TypeCode         Type = "code"
	TypeDataAnalysis Type = "data-analysis"
	TypeWriter       Type = "writer"
	TypeToolExecutor Type = "tool-executor"
)

// AllTypes returns every known agent type.
func AllTypes() []Type {
	return []Type{TypeGeneral, TypeResearch, TypeCode, TypeDataAnalysis, TypeWriter, TypeToolExecutor}
}

// Valid reports whether t is a known agent type.
func (t Type) Valid() bool {
	switch t {
	case TypeGeneral, TypeResearch, TypeCode, TypeDataAnalysis, TypeWriter, TypeToolExecutor:
		return true
	default:
		return false
	}
}

// Capability names an ability an agent type provides or a task requires.
type Capability string

// Capabilities.
const (
	CapabilityCompletion     Capability = "completion"
	CapabilityInternetAccess Capability = "internet-access"
	CapabilityStorageAccess  Capability = "storage-access"
	CapabilityVectorSearch   Capability = "vector-search"
	CapabilityCodeAnalysis   Capability = "code-analysis"
	CapabilityDataProcessing Capability = "data-processing"
	CapabilityToolInvocation Capability = "tool-invocation"
	CapabilityLongFormText   Capability = "long-form-text"
)

// baseCapabilities is the per-type capability table.
//
//nolint:gochecknoglobals // Static capability table
var baseCapabilities = map[Type][]Capability{
	TypeGeneral:      {CapabilityCompletion},
	TypeResearch:     {CapabilityCompletion, CapabilityInternetAccess, CapabilityVectorSearch},
	TypeCode:         {CapabilityCompletion, CapabilityCodeAnalysis},
	TypeDataAnalysis: {CapabilityCompletion, CapabilityDataProcessing},
	TypeWriter:       {CapabilityCompletion, CapabilityLongFormText},
	TypeToolExecutor: {CapabilityCompletion, CapabilityToolInvocation},
}

// BaseCapabilities returns the capability set an agent type provides.
func BaseCapabilities(t Type) []Capability {
	caps := baseCapabilities[t]
	out := make([]Capability, len(caps))
	copy(out, caps)
	return out
}

// Task is one unit of work handed to an agent.
type Task struct {
	Description string
	Context     string // retrieval context gathered by the executor, may be empty
	Parameters  map[string]string
}

// ToolInvocation names a tool and its parameters for ExecuteWithTool.
type ToolInvocation struct {
	Name       string
	Parameters map[string]any
}

// Result is the outcome of one agent execution. Exactly one of Output/Data
// or Error is populated.
type Result struct {
	Success  bool
	Output   string
	Data     map[string]any
	Error    string
	Critical bool // a critical failure halts the whole plan
	Duration time.Duration
}

// Agent is a polymorphic worker capable of executing a task, optionally via
// a named tool.
type Agent interface {
	// Type returns the agent's variant tag.
	Type() Type

	// Execute runs a task and reports its outcome. Implementations honor ctx
	// deadlines; a timed-out execution is a failed Result, not a panic.
	Execute(ctx context.Context, task Task) Result

	// ExecuteWithTool resolves and invokes a named tool.
	ExecuteWithTool(ctx context.Context, inv ToolInvocation) Result

	// GetTool returns the named tool handle, or nil when unresolvable.
	GetTool(name string) Tool
}
