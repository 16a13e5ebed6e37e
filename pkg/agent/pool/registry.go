// Package pool provides the agent factory registry and the bounded,
// type-keyed agent pool the plan executor draws workers from.
package pool

import (
	"fmt"
	"sort"
	"sync"

	"querycore/pkg/agent"
	"querycore/pkg/errx"
)

// Factory constructs a fresh agent instance of one type.
type Factory func() (agent.Agent, error)

// Registry maps agent types to factories. Registration is open: deployments
// can override the built-in types or add their own.
type Registry struct {
	mu        sync.RWMutex
	factories map[agent.Type]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[agent.Type]Factory)}
}

// Register installs a factory for a type, replacing any previous one.
func (r *Registry) Register(t agent.Type, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[t] = f
}

// Types returns the registered agent types, sorted.
func (r *Registry) Types() []agent.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]agent.Type, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// create builds a new instance, distinguishing an unknown type from a
// factory failure: the former names a caller bug, the latter an
// environment problem.
func (r *Registry) create(t agent.Type) (agent.Agent, error) {
	r.mu.RLock()
	factory, ok := r.factories[t]
	r.mu.RUnlock()

	if !ok {
		return nil, errx.Newf(errx.KindUnknownAgentType, "no factory registered for agent type %q", t)
	}

	ag, err := factory()
	if err != nil {
		return nil, errx.Wrap(errx.KindUnknown, err, fmt.Sprintf("agent factory for %q failed", t))
	}
	return ag, nil
}
