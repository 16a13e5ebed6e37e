package pool

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"querycore/pkg/agent"
	"querycore/pkg/config"
	"querycore/pkg/errx"
	"querycore/pkg/logx"
)

// Lease is a leased agent instance. Callers must hand it back via Release;
// releasing twice is a no-op.
type Lease struct {
	Agent agent.Agent
	ID    string
	Type  agent.Type

	released bool
}

// pooled is an idle instance waiting for reuse.
type pooled struct {
	agent     agent.Agent
	id        string
	idleSince time.Time
}

// Pool caps live agent instances per type and recycles idle ones. Get blocks
// up to the configured acquire wait when a type is at capacity.
type Pool struct {
	registry *Registry
	cfg      config.PoolConfig
	logger   *logx.Logger

	mu     sync.Mutex
	idle   map[agent.Type][]*pooled
	leased map[agent.Type]int
	closed bool
	cancel context.CancelFunc
}

// New builds a pool over a registry and starts the idle evictor.
func New(registry *Registry, cfg config.PoolConfig) *Pool {
	p := &Pool{
		registry: registry,
		cfg:      cfg,
		logger:   logx.NewLogger("agent-pool"),
		idle:     make(map[agent.Type][]*pooled),
		leased:   make(map[agent.Type]int),
	}

	evictCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.runEvictor(evictCtx)

	return p
}

// Get leases an agent of the given type, reusing an idle instance when one
// exists and creating a fresh one otherwise. When the type is at capacity it
// waits up to the acquire bound, then fails.
func (p *Pool) Get(ctx context.Context, t agent.Type) (*Lease, error) {
	deadline := time.Now().Add(p.cfg.AcquireWait())

	for {
		lease, retry, err := p.tryGet(t)
		if err != nil {
			return nil, err
		}
		if lease != nil {
			return lease, nil
		}
		if !retry {
			return nil, errx.Newf(errx.KindUnknown, "agent pool for %q exhausted", t)
		}

		if time.Now().After(deadline) {
			return nil, errx.Newf(errx.KindTimeout, "timed out waiting for a %q agent", t)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// tryGet attempts one acquisition. A nil lease with retry=true means the
// type is at capacity and the caller should wait.
func (p *Pool) tryGet(t agent.Type) (*Lease, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, false, errx.New(errx.KindUnknown, "agent pool is shut down")
	}

	if stack := p.idle[t]; len(stack) > 0 {
		inst := stack[len(stack)-1]
		p.idle[t] = stack[:len(stack)-1]
		p.leased[t]++
		return &Lease{Agent: inst.agent, ID: inst.id, Type: t}, false, nil
	}

	if p.leased[t] >= p.cfg.MaxPerType {
		return nil, true, nil
	}

	ag, err := p.registry.create(t)
	if err != nil {
		return nil, false, err
	}
	p.leased[t]++
	id := uuid.New().String()
	p.logger.Debug("created %s agent %s", t, id)
	return &Lease{Agent: ag, ID: id, Type: t}, false, nil
}

// Release returns a leased agent to the idle set. Double release and release
// after shutdown are safe no-ops.
func (p *Pool) Release(lease *Lease) {
	if lease == nil || lease.released {
		return
	}
	lease.released = true

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.leased[lease.Type] > 0 {
		p.leased[lease.Type]--
	}
	if p.closed {
		return
	}
	p.idle[lease.Type] = append(p.idle[lease.Type], &pooled{
		agent:     lease.Agent,
		id:        lease.ID,
		idleSince: time.Now(),
	})
}

// Stats reports idle and leased counts per type.
func (p *Pool) Stats() map[agent.Type]PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[agent.Type]PoolStats)
	for t, stack := range p.idle {
		s := out[t]
		s.Idle = len(stack)
		out[t] = s
	}
	for t, n := range p.leased {
		s := out[t]
		s.Leased = n
		out[t] = s
	}
	return out
}

// PoolStats is a per-type snapshot.
type PoolStats struct {
	Idle   int
	Leased int
}

// Shutdown stops the evictor and drops all idle instances. In-flight leases
// stay valid; their Release after shutdown discards the agent.
func (p *Pool) Shutdown() {
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.idle = make(map[agent.Type][]*pooled)
}

// runEvictor drops instances idle beyond the configured timeout.
func (p *Pool) runEvictor(ctx context.Context) {
	interval := p.cfg.IdleTimeout() / 4
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.evictIdle()
		}
	}
}

func (p *Pool) evictIdle() {
	cutoff := time.Now().Add(-p.cfg.IdleTimeout())

	p.mu.Lock()
	defer p.mu.Unlock()

	for t, stack := range p.idle {
		kept := stack[:0]
		for _, inst := range stack {
			if inst.idleSince.After(cutoff) {
				kept = append(kept, inst)
			} else {
				p.logger.Debug("evicting idle %s agent %s", t, inst.id)
			}
		}
		p.idle[t] = kept
	}
}
