// Package circuit provides the three-state circuit breaker guarding the
// completion provider.
package circuit

import (
	"fmt"
	"sync"
	"time"

	"querycore/pkg/metrics"
)

// State represents the current state of a circuit breaker.
type State int

// Circuit breaker states.
const (
	Closed   State = iota // normal operation
	Open                  // failing; wrapped chain is bypassed
	HalfOpen              // cooldown elapsed; allow a trial call
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config defines circuit breaker behavior.
type Config struct {
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // successes to close from half-open
	Cooldown         time.Duration // wait before trying half-open
}

// Error is returned when a request is rejected by an open circuit.
type Error struct {
	State State
}

func (e *Error) Error() string {
	return fmt.Sprintf("circuit breaker is %s", e.State)
}

// Breaker is a mutex-guarded three-state circuit breaker. A single instance
// is shared by all concurrent requests; every state read-modify-write runs
// under the lock so the failure counter is never under-recorded.
type Breaker struct {
	mu              sync.Mutex
	config          Config
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	recorder        metrics.Recorder
}

// New creates a circuit breaker with the given configuration.
func New(config Config, recorder metrics.Recorder) *Breaker {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	if config.SuccessThreshold < 1 {
		config.SuccessThreshold = 1
	}
	return &Breaker{config: config, state: Closed, recorder: recorder}
}

// Allow reports whether a request may go through the wrapped chain.
// An open breaker transitions to half-open once the cooldown elapses.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if time.Since(b.lastFailureTime) >= b.config.Cooldown {
			b.transition(HalfOpen)
			b.successCount = 0
			return true
		}
		return false
	case HalfOpen:
		return true
	default:
		return false
	}
}

// Record records the result of a request that went through the chain.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if success {
		b.onSuccess()
	} else {
		b.onFailure()
	}
}

// GetState returns the current circuit breaker state.
func (b *Breaker) GetState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns the observable breaker state for diagnostics.
func (b *Breaker) Snapshot() (state State, consecutiveFailures int, lastFailure time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.failureCount, b.lastFailureTime
}

// Reset manually resets the circuit breaker to closed state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(Closed)
	b.failureCount = 0
	b.successCount = 0
}

func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	b.recorder.IncCircuitTransition(b.state.String(), to.String())
	b.state = to
}

func (b *Breaker) onSuccess() {
	switch b.state {
	case Closed:
		b.failureCount = 0
	case HalfOpen:
		b.successCount++
		if b.successCount >= b.config.SuccessThreshold {
			b.transition(Closed)
			b.failureCount = 0
			b.successCount = 0
		}
	case Open:
		// Success recorded while open can only come from a bypass call;
		// the breaker recovers through the half-open trial, not bypasses.
	}
}

func (b *Breaker) onFailure() {
	b.failureCount++
	b.lastFailureTime = time.Now()

	switch b.state {
	case Closed:
		if b.failureCount >= b.config.FailureThreshold {
			b.transition(Open)
		}
	case HalfOpen:
		// Any failure in half-open immediately reopens the circuit.
		b.transition(Open)
		b.successCount = 0
	case Open:
	}
}
