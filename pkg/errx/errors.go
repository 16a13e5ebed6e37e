// Package errx provides the structured error taxonomy shared across the
// orchestration core: validation, timeout, tool resolution, dependency,
// circuit, rate-limit, critical and agent-registry errors.
package errx

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies orchestration errors for propagation and policy decisions.
type Kind int8

const (
	// KindValidation marks an empty or malformed query, rejected before analysis.
	KindValidation Kind = iota
	// KindTimeout marks any suspension point exceeding its budget.
	KindTimeout
	// KindToolNotFound marks a step requiring a tool its agent cannot resolve.
	KindToolNotFound
	// KindDependencyUnsatisfied marks a step skipped because a declared
	// dependency never completed. A skip, not a hard failure.
	KindDependencyUnsatisfied
	// KindCircuitOpen marks a provider call rejected by the open circuit.
	// Never surfaced to callers; the wrapper falls back to a direct call.
	KindCircuitOpen
	// KindRateLimit marks an exhausted augmentation budget. The call proceeds
	// without augmentation rather than failing.
	KindRateLimit
	// KindCritical marks an error class that halts an entire plan immediately,
	// regardless of the failure-ratio threshold.
	KindCritical
	// KindUnknownAgentType marks a route the agent registry cannot satisfy.
	KindUnknownAgentType
	// KindUnknown is the default for unclassified errors.
	KindUnknown
)

// String returns the taxonomy label for the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTimeout:
		return "timeout"
	case KindToolNotFound:
		return "tool_not_found"
	case KindDependencyUnsatisfied:
		return "dependency_unsatisfied"
	case KindCircuitOpen:
		return "circuit_open"
	case KindRateLimit:
		return "rate_limit"
	case KindCritical:
		return "critical"
	case KindUnknownAgentType:
		return "unknown_agent_type"
	case KindUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Error is a classified orchestration error.
type Error struct {
	Err       error         // wrapped underlying error
	Message   string        // human-readable message
	Operation string        // which operation failed (retrieval, tool, agent, provider)
	Elapsed   time.Duration // for timeouts: how long the operation ran
	Kind      Kind
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindTimeout && e.Operation != "":
		return fmt.Sprintf("%s: %s timed out after %s", e.Kind, e.Operation, e.Elapsed)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a classified error wrapping a cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Err: cause, Message: message}
}

// NewTimeout creates a timeout error tagged with the operation and its duration.
func NewTimeout(operation string, elapsed time.Duration) *Error {
	return &Error{Kind: KindTimeout, Operation: operation, Elapsed: elapsed}
}

// IsKind reports whether err (or anything it wraps) carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, or KindUnknown when unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsCritical reports whether err should abort an entire plan immediately.
func IsCritical(err error) bool {
	return IsKind(err, KindCritical)
}
