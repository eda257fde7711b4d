package core

import (
	"errors"
	"fmt"
)

var (
	// ErrCyclicDependency is returned when a plan's dependency graph contains
	// a cycle. Plans with cycles are rejected at creation and never retried.
	ErrCyclicDependency = errors.New("cyclic dependency")

	// ErrInvalidTransition is returned when a step status change violates the
	// state machine, including any write to an already-terminal step.
	ErrInvalidTransition = errors.New("invalid step transition")

	// ErrAlreadyDecided is returned when approving or rejecting a step whose
	// approval outcome has already been recorded.
	ErrAlreadyDecided = errors.New("approval already decided")

	// ErrHandoffPolicyViolation is returned when a handoff target is not in
	// the source capability's allow-list or the handoff ceiling is exceeded.
	// It fails the whole plan.
	ErrHandoffPolicyViolation = errors.New("handoff policy violation")

	// ErrTimeout marks a step that exceeded its per-agent timeout or did not
	// respond to cancellation within the grace period. Never retried.
	ErrTimeout = errors.New("step execution timed out")

	// ErrPlanNotFound is returned when a plan id is unknown.
	ErrPlanNotFound = errors.New("plan not found")

	// ErrStepNotFound is returned when a step id is unknown.
	ErrStepNotFound = errors.New("step not found")

	// ErrPlanNotActive is returned for operations (approval, cancellation)
	// that require an executing plan.
	ErrPlanNotActive = errors.New("plan not active")

	// ErrUnknownCapability is returned when a step names an agent with no
	// registered capability.
	ErrUnknownCapability = errors.New("unknown capability")

	// ErrDocumentNotFound is returned by document stores when no document
	// exists for the given (session, kind, id) key.
	ErrDocumentNotFound = errors.New("document not found")
)

// ValidationError rejects a malformed plan at creation time. It wraps the
// underlying cause (e.g. ErrCyclicDependency) so callers can match on both.
type ValidationError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("plan validation failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("plan validation failed: %s", e.Reason)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *ValidationError) Unwrap() error { return e.Err }

// ExecutionError wraps an executor failure with the agent that produced it.
type ExecutionError struct {
	Agent string
	Err   error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("agent %s execution failed: %v", e.Agent, e.Err)
}

// Unwrap exposes the underlying executor error.
func (e *ExecutionError) Unwrap() error { return e.Err }
