package core

import (
	"fmt"
	"time"
)

// StepStatus is the lifecycle status of a single step.
type StepStatus string

const (
	// StepPending indicates the step is waiting for its dependencies (and,
	// when approval is required, for the gate).
	StepPending StepStatus = "pending"
	// StepAwaitingApproval indicates the step is blocked on a human decision.
	StepAwaitingApproval StepStatus = "awaiting_approval"
	// StepApproved indicates the gate admitted the step; it runs once its
	// dependencies are terminal.
	StepApproved StepStatus = "approved"
	// StepRunning indicates the step has been dispatched to its executor.
	StepRunning StepStatus = "running"
	// StepCompleted indicates the executor returned a result.
	StepCompleted StepStatus = "completed"
	// StepFailed indicates the executor returned an error (after any retries).
	StepFailed StepStatus = "failed"
	// StepRejected indicates a human rejected the step at the gate.
	StepRejected StepStatus = "rejected"
	// StepCancelled indicates the step was cancelled before it could finish.
	StepCancelled StepStatus = "cancelled"
)

// Terminal reports whether the status is final. Terminal statuses are
// write-once; any further transition attempt fails.
func (s StepStatus) Terminal() bool {
	switch s {
	case StepCompleted, StepFailed, StepRejected, StepCancelled:
		return true
	}
	return false
}

// stepTransitions is the legal transition table of the step state machine.
var stepTransitions = map[StepStatus][]StepStatus{
	StepPending:          {StepAwaitingApproval, StepRunning, StepRejected, StepCancelled},
	StepAwaitingApproval: {StepApproved, StepRejected, StepCancelled},
	StepApproved:         {StepRunning, StepCancelled},
	StepRunning:          {StepCompleted, StepFailed, StepCancelled},
}

// CanTransition reports whether moving from s to next is legal.
func (s StepStatus) CanTransition(next StepStatus) bool {
	for _, allowed := range stepTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ApprovalDecision records a human gate decision. Once recorded it is
// immutable; re-deciding fails with ErrAlreadyDecided.
type ApprovalDecision struct {
	Approved  bool      `json:"approved"`
	Reason    string    `json:"reason,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

// UpstreamFailure marks a tolerated dependency failure passed to dependents
// when the active pattern continues past failures (fail_fast=false). It is an
// explicit sentinel; dependents never see the failed step's partial output.
type UpstreamFailure struct {
	StepID string `json:"step_id"`
	Agent  string `json:"agent"`
	Error  string `json:"error"`
}

// UpstreamFailuresKey is the context key under which []UpstreamFailure is
// delivered to a dependent step's input context.
const UpstreamFailuresKey = "upstream_failures"

// Step is one agent-executed unit of work with explicit dependencies. Only
// the coordinator mutates Status / Result; only the gate path sets Approval.
type Step struct {
	ID               string            `json:"id"`
	PlanID           string            `json:"plan_id"`
	Agent            string            `json:"agent"`
	Task             string            `json:"task"`
	DependsOn        []string          `json:"depends_on,omitempty"`
	Status           StepStatus        `json:"status"`
	RequiresApproval bool              `json:"requires_approval,omitempty"`
	Approval         *ApprovalDecision `json:"approval,omitempty"`
	Context          map[string]any    `json:"context,omitempty"`
	Result           *ExecutionResult  `json:"result,omitempty"`
	Error            string            `json:"error,omitempty"`
	Attempts         int               `json:"attempts,omitempty"`
	Created          time.Time         `json:"created"`
	Started          *time.Time        `json:"started,omitempty"`
	Finished         *time.Time        `json:"finished,omitempty"`
}

// NewStep creates a pending step for the given agent and task description.
func NewStep(planID, agent, task string, dependsOn ...string) *Step {
	return &Step{
		ID:        NewID(),
		PlanID:    planID,
		Agent:     agent,
		Task:      task,
		DependsOn: append([]string(nil), dependsOn...),
		Status:    StepPending,
		Created:   time.Now().UTC(),
	}
}

// Transition moves the step to next, enforcing the state machine. Terminal
// statuses are write-once. Started / Finished timestamps are maintained as a
// side effect.
func (s *Step) Transition(next StepStatus) error {
	if s.Status.Terminal() {
		return fmt.Errorf("step %s is terminal (%s), cannot move to %s: %w", s.ID, s.Status, next, ErrInvalidTransition)
	}
	if !s.Status.CanTransition(next) {
		return fmt.Errorf("step %s cannot move from %s to %s: %w", s.ID, s.Status, next, ErrInvalidTransition)
	}
	now := time.Now().UTC()
	s.Status = next
	if next == StepRunning {
		s.Started = &now
	}
	if next.Terminal() {
		s.Finished = &now
	}
	return nil
}

// Decide records the approval outcome. It fails with ErrAlreadyDecided when a
// decision has already been recorded; the existing decision is left untouched.
func (s *Step) Decide(approved bool, reason string) error {
	if s.Approval != nil {
		return fmt.Errorf("step %s: %w", s.ID, ErrAlreadyDecided)
	}
	s.Approval = &ApprovalDecision{Approved: approved, Reason: reason, DecidedAt: time.Now().UTC()}
	return nil
}

// Clone returns a deep copy of the step safe for independent mutation.
func (s *Step) Clone() *Step {
	clone := *s
	clone.DependsOn = append([]string(nil), s.DependsOn...)
	if s.Approval != nil {
		a := *s.Approval
		clone.Approval = &a
	}
	if s.Context != nil {
		clone.Context = make(map[string]any, len(s.Context))
		for k, v := range s.Context {
			clone.Context[k] = v
		}
	}
	if s.Result != nil {
		clone.Result = s.Result.Clone()
	}
	return &clone
}
