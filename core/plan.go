package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewID generates a new unique identifier for plans, steps, messages and events.
func NewID() string { return uuid.NewString() }

// PlanStatus is the overall lifecycle status of a plan.
type PlanStatus string

const (
	// PlanPending indicates the plan has been created but not started.
	PlanPending PlanStatus = "pending"
	// PlanRunning indicates the coordinator is actively driving the plan.
	PlanRunning PlanStatus = "running"
	// PlanCompleted indicates all steps reached a terminal status and none
	// failed or were rejected (unless the active pattern permits partial
	// completion).
	PlanCompleted PlanStatus = "completed"
	// PlanFailed indicates at least one step failed or a policy violation
	// aborted execution.
	PlanFailed PlanStatus = "failed"
	// PlanCancelled indicates the plan was cancelled before completion.
	PlanCancelled PlanStatus = "cancelled"
)

// Terminal reports whether the plan status is final.
func (s PlanStatus) Terminal() bool {
	switch s {
	case PlanCompleted, PlanFailed, PlanCancelled:
		return true
	}
	return false
}

// Plan is the top-level unit of work derived from one objective. It owns an
// ordered list of step ids forming a dependency DAG. Only the coordinator
// mutates a plan after creation.
type Plan struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Objective string         `json:"objective"`
	StepIDs   []string       `json:"step_ids"`
	Status    PlanStatus     `json:"status"`
	Pattern   string         `json:"pattern"`
	Aggregate map[string]any `json:"aggregate,omitempty"`
	Error     string         `json:"error,omitempty"`
	Created   time.Time      `json:"created"`
	Started   *time.Time     `json:"started,omitempty"`
	Finished  *time.Time     `json:"finished,omitempty"`
}

// NewPlan creates a pending plan bound to a session and objective.
func NewPlan(sessionID, objective, pattern string) *Plan {
	return &Plan{
		ID:        NewID(),
		SessionID: sessionID,
		Objective: objective,
		Status:    PlanPending,
		Pattern:   pattern,
		Created:   time.Now().UTC(),
	}
}

// Clone returns a deep copy of the plan safe for independent mutation.
func (p *Plan) Clone() *Plan {
	clone := *p
	clone.StepIDs = append([]string(nil), p.StepIDs...)
	if p.Aggregate != nil {
		clone.Aggregate = make(map[string]any, len(p.Aggregate))
		for k, v := range p.Aggregate {
			clone.Aggregate[k] = v
		}
	}
	return &clone
}

// Message is one turn of a conversation / group-chat log bound to a plan.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	PlanID    string    `json:"plan_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage constructs a message authored by 'role' (an agent name or "user").
func NewMessage(sessionID, planID, role, content string) Message {
	return Message{
		ID:        NewID(),
		SessionID: sessionID,
		PlanID:    planID,
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// ExecutionStatus is a point-in-time snapshot of a plan's progress published
// to observers after every state change.
type ExecutionStatus struct {
	PlanID        string     `json:"plan_id"`
	Status        PlanStatus `json:"status"`
	Progress      float64    `json:"progress"`
	CurrentStepID string     `json:"current_step_id,omitempty"`
	Completed     []string   `json:"completed,omitempty"`
	Failed        []string   `json:"failed,omitempty"`
	Rejected      []string   `json:"rejected,omitempty"`
	Started       *time.Time `json:"started,omitempty"`
	Finished      *time.Time `json:"finished,omitempty"`
}

// String renders a compact human-readable summary, useful in logs and examples.
func (s *ExecutionStatus) String() string {
	return fmt.Sprintf("plan %s status=%s progress=%.2f completed=%d failed=%d rejected=%d",
		s.PlanID, s.Status, s.Progress, len(s.Completed), len(s.Failed), len(s.Rejected))
}
