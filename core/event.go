package core

import "time"

// EventType categorizes coordinator events pushed to subscribers.
type EventType string

const (
	// EventStatus carries a full ExecutionStatus snapshot.
	EventStatus EventType = "status"
	// EventTaskUpdate reports a single step's status change or streamed
	// partial output.
	EventTaskUpdate EventType = "task_update"
	// EventProgress reports the updated progress fraction.
	EventProgress EventType = "progress"
	// EventCompleted is the single terminal event of a plan, emitted exactly
	// once regardless of outcome.
	EventCompleted EventType = "completed"
)

// Event is the unit of communication between the coordinator and observers.
// After emission it should be treated as immutable.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	PlanID    string         `json:"plan_id"`
	StepID    string         `json:"step_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEvent creates a bare event bound to a plan. Prefer the typed
// constructors below for common categories.
func NewEvent(t EventType, planID string) Event {
	return Event{
		ID:        NewID(),
		Type:      t,
		PlanID:    planID,
		Timestamp: time.Now().UTC(),
	}
}

// NewStatusEvent wraps an ExecutionStatus snapshot.
func NewStatusEvent(status *ExecutionStatus) Event {
	e := NewEvent(EventStatus, status.PlanID)
	e.Payload = map[string]any{"status": status}
	return e
}

// NewTaskUpdateEvent reports a step's current status (and error, if any).
func NewTaskUpdateEvent(step *Step) Event {
	e := NewEvent(EventTaskUpdate, step.PlanID)
	e.StepID = step.ID
	e.Payload = map[string]any{
		"agent":  step.Agent,
		"status": step.Status,
	}
	if step.Error != "" {
		e.Payload["error"] = step.Error
	}
	return e
}

// NewPartialOutputEvent reports one streamed chunk of a running step.
func NewPartialOutputEvent(step *Step, chunk Chunk) Event {
	e := NewEvent(EventTaskUpdate, step.PlanID)
	e.StepID = step.ID
	e.Payload = map[string]any{
		"agent":   step.Agent,
		"status":  step.Status,
		"partial": true,
		"text":    chunk.Text,
	}
	return e
}

// NewProgressEvent reports the updated progress fraction.
func NewProgressEvent(status *ExecutionStatus) Event {
	e := NewEvent(EventProgress, status.PlanID)
	e.Payload = map[string]any{"progress": status.Progress}
	if status.CurrentStepID != "" {
		e.StepID = status.CurrentStepID
	}
	return e
}

// NewCompletedEvent is the terminal event of a plan.
func NewCompletedEvent(status *ExecutionStatus) Event {
	e := NewEvent(EventCompleted, status.PlanID)
	e.Payload = map[string]any{"status": status}
	return e
}

// IsTerminal reports whether this event closes the plan's event stream.
func (e Event) IsTerminal() bool { return e.Type == EventCompleted }
