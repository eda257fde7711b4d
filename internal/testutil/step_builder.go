package testutil

import (
	"github.com/hupe1980/planmesh/core"
)

// StepBuilder helps construct steps with fluent chaining for tests.
// Example:
//
//	step := NewStepBuilder("s1", "writer").DependsOn("s0").Status(core.StepCompleted).Output("done").Build()
type StepBuilder struct {
	id        string
	planID    string
	agent     string
	task      string
	dependsOn []string
	status    core.StepStatus
	approval  bool
	result    *core.ExecutionResult
	err       string
}

// NewStepBuilder creates a new builder for a step with the given id and agent.
// Use chainable methods then call Build.
func NewStepBuilder(id, agent string) *StepBuilder {
	return &StepBuilder{id: id, planID: "plan-1", agent: agent, task: "task for " + id, status: core.StepPending}
}

// Plan sets the owning plan id (chainable).
func (b *StepBuilder) Plan(planID string) *StepBuilder { b.planID = planID; return b }

// Task sets the task description (chainable).
func (b *StepBuilder) Task(task string) *StepBuilder { b.task = task; return b }

// DependsOn appends dependency step ids (chainable).
func (b *StepBuilder) DependsOn(ids ...string) *StepBuilder {
	b.dependsOn = append(b.dependsOn, ids...)
	return b
}

// Status overrides the step status directly, bypassing the state machine (chainable).
func (b *StepBuilder) Status(s core.StepStatus) *StepBuilder { b.status = s; return b }

// RequiresApproval flags the step as gated (chainable).
func (b *StepBuilder) RequiresApproval() *StepBuilder { b.approval = true; return b }

// Output attaches a completed execution result with the given output (chainable).
func (b *StepBuilder) Output(output string) *StepBuilder {
	b.result = &core.ExecutionResult{Output: output}
	return b
}

// Error sets the step's recorded error (chainable).
func (b *StepBuilder) Error(msg string) *StepBuilder { b.err = msg; return b }

// Build returns a *core.Step with the configured shape.
func (b *StepBuilder) Build() *core.Step {
	step := core.NewStep(b.planID, b.agent, b.task, b.dependsOn...)
	step.ID = b.id
	step.Status = b.status
	step.RequiresApproval = b.approval
	step.Result = b.result
	step.Error = b.err
	return step
}

// NewPlan creates a plan with the given id for tests.
func NewPlan(id, objective, pattern string) *core.Plan {
	plan := core.NewPlan("sess-1", objective, pattern)
	plan.ID = id
	return plan
}
