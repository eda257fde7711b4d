package pattern

import (
	"github.com/hupe1980/planmesh/core"
)

// Snapshot is the read-only view of a plan run handed to patterns. The
// coordinator owns all contained state; patterns must not mutate it.
type Snapshot struct {
	// Plan is the plan being executed.
	Plan *core.Plan
	// Steps maps step id to step.
	Steps map[string]*core.Step
	// Order lists step ids in plan creation order.
	Order []string
	// Ready lists the scheduler's current ready set, in plan order.
	Ready []string
	// Running is the number of currently dispatched steps.
	Running int
	// CompletedOrder lists completed step ids in completion order.
	CompletedOrder []string
	// Messages is the conversation log (GroupChat).
	Messages []core.Message
	// Materialized counts dynamically created steps (Handoff / GroupChat).
	Materialized int
}

// Step resolves a step by id; nil when unknown.
func (s *Snapshot) Step(id string) *core.Step { return s.Steps[id] }

// Pattern is the policy governing step admission order, concurrency and
// context propagation for one plan run.
type Pattern interface {
	// Name returns the pattern identifier (see the Pattern* constants).
	Name() string

	// Admit selects which of the ready steps to dispatch now, respecting the
	// pattern's concurrency budget.
	Admit(snap *Snapshot) []string

	// BuildContext assembles the input context snapshot for a step about to
	// be dispatched.
	BuildContext(snap *Snapshot, step *core.Step) map[string]any
}

// Proposal is the outcome of a completion hook: steps to materialize and
// messages to append to the conversation log.
type Proposal struct {
	Steps    []*core.Step
	Messages []core.Message
}

// CompletionHook is implemented by patterns that react to terminal steps by
// materializing new steps (Handoff successors, GroupChat turns). Returning an
// error fails the whole plan.
type CompletionHook interface {
	OnStepTerminal(snap *Snapshot, step *core.Step) (*Proposal, error)
}

// Aggregator is implemented by patterns that compute a plan-level aggregate
// once all steps are terminal (Concurrent).
type Aggregator interface {
	Aggregate(snap *Snapshot) (map[string]any, error)
}

// PartialCompletion is implemented by patterns that allow a plan to complete
// even when some steps failed (Concurrent with `first` aggregation).
type PartialCompletion interface {
	AllowPartial() bool
}

// TolerateFailures reports whether the pattern continues scheduling past
// failed dependencies (best-effort continuation). Derived from fail_fast.
type TolerateFailures interface {
	TolerateFailures() bool
}

// Seeder is implemented by patterns that materialize their own initial steps
// from the objective (Handoff, GroupChat) instead of receiving a caller-built
// step list.
type Seeder interface {
	InitialSteps(plan *core.Plan) []*core.Step
}

// FailureCascade overrides the default fail-fast cascade target set (the
// failed step's transitive dependent closure). Sequential uses it to cancel
// all later steps in plan order regardless of explicit edges.
type FailureCascade interface {
	CascadeTargets(snap *Snapshot, failed *core.Step) []string
}
