package pattern

import (
	"fmt"

	"github.com/hupe1980/planmesh/core"
)

// Handoff starts at a designated initial agent; on completion the executing
// agent may name a successor via ExecutionResult.Handoff, which the
// coordinator validates against the source capability's declared allow-list
// before the proposed step is materialized. A hard ceiling (max_handoffs)
// bounds the chain; exceeding it fails the whole plan.
type Handoff struct {
	cfg Config
}

// NewHandoff constructs the handoff policy.
func NewHandoff(cfg Config) *Handoff {
	return &Handoff{cfg: cfg.WithDefaults()}
}

// Name implements Pattern.
func (h *Handoff) Name() string { return PatternHandoff }

// InitialSteps implements Seeder: one step for the configured initial agent.
func (h *Handoff) InitialSteps(plan *core.Plan) []*core.Step {
	return []*core.Step{core.NewStep(plan.ID, h.cfg.InitialAgent, plan.Objective)}
}

// Admit implements Pattern: the chain runs strictly one step at a time; only
// the newest materialized step is ever eligible.
func (h *Handoff) Admit(snap *Snapshot) []string {
	if snap.Running > 0 || len(snap.Order) == 0 {
		return nil
	}
	tail := snap.Order[len(snap.Order)-1]
	for _, ready := range snap.Ready {
		if ready == tail {
			return []string{tail}
		}
	}
	return nil
}

// BuildContext implements Pattern: the objective plus the chain's prior
// outputs in order, bounded by max_context_bytes.
func (h *Handoff) BuildContext(snap *Snapshot, step *core.Step) map[string]any {
	ctx := map[string]any{"objective": snap.Plan.Objective}
	var prior []string
	for _, id := range snap.Order {
		if id == step.ID {
			break
		}
		prior = append(prior, id)
	}
	if outputs := boundedOutputs(snap, prior, h.cfg.MaxContextBytes); len(outputs) > 0 {
		ctx["outputs"] = outputs
	}
	return ctx
}

// OnStepTerminal implements CompletionHook: materializes the proposed
// successor step, enforcing the handoff ceiling. The allow-list check happens
// in the coordinator, which owns the capability registry.
func (h *Handoff) OnStepTerminal(snap *Snapshot, step *core.Step) (*Proposal, error) {
	if step.Status != core.StepCompleted || step.Result == nil || step.Result.Handoff == "" {
		return nil, nil
	}
	if snap.Materialized >= h.cfg.MaxHandoffs {
		return nil, fmt.Errorf("handoff ceiling max_handoffs=%d reached by step %s: %w",
			h.cfg.MaxHandoffs, step.ID, core.ErrHandoffPolicyViolation)
	}
	next := core.NewStep(snap.Plan.ID, step.Result.Handoff, snap.Plan.Objective, step.ID)
	return &Proposal{Steps: []*core.Step{next}}, nil
}
