package pattern

import (
	"github.com/hupe1980/planmesh/core"
)

// Sequential admits one step at a time in fixed plan order. Each step's
// context includes the outputs of all prior completed steps, bounded by
// max_context_bytes (oldest dropped first). With fail_fast=true the first
// failure cancels every later step; otherwise failures are annotated into the
// context of subsequent steps and execution continues.
type Sequential struct {
	cfg Config
}

// NewSequential constructs the sequential policy.
func NewSequential(cfg Config) *Sequential {
	return &Sequential{cfg: cfg.WithDefaults()}
}

// Name implements Pattern.
func (s *Sequential) Name() string { return PatternSequential }

// Admit implements Pattern: the first non-terminal step in plan order, and
// only when nothing is running and the step is ready. A step blocked at the
// gate halts admission entirely.
func (s *Sequential) Admit(snap *Snapshot) []string {
	if snap.Running > 0 {
		return nil
	}
	for _, id := range snap.Order {
		step := snap.Step(id)
		if step.Status.Terminal() {
			continue
		}
		for _, ready := range snap.Ready {
			if ready == id {
				return []string{id}
			}
		}
		return nil
	}
	return nil
}

// BuildContext implements Pattern.
func (s *Sequential) BuildContext(snap *Snapshot, step *core.Step) map[string]any {
	ctx := map[string]any{"objective": snap.Plan.Objective}

	var prior []string
	for _, id := range snap.Order {
		if id == step.ID {
			break
		}
		prior = append(prior, id)
	}
	if outputs := boundedOutputs(snap, prior, s.cfg.MaxContextBytes); len(outputs) > 0 {
		ctx["outputs"] = outputs
	}
	if !s.cfg.FailFast {
		var failures []core.UpstreamFailure
		for _, id := range prior {
			if p := snap.Step(id); p.Status == core.StepFailed {
				failures = append(failures, core.UpstreamFailure{StepID: p.ID, Agent: p.Agent, Error: p.Error})
			}
		}
		if len(failures) > 0 {
			ctx[core.UpstreamFailuresKey] = failures
		}
	}
	return ctx
}

// TolerateFailures implements TolerateFailures.
func (s *Sequential) TolerateFailures() bool { return !s.cfg.FailFast }

// CascadeTargets implements FailureCascade: all later non-terminal steps in
// plan order, regardless of explicit dependency edges.
func (s *Sequential) CascadeTargets(snap *Snapshot, failed *core.Step) []string {
	var targets []string
	past := false
	for _, id := range snap.Order {
		if id == failed.ID {
			past = true
			continue
		}
		if past && !snap.Step(id).Status.Terminal() {
			targets = append(targets, id)
		}
	}
	return targets
}

// boundedOutputs collects completed outputs for the given step ids, dropping
// the oldest outputs first once the accumulated size exceeds maxBytes.
func boundedOutputs(snap *Snapshot, ids []string, maxBytes int) map[string]string {
	type entry struct{ id, output string }
	var entries []entry
	for _, id := range ids {
		if step := snap.Step(id); step != nil && step.Status == core.StepCompleted && step.Result != nil {
			entries = append(entries, entry{id: id, output: step.Result.Output})
		}
	}

	// Walk newest to oldest, keeping what fits in the budget.
	size := 0
	keep := len(entries)
	for i := len(entries) - 1; i >= 0; i-- {
		size += len(entries[i].output)
		if size > maxBytes {
			keep = len(entries) - 1 - i
			break
		}
	}

	// The newest output alone can blow the budget; keep it truncated rather
	// than handing the step no prior outputs at all.
	if keep == 0 && len(entries) > 0 {
		newest := entries[len(entries)-1]
		return map[string]string{newest.id: newest.output[:maxBytes]}
	}

	outputs := make(map[string]string, keep)
	for _, e := range entries[len(entries)-keep:] {
		outputs[e.id] = e.output
	}
	return outputs
}
