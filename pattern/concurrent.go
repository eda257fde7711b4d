package pattern

import (
	"fmt"

	"github.com/hupe1980/planmesh/core"
)

// Concurrent admits every ready step up to max_concurrent. Once all steps
// are terminal the results aggregate per the configured strategy:
//
//   - merge: union of completed outputs (keyed by step id) and artifacts
//   - first: the first success; permits partial plan completion
//   - all:   the full result list including failures, in plan order
type Concurrent struct {
	cfg Config
}

// NewConcurrent constructs the concurrent policy.
func NewConcurrent(cfg Config) *Concurrent {
	return &Concurrent{cfg: cfg.WithDefaults()}
}

// Name implements Pattern.
func (c *Concurrent) Name() string { return PatternConcurrent }

// Admit implements Pattern: ready steps up to the remaining concurrency budget.
func (c *Concurrent) Admit(snap *Snapshot) []string {
	budget := c.cfg.MaxConcurrent - snap.Running
	if budget <= 0 {
		return nil
	}
	if budget > len(snap.Ready) {
		budget = len(snap.Ready)
	}
	return snap.Ready[:budget]
}

// BuildContext implements Pattern: the objective plus the outputs of the
// step's completed dependencies.
func (c *Concurrent) BuildContext(snap *Snapshot, step *core.Step) map[string]any {
	ctx := map[string]any{"objective": snap.Plan.Objective}
	if outputs := boundedOutputs(snap, step.DependsOn, c.cfg.MaxContextBytes); len(outputs) > 0 {
		ctx["outputs"] = outputs
	}
	return ctx
}

// TolerateFailures implements TolerateFailures.
func (c *Concurrent) TolerateFailures() bool { return !c.cfg.FailFast }

// AllowPartial implements PartialCompletion: with `first` aggregation the
// plan completes as soon as the run finishes with at least one success.
func (c *Concurrent) AllowPartial() bool { return c.cfg.Aggregation == AggregateFirst }

// Aggregate implements Aggregator. Called by the coordinator once every step
// is terminal.
func (c *Concurrent) Aggregate(snap *Snapshot) (map[string]any, error) {
	switch c.cfg.Aggregation {
	case AggregateMerge:
		outputs := map[string]string{}
		artifacts := map[string]string{}
		for _, id := range snap.Order {
			step := snap.Step(id)
			if step.Status != core.StepCompleted || step.Result == nil {
				continue
			}
			outputs[id] = step.Result.Output
			for k, v := range step.Result.Artifacts {
				artifacts[k] = v
			}
		}
		agg := map[string]any{"outputs": outputs}
		if len(artifacts) > 0 {
			agg["artifacts"] = artifacts
		}
		return agg, nil

	case AggregateFirst:
		for _, id := range snap.CompletedOrder {
			step := snap.Step(id)
			if step != nil && step.Status == core.StepCompleted && step.Result != nil {
				return map[string]any{"step_id": id, "output": step.Result.Output}, nil
			}
		}
		return nil, nil

	case AggregateAll:
		results := make([]map[string]any, 0, len(snap.Order))
		for _, id := range snap.Order {
			step := snap.Step(id)
			entry := map[string]any{
				"step_id": id,
				"agent":   step.Agent,
				"status":  string(step.Status),
			}
			if step.Result != nil {
				entry["output"] = step.Result.Output
			}
			if step.Error != "" {
				entry["error"] = step.Error
			}
			results = append(results, entry)
		}
		return map[string]any{"results": results}, nil

	default:
		return nil, fmt.Errorf("unknown aggregation %q", c.cfg.Aggregation)
	}
}
