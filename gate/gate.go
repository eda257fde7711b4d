// Package gate is the human approval surface of a plan run. Steps flagged
// requires_approval block at the gate until a decision arrives; decisions are
// immutable once recorded. The gate holds no state of its own, it routes
// decisions into the owning coordinator's run loop.
package gate

import (
	"context"

	"github.com/hupe1980/planmesh/coordinator"
	"github.com/hupe1980/planmesh/core"
)

// Gate exposes approve / reject / list-pending over a coordinator.
type Gate struct {
	coord *coordinator.Coordinator
}

// New creates a gate bound to a coordinator.
func New(coord *coordinator.Coordinator) *Gate {
	return &Gate{coord: coord}
}

// Approve admits a step awaiting approval. Fails with core.ErrAlreadyDecided
// when a decision exists, leaving the recorded decision untouched.
func (g *Gate) Approve(stepID string) error {
	return g.coord.Approve(stepID)
}

// Reject declines a step awaiting approval. Not-yet-started dependents are
// cancelled transitively; the reason is recorded on the decision.
func (g *Gate) Reject(stepID, reason string) error {
	return g.coord.Reject(stepID, reason)
}

// Pending lists the steps of a plan currently blocked at the gate.
func (g *Gate) Pending(ctx context.Context, planID string) ([]*core.Step, error) {
	return g.coord.PendingApprovals(ctx, planID)
}
