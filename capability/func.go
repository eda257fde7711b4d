package capability

import (
	"context"

	"github.com/hupe1980/planmesh/core"
)

// Func adapts a plain Go function into a core.Executor. Useful for wiring
// deterministic or locally computed capabilities without a full adapter.
type Func func(ctx context.Context, task core.Task) (*core.ExecutionResult, error)

// Execute implements core.Executor.
func (f Func) Execute(ctx context.Context, task core.Task) (*core.ExecutionResult, error) {
	return f(ctx, task)
}

// NewFuncCapability is a convenience constructor bundling a function executor
// into a capability descriptor.
func NewFuncCapability(name, description string, fn Func, optFns ...func(c *Capability)) *Capability {
	c := &Capability{
		Name:        name,
		Description: description,
		Executor:    fn,
	}
	for _, o := range optFns {
		o(c)
	}
	return c
}

// WithIdempotent marks the capability safe to retry.
func WithIdempotent() func(c *Capability) {
	return func(c *Capability) { c.Idempotent = true }
}

// WithHandoffs sets the static handoff allow-list.
func WithHandoffs(targets ...string) func(c *Capability) {
	return func(c *Capability) { c.Handoffs = targets }
}

// WithPriority sets the GroupChat speaker priority (lower speaks first).
func WithPriority(p int) func(c *Capability) {
	return func(c *Capability) { c.Priority = p }
}
