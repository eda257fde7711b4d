// Package planmesh provides a high-level façade over the coordinator and its
// services (capability registry, document store, approval gate & logging)
// enabling rapid construction of plan-driven multi-agent systems. Most
// applications interact with this package by:
//  1. Creating a PlanMesh via New() (optionally overriding default in-memory services)
//  2. Registering one or more capabilities (LLM-backed, function, custom)
//  3. Running plans asynchronously (Run) or synchronously (RunSync)
//
// The façade delegates orchestration to coordinator.Coordinator while keeping
// setup and usage ergonomics concise. All defaults are safe for local
// development and testing; production deployments typically supply a durable
// document store and a structured logger.
package planmesh

import (
	"context"

	"github.com/hupe1980/planmesh/capability"
	"github.com/hupe1980/planmesh/coordinator"
	"github.com/hupe1980/planmesh/core"
	"github.com/hupe1980/planmesh/gate"
	"github.com/hupe1980/planmesh/logging"
	"github.com/hupe1980/planmesh/pattern"
	"github.com/hupe1980/planmesh/store"
)

// Options configures the PlanMesh instance.
type Options struct {
	// CoordinatorConfig tunes execution behavior (event buffers, streaming,
	// timeouts, cancellation grace period).
	CoordinatorConfig coordinator.Config

	// Store persists plans and messages (defaults to in-memory if not provided).
	Store core.DocumentStore

	// Registry resolves agent names (defaults to an empty registry).
	Registry *capability.Registry

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// PlanMesh is the high-level façade aggregating the coordinator and its services.
type PlanMesh struct {
	opts  Options
	coord *coordinator.Coordinator
	gate  *gate.Gate
}

// New creates a new PlanMesh instance with optional overrides. Any unset
// service is initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *PlanMesh {
	opts := Options{
		CoordinatorConfig: coordinator.DefaultConfig,
		Store:             store.NewInMemoryStore(),
		Registry:          capability.NewRegistry(),
		Logger:            logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	coord := coordinator.New(func(o *coordinator.Options) {
		o.Config = opts.CoordinatorConfig
		o.Store = opts.Store
		o.Registry = opts.Registry
		o.Logger = opts.Logger
	})

	return &PlanMesh{opts: opts, coord: coord, gate: gate.New(coord)}
}

// RegisterCapability adds an agent capability to the underlying registry.
func (m *PlanMesh) RegisterCapability(c *capability.Capability) error {
	return m.coord.Registry().Register(c)
}

// Coordinator exposes the underlying coordinator for advanced use.
func (m *PlanMesh) Coordinator() *coordinator.Coordinator { return m.coord }

// Gate exposes the human approval surface.
func (m *PlanMesh) Gate() *gate.Gate { return m.gate }

// CreatePlan validates and persists a plan without starting it.
func (m *PlanMesh) CreatePlan(
	ctx context.Context,
	sessionID string,
	objective string,
	specs []coordinator.StepSpec,
	cfg pattern.Config,
) (*core.Plan, error) {
	return m.coord.CreatePlan(ctx, sessionID, objective, specs, cfg)
}

// Run creates a plan, subscribes to its event stream and starts execution.
// The returned channel closes after the plan's single terminal event.
func (m *PlanMesh) Run(
	ctx context.Context,
	sessionID string,
	objective string,
	specs []coordinator.StepSpec,
	cfg pattern.Config,
) (*core.Plan, <-chan core.Event, error) {
	return m.coord.Run(ctx, sessionID, objective, specs, cfg)
}

// RunSync is a synchronous helper that drains the event stream, accumulates
// events and returns the terminal plan snapshot. Plans with approval-gated
// steps should use Run instead; RunSync would block until decisions arrive
// from elsewhere.
func (m *PlanMesh) RunSync(
	ctx context.Context,
	sessionID string,
	objective string,
	specs []coordinator.StepSpec,
	cfg pattern.Config,
) (*core.Plan, []core.Event, error) {
	plan, eventsCh, err := m.coord.Run(ctx, sessionID, objective, specs, cfg)
	if err != nil {
		return nil, nil, err
	}

	// Collect all events until the stream closes on the terminal event
	var events []core.Event
	for {
		select {
		case <-ctx.Done():
			// Context cancelled - return events collected so far
			return plan, events, ctx.Err()

		case event, ok := <-eventsCh:
			if !ok {
				final, _, err := m.coord.GetPlan(ctx, plan.ID)
				if err != nil {
					return plan, events, err
				}
				return final, events, nil
			}
			events = append(events, event)
		}
	}
}

// Execute starts a previously created plan.
func (m *PlanMesh) Execute(ctx context.Context, planID string) error {
	return m.coord.Execute(ctx, planID)
}

// Status returns the current execution status snapshot of a plan.
func (m *PlanMesh) Status(ctx context.Context, planID string) (*core.ExecutionStatus, error) {
	return m.coord.Status(ctx, planID)
}

// Approve admits a step blocked at the human gate.
func (m *PlanMesh) Approve(stepID string) error { return m.gate.Approve(stepID) }

// Reject declines a step at the human gate, cancelling its dependents.
func (m *PlanMesh) Reject(stepID, reason string) error { return m.gate.Reject(stepID, reason) }

// Subscribe attaches an observer to a plan's event stream.
func (m *PlanMesh) Subscribe(planID string) (<-chan core.Event, func(), error) {
	return m.coord.Subscribe(planID)
}

// CancelPlan cancels an executing plan cooperatively.
func (m *PlanMesh) CancelPlan(planID string) error { return m.coord.CancelPlan(planID) }
