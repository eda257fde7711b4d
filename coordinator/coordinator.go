package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/planmesh/capability"
	"github.com/hupe1980/planmesh/core"
	"github.com/hupe1980/planmesh/logging"
	"github.com/hupe1980/planmesh/pattern"
	"github.com/hupe1980/planmesh/scheduler"
	"github.com/hupe1980/planmesh/store"
)

// Config defines tuning parameters for the coordinator's operational behavior.
type Config struct {
	// EventBufferSize sets the channel buffer size for subscriber event
	// delivery. Slow subscribers whose buffer fills up miss intermediate
	// events; the terminal event is always delivered.
	EventBufferSize int

	// GracePeriod bounds how long cancellation waits for in-flight steps to
	// acknowledge the cooperative abort before marking them failed.
	GracePeriod time.Duration

	// DefaultTimeout bounds each executor call when the plan config does not
	// set timeout_per_agent. Zero means no timeout.
	DefaultTimeout time.Duration

	// EnableStreaming forwards incremental executor chunks to subscribers as
	// partial task_update events when a capability supports streaming.
	EnableStreaming bool
}

// DefaultConfig provides production-ready default configuration values.
var DefaultConfig = Config{
	EventBufferSize: 100,
	GracePeriod:     30 * time.Second,
	EnableStreaming: true,
}

// Options configures a Coordinator instance using the functional options
// pattern. All services have in-memory defaults suitable for development and
// testing.
type Options struct {
	// Config contains operational parameters for the coordinator behavior.
	Config Config

	// Store persists plans and messages. Defaults to the in-memory
	// implementation if not provided.
	Store core.DocumentStore

	// Registry resolves agent names to capability descriptors. Defaults to an
	// empty registry if not provided.
	Registry *capability.Registry

	// Logger provides structured logging. Defaults to NoOp if nil.
	Logger logging.Logger
}

// StepSpec is the caller-facing description of one step when creating a plan.
type StepSpec struct {
	// ID is optional; a unique id is generated when empty.
	ID string `json:"id,omitempty"`
	// Agent names the registered capability executing the step.
	Agent string `json:"agent"`
	// Task is the step's task description.
	Task string `json:"task"`
	// DependsOn lists step ids (or spec IDs) that must be terminal first.
	DependsOn []string `json:"depends_on,omitempty"`
	// RequiresApproval gates the step behind a human decision.
	RequiresApproval bool `json:"requires_approval,omitempty"`
}

// planDocument is the persisted layout: one document per plan embedding its
// steps and pattern configuration.
type planDocument struct {
	Plan   *core.Plan     `json:"plan"`
	Steps  []*core.Step   `json:"steps"`
	Config pattern.Config `json:"config"`
}

// Coordinator owns all mutable plan state. It validates and persists plans at
// creation, drives execution through per-plan run loops, and exposes the
// command surface (approve / reject / cancel / subscribe).
type Coordinator struct {
	store    core.DocumentStore
	registry *capability.Registry
	logger   logging.Logger
	config   Config

	mu           sync.RWMutex
	runs         map[string]*planRun
	stepIndex    map[string]string // step id -> plan id
	planSessions map[string]string // plan id -> session id
}

// New creates a Coordinator with sensible defaults and optional configuration.
func New(optFns ...func(o *Options)) *Coordinator {
	opts := Options{
		Config:   DefaultConfig,
		Store:    store.NewInMemoryStore(),
		Registry: capability.NewRegistry(),
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Config.EventBufferSize <= 0 {
		opts.Config.EventBufferSize = DefaultConfig.EventBufferSize
	}
	if opts.Config.GracePeriod <= 0 {
		opts.Config.GracePeriod = DefaultConfig.GracePeriod
	}
	return &Coordinator{
		store:        opts.Store,
		registry:     opts.Registry,
		logger:       opts.Logger,
		config:       opts.Config,
		runs:         make(map[string]*planRun),
		stepIndex:    make(map[string]string),
		planSessions: make(map[string]string),
	}
}

// Registry returns the capability registry for registration at wiring time.
func (c *Coordinator) Registry() *capability.Registry { return c.registry }

// CreatePlan validates and persists a new plan without starting it. Steps are
// built from specs; patterns that seed their own steps (Handoff, GroupChat)
// accept an empty spec list. Malformed plans (unknown agents, dependencies
// outside the plan, cycles) are rejected with a ValidationError and never
// retried; cyclic graphs additionally match core.ErrCyclicDependency.
func (c *Coordinator) CreatePlan(ctx context.Context, sessionID, objective string, specs []StepSpec, cfg pattern.Config) (*core.Plan, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, &core.ValidationError{Reason: "invalid pattern config", Err: err}
	}
	if err := c.validateAgents(cfg, specs); err != nil {
		return nil, err
	}

	// The priority manager speaks in capability priority order.
	if cfg.Pattern == pattern.PatternGroupChat && cfg.Manager == pattern.ManagerPriority {
		cfg.Agents = c.sortByPriority(cfg.Agents)
	}

	pat, err := pattern.New(cfg)
	if err != nil {
		return nil, &core.ValidationError{Reason: "invalid pattern config", Err: err}
	}

	plan := core.NewPlan(sessionID, objective, cfg.Pattern)

	steps, err := buildSteps(plan, pat, specs)
	if err != nil {
		return nil, err
	}

	sched, err := scheduler.New(steps)
	if err != nil {
		return nil, err
	}
	plan.StepIDs = append([]string(nil), sched.Order()...)

	// Steps flagged requires_approval move to the gate immediately so they
	// show up in pending listings before their dependencies finish.
	for _, step := range steps {
		if step.RequiresApproval {
			if err := step.Transition(core.StepAwaitingApproval); err != nil {
				return nil, err
			}
		}
	}

	run := newPlanRun(c, plan, sched, pat, cfg)

	if err := run.persist(ctx); err != nil {
		return nil, fmt.Errorf("failed to persist plan: %w", err)
	}
	if err := run.appendMessage(ctx, core.NewMessage(sessionID, plan.ID, "user", objective)); err != nil {
		return nil, fmt.Errorf("failed to persist objective message: %w", err)
	}

	c.mu.Lock()
	c.runs[plan.ID] = run
	c.planSessions[plan.ID] = sessionID
	for _, step := range steps {
		c.stepIndex[step.ID] = plan.ID
	}
	c.mu.Unlock()

	c.logger.Info("plan created", "plan_id", plan.ID, "session_id", sessionID, "pattern", cfg.Pattern, "steps", len(steps))
	return plan.Clone(), nil
}

// Execute starts the asynchronous run loop for a created plan. The plan's
// lifetime is bound to ctx; cancelling it cancels the plan.
func (c *Coordinator) Execute(ctx context.Context, planID string) error {
	c.mu.RLock()
	run, ok := c.runs[planID]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("plan %s: %w", planID, core.ErrPlanNotFound)
	}
	return run.start(ctx)
}

// Run is a convenience wrapper: create the plan, subscribe to its events and
// start execution. The returned channel is closed after the terminal event.
func (c *Coordinator) Run(ctx context.Context, sessionID, objective string, specs []StepSpec, cfg pattern.Config) (*core.Plan, <-chan core.Event, error) {
	plan, err := c.CreatePlan(ctx, sessionID, objective, specs, cfg)
	if err != nil {
		return nil, nil, err
	}
	events, _, err := c.Subscribe(plan.ID)
	if err != nil {
		return nil, nil, err
	}
	if err := c.Execute(ctx, plan.ID); err != nil {
		return nil, nil, err
	}
	return plan, events, nil
}

// GetPlan returns a snapshot of the plan and its steps.
func (c *Coordinator) GetPlan(ctx context.Context, planID string) (*core.Plan, []*core.Step, error) {
	c.mu.RLock()
	run, active := c.runs[planID]
	sessionID, known := c.planSessions[planID]
	c.mu.RUnlock()

	if active {
		plan, steps := run.snapshot()
		return plan, steps, nil
	}
	if !known {
		return nil, nil, fmt.Errorf("plan %s: %w", planID, core.ErrPlanNotFound)
	}
	var doc planDocument
	if err := c.store.Get(ctx, sessionID, core.DocKindPlan, planID, &doc); err != nil {
		return nil, nil, fmt.Errorf("failed to load plan %s: %w", planID, err)
	}
	return doc.Plan, doc.Steps, nil
}

// Status returns the current ExecutionStatus snapshot of a plan.
func (c *Coordinator) Status(ctx context.Context, planID string) (*core.ExecutionStatus, error) {
	c.mu.RLock()
	run, active := c.runs[planID]
	c.mu.RUnlock()

	if active {
		return run.statusSnapshot(), nil
	}
	plan, steps, err := c.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	return buildStatus(plan, steps, orderedIDs(steps), ""), nil
}

// Approve admits a step blocked at the human gate. Deciding an
// already-decided step fails with core.ErrAlreadyDecided and changes nothing.
func (c *Coordinator) Approve(stepID string) error {
	return c.decide(stepID, true, "")
}

// Reject declines a step at the human gate. All not-yet-started steps in the
// rejected step's transitive dependent closure are cancelled; in-flight or
// completed steps are unaffected.
func (c *Coordinator) Reject(stepID, reason string) error {
	return c.decide(stepID, false, reason)
}

func (c *Coordinator) decide(stepID string, approved bool, reason string) error {
	run, err := c.runForStep(stepID)
	if err != nil {
		return err
	}
	return run.submit(command{kind: cmdDecide, stepID: stepID, approved: approved, reason: reason})
}

// PendingApprovals lists steps of a plan currently awaiting a human decision.
func (c *Coordinator) PendingApprovals(ctx context.Context, planID string) ([]*core.Step, error) {
	_, steps, err := c.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	var pending []*core.Step
	for _, step := range steps {
		if step.Status == core.StepAwaitingApproval {
			pending = append(pending, step)
		}
	}
	return pending, nil
}

// CancelPlan cancels a plan: all non-terminal steps become Cancelled and
// in-flight executor calls receive a cooperative abort signal. The call
// returns once the cancellation command is accepted; the run winds down
// within the configured grace period.
func (c *Coordinator) CancelPlan(planID string) error {
	c.mu.RLock()
	run, ok := c.runs[planID]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("plan %s: %w", planID, core.ErrPlanNotFound)
	}
	return run.cancel()
}

// Subscribe registers an observer for a plan's ordered event stream. The
// returned cancel function detaches the subscriber; the channel is closed
// after the plan's single terminal event. A subscriber that falls behind its
// buffer misses intermediate events but always receives the terminal event.
func (c *Coordinator) Subscribe(planID string) (<-chan core.Event, func(), error) {
	c.mu.RLock()
	run, ok := c.runs[planID]
	c.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("plan %s: %w", planID, core.ErrPlanNotActive)
	}
	events, cancel := run.subscribe()
	return events, cancel, nil
}

// ListPlans returns all plans persisted for a session, in creation order.
func (c *Coordinator) ListPlans(ctx context.Context, sessionID string) ([]*core.Plan, error) {
	raws, err := c.store.QueryBySession(ctx, sessionID, core.DocKindPlan)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	plans := make([]*core.Plan, 0, len(raws))
	for _, raw := range raws {
		var doc planDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode plan document: %w", err)
		}
		plans = append(plans, doc.Plan)
	}
	return plans, nil
}

// Messages returns the conversation log persisted for a session, in order.
func (c *Coordinator) Messages(ctx context.Context, sessionID string) ([]core.Message, error) {
	raws, err := c.store.QueryBySession(ctx, sessionID, core.DocKindMessage)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	msgs := make([]core.Message, 0, len(raws))
	for _, raw := range raws {
		var msg core.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("failed to decode message document: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// DeleteSession removes every persisted document of a session. Plans of the
// session must not be executing.
func (c *Coordinator) DeleteSession(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	for planID, sid := range c.planSessions {
		if sid != sessionID {
			continue
		}
		if run, active := c.runs[planID]; active && run.executing() {
			c.mu.Unlock()
			return fmt.Errorf("plan %s of session %s is executing", planID, sessionID)
		}
		delete(c.runs, planID)
		delete(c.planSessions, planID)
		for stepID, pid := range c.stepIndex {
			if pid == planID {
				delete(c.stepIndex, stepID)
			}
		}
	}
	c.mu.Unlock()
	return c.store.DeleteSession(ctx, sessionID)
}

// runForStep resolves the active run owning a step.
func (c *Coordinator) runForStep(stepID string) (*planRun, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	planID, ok := c.stepIndex[stepID]
	if !ok {
		return nil, fmt.Errorf("step %s: %w", stepID, core.ErrStepNotFound)
	}
	run, active := c.runs[planID]
	if !active {
		return nil, fmt.Errorf("plan %s: %w", planID, core.ErrPlanNotActive)
	}
	return run, nil
}

// indexStep records a dynamically materialized step.
func (c *Coordinator) indexStep(stepID, planID string) {
	c.mu.Lock()
	c.stepIndex[stepID] = planID
	c.mu.Unlock()
}

// removeRun detaches a finished run; the persisted document remains.
func (c *Coordinator) removeRun(planID string) {
	c.mu.Lock()
	delete(c.runs, planID)
	c.mu.Unlock()
}

// validateAgents checks every referenced agent against the registry.
func (c *Coordinator) validateAgents(cfg pattern.Config, specs []StepSpec) error {
	check := func(name string) error {
		if _, ok := c.registry.Resolve(name); !ok {
			return &core.ValidationError{Reason: fmt.Sprintf("agent %s", name), Err: core.ErrUnknownCapability}
		}
		return nil
	}
	for _, spec := range specs {
		if err := check(spec.Agent); err != nil {
			return err
		}
	}
	if cfg.Pattern == pattern.PatternHandoff {
		if err := check(cfg.InitialAgent); err != nil {
			return err
		}
	}
	for _, agent := range cfg.Agents {
		if err := check(agent); err != nil {
			return err
		}
	}
	return nil
}

// sortByPriority orders agent names by their capability priority (stable,
// lower first).
func (c *Coordinator) sortByPriority(agents []string) []string {
	sorted := append([]string(nil), agents...)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := 0, 0
		if cap, ok := c.registry.Resolve(sorted[i]); ok {
			pi = cap.Priority
		}
		if cap, ok := c.registry.Resolve(sorted[j]); ok {
			pj = cap.Priority
		}
		return pi < pj
	})
	return sorted
}

// buildSteps materializes the initial step set from specs, or from the
// pattern's seeder when no specs are given.
func buildSteps(plan *core.Plan, pat pattern.Pattern, specs []StepSpec) ([]*core.Step, error) {
	if len(specs) == 0 {
		if seeder, ok := pat.(pattern.Seeder); ok {
			return seeder.InitialSteps(plan), nil
		}
		return nil, &core.ValidationError{Reason: "plan has no steps"}
	}

	// Spec ids may be caller-chosen labels; resolve dependencies after
	// assigning final ids.
	ids := make(map[string]string, len(specs))
	steps := make([]*core.Step, 0, len(specs))
	for _, spec := range specs {
		step := core.NewStep(plan.ID, spec.Agent, spec.Task)
		if spec.ID != "" {
			if _, dup := ids[spec.ID]; dup {
				return nil, &core.ValidationError{Reason: fmt.Sprintf("duplicate step id %s", spec.ID)}
			}
			step.ID = spec.ID
		}
		step.RequiresApproval = spec.RequiresApproval
		ids[spec.ID] = step.ID
		steps = append(steps, step)
	}
	for i, spec := range specs {
		for _, dep := range spec.DependsOn {
			resolved, ok := ids[dep]
			if !ok {
				resolved = dep // may be a final id already; scheduler validates
			}
			steps[i].DependsOn = append(steps[i].DependsOn, resolved)
		}
	}
	return steps, nil
}

// orderedIDs lists step ids in the given slice order.
func orderedIDs(steps []*core.Step) []string {
	ids := make([]string, 0, len(steps))
	for _, step := range steps {
		ids = append(ids, step.ID)
	}
	return ids
}
