package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/planmesh/capability"
	"github.com/hupe1980/planmesh/core"
	"github.com/hupe1980/planmesh/pattern"
	"github.com/hupe1980/planmesh/scheduler"
)

type cmdKind int

const (
	cmdDecide cmdKind = iota
	cmdCancel
)

// command is an external request applied by the run loop between completions.
type command struct {
	kind     cmdKind
	stepID   string
	approved bool
	reason   string
	resp     chan error
}

// completion is a dispatch goroutine reporting back to the run loop.
type completion struct {
	stepID   string
	result   *core.ExecutionResult
	err      error
	attempts int
}

// streamChunk carries one streamed fragment from a dispatch goroutine.
type streamChunk struct {
	stepID string
	chunk  core.Chunk
}

// planRun owns one executing plan. Its loop goroutine is the single writer of
// plan and step state; mu lets external callers take consistent snapshots.
type planRun struct {
	coord *Coordinator
	cfg   pattern.Config
	pat   pattern.Pattern

	mu             sync.RWMutex
	plan           *core.Plan
	sched          *scheduler.Scheduler
	messages       []core.Message
	completedOrder []string
	materialized   int
	started        bool
	running        map[string]context.CancelFunc
	subscribers    map[int]chan core.Event
	nextSub        int

	commands    chan command
	completions chan completion
	chunks      chan streamChunk
	done        chan struct{}
	cancelRun   context.CancelFunc
}

func newPlanRun(c *Coordinator, plan *core.Plan, sched *scheduler.Scheduler, pat pattern.Pattern, cfg pattern.Config) *planRun {
	return &planRun{
		coord:       c,
		cfg:         cfg,
		pat:         pat,
		plan:        plan,
		sched:       sched,
		running:     make(map[string]context.CancelFunc),
		subscribers: make(map[int]chan core.Event),
		commands:    make(chan command),
		completions: make(chan completion, cfg.MaxConcurrent+4),
		chunks:      make(chan streamChunk, 64),
		done:        make(chan struct{}),
	}
}

// start transitions the plan to running and launches the loop goroutine.
func (r *planRun) start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("plan %s already started", r.plan.ID)
	}
	if r.plan.Status != core.PlanPending {
		return fmt.Errorf("plan %s is %s, cannot start", r.plan.ID, r.plan.Status)
	}
	r.started = true
	now := time.Now().UTC()
	r.plan.Status = core.PlanRunning
	r.plan.Started = &now

	runCtx, cancel := context.WithCancel(ctx)
	r.cancelRun = cancel

	if err := r.persistLocked(runCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to persist plan start: %w", err)
	}
	r.publishLocked(core.NewStatusEvent(r.statusLocked()))

	go r.loop(runCtx)
	return nil
}

// loop is the single-writer event loop of one plan run.
func (r *planRun) loop(ctx context.Context) {
	defer r.cancelRun()

	if failErr := r.handle(ctx, func() error { return r.admitLocked(ctx) }); failErr != nil {
		r.shutdown(core.PlanFailed, failErr)
		return
	}
	if r.maybeFinish() {
		return
	}

	for {
		select {
		case <-ctx.Done():
			r.shutdown(core.PlanCancelled, nil)
			return

		case cmd := <-r.commands:
			if cmd.kind == cmdCancel {
				cmd.resp <- nil
				r.shutdown(core.PlanCancelled, nil)
				return
			}
			cmdErr, failErr := r.handleDecision(ctx, cmd)
			cmd.resp <- cmdErr
			if failErr != nil {
				r.shutdown(core.PlanFailed, failErr)
				return
			}
			if r.maybeFinish() {
				return
			}

		case comp := <-r.completions:
			if failErr := r.handle(ctx, func() error { return r.applyCompletionLocked(ctx, comp) }); failErr != nil {
				r.shutdown(core.PlanFailed, failErr)
				return
			}
			if r.maybeFinish() {
				return
			}

		case sc := <-r.chunks:
			r.publishChunk(sc)
		}
	}
}

// handle runs a locked mutation; a returned error fails the whole plan.
func (r *planRun) handle(_ context.Context, fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn()
}

// handleDecision applies an approve/reject command. cmdErr goes back to the
// caller and never fails the plan; failErr is set only when the post-decision
// persistence or admission fails.
func (r *planRun) handleDecision(ctx context.Context, cmd command) (cmdErr, failErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	step, ok := r.sched.Step(cmd.stepID)
	if !ok {
		return fmt.Errorf("step %s: %w", cmd.stepID, core.ErrStepNotFound), nil
	}
	if step.Approval != nil {
		return fmt.Errorf("step %s: %w", step.ID, core.ErrAlreadyDecided), nil
	}
	if step.Status != core.StepAwaitingApproval {
		return fmt.Errorf("step %s is %s, not awaiting approval: %w", step.ID, step.Status, core.ErrInvalidTransition), nil
	}
	if err := step.Decide(cmd.approved, cmd.reason); err != nil {
		return err, nil
	}

	if cmd.approved {
		if err := step.Transition(core.StepApproved); err != nil {
			return err, nil
		}
		r.coord.logger.Info("step approved", "plan_id", r.plan.ID, "step_id", step.ID)
	} else {
		if err := step.Transition(core.StepRejected); err != nil {
			return err, nil
		}
		if cmd.reason != "" {
			step.Error = cmd.reason
		}
		r.coord.logger.Info("step rejected", "plan_id", r.plan.ID, "step_id", step.ID, "reason", cmd.reason)
		r.cancelClosureLocked(step.ID)
	}
	r.publishLocked(core.NewTaskUpdateEvent(step))
	if step.Status.Terminal() {
		r.publishLocked(core.NewProgressEvent(r.statusLocked()))
	}

	if err := r.persistLocked(ctx); err != nil {
		return nil, err
	}
	return nil, r.admitLocked(ctx)
}

// applyCompletionLocked folds one executor outcome into the plan state,
// runs the pattern's completion hook and admits the next wave.
func (r *planRun) applyCompletionLocked(ctx context.Context, comp completion) error {
	step, ok := r.sched.Step(comp.stepID)
	if !ok || step.Status != core.StepRunning {
		return nil // late completion after cascade cancellation
	}
	if cancel, inflight := r.running[comp.stepID]; inflight {
		cancel()
		delete(r.running, comp.stepID)
	}
	step.Attempts = comp.attempts

	if comp.err != nil {
		switch {
		case errors.Is(comp.err, context.DeadlineExceeded):
			step.Error = fmt.Errorf("agent %s exceeded its time budget: %w", step.Agent, core.ErrTimeout).Error()
		case errors.Is(comp.err, context.Canceled):
			if err := step.Transition(core.StepCancelled); err != nil {
				return err
			}
			r.publishLocked(core.NewTaskUpdateEvent(step))
			r.publishLocked(core.NewProgressEvent(r.statusLocked()))
			return r.persistLocked(ctx)
		default:
			step.Error = comp.err.Error()
		}
		if err := step.Transition(core.StepFailed); err != nil {
			return err
		}
		r.coord.logger.Warn("step failed", "plan_id", r.plan.ID, "step_id", step.ID, "agent", step.Agent, "attempts", comp.attempts, "error", step.Error)
		if !r.tolerateFailures() {
			r.cascadeLocked(step)
		}
	} else {
		step.Result = comp.result
		if err := step.Transition(core.StepCompleted); err != nil {
			return err
		}
		r.completedOrder = append(r.completedOrder, step.ID)
		r.coord.logger.Debug("step completed", "plan_id", r.plan.ID, "step_id", step.ID, "agent", step.Agent)
	}
	r.publishLocked(core.NewTaskUpdateEvent(step))
	r.publishLocked(core.NewProgressEvent(r.statusLocked()))

	if hook, ok := r.pat.(pattern.CompletionHook); ok {
		proposal, err := hook.OnStepTerminal(r.snapshotLocked(), step)
		if err != nil {
			return err
		}
		if err := r.applyProposalLocked(ctx, step, proposal); err != nil {
			return err
		}
	}

	if err := r.persistLocked(ctx); err != nil {
		return err
	}
	return r.admitLocked(ctx)
}

// applyProposalLocked materializes hook output: new steps (handoff successors,
// chat turns) and conversation messages. Handoff targets are validated against
// the source capability's allow-list here, where the registry lives.
func (r *planRun) applyProposalLocked(ctx context.Context, source *core.Step, proposal *pattern.Proposal) error {
	if proposal == nil {
		return nil
	}
	for _, msg := range proposal.Messages {
		if err := r.appendMessageLocked(ctx, msg); err != nil {
			return err
		}
	}
	for _, next := range proposal.Steps {
		if _, ok := r.coord.registry.Resolve(next.Agent); !ok {
			return fmt.Errorf("proposed agent %s: %w", next.Agent, core.ErrUnknownCapability)
		}
		if r.pat.Name() == pattern.PatternHandoff {
			src, ok := r.coord.registry.Resolve(source.Agent)
			if !ok || !src.CanHandoffTo(next.Agent) {
				return fmt.Errorf("agent %s may not hand off to %s: %w", source.Agent, next.Agent, core.ErrHandoffPolicyViolation)
			}
		}
		if err := r.sched.Add(next); err != nil {
			return err
		}
		r.plan.StepIDs = append(r.plan.StepIDs, next.ID)
		r.materialized++
		r.coord.indexStep(next.ID, r.plan.ID)
		r.publishLocked(core.NewTaskUpdateEvent(next))
		r.coord.logger.Debug("step materialized", "plan_id", r.plan.ID, "step_id", next.ID, "agent", next.Agent)
	}
	return nil
}

// admitLocked computes the ready set, asks the pattern which steps to run now
// and dispatches them.
func (r *planRun) admitLocked(ctx context.Context) error {
	tolerate := r.tolerateFailures()
	snap := r.snapshotLocked()
	snap.Ready = r.sched.Ready(tolerate)

	for _, id := range r.pat.Admit(snap) {
		step, ok := r.sched.Step(id)
		if !ok {
			continue
		}
		cap, ok := r.coord.registry.Resolve(step.Agent)
		if !ok {
			return fmt.Errorf("agent %s: %w", step.Agent, core.ErrUnknownCapability)
		}

		stepCtx := r.pat.BuildContext(snap, step)
		if tolerate {
			if _, set := stepCtx[core.UpstreamFailuresKey]; !set {
				if failures := r.sched.UpstreamFailures(step); len(failures) > 0 {
					stepCtx[core.UpstreamFailuresKey] = failures
				}
			}
		}
		step.Context = stepCtx

		if err := step.Transition(core.StepRunning); err != nil {
			return err
		}
		r.publishLocked(core.NewTaskUpdateEvent(step))

		execCtx, cancel := context.WithCancel(ctx)
		r.running[step.ID] = cancel
		go r.dispatch(execCtx, cap, core.Task{
			StepID:      step.ID,
			Agent:       step.Agent,
			Description: step.Task,
			Context:     stepCtx,
		})
	}
	return r.persistLocked(ctx)
}

// dispatch runs one executor call (with timeout and retry policy) off the
// loop goroutine and reports the outcome over the completions channel.
func (r *planRun) dispatch(ctx context.Context, cap *capability.Capability, task core.Task) {
	timeout := r.cfg.TimeoutPerAgent
	if timeout <= 0 {
		timeout = r.coord.config.DefaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	result, attempts, err := r.execute(ctx, cap, task)
	r.coord.logger.Debug("executor call finished", "agent", task.Agent, "step_id", task.StepID, "duration", time.Since(start), "attempts", attempts, "success", err == nil)

	select {
	case r.completions <- completion{stepID: task.StepID, result: result, err: err, attempts: attempts}:
	case <-r.done:
	}
}

// execute invokes the capability, retrying idempotent executors on execution
// errors up to max_retries. Timeouts and cancellations are never retried.
func (r *planRun) execute(ctx context.Context, cap *capability.Capability, task core.Task) (*core.ExecutionResult, int, error) {
	maxAttempts := 1
	if cap.Idempotent && r.cfg.MaxRetries > 0 {
		maxAttempts += r.cfg.MaxRetries
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 && r.cfg.RetryBackoff > 0 {
			select {
			case <-ctx.Done():
				return nil, attempt - 1, ctx.Err()
			case <-time.After(r.cfg.RetryBackoff):
			}
		}
		result, err := r.invoke(ctx, cap.Executor, task)
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, attempt, err
		}
	}
	return nil, maxAttempts, &core.ExecutionError{Agent: task.Agent, Err: lastErr}
}

// invoke performs one executor call, preferring the streaming interface when
// enabled. Streamed chunks are forwarded to the run loop; the accumulated text
// backs the result when the final chunk carries none.
func (r *planRun) invoke(ctx context.Context, exec core.Executor, task core.Task) (*core.ExecutionResult, error) {
	se, ok := exec.(core.StreamingExecutor)
	if !ok || !r.coord.config.EnableStreaming {
		return exec.Execute(ctx, task)
	}

	chunks, errCh := se.ExecuteStreaming(ctx, task)
	var accumulated string
	var final *core.ExecutionResult
	for chunk := range chunks {
		accumulated += chunk.Text
		if chunk.Final && chunk.Result != nil {
			final = chunk.Result
		}
		select { // best effort; slow consumers drop partials
		case r.chunks <- streamChunk{stepID: task.StepID, chunk: chunk}:
		default:
		}
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	if final == nil {
		final = &core.ExecutionResult{Output: accumulated}
	}
	return final, nil
}

// cascadeLocked cancels all not-yet-started steps affected by a failure. The
// pattern may widen the default dependent closure (Sequential cancels every
// later step in plan order).
func (r *planRun) cascadeLocked(failed *core.Step) {
	var targets []string
	if fc, ok := r.pat.(pattern.FailureCascade); ok {
		targets = fc.CascadeTargets(r.snapshotLocked(), failed)
	} else {
		targets = r.sched.DependentClosure(failed.ID)
	}
	r.cancelStepsLocked(targets)
}

// cancelClosureLocked cancels the not-yet-started transitive dependents of a
// rejected step.
func (r *planRun) cancelClosureLocked(id string) {
	r.cancelStepsLocked(r.sched.DependentClosure(id))
}

func (r *planRun) cancelStepsLocked(ids []string) {
	for _, id := range ids {
		step, ok := r.sched.Step(id)
		if !ok || step.Status.Terminal() || step.Status == core.StepRunning {
			continue
		}
		if err := step.Transition(core.StepCancelled); err != nil {
			continue
		}
		r.publishLocked(core.NewTaskUpdateEvent(step))
	}
}

// maybeFinish finalizes the run once every step is terminal. Returns true when
// the run is over and the loop must exit.
func (r *planRun) maybeFinish() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.sched.AllTerminal() {
		return false
	}

	var anyCompleted, anyFailed, anyRejected bool
	var firstFailure string
	for _, id := range r.sched.Order() {
		step, _ := r.sched.Step(id)
		switch step.Status {
		case core.StepCompleted:
			anyCompleted = true
		case core.StepFailed:
			anyFailed = true
			if firstFailure == "" {
				firstFailure = step.Error
			}
		case core.StepRejected:
			anyRejected = true
			if firstFailure == "" {
				firstFailure = fmt.Sprintf("step %s rejected", step.ID)
			}
		}
	}

	status := core.PlanCompleted
	switch {
	case anyFailed || anyRejected:
		status = core.PlanFailed
		if pc, ok := r.pat.(pattern.PartialCompletion); ok && pc.AllowPartial() && anyCompleted {
			status = core.PlanCompleted
		}
	case !anyCompleted:
		status = core.PlanCancelled
	}

	if status == core.PlanFailed && r.plan.Error == "" {
		r.plan.Error = firstFailure
	}
	if status == core.PlanCompleted {
		if agg, ok := r.pat.(pattern.Aggregator); ok {
			aggregate, err := agg.Aggregate(r.snapshotLocked())
			if err != nil {
				status = core.PlanFailed
				r.plan.Error = fmt.Sprintf("aggregation failed: %v", err)
			} else {
				r.plan.Aggregate = aggregate
			}
		}
	}

	r.finalizeLocked(status)
	return true
}

// shutdown winds the run down on cancellation or a fatal error: in-flight
// steps get a cooperative abort and a grace period to report back, then
// everything non-terminal is resolved and the run finalizes.
func (r *planRun) shutdown(status core.PlanStatus, cause error) {
	r.mu.Lock()
	if cause != nil && r.plan.Error == "" {
		r.plan.Error = cause.Error()
	}
	inflight := len(r.running)
	for _, cancel := range r.running {
		cancel()
	}
	r.mu.Unlock()

	deadline := time.After(r.coord.config.GracePeriod)
	for inflight > 0 {
		select {
		case comp := <-r.completions:
			r.mu.Lock()
			if step, ok := r.sched.Step(comp.stepID); ok && step.Status == core.StepRunning {
				delete(r.running, comp.stepID)
				step.Attempts = comp.attempts
				if comp.err == nil {
					step.Result = comp.result
					if err := step.Transition(core.StepCompleted); err == nil {
						r.completedOrder = append(r.completedOrder, step.ID)
					}
				} else {
					_ = step.Transition(core.StepCancelled)
				}
				r.publishLocked(core.NewTaskUpdateEvent(step))
			}
			inflight--
			r.mu.Unlock()
		case <-deadline:
			inflight = 0
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.sched.Order() {
		step, _ := r.sched.Step(id)
		if step.Status.Terminal() {
			continue
		}
		if step.Status == core.StepRunning {
			step.Error = fmt.Errorf("step did not stop within the grace period: %w", core.ErrTimeout).Error()
			_ = step.Transition(core.StepFailed)
		} else {
			_ = step.Transition(core.StepCancelled)
		}
		r.publishLocked(core.NewTaskUpdateEvent(step))
	}
	r.finalizeLocked(status)
}

// finalizeLocked stamps the terminal plan status, persists, emits the single
// terminal event and detaches the run. Persistence errors here are logged, not
// surfaced; the in-memory state already reached its terminal shape.
func (r *planRun) finalizeLocked(status core.PlanStatus) {
	select {
	case <-r.done:
		return // already finalized
	default:
	}

	now := time.Now().UTC()
	r.plan.Status = status
	r.plan.Finished = &now

	// Persist with a fresh context: the run context may already be cancelled.
	persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.persistLocked(persistCtx); err != nil {
		r.coord.logger.Error("failed to persist terminal plan state", "plan_id", r.plan.ID, "error", err)
	}

	final := r.statusLocked()
	r.publishLocked(core.NewStatusEvent(final))
	r.publishLocked(core.NewCompletedEvent(final))

	close(r.done)
	for id, ch := range r.subscribers {
		close(ch)
		delete(r.subscribers, id)
	}
	r.coord.removeRun(r.plan.ID)

	var dur time.Duration
	if r.plan.Started != nil {
		dur = now.Sub(*r.plan.Started)
	}
	r.coord.logger.Info("plan finished", "plan_id", r.plan.ID, "status", status, "steps", r.sched.Len(), "duration", dur)
}

// submit routes an external command into the run loop.
func (r *planRun) submit(cmd command) error {
	r.mu.RLock()
	started := r.started
	r.mu.RUnlock()
	if !started {
		return fmt.Errorf("plan %s: %w", r.plan.ID, core.ErrPlanNotActive)
	}

	cmd.resp = make(chan error, 1)
	select {
	case r.commands <- cmd:
		return <-cmd.resp
	case <-r.done:
		return fmt.Errorf("plan %s: %w", r.plan.ID, core.ErrPlanNotActive)
	}
}

// cancel requests cooperative plan cancellation.
func (r *planRun) cancel() error {
	return r.submit(command{kind: cmdCancel})
}

// subscribe attaches an event observer; the cancel function detaches it.
func (r *planRun) subscribe() (<-chan core.Event, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan core.Event, r.coord.config.EventBufferSize)
	select {
	case <-r.done:
		close(ch)
		return ch, func() {}
	default:
	}

	id := r.nextSub
	r.nextSub++
	r.subscribers[id] = ch
	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if sub, ok := r.subscribers[id]; ok {
			delete(r.subscribers, id)
			close(sub)
		}
	}
}

// executing reports whether the run loop is live.
func (r *planRun) executing() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.started {
		return false
	}
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// snapshot returns deep copies of the plan and its steps in plan order.
func (r *planRun) snapshot() (*core.Plan, []*core.Step) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	steps := make([]*core.Step, 0, r.sched.Len())
	for _, id := range r.sched.Order() {
		if step, ok := r.sched.Step(id); ok {
			steps = append(steps, step.Clone())
		}
	}
	return r.plan.Clone(), steps
}

// statusSnapshot returns the current ExecutionStatus under the read lock.
func (r *planRun) statusSnapshot() *core.ExecutionStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.statusLocked()
}

// snapshotLocked builds the read-only view handed to the pattern. The
// contained pointers reference live state; patterns must not mutate them.
func (r *planRun) snapshotLocked() *pattern.Snapshot {
	steps := make(map[string]*core.Step, r.sched.Len())
	for _, id := range r.sched.Order() {
		if step, ok := r.sched.Step(id); ok {
			steps[id] = step
		}
	}
	return &pattern.Snapshot{
		Plan:           r.plan,
		Steps:          steps,
		Order:          r.sched.Order(),
		Running:        len(r.running),
		CompletedOrder: r.completedOrder,
		Messages:       r.messages,
		Materialized:   r.materialized,
	}
}

func (r *planRun) statusLocked() *core.ExecutionStatus {
	var steps []*core.Step
	for _, id := range r.sched.Order() {
		if step, ok := r.sched.Step(id); ok {
			steps = append(steps, step)
		}
	}
	current := ""
	for _, step := range steps {
		if step.Status == core.StepRunning {
			current = step.ID
			break
		}
	}
	return buildStatus(r.plan, steps, r.sched.Order(), current)
}

// tolerateFailures resolves the pattern's best-effort continuation flag.
func (r *planRun) tolerateFailures() bool {
	if tf, ok := r.pat.(pattern.TolerateFailures); ok {
		return tf.TolerateFailures()
	}
	return false
}

// persist writes the plan document; callers outside the loop (CreatePlan).
func (r *planRun) persist(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.persistLocked(ctx)
}

func (r *planRun) persistLocked(ctx context.Context) error {
	doc := planDocument{Plan: r.plan, Config: r.cfg}
	for _, id := range r.sched.Order() {
		if step, ok := r.sched.Step(id); ok {
			doc.Steps = append(doc.Steps, step)
		}
	}
	if err := r.coord.store.Upsert(ctx, r.plan.SessionID, core.DocKindPlan, r.plan.ID, doc); err != nil {
		return fmt.Errorf("failed to persist plan %s: %w", r.plan.ID, err)
	}
	return nil
}

// appendMessage persists a conversation message and records it in the run.
func (r *planRun) appendMessage(ctx context.Context, msg core.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appendMessageLocked(ctx, msg)
}

func (r *planRun) appendMessageLocked(ctx context.Context, msg core.Message) error {
	if err := r.coord.store.Upsert(ctx, msg.SessionID, core.DocKindMessage, msg.ID, msg); err != nil {
		return fmt.Errorf("failed to persist message %s: %w", msg.ID, err)
	}
	r.messages = append(r.messages, msg)
	return nil
}

// publishChunk forwards a streamed fragment as a partial task_update event.
func (r *planRun) publishChunk(sc streamChunk) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	step, ok := r.sched.Step(sc.stepID)
	if !ok || sc.chunk.Text == "" {
		return
	}
	r.publishLocked(core.NewPartialOutputEvent(step, sc.chunk))
}

// publishLocked delivers an event to every subscriber without blocking. A
// subscriber whose buffer is full misses intermediate events; the terminal
// event instead evicts the oldest buffered event so the stream always ends
// with it.
func (r *planRun) publishLocked(event core.Event) {
	for _, ch := range r.subscribers {
		for {
			select {
			case ch <- event:
			default:
				if event.IsTerminal() {
					select {
					case <-ch: // make room, oldest first
					default:
					}
					continue
				}
			}
			break
		}
	}
}

// buildStatus derives an ExecutionStatus snapshot from plan and step state.
func buildStatus(plan *core.Plan, steps []*core.Step, order []string, current string) *core.ExecutionStatus {
	status := &core.ExecutionStatus{
		PlanID:        plan.ID,
		Status:        plan.Status,
		CurrentStepID: current,
		Started:       plan.Started,
		Finished:      plan.Finished,
	}
	terminal := 0
	for _, step := range steps {
		if step.Status.Terminal() {
			terminal++
		}
		switch step.Status {
		case core.StepCompleted:
			status.Completed = append(status.Completed, step.ID)
		case core.StepFailed:
			status.Failed = append(status.Failed, step.ID)
		case core.StepRejected:
			status.Rejected = append(status.Rejected, step.ID)
		}
	}
	if len(order) > 0 {
		status.Progress = float64(terminal) / float64(len(order))
	}
	return status
}
