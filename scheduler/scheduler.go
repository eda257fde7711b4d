// Package scheduler maintains the dependency graph of a plan: cycle detection
// at creation time via topological sort, event-driven ready-set computation,
// and transitive dependent closures used for failure / rejection cascades.
//
// The scheduler never mutates step state; it computes over the step set owned
// by the coordinator, which is the sole writer.
package scheduler

import (
	"fmt"

	"github.com/hupe1980/planmesh/core"
)

// Scheduler indexes the steps of one plan. It is not safe for concurrent use;
// the coordinator's single-writer run loop is the only caller.
type Scheduler struct {
	steps      map[string]*core.Step
	order      []string            // plan creation order
	dependents map[string][]string // step id -> steps that depend on it
}

// New builds a scheduler over the initial step set, validating the graph.
// Duplicate ids, dependencies outside the plan and cycles are rejected with a
// ValidationError; cycles additionally match core.ErrCyclicDependency.
func New(steps []*core.Step) (*Scheduler, error) {
	s := &Scheduler{
		steps:      make(map[string]*core.Step, len(steps)),
		dependents: make(map[string][]string),
	}
	for _, step := range steps {
		if step.ID == "" {
			return nil, &core.ValidationError{Reason: "step has empty id"}
		}
		if _, dup := s.steps[step.ID]; dup {
			return nil, &core.ValidationError{Reason: fmt.Sprintf("duplicate step id %s", step.ID)}
		}
		s.steps[step.ID] = step
		s.order = append(s.order, step.ID)
	}
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := s.steps[dep]; !ok {
				return nil, &core.ValidationError{Reason: fmt.Sprintf("step %s depends on unknown step %s", step.ID, dep)}
			}
			s.dependents[dep] = append(s.dependents[dep], step.ID)
		}
	}
	if _, err := topoSort(s.steps); err != nil {
		return nil, &core.ValidationError{Reason: "dependency graph is not a DAG", Err: err}
	}
	return s, nil
}

// Add inserts a dynamically materialized step (Handoff / GroupChat). Its
// dependencies must already exist; since dynamic steps only ever depend on
// existing ones, no cycle can be introduced.
func (s *Scheduler) Add(step *core.Step) error {
	if _, dup := s.steps[step.ID]; dup {
		return &core.ValidationError{Reason: fmt.Sprintf("duplicate step id %s", step.ID)}
	}
	for _, dep := range step.DependsOn {
		if _, ok := s.steps[dep]; !ok {
			return &core.ValidationError{Reason: fmt.Sprintf("step %s depends on unknown step %s", step.ID, dep)}
		}
	}
	s.steps[step.ID] = step
	s.order = append(s.order, step.ID)
	for _, dep := range step.DependsOn {
		s.dependents[dep] = append(s.dependents[dep], step.ID)
	}
	return nil
}

// Step returns the step with the given id.
func (s *Scheduler) Step(id string) (*core.Step, bool) {
	st, ok := s.steps[id]
	return st, ok
}

// Order returns step ids in plan creation order.
func (s *Scheduler) Order() []string { return s.order }

// Len returns the current number of steps.
func (s *Scheduler) Len() int { return len(s.steps) }

// Ready computes the current ready set: steps whose status admits execution
// ({Pending without an approval requirement, Approved}) and whose
// dependencies are all terminal. Failed dependencies block readiness unless
// tolerateFailures is set (best-effort continuation); rejected or cancelled
// dependencies always block (the cascade cancels such dependents). Ids are
// returned in plan order.
func (s *Scheduler) Ready(tolerateFailures bool) []string {
	var ready []string
	for _, id := range s.order {
		step := s.steps[id]
		switch step.Status {
		case core.StepPending:
			if step.RequiresApproval {
				continue
			}
		case core.StepApproved:
		default:
			continue
		}
		if s.depsSatisfied(step, tolerateFailures) {
			ready = append(ready, id)
		}
	}
	return ready
}

func (s *Scheduler) depsSatisfied(step *core.Step, tolerateFailures bool) bool {
	for _, dep := range step.DependsOn {
		d, ok := s.steps[dep]
		if !ok || !d.Status.Terminal() {
			return false
		}
		switch d.Status {
		case core.StepRejected, core.StepCancelled:
			return false
		case core.StepFailed:
			if !tolerateFailures {
				return false
			}
		}
	}
	return true
}

// UpstreamFailures collects tolerated dependency failures for a step, in
// dependency declaration order. Used to build the explicit sentinel passed to
// dependents under best-effort continuation.
func (s *Scheduler) UpstreamFailures(step *core.Step) []core.UpstreamFailure {
	var failures []core.UpstreamFailure
	for _, dep := range step.DependsOn {
		if d, ok := s.steps[dep]; ok && d.Status == core.StepFailed {
			failures = append(failures, core.UpstreamFailure{StepID: d.ID, Agent: d.Agent, Error: d.Error})
		}
	}
	return failures
}

// DependentClosure returns the transitive closure of steps depending on id
// (excluding id itself), in plan order.
func (s *Scheduler) DependentClosure(id string) []string {
	seen := map[string]bool{}
	var visit func(string)
	visit = func(cur string) {
		for _, dep := range s.dependents[cur] {
			if !seen[dep] {
				seen[dep] = true
				visit(dep)
			}
		}
	}
	visit(id)

	var closure []string
	for _, sid := range s.order {
		if seen[sid] {
			closure = append(closure, sid)
		}
	}
	return closure
}

// AllTerminal reports whether every step has reached a terminal status.
func (s *Scheduler) AllTerminal() bool {
	for _, step := range s.steps {
		if !step.Status.Terminal() {
			return false
		}
	}
	return true
}

// topoSort runs Kahn's algorithm over the step set, returning a valid
// execution order or core.ErrCyclicDependency when the graph has a cycle.
func topoSort(steps map[string]*core.Step) ([]string, error) {
	indegree := make(map[string]int, len(steps))
	out := make(map[string][]string, len(steps))
	for id, step := range steps {
		if _, ok := indegree[id]; !ok {
			indegree[id] = 0
		}
		for _, dep := range step.DependsOn {
			out[dep] = append(out[dep], id)
			indegree[id]++
		}
	}

	var queue []string
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	sorted := make([]string, 0, len(steps))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		sorted = append(sorted, id)
		for _, next := range out[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if len(sorted) != len(steps) {
		return nil, core.ErrCyclicDependency
	}
	return sorted, nil
}
