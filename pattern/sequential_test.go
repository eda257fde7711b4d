package pattern

import (
	"testing"

	"github.com/hupe1980/planmesh/core"
	"github.com/hupe1980/planmesh/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotOf(plan *core.Plan, steps ...*core.Step) *Snapshot {
	snap := &Snapshot{Plan: plan, Steps: map[string]*core.Step{}}
	for _, step := range steps {
		snap.Steps[step.ID] = step
		snap.Order = append(snap.Order, step.ID)
	}
	return snap
}

func TestSequential_AdmitInOrder(t *testing.T) {
	seq := NewSequential(Config{Pattern: PatternSequential})
	plan := testutil.NewPlan("plan-1", "obj", PatternSequential)

	snap := snapshotOf(plan,
		testutil.NewStepBuilder("a", "agent").Build(),
		testutil.NewStepBuilder("b", "agent").Build(),
	)
	snap.Ready = []string{"a", "b"}

	assert.Equal(t, []string{"a"}, seq.Admit(snap), "only the first step in plan order")
}

func TestSequential_AdmitSingleFlight(t *testing.T) {
	seq := NewSequential(Config{Pattern: PatternSequential})
	plan := testutil.NewPlan("plan-1", "obj", PatternSequential)

	snap := snapshotOf(plan, testutil.NewStepBuilder("a", "agent").Status(core.StepRunning).Build())
	snap.Running = 1

	assert.Empty(t, seq.Admit(snap))
}

func TestSequential_AdmitHaltsAtGate(t *testing.T) {
	seq := NewSequential(Config{Pattern: PatternSequential})
	plan := testutil.NewPlan("plan-1", "obj", PatternSequential)

	snap := snapshotOf(plan,
		testutil.NewStepBuilder("a", "agent").Status(core.StepAwaitingApproval).RequiresApproval().Build(),
		testutil.NewStepBuilder("b", "agent").Build(),
	)
	snap.Ready = []string{"b"}

	assert.Empty(t, seq.Admit(snap), "a later ready step must not overtake the gated one")
}

func TestSequential_BuildContextChainsOutputs(t *testing.T) {
	seq := NewSequential(Config{Pattern: PatternSequential})
	plan := testutil.NewPlan("plan-1", "the objective", PatternSequential)

	a := testutil.NewStepBuilder("a", "agent").Status(core.StepCompleted).Output("out-a").Build()
	b := testutil.NewStepBuilder("b", "agent").Status(core.StepCompleted).Output("out-b").Build()
	c := testutil.NewStepBuilder("c", "agent").Build()
	snap := snapshotOf(plan, a, b, c)

	ctx := seq.BuildContext(snap, c)
	assert.Equal(t, "the objective", ctx["objective"])
	assert.Equal(t, map[string]string{"a": "out-a", "b": "out-b"}, ctx["outputs"])
}

func TestSequential_BuildContextBounded(t *testing.T) {
	seq := NewSequential(Config{Pattern: PatternSequential, MaxContextBytes: 5})
	plan := testutil.NewPlan("plan-1", "obj", PatternSequential)

	a := testutil.NewStepBuilder("a", "agent").Status(core.StepCompleted).Output("aaaa").Build()
	b := testutil.NewStepBuilder("b", "agent").Status(core.StepCompleted).Output("bbbb").Build()
	c := testutil.NewStepBuilder("c", "agent").Build()
	snap := snapshotOf(plan, a, b, c)

	ctx := seq.BuildContext(snap, c)
	assert.Equal(t, map[string]string{"b": "bbbb"}, ctx["outputs"], "oldest output dropped first")
}

func TestSequential_BuildContextOversizedNewestTruncated(t *testing.T) {
	seq := NewSequential(Config{Pattern: PatternSequential, MaxContextBytes: 5})
	plan := testutil.NewPlan("plan-1", "obj", PatternSequential)

	a := testutil.NewStepBuilder("a", "agent").Status(core.StepCompleted).Output("aaaa").Build()
	b := testutil.NewStepBuilder("b", "agent").Status(core.StepCompleted).Output("bbbbbbbb").Build()
	c := testutil.NewStepBuilder("c", "agent").Build()
	snap := snapshotOf(plan, a, b, c)

	ctx := seq.BuildContext(snap, c)
	assert.Equal(t, map[string]string{"b": "bbbbb"}, ctx["outputs"],
		"an oversized newest output is truncated, not dropped")
}

func TestSequential_BuildContextUpstreamFailures(t *testing.T) {
	seq := NewSequential(Config{Pattern: PatternSequential, FailFast: false})
	plan := testutil.NewPlan("plan-1", "obj", PatternSequential)

	a := testutil.NewStepBuilder("a", "alpha").Status(core.StepFailed).Error("boom").Build()
	b := testutil.NewStepBuilder("b", "beta").Build()
	snap := snapshotOf(plan, a, b)

	ctx := seq.BuildContext(snap, b)
	failures, ok := ctx[core.UpstreamFailuresKey].([]core.UpstreamFailure)
	require.True(t, ok)
	require.Len(t, failures, 1)
	assert.Equal(t, "boom", failures[0].Error)
	assert.Nil(t, ctx["outputs"], "no partial output from the failed step")
}

func TestSequential_TolerateFailures(t *testing.T) {
	assert.False(t, NewSequential(Config{Pattern: PatternSequential, FailFast: true}).TolerateFailures())
	assert.True(t, NewSequential(Config{Pattern: PatternSequential}).TolerateFailures())
}

func TestSequential_CascadeTargets(t *testing.T) {
	seq := NewSequential(Config{Pattern: PatternSequential, FailFast: true})
	plan := testutil.NewPlan("plan-1", "obj", PatternSequential)

	a := testutil.NewStepBuilder("a", "agent").Status(core.StepCompleted).Build()
	b := testutil.NewStepBuilder("b", "agent").Status(core.StepFailed).Build()
	c := testutil.NewStepBuilder("c", "agent").Build()
	d := testutil.NewStepBuilder("d", "agent").Build()
	snap := snapshotOf(plan, a, b, c, d)

	assert.Equal(t, []string{"c", "d"}, seq.CascadeTargets(snap, b),
		"every later step is cancelled even without explicit edges")
}
