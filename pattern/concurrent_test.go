package pattern

import (
	"testing"

	"github.com/hupe1980/planmesh/core"
	"github.com/hupe1980/planmesh/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrent_AdmitRespectsBudget(t *testing.T) {
	con := NewConcurrent(Config{Pattern: PatternConcurrent, MaxConcurrent: 2})
	plan := testutil.NewPlan("plan-1", "obj", PatternConcurrent)

	snap := snapshotOf(plan,
		testutil.NewStepBuilder("a", "agent").Build(),
		testutil.NewStepBuilder("b", "agent").Build(),
		testutil.NewStepBuilder("c", "agent").Build(),
	)
	snap.Ready = []string{"a", "b", "c"}

	assert.Equal(t, []string{"a", "b"}, con.Admit(snap))

	snap.Running = 1
	assert.Equal(t, []string{"a"}, con.Admit(snap))

	snap.Running = 2
	assert.Empty(t, con.Admit(snap))
}

func TestConcurrent_BuildContextFromDependencies(t *testing.T) {
	con := NewConcurrent(Config{Pattern: PatternConcurrent})
	plan := testutil.NewPlan("plan-1", "obj", PatternConcurrent)

	a := testutil.NewStepBuilder("a", "agent").Status(core.StepCompleted).Output("out-a").Build()
	b := testutil.NewStepBuilder("b", "agent").Status(core.StepCompleted).Output("out-b").Build()
	c := testutil.NewStepBuilder("c", "agent").DependsOn("a").Build()
	snap := snapshotOf(plan, a, b, c)

	ctx := con.BuildContext(snap, c)
	assert.Equal(t, map[string]string{"a": "out-a"}, ctx["outputs"],
		"only declared dependencies feed the context")
}

func TestConcurrent_AggregateMerge(t *testing.T) {
	con := NewConcurrent(Config{Pattern: PatternConcurrent, Aggregation: AggregateMerge})
	plan := testutil.NewPlan("plan-1", "obj", PatternConcurrent)

	a := testutil.NewStepBuilder("a", "agent").Status(core.StepCompleted).Output("out-a").Build()
	a.Result.Artifacts = map[string]string{"report": "r1"}
	b := testutil.NewStepBuilder("b", "agent").Status(core.StepFailed).Error("boom").Build()
	snap := snapshotOf(plan, a, b)

	agg, err := con.Aggregate(snap)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "out-a"}, agg["outputs"])
	assert.Equal(t, map[string]string{"report": "r1"}, agg["artifacts"])
}

func TestConcurrent_AggregateFirst(t *testing.T) {
	con := NewConcurrent(Config{Pattern: PatternConcurrent, Aggregation: AggregateFirst})
	plan := testutil.NewPlan("plan-1", "obj", PatternConcurrent)

	a := testutil.NewStepBuilder("a", "agent").Status(core.StepCompleted).Output("out-a").Build()
	b := testutil.NewStepBuilder("b", "agent").Status(core.StepCompleted).Output("out-b").Build()
	snap := snapshotOf(plan, a, b)
	snap.CompletedOrder = []string{"b", "a"} // b finished first

	agg, err := con.Aggregate(snap)
	require.NoError(t, err)
	assert.Equal(t, "b", agg["step_id"])
	assert.Equal(t, "out-b", agg["output"])

	assert.True(t, con.AllowPartial(), "first aggregation permits partial completion")
}

func TestConcurrent_AggregateAll(t *testing.T) {
	con := NewConcurrent(Config{Pattern: PatternConcurrent, Aggregation: AggregateAll})
	plan := testutil.NewPlan("plan-1", "obj", PatternConcurrent)

	a := testutil.NewStepBuilder("a", "alpha").Status(core.StepCompleted).Output("out-a").Build()
	b := testutil.NewStepBuilder("b", "beta").Status(core.StepFailed).Error("boom").Build()
	snap := snapshotOf(plan, a, b)

	agg, err := con.Aggregate(snap)
	require.NoError(t, err)
	results, ok := agg["results"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, results, 2)
	assert.Equal(t, "out-a", results[0]["output"])
	assert.Equal(t, "boom", results[1]["error"])
	assert.Equal(t, string(core.StepFailed), results[1]["status"])

	assert.False(t, con.AllowPartial())
}
