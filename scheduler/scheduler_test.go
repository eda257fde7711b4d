package scheduler

import (
	"testing"

	"github.com/hupe1980/planmesh/core"
	"github.com/hupe1980/planmesh/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func diamond() []*core.Step {
	// a -> b, a -> c, {b,c} -> d
	return []*core.Step{
		testutil.NewStepBuilder("a", "agent").Build(),
		testutil.NewStepBuilder("b", "agent").DependsOn("a").Build(),
		testutil.NewStepBuilder("c", "agent").DependsOn("a").Build(),
		testutil.NewStepBuilder("d", "agent").DependsOn("b", "c").Build(),
	}
}

func TestNew_ValidGraph(t *testing.T) {
	s, err := New(diamond())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, s.Order())
	assert.Equal(t, 4, s.Len())
}

func TestNew_RejectsCycle(t *testing.T) {
	steps := []*core.Step{
		testutil.NewStepBuilder("a", "agent").DependsOn("c").Build(),
		testutil.NewStepBuilder("b", "agent").DependsOn("a").Build(),
		testutil.NewStepBuilder("c", "agent").DependsOn("b").Build(),
	}
	_, err := New(steps)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrCyclicDependency)

	var verr *core.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestNew_RejectsSelfCycle(t *testing.T) {
	_, err := New([]*core.Step{testutil.NewStepBuilder("a", "agent").DependsOn("a").Build()})
	assert.ErrorIs(t, err, core.ErrCyclicDependency)
}

func TestNew_RejectsUnknownDependency(t *testing.T) {
	_, err := New([]*core.Step{testutil.NewStepBuilder("a", "agent").DependsOn("ghost").Build()})
	require.Error(t, err)
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "ghost")
}

func TestNew_RejectsDuplicateID(t *testing.T) {
	_, err := New([]*core.Step{
		testutil.NewStepBuilder("a", "agent").Build(),
		testutil.NewStepBuilder("a", "agent").Build(),
	})
	require.Error(t, err)
}

func TestReady_DiamondProgression(t *testing.T) {
	steps := diamond()
	s, err := New(steps)
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, s.Ready(false), "only the root is initially ready")

	steps[0].Status = core.StepCompleted
	assert.Equal(t, []string{"b", "c"}, s.Ready(false), "both branches unblock together")

	steps[1].Status = core.StepCompleted
	assert.Equal(t, []string{"c"}, s.Ready(false), "d still waits on c")

	steps[2].Status = core.StepCompleted
	assert.Equal(t, []string{"d"}, s.Ready(false))
}

func TestReady_ApprovalBlocks(t *testing.T) {
	steps := []*core.Step{
		testutil.NewStepBuilder("a", "agent").RequiresApproval().Build(),
		testutil.NewStepBuilder("b", "agent").DependsOn("a").Build(),
	}
	s, err := New(steps)
	require.NoError(t, err)

	assert.Empty(t, s.Ready(false), "pending approval-gated step is not ready")

	steps[0].Status = core.StepAwaitingApproval
	assert.Empty(t, s.Ready(false))

	steps[0].Status = core.StepApproved
	assert.Equal(t, []string{"a"}, s.Ready(false))
}

func TestReady_FailedDependency(t *testing.T) {
	steps := []*core.Step{
		testutil.NewStepBuilder("a", "agent").Status(core.StepFailed).Error("boom").Build(),
		testutil.NewStepBuilder("b", "agent").DependsOn("a").Build(),
	}
	s, err := New(steps)
	require.NoError(t, err)

	assert.Empty(t, s.Ready(false), "failed dependency blocks without tolerance")
	assert.Equal(t, []string{"b"}, s.Ready(true), "tolerated failure unblocks the dependent")
}

func TestReady_RejectedAndCancelledAlwaysBlock(t *testing.T) {
	for _, status := range []core.StepStatus{core.StepRejected, core.StepCancelled} {
		steps := []*core.Step{
			testutil.NewStepBuilder("a", "agent").Status(status).Build(),
			testutil.NewStepBuilder("b", "agent").DependsOn("a").Build(),
		}
		s, err := New(steps)
		require.NoError(t, err)
		assert.Empty(t, s.Ready(true), "dependency %s must block even under tolerance", status)
	}
}

func TestUpstreamFailures(t *testing.T) {
	steps := []*core.Step{
		testutil.NewStepBuilder("a", "alpha").Status(core.StepFailed).Error("boom").Build(),
		testutil.NewStepBuilder("b", "beta").Status(core.StepCompleted).Build(),
		testutil.NewStepBuilder("c", "gamma").DependsOn("a", "b").Build(),
	}
	s, err := New(steps)
	require.NoError(t, err)

	failures := s.UpstreamFailures(steps[2])
	require.Len(t, failures, 1)
	assert.Equal(t, core.UpstreamFailure{StepID: "a", Agent: "alpha", Error: "boom"}, failures[0])
}

func TestDependentClosure(t *testing.T) {
	s, err := New(diamond())
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "c", "d"}, s.DependentClosure("a"))
	assert.Equal(t, []string{"d"}, s.DependentClosure("b"))
	assert.Empty(t, s.DependentClosure("d"))
}

func TestAdd_DynamicStep(t *testing.T) {
	steps := []*core.Step{testutil.NewStepBuilder("a", "agent").Status(core.StepCompleted).Build()}
	s, err := New(steps)
	require.NoError(t, err)

	next := testutil.NewStepBuilder("b", "agent").DependsOn("a").Build()
	require.NoError(t, s.Add(next))
	assert.Equal(t, []string{"a", "b"}, s.Order())
	assert.Equal(t, []string{"b"}, s.Ready(false))

	assert.Error(t, s.Add(next), "duplicate id rejected")
	assert.Error(t, s.Add(testutil.NewStepBuilder("c", "agent").DependsOn("ghost").Build()))
}

func TestAllTerminal(t *testing.T) {
	steps := []*core.Step{
		testutil.NewStepBuilder("a", "agent").Status(core.StepCompleted).Build(),
		testutil.NewStepBuilder("b", "agent").Status(core.StepRunning).Build(),
	}
	s, err := New(steps)
	require.NoError(t, err)
	assert.False(t, s.AllTerminal())

	steps[1].Status = core.StepCancelled
	assert.True(t, s.AllTerminal())
}
