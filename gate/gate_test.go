package gate

import (
	"context"
	"testing"
	"time"

	"github.com/hupe1980/planmesh/capability"
	"github.com/hupe1980/planmesh/coordinator"
	"github.com/hupe1980/planmesh/core"
	"github.com/hupe1980/planmesh/pattern"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_ApproveFlow(t *testing.T) {
	coord := coordinator.New()
	echo := capability.NewFuncCapability("echo", "",
		func(ctx context.Context, task core.Task) (*core.ExecutionResult, error) {
			return &core.ExecutionResult{Output: "done"}, nil
		},
	)
	require.NoError(t, coord.Registry().Register(echo))
	g := New(coord)

	specs := []coordinator.StepSpec{
		{ID: "a", Agent: "echo", Task: "gated", RequiresApproval: true},
	}
	plan, events, err := coord.Run(context.Background(), "sess-1", "obj", specs, pattern.Config{Pattern: pattern.PatternSequential})
	require.NoError(t, err)

	pending, err := g.Pending(context.Background(), plan.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "a", pending[0].ID)

	require.NoError(t, g.Approve("a"))

	timeout := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				final, _, err := coord.GetPlan(context.Background(), plan.ID)
				require.NoError(t, err)
				assert.Equal(t, core.PlanCompleted, final.Status)
				return
			}
		case <-timeout:
			t.Fatal("timed out waiting for plan to finish")
		}
	}
}

func TestGate_RejectRecordsReason(t *testing.T) {
	coord := coordinator.New()
	echo := capability.NewFuncCapability("echo", "",
		func(ctx context.Context, task core.Task) (*core.ExecutionResult, error) {
			return &core.ExecutionResult{Output: "done"}, nil
		},
	)
	require.NoError(t, coord.Registry().Register(echo))
	g := New(coord)

	specs := []coordinator.StepSpec{
		{ID: "a", Agent: "echo", Task: "gated", RequiresApproval: true},
	}
	plan, events, err := coord.Run(context.Background(), "sess-1", "obj", specs, pattern.Config{Pattern: pattern.PatternSequential})
	require.NoError(t, err)

	require.NoError(t, g.Reject("a", "budget cut"))
	timeout := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				_, steps, err := coord.GetPlan(context.Background(), plan.ID)
				require.NoError(t, err)
				require.Len(t, steps, 1)
				require.NotNil(t, steps[0].Approval)
				assert.False(t, steps[0].Approval.Approved)
				assert.Equal(t, "budget cut", steps[0].Approval.Reason)
				return
			}
		case <-timeout:
			t.Fatal("timed out waiting for plan to finish")
		}
	}
}
