package planmesh

import (
	"context"
	"testing"

	"github.com/hupe1980/planmesh/capability"
	"github.com/hupe1980/planmesh/coordinator"
	"github.com/hupe1980/planmesh/core"
	"github.com/hupe1980/planmesh/pattern"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanMesh_RunSync(t *testing.T) {
	mesh := New()
	require.NoError(t, mesh.RegisterCapability(capability.NewFuncCapability("echo", "",
		func(ctx context.Context, task core.Task) (*core.ExecutionResult, error) {
			return &core.ExecutionResult{Output: "out:" + task.Description}, nil
		},
	)))

	specs := []coordinator.StepSpec{
		{ID: "a", Agent: "echo", Task: "first"},
		{ID: "b", Agent: "echo", Task: "second", DependsOn: []string{"a"}},
	}
	plan, events, err := mesh.RunSync(context.Background(), "sess-1", "obj", specs, pattern.Config{
		Pattern: pattern.PatternSequential,
	})
	require.NoError(t, err)
	assert.Equal(t, core.PlanCompleted, plan.Status)
	require.NotEmpty(t, events)
	assert.Equal(t, core.EventCompleted, events[len(events)-1].Type, "stream ends with the terminal event")

	status, err := mesh.Status(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, status.Progress)
}

func TestPlanMesh_RunSyncPropagatesValidation(t *testing.T) {
	mesh := New()
	_, _, err := mesh.RunSync(context.Background(), "sess-1", "obj", []coordinator.StepSpec{
		{ID: "a", Agent: "ghost", Task: "t"},
	}, pattern.Config{Pattern: pattern.PatternSequential})
	assert.ErrorIs(t, err, core.ErrUnknownCapability)
}
