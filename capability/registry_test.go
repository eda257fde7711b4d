package capability

import (
	"context"
	"testing"

	"github.com/hupe1980/planmesh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Interface compliance (compile-time assertions)
var (
	_ core.Executor          = Func(nil)
	_ core.Executor          = (*MockExecutor)(nil)
	_ core.StreamingExecutor = (*MockExecutor)(nil)
)

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	cap := NewFuncCapability("writer", "writes text", func(ctx context.Context, task core.Task) (*core.ExecutionResult, error) {
		return &core.ExecutionResult{Output: "ok"}, nil
	})
	require.NoError(t, r.Register(cap))

	resolved, ok := r.Resolve("writer")
	require.True(t, ok)
	assert.Equal(t, "writer", resolved.Name)

	_, ok = r.Resolve("ghost")
	assert.False(t, ok)
}

func TestRegistry_RegisterValidation(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(&Capability{Name: "", Executor: NewMockExecutor()}))
	assert.Error(t, r.Register(&Capability{Name: "writer"}))
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Capability{Name: "writer", Executor: NewMockExecutor(), Priority: 1}))
	require.NoError(t, r.Register(&Capability{Name: "writer", Executor: NewMockExecutor(), Priority: 2}))

	resolved, ok := r.Resolve("writer")
	require.True(t, ok)
	assert.Equal(t, 2, resolved.Priority)
}

func TestRegistry_NamesSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"writer", "critic", "billing"} {
		require.NoError(t, r.Register(&Capability{Name: name, Executor: NewMockExecutor()}))
	}
	assert.Equal(t, []string{"billing", "critic", "writer"}, r.Names())
}

func TestCapability_CanHandoffTo(t *testing.T) {
	cap := NewFuncCapability("triage", "", func(ctx context.Context, task core.Task) (*core.ExecutionResult, error) {
		return nil, nil
	}, WithHandoffs("specialist", "billing"), WithIdempotent(), WithPriority(3))

	assert.True(t, cap.CanHandoffTo("specialist"))
	assert.False(t, cap.CanHandoffTo("ghost"))
	assert.True(t, cap.Idempotent)
	assert.Equal(t, 3, cap.Priority)
}

func TestMockExecutor_Execute(t *testing.T) {
	m := NewMockExecutor()
	m.AddResponse("known task", "canned output")
	m.AddError("broken task", assert.AnError)
	m.AddHandoff("known task", "specialist")

	res, err := m.Execute(context.Background(), core.Task{Description: "known task"})
	require.NoError(t, err)
	assert.Equal(t, "canned output", res.Output)
	assert.Equal(t, "specialist", res.Handoff)

	_, err = m.Execute(context.Background(), core.Task{Description: "broken task"})
	assert.ErrorIs(t, err, assert.AnError)

	res, err = m.Execute(context.Background(), core.Task{Description: "anything else"})
	require.NoError(t, err)
	assert.Contains(t, res.Output, "anything else")
}

func TestMockExecutor_ExecuteStreaming(t *testing.T) {
	m := NewMockExecutor()
	m.AddResponse("stream me", "abc")

	chunks, errCh := m.ExecuteStreaming(context.Background(), core.Task{Description: "stream me"})

	var text string
	var final *core.ExecutionResult
	for chunk := range chunks {
		text += chunk.Text
		if chunk.Final {
			final = chunk.Result
		}
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, "abc", text)
	require.NotNil(t, final)
	assert.Equal(t, "abc", final.Output)
}
