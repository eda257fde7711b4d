package capability

import (
	"context"
	"fmt"

	"github.com/hupe1980/planmesh/core"
)

// MockExecutor is a lightweight in-memory executor useful for tests and
// examples. It returns canned responses keyed by task description and can
// optionally emit streaming character chunks before the final result.
type MockExecutor struct {
	responses map[string]string
	errs      map[string]error
	handoffs  map[string]string
}

// NewMockExecutor constructs an empty mock executor.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{
		responses: make(map[string]string),
		errs:      make(map[string]error),
		handoffs:  make(map[string]string),
	}
}

// AddResponse registers a deterministic canned output for a task description.
func (m *MockExecutor) AddResponse(task, output string) { m.responses[task] = output }

// AddError registers a deterministic failure for a task description.
func (m *MockExecutor) AddError(task string, err error) { m.errs[task] = err }

// AddHandoff registers a next-agent proposal attached to the task's result.
func (m *MockExecutor) AddHandoff(task, target string) { m.handoffs[task] = target }

// Execute implements core.Executor.
func (m *MockExecutor) Execute(ctx context.Context, task core.Task) (*core.ExecutionResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if err, ok := m.errs[task.Description]; ok {
		return nil, err
	}
	output, ok := m.responses[task.Description]
	if !ok {
		output = fmt.Sprintf("Mock response to: %s", task.Description)
	}
	return &core.ExecutionResult{Output: output, Handoff: m.handoffs[task.Description]}, nil
}

// ExecuteStreaming implements core.StreamingExecutor; emits per-character
// chunks then a final marker.
func (m *MockExecutor) ExecuteStreaming(ctx context.Context, task core.Task) (<-chan core.Chunk, <-chan error) {
	chunks := make(chan core.Chunk, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errCh)
		if err, ok := m.errs[task.Description]; ok {
			errCh <- err
			return
		}
		output, ok := m.responses[task.Description]
		if !ok {
			output = fmt.Sprintf("Mock response to: %s", task.Description)
		}
		for _, r := range output {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case chunks <- core.Chunk{Text: string(r)}:
			}
		}
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case chunks <- core.Chunk{Final: true, Result: &core.ExecutionResult{Output: output, Handoff: m.handoffs[task.Description]}}:
		}
	}()

	return chunks, errCh
}
