package core

import "context"

// Task is the normalized input handed to an executor: the step's task
// description plus the context snapshot assembled by the active pattern.
type Task struct {
	StepID      string         `json:"step_id"`
	Agent       string         `json:"agent"`
	Description string         `json:"description"`
	Context     map[string]any `json:"context,omitempty"`
}

// ExecutionResult is the successful outcome of one executor call.
type ExecutionResult struct {
	Output    string            `json:"output"`
	Artifacts map[string]string `json:"artifacts,omitempty"`

	// Handoff optionally names the next agent under the Handoff pattern. The
	// coordinator validates it against the source capability's allow-list
	// before materializing a new step.
	Handoff string `json:"handoff,omitempty"`
}

// Clone returns a deep copy of the result.
func (r *ExecutionResult) Clone() *ExecutionResult {
	clone := *r
	if r.Artifacts != nil {
		clone.Artifacts = make(map[string]string, len(r.Artifacts))
		for k, v := range r.Artifacts {
			clone.Artifacts[k] = v
		}
	}
	return &clone
}

// Chunk is one incremental fragment of a streaming execution. Final marks the
// last chunk of the stream; a final chunk may carry the complete
// ExecutionResult (consumers fall back to the accumulated text otherwise).
type Chunk struct {
	Text   string           `json:"text,omitempty"`
	Final  bool             `json:"final,omitempty"`
	Result *ExecutionResult `json:"result,omitempty"`
}

// Executor is the uniform interface around any concrete agent: task + context
// in, result or error out. Implementations must respect context cancellation;
// the coordinator threads a cancellation token into every in-flight call.
type Executor interface {
	Execute(ctx context.Context, task Task) (*ExecutionResult, error)
}

// StreamingExecutor optionally delivers incremental output chunks before the
// final result. The error channel carries at most one terminal error; both
// channels are closed when the call completes.
type StreamingExecutor interface {
	Executor

	ExecuteStreaming(ctx context.Context, task Task) (<-chan Chunk, <-chan error)
}
