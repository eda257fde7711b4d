// Package openai adapts the OpenAI Chat Completions API to core.Executor,
// including incremental output streaming via core.StreamingExecutor.
package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/planmesh/core"
	"github.com/hupe1980/planmesh/executor"
	"github.com/openai/openai-go"
)

// Options configure the OpenAI executor adapter.
// Fields mirror a subset of Chat Completion parameters intentionally kept
// minimal; extend via functional options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64

	// SystemPrompt overrides the default per-agent system prompt.
	SystemPrompt string
}

// Executor wraps the OpenAI Chat Completions API behind core.Executor.
type Executor struct {
	client *openai.Client
	opts   Options
}

// NewExecutor creates a new OpenAI executor using the official client
func NewExecutor(optFns ...func(o *Options)) *Executor {
	client := openai.NewClient()
	return NewExecutorFromClient(&client, optFns...)
}

// NewExecutorFromClient creates a new OpenAI executor from an existing client
func NewExecutorFromClient(client *openai.Client, optFns ...func(o *Options)) *Executor {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Executor{client: client, opts: opts}
}

// Execute implements core.Executor: one chat completion per step. A trailing
// "HANDOFF: <agent>" line in the reply becomes the result's Handoff.
func (e *Executor) Execute(ctx context.Context, task core.Task) (*core.ExecutionResult, error) {
	resp, err := e.client.Chat.Completions.New(ctx, e.buildParams(task))
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}

	text, handoff := executor.ParseHandoff(resp.Choices[0].Message.Content)
	return &core.ExecutionResult{Output: text, Handoff: handoff}, nil
}

// ExecuteStreaming implements core.StreamingExecutor: text deltas are emitted
// as they arrive; the final chunk carries the complete parsed result.
func (e *Executor) ExecuteStreaming(ctx context.Context, task core.Task) (<-chan core.Chunk, <-chan error) {
	chunks := make(chan core.Chunk, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errCh)

		stream := e.client.Chat.Completions.NewStreaming(ctx, e.buildParams(task))
		var sb strings.Builder
		for stream.Next() {
			ck := stream.Current()
			for _, choice := range ck.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				sb.WriteString(choice.Delta.Content)
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case chunks <- core.Chunk{Text: choice.Delta.Content}:
				}
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("openai streaming error: %w", err)
			return
		}

		text, handoff := executor.ParseHandoff(sb.String())
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case chunks <- core.Chunk{Final: true, Result: &core.ExecutionResult{Output: text, Handoff: handoff}}:
		}
	}()

	return chunks, errCh
}

// buildParams assembles the chat completion request for one task.
func (e *Executor) buildParams(task core.Task) openai.ChatCompletionNewParams {
	system, user := executor.BuildPrompt(task)
	if e.opts.SystemPrompt != "" {
		system = e.opts.SystemPrompt
	}
	return openai.ChatCompletionNewParams{
		Model:               e.opts.Model,
		Temperature:         openai.Float(e.opts.Temperature),
		MaxCompletionTokens: openai.Int(e.opts.MaxCompletionTokens),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	}
}
