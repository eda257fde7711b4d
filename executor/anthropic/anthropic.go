// Package anthropic adapts the Anthropic Messages API to core.Executor.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/hupe1980/planmesh/core"
	"github.com/hupe1980/planmesh/executor"
)

// Options configures the Anthropic executor adapter (model id, temperature,
// max tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string

	// SystemPrompt overrides the default per-agent system prompt.
	SystemPrompt string
}

// Executor wraps the Anthropic Messages API behind core.Executor.
type Executor struct {
	client *anthropic.Client
	opts   Options
}

// NewExecutor creates a new Anthropic executor using the official client
func NewExecutor(optFns ...func(o *Options)) *Executor {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Executor{
		client: &client,
		opts:   opts,
	}
}

// NewExecutorFromClient creates a new Anthropic executor from an existing client
func NewExecutorFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Executor {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Executor{
		client: client,
		opts:   opts,
	}
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// Execute implements core.Executor: one Messages API call per step. A
// trailing "HANDOFF: <agent>" line in the reply becomes the result's Handoff.
func (e *Executor) Execute(ctx context.Context, task core.Task) (*core.ExecutionResult, error) {
	system, user := executor.BuildPrompt(task)
	if e.opts.SystemPrompt != "" {
		system = e.opts.SystemPrompt
	}

	params := anthropic.MessageNewParams{
		Model:       e.opts.Model,
		MaxTokens:   e.opts.MaxTokens,
		Temperature: anthropic.Float(e.opts.Temperature),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	}

	resp, err := e.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}

	text, handoff := executor.ParseHandoff(sb.String())
	return &core.ExecutionResult{Output: text, Handoff: handoff}, nil
}
