// Package executor hosts the LLM-backed adapters implementing core.Executor,
// plus the prompt rendering shared between providers. Each provider lives in
// its own subpackage wrapping the official SDK client.
package executor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/planmesh/core"
)

// HandoffMarker introduces a handoff directive on the final line of a model
// reply. The directive is stripped from the output and surfaced as the
// result's Handoff field.
const HandoffMarker = "HANDOFF:"

// BuildPrompt renders a normalized task into a system and user prompt. The
// user prompt lays out the context the pattern assembled (objective, prior
// outputs, conversation transcript, tolerated upstream failures) before the
// task itself.
func BuildPrompt(task core.Task) (system, user string) {
	system = fmt.Sprintf("You are the %q agent executing one step of a larger plan. Complete the task using the provided context. Reply with the step's result only.", task.Agent)

	var sb strings.Builder
	if objective, ok := task.Context["objective"].(string); ok && objective != "" {
		fmt.Fprintf(&sb, "Objective: %s\n\n", objective)
	}
	if outputs, ok := task.Context["outputs"].(map[string]string); ok && len(outputs) > 0 {
		sb.WriteString("Results of earlier steps:\n")
		for id, output := range outputs {
			fmt.Fprintf(&sb, "- [%s] %s\n", id, output)
		}
		sb.WriteString("\n")
	}
	if transcript, ok := task.Context["transcript"].([]map[string]string); ok && len(transcript) > 0 {
		sb.WriteString("Conversation so far:\n")
		for _, turn := range transcript {
			fmt.Fprintf(&sb, "%s: %s\n", turn["role"], turn["content"])
		}
		sb.WriteString("\n")
	}
	if failures, ok := task.Context[core.UpstreamFailuresKey].([]core.UpstreamFailure); ok && len(failures) > 0 {
		sb.WriteString("Some earlier steps failed; work with what is available:\n")
		for _, f := range failures {
			fmt.Fprintf(&sb, "- step %s (%s): %s\n", f.StepID, f.Agent, f.Error)
		}
		sb.WriteString("\n")
	}
	for key, value := range task.Context {
		switch key {
		case "objective", "outputs", "transcript", core.UpstreamFailuresKey:
			continue
		}
		if data, err := json.Marshal(value); err == nil {
			fmt.Fprintf(&sb, "%s: %s\n", key, data)
		}
	}

	fmt.Fprintf(&sb, "Task: %s", task.Description)
	return system, sb.String()
}

// ParseHandoff splits a trailing handoff directive off a model reply. When the
// last non-empty line is "HANDOFF: <agent>", the agent name is returned and
// the line removed from the output.
func ParseHandoff(output string) (text, target string) {
	trimmed := strings.TrimRight(output, " \t\n")
	idx := strings.LastIndexByte(trimmed, '\n')
	last := strings.TrimSpace(trimmed[idx+1:])
	if !strings.HasPrefix(last, HandoffMarker) {
		return output, ""
	}
	target = strings.TrimSpace(strings.TrimPrefix(last, HandoffMarker))
	if target == "" {
		return output, ""
	}
	if idx < 0 {
		return "", target
	}
	return strings.TrimRight(trimmed[:idx], " \t\n"), target
}
