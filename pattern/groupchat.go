package pattern

import (
	"strings"

	"github.com/hupe1980/planmesh/core"
)

// GroupChat runs a managed conversation: a manager selects the next speaking
// agent each round until max_iterations or a turn output containing the
// termination keyword. Every turn appends a Message and depends on the
// previous turn, forming a total order.
//
// The round_robin manager cycles the configured agent list as given; the
// priority manager expects the list pre-sorted by capability priority (the
// coordinator sorts it from the registry before constructing the pattern)
// and then cycles it the same way.
type GroupChat struct {
	cfg    Config
	agents []string
	next   int
}

// NewGroupChat constructs the group chat policy.
func NewGroupChat(cfg Config) *GroupChat {
	cfg = cfg.WithDefaults()
	return &GroupChat{cfg: cfg, agents: cfg.Agents}
}

// Name implements Pattern.
func (g *GroupChat) Name() string { return PatternGroupChat }

// InitialSteps implements Seeder: the first speaker's turn.
func (g *GroupChat) InitialSteps(plan *core.Plan) []*core.Step {
	g.next = 1
	return []*core.Step{core.NewStep(plan.ID, g.agents[0], plan.Objective)}
}

// Admit implements Pattern: one turn at a time; only the newest turn is
// eligible.
func (g *GroupChat) Admit(snap *Snapshot) []string {
	if snap.Running > 0 || len(snap.Order) == 0 {
		return nil
	}
	tail := snap.Order[len(snap.Order)-1]
	for _, ready := range snap.Ready {
		if ready == tail {
			return []string{tail}
		}
	}
	return nil
}

// BuildContext implements Pattern: the objective plus the transcript so far,
// oldest turns dropped once the size bound is exceeded.
func (g *GroupChat) BuildContext(snap *Snapshot, _ *core.Step) map[string]any {
	ctx := map[string]any{"objective": snap.Plan.Objective}

	size := 0
	keep := len(snap.Messages)
	for i := len(snap.Messages) - 1; i >= 0; i-- {
		size += len(snap.Messages[i].Content)
		if size > g.cfg.MaxContextBytes {
			keep = len(snap.Messages) - 1 - i
			break
		}
	}
	if keep > 0 {
		transcript := make([]map[string]string, 0, keep)
		for _, msg := range snap.Messages[len(snap.Messages)-keep:] {
			transcript = append(transcript, map[string]string{"role": msg.Role, "content": msg.Content})
		}
		ctx["transcript"] = transcript
	}
	return ctx
}

// OnStepTerminal implements CompletionHook: records the turn's message and
// materializes the next speaker's turn unless the chat terminated.
func (g *GroupChat) OnStepTerminal(snap *Snapshot, step *core.Step) (*Proposal, error) {
	if step.Status != core.StepCompleted || step.Result == nil {
		return nil, nil
	}
	output := step.Result.Output
	proposal := &Proposal{
		Messages: []core.Message{core.NewMessage(snap.Plan.SessionID, snap.Plan.ID, step.Agent, output)},
	}
	if strings.Contains(output, g.cfg.TerminationKeyword) {
		return proposal, nil
	}
	if len(snap.Order) >= g.cfg.MaxIterations {
		return proposal, nil
	}
	speaker := g.agents[g.next%len(g.agents)]
	g.next++
	proposal.Steps = []*core.Step{core.NewStep(snap.Plan.ID, speaker, snap.Plan.Objective, step.ID)}
	return proposal, nil
}
