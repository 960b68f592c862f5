package enrich

import (
	"context"
	"strings"

	"github.com/kazz187/tasksmith/internal/config"
	"github.com/kazz187/tasksmith/internal/critic"
	"github.com/kazz187/tasksmith/internal/generation"
)

type requirementsCandidate struct {
	FeatureRequirements []string `json:"featureRequirements"`
	Reasoning           string   `json:"reasoning"`
}

// Validate drops blank entries. An empty list is a valid answer for a task
// whose title already says everything.
func (c *requirementsCandidate) Validate() error {
	kept := make([]string, 0, len(c.FeatureRequirements))
	for _, r := range c.FeatureRequirements {
		if r = strings.TrimSpace(r); r != "" {
			kept = append(kept, r)
		}
	}
	c.FeatureRequirements = kept
	return nil
}

type requirementsVerdict struct {
	Decision  string `json:"decision" jsonschema:"enum=accept,enum=reject"`
	Reasoning string `json:"reasoning"`
}

func (v *requirementsVerdict) Validate() error { return validateDecision(v.Decision) }

// Description is the composed description plus the parts it was built from.
type Description struct {
	Text         string
	Effort       Effort
	Requirements Field[[]string]
}

// DescriptionGenerator composes an effort estimate and negotiated feature
// requirements into the task description.
type DescriptionGenerator struct {
	backend generation.Backend
	board   Board
	effort  *EffortEstimator
}

func NewDescriptionGenerator(backend generation.Backend, b Board, effort *EffortEstimator) *DescriptionGenerator {
	return &DescriptionGenerator{backend: backend, board: b, effort: effort}
}

func (g *DescriptionGenerator) Generate(ctx context.Context, s Subject, p config.Policy) (Description, error) {
	est, err := g.effort.Estimate(ctx, s, p.Effort)
	if err != nil {
		return Description{}, err
	}
	reqs, err := g.requirements(ctx, s, p.CriticTries)
	if err != nil {
		return Description{}, err
	}
	return Description{
		Text:         composeDescription(s.Draft.Description, est, reqs),
		Effort:       est,
		Requirements: reqs,
	}, nil
}

func (g *DescriptionGenerator) requirements(ctx context.Context, s Subject, tries int) (Field[[]string], error) {
	pc, err := g.board.ProjectContext(ctx, s.ProjectID)
	if err != nil {
		return Field[[]string]{}, err
	}
	conv := generation.NewConversation(requirementsProposerPrompt, generation.User(
		"Task:\n"+jsonBlock(s.Draft)+"\n\nProject:\n"+jsonBlock(pc)))

	loop := critic.Loop[[]string]{
		Name:  "requirements",
		Tries: tries,
		Propose: func(ctx context.Context, conv generation.Conversation) (critic.Candidate[[]string], error) {
			c, err := generation.Generate[requirementsCandidate](ctx, g.backend, "requirements_candidate", conv)
			if err != nil {
				return critic.Candidate[[]string]{}, err
			}
			return critic.Candidate[[]string]{Value: c.FeatureRequirements, Reasoning: c.Reasoning}, nil
		},
		Evaluate: func(ctx context.Context, conv generation.Conversation, c critic.Candidate[[]string]) (critic.Verdict, error) {
			review := conv.WithSystem(requirementsCriticPrompt).With(generation.User(
				"Proposed requirements:\n" + jsonBlock(c.Value) + "\nReasoning: " + c.Reasoning))
			v, err := generation.Generate[requirementsVerdict](ctx, g.backend, "requirements_verdict", review)
			if err != nil {
				return critic.Verdict{}, err
			}
			return critic.Verdict{Accepted: v.Decision == "accept", Reasoning: v.Reasoning}, nil
		},
		Render: func(c critic.Candidate[[]string]) string {
			return jsonBlock(requirementsCandidate{FeatureRequirements: c.Value, Reasoning: c.Reasoning})
		},
	}
	out, err := loop.Run(ctx, conv)
	if err != nil {
		return Field[[]string]{}, err
	}
	return Field[[]string]{
		Value:     out.Value,
		Reasoning: out.Reasoning,
		Attempts:  out.Attempts,
		Exhausted: out.State == critic.StateExhausted,
	}, nil
}

func composeDescription(original string, est Effort, reqs Field[[]string]) string {
	var b strings.Builder
	if original = strings.TrimSpace(original); original != "" {
		b.WriteString(original)
		b.WriteString("\n\n")
	}

	b.WriteString("## Effort estimate\n\n")
	if est.Tier == TierNone {
		b.WriteString("No estimate inferred.\n")
	} else {
		b.WriteString(FormatDuration(est.Mean))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(est.Reasoning)
	b.WriteString("\n\n## Feature requirements\n\n")
	switch {
	case reqs.Exhausted:
		b.WriteString("No requirements agreed on.\n")
	case len(reqs.Value) == 0:
		b.WriteString("No additional requirements.\n")
	}
	for _, r := range reqs.Value {
		b.WriteString("- ")
		b.WriteString(r)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(reqs.Reasoning)
	return b.String()
}
