package enrich

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/kazz187/tasksmith/internal/board"
	"github.com/kazz187/tasksmith/internal/critic"
	"github.com/kazz187/tasksmith/internal/generation"
)

type dependencyCandidate struct {
	Dependency []string `json:"dependency"`
	Reasoning  string   `json:"reasoning"`
}

type dependencyVerdict struct {
	Decision  string `json:"decision" jsonschema:"enum=accept,enum=reject"`
	Reasoning string `json:"reasoning"`
}

func (v *dependencyVerdict) Validate() error { return validateDecision(v.Decision) }

// DependencyGenerator negotiates which open tasks block the subject.
type DependencyGenerator struct {
	backend generation.Backend
	board   Board
}

func NewDependencyGenerator(backend generation.Backend, b Board) *DependencyGenerator {
	return &DependencyGenerator{backend: backend, board: b}
}

func (g *DependencyGenerator) Generate(ctx context.Context, s Subject, tries, referenceCap int) (Field[[]string], error) {
	open, err := g.board.OpenTasks(ctx, s.ProjectID, referenceCap+1)
	if err != nil {
		return Field[[]string]{}, err
	}
	refs := make([]board.Digest, 0, referenceCap)
	for _, t := range open {
		if t.ID == s.ID || len(refs) >= referenceCap {
			continue
		}
		refs = append(refs, board.DigestOf(t))
	}
	if len(refs) == 0 {
		return Field[[]string]{Value: []string{}, Reasoning: "no open tasks to depend on"}, nil
	}
	known := make([]string, 0, len(refs))
	for _, r := range refs {
		known = append(known, r.ID)
	}

	conv := generation.NewConversation(dependencyProposerPrompt, generation.User(
		"Task (id "+s.ID+"):\n"+jsonBlock(s.Draft)+"\n\nOpen tasks:\n"+jsonBlock(refs)))

	loop := critic.Loop[[]string]{
		Name:  "dependency",
		Tries: tries,
		Propose: func(ctx context.Context, conv generation.Conversation) (critic.Candidate[[]string], error) {
			c, err := generation.Generate[dependencyCandidate](ctx, g.backend, "dependency_candidate", conv)
			if err != nil {
				return critic.Candidate[[]string]{}, err
			}
			return critic.Candidate[[]string]{Value: dedupe(c.Dependency), Reasoning: c.Reasoning}, nil
		},
		Evaluate: func(ctx context.Context, conv generation.Conversation, c critic.Candidate[[]string]) (critic.Verdict, error) {
			if reason := invalidDependencies(c.Value, known, s.ID); reason != "" {
				return critic.Verdict{Reasoning: reason, Reference: "Valid ids: " + strings.Join(known, ", ")}, nil
			}
			review := conv.WithSystem(dependencyCriticPrompt).With(generation.User(
				"Proposed dependencies:\n" + jsonBlock(c.Value) + "\nReasoning: " + c.Reasoning))
			v, err := generation.Generate[dependencyVerdict](ctx, g.backend, "dependency_verdict", review)
			if err != nil {
				return critic.Verdict{}, err
			}
			return critic.Verdict{Accepted: v.Decision == "accept", Reasoning: v.Reasoning}, nil
		},
		Render: func(c critic.Candidate[[]string]) string {
			return jsonBlock(dependencyCandidate{Dependency: c.Value, Reasoning: c.Reasoning})
		},
	}
	out, err := loop.Run(ctx, conv)
	if err != nil {
		return Field[[]string]{}, err
	}
	value := keepKnown(out.Value, known)
	if out.State == critic.StateExhausted {
		value = nil
	}
	return Field[[]string]{
		Value:     value,
		Reasoning: out.Reasoning,
		Attempts:  out.Attempts,
		Exhausted: out.State == critic.StateExhausted,
	}, nil
}

// invalidDependencies explains why ids cannot be accepted, or returns "".
func invalidDependencies(ids, known []string, self string) string {
	var problems []string
	for _, id := range ids {
		switch {
		case id == self:
			problems = append(problems, fmt.Sprintf("%s is the task itself", id))
		case !slices.Contains(known, id):
			problems = append(problems, fmt.Sprintf("%s is not one of the open tasks", id))
		}
	}
	return strings.Join(problems, "; ")
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
