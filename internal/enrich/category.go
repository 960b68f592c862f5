package enrich

import (
	"context"
	"fmt"
	"strings"

	"github.com/kazz187/tasksmith/internal/critic"
	"github.com/kazz187/tasksmith/internal/generation"
)

type categoryCandidate struct {
	Category  string `json:"category"`
	Reasoning string `json:"reasoning"`
}

// Validate trims the name. An empty category proposes leaving the task
// uncategorized and goes to the critic like any other candidate.
func (c *categoryCandidate) Validate() error {
	c.Category = strings.TrimSpace(c.Category)
	return nil
}

type categoryVerdict struct {
	Category          string `json:"category"`
	Decision          string `json:"decision" jsonschema:"enum=accept,enum=reject"`
	Reasoning         string `json:"reasoning"`
	SuggestedCategory string `json:"suggestedCategory,omitempty"`
}

func (v *categoryVerdict) Validate() error { return validateDecision(v.Decision) }

func validateDecision(d string) error {
	if d != "accept" && d != "reject" {
		return fmt.Errorf("decision must be accept or reject, got %q", d)
	}
	return nil
}

const categoryReferenceLimit = 5

// CategoryGenerator negotiates a category for the subject.
type CategoryGenerator struct {
	backend generation.Backend
	board   Board
}

func NewCategoryGenerator(backend generation.Backend, b Board) *CategoryGenerator {
	return &CategoryGenerator{backend: backend, board: b}
}

func (g *CategoryGenerator) Generate(ctx context.Context, s Subject, tries int) (Field[string], error) {
	vocab, err := g.board.Vocabulary(ctx, s.ProjectID)
	if err != nil {
		return Field[string]{}, err
	}
	conv := generation.NewConversation(categoryProposerPrompt, generation.User(
		"Task:\n"+jsonBlock(s.Draft)+"\n\nExisting categories:\n"+jsonBlock(vocab.Categories)))

	loop := critic.Loop[string]{
		Name:  "category",
		Tries: tries,
		Propose: func(ctx context.Context, conv generation.Conversation) (critic.Candidate[string], error) {
			c, err := generation.Generate[categoryCandidate](ctx, g.backend, "category_candidate", conv)
			if err != nil {
				return critic.Candidate[string]{}, err
			}
			return critic.Candidate[string]{Value: canonicalCategory(c.Category, vocab.Categories), Reasoning: c.Reasoning}, nil
		},
		Evaluate: func(ctx context.Context, conv generation.Conversation, c critic.Candidate[string]) (critic.Verdict, error) {
			filed, err := g.board.TasksInCategory(ctx, s.ProjectID, c.Value, categoryReferenceLimit)
			if err != nil {
				return critic.Verdict{}, err
			}
			proposed, reference := c.Value, "Tasks already in "+c.Value+":\n"+jsonBlock(digests(filed))
			if c.Value == "" {
				proposed, reference = "(none)", "No category means the task stays uncategorized."
			}
			review := conv.WithSystem(categoryCriticPrompt).With(generation.User(
				"Proposed category: " + proposed + "\nReasoning: " + c.Reasoning + "\n\n" + reference))
			v, err := generation.Generate[categoryVerdict](ctx, g.backend, "category_verdict", review)
			if err != nil {
				return critic.Verdict{}, err
			}
			return critic.Verdict{
				Accepted:   v.Decision == "accept",
				Reasoning:  v.Reasoning,
				Suggestion: v.SuggestedCategory,
				Reference:  reference,
			}, nil
		},
		Render: func(c critic.Candidate[string]) string {
			return jsonBlock(categoryCandidate{Category: c.Value, Reasoning: c.Reasoning})
		},
	}
	out, err := loop.Run(ctx, conv)
	if err != nil {
		return Field[string]{}, err
	}
	return Field[string]{
		Value:     out.Value,
		Reasoning: out.Reasoning,
		Attempts:  out.Attempts,
		Exhausted: out.State == critic.StateExhausted,
	}, nil
}

// canonicalCategory returns the vocabulary spelling of name when it matches
// an existing category case-insensitively.
func canonicalCategory(name string, vocabulary []string) string {
	for _, c := range vocabulary {
		if strings.EqualFold(c, name) {
			return c
		}
	}
	return name
}
