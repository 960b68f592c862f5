// Package critic implements the bounded propose/evaluate negotiation shared
// by the enrichment stages.
package critic

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kazz187/tasksmith/internal/generation"
)

type State string

const (
	StateProposing  State = "proposing"
	StateEvaluating State = "evaluating"
	StateAccepted   State = "accepted"
	StateExhausted  State = "exhausted"
)

const DefaultTries = 5

// Candidate is a proposed value with the proposer's justification.
type Candidate[T any] struct {
	Value     T
	Reasoning string
}

// Verdict is the critic's decision on a candidate. Suggestion and Reference
// are folded into the feedback of the next attempt.
type Verdict struct {
	Accepted   bool
	Reasoning  string
	Suggestion string
	Reference  string
}

// Outcome is the terminal result of a run. When State is StateExhausted,
// Found is false and Value is the zero value.
type Outcome[T any] struct {
	Value     T
	Found     bool
	Reasoning string
	// TriesLeft is the remaining budget including the accepted attempt.
	TriesLeft int
	Attempts  int
	State     State
	// Conversation is the context after the last attempt.
	Conversation generation.Conversation
}

// Loop negotiates a value between Propose and Evaluate. Both receive the
// conversation accumulated so far; rejected candidates and their feedback are
// appended to it and never removed.
type Loop[T any] struct {
	Name     string
	Tries    int
	Propose  func(ctx context.Context, conv generation.Conversation) (Candidate[T], error)
	Evaluate func(ctx context.Context, conv generation.Conversation, c Candidate[T]) (Verdict, error)
	// Render formats a candidate as the assistant turn recorded after a rejection.
	Render func(c Candidate[T]) string
}

// Run drives the loop to a terminal state. Exhaustion is an outcome, not an
// error; errors come only from Propose, Evaluate or ctx.
func (l Loop[T]) Run(ctx context.Context, conv generation.Conversation) (Outcome[T], error) {
	tries := l.Tries
	if tries <= 0 {
		tries = DefaultTries
	}
	render := l.Render
	if render == nil {
		render = func(c Candidate[T]) string { return fmt.Sprintf("%v\nReasoning: %s", c.Value, c.Reasoning) }
	}

	attempts := 0
	for tries > 0 {
		if err := ctx.Err(); err != nil {
			return Outcome[T]{}, err
		}
		attempts++
		log := slog.With("loop", l.Name, "attempt", attempts, "tries_left", tries)

		log.DebugContext(ctx, "critic loop state", "state", StateProposing)
		cand, err := l.Propose(ctx, conv)
		if err != nil {
			return Outcome[T]{}, fmt.Errorf("%s: propose: %w", l.Name, err)
		}

		log.DebugContext(ctx, "critic loop state", "state", StateEvaluating)
		verdict, err := l.Evaluate(ctx, conv, cand)
		if err != nil {
			return Outcome[T]{}, fmt.Errorf("%s: evaluate: %w", l.Name, err)
		}
		if verdict.Accepted {
			log.DebugContext(ctx, "critic loop state", "state", StateAccepted)
			return Outcome[T]{
				Value:        cand.Value,
				Found:        true,
				Reasoning:    cand.Reasoning,
				TriesLeft:    tries,
				Attempts:     attempts,
				State:        StateAccepted,
				Conversation: conv,
			}, nil
		}

		log.DebugContext(ctx, "candidate rejected", "reasoning", verdict.Reasoning)
		conv = conv.With(generation.Assistant(render(cand)), generation.User(feedback(verdict)))
		tries--
	}

	slog.DebugContext(ctx, "critic loop state", "loop", l.Name, "state", StateExhausted, "attempts", attempts)
	return Outcome[T]{
		Reasoning:    fmt.Sprintf("no value: ran out of tries after %d rejected attempts", attempts),
		Attempts:     attempts,
		State:        StateExhausted,
		Conversation: conv,
	}, nil
}

func feedback(v Verdict) string {
	msg := "Your proposal was rejected.\nReason: " + v.Reasoning
	if v.Suggestion != "" {
		msg += "\nSuggested alternative: " + v.Suggestion
	}
	if v.Reference != "" {
		msg += "\nReference data:\n" + v.Reference
	}
	return msg + "\nPropose a different value."
}
