package synthesis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/kazz187/tasksmith/internal/board"
	"github.com/kazz187/tasksmith/internal/config"
	"github.com/kazz187/tasksmith/internal/generation"
	"github.com/kazz187/tasksmith/internal/task"
)

type synthesized struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    string   `json:"priority" jsonschema:"enum=low,enum=medium,enum=high"`
	Category    string   `json:"category"`
	Assignees   []string `json:"assignees"`
}

func (s *synthesized) Validate() error {
	if strings.TrimSpace(s.Title) == "" {
		return errors.New("title must not be empty")
	}
	return nil
}

// Synthesizer builds one draft task from one snippet. It holds no state
// between calls and is safe for concurrent use.
type Synthesizer struct {
	backend generation.Backend
}

func NewSynthesizer(backend generation.Backend) *Synthesizer {
	return &Synthesizer{backend: backend}
}

func (s *Synthesizer) Synthesize(ctx context.Context, snippet string, vocab board.Vocabulary, p config.Policy) (task.Draft, error) {
	conv := generation.NewConversation(
		fmt.Sprintf(synthesizerPrompt, p.TitleMaxLen, p.Uncategorized),
		generation.User(fmt.Sprintf("Snippet:\n%s\n\nCategories: %s\nMembers: %s",
			snippet, strings.Join(vocab.Categories, ", "), strings.Join(vocab.Assignees, ", "))),
	)
	out, err := generation.Generate[synthesized](ctx, s.backend, "task_synthesis", conv)
	if err != nil {
		return task.Draft{}, err
	}
	return task.Draft{
		Title:       truncate(strings.TrimSpace(out.Title), p.TitleMaxLen),
		Description: strings.TrimSpace(out.Description),
		Priority:    priorityOf(out.Priority),
		Category:    categoryOf(out.Category, vocab.Categories, p.Uncategorized),
		Assignees:   assigneesOf(out.Assignees, vocab.Assignees),
		DependsOn:   []string{},
	}, nil
}

func priorityOf(s string) task.Priority {
	p := task.Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return task.PriorityLow
	}
	return p
}

// categoryOf maps name onto the vocabulary spelling, or the sentinel when it
// is not in the vocabulary.
func categoryOf(name string, vocabulary []string, uncategorized string) string {
	name = strings.TrimSpace(name)
	for _, c := range vocabulary {
		if strings.EqualFold(c, name) {
			return c
		}
	}
	return uncategorized
}

func assigneesOf(names, members []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if slices.Contains(members, n) && !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}

// truncate cuts s to at most n runes, preferring the last word boundary.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)[:n]
	cut := string(r)
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:-")
}
