// Package synthesis turns free text into draft tasks: actionable snippets are
// extracted verbatim and each one is synthesized into a task independently.
package synthesis

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/kazz187/tasksmith/internal/generation"
)

type extraction struct {
	Snippets []string `json:"snippets"`
}

// Extractor finds actionable snippets in free text.
type Extractor struct {
	backend generation.Backend
}

func NewExtractor(backend generation.Backend) *Extractor {
	return &Extractor{backend: backend}
}

// Extract returns at most limit snippets, each an exact substring of text,
// in order of appearance. Nothing actionable yields an empty list.
func (e *Extractor) Extract(ctx context.Context, text string, limit int) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return []string{}, nil
	}
	conv := generation.NewConversation(extractorPrompt, generation.User(text))
	out, err := generation.Generate[extraction](ctx, e.backend, "extraction", conv)
	if err != nil {
		return nil, err
	}
	snippets := Verbatim(text, out.Snippets)
	if limit > 0 && len(snippets) > limit {
		slog.DebugContext(ctx, "snippets capped", "found", len(snippets), "cap", limit)
		snippets = snippets[:limit]
	}
	return snippets, nil
}

// Verbatim keeps the candidates that occur in text, trimmed of surrounding
// whitespace, sorted by position. A candidate repeated n times is kept only
// while text has n distinct occurrences of it.
func Verbatim(text string, candidates []string) []string {
	type span struct {
		at      int
		snippet string
	}
	next := make(map[string]int)
	var spans []span
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		from := next[c]
		i := strings.Index(text[from:], c)
		if i < 0 {
			continue
		}
		at := from + i
		next[c] = at + len(c)
		spans = append(spans, span{at: at, snippet: c})
	}
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].at < spans[j].at })

	out := make([]string, 0, len(spans))
	for _, s := range spans {
		out = append(out, s.snippet)
	}
	return out
}
