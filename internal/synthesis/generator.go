package synthesis

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/kazz187/tasksmith/internal/board"
	"github.com/kazz187/tasksmith/internal/config"
	"github.com/kazz187/tasksmith/internal/task"
	"github.com/kazz187/tasksmith/pkg/panicerr"
)

// VocabularySource reads the category and assignee vocabularies of a project.
type VocabularySource interface {
	Vocabulary(ctx context.Context, projectID string) (board.Vocabulary, error)
}

// Item is the outcome of one snippet. Exactly one of Draft and Err is meaningful.
type Item struct {
	Index   int
	Snippet string
	Draft   task.Draft
	Err     error
}

type Batch struct {
	Snippets []string
	// Tasks holds the successful items in snippet order.
	Tasks    []Item
	Failures []Item
}

// Generator runs extraction once and then synthesizes every snippet
// concurrently. A failing snippet produces a failed Item, never a failed batch.
type Generator struct {
	extractor   *Extractor
	synthesizer *Synthesizer
	vocabulary  VocabularySource
	policy      config.PolicySource
}

func NewGenerator(extractor *Extractor, synthesizer *Synthesizer, vocabulary VocabularySource, policy config.PolicySource) *Generator {
	return &Generator{extractor: extractor, synthesizer: synthesizer, vocabulary: vocabulary, policy: policy}
}

// Stream calls yield once per snippet as soon as it finishes, in completion
// order. Calls to yield are serialized. It returns the extracted snippets.
func (g *Generator) Stream(ctx context.Context, projectID, text string, yield func(Item)) ([]string, error) {
	p := g.policy.Current()

	snippets, err := g.extractor.Extract(ctx, text, p.SnippetCap)
	if err != nil {
		return nil, err
	}
	if len(snippets) == 0 {
		return snippets, nil
	}
	vocab, err := g.vocabulary.Vocabulary(ctx, projectID)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	wp := pool.New().WithMaxGoroutines(p.SynthesisConcurrency)
	for i, snippet := range snippets {
		wp.Go(func() {
			draft, err := panicerr.Call(func() (task.Draft, error) {
				return g.synthesizer.Synthesize(ctx, snippet, vocab, p)
			})
			if err != nil {
				slog.WarnContext(ctx, "snippet synthesis failed",
					"project_id", projectID, "index", i, "error", err)
			}
			mu.Lock()
			defer mu.Unlock()
			yield(Item{Index: i, Snippet: snippet, Draft: draft, Err: err})
		})
	}
	wp.Wait()
	return snippets, ctx.Err()
}

// Generate collects Stream into a Batch.
func (g *Generator) Generate(ctx context.Context, projectID, text string) (*Batch, error) {
	var items []Item
	snippets, err := g.Stream(ctx, projectID, text, func(it Item) {
		items = append(items, it)
	})
	if err != nil {
		return nil, err
	}

	byIndex := make([]*Item, len(snippets))
	for i := range items {
		byIndex[items[i].Index] = &items[i]
	}
	b := &Batch{Snippets: snippets, Tasks: []Item{}, Failures: []Item{}}
	for _, it := range byIndex {
		if it == nil {
			continue
		}
		if it.Err != nil {
			b.Failures = append(b.Failures, *it)
		} else {
			b.Tasks = append(b.Tasks, *it)
		}
	}
	return b, nil
}
