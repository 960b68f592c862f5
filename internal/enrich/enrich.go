// Package enrich fills in category, assignees, description and dependencies
// of a triage task, one stage at a time.
package enrich

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kazz187/tasksmith/internal/board"
	"github.com/kazz187/tasksmith/internal/embedding"
	"github.com/kazz187/tasksmith/internal/task"
)

// Board is the project read model the stages consult.
type Board interface {
	Vocabulary(ctx context.Context, projectID string) (board.Vocabulary, error)
	ProjectContext(ctx context.Context, projectID string) (board.Context, error)
	TasksInCategory(ctx context.Context, projectID, category string, limit int) ([]*task.Task, error)
	OpenTasks(ctx context.Context, projectID string, limit int) ([]*task.Task, error)
	TasksByAssignee(ctx context.Context, projectID, assignee string, limit int) ([]*task.Task, error)
	Workloads(ctx context.Context, projectID string) ([]board.Workload, error)
	RecentTasks(ctx context.Context, projectID string, perUser int) (map[string][]board.Digest, error)
}

type Similarity interface {
	Embed(ctx context.Context, content string) ([]float32, error)
	FindSimilar(ctx context.Context, projectID string, vec []float32, f embedding.Filter, limit int) ([]embedding.Match, error)
}

type DwellReader interface {
	InProgressDwell(ctx context.Context, projectID, taskID string) (time.Duration, error)
}

// Subject is the task being enriched, carrying every field resolved so far.
type Subject struct {
	ID        string
	ProjectID string
	Draft     task.Draft
}

// Field is one stage's result. Exhausted marks a critic loop that ran out of
// tries; Value is then the zero value.
type Field[T any] struct {
	Value     T
	Reasoning string
	Attempts  int
	Exhausted bool
}

func jsonBlock(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

func digests(tasks []*task.Task) []board.Digest {
	out := make([]board.Digest, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, board.DigestOf(t))
	}
	return out
}
