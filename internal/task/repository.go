package task

import (
	"context"
	"slices"
)

// Filter narrows List. Zero values match everything.
type Filter struct {
	Assignee string
	Category string
	Progress []Progress
	OpenOnly bool
	Limit    int
}

func (f Filter) Match(t *Task) bool {
	if f.Assignee != "" && !t.HasAssignee(f.Assignee) {
		return false
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if len(f.Progress) > 0 && !slices.Contains(f.Progress, t.Progress) {
		return false
	}
	if f.OpenOnly && t.Progress.IsTerminal() {
		return false
	}
	return true
}

// Repository lists are ordered by UpdatedAt, newest first.
type Repository interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, projectID, id string) (*Task, error)
	List(ctx context.Context, projectID string, f Filter) ([]*Task, error)
	Update(ctx context.Context, t *Task) error
}

type TriageRepository interface {
	Create(ctx context.Context, t *TriageTask) error
	Get(ctx context.Context, projectID, id string) (*TriageTask, error)
	List(ctx context.Context, projectID string, status TriageStatus) ([]*TriageTask, error)
	Update(ctx context.Context, t *TriageTask) error
}
