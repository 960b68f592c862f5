// Package board is the read model the pipeline consumes: vocabularies,
// workload snapshots and reference tasks, always scoped to one project.
package board

import (
	"context"
	"fmt"
	"sort"

	"github.com/kazz187/tasksmith/internal/project"
	"github.com/kazz187/tasksmith/internal/task"
)

type Board struct {
	projects project.Repository
	tasks    task.Repository
}

func New(projects project.Repository, tasks task.Repository) *Board {
	return &Board{projects: projects, tasks: tasks}
}

// Vocabulary constrains generated values to what the project already knows.
type Vocabulary struct {
	Categories []string `json:"categories"`
	Assignees  []string `json:"assignees"`
}

// Context is the descriptive project data shown to generators. Billing
// metadata is intentionally absent.
type Context struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Visibility  string `json:"visibility"`
}

// Workload counts a member's active tasks per priority.
type Workload struct {
	Assignee string `json:"assignee"`
	High     int    `json:"high"`
	Medium   int    `json:"medium"`
	Low      int    `json:"low"`
}

// Weighted applies per-priority weights keyed by priority name.
func (w Workload) Weighted(weights map[string]int) int {
	return w.High*weights[string(task.PriorityHigh)] +
		w.Medium*weights[string(task.PriorityMedium)] +
		w.Low*weights[string(task.PriorityLow)]
}

// Digest is the compact form of a task used in prompts.
type Digest struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Category string        `json:"category,omitempty"`
	Priority task.Priority `json:"priority"`
	Progress task.Progress `json:"progress"`
}

func DigestOf(t *task.Task) Digest {
	return Digest{ID: t.ID, Title: t.Title, Category: t.Category, Priority: t.Priority, Progress: t.Progress}
}

func (b *Board) Vocabulary(ctx context.Context, projectID string) (Vocabulary, error) {
	p, err := b.projects.Get(ctx, projectID)
	if err != nil {
		return Vocabulary{}, err
	}
	return Vocabulary{Categories: p.Categories, Assignees: p.MemberIDs()}, nil
}

func (b *Board) ProjectContext(ctx context.Context, projectID string) (Context, error) {
	p, err := b.projects.Get(ctx, projectID)
	if err != nil {
		return Context{}, err
	}
	return Context{Name: p.Name, Description: p.Description, Visibility: string(p.Visibility)}, nil
}

func (b *Board) TasksInCategory(ctx context.Context, projectID, category string, limit int) ([]*task.Task, error) {
	if category == "" {
		return nil, nil
	}
	return b.tasks.List(ctx, projectID, task.Filter{Category: category, Limit: limit})
}

// OpenTasks returns up to limit tasks in a non-terminal column, most recently touched first.
func (b *Board) OpenTasks(ctx context.Context, projectID string, limit int) ([]*task.Task, error) {
	return b.tasks.List(ctx, projectID, task.Filter{OpenOnly: true, Limit: limit})
}

func (b *Board) TasksByAssignee(ctx context.Context, projectID, assignee string, limit int) ([]*task.Task, error) {
	return b.tasks.List(ctx, projectID, task.Filter{Assignee: assignee, Limit: limit})
}

func (b *Board) ColumnHistory(ctx context.Context, projectID, taskID string) ([]task.ColumnEntry, error) {
	t, err := b.tasks.Get(ctx, projectID, taskID)
	if err != nil {
		return nil, err
	}
	return t.ColumnHistory, nil
}

// Workloads reports one entry per project member, members without active
// tasks included, sorted by member id.
func (b *Board) Workloads(ctx context.Context, projectID string) ([]Workload, error) {
	p, err := b.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	active, err := b.tasks.List(ctx, projectID, task.Filter{OpenOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list active tasks: %w", err)
	}
	byMember := make(map[string]*Workload, len(p.Members))
	for _, id := range p.MemberIDs() {
		byMember[id] = &Workload{Assignee: id}
	}
	for _, t := range active {
		for _, a := range t.Assignees {
			w, ok := byMember[a]
			if !ok {
				continue
			}
			switch t.Priority {
			case task.PriorityHigh:
				w.High++
			case task.PriorityMedium:
				w.Medium++
			default:
				w.Low++
			}
		}
	}
	out := make([]Workload, 0, len(byMember))
	for _, w := range byMember {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Assignee < out[j].Assignee })
	return out, nil
}

// RecentTasks returns, per member, the perUser most recently updated tasks
// assigned to them.
func (b *Board) RecentTasks(ctx context.Context, projectID string, perUser int) (map[string][]Digest, error) {
	p, err := b.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	all, err := b.tasks.List(ctx, projectID, task.Filter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	out := make(map[string][]Digest, len(p.Members))
	for _, id := range p.MemberIDs() {
		out[id] = []Digest{}
	}
	for _, t := range all {
		for _, a := range t.Assignees {
			list, ok := out[a]
			if !ok || (perUser > 0 && len(list) >= perUser) {
				continue
			}
			out[a] = append(list, DigestOf(t))
		}
	}
	return out, nil
}
