// Package indexer keeps the embedding index in step with the board and the
// triage inbox, so that later batches can be deduplicated against them.
package indexer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kazz187/tasksmith/internal/embedding"
	"github.com/kazz187/tasksmith/internal/eventbus"
	"github.com/kazz187/tasksmith/internal/task"
)

type Embedder interface {
	Index(ctx context.Context, e embedding.Entry) (bool, error)
}

type Indexer struct {
	eventBus *eventbus.Bus
	tasks    task.Repository
	triage   task.TriageRepository
	embedder Embedder
}

func New(eventBus *eventbus.Bus, tasks task.Repository, triage task.TriageRepository, embedder Embedder) *Indexer {
	return &Indexer{
		eventBus: eventBus,
		tasks:    tasks,
		triage:   triage,
		embedder: embedder,
	}
}

// Start subscribes to the event bus and embeds triage tasks as they are
// created or enriched. It blocks until ctx is cancelled.
func (i *Indexer) Start(ctx context.Context) {
	subID, ch := i.eventBus.Subscribe(256)
	defer i.eventBus.Unsubscribe(subID)

	slog.Info("indexer started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("indexer stopped")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			switch event.Type {
			case eventbus.TypeTriageCreated, eventbus.TypeTriageEnriched:
				if err := i.IndexTriage(ctx, event.ProjectID, event.ResourceID); err != nil {
					slog.Error("indexer: failed to index triage task",
						"project_id", event.ProjectID, "triage_task_id", event.ResourceID, "error", err)
				}
			}
		}
	}
}

func (i *Indexer) IndexTriage(ctx context.Context, projectID, id string) error {
	t, err := i.triage.Get(ctx, projectID, id)
	if err != nil {
		return err
	}
	written, err := i.embedder.Index(ctx, embedding.Entry{
		ProjectID: projectID,
		TaskID:    t.ID,
		Kind:      embedding.KindTriage,
		Draft:     t.Draft,
	})
	if err != nil {
		return err
	}
	slog.DebugContext(ctx, "triage task indexed", "triage_task_id", id, "written", written)
	return nil
}

type Stats struct {
	Indexed int `json:"indexed"`
	Skipped int `json:"skipped"`
}

// Reindex embeds every board task of the project and every triage task still
// awaiting review. Unchanged entries are skipped.
func (i *Indexer) Reindex(ctx context.Context, projectID string) (Stats, error) {
	var entries []embedding.Entry

	tasks, err := i.tasks.List(ctx, projectID, task.Filter{})
	if err != nil {
		return Stats{}, err
	}
	for _, t := range tasks {
		entries = append(entries, embedding.Entry{ProjectID: projectID, TaskID: t.ID, Kind: embedding.KindTask, Draft: t.Draft()})
	}
	for _, status := range []task.TriageStatus{task.TriagePending, task.TriageEnriched} {
		triage, err := i.triage.List(ctx, projectID, status)
		if err != nil {
			return Stats{}, err
		}
		for _, t := range triage {
			entries = append(entries, embedding.Entry{ProjectID: projectID, TaskID: t.ID, Kind: embedding.KindTriage, Draft: t.Draft})
		}
	}

	var st Stats
	for _, e := range entries {
		written, err := i.embedder.Index(ctx, e)
		if err != nil {
			return st, fmt.Errorf("failed to index %s: %w", e.TaskID, err)
		}
		if written {
			st.Indexed++
		} else {
			st.Skipped++
		}
	}
	slog.InfoContext(ctx, "reindex finished", "project_id", projectID, "indexed", st.Indexed, "skipped", st.Skipped)
	return st, nil
}
