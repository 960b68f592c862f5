package repositoryimpl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/tasksmith/internal/task"
	"github.com/kazz187/tasksmith/pkg/cerr"
	"github.com/kazz187/tasksmith/pkg/storage"
)

func TestYAMLRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewYAMLRepository(storage.NewMemoryStorage())
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	tasks := []*task.Task{
		{ID: "t1", ProjectID: "p1", Title: "old", Progress: task.ProgressDone, UpdatedAt: now},
		{ID: "t2", ProjectID: "p1", Title: "new", Progress: task.ProgressInProgress, Assignees: []string{"alice"}, UpdatedAt: now.Add(time.Hour)},
		{ID: "t3", ProjectID: "p2", Title: "other project", Progress: task.ProgressNotStarted, UpdatedAt: now},
	}
	for _, tk := range tasks {
		require.NoError(t, repo.Create(ctx, tk))
	}
	assert.True(t, cerr.IsCode(repo.Create(ctx, tasks[0]), cerr.AlreadyExists))

	got, err := repo.Get(ctx, "p1", "t2")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, got.Assignees)

	_, err = repo.Get(ctx, "p2", "t2")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))

	list, err := repo.List(ctx, "p1", task.Filter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "t2", list[0].ID)

	open, err := repo.List(ctx, "p1", task.Filter{OpenOnly: true})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "t2", open[0].ID)

	got.Title = "renamed"
	require.NoError(t, repo.Update(ctx, got))
	got, err = repo.Get(ctx, "p1", "t2")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)

	assert.True(t, cerr.IsCode(repo.Update(ctx, &task.Task{ID: "nope", ProjectID: "p1"}), cerr.NotFound))
}

func TestYAMLTriageRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewYAMLTriageRepository(storage.NewMemoryStorage())
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	pending := &task.TriageTask{
		ID: "tr1", ProjectID: "p1", Source: task.SourceWebhook, Status: task.TriagePending, CreatedAt: now,
		Draft: task.Draft{Title: "Fix login redirect", Priority: task.PriorityHigh},
	}
	enriched := &task.TriageTask{
		ID: "tr2", ProjectID: "p1", Source: task.SourceManual, Status: task.TriageEnriched, CreatedAt: now.Add(time.Minute),
		Draft: task.Draft{Title: "Write docs", Priority: task.PriorityLow, Category: "docs"},
		Enrichment: &task.Enrichment{
			Reasoning:  map[string]string{"category": "docs fits"},
			EffortMean: 90 * time.Minute,
			EffortTier: "project-similar",
			Exhausted:  []string{"dependency"},
		},
	}
	require.NoError(t, repo.Create(ctx, pending))
	require.NoError(t, repo.Create(ctx, enriched))

	got, err := repo.Get(ctx, "p1", "tr2")
	require.NoError(t, err)
	assert.Equal(t, "Write docs", got.Title)
	require.NotNil(t, got.Enrichment)
	assert.Equal(t, 90*time.Minute, got.Enrichment.EffortMean)
	assert.Equal(t, []string{"dependency"}, got.Enrichment.Exhausted)

	all, err := repo.List(ctx, "p1", "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "tr1", all[0].ID)

	onlyPending, err := repo.List(ctx, "p1", task.TriagePending)
	require.NoError(t, err)
	require.Len(t, onlyPending, 1)

	_, err = repo.Get(ctx, "p2", "tr1")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}
