package indexer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/tasksmith/internal/config"
	"github.com/kazz187/tasksmith/internal/embedding"
	"github.com/kazz187/tasksmith/internal/eventbus"
	"github.com/kazz187/tasksmith/internal/task"
	"github.com/kazz187/tasksmith/internal/task/repositoryimpl"
	"github.com/kazz187/tasksmith/pkg/storage"
)

type fixture struct {
	indexer *Indexer
	bus     *eventbus.Bus
	tasks   task.Repository
	triage  task.TriageRepository
	service *embedding.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemoryStorage()
	idx, err := embedding.OpenSQLiteIndex(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	f := &fixture{
		bus:     eventbus.New(),
		tasks:   repositoryimpl.NewYAMLRepository(store),
		triage:  repositoryimpl.NewYAMLTriageRepository(store),
		service: embedding.NewService(embedding.NewHashEngine(256), idx, config.StaticPolicy(config.DefaultPolicy())),
	}
	f.indexer = New(f.bus, f.tasks, f.triage, f.service)
	return f
}

func TestIndexer_Reindex(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	now := time.Now()

	require.NoError(t, f.tasks.Create(ctx, &task.Task{ID: "T1", ProjectID: "p1", Title: "Rotate database credentials",
		Priority: task.PriorityLow, Progress: task.ProgressDone, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, f.triage.Create(ctx, &task.TriageTask{ID: "R1", ProjectID: "p1",
		Draft: task.Draft{Title: "Email the client about pricing"}, Source: task.SourceManual, Status: task.TriagePending,
		CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, f.triage.Create(ctx, &task.TriageTask{ID: "R2", ProjectID: "p1",
		Draft: task.Draft{Title: "Old idea"}, Source: task.SourceManual, Status: task.TriageRejected,
		CreatedAt: now, UpdatedAt: now}))

	st, err := f.indexer.Reindex(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, Stats{Indexed: 2}, st)

	st, err = f.indexer.Reindex(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, Stats{Skipped: 2}, st)

	vec, err := f.service.Embed(ctx, "Email the client about pricing")
	require.NoError(t, err)
	matches, err := f.service.FindSimilar(ctx, "p1", vec, embedding.Filter{IncludeTriage: true}, 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "R1", matches[0].TaskID)
}

func TestIndexer_IndexesOnEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := newFixture(t)
	now := time.Now()
	require.NoError(t, f.triage.Create(ctx, &task.TriageTask{ID: "R1", ProjectID: "p1",
		Draft: task.Draft{Title: "Schedule the kickoff call"}, Source: task.SourceGenerated, Status: task.TriagePending,
		CreatedAt: now, UpdatedAt: now}))

	done := make(chan struct{})
	go func() {
		f.indexer.Start(ctx)
		close(done)
	}()
	// wait for the subscription before publishing
	require.Eventually(t, func() bool {
		f.bus.PublishNew(eventbus.TypeTriageCreated, "p1", "R1", nil)
		vec, err := f.service.Embed(ctx, "Schedule the kickoff call")
		if err != nil {
			return false
		}
		matches, err := f.service.FindSimilar(ctx, "p1", vec, embedding.Filter{IncludeTriage: true}, 1)
		return err == nil && len(matches) == 1
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	<-done
}
