// Package app is the composition root shared by the server, the CLI and the
// MCP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sourcegraph/conc"

	"github.com/kazz187/tasksmith/internal/board"
	"github.com/kazz187/tasksmith/internal/config"
	"github.com/kazz187/tasksmith/internal/effort"
	"github.com/kazz187/tasksmith/internal/embedding"
	"github.com/kazz187/tasksmith/internal/enrich"
	"github.com/kazz187/tasksmith/internal/eventbus"
	"github.com/kazz187/tasksmith/internal/generation"
	"github.com/kazz187/tasksmith/internal/indexer"
	"github.com/kazz187/tasksmith/internal/pipeline"
	"github.com/kazz187/tasksmith/internal/project"
	projectrepo "github.com/kazz187/tasksmith/internal/project/repositoryimpl"
	"github.com/kazz187/tasksmith/internal/synthesis"
	"github.com/kazz187/tasksmith/internal/task"
	taskrepo "github.com/kazz187/tasksmith/internal/task/repositoryimpl"
	"github.com/kazz187/tasksmith/pkg/panicerr"
	"github.com/kazz187/tasksmith/pkg/storage"
)

// Options are the already-constructed leaves of the graph.
type Options struct {
	Storage   storage.Storage
	Backend   generation.Backend
	Engine    embedding.Engine
	Policy    config.PolicySource
	IndexPath string
}

type App struct {
	Policy   config.PolicySource
	Projects project.Repository
	Tasks    task.Repository
	Triage   task.TriageRepository
	Board    *board.Board
	EventBus *eventbus.Bus
	Similar  *embedding.Service
	Indexer  *indexer.Indexer
	Pipeline *pipeline.Service

	index *embedding.SQLiteIndex
	wg    *conc.WaitGroup
}

func Build(o Options) (*App, error) {
	if o.IndexPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(o.IndexPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}
	idx, err := embedding.OpenSQLiteIndex(o.IndexPath)
	if err != nil {
		return nil, err
	}

	projects := projectrepo.NewYAMLRepository(o.Storage)
	tasks := taskrepo.NewYAMLRepository(o.Storage)
	triage := taskrepo.NewYAMLTriageRepository(o.Storage)
	b := board.New(projects, tasks)
	bus := eventbus.New()
	similar := embedding.NewService(o.Engine, idx, o.Policy)

	generator := synthesis.NewGenerator(
		synthesis.NewExtractor(o.Backend),
		synthesis.NewSynthesizer(o.Backend),
		b,
		o.Policy,
	)
	enricher := enrich.NewEnricher(enrich.Deps{
		Backend:    o.Backend,
		Board:      b,
		Similarity: similar,
		Dwell:      effort.NewReader(b),
		Policy:     o.Policy,
	})

	return &App{
		Policy:   o.Policy,
		Projects: projects,
		Tasks:    tasks,
		Triage:   triage,
		Board:    b,
		EventBus: bus,
		Similar:  similar,
		Indexer:  indexer.New(bus, tasks, triage, similar),
		Pipeline: pipeline.NewService(pipeline.Deps{
			Generator:  generator,
			Enricher:   enricher,
			Similarity: similar,
			Projects:   projects,
			Triage:     triage,
			EventBus:   bus,
			Policy:     o.Policy,
		}),
		index: idx,
		wg:    conc.NewWaitGroup(),
	}, nil
}

// New builds the application from the environment.
func New(ctx context.Context, env *config.Env) (*App, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	store, err := newStorage(ctx, env)
	if err != nil {
		return nil, err
	}
	backend, engine, err := newGeneration(ctx, env)
	if err != nil {
		return nil, err
	}
	policy, err := newPolicy(env)
	if err != nil {
		return nil, err
	}
	slog.Info("application configured",
		"storage", env.StorageEnv.Type, "backend", backend.Name(), "embedding", engine.Name())
	return Build(Options{
		Storage:   store,
		Backend:   backend,
		Engine:    engine,
		Policy:    policy,
		IndexPath: env.DBPath,
	})
}

func newStorage(ctx context.Context, env *config.Env) (storage.Storage, error) {
	switch env.StorageEnv.Type {
	case "s3":
		return storage.NewS3Storage(ctx, env.S3Bucket, env.S3Prefix, env.S3Region)
	default:
		return storage.NewLocalStorage(env.BaseDir)
	}
}

func newGeneration(ctx context.Context, env *config.Env) (generation.Backend, embedding.Engine, error) {
	var backend generation.Backend
	var engine embedding.Engine

	needGenAI := env.GenerationEnv.Backend == "genai" || env.Provider == "genai"
	if needGenAI {
		client, err := generation.NewGenAIClient(ctx, env.GenAIAPIKey)
		if err != nil {
			return nil, nil, err
		}
		if env.GenerationEnv.Backend == "genai" {
			backend = generation.NewGenAIBackend(client, env.GenAIModel)
		}
		if env.Provider == "genai" {
			engine = embedding.NewGenAIEngine(client, env.Model)
		}
	}
	if env.GenerationEnv.Backend == "claude" {
		backend = generation.NewClaudeBackend(env.ClaudeWorkDir)
	}
	switch env.Provider {
	case "ollama":
		engine = embedding.NewOllamaEngine(env.OllamaEndpoint, env.Model)
	case "hash":
		engine = embedding.NewHashEngine(0)
	}
	if backend == nil || engine == nil {
		return nil, nil, errors.New("generation backend or embedding provider not configured")
	}
	return backend, engine, nil
}

func newPolicy(env *config.Env) (config.PolicySource, error) {
	if env.PolicyFile == "" {
		return config.StaticPolicy(config.DefaultPolicy()), nil
	}
	return config.NewPolicyWatcher(env.PolicyFile)
}

// Start runs the background workers: the embedding indexer and, when the
// policy comes from a file, its watcher. They stop when ctx is done.
func (a *App) Start(ctx context.Context) {
	a.wg.Go(func() { a.Indexer.Start(ctx) })
	if w, ok := a.Policy.(*config.PolicyWatcher); ok {
		a.wg.Go(func() {
			if err := panicerr.SafeContext(w.Watch)(ctx); err != nil {
				slog.Error("policy watcher stopped", "error", err)
			}
		})
	}
}

// Close waits for the workers started by Start and releases the index.
func (a *App) Close() error {
	a.wg.Wait()
	a.EventBus.Close()
	return a.index.Close()
}
