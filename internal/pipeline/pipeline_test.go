package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/tasksmith/internal/board"
	"github.com/kazz187/tasksmith/internal/config"
	"github.com/kazz187/tasksmith/internal/effort"
	"github.com/kazz187/tasksmith/internal/embedding"
	"github.com/kazz187/tasksmith/internal/enrich"
	"github.com/kazz187/tasksmith/internal/eventbus"
	"github.com/kazz187/tasksmith/internal/generation"
	"github.com/kazz187/tasksmith/internal/generation/generationtest"
	"github.com/kazz187/tasksmith/internal/project"
	projectrepo "github.com/kazz187/tasksmith/internal/project/repositoryimpl"
	"github.com/kazz187/tasksmith/internal/synthesis"
	"github.com/kazz187/tasksmith/internal/task"
	taskrepo "github.com/kazz187/tasksmith/internal/task/repositoryimpl"
	"github.com/kazz187/tasksmith/pkg/cerr"
	"github.com/kazz187/tasksmith/pkg/clog"
	"github.com/kazz187/tasksmith/pkg/storage"
)

type testEnv struct {
	service    *Service
	router     http.Handler
	tasks      task.Repository
	triage     task.TriageRepository
	similarity *embedding.Service
	bus        *eventbus.Bus
}

func newTestEnv(t *testing.T, backend generation.Backend) *testEnv {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	projects := projectrepo.NewYAMLRepository(store)
	tasks := taskrepo.NewYAMLRepository(store)
	triage := taskrepo.NewYAMLTriageRepository(store)
	now := time.Now()
	require.NoError(t, projects.Create(ctx, &project.Project{
		ID: "p1", Name: "Website", Description: "Marketing site", Visibility: project.VisibilityPrivate,
		Categories: []string{"sales", "ops"},
		Members:    []project.Member{{ID: "alice", Name: "Alice"}, {ID: "bob", Name: "Bob"}},
		CreatedAt:  now, UpdatedAt: now,
	}))

	idx, err := embedding.OpenSQLiteIndex(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	policy := config.StaticPolicy(config.DefaultPolicy())
	sim := embedding.NewService(embedding.NewHashEngine(256), idx, policy)
	b := board.New(projects, tasks)
	bus := eventbus.New()

	svc := NewService(Deps{
		Generator: synthesis.NewGenerator(synthesis.NewExtractor(backend), synthesis.NewSynthesizer(backend), b, policy),
		Enricher: enrich.NewEnricher(enrich.Deps{
			Backend: backend, Board: b, Similarity: sim, Dwell: effort.NewReader(b), Policy: policy,
		}),
		Similarity: sim,
		Projects:   projects,
		Triage:     triage,
		EventBus:   bus,
		Policy:     policy,
	})

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(clog.SlogChiMiddleware(), cerr.NewConvertErrorChiMiddleware())
		NewServer(svc).Routes(r)
	})
	return &testEnv{service: svc, router: r, tasks: tasks, triage: triage, similarity: sim, bus: bus}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func lines(t *testing.T, body string) []map[string]json.RawMessage {
	t.Helper()
	var out []map[string]json.RawMessage
	sc := bufio.NewScanner(strings.NewReader(body))
	sc.Buffer(make([]byte, 1<<20), 1<<20)
	for sc.Scan() {
		var m map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m), sc.Text())
		out = append(out, m)
	}
	return out
}

func errorCode(t *testing.T, raw json.RawMessage) string {
	t.Helper()
	var b cerr.Body
	require.NoError(t, json.Unmarshal(raw, &b))
	return b.Code
}

func synthesisHandler(req generation.Request) (any, error) {
	msg := req.Conversation.Messages()[0].Content
	title := "Schedule the kickoff call"
	if strings.Contains(msg, "Email") {
		title = "Email the client about pricing"
	}
	return map[string]any{
		"title": title, "description": "Due this week.", "priority": "medium",
		"category": "none", "assignees": []string{},
	}, nil
}

func TestServer_GenerateTasks(t *testing.T) {
	ctx := context.Background()
	backend := generationtest.New().
		Always("extraction", map[string]any{"snippets": []string{
			"Email the client about pricing by Friday.", "schedule the kickoff call.",
		}}).
		On("task_synthesis", synthesisHandler)
	env := newTestEnv(t, backend)

	// an existing board task with the same content as the second snippet's task
	now := time.Now()
	existing := &task.Task{ID: "T1", ProjectID: "p1", Title: "Schedule the kickoff call", Description: "Due this week.",
		Priority: task.PriorityMedium, Progress: task.ProgressNotStarted, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, env.tasks.Create(ctx, existing))
	_, err := env.similarity.Index(ctx, embedding.Entry{ProjectID: "p1", TaskID: "T1", Kind: embedding.KindTask, Draft: existing.Draft()})
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/projects/p1/tasks/generate",
		`{"freeText":"Email the client about pricing by Friday. Also, schedule the kickoff call."}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	got := lines(t, rec.Body.String())
	require.Len(t, got, 2)

	var created GeneratedTask
	require.NoError(t, json.Unmarshal(mustMarshal(t, got[0]), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Email the client about pricing", created.Title)
	assert.Equal(t, task.PriorityMedium, created.Priority)
	assert.Empty(t, created.Category)

	var done generateDone
	require.NoError(t, json.Unmarshal(mustMarshal(t, got[1]), &done))
	assert.True(t, done.Done)
	assert.Equal(t, 2, done.Summary.Snippets)
	assert.Equal(t, 1, done.Summary.Created)
	require.Len(t, done.Summary.Duplicates, 1)
	assert.Equal(t, "T1", done.Summary.Duplicates[0].DuplicateOf)

	pending, err := env.triage.List(ctx, "p1", task.TriagePending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, created.ID, pending[0].ID)
	assert.Equal(t, task.SourceGenerated, pending[0].Source)
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestServer_GenerateTasks_Errors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     string
		backend  *generationtest.Backend
		status   int
		code     string
		streamed bool
	}{
		{
			name:    "missing free text",
			path:    "/api/projects/p1/tasks/generate",
			body:    `{"freeText":"   "}`,
			backend: generationtest.New(),
			status:  http.StatusBadRequest,
			code:    "invalid_argument",
		},
		{
			name:    "malformed body",
			path:    "/api/projects/p1/tasks/generate",
			body:    `{"freeText":`,
			backend: generationtest.New(),
			status:  http.StatusBadRequest,
			code:    "invalid_argument",
		},
		{
			name:    "unknown project",
			path:    "/api/projects/nope/tasks/generate",
			body:    `{"freeText":"Do it."}`,
			backend: generationtest.New(),
			status:  http.StatusNotFound,
			code:    "not_found",
		},
		{
			name:    "extraction backend down",
			path:    "/api/projects/p1/tasks/generate",
			body:    `{"freeText":"Do it."}`,
			backend: generationtest.New().Always("extraction", errors.New("connection refused")),
			status:  http.StatusServiceUnavailable,
			code:    "unavailable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.backend)
			rec := env.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)

			got := lines(t, rec.Body.String())
			require.Len(t, got, 1)
			assert.Equal(t, tt.code, errorCode(t, got[0]["error"]))
		})
	}
}

func enrichmentBackend() *generationtest.Backend {
	return generationtest.New().
		Always("category_candidate", map[string]any{"category": "sales", "reasoning": "pricing talk"}).
		Always("category_verdict", map[string]any{"category": "sales", "decision": "accept", "reasoning": "fits"}).
		Always("assignee", map[string]any{"assignee": []string{"bob"}, "score": 70, "reasoning": "bob handles clients"}).
		Always("requirements_candidate", map[string]any{"featureRequirements": []string{"Send the price sheet"}, "reasoning": "from title"}).
		Always("requirements_verdict", map[string]any{"decision": "accept", "reasoning": "faithful"}).
		Always("dependency_candidate", map[string]any{"dependency": []string{}, "reasoning": "nothing blocks it"}).
		Always("dependency_verdict", map[string]any{"decision": "accept", "reasoning": "agreed"})
}

func createTriage(t *testing.T, env *testEnv, title string) *task.TriageTask {
	t.Helper()
	tt, err := env.service.Intake(context.Background(), IntakeRequest{ProjectID: "p1", Title: title})
	require.NoError(t, err)
	return tt
}

func TestServer_EnhanceTriageTask(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, enrichmentBackend())
	tt := createTriage(t, env, "Email the client about pricing")

	rec := env.do(t, http.MethodPost, "/api/projects/p1/triage/"+tt.ID+"/enhance", "")
	require.Equal(t, http.StatusOK, rec.Code)

	got := lines(t, rec.Body.String())
	var states []string
	for _, l := range got {
		var s string
		require.NoError(t, json.Unmarshal(l["state"], &s))
		states = append(states, s)
	}
	assert.Equal(t, []string{"category", "assignee", "description", "dependency", "done"}, states)
	assert.Contains(t, got[4], "triageTask")

	stored, err := env.triage.Get(ctx, "p1", tt.ID)
	require.NoError(t, err)
	assert.Equal(t, task.TriageEnriched, stored.Status)
	assert.Equal(t, "sales", stored.Category)
	assert.Equal(t, []string{"bob"}, stored.Assignees)
	assert.Contains(t, stored.Description, "- Send the price sheet")
	require.NotNil(t, stored.Enrichment)
	assert.Equal(t, string(enrich.TierNone), stored.Enrichment.EffortTier)
	assert.Equal(t, "pricing talk", stored.Enrichment.Reasoning["category"])
	assert.Empty(t, stored.Enrichment.Exhausted)
}

func TestServer_EnhanceTriageTask_Errors(t *testing.T) {
	t.Run("unknown triage task", func(t *testing.T) {
		env := newTestEnv(t, enrichmentBackend())
		rec := env.do(t, http.MethodPost, "/api/projects/p1/triage/missing/enhance", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		got := lines(t, rec.Body.String())
		require.Len(t, got, 1)
		assert.Equal(t, "not_found", errorCode(t, got[0]["error"]))
	})

	t.Run("triage task of another project", func(t *testing.T) {
		env := newTestEnv(t, enrichmentBackend())
		tt := createTriage(t, env, "Email the client")
		rec := env.do(t, http.MethodPost, "/api/projects/p2/triage/"+tt.ID+"/enhance", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("backend failure mid stream", func(t *testing.T) {
		env := newTestEnv(t, generationtest.New().Always("category_candidate", errors.New("connection refused")))
		tt := createTriage(t, env, "Email the client")

		rec := env.do(t, http.MethodPost, "/api/projects/p1/triage/"+tt.ID+"/enhance", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		got := lines(t, rec.Body.String())
		require.Len(t, got, 2)
		assert.JSONEq(t, `"category"`, string(got[0]["state"]))
		assert.Equal(t, "unavailable", errorCode(t, got[1]["error"]))

		stored, err := env.triage.Get(context.Background(), "p1", tt.ID)
		require.NoError(t, err)
		assert.Equal(t, task.TriagePending, stored.Status)
	})
}

func TestServer_CreateTriageTask(t *testing.T) {
	env := newTestEnv(t, generationtest.New())

	rec := env.do(t, http.MethodPost, "/api/projects/p1/triage",
		`{"title":"Renew the TLS certificate","priority":"high","assignees":["alice","mallory"],"source":"webhook"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var got task.TriageTask
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, task.PriorityHigh, got.Priority)
	assert.Equal(t, []string{"alice"}, got.Assignees)
	assert.Equal(t, task.SourceWebhook, got.Source)
	assert.Equal(t, task.TriagePending, got.Status)

	rec = env.do(t, http.MethodPost, "/api/projects/p1/triage", `{"title":"x","priority":"urgent"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestService_Subscribe(t *testing.T) {
	env := newTestEnv(t, generationtest.New())
	ctx, cancel := context.WithCancel(context.Background())

	ch := env.service.Subscribe(ctx, "p1", []eventbus.Type{eventbus.TypeTriageCreated})
	env.bus.PublishNew(eventbus.TypeTriageCreated, "p2", "other", nil)
	env.bus.PublishNew(eventbus.TypeTriageEnriched, "p1", "skipped", nil)
	env.bus.PublishNew(eventbus.TypeTriageCreated, "p1", "wanted", nil)

	select {
	case ev := <-ch:
		assert.Equal(t, "wanted", ev.ResourceID)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	for range ch {
	}
}
