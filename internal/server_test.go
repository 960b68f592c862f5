package internal

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/tasksmith/internal/app"
	"github.com/kazz187/tasksmith/internal/config"
	"github.com/kazz187/tasksmith/internal/embedding"
	"github.com/kazz187/tasksmith/internal/generation/generationtest"
	"github.com/kazz187/tasksmith/internal/pipeline"
	"github.com/kazz187/tasksmith/pkg/storage"
)

func newHandler(t *testing.T) http.Handler {
	t.Helper()
	a, err := app.Build(app.Options{
		Storage:   storage.NewMemoryStorage(),
		Backend:   generationtest.New(),
		Engine:    embedding.NewHashEngine(32),
		Policy:    config.StaticPolicy(config.DefaultPolicy()),
		IndexPath: ":memory:",
	})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	env := &config.Env{BaseEnv: config.BaseEnv{APIKey: "secret"}}
	return NewServer(env, pipeline.NewServer(a.Pipeline)).Handler()
}

func TestServer_Handler(t *testing.T) {
	h := newHandler(t)

	tests := []struct {
		name   string
		method string
		path   string
		header map[string]string
		body   string
		status int
	}{
		{name: "health without key", method: http.MethodGet, path: "/health", status: http.StatusOK},
		{name: "missing key", method: http.MethodPost, path: "/api/projects/p1/triage", body: `{}`, status: http.StatusUnauthorized},
		{name: "wrong key", method: http.MethodPost, path: "/api/projects/p1/triage",
			header: map[string]string{"X-API-Key": "nope"}, body: `{}`, status: http.StatusUnauthorized},
		{name: "bearer key reaches api", method: http.MethodPost, path: "/api/projects/p1/triage",
			header: map[string]string{"Authorization": "Bearer secret"}, body: `{"title":"x"}`, status: http.StatusNotFound},
		{name: "unknown api route", method: http.MethodGet, path: "/api/nothing",
			header: map[string]string{"X-API-Key": "secret"}, status: http.StatusNotFound},
		{name: "validation error", method: http.MethodPost, path: "/api/projects/p1/triage",
			header: map[string]string{"X-API-Key": "secret"}, body: `{}`, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}
