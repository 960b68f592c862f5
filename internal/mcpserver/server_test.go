package mcpserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/tasksmith/internal/app"
	"github.com/kazz187/tasksmith/internal/config"
	"github.com/kazz187/tasksmith/internal/embedding"
	"github.com/kazz187/tasksmith/internal/generation/generationtest"
	"github.com/kazz187/tasksmith/internal/project"
	"github.com/kazz187/tasksmith/internal/task"
	"github.com/kazz187/tasksmith/pkg/storage"
)

func newTools(t *testing.T, backend *generationtest.Backend) *tools {
	t.Helper()
	a, err := app.Build(app.Options{
		Storage:   storage.NewMemoryStorage(),
		Backend:   backend,
		Engine:    embedding.NewHashEngine(64),
		Policy:    config.StaticPolicy(config.DefaultPolicy()),
		IndexPath: ":memory:",
	})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	now := time.Now()
	require.NoError(t, a.Projects.Create(context.Background(), &project.Project{
		ID: "p1", Name: "Ops", Categories: []string{"infra"},
		Members: []project.Member{{ID: "alice"}}, CreatedAt: now, UpdatedAt: now,
	}))
	return &tools{service: a.Pipeline}
}

func makeReq(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(r *mcp.CallToolResult) string {
	if r == nil {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestDefinitions(t *testing.T) {
	for _, def := range []mcp.Tool{generateTasksDefinition(), enhanceTriageTaskDefinition(), createTriageTaskDefinition()} {
		assert.Contains(t, def.InputSchema.Required, "project_id", def.Name)
	}
}

func TestGenerateTasks(t *testing.T) {
	backend := generationtest.New().
		Always("extraction", map[string]any{"snippets": []string{"Renew the certificates."}}).
		Always("task_synthesis", map[string]any{
			"title": "Renew the certificates", "description": "Before expiry.", "priority": "high",
			"category": "infra", "assignees": []string{},
		})
	tl := newTools(t, backend)

	res, err := tl.generateTasks(context.Background(), makeReq(map[string]any{
		"project_id": "p1", "free_text": "Renew the certificates.",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(res))

	var got generateResult
	require.NoError(t, json.Unmarshal([]byte(resultText(res)), &got))
	require.Len(t, got.Tasks, 1)
	assert.Equal(t, "infra", got.Tasks[0].Category)
	assert.Equal(t, 1, got.Summary.Created)
}

func TestGenerateTasks_MissingArgument(t *testing.T) {
	tl := newTools(t, generationtest.New())
	res, err := tl.generateTasks(context.Background(), makeReq(map[string]any{"project_id": "p1"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "invalid_argument")
}

func TestCreateAndEnhanceTriageTask(t *testing.T) {
	backend := generationtest.New().
		Always("category_candidate", map[string]any{"category": "infra", "reasoning": "certs"}).
		Always("category_verdict", map[string]any{"category": "infra", "decision": "accept", "reasoning": "ok"}).
		Always("requirements_candidate", map[string]any{"featureRequirements": []string{"Renew before expiry"}, "reasoning": "title"}).
		Always("requirements_verdict", map[string]any{"decision": "accept", "reasoning": "ok"})
	tl := newTools(t, backend)
	ctx := context.Background()

	res, err := tl.createTriageTask(ctx, makeReq(map[string]any{
		"project_id": "p1", "title": "Renew certificates", "priority": "HIGH", "assignees": "alice, mallory",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(res))
	var created task.TriageTask
	require.NoError(t, json.Unmarshal([]byte(resultText(res)), &created))
	assert.Equal(t, task.PriorityHigh, created.Priority)
	assert.Equal(t, []string{"alice"}, created.Assignees)

	res, err = tl.enhanceTriageTask(ctx, makeReq(map[string]any{"project_id": "p1", "triage_task_id": created.ID}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(res))

	var got struct {
		Stages     []string        `json:"stages"`
		TriageTask task.TriageTask `json:"triageTask"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(res)), &got))
	assert.Equal(t, []string{"category", "assignee", "description", "dependency", "done"}, got.Stages)
	assert.Equal(t, "infra", got.TriageTask.Category)
	assert.Equal(t, []string{"alice"}, got.TriageTask.Assignees)
	assert.Empty(t, backend.Calls("assignee"))
}
