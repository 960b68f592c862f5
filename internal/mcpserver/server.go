// Package mcpserver exposes task generation and triage enrichment as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kazz187/tasksmith/internal/enrich"
	"github.com/kazz187/tasksmith/internal/pipeline"
	"github.com/kazz187/tasksmith/internal/task"
	"github.com/kazz187/tasksmith/pkg/cerr"
	"github.com/kazz187/tasksmith/pkg/clog"
)

var Version = "dev"

func New(service *pipeline.Service) *server.MCPServer {
	s := server.NewMCPServer(
		"tasksmith",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	t := &tools{service: service}
	s.AddTool(generateTasksDefinition(), t.generateTasks)
	s.AddTool(enhanceTriageTaskDefinition(), t.enhanceTriageTask)
	s.AddTool(createTriageTaskDefinition(), t.createTriageTask)
	return s
}

type tools struct {
	service *pipeline.Service
}

func generateTasksDefinition() mcp.Tool {
	return mcp.NewTool("generate_tasks",
		mcp.WithDescription("Extract actionable items from free text such as meeting notes and file each one "+
			"as a triage task. Items that duplicate an existing task are skipped."),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project to file the tasks in")),
		mcp.WithString("free_text", mcp.Required(), mcp.Description("Unstructured text to extract tasks from")),
	)
}

type generateResult struct {
	Tasks   []pipeline.GeneratedTask  `json:"tasks"`
	Summary *pipeline.GenerateSummary `json:"summary"`
}

func (t *tools) generateTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res := generateResult{Tasks: []pipeline.GeneratedTask{}}
	sum, err := t.service.GenerateTasks(ctx, pipeline.GenerateRequest{
		ProjectID: req.GetString("project_id", ""),
		FreeText:  req.GetString("free_text", ""),
	}, func(g pipeline.GeneratedTask) error {
		res.Tasks = append(res.Tasks, g)
		return nil
	})
	if err != nil {
		return toolError(ctx, err), nil
	}
	res.Summary = sum
	return jsonResult(res)
}

func enhanceTriageTaskDefinition() mcp.Tool {
	return mcp.NewTool("enhance_triage_task",
		mcp.WithDescription("Fill in category, assignees, description and dependencies of a triage task. "+
			"The enriched task is stored for human review."),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project the triage task belongs to")),
		mcp.WithString("triage_task_id", mcp.Required(), mcp.Description("Triage task to enrich")),
	)
}

func (t *tools) enhanceTriageTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var stages []string
	tt, err := t.service.EnhanceTriageTask(ctx, pipeline.EnhanceRequest{
		ProjectID:    req.GetString("project_id", ""),
		TriageTaskID: req.GetString("triage_task_id", ""),
	}, func(ctx context.Context, stage enrich.Stage) error {
		stages = append(stages, string(stage))
		slog.DebugContext(ctx, "mcp enrichment stage", "stage", stage)
		return nil
	})
	if err != nil {
		return toolError(ctx, err), nil
	}
	return jsonResult(map[string]any{
		"stages":     append(stages, string(enrich.StageDone)),
		"triageTask": tt,
	})
}

func createTriageTaskDefinition() mcp.Tool {
	return mcp.NewTool("create_triage_task",
		mcp.WithDescription("File a task in the triage inbox of a project."),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project to file the task in")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Task title")),
		mcp.WithString("description", mcp.Description("Task description")),
		mcp.WithString("priority", mcp.Description("low, medium or high (default: low)")),
		mcp.WithString("assignees", mcp.Description("Comma separated member ids")),
	)
}

func (t *tools) createTriageTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var assignees []string
	for _, a := range strings.Split(req.GetString("assignees", ""), ",") {
		if a = strings.TrimSpace(a); a != "" {
			assignees = append(assignees, a)
		}
	}
	tt, err := t.service.Intake(ctx, pipeline.IntakeRequest{
		ProjectID:   req.GetString("project_id", ""),
		Title:       req.GetString("title", ""),
		Description: req.GetString("description", ""),
		Priority:    task.Priority(strings.ToLower(strings.TrimSpace(req.GetString("priority", "")))),
		Assignees:   assignees,
	})
	if err != nil {
		return toolError(ctx, err), nil
	}
	return jsonResult(tt)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

func toolError(ctx context.Context, err error) *mcp.CallToolResult {
	e := cerr.Normalize(ctx, err)
	slog.Log(ctx, clog.ConnectCodeToLevel(e.Code.ConnectCode()).Slog(), "mcp tool failed", "code", e.Code.String(), "error", err)
	return mcp.NewToolResultError(fmt.Sprintf("%s: %s", e.Code.String(), e.Msg))
}
