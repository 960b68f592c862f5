package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/mark3labs/mcp-go/server"
	"github.com/pmezard/go-difflib/difflib"
	"gopkg.in/yaml.v3"

	"github.com/kazz187/tasksmith/internal/app"
	"github.com/kazz187/tasksmith/internal/config"
	"github.com/kazz187/tasksmith/internal/enrich"
	"github.com/kazz187/tasksmith/internal/mcpserver"
	"github.com/kazz187/tasksmith/internal/pipeline"
	"github.com/kazz187/tasksmith/internal/task"
	"github.com/kazz187/tasksmith/pkg/clog"
)

var (
	cli = kingpin.New("tasksmith", "Turn free text into triage tasks and enrich them for review")

	project = cli.Flag("project", "Project ID").Short('p').Envar("TASKSMITH_PROJECT").String()

	generateCmd  = cli.Command("generate", "Extract tasks from free text and file them in triage")
	generateText = generateCmd.Arg("text", "Free text; read from stdin when omitted").String()

	intakeCmd         = cli.Command("intake", "File a single triage task")
	intakeTitle       = intakeCmd.Arg("title", "Task title").Required().String()
	intakeDescription = intakeCmd.Flag("description", "Task description").String()
	intakePriority    = intakeCmd.Flag("priority", "Task priority").Default("low").Enum("low", "medium", "high")
	intakeAssignees   = intakeCmd.Flag("assignee", "Assignee member ID (repeatable)").Strings()

	enhanceCmd  = cli.Command("enhance", "Enrich a triage task")
	enhanceID   = enhanceCmd.Arg("id", "Triage task ID").Required().String()
	enhanceDiff = enhanceCmd.Flag("diff", "Print a diff of the task instead of the result").Bool()

	reindexCmd = cli.Command("reindex", "Rebuild the similarity index of a project")

	mcpCmd = cli.Command("mcp", "Serve the pipeline as MCP tools over stdio")
)

func main() {
	command := kingpin.MustParse(cli.Parse(os.Args[1:]))

	env, err := config.LoadEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(
		clog.NewTextHandler(os.Stderr, clog.WithLevel(env.SlogLevel()), clog.WithColor(command != mcpCmd.FullCommand())),
	)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, env, command); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, env *config.Env, command string) error {
	a, err := app.New(ctx, env)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	a.Start(ctx)
	defer func() {
		cancel()
		if err := a.Close(); err != nil {
			slog.Error("failed to close application", "error", err)
		}
	}()

	switch command {
	case generateCmd.FullCommand():
		return runGenerate(ctx, a, os.Stdin, os.Stdout)
	case intakeCmd.FullCommand():
		return runIntake(ctx, a, os.Stdout)
	case enhanceCmd.FullCommand():
		return runEnhance(ctx, a, os.Stdout)
	case reindexCmd.FullCommand():
		stats, err := a.Indexer.Reindex(ctx, *project)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, stats)
	case mcpCmd.FullCommand():
		return server.ServeStdio(mcpserver.New(a.Pipeline))
	}
	return fmt.Errorf("unknown command %q", command)
}

func runGenerate(ctx context.Context, a *app.App, stdin io.Reader, out io.Writer) error {
	text := *generateText
	if text == "" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		text = string(b)
	}
	sum, err := a.Pipeline.GenerateTasks(ctx, pipeline.GenerateRequest{ProjectID: *project, FreeText: text},
		func(g pipeline.GeneratedTask) error {
			_, err := fmt.Fprintf(out, "%s  [%s] %s\n", g.ID, g.Priority, g.Title)
			return err
		})
	if err != nil {
		return err
	}
	for _, d := range sum.Duplicates {
		fmt.Fprintf(out, "skipped duplicate of %s (%.2f): %s\n", d.DuplicateOf, d.Similarity, d.Title)
	}
	_, err = fmt.Fprintf(out, "%d snippets, %d created, %d duplicates, %d failed\n",
		sum.Snippets, sum.Created, len(sum.Duplicates), sum.Failed)
	return err
}

func runIntake(ctx context.Context, a *app.App, out io.Writer) error {
	t, err := a.Pipeline.Intake(ctx, pipeline.IntakeRequest{
		ProjectID:   *project,
		Title:       *intakeTitle,
		Description: *intakeDescription,
		Priority:    task.Priority(*intakePriority),
		Assignees:   *intakeAssignees,
	})
	if err != nil {
		return err
	}
	return printJSON(out, t)
}

func runEnhance(ctx context.Context, a *app.App, out io.Writer) error {
	before, err := a.Triage.Get(ctx, *project, *enhanceID)
	if err != nil {
		return err
	}
	after, err := a.Pipeline.EnhanceTriageTask(ctx, pipeline.EnhanceRequest{ProjectID: *project, TriageTaskID: *enhanceID},
		func(_ context.Context, stage enrich.Stage) error {
			slog.Info("enrichment stage", "stage", stage)
			return nil
		})
	if err != nil {
		return err
	}
	if !*enhanceDiff {
		return printJSON(out, after)
	}
	diff, err := draftDiff(before.Draft, after.Draft)
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, diff)
	return err
}

// draftDiff renders both drafts as YAML and returns their unified diff.
func draftDiff(before, after task.Draft) (string, error) {
	a, err := yaml.Marshal(before)
	if err != nil {
		return "", err
	}
	b, err := yaml.Marshal(after)
	if err != nil {
		return "", err
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(a)),
		B:        difflib.SplitLines(string(b)),
		FromFile: "before",
		ToFile:   "after",
		Context:  3,
	})
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
