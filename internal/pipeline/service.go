// Package pipeline is the caller side of synthesis and enrichment: it
// validates requests, deduplicates and persists generated tasks, applies
// enrichment results to triage tasks and publishes progress events.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kazz187/tasksmith/internal/config"
	"github.com/kazz187/tasksmith/internal/embedding"
	"github.com/kazz187/tasksmith/internal/enrich"
	"github.com/kazz187/tasksmith/internal/eventbus"
	"github.com/kazz187/tasksmith/internal/project"
	"github.com/kazz187/tasksmith/internal/synthesis"
	"github.com/kazz187/tasksmith/internal/task"
	"github.com/kazz187/tasksmith/pkg/cerr"
	"github.com/kazz187/tasksmith/pkg/clog"
)

// Similarity is what the service needs from the embedding layer.
type Similarity interface {
	Embed(ctx context.Context, content string) ([]float32, error)
	FindSimilar(ctx context.Context, projectID string, vec []float32, f embedding.Filter, limit int) ([]embedding.Match, error)
	Index(ctx context.Context, e embedding.Entry) (bool, error)
}

type Service struct {
	generator  *synthesis.Generator
	enricher   *enrich.Enricher
	similarity Similarity
	projects   project.Repository
	triage     task.TriageRepository
	eventBus   *eventbus.Bus
	policy     config.PolicySource
	now        func() time.Time
}

type Deps struct {
	Generator  *synthesis.Generator
	Enricher   *enrich.Enricher
	Similarity Similarity
	Projects   project.Repository
	Triage     task.TriageRepository
	EventBus   *eventbus.Bus
	Policy     config.PolicySource
}

func NewService(d Deps) *Service {
	return &Service{
		generator:  d.Generator,
		enricher:   d.Enricher,
		similarity: d.Similarity,
		projects:   d.Projects,
		triage:     d.Triage,
		eventBus:   d.EventBus,
		policy:     d.Policy,
		now:        time.Now,
	}
}

type GenerateRequest struct {
	ProjectID string `json:"projectId"`
	FreeText  string `json:"freeText"`
}

func (r GenerateRequest) Validate() error {
	if strings.TrimSpace(r.ProjectID) == "" {
		return cerr.NewValidationError("projectId", "required", "projectId is required")
	}
	if strings.TrimSpace(r.FreeText) == "" {
		return cerr.NewValidationError("freeText", "required", "freeText is required")
	}
	return nil
}

// GeneratedTask is one persisted triage task produced from a snippet.
type GeneratedTask struct {
	ID      string `json:"id"`
	Snippet string `json:"snippet"`
	task.Draft
}

type Duplicate struct {
	Snippet     string  `json:"snippet"`
	Title       string  `json:"title"`
	DuplicateOf string  `json:"duplicateOf"`
	Similarity  float64 `json:"similarity"`
}

type GenerateSummary struct {
	Snippets   int         `json:"snippets"`
	Created    int         `json:"created"`
	Duplicates []Duplicate `json:"duplicates"`
	Failed     int         `json:"failed"`
}

// GenerateTasks synthesizes tasks from free text and persists every one
// that does not duplicate an existing task as a pending triage task. emit is
// called for each persisted task as soon as it is stored; an emit error
// stops further emission and is returned.
func (s *Service) GenerateTasks(ctx context.Context, req GenerateRequest, emit func(GeneratedTask) error) (*GenerateSummary, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	clog.AddAttribute(ctx, "project_id", req.ProjectID)
	if _, err := s.projects.Get(ctx, req.ProjectID); err != nil {
		return nil, err
	}
	uncategorized := s.policy.Current().Uncategorized

	sum := &GenerateSummary{Duplicates: []Duplicate{}}
	var fatalErr error
	// the generator serializes this callback, so dedup sees earlier items of the batch
	snippets, err := s.generator.Stream(ctx, req.ProjectID, req.FreeText, func(it synthesis.Item) {
		if fatalErr != nil {
			return
		}
		if it.Err != nil {
			sum.Failed++
			return
		}
		draft := it.Draft
		if draft.Category == uncategorized {
			draft.Category = ""
		}
		dup, err := s.duplicateOf(ctx, req.ProjectID, draft)
		if err != nil {
			fatalErr = err
			return
		}
		if dup != nil {
			slog.InfoContext(ctx, "skipped duplicate task",
				"project_id", req.ProjectID, "title", draft.Title, "duplicate_of", dup.TaskID, "similarity", dup.Similarity)
			sum.Duplicates = append(sum.Duplicates, Duplicate{
				Snippet: it.Snippet, Title: draft.Title, DuplicateOf: dup.TaskID, Similarity: dup.Similarity,
			})
			return
		}
		t, err := s.createTriage(ctx, req.ProjectID, draft, task.SourceGenerated)
		if err != nil {
			fatalErr = err
			return
		}
		sum.Created++
		if err := emit(GeneratedTask{ID: t.ID, Snippet: it.Snippet, Draft: t.Draft}); err != nil {
			fatalErr = err
		}
	})
	if err != nil {
		return nil, err
	}
	if fatalErr != nil {
		return nil, fatalErr
	}
	sum.Snippets = len(snippets)
	s.eventBus.PublishNew(eventbus.TypeGenerationFinished, req.ProjectID, "", map[string]string{
		"snippets": strconv.Itoa(sum.Snippets), "created": strconv.Itoa(sum.Created),
		"duplicates": strconv.Itoa(len(sum.Duplicates)), "failed": strconv.Itoa(sum.Failed),
	})
	slog.InfoContext(ctx, "task generation finished", "project_id", req.ProjectID,
		"snippets", sum.Snippets, "created", sum.Created, "duplicates", len(sum.Duplicates), "failed", sum.Failed)
	return sum, nil
}

// duplicateOf returns the best match at or above the similarity threshold
// among board tasks and triage tasks, or nil.
func (s *Service) duplicateOf(ctx context.Context, projectID string, d task.Draft) (*embedding.Match, error) {
	vec, err := s.similarity.Embed(ctx, embedding.Content(d))
	if err != nil {
		return nil, err
	}
	matches, err := s.similarity.FindSimilar(ctx, projectID, vec, embedding.Filter{IncludeTriage: true}, 1)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return &matches[0], nil
}

func (s *Service) createTriage(ctx context.Context, projectID string, d task.Draft, source task.TriageSource) (*task.TriageTask, error) {
	now := s.now()
	t := &task.TriageTask{
		ID:        ulid.Make().String(),
		ProjectID: projectID,
		Draft:     d,
		Source:    source,
		Status:    task.TriagePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.triage.Create(ctx, t); err != nil {
		return nil, err
	}
	// indexed inline so that the rest of a batch dedupes against it
	if _, err := s.similarity.Index(ctx, embedding.Entry{
		ProjectID: projectID, TaskID: t.ID, Kind: embedding.KindTriage, Draft: t.Draft,
	}); err != nil {
		slog.WarnContext(ctx, "failed to index triage task", "triage_task_id", t.ID, "error", err)
	}
	s.eventBus.PublishNew(eventbus.TypeTriageCreated, projectID, t.ID, map[string]string{"source": string(source)})
	return t, nil
}

type EnhanceRequest struct {
	ProjectID    string `json:"projectId"`
	TriageTaskID string `json:"triageTaskId"`
}

func (r EnhanceRequest) Validate() error {
	if strings.TrimSpace(r.ProjectID) == "" {
		return cerr.NewValidationError("projectId", "required", "projectId is required")
	}
	if strings.TrimSpace(r.TriageTaskID) == "" {
		return cerr.NewValidationError("triageTaskId", "required", "triageTaskId is required")
	}
	return nil
}

// EnhanceTriageTask enriches a triage task and returns it once the result is
// stored. report is called before every stage.
func (s *Service) EnhanceTriageTask(ctx context.Context, req EnhanceRequest, report enrich.Reporter) (*task.TriageTask, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	clog.AddAttributes(ctx, map[string]any{"project_id": req.ProjectID, "triage_task_id": req.TriageTaskID})
	if report == nil {
		report = func(context.Context, enrich.Stage) error { return nil }
	}

	t, err := s.triage.Get(ctx, req.ProjectID, req.TriageTaskID)
	if err != nil {
		return nil, err
	}
	if t.Status == task.TriageAccepted || t.Status == task.TriageRejected {
		return nil, cerr.NewError(cerr.FailedPrecondition, "triage task was already reviewed", nil)
	}

	res, err := s.enricher.Enrich(ctx, enrich.Subject{ID: t.ID, ProjectID: t.ProjectID, Draft: t.Draft},
		func(ctx context.Context, stage enrich.Stage) error {
			s.eventBus.PublishNew(eventbus.TypeEnrichmentStage, t.ProjectID, t.ID, map[string]string{"stage": string(stage)})
			return report(ctx, stage)
		})
	if err != nil {
		s.eventBus.PublishNew(eventbus.TypeEnrichmentFailed, t.ProjectID, t.ID, map[string]string{"error": errorMessage(err)})
		return nil, err
	}

	now := s.now()
	t.Draft = res.Subject.Draft
	t.Status = task.TriageEnriched
	t.UpdatedAt = now
	t.Enrichment = enrichmentOf(res, now)
	if err := s.triage.Update(ctx, t); err != nil {
		return nil, err
	}
	s.eventBus.PublishNew(eventbus.TypeTriageEnriched, t.ProjectID, t.ID, nil)
	return t, nil
}

func enrichmentOf(res *enrich.Result, at time.Time) *task.Enrichment {
	reasoning := make(map[string]string, len(res.Reasoning))
	for stage, r := range res.Reasoning {
		reasoning[string(stage)] = r
	}
	exhausted := make([]string, 0, len(res.Exhausted))
	for _, stage := range res.Exhausted {
		exhausted = append(exhausted, string(stage))
	}
	return &task.Enrichment{
		Reasoning:        reasoning,
		EffortMean:       res.Effort.Mean,
		EffortTier:       string(res.Effort.Tier),
		EffortReferences: res.Effort.References,
		Exhausted:        exhausted,
		EnrichedAt:       at,
	}
}

type IntakeRequest struct {
	ProjectID   string            `json:"projectId"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Priority    task.Priority     `json:"priority"`
	Assignees   []string          `json:"assignees"`
	Source      task.TriageSource `json:"source"`
}

func (r IntakeRequest) Validate() error {
	if strings.TrimSpace(r.ProjectID) == "" {
		return cerr.NewValidationError("projectId", "required", "projectId is required")
	}
	if strings.TrimSpace(r.Title) == "" {
		return cerr.NewValidationError("title", "required", "title is required")
	}
	if r.Priority != "" && !r.Priority.Valid() {
		return cerr.NewValidationError("priority", "enum", "priority must be low, medium or high")
	}
	if r.Source != "" && !r.Source.Valid() {
		return cerr.NewValidationError("source", "enum", "source must be manual, webhook or generated")
	}
	return nil
}

// Intake records an inbound triage task awaiting enrichment. Assignees
// outside the project are dropped.
func (s *Service) Intake(ctx context.Context, req IntakeRequest) (*task.TriageTask, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	p, err := s.projects.Get(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	priority := req.Priority
	if priority == "" {
		priority = task.PriorityLow
	}
	source := req.Source
	if source == "" {
		source = task.SourceManual
	}
	members := p.MemberIDs()
	assignees := make([]string, 0, len(req.Assignees))
	for _, a := range req.Assignees {
		if slices.Contains(members, a) && !slices.Contains(assignees, a) {
			assignees = append(assignees, a)
		}
	}
	t, err := s.createTriage(ctx, req.ProjectID, task.Draft{
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Priority:    priority,
		Assignees:   assignees,
		DependsOn:   []string{},
	}, source)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "triage task created", "project_id", req.ProjectID, "triage_task_id", t.ID, "source", source)
	return t, nil
}

// Subscribe returns the events of one project until ctx is done.
func (s *Service) Subscribe(ctx context.Context, projectID string, types []eventbus.Type) <-chan *eventbus.Event {
	subID, ch := s.eventBus.Subscribe(64)
	out := make(chan *eventbus.Event)
	go func() {
		defer close(out)
		defer s.eventBus.Unsubscribe(subID)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if ev.ProjectID != projectID || (len(types) > 0 && !slices.Contains(types, ev.Type)) {
					continue
				}
				select {
				case out <- cloneEvent(ev):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func cloneEvent(ev *eventbus.Event) *eventbus.Event {
	cp := *ev
	cp.Metadata = maps.Clone(ev.Metadata)
	return &cp
}

func errorMessage(err error) string {
	if e, ok := cerr.As(err); ok {
		return e.Msg
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "server error"
}
