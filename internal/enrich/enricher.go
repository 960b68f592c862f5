package enrich

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kazz187/tasksmith/internal/config"
	"github.com/kazz187/tasksmith/internal/generation"
	"github.com/kazz187/tasksmith/pkg/clog"
)

// Stage names a step of an enrichment run, in execution order.
type Stage string

const (
	StageCategory    Stage = "category"
	StageAssignee    Stage = "assignee"
	StageDescription Stage = "description"
	StageDependency  Stage = "dependency"
	StageDone        Stage = "done"
)

var Stages = []Stage{StageCategory, StageAssignee, StageDescription, StageDependency}

// Reporter is told about each stage before it runs. A non-nil error aborts the run.
type Reporter func(ctx context.Context, stage Stage) error

// Result is a fully enriched draft. The enricher never persists it.
type Result struct {
	Subject   Subject
	Reasoning map[Stage]string
	Effort    Effort
	// Exhausted lists the stages whose critic loop ran out of tries.
	Exhausted []Stage
	Attempts  map[Stage]int
}

type Deps struct {
	Backend    generation.Backend
	Board      Board
	Similarity Similarity
	Dwell      DwellReader
	Policy     config.PolicySource
}

// Enricher runs the stages strictly in order, each seeing the fields
// resolved by the ones before it. Independent runs share nothing mutable.
type Enricher struct {
	policy      config.PolicySource
	category    *CategoryGenerator
	assignee    *AssigneeGenerator
	description *DescriptionGenerator
	dependency  *DependencyGenerator
}

func NewEnricher(d Deps) *Enricher {
	return &Enricher{
		policy:      d.Policy,
		category:    NewCategoryGenerator(d.Backend, d.Board),
		assignee:    NewAssigneeGenerator(d.Backend, d.Board),
		description: NewDescriptionGenerator(d.Backend, d.Board, NewEffortEstimator(d.Board, d.Similarity, d.Dwell)),
		dependency:  NewDependencyGenerator(d.Backend, d.Board),
	}
}

func (e *Enricher) Enrich(ctx context.Context, s Subject, report Reporter) (*Result, error) {
	p := e.policy.Current()
	if report == nil {
		report = func(context.Context, Stage) error { return nil }
	}
	res := &Result{
		Reasoning: make(map[Stage]string, len(Stages)),
		Attempts:  make(map[Stage]int, len(Stages)),
	}
	log := slog.With("project_id", s.ProjectID, "triage_task_id", s.ID)

	begin := func(stage Stage) error {
		clog.AddAttribute(ctx, "stage", string(stage))
		log.DebugContext(ctx, "enrichment stage started", "stage", stage)
		if err := report(ctx, stage); err != nil {
			return err
		}
		return ctx.Err()
	}
	fail := func(stage Stage, err error) error {
		return fmt.Errorf("%s stage: %w", stage, err)
	}

	if err := begin(StageCategory); err != nil {
		return nil, err
	}
	cat, err := e.category.Generate(ctx, s, p.CriticTries)
	if err != nil {
		return nil, fail(StageCategory, err)
	}
	s.Draft.Category = cat.Value
	res.record(StageCategory, cat.Reasoning, cat.Attempts, cat.Exhausted)

	if err := begin(StageAssignee); err != nil {
		return nil, err
	}
	who, err := e.assignee.Generate(ctx, s, p.Assignee)
	if err != nil {
		return nil, fail(StageAssignee, err)
	}
	s.Draft.Assignees = who.Value
	res.record(StageAssignee, who.Reasoning, 1, false)

	if err := begin(StageDescription); err != nil {
		return nil, err
	}
	desc, err := e.description.Generate(ctx, s, p)
	if err != nil {
		return nil, fail(StageDescription, err)
	}
	s.Draft.Description = desc.Text
	res.Effort = desc.Effort
	res.record(StageDescription, desc.Requirements.Reasoning, desc.Requirements.Attempts, desc.Requirements.Exhausted)

	if err := begin(StageDependency); err != nil {
		return nil, err
	}
	deps, err := e.dependency.Generate(ctx, s, p.CriticTries, p.DependencyReferenceCap)
	if err != nil {
		return nil, fail(StageDependency, err)
	}
	s.Draft.DependsOn = deps.Value
	res.record(StageDependency, deps.Reasoning, deps.Attempts, deps.Exhausted)

	res.Subject = s
	log.InfoContext(ctx, "enrichment finished", "exhausted", res.Exhausted)
	return res, nil
}

func (r *Result) record(stage Stage, reasoning string, attempts int, exhausted bool) {
	r.Reasoning[stage] = reasoning
	r.Attempts[stage] = attempts
	if exhausted {
		r.Exhausted = append(r.Exhausted, stage)
	}
}
