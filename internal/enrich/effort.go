package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/kazz187/tasksmith/internal/config"
	"github.com/kazz187/tasksmith/internal/embedding"
	"github.com/kazz187/tasksmith/pkg/cerr"
)

// Tier names the fallback step that produced an estimate.
type Tier string

const (
	TierAssigneeSimilar Tier = "assignee_similar"
	TierProjectSimilar  Tier = "project_similar"
	TierAssigneeHistory Tier = "assignee_history"
	TierNone            Tier = "none"
)

// Effort is a mean in-progress dwell over reference tasks.
type Effort struct {
	Mean       time.Duration
	Tier       Tier
	References []string
	Reasoning  string
}

// EffortEstimator infers how long a task will take from how long comparable
// tasks spent in progress.
type EffortEstimator struct {
	board      Board
	similarity Similarity
	dwell      DwellReader
}

func NewEffortEstimator(b Board, similarity Similarity, dwell DwellReader) *EffortEstimator {
	return &EffortEstimator{board: b, similarity: similarity, dwell: dwell}
}

// Estimate walks the fallback chain: similar tasks of each assignee, then
// similar tasks across the project, then the assignees' recent tasks.
func (e *EffortEstimator) Estimate(ctx context.Context, s Subject, p config.EffortPolicy) (Effort, error) {
	refs, tier, err := e.references(ctx, s, p)
	if err != nil {
		return Effort{}, err
	}

	var (
		total time.Duration
		used  []string
	)
	for _, id := range refs {
		d, err := e.dwell.InProgressDwell(ctx, s.ProjectID, id)
		if cerr.IsCode(err, cerr.NotFound) {
			slog.DebugContext(ctx, "reference task vanished", "task_id", id)
			continue
		}
		if err != nil {
			return Effort{}, err
		}
		total += d
		used = append(used, id)
	}
	if len(used) == 0 {
		return Effort{Tier: TierNone, References: []string{}, Reasoning: "no estimate inferred: no reference tasks found"}, nil
	}
	mean := total / time.Duration(len(used))
	return Effort{
		Mean:       mean,
		Tier:       tier,
		References: used,
		Reasoning: fmt.Sprintf("mean in-progress time of %d reference tasks (%s): %s",
			len(used), tier, FormatDuration(mean)),
	}, nil
}

func (e *EffortEstimator) references(ctx context.Context, s Subject, p config.EffortPolicy) ([]string, Tier, error) {
	vec, err := e.similarity.Embed(ctx, embedding.Content(s.Draft))
	if err != nil {
		return nil, "", err
	}

	var ids []string
	add := func(id string) {
		if id != s.ID && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}

	for _, a := range s.Draft.Assignees {
		matches, err := e.similarity.FindSimilar(ctx, s.ProjectID, vec, embedding.Filter{Assignee: a}, p.SimilarLimit)
		if err != nil {
			return nil, "", err
		}
		for _, m := range matches {
			add(m.TaskID)
		}
	}
	if len(ids) > 0 {
		return ids, TierAssigneeSimilar, nil
	}

	matches, err := e.similarity.FindSimilar(ctx, s.ProjectID, vec, embedding.Filter{}, p.SimilarLimit)
	if err != nil {
		return nil, "", err
	}
	for _, m := range matches {
		add(m.TaskID)
	}
	if len(ids) > 0 {
		return ids, TierProjectSimilar, nil
	}

	for _, a := range s.Draft.Assignees {
		history, err := e.board.TasksByAssignee(ctx, s.ProjectID, a, p.HistoryLimit)
		if err != nil {
			return nil, "", err
		}
		for _, t := range history {
			add(t.ID)
		}
	}
	if len(ids) > 0 {
		return ids, TierAssigneeHistory, nil
	}
	return nil, TierNone, nil
}

// FormatDuration renders d in days, hours and minutes, dropping zero units.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return "less than a minute"
	}
	d = d.Round(time.Minute)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute

	var out string
	for _, u := range []struct {
		n    time.Duration
		unit string
	}{{days, "d"}, {hours, "h"}, {minutes, "m"}} {
		if u.n == 0 {
			continue
		}
		if out != "" {
			out += " "
		}
		out += fmt.Sprintf("%d%s", u.n, u.unit)
	}
	return out
}
