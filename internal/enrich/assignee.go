package enrich

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kazz187/tasksmith/internal/board"
	"github.com/kazz187/tasksmith/internal/config"
	"github.com/kazz187/tasksmith/internal/generation"
)

type assigneeCandidate struct {
	Assignee  []string `json:"assignee"`
	Score     int      `json:"score" jsonschema:"minimum=0,maximum=100"`
	Reasoning string   `json:"reasoning"`
}

func (c *assigneeCandidate) Validate() error {
	if c.Score < 0 || c.Score > 100 {
		return fmt.Errorf("score %d outside [0, 100]", c.Score)
	}
	return nil
}

type assigneeContext struct {
	Workload    []weightedWorkload        `json:"workload"`
	RecentTasks map[string][]board.Digest `json:"recentTasks"`
}

type weightedWorkload struct {
	board.Workload
	Weighted int `json:"weighted"`
}

// AssigneeGenerator picks assignees in a single generation call. It returns
// an empty list, with reasoning, when nobody clears the suitability bar.
type AssigneeGenerator struct {
	backend generation.Backend
	board   Board
}

func NewAssigneeGenerator(backend generation.Backend, b Board) *AssigneeGenerator {
	return &AssigneeGenerator{backend: backend, board: b}
}

func (g *AssigneeGenerator) Generate(ctx context.Context, s Subject, p config.AssigneePolicy) (Field[[]string], error) {
	var (
		vocab     board.Vocabulary
		workloads []board.Workload
		recent    map[string][]board.Digest
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		vocab, err = g.board.Vocabulary(egCtx, s.ProjectID)
		return err
	})
	eg.Go(func() (err error) {
		workloads, err = g.board.Workloads(egCtx, s.ProjectID)
		return err
	})
	eg.Go(func() (err error) {
		recent, err = g.board.RecentTasks(egCtx, s.ProjectID, p.RecentTasksPerUser)
		return err
	})
	if err := eg.Wait(); err != nil {
		return Field[[]string]{}, err
	}

	if given := keepKnown(s.Draft.Assignees, vocab.Assignees); len(given) > 0 {
		return Field[[]string]{
			Value:     given,
			Reasoning: "kept the assignees named by the submitter: " + describeLoad(given, workloads, recent, p),
		}, nil
	}

	var (
		eligible   []weightedWorkload
		overloaded []string
	)
	for _, w := range workloads {
		if !slices.Contains(vocab.Assignees, w.Assignee) {
			continue
		}
		weighted := w.Weighted(p.PriorityWeights)
		if weighted >= p.OverloadWeight {
			overloaded = append(overloaded, fmt.Sprintf("%s (weighted load %d)", w.Assignee, weighted))
			continue
		}
		eligible = append(eligible, weightedWorkload{Workload: w, Weighted: weighted})
	}
	if len(eligible) == 0 {
		reason := "no project members to assign"
		if len(overloaded) > 0 {
			reason = fmt.Sprintf("no confident assignment: every candidate is overloaded at or above weighted load %d: %s",
				p.OverloadWeight, strings.Join(overloaded, ", "))
		}
		return Field[[]string]{Value: []string{}, Reasoning: reason}, nil
	}

	eligibleRecent := make(map[string][]board.Digest, len(eligible))
	for _, w := range eligible {
		eligibleRecent[w.Assignee] = recent[w.Assignee]
	}
	conv := generation.NewConversation(assigneePrompt, generation.User(fmt.Sprintf(
		"Task:\n%s\n\nCandidates:\n%s\n\nScore guide: %d or more is a confident pick, %d to %d is tentative, below %d means nobody fits.",
		jsonBlock(s.Draft),
		jsonBlock(assigneeContext{Workload: eligible, RecentTasks: eligibleRecent}),
		p.AcceptScore, p.CautiousScore, p.AcceptScore-1, p.CautiousScore)))

	c, err := generation.Generate[assigneeCandidate](ctx, g.backend, "assignee", conv)
	if err != nil {
		return Field[[]string]{}, err
	}

	names := make([]string, 0, len(eligible))
	for _, w := range eligible {
		names = append(names, w.Assignee)
	}
	picked := keepKnown(c.Assignee, names)
	switch {
	case c.Score < p.CautiousScore:
		return Field[[]string]{
			Value:     []string{},
			Reasoning: fmt.Sprintf("no confident assignment (score %d below %d): %s", c.Score, p.CautiousScore, c.Reasoning),
		}, nil
	case len(picked) == 0:
		return Field[[]string]{
			Value:     []string{},
			Reasoning: "no confident assignment: " + c.Reasoning,
		}, nil
	case c.Score < p.AcceptScore:
		return Field[[]string]{
			Value:     picked,
			Reasoning: fmt.Sprintf("tentative assignment (score %d): %s", c.Score, c.Reasoning),
		}, nil
	}
	return Field[[]string]{
		Value:     picked,
		Reasoning: fmt.Sprintf("assigned with score %d: %s", c.Score, c.Reasoning),
	}, nil
}

// describeLoad cites the weighted load and recent task count of each member.
func describeLoad(ids []string, workloads []board.Workload, recent map[string][]board.Digest, p config.AssigneePolicy) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		weighted := 0
		for _, w := range workloads {
			if w.Assignee == id {
				weighted = w.Weighted(p.PriorityWeights)
				break
			}
		}
		part := fmt.Sprintf("%s (weighted load %d, %d recent tasks)", id, weighted, len(recent[id]))
		if weighted >= p.OverloadWeight {
			part += " overloaded"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, ", ")
}

// keepKnown filters ids to those in allowed, dropping duplicates and keeping order.
func keepKnown(ids, allowed []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if slices.Contains(allowed, id) && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
