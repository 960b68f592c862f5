package embedding

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/kazz187/tasksmith/internal/config"
	"github.com/kazz187/tasksmith/internal/task"
	"github.com/kazz187/tasksmith/pkg/cerr"
)

// Match is a stored task at or above the similarity threshold.
type Match struct {
	TaskID     string  `json:"taskId"`
	Kind       Kind    `json:"kind"`
	Title      string  `json:"title"`
	Similarity float64 `json:"similarity"`
}

// Filter narrows FindSimilar. By default only board tasks are searched.
type Filter struct {
	Assignee      string
	IncludeTriage bool
}

type Service struct {
	engine Engine
	index  *SQLiteIndex
	policy config.PolicySource
	now    func() time.Time
}

func NewService(engine Engine, index *SQLiteIndex, policy config.PolicySource) *Service {
	return &Service{engine: engine, index: index, policy: policy, now: time.Now}
}

// Content is the text embedded for a task-shaped value.
func Content(d task.Draft) string {
	var b strings.Builder
	b.WriteString(d.Title)
	if d.Description != "" {
		b.WriteString("\n\n")
		b.WriteString(d.Description)
	}
	if d.Category != "" {
		b.WriteString("\n\ncategory: ")
		b.WriteString(d.Category)
	}
	return b.String()
}

func (s *Service) Embed(ctx context.Context, content string) ([]float32, error) {
	vec, err := s.engine.Embed(ctx, content)
	if err != nil {
		return nil, cerr.NewError(cerr.Unavailable, "embedding backend unavailable", err)
	}
	return vec, nil
}

// FindSimilar returns stored tasks of the project whose cosine similarity to
// vec is at least the policy threshold, most similar first, at most limit of
// them. A non-positive limit returns every match.
func (s *Service) FindSimilar(ctx context.Context, projectID string, vec []float32, f Filter, limit int) ([]Match, error) {
	kinds := []Kind{KindTask}
	if f.IncludeTriage {
		kinds = append(kinds, KindTriage)
	}
	candidates, err := s.index.Candidates(ctx, Query{
		ProjectID: projectID,
		Engine:    s.engine.Name(),
		Assignee:  f.Assignee,
		Kinds:     kinds,
	})
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", err)
	}

	threshold := s.policy.Current().SimilarityThreshold
	var matches []Match
	for _, c := range candidates {
		sim := CosineSimilarity(vec, c.Vector)
		if sim < threshold {
			continue
		}
		matches = append(matches, Match{TaskID: c.TaskID, Kind: c.Kind, Title: c.Title, Similarity: sim})
	}
	slices.SortStableFunc(matches, func(a, b Match) int {
		return cmp.Compare(b.Similarity, a.Similarity)
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	slog.DebugContext(ctx, "similarity search",
		"project_id", projectID, "assignee", f.Assignee, "candidates", len(candidates), "matches", len(matches))
	return matches, nil
}

// Entry describes a task to index.
type Entry struct {
	ProjectID string
	TaskID    string
	Kind      Kind
	Draft     task.Draft
}

// Index embeds and stores an entry. Entries whose content and engine are
// unchanged since the last call are skipped; the return value reports
// whether a new vector was written.
func (s *Service) Index(ctx context.Context, e Entry) (bool, error) {
	content := Content(e.Draft)
	sum := sha256.Sum256([]byte(content))
	hash := hex.EncodeToString(sum[:])

	engine, prev, err := s.index.Fingerprint(ctx, e.ProjectID, e.TaskID)
	if err != nil {
		return false, cerr.NewError(cerr.Internal, "server error", err)
	}
	if engine == s.engine.Name() && prev == hash {
		return false, nil
	}
	vec, err := s.Embed(ctx, content)
	if err != nil {
		return false, err
	}
	err = s.index.Upsert(ctx, Record{
		ProjectID:   e.ProjectID,
		TaskID:      e.TaskID,
		Kind:        e.Kind,
		Title:       e.Draft.Title,
		Assignees:   e.Draft.Assignees,
		Vector:      vec,
		Engine:      s.engine.Name(),
		ContentHash: hash,
		UpdatedAt:   s.now(),
	})
	if err != nil {
		return false, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to index %s: %w", e.TaskID, err))
	}
	return true, nil
}

func (s *Service) Remove(ctx context.Context, projectID, taskID string) error {
	if err := s.index.Delete(ctx, projectID, taskID); err != nil {
		return cerr.NewError(cerr.Internal, "server error", err)
	}
	return nil
}
