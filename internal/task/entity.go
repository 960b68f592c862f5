package task

import (
	"slices"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Progress is the board column a task sits in.
type Progress string

const (
	ProgressNotStarted Progress = "not_started"
	ProgressInProgress Progress = "in_progress"
	ProgressInReview   Progress = "in_review"
	ProgressDone       Progress = "done"
	ProgressCanceled   Progress = "canceled"
)

func (p Progress) IsTerminal() bool {
	return p == ProgressDone || p == ProgressCanceled
}

// ColumnEntry records one stay of a task in a column. ExitedAt is nil while
// the task is still there.
type ColumnEntry struct {
	Column    Progress   `yaml:"column"`
	EnteredAt time.Time  `yaml:"entered_at"`
	ExitedAt  *time.Time `yaml:"exited_at,omitempty"`
	Sequence  int        `yaml:"sequence"`
}

type Subtask struct {
	Title string `yaml:"title"`
	Done  bool   `yaml:"done"`
}

type Task struct {
	ID            string        `yaml:"id"`
	ProjectID     string        `yaml:"project_id"`
	Title         string        `yaml:"title"`
	Description   string        `yaml:"description,omitempty"`
	Priority      Priority      `yaml:"priority"`
	Assignees     []string      `yaml:"assignees,omitempty"`
	Progress      Progress      `yaml:"progress"`
	Category      string        `yaml:"category,omitempty"`
	DependsOn     []string      `yaml:"depends_on,omitempty"`
	Subtasks      []Subtask     `yaml:"subtasks,omitempty"`
	ColumnHistory []ColumnEntry `yaml:"column_history,omitempty"`
	CreatedAt     time.Time     `yaml:"created_at"`
	UpdatedAt     time.Time     `yaml:"updated_at"`
}

func (t *Task) HasAssignee(id string) bool {
	return slices.Contains(t.Assignees, id)
}

// Move closes the open column entry and opens one for to.
func (t *Task) Move(to Progress, at time.Time) {
	seq := 0
	if n := len(t.ColumnHistory); n > 0 {
		last := &t.ColumnHistory[n-1]
		if last.ExitedAt == nil {
			exited := at
			last.ExitedAt = &exited
		}
		seq = last.Sequence + 1
	}
	t.ColumnHistory = append(t.ColumnHistory, ColumnEntry{Column: to, EnteredAt: at, Sequence: seq})
	t.Progress = to
	t.UpdatedAt = at
}

// Draft is the task-shaped value the pipeline produces and enriches: a task
// without identity or history. An empty Category means no category.
type Draft struct {
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Priority    Priority `yaml:"priority" json:"priority"`
	Category    string   `yaml:"category,omitempty" json:"category,omitempty"`
	Assignees   []string `yaml:"assignees,omitempty" json:"assignees"`
	DependsOn   []string `yaml:"depends_on,omitempty" json:"dependsOn"`
}

func (t *Task) Draft() Draft {
	return Draft{
		Title:       t.Title,
		Description: t.Description,
		Priority:    t.Priority,
		Category:    t.Category,
		Assignees:   slices.Clone(t.Assignees),
		DependsOn:   slices.Clone(t.DependsOn),
	}
}

type TriageSource string

const (
	SourceManual    TriageSource = "manual"
	SourceWebhook   TriageSource = "webhook"
	SourceGenerated TriageSource = "generated"
)

func (s TriageSource) Valid() bool {
	switch s {
	case SourceManual, SourceWebhook, SourceGenerated:
		return true
	}
	return false
}

type TriageStatus string

const (
	TriagePending  TriageStatus = "pending"
	TriageEnriched TriageStatus = "enriched"
	TriageAccepted TriageStatus = "accepted"
	TriageRejected TriageStatus = "rejected"
)

// Enrichment is what the reviewer sees next to an enriched triage task.
type Enrichment struct {
	Reasoning        map[string]string `yaml:"reasoning,omitempty" json:"reasoning,omitempty"`
	EffortMean       time.Duration     `yaml:"effort_mean" json:"effortMean"`
	EffortTier       string            `yaml:"effort_tier" json:"effortTier"`
	EffortReferences []string          `yaml:"effort_references,omitempty" json:"effortReferences,omitempty"`
	Exhausted        []string          `yaml:"exhausted,omitempty" json:"exhausted,omitempty"`
	EnrichedAt       time.Time         `yaml:"enriched_at" json:"enrichedAt"`
}

// TriageTask is an inbound task awaiting enrichment and human review.
type TriageTask struct {
	ID         string       `yaml:"id" json:"id"`
	ProjectID  string       `yaml:"project_id" json:"projectId"`
	Draft      `yaml:",inline"`
	Source     TriageSource `yaml:"source" json:"source"`
	Status     TriageStatus `yaml:"status" json:"status"`
	Enrichment *Enrichment  `yaml:"enrichment,omitempty" json:"enrichment,omitempty"`
	CreatedAt  time.Time    `yaml:"created_at" json:"createdAt"`
	UpdatedAt  time.Time    `yaml:"updated_at" json:"updatedAt"`
}
