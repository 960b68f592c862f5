// Package effort reconstructs how long tasks actually took from their column history.
package effort

import (
	"context"
	"fmt"
	"time"

	"github.com/kazz187/tasksmith/internal/task"
)

type HistorySource interface {
	ColumnHistory(ctx context.Context, projectID, taskID string) ([]task.ColumnEntry, error)
}

// Reader sums the time a task spent in progress.
type Reader struct {
	history HistorySource
	now     func() time.Time
}

func NewReader(history HistorySource) *Reader {
	return &Reader{history: history, now: time.Now}
}

// WithClock replaces the clock used to close entries that are still open.
func (r *Reader) WithClock(now func() time.Time) *Reader {
	nr := *r
	nr.now = now
	return &nr
}

func (r *Reader) InProgressDwell(ctx context.Context, projectID, taskID string) (time.Duration, error) {
	entries, err := r.history.ColumnHistory(ctx, projectID, taskID)
	if err != nil {
		return 0, fmt.Errorf("failed to read column history of %s: %w", taskID, err)
	}
	return Dwell(entries, task.ProgressInProgress, r.now()), nil
}

// Dwell is the cumulative time spent in column. An entry without ExitedAt is
// counted up to now. Entries with inverted timestamps contribute nothing.
func Dwell(entries []task.ColumnEntry, column task.Progress, now time.Time) time.Duration {
	var total time.Duration
	for _, e := range entries {
		if e.Column != column {
			continue
		}
		end := now
		if e.ExitedAt != nil {
			end = *e.ExitedAt
		}
		if d := end.Sub(e.EnteredAt); d > 0 {
			total += d
		}
	}
	return total
}
