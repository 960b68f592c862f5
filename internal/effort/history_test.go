package effort

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/tasksmith/internal/task"
)

type historyFunc func(ctx context.Context, projectID, taskID string) ([]task.ColumnEntry, error)

func (f historyFunc) ColumnHistory(ctx context.Context, projectID, taskID string) ([]task.ColumnEntry, error) {
	return f(ctx, projectID, taskID)
}

func at(h int) time.Time {
	return time.Date(2025, 3, 1, h, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func TestDwell(t *testing.T) {
	tests := []struct {
		name    string
		entries []task.ColumnEntry
		want    time.Duration
	}{
		{
			name: "no history",
			want: 0,
		},
		{
			name: "single closed stay",
			entries: []task.ColumnEntry{
				{Column: task.ProgressNotStarted, EnteredAt: at(0), ExitedAt: ptr(at(1))},
				{Column: task.ProgressInProgress, EnteredAt: at(1), ExitedAt: ptr(at(4))},
				{Column: task.ProgressDone, EnteredAt: at(4)},
			},
			want: 3 * time.Hour,
		},
		{
			name: "bounced back into progress",
			entries: []task.ColumnEntry{
				{Column: task.ProgressInProgress, EnteredAt: at(1), ExitedAt: ptr(at(2))},
				{Column: task.ProgressInReview, EnteredAt: at(2), ExitedAt: ptr(at(3))},
				{Column: task.ProgressInProgress, EnteredAt: at(3), ExitedAt: ptr(at(5))},
			},
			want: 3 * time.Hour,
		},
		{
			name: "still in progress counts until now",
			entries: []task.ColumnEntry{
				{Column: task.ProgressInProgress, EnteredAt: at(6)},
			},
			want: 4 * time.Hour,
		},
		{
			name: "inverted timestamps ignored",
			entries: []task.ColumnEntry{
				{Column: task.ProgressInProgress, EnteredAt: at(5), ExitedAt: ptr(at(4))},
			},
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Dwell(tt.entries, task.ProgressInProgress, at(10)))
		})
	}
}

func TestReader_InProgressDwell(t *testing.T) {
	src := historyFunc(func(_ context.Context, projectID, taskID string) ([]task.ColumnEntry, error) {
		if taskID == "broken" {
			return nil, errors.New("store down")
		}
		assert.Equal(t, "p1", projectID)
		return []task.ColumnEntry{{Column: task.ProgressInProgress, EnteredAt: at(8)}}, nil
	})
	r := NewReader(src).WithClock(func() time.Time { return at(9) })

	d, err := r.InProgressDwell(context.Background(), "p1", "t1")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, d)

	_, err = r.InProgressDwell(context.Background(), "p1", "broken")
	assert.ErrorContains(t, err, "store down")
}
