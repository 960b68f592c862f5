package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTask_Move(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	tk := &Task{ID: "t1", Progress: ProgressNotStarted}
	tk.Move(ProgressNotStarted, t0)
	tk.Move(ProgressInProgress, t0.Add(time.Hour))
	tk.Move(ProgressDone, t0.Add(3*time.Hour))

	require.Len(t, tk.ColumnHistory, 3)
	assert.Equal(t, ProgressDone, tk.Progress)
	for i, e := range tk.ColumnHistory {
		assert.Equal(t, i, e.Sequence)
	}
	require.NotNil(t, tk.ColumnHistory[1].ExitedAt)
	assert.Equal(t, 2*time.Hour, tk.ColumnHistory[1].ExitedAt.Sub(tk.ColumnHistory[1].EnteredAt))
	assert.Nil(t, tk.ColumnHistory[2].ExitedAt)
}

func TestFilter_Match(t *testing.T) {
	tk := &Task{Assignees: []string{"alice"}, Category: "backend", Progress: ProgressInReview}
	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", Filter{}, true},
		{"assignee", Filter{Assignee: "alice"}, true},
		{"other assignee", Filter{Assignee: "bob"}, false},
		{"category", Filter{Category: "frontend"}, false},
		{"progress", Filter{Progress: []Progress{ProgressInProgress, ProgressInReview}}, true},
		{"open only", Filter{OpenOnly: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(tk))
		})
	}
	assert.False(t, Filter{OpenOnly: true}.Match(&Task{Progress: ProgressCanceled}))
}
