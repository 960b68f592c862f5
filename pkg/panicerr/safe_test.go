package panicerr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCall(t *testing.T) {
	tests := []struct {
		name    string
		fn      func() (int, error)
		want    int
		wantErr string
	}{
		{
			name: "value",
			fn:   func() (int, error) { return 42, nil },
			want: 42,
		},
		{
			name:    "error",
			fn:      func() (int, error) { return 0, errors.New("boom") },
			wantErr: "boom",
		},
		{
			name:    "panic",
			fn:      func() (int, error) { panic("kaboom") },
			wantErr: "kaboom",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Call(tt.fn)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Zero(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSafeContext(t *testing.T) {
	fn := SafeContext(func(context.Context) error {
		var m map[string]int
		m["x"] = 1
		return nil
	})
	err := fn(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assignment to entry in nil map")
}
