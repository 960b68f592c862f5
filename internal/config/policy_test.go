package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		check   func(t *testing.T, p Policy)
		wantErr string
	}{
		{
			name: "empty file yields defaults",
			yaml: "",
			check: func(t *testing.T, p Policy) {
				assert.Equal(t, DefaultPolicy(), p)
			},
		},
		{
			name: "overrides keep other defaults",
			yaml: "critic_tries: 3\nassignee:\n  accept_score: 70\n",
			check: func(t *testing.T, p Policy) {
				want := DefaultPolicy()
				want.CriticTries = 3
				want.Assignee.AcceptScore = 70
				if diff := cmp.Diff(want, p); diff != "" {
					t.Errorf("policy mismatch (-want +got):\n%s", diff)
				}
			},
		},
		{
			name:    "zero tries rejected",
			yaml:    "critic_tries: 0\n",
			wantErr: "critic_tries",
		},
		{
			name:    "threshold out of range",
			yaml:    "similarity_threshold: 1.5\n",
			wantErr: "similarity_threshold",
		},
		{
			name:    "cautious above accept",
			yaml:    "assignee:\n  cautious_score: 80\n",
			wantErr: "cautious_score",
		},
		{
			name:    "malformed yaml",
			yaml:    "critic_tries: [",
			wantErr: "failed to parse policy",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePolicy([]byte(tt.yaml))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, p)
		})
	}
}

func TestStaticPolicy(t *testing.T) {
	p := DefaultPolicy()
	p.SnippetCap = 2
	assert.Equal(t, 2, StaticPolicy(p).Current().SnippetCap)
}

func TestPolicyWatcher_Reload(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("critic_tries: 4\n"), 0o644))

	w, err := NewPolicyWatcher(path)
	require.NoError(t, err)
	assert.Equal(t, 4, w.Current().CriticTries)

	reloaded := make(chan Policy, 4)
	w.onReload = func(p Policy) { reloaded <- p }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()
	// give the watcher time to register the directory
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("critic_tries: 2\n"), 0o644))
	select {
	case p := <-reloaded:
		assert.Equal(t, 2, p.CriticTries)
	case <-time.After(5 * time.Second):
		t.Fatal("policy was not reloaded")
	}
	assert.Equal(t, 2, w.Current().CriticTries)

	// invalid content keeps the previous policy
	require.NoError(t, os.WriteFile(path, []byte("critic_tries: -1\n"), 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 2, w.Current().CriticTries)

	cancel()
	require.NoError(t, <-done)
}

func TestEnv_Validate(t *testing.T) {
	base := Env{
		StorageEnv:    StorageEnv{Type: "local"},
		GenerationEnv: GenerationEnv{Backend: "claude"},
		EmbeddingEnv:  EmbeddingEnv{Provider: "hash"},
	}
	require.NoError(t, base.Validate())

	s3 := base
	s3.StorageEnv.Type = "s3"
	assert.ErrorContains(t, s3.Validate(), "S3_BUCKET")

	genai := base
	genai.GenerationEnv.Backend = "genai"
	assert.ErrorContains(t, genai.Validate(), "GENAI_API_KEY")

	unknown := base
	unknown.Provider = "word2vec"
	assert.ErrorContains(t, unknown.Validate(), "unknown embedding provider")
}
