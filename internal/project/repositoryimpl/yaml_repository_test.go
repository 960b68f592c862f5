package repositoryimpl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/tasksmith/internal/project"
	"github.com/kazz187/tasksmith/pkg/cerr"
	"github.com/kazz187/tasksmith/pkg/storage"
)

func TestYAMLRepository(t *testing.T) {
	ctx := context.Background()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := NewYAMLRepository(local)

	p := &project.Project{
		ID:          "p1",
		Name:        "Website",
		Description: "Marketing site",
		Visibility:  project.VisibilityWorkspace,
		Plan:        "enterprise",
		Categories:  []string{"frontend", "backend"},
		Members:     []project.Member{{ID: "alice", Name: "Alice"}, {ID: "bob", Name: "Bob"}},
	}
	require.NoError(t, repo.Create(ctx, p))
	require.NoError(t, repo.Create(ctx, &project.Project{ID: "p0", Name: "Analytics"}))
	assert.True(t, cerr.IsCode(repo.Create(ctx, p), cerr.AlreadyExists))

	got, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, got.MemberIDs())
	assert.True(t, got.AddCategory("docs"))
	assert.False(t, got.AddCategory("docs"))
	require.NoError(t, repo.Update(ctx, got))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Analytics", list[0].Name)
	assert.Equal(t, []string{"frontend", "backend", "docs"}, list[1].Categories)

	_, err = repo.Get(ctx, "missing")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}
