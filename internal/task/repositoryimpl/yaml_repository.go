package repositoryimpl

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/kazz187/tasksmith/internal/task"
	"github.com/kazz187/tasksmith/pkg/cerr"
	"github.com/kazz187/tasksmith/pkg/storage"
)

const tasksPrefix = "tasks"

// YAMLRepository stores one document per task under tasks/{project}/{id}.yaml.
type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func taskPath(projectID, id string) string {
	return fmt.Sprintf("%s/%s/%s.yaml", tasksPrefix, projectID, id)
}

func (r *YAMLRepository) Create(ctx context.Context, t *task.Task) error {
	p := taskPath(t.ProjectID, t.ID)
	exists, err := r.storage.Exists(ctx, p)
	if err != nil {
		return cerr.WrapStorageError(cerr.StorageWrite, "task", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "task already exists", nil)
	}
	if err := storage.WriteYAML(ctx, r.storage, p, t); err != nil {
		return cerr.WrapStorageError(cerr.StorageWrite, "task", err)
	}
	return nil
}

func (r *YAMLRepository) Get(ctx context.Context, projectID, id string) (*task.Task, error) {
	t, err := storage.ReadYAML[task.Task](ctx, r.storage, taskPath(projectID, id))
	if err != nil {
		return nil, cerr.WrapStorageError(cerr.StorageRead, "task", err)
	}
	return t, nil
}

func (r *YAMLRepository) List(ctx context.Context, projectID string, f task.Filter) ([]*task.Task, error) {
	all, err := storage.ListYAML[task.Task](ctx, r.storage, tasksPrefix+"/"+projectID, skipLogger(ctx))
	if err != nil {
		return nil, cerr.WrapStorageError(cerr.StorageList, "tasks", err)
	}
	matched := all[:0]
	for _, t := range all {
		if f.Match(t) {
			matched = append(matched, t)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func (r *YAMLRepository) Update(ctx context.Context, t *task.Task) error {
	p := taskPath(t.ProjectID, t.ID)
	exists, err := r.storage.Exists(ctx, p)
	if err != nil {
		return cerr.WrapStorageError(cerr.StorageWrite, "task", err)
	}
	if !exists {
		return cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	if err := storage.WriteYAML(ctx, r.storage, p, t); err != nil {
		return cerr.WrapStorageError(cerr.StorageWrite, "task", err)
	}
	return nil
}

func skipLogger(ctx context.Context) func(string, error) {
	return func(path string, err error) {
		slog.WarnContext(ctx, "skipping unreadable document", "path", path, "error", err)
	}
}
