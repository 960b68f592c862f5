package repositoryimpl

import (
	"context"
	"fmt"
	"sort"

	"github.com/kazz187/tasksmith/internal/task"
	"github.com/kazz187/tasksmith/pkg/cerr"
	"github.com/kazz187/tasksmith/pkg/storage"
)

const triagePrefix = "triage"

type YAMLTriageRepository struct {
	storage storage.Storage
}

func NewYAMLTriageRepository(s storage.Storage) *YAMLTriageRepository {
	return &YAMLTriageRepository{storage: s}
}

func triagePath(projectID, id string) string {
	return fmt.Sprintf("%s/%s/%s.yaml", triagePrefix, projectID, id)
}

func (r *YAMLTriageRepository) Create(ctx context.Context, t *task.TriageTask) error {
	p := triagePath(t.ProjectID, t.ID)
	exists, err := r.storage.Exists(ctx, p)
	if err != nil {
		return cerr.WrapStorageError(cerr.StorageWrite, "triage task", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "triage task already exists", nil)
	}
	if err := storage.WriteYAML(ctx, r.storage, p, t); err != nil {
		return cerr.WrapStorageError(cerr.StorageWrite, "triage task", err)
	}
	return nil
}

// Get reports NotFound for ids that exist only in another project.
func (r *YAMLTriageRepository) Get(ctx context.Context, projectID, id string) (*task.TriageTask, error) {
	t, err := storage.ReadYAML[task.TriageTask](ctx, r.storage, triagePath(projectID, id))
	if err != nil {
		return nil, cerr.WrapStorageError(cerr.StorageRead, "triage task", err)
	}
	return t, nil
}

// List returns triage tasks oldest first, optionally narrowed to one status.
func (r *YAMLTriageRepository) List(ctx context.Context, projectID string, status task.TriageStatus) ([]*task.TriageTask, error) {
	all, err := storage.ListYAML[task.TriageTask](ctx, r.storage, triagePrefix+"/"+projectID, skipLogger(ctx))
	if err != nil {
		return nil, cerr.WrapStorageError(cerr.StorageList, "triage tasks", err)
	}
	out := all[:0]
	for _, t := range all {
		if status == "" || t.Status == status {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *YAMLTriageRepository) Update(ctx context.Context, t *task.TriageTask) error {
	p := triagePath(t.ProjectID, t.ID)
	exists, err := r.storage.Exists(ctx, p)
	if err != nil {
		return cerr.WrapStorageError(cerr.StorageWrite, "triage task", err)
	}
	if !exists {
		return cerr.NewError(cerr.NotFound, "triage task not found", nil)
	}
	if err := storage.WriteYAML(ctx, r.storage, p, t); err != nil {
		return cerr.WrapStorageError(cerr.StorageWrite, "triage task", err)
	}
	return nil
}
