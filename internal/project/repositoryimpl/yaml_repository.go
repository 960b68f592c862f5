package repositoryimpl

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/kazz187/tasksmith/internal/project"
	"github.com/kazz187/tasksmith/pkg/cerr"
	"github.com/kazz187/tasksmith/pkg/storage"
)

const projectsPrefix = "projects"

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", projectsPrefix, id)
}

func (r *YAMLRepository) Create(ctx context.Context, p *project.Project) error {
	exists, err := r.storage.Exists(ctx, path(p.ID))
	if err != nil {
		return cerr.WrapStorageError(cerr.StorageWrite, "project", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "project already exists", nil)
	}
	if err := storage.WriteYAML(ctx, r.storage, path(p.ID), p); err != nil {
		return cerr.WrapStorageError(cerr.StorageWrite, "project", err)
	}
	return nil
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*project.Project, error) {
	p, err := storage.ReadYAML[project.Project](ctx, r.storage, path(id))
	if err != nil {
		return nil, cerr.WrapStorageError(cerr.StorageRead, "project", err)
	}
	return p, nil
}

func (r *YAMLRepository) List(ctx context.Context) ([]*project.Project, error) {
	projects, err := storage.ListYAML[project.Project](ctx, r.storage, projectsPrefix, func(p string, err error) {
		slog.WarnContext(ctx, "skipping unreadable project", "path", p, "error", err)
	})
	if err != nil {
		return nil, cerr.WrapStorageError(cerr.StorageList, "projects", err)
	}
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].Name < projects[j].Name
	})
	return projects, nil
}

func (r *YAMLRepository) Update(ctx context.Context, p *project.Project) error {
	exists, err := r.storage.Exists(ctx, path(p.ID))
	if err != nil {
		return cerr.WrapStorageError(cerr.StorageWrite, "project", err)
	}
	if !exists {
		return cerr.NewError(cerr.NotFound, "project not found", nil)
	}
	if err := storage.WriteYAML(ctx, r.storage, path(p.ID), p); err != nil {
		return cerr.WrapStorageError(cerr.StorageWrite, "project", err)
	}
	return nil
}
