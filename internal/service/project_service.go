package service

import (
	"context"

	"task-planner/internal/model"
	"task-planner/internal/repository"
)

// ProjectService provides helpers around projects.
type ProjectService struct {
	repo *repository.ProjectRepository
}

func NewProjectService(repo *repository.ProjectRepository) *ProjectService {
	return &ProjectService{repo: repo}
}

func (s *ProjectService) List(ctx context.Context, user *model.User) ([]model.Project, error) {
	return s.repo.ListByUser(ctx, user.ID)
}

// Names maps project ids to names for rendering.
func (s *ProjectService) Names(ctx context.Context, user *model.User) (map[uint]string, error) {
	projects, err := s.repo.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	names := make(map[uint]string, len(projects))
	for _, p := range projects {
		names[p.ID] = p.Name
	}
	return names, nil
}
