package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"task-planner/internal/model"
)

// ProjectRepository manages projects.
type ProjectRepository struct {
	db *gorm.DB
}

func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// GetOrCreate returns the user's project with the given name, creating it on first use.
// An empty name yields nil.
func (r *ProjectRepository) GetOrCreate(ctx context.Context, userID uint, name string) (*model.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	var project model.Project
	db := r.db.WithContext(ctx)
	err := db.Where("user_id = ? AND name = ?", userID, name).First(&project).Error
	switch {
	case err == nil:
		return &project, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		project = model.Project{UserID: userID, Name: name}
		if err := db.Create(&project).Error; err != nil {
			return nil, fmt.Errorf("create project: %w", err)
		}
		return &project, nil
	default:
		return nil, fmt.Errorf("find project: %w", err)
	}
}

func (r *ProjectRepository) ListByUser(ctx context.Context, userID uint) ([]model.Project, error) {
	var projects []model.Project
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("name ASC").Find(&projects).Error; err != nil {
		return nil, err
	}
	return projects, nil
}

func (r *ProjectRepository) GetByID(ctx context.Context, userID, id uint) (*model.Project, error) {
	var project model.Project
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).First(&project).Error; err != nil {
		return nil, err
	}
	return &project, nil
}
