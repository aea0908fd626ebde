package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"task-planner/internal/model"
	"task-planner/internal/recurrence"
)

// ErrStaleVersion means the row changed (or vanished) since it was read.
var ErrStaleVersion = errors.New("stale task version")

// TaskRepository handles CRUD for tasks, templates and their instances.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Transaction runs fn against a repository bound to a single transaction.
// Any error returned by fn rolls the whole unit back.
func (r *TaskRepository) Transaction(ctx context.Context, fn func(repo *TaskRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&TaskRepository{db: tx})
	})
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// CreateBatch inserts generated instances in one statement.
func (r *TaskRepository) CreateBatch(ctx context.Context, tasks []model.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&tasks).Error; err != nil {
		return fmt.Errorf("create tasks: %w", err)
	}
	return nil
}

func (r *TaskRepository) Save(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

func (r *TaskRepository) FindByID(ctx context.Context, userID, taskID uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, taskID).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *TaskRepository) FindByUID(ctx context.Context, userID uint, uid string) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).Where("user_id = ? AND uid = ?", userID, uid).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// ListOpen returns every non-terminal task of the user, templates included.
func (r *TaskRepository) ListOpen(ctx context.Context, userID uint) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("user_id = ? AND status NOT IN ?", userID, model.TerminalStatuses).
		Order("due_date NULLS LAST, created_at DESC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListTemplates returns the active (not paused) templates of every user.
func (r *TaskRepository) ListTemplates(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("recurrence_type <> ? AND recurring_parent_id IS NULL AND recurrence_paused = ?", recurrence.TypeNone, false).
		Order("id ASC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *TaskRepository) ListTemplatesByUser(ctx context.Context, userID uint) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND recurrence_type <> ? AND recurring_parent_id IS NULL", userID, recurrence.TypeNone).
		Order("title ASC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListInstances returns all tasks still linked to the template, oldest first.
func (r *TaskRepository) ListInstances(ctx context.Context, templateID uint) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("recurring_parent_id = ?", templateID).
		Order("due_date ASC, id ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	return tasks, nil
}

// OwnerTimezone returns the stored zone of the user, empty when unset.
func (r *TaskRepository) OwnerTimezone(ctx context.Context, userID uint) (string, error) {
	var zones []string
	if err := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Pluck("timezone", &zones).Error; err != nil {
		return "", fmt.Errorf("owner timezone: %w", err)
	}
	if len(zones) == 0 {
		return "", nil
	}
	return zones[0], nil
}

// ClaimTemplate bumps the version if it still equals the one the caller read.
// Two transactions racing on the same template cannot both succeed.
func (r *TaskRepository) ClaimTemplate(ctx context.Context, userID, templateID uint, version int) error {
	res := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("user_id = ? AND id = ? AND version = ?", userID, templateID, version).
		UpdateColumn("version", gorm.Expr("version + 1"))
	if res.Error != nil {
		return fmt.Errorf("claim template: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleVersion
	}
	return nil
}

// SetProject moves the given tasks to another project (nil clears it).
func (r *TaskRepository) SetProject(ctx context.Context, userID uint, ids []uint, projectID *uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("user_id = ? AND id IN ?", userID, ids).
		Update("project_id", projectID)
	if res.Error != nil {
		return 0, fmt.Errorf("set project: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DetachFromParent clears recurring_parent_id, turning instances into standalone tasks.
func (r *TaskRepository) DetachFromParent(ctx context.Context, userID uint, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("user_id = ? AND id IN ?", userID, ids).
		Update("recurring_parent_id", nil)
	if res.Error != nil {
		return 0, fmt.Errorf("detach instances: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *TaskRepository) DeleteByIDs(ctx context.Context, userID uint, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("user_id = ? AND id IN ?", userID, ids).Delete(&model.Task{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete tasks: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *TaskRepository) MarkCompleted(ctx context.Context, task *model.Task, completedAt time.Time) error {
	task.Status = model.StatusDone
	task.CompletedAt = &completedAt
	if err := r.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}

// Delete removes a single task for the given user. Templates go through the
// deletion resolver instead.
func (r *TaskRepository) Delete(ctx context.Context, userID, taskID uint) error {
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, taskID).
		Delete(&model.Task{}).Error; err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}
