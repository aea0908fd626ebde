package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/datatypes"

	"task-planner/internal/model"
	"task-planner/internal/recurrence"
	"task-planner/internal/repository"
)

// RecurrenceInput describes the cadence of a new or edited template.
type RecurrenceInput struct {
	Type     recurrence.Type
	Interval int
	MonthDay *int
	WeekDay  *int
	Month    *int
	EndDate  *time.Time
	Timezone string
}

// TaskInput represents data required to create a task.
type TaskInput struct {
	Title       string
	Description string
	Project     string
	Priority    int
	Tags        []string
	DueDate     *time.Time
	DeferUntil  *time.Time
	Recurrence  *RecurrenceInput
}

// TaskUpdate carries a partial edit. Nil fields are left alone.
// Version, when set, must match the stored version.
type TaskUpdate struct {
	Title       *string
	Description *string
	Project     *string
	Priority    *int
	Tags        *[]string
	Status      *model.TaskStatus
	DueDate     *time.Time
	DeferUntil  *time.Time
	Recurrence  *RecurrenceInput
	Paused      *bool
	Version     *int
}

// TaskService wraps task-related business logic.
type TaskService struct {
	taskRepo    *repository.TaskRepository
	projectRepo *repository.ProjectRepository
	recurring   *RecurringService
}

func NewTaskService(taskRepo *repository.TaskRepository, projectRepo *repository.ProjectRepository, recurring *RecurringService) *TaskService {
	return &TaskService{taskRepo: taskRepo, projectRepo: projectRepo, recurring: recurring}
}

// CreateTask stores the task. A template gets its first window of instances
// in the same transaction.
func (s *TaskService) CreateTask(ctx context.Context, user *model.User, input TaskInput, now time.Time) (*model.Task, []model.Task, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, nil, fmt.Errorf("title is required")
	}

	projectID, err := s.resolveProject(ctx, user.ID, input.Project)
	if err != nil {
		return nil, nil, err
	}

	task := model.Task{
		UserID:         user.ID,
		ProjectID:      projectID,
		Title:          strings.TrimSpace(input.Title),
		Description:    input.Description,
		Priority:       input.Priority,
		Tags:           datatypes.JSONSlice[string](input.Tags),
		Status:         model.StatusNotStarted,
		DueDate:        utcPtr(input.DueDate),
		DeferUntil:     utcPtr(input.DeferUntil),
		RecurrenceType: recurrence.TypeNone,
		CreatedAt:      now,
	}
	if input.Recurrence != nil {
		applyRecurrence(&task, *input.Recurrence)
		if task.Timezone == "" {
			task.Timezone = user.Timezone
		}
		if task.IsTemplate() {
			if err := s.checkRule(&task); err != nil {
				return nil, nil, err
			}
		}
	}

	var created []model.Task
	err = s.taskRepo.Transaction(ctx, func(repo *repository.TaskRepository) error {
		if err := repo.Create(ctx, &task); err != nil {
			return err
		}
		if !task.IsTemplate() {
			return nil
		}
		created, err = s.recurring.materialize(ctx, repo, &task, now)
		return err
	})
	if err != nil {
		return nil, nil, wrapTxError("create task", err)
	}

	log.Printf("[info] task created id=%d user=%d template=%t instances=%d", task.ID, user.ID, task.IsTemplate(), len(created))
	return &task, created, nil
}

// UpdateTask applies the edit and, for templates, synchronizes the instances
// before returning. Either both commit or neither does.
func (s *TaskService) UpdateTask(ctx context.Context, user *model.User, taskID uint, upd TaskUpdate, now time.Time) (*model.Task, SyncResult, error) {
	var projectID *uint
	if upd.Project != nil {
		id, err := s.resolveProject(ctx, user.ID, *upd.Project)
		if err != nil {
			return nil, SyncResult{}, err
		}
		projectID = id
	}

	unlock := s.recurring.locks.Lock(taskID)
	defer unlock()

	var (
		task   *model.Task
		result SyncResult
	)
	err := s.taskRepo.Transaction(ctx, func(repo *repository.TaskRepository) error {
		var err error
		task, err = repo.FindByID(ctx, user.ID, taskID)
		if err != nil {
			return err
		}
		if upd.Version != nil && *upd.Version != task.Version {
			return &ConcurrentModificationError{TemplateID: task.ID}
		}
		if upd.Recurrence != nil && task.IsInstance() {
			return &recurrence.InvalidRuleError{Field: "type", Reason: "generated instances cannot recur"}
		}

		wasTemplate := task.IsTemplate()
		changed := applyUpdate(task, upd, projectID)
		if len(changed) == 0 {
			return nil
		}

		if !wasTemplate && !task.IsTemplate() {
			return repo.Save(ctx, task)
		}

		if task.IsTemplate() && hasAny(toSet(changed), cadenceFields) {
			if err := s.checkRule(task); err != nil {
				return err
			}
		}
		if err := s.recurring.claim(ctx, repo, task); err != nil {
			return err
		}
		if err := repo.Save(ctx, task); err != nil {
			return err
		}
		result, err = s.recurring.syncTemplate(ctx, repo, task, changed, now)
		return err
	})
	if err != nil {
		return nil, SyncResult{}, wrapTxError("update task", asConflict(taskID, err))
	}

	logSync(task.ID, user.ID, result)
	return task, result, nil
}

func (s *TaskService) ListActive(ctx context.Context, user *model.User) ([]model.Task, error) {
	return s.taskRepo.ListOpen(ctx, user.ID)
}

func (s *TaskService) ListTemplates(ctx context.Context, user *model.User) ([]model.Task, error) {
	return s.taskRepo.ListTemplatesByUser(ctx, user.ID)
}

func (s *TaskService) GetTask(ctx context.Context, user *model.User, taskID uint) (*model.Task, error) {
	return s.taskRepo.FindByID(ctx, user.ID, taskID)
}

// CompleteTask marks a task or instance as done. Templates cannot be completed.
func (s *TaskService) CompleteTask(ctx context.Context, user *model.User, taskID uint, completedAt time.Time) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, user.ID, taskID)
	if err != nil {
		return nil, err
	}

	if task.IsTemplate() {
		return nil, ErrTemplateCompletion
	}

	if err := s.taskRepo.MarkCompleted(ctx, task, completedAt.UTC()); err != nil {
		return nil, err
	}
	return task, nil
}

// DeleteTask removes a task. Deleting a template resolves its instances;
// the result is zero for plain tasks.
func (s *TaskService) DeleteTask(ctx context.Context, user *model.User, taskID uint, now time.Time) (DeleteResult, error) {
	task, err := s.taskRepo.FindByID(ctx, user.ID, taskID)
	if err != nil {
		return DeleteResult{}, err
	}
	if task.IsTemplate() {
		return s.recurring.OnTemplateDeleted(ctx, user.ID, taskID, now)
	}
	return DeleteResult{}, s.taskRepo.Delete(ctx, user.ID, taskID)
}

// GenerateUpcoming materializes a template's next window on demand.
func (s *TaskService) GenerateUpcoming(ctx context.Context, user *model.User, templateID uint, now time.Time) (GenerateResult, error) {
	return s.recurring.GenerateUpcoming(ctx, user.ID, templateID, now)
}

// OwnerZoneChanged resyncs the user's templates that have no zone of their
// own. Call it after the new zone is stored.
func (s *TaskService) OwnerZoneChanged(ctx context.Context, user *model.User, now time.Time) (SyncResult, error) {
	return s.recurring.OnOwnerZoneChanged(ctx, user.ID, now)
}

// Upcoming previews the next count dates of a template without writing.
func (s *TaskService) Upcoming(ctx context.Context, tpl *model.Task, now time.Time, count int) ([]time.Time, error) {
	return s.recurring.Preview(ctx, tpl, now, count)
}

// Instances lists the tasks still linked to a template.
func (s *TaskService) Instances(ctx context.Context, user *model.User, templateID uint) ([]model.Task, error) {
	tpl, err := s.taskRepo.FindByID(ctx, user.ID, templateID)
	if err != nil {
		return nil, err
	}
	return s.taskRepo.ListInstances(ctx, tpl.ID)
}

func (s *TaskService) resolveProject(ctx context.Context, userID uint, name string) (*uint, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}
	project, err := s.projectRepo.GetOrCreate(ctx, userID, name)
	if err != nil {
		return nil, err
	}
	return &project.ID, nil
}

// checkRule validates the descriptor and the zone before anything is written.
func (s *TaskService) checkRule(task *model.Task) error {
	if err := task.Rule().Validate(); err != nil {
		return err
	}
	if task.Timezone == "" && s.recurring.defaultZone == "" {
		return nil // resolved from the owner at generation time
	}
	_, err := recurrence.LoadLocation(recurrence.PickZone(task.Timezone, s.recurring.defaultZone))
	return err
}

func applyRecurrence(task *model.Task, in RecurrenceInput) {
	task.RecurrenceType = in.Type
	if task.RecurrenceType == "" {
		task.RecurrenceType = recurrence.TypeNone
	}
	task.RecurrenceInterval = in.Interval
	if task.RecurrenceInterval == 0 {
		task.RecurrenceInterval = 1
	}
	task.RecurrenceMonthDay = in.MonthDay
	task.RecurrenceWeekDay = in.WeekDay
	task.RecurrenceMonth = in.Month
	task.RecurrenceEndDate = utcPtr(in.EndDate)
	if in.Timezone != "" {
		task.Timezone = in.Timezone
	}
}

// applyUpdate mutates task and returns the names of the columns that changed.
func applyUpdate(task *model.Task, upd TaskUpdate, projectID *uint) []string {
	var changed []string
	if upd.Title != nil && strings.TrimSpace(*upd.Title) != task.Title {
		task.Title = strings.TrimSpace(*upd.Title)
		changed = append(changed, "title")
	}
	if upd.Description != nil && *upd.Description != task.Description {
		task.Description = *upd.Description
		changed = append(changed, "description")
	}
	if upd.Project != nil && !sameID(task.ProjectID, projectID) {
		task.ProjectID = projectID
		changed = append(changed, FieldProject)
	}
	if upd.Priority != nil && *upd.Priority != task.Priority {
		task.Priority = *upd.Priority
		changed = append(changed, "priority")
	}
	if upd.Tags != nil {
		task.Tags = datatypes.JSONSlice[string](*upd.Tags)
		changed = append(changed, "tags")
	}
	if upd.Status != nil && *upd.Status != task.Status {
		task.Status = *upd.Status
		changed = append(changed, "status")
	}
	if upd.DueDate != nil && !sameTime(task.DueDate, upd.DueDate) {
		task.DueDate = utcPtr(upd.DueDate)
		changed = append(changed, FieldDueDate)
	}
	if upd.DeferUntil != nil && !sameTime(task.DeferUntil, upd.DeferUntil) {
		task.DeferUntil = utcPtr(upd.DeferUntil)
		changed = append(changed, "defer_until")
	}
	if upd.Recurrence != nil {
		before := *task
		applyRecurrence(task, *upd.Recurrence)
		changed = append(changed, recurrenceDiff(&before, task)...)
	}
	if upd.Paused != nil && *upd.Paused != task.RecurrencePaused {
		task.RecurrencePaused = *upd.Paused
		changed = append(changed, FieldPaused)
	}
	return changed
}

func recurrenceDiff(before, after *model.Task) []string {
	var changed []string
	if before.RecurrenceType != after.RecurrenceType {
		changed = append(changed, FieldType)
	}
	if before.RecurrenceInterval != after.RecurrenceInterval {
		changed = append(changed, FieldInterval)
	}
	if !sameInt(before.RecurrenceMonthDay, after.RecurrenceMonthDay) {
		changed = append(changed, FieldMonthDay)
	}
	if !sameInt(before.RecurrenceWeekDay, after.RecurrenceWeekDay) {
		changed = append(changed, FieldWeekDay)
	}
	if !sameInt(before.RecurrenceMonth, after.RecurrenceMonth) {
		changed = append(changed, FieldMonth)
	}
	if !sameTime(before.RecurrenceEndDate, after.RecurrenceEndDate) {
		changed = append(changed, FieldEndDate)
	}
	if before.Timezone != after.Timezone {
		changed = append(changed, FieldTimezone)
	}
	return changed
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}

func sameID(a, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
