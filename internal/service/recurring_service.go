package service

import (
	"context"
	"errors"
	"time"

	"task-planner/internal/model"
	"task-planner/internal/recurrence"
	"task-planner/internal/repository"
)

// GenerateResult lists the instances created by one generation pass.
type GenerateResult struct {
	Created []model.Task
}

// SyncResult reports what a template edit did to its instances.
// UpdatedCount counts future instances rewritten in place.
type SyncResult struct {
	Regenerated   bool
	UpdatedCount  int
	RemovedCount  int
	CreatedCount  int
	DetachedCount int
}

// DeleteResult reports how a template's children were resolved.
// DeletedCount does not include the template itself.
type DeleteResult struct {
	DeletedCount  int
	OrphanedCount int
}

// RecurringService generates, synchronizes and retires template instances.
// Every operation runs in one transaction per template and takes "now"
// from the caller.
type RecurringService struct {
	taskRepo    *repository.TaskRepository
	window      recurrence.Window
	defaultZone string
	locks       *templateLocks
}

func NewRecurringService(taskRepo *repository.TaskRepository, window recurrence.Window, defaultZone string) *RecurringService {
	return &RecurringService{
		taskRepo:    taskRepo,
		window:      window,
		defaultZone: defaultZone,
		locks:       newTemplateLocks(),
	}
}

type templateFunc func(repo *repository.TaskRepository, tpl *model.Task) error

func requireTemplate(task *model.Task) error {
	if !task.IsTemplate() {
		return ErrNotTemplate
	}
	return nil
}

// requireRoot accepts templates and tasks that just stopped being one.
func requireRoot(task *model.Task) error {
	if task.IsInstance() {
		return ErrNotTemplate
	}
	return nil
}

// withTemplate serializes on the template, opens a transaction, loads the
// template and claims its version before handing it to fn.
func (s *RecurringService) withTemplate(ctx context.Context, op string, userID, templateID uint, check func(*model.Task) error, fn templateFunc) error {
	unlock := s.locks.Lock(templateID)
	defer unlock()

	err := s.taskRepo.Transaction(ctx, func(repo *repository.TaskRepository) error {
		tpl, err := repo.FindByID(ctx, userID, templateID)
		if err != nil {
			return err
		}
		if err := check(tpl); err != nil {
			return err
		}
		if err := s.claim(ctx, repo, tpl); err != nil {
			return err
		}
		return fn(repo, tpl)
	})
	return wrapTxError(op, asConflict(templateID, err))
}

func (s *RecurringService) claim(ctx context.Context, repo *repository.TaskRepository, tpl *model.Task) error {
	if err := repo.ClaimTemplate(ctx, tpl.UserID, tpl.ID, tpl.Version); err != nil {
		if errors.Is(err, repository.ErrStaleVersion) {
			return &ConcurrentModificationError{TemplateID: tpl.ID}
		}
		return err
	}
	tpl.Version++
	return nil
}

// location resolves the template zone, then the owner's, then the default.
func (s *RecurringService) location(ctx context.Context, repo *repository.TaskRepository, tpl *model.Task) (*time.Location, error) {
	zone := tpl.Timezone
	if zone == "" {
		owner, err := repo.OwnerTimezone(ctx, tpl.UserID)
		if err != nil {
			return nil, err
		}
		zone = owner
	}
	return recurrence.LoadLocation(recurrence.PickZone(zone, s.defaultZone))
}

// Preview returns the next count occurrences of the template without
// writing anything.
func (s *RecurringService) Preview(ctx context.Context, tpl *model.Task, now time.Time, count int) ([]time.Time, error) {
	if err := requireTemplate(tpl); err != nil {
		return nil, err
	}
	loc, err := s.location(ctx, s.taskRepo, tpl)
	if err != nil {
		return nil, err
	}
	return recurrence.NextOccurrences(tpl.Rule(), now, loc, count)
}
