package service

import (
	"context"
	"log"
	"time"

	"gorm.io/datatypes"

	"task-planner/internal/model"
	"task-planner/internal/recurrence"
	"task-planner/internal/repository"
)

// GenerateUpcoming materializes the template's next window of occurrences.
// Dates that already have an instance are skipped, so repeated calls are
// harmless.
func (s *RecurringService) GenerateUpcoming(ctx context.Context, userID, templateID uint, now time.Time) (GenerateResult, error) {
	var result GenerateResult
	err := s.withTemplate(ctx, "generate instances", userID, templateID, requireTemplate, func(repo *repository.TaskRepository, tpl *model.Task) error {
		created, err := s.materialize(ctx, repo, tpl, now)
		result.Created = created
		return err
	})
	if err != nil {
		return GenerateResult{}, err
	}
	if len(result.Created) > 0 {
		log.Printf("[info] generated %d instances template=%d user=%d", len(result.Created), templateID, userID)
	}
	return result, nil
}

// materialize plans against the instances already linked to tpl and inserts
// the missing ones. It must run inside the caller's transaction.
func (s *RecurringService) materialize(ctx context.Context, repo *repository.TaskRepository, tpl *model.Task, now time.Time) ([]model.Task, error) {
	if tpl.RecurrencePaused {
		return nil, nil
	}

	loc, err := s.location(ctx, repo, tpl)
	if err != nil {
		return nil, err
	}

	children, err := repo.ListInstances(ctx, tpl.ID)
	if err != nil {
		return nil, err
	}

	dates, err := recurrence.Plan(tpl.Rule(), now, loc, dueDates(children), s.window)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return nil, nil
	}

	instances := make([]model.Task, 0, len(dates))
	for _, due := range dates {
		instances = append(instances, newInstance(tpl, due))
	}
	if err := repo.CreateBatch(ctx, instances); err != nil {
		return nil, err
	}
	return instances, nil
}

// newInstance copies the template's content but never its recurrence
// descriptor. The owner always comes from the template.
func newInstance(tpl *model.Task, due time.Time) model.Task {
	parentID := tpl.ID
	due = due.UTC()
	return model.Task{
		UserID:             tpl.UserID,
		ProjectID:          copyID(tpl.ProjectID),
		AreaID:             copyID(tpl.AreaID),
		RecurringParentID:  &parentID,
		Title:              tpl.Title,
		Description:        tpl.Description,
		Priority:           tpl.Priority,
		Tags:               append(datatypes.JSONSlice[string](nil), tpl.Tags...),
		Status:             model.StatusNotStarted,
		DueDate:            &due,
		RecurrenceType:     recurrence.TypeNone,
		RecurrenceInterval: 1,
	}
}

func dueDates(tasks []model.Task) []time.Time {
	dates := make([]time.Time, 0, len(tasks))
	for _, task := range tasks {
		if task.DueDate != nil {
			dates = append(dates, *task.DueDate)
		}
	}
	return dates
}

func copyID(id *uint) *uint {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
