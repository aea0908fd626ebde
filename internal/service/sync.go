package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"task-planner/internal/model"
	"task-planner/internal/repository"
)

// Template fields the sync controller reacts to. The names match the columns.
const (
	FieldProject  = "project_id"
	FieldDueDate  = "due_date"
	FieldType     = "recurrence_type"
	FieldInterval = "recurrence_interval"
	FieldMonthDay = "recurrence_month_day"
	FieldWeekDay  = "recurrence_week_day"
	FieldMonth    = "recurrence_month"
	FieldEndDate  = "recurrence_end_date"
	FieldTimezone = "timezone"
	FieldPaused   = "recurrence_paused"
)

// cadenceFields change which dates a template produces.
var cadenceFields = []string{
	FieldDueDate, FieldType, FieldInterval, FieldMonthDay,
	FieldWeekDay, FieldMonth, FieldEndDate, FieldTimezone,
}

// OnTemplateUpdated brings the template's instances in line with an edit
// that has already been saved. Past and started instances are never touched.
func (s *RecurringService) OnTemplateUpdated(ctx context.Context, userID, templateID uint, changed []string, now time.Time) (SyncResult, error) {
	var result SyncResult
	err := s.withTemplate(ctx, "sync template", userID, templateID, requireRoot, func(repo *repository.TaskRepository, tpl *model.Task) error {
		var err error
		result, err = s.syncTemplate(ctx, repo, tpl, changed, now)
		return err
	})
	if err != nil {
		return SyncResult{}, err
	}
	logSync(templateID, userID, result)
	return result, nil
}

// OnOwnerZoneChanged regenerates the templates that follow their owner's zone
// after the owner picked a new one. Templates with a zone of their own keep
// their instances.
func (s *RecurringService) OnOwnerZoneChanged(ctx context.Context, userID uint, now time.Time) (SyncResult, error) {
	templates, err := s.taskRepo.ListTemplatesByUser(ctx, userID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("list templates: %w", err)
	}

	var total SyncResult
	for _, tpl := range templates {
		if tpl.Timezone != "" {
			continue
		}
		res, err := s.OnTemplateUpdated(ctx, userID, tpl.ID, []string{FieldTimezone}, now)
		if err != nil {
			return total, err
		}
		total.Regenerated = total.Regenerated || res.Regenerated
		total.RemovedCount += res.RemovedCount
		total.CreatedCount += res.CreatedCount
	}
	return total, nil
}

// syncTemplate must run inside the transaction that saved the edit.
func (s *RecurringService) syncTemplate(ctx context.Context, repo *repository.TaskRepository, tpl *model.Task, changed []string, now time.Time) (SyncResult, error) {
	var result SyncResult
	fields := make(map[string]bool, len(changed))
	for _, f := range changed {
		fields[f] = true
	}

	children, err := repo.ListInstances(ctx, tpl.ID)
	if err != nil {
		return result, err
	}

	if !tpl.IsTemplate() {
		// Recurrence was switched off: resolve children as on deletion.
		part := PartitionChildren(children, now)
		removed, err := repo.DeleteByIDs(ctx, tpl.UserID, part.ToDelete)
		if err != nil {
			return result, err
		}
		detached, err := repo.DetachFromParent(ctx, tpl.UserID, part.ToOrphan)
		if err != nil {
			return result, err
		}
		result.RemovedCount = int(removed)
		result.DetachedCount = int(detached)
		return result, nil
	}

	pending := futurePendingIDs(children, now)

	if hasAny(fields, cadenceFields) {
		// Reject a bad rule or zone before anything is removed.
		if err := tpl.Rule().Validate(); err != nil {
			return result, err
		}
		if _, err := s.location(ctx, repo, tpl); err != nil {
			return result, err
		}
		removed, err := repo.DeleteByIDs(ctx, tpl.UserID, pending)
		if err != nil {
			return result, err
		}
		created, err := s.materialize(ctx, repo, tpl, now)
		if err != nil {
			return result, err
		}
		result.Regenerated = !tpl.RecurrencePaused
		result.RemovedCount = int(removed)
		result.CreatedCount = len(created)
		return result, nil
	}

	if fields[FieldProject] {
		updated, err := repo.SetProject(ctx, tpl.UserID, pending, tpl.ProjectID)
		if err != nil {
			return result, err
		}
		result.UpdatedCount = int(updated)
	}

	// Resuming catches up on the window; pausing leaves existing instances alone.
	if fields[FieldPaused] && !tpl.RecurrencePaused {
		created, err := s.materialize(ctx, repo, tpl, now)
		if err != nil {
			return result, err
		}
		result.CreatedCount = len(created)
	}
	return result, nil
}

func futurePendingIDs(children []model.Task, now time.Time) []uint {
	var ids []uint
	for i := range children {
		if children[i].IsFuturePending(now) {
			ids = append(ids, children[i].ID)
		}
	}
	return ids
}

func hasAny(fields map[string]bool, names []string) bool {
	for _, name := range names {
		if fields[name] {
			return true
		}
	}
	return false
}

func logSync(templateID, userID uint, r SyncResult) {
	if r == (SyncResult{}) {
		return
	}
	log.Printf("[info] synced template=%d user=%d regenerated=%t updated=%d removed=%d created=%d detached=%d",
		templateID, userID, r.Regenerated, r.UpdatedCount, r.RemovedCount, r.CreatedCount, r.DetachedCount)
}
