package service

import (
	"context"
	"log"
	"time"

	"task-planner/internal/model"
	"task-planner/internal/repository"
)

// Partition splits a template's children at deletion time.
type Partition struct {
	ToDelete []uint
	ToOrphan []uint
}

// PartitionChildren puts future, not yet started instances in ToDelete and
// everything else (past, due today, started, finished) in ToOrphan.
func PartitionChildren(children []model.Task, now time.Time) Partition {
	var p Partition
	for i := range children {
		if children[i].IsFuturePending(now) {
			p.ToDelete = append(p.ToDelete, children[i].ID)
		} else {
			p.ToOrphan = append(p.ToOrphan, children[i].ID)
		}
	}
	return p
}

// OnTemplateDeleted removes the template together with its future pending
// instances and detaches the rest, all in one transaction.
func (s *RecurringService) OnTemplateDeleted(ctx context.Context, userID, templateID uint, now time.Time) (DeleteResult, error) {
	var result DeleteResult
	err := s.withTemplate(ctx, "delete template", userID, templateID, requireTemplate, func(repo *repository.TaskRepository, tpl *model.Task) error {
		children, err := repo.ListInstances(ctx, tpl.ID)
		if err != nil {
			return err
		}
		part := PartitionChildren(children, now)

		deleted, err := repo.DeleteByIDs(ctx, tpl.UserID, part.ToDelete)
		if err != nil {
			return err
		}
		orphaned, err := repo.DetachFromParent(ctx, tpl.UserID, part.ToOrphan)
		if err != nil {
			return err
		}
		if err := repo.Delete(ctx, tpl.UserID, tpl.ID); err != nil {
			return err
		}
		result = DeleteResult{DeletedCount: int(deleted), OrphanedCount: int(orphaned)}
		return nil
	})
	if err != nil {
		return DeleteResult{}, err
	}
	log.Printf("[info] template deleted id=%d user=%d instances_deleted=%d orphaned=%d", templateID, userID, result.DeletedCount, result.OrphanedCount)
	return result, nil
}
