package service

import (
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"task-planner/internal/model"
	"task-planner/internal/recurrence"
)

func TestPartitionChildren(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	child := func(id uint, due time.Time, status model.TaskStatus) model.Task {
		return model.Task{ID: id, DueDate: &due, Status: status}
	}

	tests := []struct {
		name       string
		children   []model.Task
		wantDelete []uint
		wantOrphan []uint
	}{
		{
			name: "mixed",
			children: []model.Task{
				child(1, day(2024, 3, 5), model.StatusDone),
				child(2, day(2024, 3, 20), model.StatusNotStarted),
				child(3, day(2024, 3, 21), model.StatusNotStarted),
			},
			wantDelete: []uint{2, 3},
			wantOrphan: []uint{1},
		},
		{
			name: "all future",
			children: []model.Task{
				child(1, day(2024, 3, 11), model.StatusNotStarted),
				child(2, day(2024, 3, 12), model.StatusPlanned),
			},
			wantDelete: []uint{1, 2},
		},
		{
			name: "all past",
			children: []model.Task{
				child(1, day(2024, 3, 1), model.StatusNotStarted),
				child(2, day(2024, 3, 2), model.StatusDone),
			},
			wantOrphan: []uint{1, 2},
		},
		{
			name: "future but started or finished",
			children: []model.Task{
				child(1, day(2024, 3, 11), model.StatusInProgress),
				child(2, day(2024, 3, 12), model.StatusWaiting),
				child(3, day(2024, 3, 13), model.StatusCancelled),
			},
			wantOrphan: []uint{1, 2, 3},
		},
		{
			name: "due today",
			children: []model.Task{
				child(1, day(2024, 3, 10), model.StatusNotStarted),
			},
			wantOrphan: []uint{1},
		},
		{
			name: "no children",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PartitionChildren(tt.children, now)
			if !equalIDs(p.ToDelete, tt.wantDelete) {
				t.Errorf("Expected delete %v, got %v", tt.wantDelete, p.ToDelete)
			}
			if !equalIDs(p.ToOrphan, tt.wantOrphan) {
				t.Errorf("Expected orphan %v, got %v", tt.wantOrphan, p.ToOrphan)
			}
		})
	}
}

func equalIDs(a, b []uint) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDeleteTemplateRemovesFutureAndOrphansPast(t *testing.T) {
	f := newFixture(t)
	tpl := f.storeTask(t, model.Task{
		Title:              "gym",
		DueDate:            timep(day(2024, 3, 1)),
		RecurrenceType:     recurrence.TypeDaily,
		RecurrenceInterval: 1,
	})
	parent := tpl.ID
	past := f.storeTask(t, model.Task{Title: "gym", RecurringParentID: &parent, DueDate: timep(day(2024, 3, 5)), Status: model.StatusDone})
	f.storeTask(t, model.Task{Title: "gym", RecurringParentID: &parent, DueDate: timep(day(2024, 3, 20))})
	f.storeTask(t, model.Task{Title: "gym", RecurringParentID: &parent, DueDate: timep(day(2024, 3, 21))})

	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	res, err := f.tasks.DeleteTask(f.ctx, f.user, tpl.ID, now)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if res.DeletedCount != 2 || res.OrphanedCount != 1 {
		t.Errorf("Expected 2 deleted and 1 orphaned, got %+v", res)
	}

	if _, err := f.taskRepo.FindByID(f.ctx, f.user.ID, tpl.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("Expected template to be gone, got %v", err)
	}
	kept := f.reload(t, past.ID)
	if kept.RecurringParentID != nil {
		t.Errorf("Expected orphan to lose its parent, got %v", *kept.RecurringParentID)
	}
	if kept.Status != model.StatusDone {
		t.Errorf("Expected orphan status to be preserved, got %s", kept.Status)
	}
}

func TestDeletePlainTaskReportsNothing(t *testing.T) {
	f := newFixture(t)
	plain := f.storeTask(t, model.Task{Title: "call mom"})

	res, err := f.tasks.DeleteTask(f.ctx, f.user, plain.ID, day(2024, 3, 1))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if res != (DeleteResult{}) {
		t.Errorf("Expected empty result, got %+v", res)
	}
	if _, err := f.taskRepo.FindByID(f.ctx, f.user.ID, plain.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("Expected task to be deleted, got %v", err)
	}
}

func TestDeleteTemplateOfAnotherUser(t *testing.T) {
	f := newFixture(t)
	tpl := dailyFromMarch1(f, t)

	stranger := &model.User{ID: f.user.ID + 100}
	_, err := f.tasks.DeleteTask(f.ctx, stranger, tpl.ID, day(2024, 3, 2))
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("Expected not found for another user, got %v", err)
	}
	if got := len(f.instances(t, tpl.ID)); got != 5 {
		t.Errorf("Expected instances to stay, got %d", got)
	}
}
