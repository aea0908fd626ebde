package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"task-planner/internal/model"
	"task-planner/internal/recurrence"
)

func TestSweepRunTopsUpEveryTemplate(t *testing.T) {
	f := newFixture(t)
	daily := model.Task{Title: "standup", DueDate: timep(day(2024, 3, 1)), RecurrenceType: recurrence.TypeDaily, RecurrenceInterval: 1}
	f.storeTask(t, daily)
	f.storeTask(t, model.Task{Title: "review", DueDate: timep(day(2024, 3, 1)), RecurrenceType: recurrence.TypeWeekly, RecurrenceInterval: 1})
	f.storeTask(t, model.Task{Title: "paused", DueDate: timep(day(2024, 3, 1)), RecurrenceType: recurrence.TypeDaily, RecurrenceInterval: 1, RecurrencePaused: true})
	// Monthly without a day is rejected; the sweep keeps going.
	f.storeTask(t, model.Task{Title: "broken", DueDate: timep(day(2024, 3, 1)), RecurrenceType: recurrence.TypeMonthly, RecurrenceInterval: 1})

	sweep := NewSweepService(f.taskRepo, f.recurring, 0)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	report, err := sweep.Run(f.ctx, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.Templates != 3 {
		t.Errorf("Expected 3 active templates, got %d", report.Templates)
	}
	if report.Created != 10 {
		t.Errorf("Expected 10 instances, got %d", report.Created)
	}
	if report.Failed != 1 {
		t.Errorf("Expected 1 failure, got %d", report.Failed)
	}

	again, err := sweep.Run(f.ctx, now)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if again.Created != 0 {
		t.Errorf("Expected a repeated sweep to create nothing, got %d", again.Created)
	}
}

func TestSweepRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.storeTask(t, model.Task{Title: "standup", DueDate: timep(day(2024, 3, 1)), RecurrenceType: recurrence.TypeDaily, RecurrenceInterval: 1})

	ctx, cancel := context.WithCancel(f.ctx)
	cancel()

	sweep := NewSweepService(f.taskRepo, f.recurring, 1)
	_, err := sweep.Run(ctx, day(2024, 3, 2))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
