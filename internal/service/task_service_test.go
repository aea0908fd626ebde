package service

import (
	"errors"
	"testing"
	"time"

	"task-planner/internal/model"
	"task-planner/internal/recurrence"
)

func TestCreateTaskRejectsBadRecurrence(t *testing.T) {
	tests := []struct {
		name  string
		input RecurrenceInput
		check func(t *testing.T, err error)
	}{
		{
			name:  "monthly without day",
			input: RecurrenceInput{Type: recurrence.TypeMonthly},
			check: func(t *testing.T, err error) {
				var ruleErr *recurrence.InvalidRuleError
				if !errors.As(err, &ruleErr) {
					t.Errorf("Expected InvalidRuleError, got %v", err)
				}
			},
		},
		{
			name:  "weekday out of range",
			input: RecurrenceInput{Type: recurrence.TypeWeekly, WeekDay: intp(7)},
			check: func(t *testing.T, err error) {
				var ruleErr *recurrence.InvalidRuleError
				if !errors.As(err, &ruleErr) {
					t.Errorf("Expected InvalidRuleError, got %v", err)
				}
			},
		},
		{
			name:  "unknown zone",
			input: RecurrenceInput{Type: recurrence.TypeDaily, Timezone: "Mars/Base"},
			check: func(t *testing.T, err error) {
				var tzErr *recurrence.TimezoneResolutionError
				if !errors.As(err, &tzErr) {
					t.Errorf("Expected TimezoneResolutionError, got %v", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			in := tt.input
			_, _, err := f.tasks.CreateTask(f.ctx, f.user, TaskInput{
				Title:      "broken",
				DueDate:    timep(day(2024, 3, 1)),
				Recurrence: &in,
			}, day(2024, 3, 1))
			tt.check(t, err)

			open, err := f.tasks.ListActive(f.ctx, f.user)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(open) != 0 {
				t.Errorf("Expected nothing stored, got %d tasks", len(open))
			}
		})
	}
}

func TestCreateTaskRequiresTitle(t *testing.T) {
	f := newFixture(t)
	if _, _, err := f.tasks.CreateTask(f.ctx, f.user, TaskInput{Title: "  "}, day(2024, 3, 1)); err == nil {
		t.Error("Expected an error for an empty title")
	}
}

func TestCreatePlainTask(t *testing.T) {
	f := newFixture(t)
	task, created, err := f.tasks.CreateTask(f.ctx, f.user, TaskInput{Title: " buy milk ", Project: "Home"}, day(2024, 3, 1))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.Title != "buy milk" {
		t.Errorf("Expected trimmed title, got %q", task.Title)
	}
	if task.IsTemplate() || len(created) != 0 {
		t.Errorf("Expected a plain task without instances, got %d", len(created))
	}
	if task.ProjectID == nil {
		t.Error("Expected project to be created and linked")
	}
}

func TestCompleteTask(t *testing.T) {
	f := newFixture(t)
	tpl := dailyFromMarch1(f, t)

	if _, err := f.tasks.CompleteTask(f.ctx, f.user, tpl.ID, day(2024, 3, 2)); !errors.Is(err, ErrTemplateCompletion) {
		t.Errorf("Expected ErrTemplateCompletion, got %v", err)
	}

	inst := instanceOn(t, f.instances(t, tpl.ID), day(2024, 3, 2))
	done, err := f.tasks.CompleteTask(f.ctx, f.user, inst.ID, time.Date(2024, 3, 2, 18, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != model.StatusDone || done.CompletedAt == nil {
		t.Errorf("Expected done with completion time, got %s %v", done.Status, done.CompletedAt)
	}
	if done.RecurringParentID == nil {
		t.Error("Expected completed instance to stay linked")
	}
}

func TestUpdateRejectsRecurrenceOnInstance(t *testing.T) {
	f := newFixture(t)
	tpl := dailyFromMarch1(f, t)
	inst := instanceOn(t, f.instances(t, tpl.ID), day(2024, 3, 3))

	_, _, err := f.tasks.UpdateTask(f.ctx, f.user, inst.ID, TaskUpdate{
		Recurrence: &RecurrenceInput{Type: recurrence.TypeWeekly},
	}, day(2024, 3, 2))
	var ruleErr *recurrence.InvalidRuleError
	if !errors.As(err, &ruleErr) {
		t.Errorf("Expected InvalidRuleError, got %v", err)
	}
}

func TestUpdatePlainTaskToTemplate(t *testing.T) {
	f := newFixture(t)
	plain := f.storeTask(t, model.Task{Title: "stretch", DueDate: timep(day(2024, 3, 1))})

	updated, res, err := f.tasks.UpdateTask(f.ctx, f.user, plain.ID, TaskUpdate{
		Recurrence: &RecurrenceInput{Type: recurrence.TypeWeekly, Interval: 2},
	}, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.IsTemplate() {
		t.Fatal("Expected task to become a template")
	}
	if !res.Regenerated || res.CreatedCount != 5 {
		t.Errorf("Expected 5 fresh instances, got %+v", res)
	}
	// Fridays, every other week, starting after the anchor day itself.
	assertDueDates(t, f.instances(t, plain.ID)[:2], day(2024, 3, 15), day(2024, 3, 29))
}

func TestApplyUpdateReportsChangedFields(t *testing.T) {
	project := uint(3)
	task := &model.Task{Title: "a", RecurrenceType: recurrence.TypeDaily, RecurrenceInterval: 1}
	title := "b"
	paused := true

	changed := applyUpdate(task, TaskUpdate{
		Title:      &title,
		Project:    &title,
		Paused:     &paused,
		Recurrence: &RecurrenceInput{Type: recurrence.TypeDaily, Interval: 3},
	}, &project)

	want := map[string]bool{"title": true, FieldProject: true, FieldInterval: true, FieldPaused: true}
	if len(changed) != len(want) {
		t.Fatalf("Expected %d changes, got %v", len(want), changed)
	}
	for _, name := range changed {
		if !want[name] {
			t.Errorf("Unexpected change %q", name)
		}
	}
}
