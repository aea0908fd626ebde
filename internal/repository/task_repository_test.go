package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"

	"task-planner/internal/model"
	"task-planner/internal/recurrence"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "planner.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func createTask(t *testing.T, repo *TaskRepository, task model.Task) *model.Task {
	t.Helper()
	if err := repo.Create(context.Background(), &task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	return &task
}

func TestTaskRepository_CreateAssignsUID(t *testing.T) {
	repo := NewTaskRepository(setupTestDB(t))
	task := createTask(t, repo, model.Task{UserID: 1, Title: "pay rent"})

	if task.UID == "" {
		t.Fatal("Expected UID to be assigned")
	}
	if task.Status != model.StatusNotStarted {
		t.Errorf("Expected status %s, got %s", model.StatusNotStarted, task.Status)
	}

	found, err := repo.FindByUID(context.Background(), 1, task.UID)
	if err != nil {
		t.Fatalf("find by uid: %v", err)
	}
	if found.ID != task.ID {
		t.Errorf("Expected id %d, got %d", task.ID, found.ID)
	}

	if _, err := repo.FindByID(context.Background(), 2, task.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("Expected other users to be scoped out, got %v", err)
	}
}

func TestTaskRepository_ClaimTemplate(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(setupTestDB(t))
	tpl := createTask(t, repo, model.Task{UserID: 1, Title: "standup", RecurrenceType: recurrence.TypeDaily, RecurrenceInterval: 1})

	if err := repo.ClaimTemplate(ctx, 1, tpl.ID, tpl.Version); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := repo.ClaimTemplate(ctx, 1, tpl.ID, tpl.Version); !errors.Is(err, ErrStaleVersion) {
		t.Fatalf("Expected ErrStaleVersion on second claim with old version, got %v", err)
	}

	reloaded, err := repo.FindByID(ctx, 1, tpl.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Version != tpl.Version+1 {
		t.Errorf("Expected version %d, got %d", tpl.Version+1, reloaded.Version)
	}
}

func TestTaskRepository_ListTemplates(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(setupTestDB(t))

	active := createTask(t, repo, model.Task{UserID: 1, Title: "water plants", RecurrenceType: recurrence.TypeWeekly, RecurrenceInterval: 1})
	createTask(t, repo, model.Task{UserID: 2, Title: "paused", RecurrenceType: recurrence.TypeDaily, RecurrenceInterval: 1, RecurrencePaused: true})
	createTask(t, repo, model.Task{UserID: 1, Title: "one-off"})
	parent := active.ID
	due := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	createTask(t, repo, model.Task{UserID: 1, Title: "water plants", RecurringParentID: &parent, DueDate: &due})

	templates, err := repo.ListTemplates(ctx)
	if err != nil {
		t.Fatalf("list templates: %v", err)
	}
	if len(templates) != 1 || templates[0].ID != active.ID {
		t.Errorf("Expected only the active template, got %+v", templates)
	}

	instances, err := repo.ListInstances(ctx, active.ID)
	if err != nil {
		t.Fatalf("list instances: %v", err)
	}
	if len(instances) != 1 {
		t.Errorf("Expected 1 instance, got %d", len(instances))
	}
}

func TestTaskRepository_BulkOperations(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(setupTestDB(t))
	tpl := createTask(t, repo, model.Task{UserID: 1, Title: "report", RecurrenceType: recurrence.TypeDaily, RecurrenceInterval: 1})
	parent := tpl.ID

	var ids []uint
	for i := 1; i <= 3; i++ {
		due := time.Date(2025, 6, i, 0, 0, 0, 0, time.UTC)
		task := createTask(t, repo, model.Task{UserID: 1, Title: "report", RecurringParentID: &parent, DueDate: &due})
		ids = append(ids, task.ID)
	}
	foreign := createTask(t, repo, model.Task{UserID: 2, Title: "not mine"})

	project := uint(42)
	moved, err := repo.SetProject(ctx, 1, append([]uint{foreign.ID}, ids[0]), &project)
	if err != nil {
		t.Fatalf("set project: %v", err)
	}
	if moved != 1 {
		t.Errorf("Expected 1 task moved, got %d", moved)
	}

	detached, err := repo.DetachFromParent(ctx, 1, ids[:2])
	if err != nil {
		t.Fatalf("detach: %v", err)
	}
	if detached != 2 {
		t.Errorf("Expected 2 detached, got %d", detached)
	}

	deleted, err := repo.DeleteByIDs(ctx, 1, ids[2:])
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted, got %d", deleted)
	}

	remaining, err := repo.ListInstances(ctx, tpl.ID)
	if err != nil {
		t.Fatalf("list instances: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("Expected no linked instances, got %d", len(remaining))
	}

	first, err := repo.FindByID(ctx, 1, ids[0])
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if first.ProjectID == nil || *first.ProjectID != project {
		t.Errorf("Expected project %d, got %v", project, first.ProjectID)
	}
	if first.RecurringParentID != nil {
		t.Errorf("Expected parent link cleared, got %d", *first.RecurringParentID)
	}
}

func TestTaskRepository_TransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(setupTestDB(t))
	boom := errors.New("boom")

	err := repo.Transaction(ctx, func(tx *TaskRepository) error {
		if err := tx.Create(ctx, &model.Task{UserID: 1, Title: "ghost"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}

	open, err := repo.ListOpen(ctx, 1)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("Expected rollback to leave no tasks, got %d", len(open))
	}
}

func TestTaskRepository_OwnerTimezone(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	users := NewUserRepository(db)
	tasks := NewTaskRepository(db)

	user, err := users.UpsertFromTelegram(ctx, 100, "Ann", "", "ann")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := users.SetTimezone(ctx, user, "Europe/Moscow"); err != nil {
		t.Fatalf("set timezone: %v", err)
	}

	zone, err := tasks.OwnerTimezone(ctx, user.ID)
	if err != nil {
		t.Fatalf("owner timezone: %v", err)
	}
	if zone != "Europe/Moscow" {
		t.Errorf("Expected Europe/Moscow, got %q", zone)
	}

	zone, err = tasks.OwnerTimezone(ctx, 999)
	if err != nil || zone != "" {
		t.Errorf("Expected empty zone for unknown user, got %q (%v)", zone, err)
	}
}

func TestWithSQLiteParams(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"planner.db", "planner.db?_busy_timeout=5000&_txlock=immediate&_journal_mode=WAL"},
		{"file:planner.db?cache=shared", "file:planner.db?cache=shared&_busy_timeout=5000&_txlock=immediate&_journal_mode=WAL"},
		{"file::memory:?cache=shared", "file::memory:?cache=shared&_busy_timeout=5000&_txlock=immediate"},
		{"planner.db?_busy_timeout=100&_txlock=deferred&_journal_mode=DELETE", "planner.db?_busy_timeout=100&_txlock=deferred&_journal_mode=DELETE"},
	}
	for _, tt := range tests {
		if got := withSQLiteParams(tt.dsn); got != tt.want {
			t.Errorf("withSQLiteParams(%q) = %q, want %q", tt.dsn, got, tt.want)
		}
	}
}
