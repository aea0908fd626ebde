package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"task-planner/internal/model"
	"task-planner/internal/recurrence"
	"task-planner/internal/repository"
)

func seed(t *testing.T) (string, uint, uint) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "DATABASE_URL", "DEFAULT_TIMEZONE", "GENERATION_WINDOW",
		"GENERATION_HORIZON_DAYS", "SWEEP_TIME", "SWEEP_RATE", "REPORT_INTERVAL_HOURS",
	} {
		t.Setenv(key, "")
	}

	path := filepath.Join(t.TempDir(), "planner.db")
	db, err := repository.NewDB(path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	ctx := context.Background()
	user, err := repository.NewUserRepository(db).UpsertFromTelegram(ctx, 7, "Ivan", "", "ivan")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	due := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tpl := model.Task{
		UserID:             user.ID,
		Title:              "standup",
		DueDate:            &due,
		RecurrenceType:     recurrence.TypeDaily,
		RecurrenceInterval: 1,
		CreatedAt:          due,
	}
	if err := repository.NewTaskRepository(db).Create(ctx, &tpl); err != nil {
		t.Fatalf("create template: %v", err)
	}
	return path, user.ID, tpl.ID
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dbPath, userID, nowFlag = "", 0, ""

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestGenerateAndInstances(t *testing.T) {
	path, user, tpl := seed(t)
	id := itoa(tpl)

	out, err := run(t, "generate", id, "--db", path, "--user", itoa(user), "--now", "2024-03-01T12:00:00Z")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.Contains(out, "created 5 instances") {
		t.Errorf("Unexpected output:\n%s", out)
	}

	out, err = run(t, "generate", id, "--db", path, "--user", itoa(user), "--now", "2024-03-01T12:00:00Z")
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}
	if !strings.Contains(out, "created 0 instances") {
		t.Errorf("Expected a repeated run to create nothing:\n%s", out)
	}

	out, err = run(t, "instances", id, "--db", path, "--user", itoa(user))
	if err != nil {
		t.Fatalf("instances: %v", err)
	}
	if lines := strings.Count(strings.TrimSpace(out), "\n") + 1; lines != 5 {
		t.Errorf("Expected 5 instance lines, got %d:\n%s", lines, out)
	}
}

func TestPreview(t *testing.T) {
	path, user, tpl := seed(t)

	out, err := run(t, "preview", itoa(tpl), "--db", path, "--user", itoa(user), "--now", "2024-03-01", "--count", "2")
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	for _, want := range []string{"standup", "2024-03-02", "2024-03-03"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "2024-03-04") {
		t.Errorf("Expected only two dates:\n%s", out)
	}
}

func TestDeleteReportsCounts(t *testing.T) {
	path, user, tpl := seed(t)
	id := itoa(tpl)

	if _, err := run(t, "generate", id, "--db", path, "--user", itoa(user), "--now", "2024-03-01T12:00:00Z"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	out, err := run(t, "delete", id, "--db", path, "--user", itoa(user), "--now", "2024-03-04T12:00:00Z")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !strings.Contains(out, "deleted 2 future instances, orphaned 3") {
		t.Errorf("Unexpected output:\n%s", out)
	}
}

func TestSweep(t *testing.T) {
	path, _, _ := seed(t)

	out, err := run(t, "sweep", "--db", path, "--now", "2024-03-01T12:00:00Z")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if !strings.Contains(out, "templates: 1, created: 5, failed: 0") {
		t.Errorf("Unexpected output:\n%s", out)
	}
}

func TestRequiresUser(t *testing.T) {
	path, _, tpl := seed(t)
	if _, err := run(t, "generate", itoa(tpl), "--db", path); err == nil {
		t.Error("Expected an error without --user")
	}
}

func itoa(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
