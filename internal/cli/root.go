package cli

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"task-planner/internal/config"
	"task-planner/internal/recurrence"
	"task-planner/internal/repository"
	"task-planner/internal/service"
)

var (
	dbPath  string
	userID  uint
	nowFlag string
	rootCmd *cobra.Command
)

func init() {
	rootCmd = &cobra.Command{
		Use:   "plannerctl",
		Short: "Inspect and maintain recurring task templates",
		Long: `plannerctl works directly on the planner database.

It previews template schedules, generates upcoming instances, runs the
sweep that the bot schedules nightly and deletes templates the same way
the bot does.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (overrides DATABASE_URL)")
	rootCmd.PersistentFlags().UintVarP(&userID, "user", "u", 0, "Owner user id")
	rootCmd.PersistentFlags().StringVar(&nowFlag, "now", "", "Reference time, RFC3339 or YYYY-MM-DD (default: current time)")

	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(instancesCmd)
}

// Execute runs the root command
func Execute(version string) error {
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

type app struct {
	cfg       config.Config
	db        *gorm.DB
	taskRepo  *repository.TaskRepository
	recurring *service.RecurringService
	sweep     *service.SweepService
	loc       *time.Location
}

func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if dbPath != "" {
		cfg.DatabaseURL = dbPath
	}
	loc, err := recurrence.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		return nil, err
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	taskRepo := repository.NewTaskRepository(db)
	recurring := service.NewRecurringService(taskRepo, cfg.Window(), cfg.DefaultTimezone)
	return &app{
		cfg:       cfg,
		db:        db,
		taskRepo:  taskRepo,
		recurring: recurring,
		sweep:     service.NewSweepService(taskRepo, recurring, cfg.SweepRate),
		loc:       loc,
	}, nil
}

func (a *app) Close() {
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}

// now resolves --now. A bare date means local midnight in the default zone.
func (a *app) now() (time.Time, error) {
	if nowFlag == "" {
		return time.Now(), nil
	}
	if t, err := time.Parse(time.RFC3339, nowFlag); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", nowFlag, a.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --now %q: expected RFC3339 or YYYY-MM-DD", nowFlag)
	}
	return t, nil
}

func requireUser() error {
	if userID == 0 {
		return fmt.Errorf("--user is required")
	}
	return nil
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid task id %q", raw)
	}
	return uint(id), nil
}
