package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"task-planner/internal/bot"
	"task-planner/internal/config"
	"task-planner/internal/recurrence"
	"task-planner/internal/repository"
	"task-planner/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.TelegramToken == "" {
		log.Fatal("config: TELEGRAM_TOKEN is required")
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	userRepo := repository.NewUserRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	recurringSvc := service.NewRecurringService(taskRepo, cfg.Window(), cfg.DefaultTimezone)
	projectSvc := service.NewProjectService(projectRepo)
	taskSvc := service.NewTaskService(taskRepo, projectRepo, recurringSvc)
	reminderSvc := service.NewReminderService(taskRepo, projectRepo, recurringSvc, cfg.DefaultTimezone)
	sweepSvc := service.NewSweepService(taskRepo, recurringSvc, cfg.SweepRate)

	telegramBot, err := bot.New(cfg.TelegramToken, userRepo, projectSvc, taskSvc, reminderSvc, &cfg)
	if err != nil {
		log.Fatalf("bot: %v", err)
	}

	loc, err := recurrence.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		log.Fatalf("timezone: %v", err)
	}
	scheduler := service.NewSchedulerService(loc)
	if cfg.ReportInterval > 0 {
		if _, err := scheduler.ScheduleInterval(cfg.ReportInterval, func() {
			jobCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			if err := telegramBot.SendDailyReports(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("report: %v", err)
			}
		}); err != nil {
			log.Fatalf("schedule reports: %v", err)
		}
	}
	sweepID, err := scheduler.ScheduleDaily(cfg.SweepTime, func() {
		jobCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		defer cancel()
		if _, err := sweepSvc.Run(jobCtx, time.Now()); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("sweep: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("schedule sweep: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()
	log.Printf("[info] next sweep at %s", scheduler.Next(sweepID).Format(time.RFC3339))

	// Catch up on anything missed while the bot was down.
	go func() {
		if _, err := sweepSvc.Run(ctx, time.Now()); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("startup sweep: %v", err)
		}
	}()

	log.Println("Task planner bot started.")
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("bot stopped with error: %v", err)
	}
	log.Println("Shutdown complete.")
}
