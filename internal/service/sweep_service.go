package service

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/time/rate"

	"task-planner/internal/repository"
)

// SweepReport summarizes one pass over all templates.
type SweepReport struct {
	Templates int
	Created   int
	Failed    int
}

// SweepService tops up every active template's window. It is the periodic
// counterpart of on-demand generation and relies on the same dedup.
type SweepService struct {
	taskRepo  *repository.TaskRepository
	recurring *RecurringService
	limiter   *rate.Limiter
}

// NewSweepService paces generation at perSecond templates; zero or less disables pacing.
func NewSweepService(taskRepo *repository.TaskRepository, recurring *RecurringService, perSecond float64) *SweepService {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &SweepService{
		taskRepo:  taskRepo,
		recurring: recurring,
		limiter:   rate.NewLimiter(limit, 1),
	}
}

// Run generates for every template. A failing template is logged and
// counted; only cancellation stops the pass early.
func (s *SweepService) Run(ctx context.Context, now time.Time) (SweepReport, error) {
	templates, err := s.taskRepo.ListTemplates(ctx)
	if err != nil {
		return SweepReport{}, err
	}

	report := SweepReport{Templates: len(templates)}
	for _, tpl := range templates {
		if err := s.limiter.Wait(ctx); err != nil {
			return report, err
		}
		res, err := s.recurring.GenerateUpcoming(ctx, tpl.UserID, tpl.ID, now)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return report, err
			}
			report.Failed++
			log.Printf("sweep template %d: %v", tpl.ID, err)
			continue
		}
		report.Created += len(res.Created)
	}

	log.Printf("[info] sweep done templates=%d created=%d failed=%d", report.Templates, report.Created, report.Failed)
	return report, nil
}
