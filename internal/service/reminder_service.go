package service

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"task-planner/internal/model"
	"task-planner/internal/recurrence"
	"task-planner/internal/repository"
)

const upcomingDays = 7

// ReminderService builds human-readable summaries for daily notifications.
type ReminderService struct {
	taskRepo    *repository.TaskRepository
	projectRepo *repository.ProjectRepository
	recurring   *RecurringService
	defaultZone string
}

func NewReminderService(taskRepo *repository.TaskRepository, projectRepo *repository.ProjectRepository, recurring *RecurringService, defaultZone string) *ReminderService {
	return &ReminderService{taskRepo: taskRepo, projectRepo: projectRepo, recurring: recurring, defaultZone: defaultZone}
}

// Agenda is the bucketed view a summary is rendered from.
type Agenda struct {
	Overdue   []model.Task
	Today     []model.Task
	Upcoming  []model.Task
	Undated   []model.Task
	Templates []model.Task
}

// BuildAgenda buckets open tasks by due date in the user's zone. Deferred
// tasks and anything due after the upcoming window are left out.
func BuildAgenda(tasks []model.Task, now time.Time, loc *time.Location) Agenda {
	y, m, d := now.In(loc).Date()
	startOfToday := time.Date(y, m, d, 0, 0, 0, 0, loc)
	startOfTomorrow := time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	windowEnd := time.Date(y, m, d+1+upcomingDays, 0, 0, 0, 0, loc)

	var agenda Agenda
	for _, task := range tasks {
		if task.IsTemplate() {
			agenda.Templates = append(agenda.Templates, task)
			continue
		}
		if task.Status.IsTerminal() || task.IsDeferred(now) {
			continue
		}
		switch {
		case task.DueDate == nil:
			agenda.Undated = append(agenda.Undated, task)
		case task.DueDate.Before(startOfToday):
			agenda.Overdue = append(agenda.Overdue, task)
		case task.DueDate.Before(startOfTomorrow):
			agenda.Today = append(agenda.Today, task)
		case task.DueDate.Before(windowEnd):
			agenda.Upcoming = append(agenda.Upcoming, task)
		}
	}

	for _, bucket := range [][]model.Task{agenda.Overdue, agenda.Today, agenda.Upcoming} {
		sort.SliceStable(bucket, func(i, j int) bool {
			return bucket[i].DueDate.Before(*bucket[j].DueDate)
		})
	}
	sort.SliceStable(agenda.Undated, func(i, j int) bool {
		if agenda.Undated[i].Priority != agenda.Undated[j].Priority {
			return agenda.Undated[i].Priority > agenda.Undated[j].Priority
		}
		return agenda.Undated[i].CreatedAt.After(agenda.Undated[j].CreatedAt)
	})
	return agenda
}

func (s *ReminderService) DailySummary(ctx context.Context, user model.User, now time.Time) (string, error) {
	loc, err := recurrence.LoadLocation(recurrence.PickZone(user.Timezone, s.defaultZone))
	if err != nil {
		return "", err
	}

	tasks, err := s.taskRepo.ListOpen(ctx, user.ID)
	if err != nil {
		return "", err
	}

	projects, err := s.projectRepo.ListByUser(ctx, user.ID)
	if err != nil {
		return "", err
	}
	projectNames := make(map[uint]string)
	for _, p := range projects {
		projectNames[p.ID] = p.Name
	}

	agenda := BuildAgenda(tasks, now, loc)
	local := now.In(loc)

	var builder strings.Builder
	builder.WriteString("📋 <b>Ежедневный отчёт</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", local.Format("02.01.2006")))

	writeSection(&builder, "⚠️ <b>Просрочено</b>", agenda.Overdue, projectNames, loc)
	writeSection(&builder, "🔥 <b>Сегодня</b>", agenda.Today, projectNames, loc)
	writeSection(&builder, fmt.Sprintf("⏳ <b>Ближайшие %d дн.</b>", upcomingDays), agenda.Upcoming, projectNames, loc)
	writeSection(&builder, "🟢 <b>Без срока</b>", agenda.Undated, projectNames, loc)

	if len(agenda.Overdue)+len(agenda.Today)+len(agenda.Upcoming)+len(agenda.Undated) == 0 {
		builder.WriteString("— нет открытых задач\n\n")
	}

	builder.WriteString("♻️ <b>Регулярные задачи</b>\n")
	if len(agenda.Templates) == 0 {
		builder.WriteString("— регулярных задач нет\n")
	}
	for i := range agenda.Templates {
		builder.WriteString(s.formatTemplate(ctx, &agenda.Templates[i], now, loc))
	}

	return strings.TrimSpace(builder.String()), nil
}

func writeSection(sb *strings.Builder, title string, tasks []model.Task, projectNames map[uint]string, loc *time.Location) {
	if len(tasks) == 0 {
		return
	}
	sb.WriteString(title + "\n")
	for _, task := range tasks {
		sb.WriteString(formatTask(task, projectNames, loc))
	}
	sb.WriteByte('\n')
}

func formatTask(task model.Task, projectNames map[uint]string, loc *time.Location) string {
	var sb strings.Builder

	title := html.EscapeString(strings.TrimSpace(task.Title))
	sb.WriteString(fmt.Sprintf("• #%d %s", task.ID, title))

	if task.ProjectID != nil {
		if name, ok := projectNames[*task.ProjectID]; ok && strings.TrimSpace(name) != "" {
			sb.WriteString(fmt.Sprintf(" <i>(%s)</i>", html.EscapeString(strings.TrimSpace(name))))
		}
	}
	if task.IsInstance() {
		sb.WriteString(" ♻️")
	}
	if task.DueDate != nil {
		sb.WriteString(fmt.Sprintf("\n   ⏰ %s", task.DueDate.In(loc).Format("2006-01-02")))
	}
	if task.Status != model.StatusNotStarted {
		sb.WriteString(fmt.Sprintf(" · %s", task.Status))
	}
	if task.Description != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(strings.TrimSpace(task.Description))))
	}

	sb.WriteByte('\n')
	return sb.String()
}

func (s *ReminderService) formatTemplate(ctx context.Context, tpl *model.Task, now time.Time, loc *time.Location) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("♻️ #%d %s", tpl.ID, html.EscapeString(strings.TrimSpace(tpl.Title))))
	sb.WriteString(fmt.Sprintf("\n   🔄 %s", DescribeRule(tpl.Rule())))

	switch {
	case tpl.RecurrencePaused:
		sb.WriteString("\n   ⏸ на паузе")
	default:
		next, err := s.recurring.Preview(ctx, tpl, now, 1)
		if err != nil {
			sb.WriteString(fmt.Sprintf("\n   ❗ %s", html.EscapeString(err.Error())))
		} else if len(next) > 0 {
			sb.WriteString(fmt.Sprintf("\n   📆 Ближайшая дата: %s", next[0].In(loc).Format("2006-01-02")))
		} else {
			sb.WriteString("\n   📆 Повторы закончились")
		}
	}

	sb.WriteByte('\n')
	return sb.String()
}

var weekdayNames = [...]string{"вс", "пн", "вт", "ср", "чт", "пт", "сб"}

// DescribeRule renders a cadence in Russian for chat messages.
func DescribeRule(rule recurrence.Rule) string {
	every := ""
	if rule.Interval > 1 {
		every = fmt.Sprintf(" (каждый %d-й раз)", rule.Interval)
	}
	var text string
	switch rule.Type {
	case recurrence.TypeDaily:
		text = "каждый день"
		if rule.Interval > 1 {
			text = fmt.Sprintf("раз в %d дн.", rule.Interval)
			every = ""
		}
	case recurrence.TypeWeekly:
		text = "каждую неделю"
		if rule.WeekDay != nil && *rule.WeekDay >= 0 && *rule.WeekDay < len(weekdayNames) {
			text += ", " + weekdayNames[*rule.WeekDay]
		}
	case recurrence.TypeMonthly:
		text = "каждый месяц"
		if rule.MonthDay != nil {
			text += fmt.Sprintf(", %d числа", *rule.MonthDay)
		}
	case recurrence.TypeYearly:
		text = "каждый год"
		if rule.MonthDay != nil && rule.Month != nil {
			text += fmt.Sprintf(", %02d.%02d", *rule.MonthDay, *rule.Month)
		}
	default:
		return "без повтора"
	}
	text += every
	if rule.EndDate != nil {
		text += " до " + rule.EndDate.Format("2006-01-02")
	}
	return text
}
