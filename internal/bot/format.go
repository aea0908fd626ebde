package bot

import (
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/gorm"

	"task-planner/internal/model"
	"task-planner/internal/recurrence"
	"task-planner/internal/service"
)

const (
	btnSkip            = "⏭️ Пропустить"
	btnConfirm         = "✅ Подтвердить"
	btnCancel          = "↩️ Отмена"
	btnCancelDialog    = "⏪ Отменить ввод"
	btnRepeatNone      = "Нет"
	btnRepeatDaily     = "Ежедневно"
	btnRepeatWeekly    = "Еженедельно"
	btnRepeatMonthly   = "Ежемесячно"
	btnRepeatYearly    = "Ежегодно"
	noProject          = "Без проекта"
	noProjectKey       = "__no_project__"
	iconDefault        = "🟢"
	iconDue            = "⏳"
	iconOverdue        = "⚠️"
	iconRecurring      = "♻️"
	iconInstance       = "🔁"
	menuLabelNewTask   = "➕ Новая задача"
	menuLabelTasks     = "📋 Задачи"
	menuLabelProjects  = "📂 Проекты"
	menuLabelHelp      = "ℹ️ Помощь"
	dateLayout         = "2006-01-02"
	previewOccurrences = 3
)

var weekdayInputs = map[string]int{
	"вс": 0, "воскресенье": 0, "sun": 0, "sunday": 0,
	"пн": 1, "понедельник": 1, "mon": 1, "monday": 1,
	"вт": 2, "вторник": 2, "tue": 2, "tuesday": 2,
	"ср": 3, "среда": 3, "wed": 3, "wednesday": 3,
	"чт": 4, "четверг": 4, "thu": 4, "thursday": 4,
	"пт": 5, "пятница": 5, "fri": 5, "friday": 5,
	"сб": 6, "суббота": 6, "sat": 6, "saturday": 6,
}

// parseRepeatType accepts the keyboard labels as well as the plain type names.
func parseRepeatType(text string) (recurrence.Type, bool) {
	value := strings.TrimSpace(strings.ToLower(text))
	switch value {
	case strings.ToLower(btnRepeatNone), "none", "-":
		return recurrence.TypeNone, true
	case strings.ToLower(btnRepeatDaily), "daily", "день":
		return recurrence.TypeDaily, true
	case strings.ToLower(btnRepeatWeekly), "weekly", "неделя":
		return recurrence.TypeWeekly, true
	case strings.ToLower(btnRepeatMonthly), "monthly", "месяц":
		return recurrence.TypeMonthly, true
	case strings.ToLower(btnRepeatYearly), "yearly", "год":
		return recurrence.TypeYearly, true
	}
	return "", false
}

func parseWeekday(text string) (int, bool) {
	value := strings.TrimSpace(strings.ToLower(text))
	if day, ok := weekdayInputs[value]; ok {
		return day, true
	}
	if n, err := strconv.Atoi(value); err == nil && n >= 0 && n <= 6 {
		return n, true
	}
	return 0, false
}

func parseMonthDay(text string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 1 || n > 31 {
		return 0, false
	}
	return n, true
}

// parseDayMonth reads DD.MM for yearly rules.
func parseDayMonth(text string) (day, month int, ok bool) {
	parts := strings.Split(strings.TrimSpace(text), ".")
	if len(parts) != 2 {
		return 0, 0, false
	}
	day, err := strconv.Atoi(parts[0])
	if err != nil || day < 1 || day > 31 {
		return 0, 0, false
	}
	month, err = strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return 0, 0, false
	}
	return day, month, true
}

// parseCadence reads "<type> [detail] [interval]", e.g. "monthly 15 2",
// "weekly пн", "yearly 29.02" or "none".
func parseCadence(args []string) (service.RecurrenceInput, error) {
	if len(args) == 0 {
		return service.RecurrenceInput{}, fmt.Errorf("не указан тип повтора")
	}
	typ, ok := parseRepeatType(args[0])
	if !ok {
		return service.RecurrenceInput{}, fmt.Errorf("неизвестный тип повтора %q", args[0])
	}
	in := service.RecurrenceInput{Type: typ, Interval: 1}
	rest := args[1:]

	switch typ {
	case recurrence.TypeNone:
		return in, nil
	case recurrence.TypeWeekly:
		if len(rest) > 0 {
			if wd, ok := parseWeekday(rest[0]); ok {
				in.WeekDay = &wd
				rest = rest[1:]
			}
		}
	case recurrence.TypeMonthly:
		if len(rest) == 0 {
			return in, fmt.Errorf("укажи число месяца")
		}
		md, ok := parseMonthDay(rest[0])
		if !ok {
			return in, fmt.Errorf("число месяца должно быть от 1 до 31")
		}
		in.MonthDay = &md
		rest = rest[1:]
	case recurrence.TypeYearly:
		if len(rest) == 0 {
			return in, fmt.Errorf("укажи дату в формате ДД.ММ")
		}
		d, m, ok := parseDayMonth(rest[0])
		if !ok {
			return in, fmt.Errorf("дата должна быть в формате ДД.ММ")
		}
		in.MonthDay, in.Month = &d, &m
		rest = rest[1:]
	}

	if len(rest) > 0 {
		n, err := strconv.Atoi(rest[0])
		if err != nil || n < 1 {
			return in, fmt.Errorf("интервал должен быть положительным числом")
		}
		in.Interval = n
	}
	return in, nil
}

// describeError turns service errors into chat text.
func describeError(err error) string {
	var (
		ruleErr *recurrence.InvalidRuleError
		tzErr   *recurrence.TimezoneResolutionError
		modErr  *service.ConcurrentModificationError
	)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return "Задача не найдена."
	case errors.As(err, &ruleErr):
		return fmt.Sprintf("Некорректное правило повтора (%s): %s", escape(ruleErr.Field), escape(ruleErr.Reason))
	case errors.As(err, &tzErr):
		return fmt.Sprintf("Не удалось определить часовой пояс «%s».", escape(tzErr.Name))
	case errors.As(err, &modErr):
		return "Задачу только что изменили. Попробуй ещё раз."
	case errors.Is(err, service.ErrNotTemplate):
		return "Это не повторяющаяся задача."
	case errors.Is(err, service.ErrTemplateCompletion):
		return "Шаблон повтора нельзя выполнить. Отмечай конкретные повторы."
	default:
		return fmt.Sprintf("Ошибка: %s", escape(err.Error()))
	}
}

func parseTaskID(data, prefix string) (uint, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(data, prefix))
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(value), nil
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	clean = normalizeTitle(clean)
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func escape(s string) string {
	return html.EscapeString(s)
}

func normalizeTitle(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	runes := []rune(value)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func normalizedProject(projectID *uint, names map[uint]string) (string, string) {
	if projectID == nil {
		return noProjectKey, projectLabel(noProject)
	}
	if name, ok := names[*projectID]; ok {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			return noProjectKey, projectLabel(noProject)
		}
		return strings.ToLower(trimmed), projectLabel(trimmed)
	}
	return noProjectKey, projectLabel(noProject)
}

func projectLabel(name string) string {
	base := strings.TrimSpace(name)
	var icon string
	switch strings.ToLower(base) {
	case "учеба":
		icon = "🎓"
	case "работа":
		icon = "💼"
	case "дом":
		icon = "🏠"
	case "здоровье":
		icon = "🩺"
	case strings.ToLower(noProject):
		icon = "📁"
	default:
		icon = "🏷️"
	}
	return fmt.Sprintf("%s %s", icon, escape(normalizeTitle(base)))
}

func formatTask(task model.Task, now time.Time, loc *time.Location) string {
	var b strings.Builder
	icon := iconDefault
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	if task.DueDate != nil {
		d := task.DueDate.In(loc)
		if d.Before(today) {
			icon = iconOverdue
		} else if d.Sub(today) <= 48*time.Hour {
			icon = iconDue
		}
	}
	if task.IsInstance() {
		icon += iconInstance
	}
	b.WriteString(fmt.Sprintf("%s <b>#%d</b> %s\n", icon, task.ID, escape(normalizeTitle(task.Title))))
	if task.DueDate != nil {
		d := task.DueDate.In(loc)
		if d.Before(today) {
			b.WriteString(fmt.Sprintf("   ⏰ Срок: %s, <b>просрочено</b>\n", d.Format(dateLayout)))
		} else {
			daysLeft := int(d.Sub(today).Hours() / 24)
			b.WriteString(fmt.Sprintf("   ⏰ Срок: %s · осталось ≈%d дн.\n", d.Format(dateLayout), daysLeft))
		}
	}
	if task.Status != model.StatusNotStarted {
		b.WriteString(fmt.Sprintf("   📌 Статус: %s\n", task.Status))
	}
	if task.Description != "" {
		b.WriteString(fmt.Sprintf("   📝 %s\n", escape(task.Description)))
	}
	b.WriteByte('\n')
	return b.String()
}

func formatTemplate(task model.Task, next []time.Time, loc *time.Location) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s <b>#%d</b> %s\n", iconRecurring, task.ID, escape(normalizeTitle(task.Title))))
	b.WriteString(fmt.Sprintf("   🔄 %s\n", service.DescribeRule(task.Rule())))
	switch {
	case task.RecurrencePaused:
		b.WriteString("   ⏸ На паузе\n")
	case len(next) == 0:
		b.WriteString("   📆 Повторы закончились\n")
	default:
		dates := make([]string, 0, len(next))
		for _, at := range next {
			dates = append(dates, at.In(loc).Format(dateLayout))
		}
		b.WriteString(fmt.Sprintf("   📆 Дальше: %s\n", strings.Join(dates, ", ")))
	}
	b.WriteByte('\n')
	return b.String()
}

func formatSync(res service.SyncResult) string {
	var parts []string
	if res.Regenerated {
		parts = append(parts, "расписание пересчитано")
	}
	if res.UpdatedCount > 0 {
		parts = append(parts, fmt.Sprintf("обновлено повторов: %d", res.UpdatedCount))
	}
	if res.RemovedCount > 0 {
		parts = append(parts, fmt.Sprintf("удалено: %d", res.RemovedCount))
	}
	if res.CreatedCount > 0 {
		parts = append(parts, fmt.Sprintf("создано: %d", res.CreatedCount))
	}
	if res.DetachedCount > 0 {
		parts = append(parts, fmt.Sprintf("отвязано: %d", res.DetachedCount))
	}
	if len(parts) == 0 {
		return "повторы не затронуты"
	}
	return strings.Join(parts, ", ")
}

func isSkipInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == "-" || value == strings.ToLower(btnSkip) || value == "пропустить" || value == "skip"
}

func isConfirmInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnConfirm) || value == "подтвердить" || value == "да"
}

func isCancelInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancel) || value == "отмена"
}

func isCancelDialogInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancelDialog) || value == "отменить ввод" || value == "отмена"
}

func confirmKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnConfirm),
			tgbotapi.NewKeyboardButton(btnCancel),
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelNewTask),
			tgbotapi.NewKeyboardButton(menuLabelTasks),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelProjects),
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func skipKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSkip),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func repeatKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnRepeatNone),
			tgbotapi.NewKeyboardButton(btnRepeatDaily),
			tgbotapi.NewKeyboardButton(btnRepeatWeekly),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnRepeatMonthly),
			tgbotapi.NewKeyboardButton(btnRepeatYearly),
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func weekdayKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("пн"),
			tgbotapi.NewKeyboardButton("вт"),
			tgbotapi.NewKeyboardButton("ср"),
			tgbotapi.NewKeyboardButton("чт"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("пт"),
			tgbotapi.NewKeyboardButton("сб"),
			tgbotapi.NewKeyboardButton("вс"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSkip),
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func projectKeyboard(existing []string) tgbotapi.ReplyKeyboardMarkup {
	names := existing
	if len(names) == 0 {
		names = []string{"Работа", "Дом", "Учеба", "Здоровье"}
	}
	var rows [][]tgbotapi.KeyboardButton
	var row []tgbotapi.KeyboardButton
	for _, name := range names {
		row = append(row, tgbotapi.NewKeyboardButton(name))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton(btnSkip),
		tgbotapi.NewKeyboardButton(btnCancelDialog),
	))
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}
