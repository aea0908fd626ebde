package bot

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"task-planner/internal/recurrence"
	"task-planner/internal/service"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageTitle
	stageDescription
	stageProject
	stageDueDate
	stageRepeat
	stageRepeatInterval
	stageRepeatDetail
)

type conversationState struct {
	stage  conversationStage
	input  service.TaskInput
	repeat service.RecurrenceInput
}

func (b *Bot) startNewTaskConversation(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}
	log.Printf("[info] start new task conversation user=%d", msg.From.ID)
	b.setConversation(msg.From.ID, &conversationState{stage: stageTitle})
	return b.sendWithReplyMarkup(msg.Chat.ID, "🆕 Создаём новую задачу.\n<b>Шаг 1:</b> как её назвать?", cancelKeyboard())
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	state := b.getConversation(msg.From.ID)
	if state == nil {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	switch state.stage {
	case stageTitle:
		if text == "" {
			return b.sendText(msg.Chat.ID, "Название не может быть пустым.")
		}
		state.input.Title = text
		state.stage = stageDescription
		return b.sendWithReplyMarkup(msg.Chat.ID, "✏️ Добавь короткое описание (или нажми «Пропустить»).", skipKeyboard())
	case stageDescription:
		if !isSkipInput(text) {
			state.input.Description = text
		}
		state.stage = stageProject
		return b.sendWithReplyMarkup(msg.Chat.ID, "🏷 Выбери проект или отправь новый (можно «Пропустить»).", projectKeyboard(b.projectNames(ctx, msg.From)))
	case stageProject:
		if !isSkipInput(text) {
			state.input.Project = text
		}
		state.stage = stageDueDate
		return b.sendWithReplyMarkup(msg.Chat.ID, "⏰ Укажи срок в формате <code>2025-11-30</code> (или «Пропустить»).", skipKeyboard())
	case stageDueDate:
		if !isSkipInput(text) {
			loc := b.userLocation(ctx, msg.From)
			parsed, err := time.ParseInLocation(dateLayout, text, loc)
			if err != nil {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Не могу распознать дату. Используй формат <code>2025-11-30</code> или «Пропустить».", skipKeyboard())
			}
			state.input.DueDate = &parsed
		}
		state.stage = stageRepeat
		return b.sendWithReplyMarkup(msg.Chat.ID, "🔁 Как часто повторять задачу?", repeatKeyboard())
	case stageRepeat:
		typ, ok := parseRepeatType(text)
		if !ok {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Выбери вариант на клавиатуре.", repeatKeyboard())
		}
		if typ == recurrence.TypeNone {
			return b.finishConversation(ctx, msg, state)
		}
		state.repeat = service.RecurrenceInput{Type: typ, Interval: 1}
		state.stage = stageRepeatInterval
		return b.sendWithReplyMarkup(msg.Chat.ID, "🔢 Через сколько периодов повторять? (1 — каждый раз, 2 — через раз; можно «Пропустить»)", skipKeyboard())
	case stageRepeatInterval:
		if !isSkipInput(text) {
			n, err := strconv.Atoi(text)
			if err != nil || n < 1 || n > 365 {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Интервал должен быть числом от 1 до 365.", skipKeyboard())
			}
			state.repeat.Interval = n
		}
		return b.askRepeatDetail(ctx, msg, state)
	case stageRepeatDetail:
		if err := b.applyRepeatDetail(ctx, msg, state, text); err != nil {
			return b.sendWithReplyMarkup(msg.Chat.ID, escape(err.Error()), skipKeyboard())
		}
		return b.finishConversation(ctx, msg, state)
	default:
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Диалог сброшен. Попробуй ещё раз через /newtask.")
	}
}

func (b *Bot) askRepeatDetail(ctx context.Context, msg *tgbotapi.Message, state *conversationState) error {
	switch state.repeat.Type {
	case recurrence.TypeDaily:
		return b.finishConversation(ctx, msg, state)
	case recurrence.TypeWeekly:
		state.stage = stageRepeatDetail
		return b.sendWithReplyMarkup(msg.Chat.ID, "📅 В какой день недели? «Пропустить» — в день срока.", weekdayKeyboard())
	case recurrence.TypeMonthly:
		state.stage = stageRepeatDetail
		return b.sendWithReplyMarkup(msg.Chat.ID, "📆 Какого числа? (1–31). Если числа нет в месяце, возьмём последний день.", skipKeyboard())
	default:
		state.stage = stageRepeatDetail
		return b.sendWithReplyMarkup(msg.Chat.ID, "🎂 Какая дата? Формат <code>ДД.ММ</code>, например <code>29.02</code>.", skipKeyboard())
	}
}

// applyRepeatDetail fills the cadence detail. Skipping takes it from the due
// date, or from today when there is none.
func (b *Bot) applyRepeatDetail(ctx context.Context, msg *tgbotapi.Message, state *conversationState, text string) error {
	ref := time.Now().In(b.userLocation(ctx, msg.From))
	if state.input.DueDate != nil {
		ref = *state.input.DueDate
	}

	switch state.repeat.Type {
	case recurrence.TypeWeekly:
		if isSkipInput(text) {
			return nil
		}
		wd, ok := parseWeekday(text)
		if !ok {
			return fmt.Errorf("не понял день недели, например: пн")
		}
		state.repeat.WeekDay = &wd
	case recurrence.TypeMonthly:
		day := ref.Day()
		if !isSkipInput(text) {
			var ok bool
			if day, ok = parseMonthDay(text); !ok {
				return fmt.Errorf("число должно быть от 1 до 31")
			}
		}
		state.repeat.MonthDay = &day
	case recurrence.TypeYearly:
		day, month := ref.Day(), int(ref.Month())
		if !isSkipInput(text) {
			var ok bool
			if day, month, ok = parseDayMonth(text); !ok {
				return fmt.Errorf("дата должна быть в формате ДД.ММ")
			}
		}
		state.repeat.MonthDay, state.repeat.Month = &day, &month
	}
	return nil
}

func (b *Bot) finishConversation(ctx context.Context, msg *tgbotapi.Message, state *conversationState) error {
	input := state.input
	if state.repeat.Type != "" && state.repeat.Type != recurrence.TypeNone {
		repeat := state.repeat
		input.Recurrence = &repeat
	}
	err := b.finishTaskCreation(ctx, msg.From, input, msg.Chat.ID)
	b.clearConversation(msg.From.ID)
	return err
}

func (b *Bot) finishTaskCreation(ctx context.Context, from *tgbotapi.User, input service.TaskInput, chatID int64) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	task, created, err := b.taskSvc.CreateTask(ctx, user, input, time.Now())
	if err != nil {
		return b.sendTextWithRemove(chatID, fmt.Sprintf("Не удалось сохранить задачу. %s", describeError(err)))
	}

	loc := b.locationFor(user)
	var summary strings.Builder
	summary.WriteString("✅ <b>Задача сохранена</b>\n")
	summary.WriteString(fmt.Sprintf("• <b>ID:</b> %d\n", task.ID))
	summary.WriteString(fmt.Sprintf("• <b>Название:</b> %s\n", escape(normalizeTitle(task.Title))))
	if task.Description != "" {
		summary.WriteString(fmt.Sprintf("• <b>Описание:</b> %s\n", escape(task.Description)))
	}
	if task.DueDate != nil {
		summary.WriteString(fmt.Sprintf("• <b>Срок:</b> %s\n", task.DueDate.In(loc).Format(dateLayout)))
	}
	if task.IsTemplate() {
		summary.WriteString(fmt.Sprintf("• <b>Повтор:</b> %s\n", service.DescribeRule(task.Rule())))
		summary.WriteString(fmt.Sprintf("• <b>Создано повторов:</b> %d\n", len(created)))
	}

	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(summary.String()))
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(msg); err != nil {
		return err
	}
	return b.sendTaskList(ctx, chatID, user)
}

func (b *Bot) projectNames(ctx context.Context, from *tgbotapi.User) []string {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return nil
	}
	projects, err := b.projectSvc.List(ctx, user)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(projects))
	for _, p := range projects {
		names = append(names, p.Name)
	}
	return names
}

func (b *Bot) setConversation(userID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[userID] = state
}

func (b *Bot) getConversation(userID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) hasConversation(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.conversations[userID]
	return ok
}

func (b *Bot) clearConversation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
}
