package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/gorm"

	"task-planner/internal/config"
	"task-planner/internal/model"
	"task-planner/internal/recurrence"
	"task-planner/internal/repository"
	"task-planner/internal/service"
)

const (
	cbCompletePrefix = "complete:"
	cbDeletePrefix   = "delete:"
	cbGeneratePrefix = "generate:"
)

type confirmationAction int

const (
	actionComplete confirmationAction = iota
	actionDelete
)

type confirmationRequest struct {
	taskID uint
	action confirmationAction
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api           *tgbotapi.BotAPI
	userRepo      *repository.UserRepository
	projectSvc    *service.ProjectService
	taskSvc       *service.TaskService
	reminderSvc   *service.ReminderService
	config        *config.Config
	conversations map[int64]*conversationState
	confirmations map[int64]confirmationRequest
	mu            sync.Mutex
}

func New(token string, userRepo *repository.UserRepository, projectSvc *service.ProjectService, taskSvc *service.TaskService, reminderSvc *service.ReminderService, cfg *config.Config) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("[info] bot authorized on account %s", api.Self.UserName)

	return &Bot{
		api:           api,
		userRepo:      userRepo,
		projectSvc:    projectSvc,
		taskSvc:       taskSvc,
		reminderSvc:   reminderSvc,
		config:        cfg,
		conversations: make(map[int64]*conversationState),
		confirmations: make(map[int64]confirmationRequest),
	}, nil
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	log.Println("[info] start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				log.Printf("handle callback: %v", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				log.Printf("handle message: %v", err)
			}
		}
	}

	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) {
		b.clearConversation(msg.From.ID)
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Диалог отменён. Я здесь, чтобы начать заново.")
	}

	if !msg.IsCommand() {
		if handled, err := b.handleMenuAlias(ctx, msg); handled {
			return err
		}
	}

	if msg.IsCommand() {
		log.Printf("[info] command from %d: /%s %s", msg.From.ID, msg.Command(), msg.CommandArguments())
		return b.handleCommand(ctx, msg)
	}

	if pending, ok := b.getConfirmation(msg.From.ID); ok {
		return b.handleConfirmationResponse(ctx, msg, pending)
	}

	if b.hasConversation(msg.From.ID) {
		log.Printf("[info] conversation step %d from %d", b.getConversation(msg.From.ID).stage, msg.From.ID)
		return b.handleConversation(ctx, msg)
	}

	return b.sendText(msg.Chat.ID, "Я пока не понял сообщение. Набери /newtask, чтобы добавить задачу, или /help для списка команд.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "report":
		return b.handleReport(ctx, msg)
	case "newtask":
		return b.startNewTaskConversation(ctx, msg)
	case "tasks":
		return b.handleListTasks(ctx, msg)
	case "complete":
		return b.handleComplete(ctx, msg)
	case "delete":
		return b.handleDelete(ctx, msg)
	case "generate":
		return b.handleGenerate(ctx, msg)
	case "move":
		return b.handleMove(ctx, msg)
	case "repeat":
		return b.handleRepeat(ctx, msg)
	case "pause":
		return b.handlePause(ctx, msg, true)
	case "resume":
		return b.handlePause(ctx, msg, false)
	case "timezone":
		return b.handleTimezone(ctx, msg)
	case "projects":
		return b.handleProjects(ctx, msg)
	case "interval":
		return b.handleInterval(msg)
	case "cancel":
		b.clearConversation(msg.From.ID)
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Диалог отменён.")
	default:
		return b.sendText(msg.Chat.ID, "Команда не поддерживается. Загляни в /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}

	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "друг"
	}

	text := fmt.Sprintf(
		"👋 Привет, %s!\n<b>Я планировщик задач: помогу с разовыми и регулярными делами.</b>\n\n"+
			"• /newtask — добавить задачу\n"+
			"• /tasks — текущие задачи\n"+
			"• /help — все команды",
		escape(name),
	)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "ℹ️ <b>Подсказки</b>\n" +
		"• /newtask — добавить задачу пошагово, в том числе повторяющуюся\n" +
		"• /tasks — активные задачи и регулярные шаблоны\n" +
		"• /complete &lt;id&gt; — отметить задачу выполненной\n" +
		"• /delete &lt;id&gt; — удалить задачу; у шаблона удалятся будущие повторы\n" +
		"• /generate &lt;id&gt; — досоздать ближайшие повторы шаблона\n" +
		"• /move &lt;id&gt; &lt;проект&gt; — перенести задачу в проект\n" +
		"• /repeat &lt;id&gt; &lt;тип&gt; [день] [интервал] — сменить расписание, например <code>/repeat 4 monthly 15</code>\n" +
		"• /pause &lt;id&gt; и /resume &lt;id&gt; — остановить или возобновить повторы\n" +
		"• /timezone [зона] — часовой пояс, например <code>/timezone Europe/Moscow</code>\n" +
		"• /projects — список проектов\n" +
		"• /interval &lt;часы&gt; — как часто присылать отчёт\n" +
		"• /report — прислать отчёт сейчас\n" +
		"• /cancel — отменить текущий ввод"
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleReport(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	text, err := b.reminderSvc.DailySummary(ctx, *user, time.Now())
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Не удалось сформировать отчёт: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleListTasks(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	log.Printf("[info] list tasks for user=%d", user.ID)
	return b.sendTaskList(ctx, msg.Chat.ID, user)
}

func (b *Bot) handleComplete(ctx context.Context, msg *tgbotapi.Message) error {
	taskID, ok, err := b.commandTaskID(msg, "/complete 12")
	if !ok {
		return err
	}

	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	task, err := b.taskSvc.CompleteTask(ctx, user, taskID, time.Now())
	if err != nil {
		return b.sendText(msg.Chat.ID, describeError(err))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("✅ Задача «%s» выполнена.", escape(normalizeTitle(task.Title))))
}

func (b *Bot) handleDelete(ctx context.Context, msg *tgbotapi.Message) error {
	taskID, ok, err := b.commandTaskID(msg, "/delete 12")
	if !ok {
		return err
	}

	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	text, err := b.deleteTask(ctx, user, taskID)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Не удалось удалить задачу. %s", describeError(err)))
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleGenerate(ctx context.Context, msg *tgbotapi.Message) error {
	taskID, ok, err := b.commandTaskID(msg, "/generate 12")
	if !ok {
		return err
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	text, err := b.generate(ctx, user, taskID)
	if err != nil {
		return b.sendText(msg.Chat.ID, describeError(err))
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleMove(ctx context.Context, msg *tgbotapi.Message) error {
	fields := strings.Fields(msg.CommandArguments())
	if len(fields) < 2 {
		return b.sendText(msg.Chat.ID, "Укажи ID и проект: /move 12 Работа")
	}
	taskID, err := parseTaskID(fields[0], "")
	if err != nil {
		return b.sendText(msg.Chat.ID, "ID задачи должен быть числом.")
	}
	project := strings.Join(fields[1:], " ")
	if isSkipInput(project) || strings.EqualFold(project, noProject) {
		project = ""
	}

	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	task, res, err := b.taskSvc.UpdateTask(ctx, user, taskID, service.TaskUpdate{Project: &project}, time.Now())
	if err != nil {
		return b.sendText(msg.Chat.ID, describeError(err))
	}
	target := noProject
	if project != "" {
		target = project
	}
	text := fmt.Sprintf("📂 «%s» теперь в проекте «%s».", escape(normalizeTitle(task.Title)), escape(target))
	if task.IsTemplate() {
		text += fmt.Sprintf("\nПовторы: %s.", formatSync(res))
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleRepeat(ctx context.Context, msg *tgbotapi.Message) error {
	fields := strings.Fields(msg.CommandArguments())
	if len(fields) < 2 {
		return b.sendText(msg.Chat.ID, "Пример: /repeat 12 weekly пн, /repeat 12 monthly 15 2 или /repeat 12 none")
	}
	taskID, err := parseTaskID(fields[0], "")
	if err != nil {
		return b.sendText(msg.Chat.ID, "ID задачи должен быть числом.")
	}
	repeat, err := parseCadence(fields[1:])
	if err != nil {
		return b.sendText(msg.Chat.ID, escape(err.Error()))
	}

	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	task, res, err := b.taskSvc.UpdateTask(ctx, user, taskID, service.TaskUpdate{Recurrence: &repeat}, time.Now())
	if err != nil {
		return b.sendText(msg.Chat.ID, describeError(err))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🔄 «%s»: %s.\nПовторы: %s.",
		escape(normalizeTitle(task.Title)), service.DescribeRule(task.Rule()), formatSync(res)))
}

func (b *Bot) handlePause(ctx context.Context, msg *tgbotapi.Message, paused bool) error {
	example := "/resume 12"
	if paused {
		example = "/pause 12"
	}
	taskID, ok, err := b.commandTaskID(msg, example)
	if !ok {
		return err
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	task, err := b.taskSvc.GetTask(ctx, user, taskID)
	if err != nil {
		return b.sendText(msg.Chat.ID, describeError(err))
	}
	if !task.IsTemplate() {
		return b.sendText(msg.Chat.ID, describeError(service.ErrNotTemplate))
	}

	task, res, err := b.taskSvc.UpdateTask(ctx, user, taskID, service.TaskUpdate{Paused: &paused}, time.Now())
	if err != nil {
		return b.sendText(msg.Chat.ID, describeError(err))
	}
	if paused {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("⏸ Повторы «%s» на паузе. Уже созданные задачи остались.", escape(normalizeTitle(task.Title))))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("▶️ Повторы «%s» возобновлены, создано: %d.", escape(normalizeTitle(task.Title)), res.CreatedCount))
}

func (b *Bot) handleTimezone(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	zone := strings.TrimSpace(msg.CommandArguments())
	if zone == "" {
		current := recurrence.PickZone(user.Timezone, b.defaultZone())
		return b.sendText(msg.Chat.ID, fmt.Sprintf("🌍 Текущий часовой пояс: <code>%s</code>. Сменить: /timezone Europe/Moscow", escape(current)))
	}
	if _, err := recurrence.LoadLocation(zone); err != nil {
		return b.sendText(msg.Chat.ID, describeError(err))
	}
	if err := b.userRepo.SetTimezone(ctx, user, zone); err != nil {
		return b.sendText(msg.Chat.ID, describeError(err))
	}
	log.Printf("[info] timezone set user=%d zone=%s", user.ID, zone)

	res, err := b.taskSvc.OwnerZoneChanged(ctx, user, time.Now())
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("🌍 Часовой пояс обновлён: <code>%s</code>, но повторы пересчитать не удалось. %s", escape(zone), describeError(err)))
	}
	text := fmt.Sprintf("🌍 Часовой пояс обновлён: <code>%s</code>.", escape(zone))
	if res.RemovedCount > 0 || res.CreatedCount > 0 {
		text += "\n🔁 " + formatSync(res)
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleProjects(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	projects, err := b.projectSvc.List(ctx, user)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Не удалось получить проекты: %s", escape(err.Error())))
	}
	if len(projects) == 0 {
		return b.sendText(msg.Chat.ID, "Проектов пока нет. Добавь их при создании задачи.")
	}
	var builder strings.Builder
	builder.WriteString("📂 <b>Проекты</b>\n")
	for _, p := range projects {
		builder.WriteString(fmt.Sprintf("• %s\n", projectLabel(p.Name)))
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

func (b *Bot) handleInterval(msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		current := "5 часов"
		b.mu.Lock()
		if b.config != nil && b.config.ReportInterval > 0 {
			current = fmt.Sprintf("%d часов", int(b.config.ReportInterval.Hours()))
		}
		b.mu.Unlock()
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Текущий интервал отчётов: %s. Укажи число часов, например: /interval 4", current))
	}
	hours, err := strconv.Atoi(args)
	if err != nil || hours <= 0 {
		return b.sendText(msg.Chat.ID, "Интервал должен быть положительным числом часов, например /interval 6")
	}
	b.mu.Lock()
	b.config.ReportInterval = time.Duration(hours) * time.Hour
	b.mu.Unlock()
	return b.sendText(msg.Chat.ID, fmt.Sprintf("Интервал уведомлений обновлён: каждые %d часов.", hours))
}

func (b *Bot) handleConfirmationResponse(ctx context.Context, msg *tgbotapi.Message, req confirmationRequest) error {
	text := strings.TrimSpace(msg.Text)
	switch {
	case isConfirmInput(text):
		b.clearConfirmation(msg.From.ID)
		if req.action == actionDelete {
			return b.deleteTaskAndRefresh(ctx, msg.Chat.ID, msg.From, req.taskID)
		}
		return b.completeTaskAndRefresh(ctx, msg.Chat.ID, msg.From, req.taskID)
	case isCancelInput(text):
		b.clearConfirmation(msg.From.ID)
		return b.sendMenuPlaceholder(msg.Chat.ID)
	default:
		prompt := "Подтверди или отмени выполнение задачи."
		if req.action == actionDelete {
			prompt = "Подтверди или отмени удаление задачи."
		}
		return b.sendWithReplyMarkup(msg.Chat.ID, prompt, confirmKeyboard())
	}
}

// SendDailyReports sends a summary to every known user.
func (b *Bot) SendDailyReports(ctx context.Context) error {
	users, err := b.userRepo.ListAll(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, user := range users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		text, err := b.reminderSvc.DailySummary(ctx, user, now)
		if err != nil {
			log.Printf("build summary for user %d: %v", user.TelegramID, err)
			continue
		}
		if err := b.sendText(user.TelegramID, text); err != nil {
			log.Printf("send summary to %d: %v", user.TelegramID, err)
		}
	}
	return nil
}

func (b *Bot) sendTaskList(ctx context.Context, chatID int64, user *model.User) error {
	tasks, err := b.taskSvc.ListActive(ctx, user)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Не удалось получить задачи: %s", escape(err.Error())))
	}

	names, _ := b.projectSvc.Names(ctx, user)
	now := time.Now()
	loc := b.locationFor(user)

	type projectGroup struct {
		Name  string
		Tasks []model.Task
	}
	groups := make(map[string]*projectGroup)
	order := make([]string, 0, len(tasks))

	for _, task := range tasks {
		if task.IsDeferred(now) {
			continue
		}
		key, display := normalizedProject(task.ProjectID, names)
		group, ok := groups[key]
		if !ok {
			group = &projectGroup{Name: display}
			groups[key] = group
			order = append(order, key)
		}
		group.Tasks = append(group.Tasks, task)
	}

	if len(groups) == 0 {
		return b.sendText(chatID, "У тебя нет активных задач. Добавь новую через /newtask.")
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i] == noProjectKey {
			return false
		}
		if order[j] == noProjectKey {
			return true
		}
		return strings.Compare(groups[order[i]].Name, groups[order[j]].Name) < 0
	})

	var builder strings.Builder
	builder.WriteString("📋 <b>Текущие задачи</b>\n")
	builder.WriteString("Кнопки ниже отмечают задачу выполненной, досоздают повторы или удаляют шаблон.\n\n")

	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, key := range order {
		section := groups[key]
		sortTasks(section.Tasks)

		builder.WriteString(fmt.Sprintf("<b>%s</b>\n", section.Name))
		for _, task := range section.Tasks {
			var row []tgbotapi.InlineKeyboardButton
			if task.IsTemplate() {
				next, err := b.taskSvc.Upcoming(ctx, &task, now, previewOccurrences)
				if err != nil {
					log.Printf("preview template %d: %v", task.ID, err)
				}
				builder.WriteString(formatTemplate(task, next, loc))
				row = append(row, tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("➕ #%d · %s", task.ID, shortTitle(task.Title, 18)), fmt.Sprintf("%s%d", cbGeneratePrefix, task.ID)))
				row = append(row, tgbotapi.NewInlineKeyboardButtonData("\U0001F5D1 Удалить", fmt.Sprintf("%s%d", cbDeletePrefix, task.ID)))
			} else {
				builder.WriteString(formatTask(task, now, loc))
				row = append(row, tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("✅ #%d · %s", task.ID, shortTitle(task.Title, 24)), fmt.Sprintf("%s%d", cbCompletePrefix, task.ID)))
			}
			buttons = append(buttons, row)
		}
		builder.WriteByte('\n')
	}

	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(builder.String()))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err = b.api.Send(msg)
	return err
}

// sortTasks puts dated tasks first, then plain tasks before templates.
func sortTasks(tasks []model.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, c := tasks[i], tasks[j]
		if a.IsTemplate() != c.IsTemplate() {
			return !a.IsTemplate()
		}
		if a.DueDate != nil && c.DueDate != nil {
			if !a.DueDate.Equal(*c.DueDate) {
				return a.DueDate.Before(*c.DueDate)
			}
		} else if a.DueDate != nil {
			return true
		} else if c.DueDate != nil {
			return false
		}
		return a.ID < c.ID
	})
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Printf("callback ack: %v", err)
	}

	data := cb.Data
	switch {
	case strings.HasPrefix(data, cbCompletePrefix):
		log.Printf("[info] callback complete request user=%d task=%s", cb.From.ID, strings.TrimPrefix(data, cbCompletePrefix))
		taskID, err := parseTaskID(data, cbCompletePrefix)
		if err != nil {
			return nil
		}
		return b.askConfirmation(ctx, cb.Message.Chat.ID, cb.From, taskID, actionComplete)
	case strings.HasPrefix(data, cbDeletePrefix):
		log.Printf("[info] callback delete request user=%d task=%s", cb.From.ID, strings.TrimPrefix(data, cbDeletePrefix))
		taskID, err := parseTaskID(data, cbDeletePrefix)
		if err != nil {
			return nil
		}
		return b.askConfirmation(ctx, cb.Message.Chat.ID, cb.From, taskID, actionDelete)
	case strings.HasPrefix(data, cbGeneratePrefix):
		log.Printf("[info] callback generate user=%d task=%s", cb.From.ID, strings.TrimPrefix(data, cbGeneratePrefix))
		taskID, err := parseTaskID(data, cbGeneratePrefix)
		if err != nil {
			return nil
		}
		user, err := b.ensureUser(ctx, cb.From)
		if err != nil {
			return err
		}
		text, err := b.generate(ctx, user, taskID)
		if err != nil {
			return b.sendText(cb.Message.Chat.ID, describeError(err))
		}
		return b.sendText(cb.Message.Chat.ID, text)
	default:
		return nil
	}
}

func (b *Bot) askConfirmation(ctx context.Context, chatID int64, from *tgbotapi.User, taskID uint, action confirmationAction) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	task, err := b.taskSvc.GetTask(ctx, user, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return b.sendText(chatID, "Задача не найдена.")
		}
		return err
	}

	var text string
	switch {
	case action == actionDelete && task.IsTemplate():
		text = fmt.Sprintf("Удалить шаблон «%s» (#%d)? Будущие повторы удалятся, прошлые и начатые останутся.", escape(normalizeTitle(task.Title)), task.ID)
	case action == actionDelete:
		text = fmt.Sprintf("Удалить задачу «%s» (#%d)?", escape(normalizeTitle(task.Title)), task.ID)
	case task.Status.IsTerminal():
		return b.sendText(chatID, "Задача уже выполнена.")
	default:
		text = fmt.Sprintf("Отметить задачу «%s» (#%d) как выполненную?", escape(normalizeTitle(task.Title)), task.ID)
	}

	b.setConfirmation(from.ID, confirmationRequest{taskID: task.ID, action: action})
	return b.sendWithReplyMarkup(chatID, text, confirmKeyboard())
}

func (b *Bot) completeTaskAndRefresh(ctx context.Context, chatID int64, from *tgbotapi.User, taskID uint) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	task, err := b.taskSvc.CompleteTask(ctx, user, taskID, time.Now())
	if err != nil {
		return b.sendTextWithRemove(chatID, describeError(err))
	}

	log.Printf("[info] task completed id=%d user=%d instance=%t", task.ID, user.ID, task.IsInstance())
	if err := b.sendTextWithRemove(chatID, fmt.Sprintf("✅ Задача «%s» выполнена.", escape(normalizeTitle(task.Title)))); err != nil {
		return err
	}
	return b.sendTaskList(ctx, chatID, user)
}

func (b *Bot) deleteTaskAndRefresh(ctx context.Context, chatID int64, from *tgbotapi.User, taskID uint) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	text, err := b.deleteTask(ctx, user, taskID)
	if err != nil {
		return b.sendTextWithRemove(chatID, describeError(err))
	}
	if err := b.sendTextWithRemove(chatID, text); err != nil {
		return err
	}
	return b.sendTaskList(ctx, chatID, user)
}

func (b *Bot) deleteTask(ctx context.Context, user *model.User, taskID uint) (string, error) {
	task, err := b.taskSvc.GetTask(ctx, user, taskID)
	if err != nil {
		return "", err
	}
	res, err := b.taskSvc.DeleteTask(ctx, user, taskID, time.Now())
	if err != nil {
		return "", err
	}

	log.Printf("[info] task deleted id=%d user=%d", task.ID, user.ID)
	text := fmt.Sprintf("\U0001F5D1 Задача «%s» удалена.", escape(normalizeTitle(task.Title)))
	if task.IsTemplate() {
		text += fmt.Sprintf("\nУдалено будущих повторов: %d, осталось в списке: %d.", res.DeletedCount, res.OrphanedCount)
	}
	return text, nil
}

func (b *Bot) generate(ctx context.Context, user *model.User, taskID uint) (string, error) {
	res, err := b.taskSvc.GenerateUpcoming(ctx, user, taskID, time.Now())
	if err != nil {
		return "", err
	}
	if len(res.Created) == 0 {
		return "Все ближайшие повторы уже созданы.", nil
	}
	loc := b.locationFor(user)
	dates := make([]string, 0, len(res.Created))
	for _, inst := range res.Created {
		if inst.DueDate != nil {
			dates = append(dates, inst.DueDate.In(loc).Format(dateLayout))
		}
	}
	return fmt.Sprintf("➕ Создано повторов: %d (%s).", len(res.Created), strings.Join(dates, ", ")), nil
}

// commandTaskID parses the single id argument. When ok is false the reply
// has already been sent and err is its result.
func (b *Bot) commandTaskID(msg *tgbotapi.Message, example string) (uint, bool, error) {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		return 0, false, b.sendText(msg.Chat.ID, "Укажи ID задачи: "+example)
	}
	taskID, err := parseTaskID(args, "")
	if err != nil {
		return 0, false, b.sendText(msg.Chat.ID, "ID задачи должен быть числом.")
	}
	return taskID, true, nil
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	text := strings.TrimSpace(strings.ToLower(msg.Text))
	switch text {
	case strings.ToLower(menuLabelNewTask):
		return true, b.startNewTaskConversation(ctx, msg)
	case strings.ToLower(menuLabelTasks):
		return true, b.handleListTasks(ctx, msg)
	case strings.ToLower(menuLabelProjects):
		return true, b.handleProjects(ctx, msg)
	case strings.ToLower(menuLabelHelp):
		return true, b.handleHelp(msg)
	default:
		return false, nil
	}
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	return b.userRepo.UpsertFromTelegram(ctx, from.ID, from.FirstName, from.LastName, from.UserName)
}

func (b *Bot) defaultZone() string {
	if b.config == nil {
		return ""
	}
	return b.config.DefaultTimezone
}

// locationFor renders dates in the user's zone, falling back to UTC for display only.
func (b *Bot) locationFor(user *model.User) *time.Location {
	loc, err := recurrence.LoadLocation(recurrence.PickZone(user.Timezone, b.defaultZone()))
	if err != nil {
		return time.UTC
	}
	return loc
}

func (b *Bot) userLocation(ctx context.Context, from *tgbotapi.User) *time.Location {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return time.UTC
	}
	return b.locationFor(user)
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendTextWithRemove(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	if _, err := b.api.Send(msg); err != nil {
		return err
	}
	return b.sendMenuPlaceholder(chatID)
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendMenuPlaceholder(chatID int64) error {
	msg := tgbotapi.NewMessage(chatID, "🔹 Главное меню")
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) getConfirmation(userID int64) (confirmationRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.confirmations[userID]
	return req, ok
}

func (b *Bot) setConfirmation(userID int64, req confirmationRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.confirmations[userID] = req
}

func (b *Bot) clearConfirmation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.confirmations, userID)
}
