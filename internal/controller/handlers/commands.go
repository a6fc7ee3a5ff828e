package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/Freeeeeet/tutor_bot/internal/controller/formatting"
	"github.com/Freeeeeet/tutor_bot/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

const (
	mySessionsLimit    = 10
	notificationsLimit = 10
)

// HandleStart обрабатывает команду /start
func (h *Handlers) HandleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	from := update.Message.From
	user, err := h.userService.RegisterUser(ctx, from.ID, from.Username, from.FirstName, from.LastName)
	if err != nil {
		h.logger.Error("Failed to register user", zap.Int64("telegram_id", from.ID), zap.Error(err))
		h.sendMessage(ctx, b, update.Message.Chat.ID, "❌ Произошла ошибка при регистрации. Попробуйте позже.", nil)
		return
	}

	welcomeText := fmt.Sprintf(
		"👋 Привет, %s!\n\n"+
			"Это бот для записи на занятия с туторами.\n\n"+
			"Доступные команды:\n"+
			"/public - Открытые групповые занятия\n"+
			"/slots &lt;id тутора&gt; - Свободные окна тутора\n"+
			"/mysessions - Мои занятия\n"+
			"/notifications - Уведомления\n"+
			"/becometutor - Стать тутором\n"+
			"/help - Справка",
		user.FirstName,
	)

	h.sendMessage(ctx, b, update.Message.Chat.ID, welcomeText, nil)
}

// HandleHelp обрабатывает команду /help
func (h *Handlers) HandleHelp(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	helpText := "📚 Справка по командам:\n\n" +
		"Для студентов:\n" +
		"/start - Начать работу с ботом\n" +
		"/public [курс] - Открытые групповые занятия, можно указать код курса\n" +
		"/slots &lt;id тутора&gt; - Свободные окна тутора и запрос занятия\n" +
		"/mysessions - Мои занятия и запросы\n" +
		"/session &lt;id&gt; - Подробности занятия\n" +
		"/notifications - Последние уведомления\n" +
		"/feedback - Занятия, ожидающие отзыва\n\n" +
		"Для туторов:\n" +
		"/becometutor - Создать или обновить профиль тутора\n" +
		"/newslot - Опубликовать свободное окно\n" +
		"/attendance &lt;id занятия&gt; - Состав и посещаемость\n\n" +
		"/cancel - Прервать текущий диалог\n" +
		"/help - Показать эту справку\n\n" +
		"Подтвердить, отклонить, предложить другое время, записаться или выйти можно кнопками под карточкой занятия."

	h.sendMessage(ctx, b, update.Message.Chat.ID, helpText, nil)
}

// HandleSlots обрабатывает команду /slots <tutor_id>
func (h *Handlers) HandleSlots(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID

	user, err := h.currentUser(ctx, update.Message.From.ID)
	if err != nil {
		h.sendMessage(ctx, b, chatID, ErrorMessage(err), nil)
		return
	}

	args := commandArgs(update.Message.Text)
	if len(args) != 1 {
		h.sendMessage(ctx, b, chatID, "Использование: /slots &lt;id тутора&gt;", nil)
		return
	}
	tutorID, err := parseSessionID(args[0])
	if err != nil {
		h.sendMessage(ctx, b, chatID, ErrorMessage(err), nil)
		return
	}

	slots, err := h.availabilityService.ListOpenSlots(ctx, tutorID)
	if err != nil {
		h.logger.Error("Failed to list slots", zap.Int64("tutor_id", tutorID), zap.Error(err))
		h.sendMessage(ctx, b, chatID, ErrorMessage(err), nil)
		return
	}

	if len(slots) == 0 {
		h.sendMessage(ctx, b, chatID, "📭 У тутора нет свободных окон.", nil)
		return
	}

	lines := make([]string, 0, len(slots)+1)
	lines = append(lines, fmt.Sprintf("🗓 <b>%d %s</b>\n", len(slots), formatting.PluralizeSlots(len(slots))))
	for i, slot := range slots {
		lines = append(lines, formatting.FormatSlot(slot, i+1))
	}

	h.sendMessage(ctx, b, chatID, strings.Join(lines, "\n"), slotsKeyboard(slots, user.ID))
}

// HandleMySessions обрабатывает команду /mysessions
func (h *Handlers) HandleMySessions(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID

	user, err := h.currentUser(ctx, update.Message.From.ID)
	if err != nil {
		h.sendMessage(ctx, b, chatID, ErrorMessage(err), nil)
		return
	}

	sessions, err := h.queryService.ListSessionsForUser(ctx, user.ID, service.RoleHintNone)
	if err != nil {
		h.logger.Error("Failed to list sessions", zap.Int64("user_id", user.ID), zap.Error(err))
		h.sendMessage(ctx, b, chatID, ErrorMessage(err), nil)
		return
	}

	if len(sessions) == 0 {
		h.sendMessage(ctx, b, chatID, "📭 У вас пока нет занятий.\n\nПосмотрите открытые: /public", nil)
		return
	}

	h.sendMessage(ctx, b, chatID, fmt.Sprintf("📅 <b>У вас %d %s</b>", len(sessions), formatting.PluralizeSessions(len(sessions))), nil)

	if len(sessions) > mySessionsLimit {
		sessions = sessions[:mySessionsLimit]
	}
	for _, session := range sessions {
		h.sendMessage(ctx, b, chatID, formatting.FormatSessionShort(session), sessionKeyboard(session, user))
	}
}

// HandlePublic обрабатывает команду /public [course]
func (h *Handlers) HandlePublic(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID

	user, err := h.currentUser(ctx, update.Message.From.ID)
	if err != nil {
		h.sendMessage(ctx, b, chatID, ErrorMessage(err), nil)
		return
	}

	filter := service.PublicSessionFilter{}
	if args := commandArgs(update.Message.Text); len(args) > 0 {
		filter.CourseCode = strings.ToUpper(args[0])
	}

	viewerID := user.ID
	sessions, err := h.queryService.ListPublicSessions(ctx, filter, &viewerID)
	if err != nil {
		h.logger.Error("Failed to list public sessions", zap.Error(err))
		h.sendMessage(ctx, b, chatID, ErrorMessage(err), nil)
		return
	}

	if len(sessions) == 0 {
		h.sendMessage(ctx, b, chatID, "📭 Открытых занятий сейчас нет.", nil)
		return
	}

	for _, session := range sessions {
		text := formatting.FormatSession(session, h.tutorName(ctx, session.TutorID))
		h.sendMessage(ctx, b, chatID, text, sessionKeyboard(session, user))
	}
}

// HandleSession обрабатывает команду /session <id>
func (h *Handlers) HandleSession(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID

	args := commandArgs(update.Message.Text)
	if len(args) != 1 {
		h.sendMessage(ctx, b, chatID, "Использование: /session &lt;id&gt;", nil)
		return
	}
	sessionID, err := parseSessionID(args[0])
	if err != nil {
		h.sendMessage(ctx, b, chatID, ErrorMessage(err), nil)
		return
	}

	user, err := h.currentUser(ctx, update.Message.From.ID)
	if err != nil {
		h.sendMessage(ctx, b, chatID, ErrorMessage(err), nil)
		return
	}

	session, err := h.queryService.GetSession(ctx, sessionID)
	if err != nil {
		h.sendMessage(ctx, b, chatID, ErrorMessage(err), nil)
		return
	}

	text := formatting.FormatSession(session, h.tutorName(ctx, session.TutorID))
	h.sendMessage(ctx, b, chatID, text, sessionKeyboard(session, user))
}

// HandleNotifications обрабатывает команду /notifications
func (h *Handlers) HandleNotifications(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID

	user, err := h.currentUser(ctx, update.Message.From.ID)
	if err != nil {
		h.sendMessage(ctx, b, chatID, ErrorMessage(err), nil)
		return
	}

	items, err := h.inboxService.Notifications(ctx, user.ID, notificationsLimit)
	if err != nil {
		h.logger.Error("Failed to list notifications", zap.Int64("user_id", user.ID), zap.Error(err))
		h.sendMessage(ctx, b, chatID, ErrorMessage(err), nil)
		return
	}

	if len(items) == 0 {
		h.sendMessage(ctx, b, chatID, "📭 Уведомлений пока нет.", nil)
		return
	}

	lines := make([]string, 0, len(items)+1)
	lines = append(lines, "🔔 <b>Последние уведомления</b>\n")
	for _, n := range items {
		lines = append(lines, formatting.FormatNotification(n))
	}

	h.sendMessage(ctx, b, chatID, strings.Join(lines, "\n\n"), nil)
}

// HandleFeedback обрабатывает команду /feedback
func (h *Handlers) HandleFeedback(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID

	user, err := h.currentUser(ctx, update.Message.From.ID)
	if err != nil {
		h.sendMessage(ctx, b, chatID, ErrorMessage(err), nil)
		return
	}

	records, err := h.inboxService.PendingFeedback(ctx, user.ID)
	if err != nil {
		h.logger.Error("Failed to list pending feedback", zap.Int64("user_id", user.ID), zap.Error(err))
		h.sendMessage(ctx, b, chatID, ErrorMessage(err), nil)
		return
	}

	if len(records) == 0 {
		h.sendMessage(ctx, b, chatID, "✅ Все отзывы оставлены.", nil)
		return
	}

	lines := make([]string, 0, len(records)+1)
	lines = append(lines, fmt.Sprintf("⭐ <b>Ждут отзыва: %d %s</b>\n", len(records), formatting.PluralizeSessions(len(records))))
	for _, rec := range records {
		lines = append(lines, formatting.FormatFeedbackRecord(rec))
	}

	h.sendMessage(ctx, b, chatID, strings.Join(lines, "\n"), nil)
}
