package handlers

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Freeeeeet/tutor_bot/internal/controller/formatting"
	"github.com/Freeeeeet/tutor_bot/internal/controller/state"
	"github.com/Freeeeeet/tutor_bot/internal/model"
	"github.com/Freeeeeet/tutor_bot/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

const (
	tutorNameMinLength = 2
	tutorNameMaxLength = 100
	courseCodeMaxLen   = 32
	topicMaxLength     = 200

	cancelHint = "\n\nДля отмены используйте /cancel"
)

// dialogInput очередной ответ пользователя в диалоге
type dialogInput struct {
	chatID     int64
	telegramID int64
	user       *model.User
	text       string
}

// HandleCancel обрабатывает команду /cancel - отмена текущего диалога
func (h *Handlers) HandleCancel(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	telegramID := update.Message.From.ID
	if h.dialogs.GetState(telegramID) == state.StateNone {
		h.sendMessage(ctx, b, update.Message.Chat.ID, "❌ Нет активных операций для отмены.", nil)
		return
	}

	h.dialogs.ClearState(telegramID)
	h.sendMessage(ctx, b, update.Message.Chat.ID, "✅ Операция отменена.\n\nИспользуйте /help для просмотра доступных команд.", nil)
}

// HandleBecomeTutor обрабатывает команду /becometutor
func (h *Handlers) HandleBecomeTutor(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID

	user, err := h.currentUser(ctx, update.Message.From.ID)
	if err != nil {
		h.sendMessage(ctx, b, chatID, ErrorMessage(err), nil)
		return
	}

	profile, err := h.profiles.TutorProfileByUser(ctx, user.ID)
	if err != nil {
		h.logger.Error("Failed to get tutor profile", zap.Int64("user_id", user.ID), zap.Error(err))
		h.sendMessage(ctx, b, chatID, ErrorMessage(err), nil)
		return
	}

	intro := "🎓 <b>Стать тутором</b>\n\n" +
		"Как тутор вы сможете:\n" +
		"• Публиковать свободные окна\n" +
		"• Подтверждать запросы студентов или предлагать другое время\n" +
		"• Вести открытые и закрытые группы\n\n"
	if profile != nil {
		intro = "✏️ <b>Профиль тутора уже создан</b>, обновим его.\n\n"
	}

	h.dialogs.Start(update.Message.From.ID, state.StateTutorName)
	h.logger.Info("Tutor onboarding started", zap.Int64("user_id", user.ID))

	h.sendMessage(ctx, b, chatID, intro+"Шаг 1 из 2: как вас показывать студентам?"+cancelHint, nil)
}

// HandleNewSlot обрабатывает команду /newslot
func (h *Handlers) HandleNewSlot(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID

	user, err := h.currentUser(ctx, update.Message.From.ID)
	if err != nil {
		h.sendMessage(ctx, b, chatID, ErrorMessage(err), nil)
		return
	}

	profile, err := h.profiles.TutorProfileByUser(ctx, user.ID)
	if err != nil {
		h.logger.Error("Failed to get tutor profile", zap.Int64("user_id", user.ID), zap.Error(err))
		h.sendMessage(ctx, b, chatID, ErrorMessage(err), nil)
		return
	}
	if profile == nil {
		h.sendMessage(ctx, b, chatID, "⛔ Окна публикуют только туторы.\n\nСтать тутором: /becometutor", nil)
		return
	}

	h.dialogs.Start(update.Message.From.ID, state.StateSlotInterval)

	h.sendMessage(ctx, b, chatID,
		"🗓 <b>Новое окно</b>\n\n"+
			"Введите дату и время в формате <b>ДД.ММ.ГГГГ ЧЧ:ММ-ЧЧ:ММ</b>\n\n"+
			"Например: 14.01.2030 10:00-12:00"+cancelHint, nil)
}

// HandleAttendance обрабатывает команду /attendance <занятие> [<студент> <статус>]
func (h *Handlers) HandleAttendance(ctx context.Context, b *bot.Bot, update *models.Update) {
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

	// Только ID занятия: показываем состав
	if len(args) == 1 {
		sessionID, perr := parseSessionID(args[0])
		if perr != nil {
			h.sendMessage(ctx, b, chatID, ErrorMessage(perr), nil)
			return
		}
		session, err := h.queryService.GetSession(ctx, sessionID)
		if err != nil {
			h.sendMessage(ctx, b, chatID, ErrorMessage(err), nil)
			return
		}
		h.sendMessage(ctx, b, chatID, formatting.FormatRoster(session), nil)
		return
	}

	sessionID, studentID, status, err := parseAttendanceArgs(args)
	if err != nil {
		h.sendMessage(ctx, b, chatID,
			"Использование:\n"+
				"/attendance &lt;id занятия&gt; - состав группы\n"+
				"/attendance &lt;id занятия&gt; &lt;id студента&gt; attended|absent|confirmed|cancelled", nil)
		return
	}

	session, err := h.bookingService.UpdateParticipation(ctx, user.ID, sessionID, studentID, status)
	if err != nil {
		h.logDialogError("attendance", user.ID, err)
		h.sendMessage(ctx, b, chatID, ErrorMessage(err), nil)
		return
	}

	h.sendMessage(ctx, b, chatID, "✅ Посещаемость отмечена\n\n"+formatting.FormatRoster(session), nil)
}

// HandleTextMessage обрабатывает текстовые сообщения в зависимости от состояния пользователя
func (h *Handlers) HandleTextMessage(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !IsDialogInput(update) {
		return
	}

	telegramID := update.Message.From.ID
	current := h.dialogs.GetState(telegramID)
	if current == state.StateNone {
		h.logger.Debug("No active dialog, ignoring message", zap.Int64("telegram_id", telegramID))
		return
	}

	h.logger.Info("Dialog step",
		zap.Int64("telegram_id", telegramID),
		zap.String("state", string(current)))

	user, err := h.currentUser(ctx, telegramID)
	if err != nil {
		h.dialogs.ClearState(telegramID)
		h.sendMessage(ctx, b, update.Message.Chat.ID, ErrorMessage(err), nil)
		return
	}

	in := dialogInput{
		chatID:     update.Message.Chat.ID,
		telegramID: telegramID,
		user:       user,
		text:       strings.TrimSpace(update.Message.Text),
	}

	switch current {
	case state.StateTutorName:
		h.tutorNameStep(ctx, b, in)
	case state.StateTutorBio:
		h.tutorBioStep(ctx, b, in)
	case state.StateSlotInterval:
		h.slotIntervalStep(ctx, b, in)
	case state.StateBookingCourse:
		h.bookingCourseStep(ctx, b, in)
	case state.StateBookingInterval:
		h.bookingIntervalStep(ctx, b, in)
	case state.StateBookingTopic:
		h.bookingTopicStep(ctx, b, in)
	case state.StateBookingCapacity:
		h.bookingCapacityStep(ctx, b, in)
	case state.StateProposeInterval:
		h.proposeIntervalStep(ctx, b, in)
	case state.StateProposeMessage:
		h.proposeMessageStep(ctx, b, in)
	case state.StateEditTopic:
		h.editTopicStep(ctx, b, in)
	case state.StateEditLocation:
		h.editLocationStep(ctx, b, in)
	case state.StateSlotModes, state.StateBookingType, state.StateBookingMode:
		h.sendMessage(ctx, b, in.chatID, "👆 Выберите вариант кнопкой выше."+cancelHint, nil)
	default:
		h.logger.Warn("Unknown dialog state", zap.String("state", string(current)))
		h.dialogs.ClearState(telegramID)
	}
}

func (h *Handlers) tutorNameStep(ctx context.Context, b *bot.Bot, in dialogInput) {
	n := utf8.RuneCountInString(in.text)
	if n < tutorNameMinLength || n > tutorNameMaxLength {
		h.retry(ctx, b, in, fmt.Sprintf("Имя должно быть от %d до %d символов.", tutorNameMinLength, tutorNameMaxLength))
		return
	}

	h.dialogs.SetData(in.telegramID, state.KeyDisplayName, in.text)
	h.dialogs.SetState(in.telegramID, state.StateTutorBio)

	h.sendMessage(ctx, b, in.chatID, fmt.Sprintf("✅ Имя: %s\n\n"+
		"Шаг 2 из 2: расскажите о себе в паре предложений или отправьте - чтобы пропустить"+cancelHint,
		html.EscapeString(in.text)), nil)
}

func (h *Handlers) tutorBioStep(ctx context.Context, b *bot.Bot, in dialogInput) {
	name, ok := h.dialogs.String(in.telegramID, state.KeyDisplayName)
	if !ok {
		h.failDialog(ctx, b, in, "become tutor", ErrDialogExpired)
		return
	}

	user, err := h.userService.BecomeTutor(ctx, in.user.ID, service.TutorApplication{
		DisplayName: name,
		Bio:         optionalText(in.text),
	})
	if err != nil {
		h.failDialog(ctx, b, in, "become tutor", err)
		return
	}
	h.dialogs.ClearState(in.telegramID)

	h.sendMessage(ctx, b, in.chatID, fmt.Sprintf("🎓 <b>Готово, теперь вы тутор!</b>\n\n"+
		"Ваш ID для студентов: <b>%d</b>\n"+
		"Они увидят ваши окна по команде /slots %d\n\n"+
		"Создайте первое окно: /newslot", user.ID, user.ID), nil)
}

func (h *Handlers) slotIntervalStep(ctx context.Context, b *bot.Bot, in dialogInput) {
	start, end, err := parseInterval(in.text, h.loc)
	if err != nil {
		h.retry(ctx, b, in, "Неверный формат. Нужно ДД.ММ.ГГГГ ЧЧ:ММ-ЧЧ:ММ, например 14.01.2030 10:00-12:00")
		return
	}

	h.dialogs.SetData(in.telegramID, state.KeyStart, start)
	h.dialogs.SetData(in.telegramID, state.KeyEnd, end)
	h.dialogs.SetState(in.telegramID, state.StateSlotModes)

	h.sendMessage(ctx, b, in.chatID,
		fmt.Sprintf("🕐 %s\n\nВ каком формате можно проводить занятия в этом окне?", formatting.FormatTimeRange(start, end)),
		slotModeKeyboard())
}

func (h *Handlers) bookingCourseStep(ctx context.Context, b *bot.Bot, in dialogInput) {
	code := strings.ToUpper(in.text)
	if code == "" || len(code) > courseCodeMaxLen || strings.ContainsAny(code, " \t") {
		h.retry(ctx, b, in, "Код курса пишется одним словом, например CS101.")
		return
	}

	slot, err := h.dialogSlot(ctx, in.telegramID)
	if err != nil {
		h.failDialog(ctx, b, in, "booking", err)
		return
	}

	h.dialogs.SetData(in.telegramID, state.KeyCourse, code)
	h.dialogs.SetState(in.telegramID, state.StateBookingInterval)

	h.sendMessage(ctx, b, in.chatID, fmt.Sprintf("✅ Курс: %s\n\n"+
		"Шаг 2: окно %s\n"+
		"Введите время занятия внутри окна в формате <b>ЧЧ:ММ-ЧЧ:ММ</b> или - чтобы занять окно целиком"+cancelHint,
		html.EscapeString(code), h.formatRange(slot.StartTime, slot.EndTime)), nil)
}

func (h *Handlers) bookingIntervalStep(ctx context.Context, b *bot.Bot, in dialogInput) {
	slot, err := h.dialogSlot(ctx, in.telegramID)
	if err != nil {
		h.failDialog(ctx, b, in, "booking", err)
		return
	}

	start, end := slot.StartTime, slot.EndTime
	if in.text != skipInput {
		start, end, err = parseClockRange(in.text, slot.StartTime.In(h.loc))
		if err != nil {
			h.retry(ctx, b, in, "Неверный формат. Нужно ЧЧ:ММ-ЧЧ:ММ, например 10:00-11:00")
			return
		}
		if !slot.Covers(start, end) {
			h.retry(ctx, b, in, "Время должно быть внутри окна "+h.formatRange(slot.StartTime, slot.EndTime))
			return
		}
	}

	h.dialogs.SetData(in.telegramID, state.KeyStart, start)
	h.dialogs.SetData(in.telegramID, state.KeyEnd, end)
	h.dialogs.SetState(in.telegramID, state.StateBookingTopic)

	h.sendMessage(ctx, b, in.chatID, fmt.Sprintf("✅ Время: %s\n\n"+
		"Шаг 3: тема занятия? Отправьте - чтобы пропустить"+cancelHint, h.formatRange(start, end)), nil)
}

func (h *Handlers) bookingTopicStep(ctx context.Context, b *bot.Bot, in dialogInput) {
	topic := optionalText(in.text)
	if utf8.RuneCountInString(topic) > topicMaxLength {
		h.retry(ctx, b, in, fmt.Sprintf("Тема не длиннее %d символов.", topicMaxLength))
		return
	}

	h.dialogs.SetData(in.telegramID, state.KeyTopic, topic)
	h.dialogs.SetState(in.telegramID, state.StateBookingType)

	h.sendMessage(ctx, b, in.chatID, "Шаг 4: кто будет на занятии?", requestTypeKeyboard())
}

func (h *Handlers) bookingCapacityStep(ctx context.Context, b *bot.Bot, in dialogInput) {
	capacity, err := parseCapacity(in.text)
	if err != nil {
		h.retry(ctx, b, in, "Нужно целое число от 1.")
		return
	}

	h.dialogs.SetData(in.telegramID, state.KeyCapacity, capacity)
	if err := h.askBookingMode(ctx, b, in.chatID, in.telegramID); err != nil {
		h.failDialog(ctx, b, in, "booking", err)
	}
}

// askBookingMode последний шаг запроса: формат из разрешённых в окне
func (h *Handlers) askBookingMode(ctx context.Context, b *bot.Bot, chatID, telegramID int64) error {
	slot, err := h.dialogSlot(ctx, telegramID)
	if err != nil {
		return err
	}

	h.dialogs.SetState(telegramID, state.StateBookingMode)
	h.sendMessage(ctx, b, chatID, "Последний шаг: формат занятия", bookingModeKeyboard(slot.AllowedModes))
	return nil
}

func (h *Handlers) proposeIntervalStep(ctx context.Context, b *bot.Bot, in dialogInput) {
	if in.text != skipInput {
		start, end, err := parseInterval(in.text, h.loc)
		if err != nil {
			h.retry(ctx, b, in, "Неверный формат. Нужно ДД.ММ.ГГГГ ЧЧ:ММ-ЧЧ:ММ или -")
			return
		}
		h.dialogs.SetData(in.telegramID, state.KeyStart, start)
		h.dialogs.SetData(in.telegramID, state.KeyEnd, end)
	}

	h.dialogs.SetState(in.telegramID, state.StateProposeMessage)
	h.sendMessage(ctx, b, in.chatID, "💬 Напишите сообщение студенту: что меняется и почему"+cancelHint, nil)
}

func (h *Handlers) proposeMessageStep(ctx context.Context, b *bot.Bot, in dialogInput) {
	sessionID, ok := h.dialogs.Int64(in.telegramID, state.KeySessionID)
	if !ok {
		h.failDialog(ctx, b, in, "propose", ErrDialogExpired)
		return
	}

	proposal := model.NegotiationProposal{Message: in.text}
	if start, ok := h.dialogs.Time(in.telegramID, state.KeyStart); ok {
		proposal.NewStartTime = &start
	}
	if end, ok := h.dialogs.Time(in.telegramID, state.KeyEnd); ok {
		proposal.NewEndTime = &end
	}

	session, err := h.bookingService.ProposeNegotiation(ctx, in.user.ID, sessionID, proposal)
	if err != nil {
		h.failDialog(ctx, b, in, "propose", err)
		return
	}
	h.dialogs.ClearState(in.telegramID)

	h.sendSessionCard(ctx, b, in.chatID, session, in.user, "✅ Предложение отправлено студенту")
}

func (h *Handlers) editTopicStep(ctx context.Context, b *bot.Bot, in dialogInput) {
	sessionID, ok := h.dialogs.Int64(in.telegramID, state.KeySessionID)
	if !ok {
		h.failDialog(ctx, b, in, "update topic", ErrDialogExpired)
		return
	}

	session, err := h.bookingService.UpdateSessionTopic(ctx, in.user.ID, sessionID, optionalText(in.text))
	if err != nil {
		h.failDialog(ctx, b, in, "update topic", err)
		return
	}
	h.dialogs.ClearState(in.telegramID)

	h.sendSessionCard(ctx, b, in.chatID, session, in.user, "✅ Тема обновлена")
}

func (h *Handlers) editLocationStep(ctx context.Context, b *bot.Bot, in dialogInput) {
	sessionID, ok := h.dialogs.Int64(in.telegramID, state.KeySessionID)
	if !ok {
		h.failDialog(ctx, b, in, "update location", ErrDialogExpired)
		return
	}

	session, err := h.bookingService.UpdateSessionLocation(ctx, in.user.ID, sessionID, in.text)
	if err != nil {
		h.failDialog(ctx, b, in, "update location", err)
		return
	}
	h.dialogs.ClearState(in.telegramID)

	h.sendSessionCard(ctx, b, in.chatID, session, in.user, "✅ Место обновлено")
}

// retry повторяет шаг диалога, состояние не меняется
func (h *Handlers) retry(ctx context.Context, b *bot.Bot, in dialogInput, hint string) {
	h.sendMessage(ctx, b, in.chatID, "❌ "+html.EscapeString(hint)+"\n\nПопробуйте ещё раз или отправьте /cancel", nil)
}

// failDialog завершает диалог с ошибкой
func (h *Handlers) failDialog(ctx context.Context, b *bot.Bot, in dialogInput, step string, err error) {
	h.dialogs.ClearState(in.telegramID)
	h.logDialogError(step, in.user.ID, err)
	h.sendMessage(ctx, b, in.chatID, ErrorMessage(err), nil)
}

func (h *Handlers) logDialogError(step string, userID int64, err error) {
	fields := []zap.Field{zap.String("step", step), zap.Int64("user_id", userID), zap.Error(err)}
	if isDomainError(err) {
		h.logger.Info("Dialog step rejected", fields...)
		return
	}
	h.logger.Error("Dialog step failed", fields...)
}

// dialogSlot окно, выбранное в текущем диалоге записи
func (h *Handlers) dialogSlot(ctx context.Context, telegramID int64) (*model.AvailabilitySlot, error) {
	slotID, ok := h.dialogs.Int64(telegramID, state.KeySlotID)
	if !ok {
		return nil, ErrDialogExpired
	}
	return h.availabilityService.GetSlot(ctx, slotID)
}

func (h *Handlers) sendSessionCard(ctx context.Context, b *bot.Bot, chatID int64, session *model.TutorSession, user *model.User, header string) {
	text := header + "\n\n" + formatting.FormatSession(session, h.tutorName(ctx, session.TutorID))
	h.sendMessage(ctx, b, chatID, text, sessionKeyboard(session, user))
}

// formatRange интервал в часовом поясе бота
func (h *Handlers) formatRange(start, end time.Time) string {
	return formatting.FormatTimeRange(start.In(h.loc), end.In(h.loc))
}
