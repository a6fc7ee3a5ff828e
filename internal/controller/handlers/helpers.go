package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Freeeeeet/tutor_bot/internal/controller/keyboard"
	"github.com/Freeeeeet/tutor_bot/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// Callback data: действие:id_занятия
const (
	CallbackJoin          = "join:"
	CallbackLeave         = "leave:"
	CallbackCancel        = "cancel:"
	CallbackConfirm       = "confirm:"
	CallbackReject        = "reject:"
	CallbackDetails       = "session:"
	CallbackComplete      = "complete:"
	CallbackPropose       = "propose:"
	CallbackAccept        = "accept:"
	CallbackDecline       = "decline:"
	CallbackInviteAccept  = "invite:"
	CallbackInviteDecline = "noinvite:"
	CallbackTopic         = "topic:"
	CallbackLocation      = "location:"
)

// Callback data шагов диалога: действие:id_окна или действие:номер_варианта
const (
	CallbackBook     = "book:"
	CallbackSlotMode = "slotmode:"
	CallbackBookType = "booktype:"
	CallbackBookMode = "bookmode:"
)

// parseCallback разбирает "join:123" на префикс и ID
func parseCallback(data string) (string, int64, error) {
	idx := strings.Index(data, ":")
	if idx <= 0 || idx == len(data)-1 {
		return "", 0, ErrInvalidFormat
	}

	id, err := strconv.ParseInt(data[idx+1:], 10, 64)
	if err != nil || id <= 0 {
		return "", 0, ErrInvalidFormat
	}
	return data[:idx+1], id, nil
}

// commandArgs аргументы команды без самой команды: "/public CS101" -> ["CS101"]
func commandArgs(text string) []string {
	fields := strings.Fields(text)
	if len(fields) <= 1 {
		return nil
	}
	return fields[1:]
}

func callbackData(prefix string, id int64) string {
	return prefix + strconv.FormatInt(id, 10)
}

// sessionKeyboard кнопки, доступные пользователю для занятия
func sessionKeyboard(session *model.TutorSession, user *model.User) *models.InlineKeyboardMarkup {
	kb := keyboard.NewBuilder()
	isTutor := session.TutorID == user.ID
	p := session.Participant(user.ID)
	active := p != nil && p.Status != model.ParticipationCancelled

	switch session.Status {
	case model.SessionWaitingForTutor:
		if isTutor {
			kb.Row(
				keyboard.Button("✅ Подтвердить", callbackData(CallbackConfirm, session.ID)),
				keyboard.Button("🚫 Отклонить", callbackData(CallbackReject, session.ID)),
			)
			kb.Row(keyboard.Button("💬 Предложить изменения", callbackData(CallbackPropose, session.ID)))
		}
	case model.SessionWaitingForStudent:
		if active && session.RequesterID == user.ID {
			kb.Row(
				keyboard.Button("✅ Принять", callbackData(CallbackAccept, session.ID)),
				keyboard.Button("🚫 Отказаться", callbackData(CallbackDecline, session.ID)),
			)
		}
		if isTutor || active {
			kb.Row(keyboard.Button("❌ Отменить", callbackData(CallbackCancel, session.ID)))
		}
	case model.SessionConfirmed:
		switch {
		case session.IsPublic && active:
			kb.Row(keyboard.Button("🚪 Покинуть", callbackData(CallbackLeave, session.ID)))
		case session.IsPublic && !isTutor && (p != nil || !session.IsFull()):
			kb.Row(keyboard.Button("➕ Записаться", callbackData(CallbackJoin, session.ID)))
		}
		if isTutor || (active && !session.IsPublic) {
			kb.Row(keyboard.Button("❌ Отменить занятие", callbackData(CallbackCancel, session.ID)))
		}
		if isTutor {
			kb.Row(
				keyboard.Button("📝 Тема", callbackData(CallbackTopic, session.ID)),
				keyboard.Button("📍 Место", callbackData(CallbackLocation, session.ID)),
			)
			kb.Row(keyboard.Button("🏁 Завершить", callbackData(CallbackComplete, session.ID)))
		}
	}

	// Приглашение в закрытую группу
	if session.RequestType == model.RequestPrivateGroup && session.Status.IsLive() &&
		!isTutor && !active && (p != nil || !session.IsFull()) {
		kb.Row(
			keyboard.Button("✉️ Принять приглашение", callbackData(CallbackInviteAccept, session.ID)),
			keyboard.Button("Отказаться", callbackData(CallbackInviteDecline, session.ID)),
		)
	}

	return kb.Build()
}

// choiceKeyboard кнопки вариантов, по одной в ряд
func choiceKeyboard(prefix string, labels []string, ids []int64) *models.InlineKeyboardMarkup {
	kb := keyboard.NewBuilder()
	for i, label := range labels {
		kb.Row(keyboard.Button(label, callbackData(prefix, ids[i])))
	}
	return kb.Build()
}

// slotsKeyboard кнопки записи в окна, тутору не показываются
func slotsKeyboard(slots []*model.AvailabilitySlot, viewerID int64) *models.InlineKeyboardMarkup {
	kb := keyboard.NewBuilder()
	for i, slot := range slots {
		if slot.TutorID == viewerID {
			continue
		}
		kb.Row(keyboard.Button(fmt.Sprintf("📝 Запросить занятие в окне %d", i+1), callbackData(CallbackBook, slot.ID)))
	}
	return kb.Build()
}

// sendMessage отправляет HTML сообщение, клавиатура необязательна
func (h *Handlers) sendMessage(ctx context.Context, b *bot.Bot, chatID int64, text string, markup *models.InlineKeyboardMarkup) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}

	if _, err := b.SendMessage(ctx, params); err != nil {
		h.logger.Error("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// answerCallback отвечает на callback query, alert для ошибок
func answerCallback(ctx context.Context, b *bot.Bot, callbackID, text string, alert bool) {
	b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       alert,
	})
}

// currentUser находит зарегистрированного пользователя по Telegram ID
func (h *Handlers) currentUser(ctx context.Context, telegramID int64) (*model.User, error) {
	user, err := h.userService.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// tutorName имя тутора для карточки: из профиля, иначе из Telegram
func (h *Handlers) tutorName(ctx context.Context, tutorID int64) string {
	profile, err := h.profiles.TutorProfileByUser(ctx, tutorID)
	if err != nil {
		h.logger.Warn("Failed to get tutor profile", zap.Int64("tutor_id", tutorID), zap.Error(err))
		return ""
	}
	if profile != nil && profile.DisplayName != "" {
		return profile.DisplayName
	}

	user, err := h.userService.GetByID(ctx, tutorID)
	if err != nil || user == nil {
		return ""
	}
	return user.FullName()
}
