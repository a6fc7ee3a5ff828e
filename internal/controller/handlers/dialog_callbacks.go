package handlers

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutor_bot/internal/controller/formatting"
	"github.com/Freeeeeet/tutor_bot/internal/controller/state"
	"github.com/Freeeeeet/tutor_bot/internal/model"
	"github.com/Freeeeeet/tutor_bot/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// handleDialogCallback кнопки, которые начинают или продолжают диалог.
// false если префикс не относится к диалогам.
func (h *Handlers) handleDialogCallback(ctx context.Context, b *bot.Bot, callback *models.CallbackQuery, user *model.User, prefix string, id int64) bool {
	var err error
	switch prefix {
	case CallbackBook:
		err = h.startBooking(ctx, b, callback, user, id)
	case CallbackSlotMode:
		err = h.slotModeChosen(ctx, b, callback, user, id)
	case CallbackBookType:
		err = h.bookingTypeChosen(ctx, b, callback, id)
	case CallbackBookMode:
		err = h.bookingModeChosen(ctx, b, callback, user, id)
	case CallbackPropose:
		h.startSessionEdit(ctx, b, callback, id, state.StateProposeInterval,
			"💬 <b>Встречное предложение</b>\n\n"+
				"Новое время в формате <b>ДД.ММ.ГГГГ ЧЧ:ММ-ЧЧ:ММ</b> или - если время не меняется"+cancelHint)
	case CallbackTopic:
		h.startSessionEdit(ctx, b, callback, id, state.StateEditTopic,
			"📝 Введите новую тему занятия или - чтобы убрать тему"+cancelHint)
	case CallbackLocation:
		h.startSessionEdit(ctx, b, callback, id, state.StateEditLocation,
			"📍 Введите новое место: аудиторию или ссылку на встречу"+cancelHint)
	default:
		return false
	}

	if err != nil {
		h.dialogs.ClearState(callback.From.ID)
		h.logCallbackError(callback, err)
		answerCallback(ctx, b, callback.ID, ErrorMessage(err), true)
	}
	return true
}

// startBooking первый шаг запроса на занятие в выбранном окне
func (h *Handlers) startBooking(ctx context.Context, b *bot.Bot, callback *models.CallbackQuery, user *model.User, slotID int64) error {
	slot, err := h.availabilityService.GetSlot(ctx, slotID)
	if err != nil {
		return err
	}
	if slot.TutorID == user.ID {
		answerCallback(ctx, b, callback.ID, "⛔ Это ваше окно", true)
		return nil
	}

	h.dialogs.Start(callback.From.ID, state.StateBookingCourse)
	h.dialogs.SetData(callback.From.ID, state.KeySlotID, slot.ID)

	answerCallback(ctx, b, callback.ID, "", false)
	h.sendMessage(ctx, b, callbackChatID(callback), fmt.Sprintf("📝 <b>Запрос занятия</b>\n\n"+
		"Окно: %s\n\n"+
		"Шаг 1: введите код курса, например CS101"+cancelHint,
		h.formatRange(slot.StartTime, slot.EndTime)), nil)
	return nil
}

func (h *Handlers) slotModeChosen(ctx context.Context, b *bot.Bot, callback *models.CallbackQuery, user *model.User, choice int64) error {
	telegramID := callback.From.ID
	if h.dialogs.GetState(telegramID) != state.StateSlotModes {
		return ErrDialogExpired
	}

	modes, err := slotModesFromChoice(choice)
	if err != nil {
		return err
	}
	start, ok1 := h.dialogs.Time(telegramID, state.KeyStart)
	end, ok2 := h.dialogs.Time(telegramID, state.KeyEnd)
	if !ok1 || !ok2 {
		return ErrDialogExpired
	}

	slot, err := h.availabilityService.CreateSlot(ctx, user.ID, start, end, modes)
	if err != nil {
		return err
	}
	h.dialogs.ClearState(telegramID)

	h.logger.Info("Slot created via bot",
		zap.Int64("slot_id", slot.ID),
		zap.Int64("tutor_id", user.ID))

	answerCallback(ctx, b, callback.ID, "✅ Окно создано", false)
	h.sendMessage(ctx, b, callbackChatID(callback), fmt.Sprintf("✅ <b>Окно создано!</b>\n\n%s\n\n"+
		"Студенты увидят его по команде /slots %d\n"+
		"Добавить ещё: /newslot", formatting.FormatSlot(slot, 1), user.ID), nil)
	return nil
}

func (h *Handlers) bookingTypeChosen(ctx context.Context, b *bot.Bot, callback *models.CallbackQuery, choice int64) error {
	telegramID := callback.From.ID
	if h.dialogs.GetState(telegramID) != state.StateBookingType {
		return ErrDialogExpired
	}

	requestType, err := requestTypeFromChoice(choice)
	if err != nil {
		return err
	}
	h.dialogs.SetData(telegramID, state.KeyRequestType, requestType)
	answerCallback(ctx, b, callback.ID, "", false)

	if requestType == model.RequestOneOnOne {
		return h.askBookingMode(ctx, b, callbackChatID(callback), telegramID)
	}

	h.dialogs.SetState(telegramID, state.StateBookingCapacity)
	h.sendMessage(ctx, b, callbackChatID(callback), "👥 Сколько мест в группе? Введите число"+cancelHint, nil)
	return nil
}

func (h *Handlers) bookingModeChosen(ctx context.Context, b *bot.Bot, callback *models.CallbackQuery, user *model.User, choice int64) error {
	telegramID := callback.From.ID
	if h.dialogs.GetState(telegramID) != state.StateBookingMode {
		return ErrDialogExpired
	}

	mode, err := modeFromChoice(choice)
	if err != nil {
		return err
	}
	slot, err := h.dialogSlot(ctx, telegramID)
	if err != nil {
		return err
	}

	req, err := bookingRequest(h.dialogs, telegramID, user.ID, slot, mode)
	if err != nil {
		return err
	}

	session, err := h.bookingService.CreateBookingRequest(ctx, req)
	if err != nil {
		return err
	}
	h.dialogs.ClearState(telegramID)

	answerCallback(ctx, b, callback.ID, "✅ Запрос отправлен", false)
	h.sendSessionCard(ctx, b, callbackChatID(callback), session, user,
		"✅ Запрос отправлен тутору. Вы получите уведомление, когда он ответит.")
	return nil
}

// startSessionEdit диалог правки занятия; права проверяет сервис на последнем шаге
func (h *Handlers) startSessionEdit(ctx context.Context, b *bot.Bot, callback *models.CallbackQuery, sessionID int64, step state.UserState, prompt string) {
	h.dialogs.Start(callback.From.ID, step)
	h.dialogs.SetData(callback.From.ID, state.KeySessionID, sessionID)

	answerCallback(ctx, b, callback.ID, "", false)
	h.sendMessage(ctx, b, callbackChatID(callback), fmt.Sprintf("Занятие #%d\n\n%s", sessionID, prompt), nil)
}

// bookingRequest собирает запрос из ответов диалога
func bookingRequest(sm *state.Manager, telegramID, studentID int64, slot *model.AvailabilitySlot, mode model.LocationMode) (service.BookingRequest, error) {
	course, ok1 := sm.String(telegramID, state.KeyCourse)
	start, ok2 := sm.Time(telegramID, state.KeyStart)
	end, ok3 := sm.Time(telegramID, state.KeyEnd)
	rawType, ok4 := sm.GetData(telegramID, state.KeyRequestType)
	requestType, ok5 := rawType.(model.RequestType)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return service.BookingRequest{}, ErrDialogExpired
	}

	topic, _ := sm.String(telegramID, state.KeyTopic)

	req := service.BookingRequest{
		StudentID:   studentID,
		TutorID:     slot.TutorID,
		CourseCode:  course,
		StartTime:   start,
		EndTime:     end,
		Mode:        mode,
		RequestType: requestType,
		Topic:       topic,
	}
	if raw, ok := sm.GetData(telegramID, state.KeyCapacity); ok && requestType != model.RequestOneOnOne {
		if capacity, ok := raw.(int); ok {
			req.Capacity = &capacity
		}
	}
	return req, nil
}

func slotModeKeyboard() *models.InlineKeyboardMarkup {
	labels := make([]string, 0, len(modeChoices)+1)
	ids := make([]int64, 0, len(modeChoices)+1)
	for _, m := range modeChoices {
		labels = append(labels, formatting.GetModeDisplay(m))
		ids = append(ids, choiceID(modeChoices, m))
	}
	labels = append(labels, "🌐 Любой формат")
	ids = append(ids, modeChoiceAll)
	return choiceKeyboard(CallbackSlotMode, labels, ids)
}

// bookingModeKeyboard только форматы, разрешённые в окне
func bookingModeKeyboard(allowed []model.LocationMode) *models.InlineKeyboardMarkup {
	var labels []string
	var ids []int64
	for _, m := range modeChoices {
		for _, a := range allowed {
			if a == m {
				labels = append(labels, formatting.GetModeDisplay(m))
				ids = append(ids, choiceID(modeChoices, m))
			}
		}
	}
	return choiceKeyboard(CallbackBookMode, labels, ids)
}

func requestTypeKeyboard() *models.InlineKeyboardMarkup {
	labels := []string{"👤 Индивидуально", "🔒 Закрытая группа", "🌍 Открытая группа"}
	ids := make([]int64, len(requestTypeChoices))
	for i, rt := range requestTypeChoices {
		ids[i] = choiceID(requestTypeChoices, rt)
	}
	return choiceKeyboard(CallbackBookType, labels, ids)
}

// callbackChatID чат сообщения с кнопкой, для недоступных сообщений личный чат
func callbackChatID(callback *models.CallbackQuery) int64 {
	if callback.Message.Message != nil {
		return callback.Message.Message.Chat.ID
	}
	return callback.From.ID
}
