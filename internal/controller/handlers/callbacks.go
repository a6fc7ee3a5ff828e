package handlers

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/Freeeeeet/tutor_bot/internal/controller/formatting"
	"github.com/Freeeeeet/tutor_bot/internal/model"
	"github.com/Freeeeeet/tutor_bot/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// HandleCallbackQuery обрабатывает нажатия на inline кнопки
func (h *Handlers) HandleCallbackQuery(ctx context.Context, b *bot.Bot, update *models.Update) {
	callback := update.CallbackQuery
	if callback == nil {
		return
	}

	h.logger.Info("Routing callback",
		zap.String("data", callback.Data),
		zap.Int64("telegram_id", callback.From.ID))

	prefix, sessionID, err := parseCallback(callback.Data)
	if err != nil {
		answerCallback(ctx, b, callback.ID, ErrorMessage(err), true)
		return
	}

	user, err := h.currentUser(ctx, callback.From.ID)
	if err != nil {
		answerCallback(ctx, b, callback.ID, ErrorMessage(err), true)
		return
	}

	if h.handleDialogCallback(ctx, b, callback, user, prefix, sessionID) {
		return
	}

	var (
		session *model.TutorSession
		notice  string
	)
	switch prefix {
	case CallbackJoin:
		session, err = h.participationService.JoinPublicSession(ctx, user.ID, sessionID)
		notice = "✅ Вы записаны"
	case CallbackLeave:
		var result *service.LeaveResult
		result, err = h.participationService.LeavePublicSession(ctx, user.ID, sessionID)
		if err == nil {
			session = result.Session
			notice = leaveNotice(result)
		}
	case CallbackCancel:
		var result *service.CancelResult
		result, err = h.bookingService.CancelSession(ctx, user.Actor(), sessionID, "")
		if err == nil {
			session = result.Session
			notice = cancelNotice(result)
		}
	case CallbackConfirm:
		session, err = h.confirmAsRequested(ctx, user, sessionID)
		notice = "✅ Занятие подтверждено"
	case CallbackReject:
		session, err = h.bookingService.HandleSessionAction(ctx, user.Actor(), sessionID,
			service.SessionActionRequest{Action: service.ActionReject})
		notice = "🚫 Запрос отклонён"
	case CallbackComplete:
		session, err = h.bookingService.HandleSessionAction(ctx, user.Actor(), sessionID,
			service.SessionActionRequest{Action: service.ActionComplete})
		notice = "🏁 Занятие завершено"
	case CallbackAccept:
		session, err = h.acceptProposal(ctx, user, sessionID)
		notice = "✅ Предложение принято"
	case CallbackDecline:
		session, err = h.bookingService.ResolveNegotiation(ctx, user.ID, sessionID, service.ResolveReject, nil)
		notice = "🚫 Предложение отклонено"
	case CallbackInviteAccept:
		session, err = h.participationService.RespondToInvite(ctx, user.ID, sessionID, service.InviteAccept)
		notice = "✅ Вы в группе"
	case CallbackInviteDecline:
		session, err = h.participationService.RespondToInvite(ctx, user.ID, sessionID, service.InviteDecline)
		notice = "Приглашение отклонено"
	case CallbackDetails:
		session, err = h.queryService.GetSession(ctx, sessionID)
	default:
		err = ErrInvalidFormat
	}

	if err != nil {
		h.logCallbackError(callback, err)
		answerCallback(ctx, b, callback.ID, ErrorMessage(err), true)
		return
	}

	answerCallback(ctx, b, callback.ID, notice, false)

	if callback.Message.Message != nil {
		text := formatting.FormatSession(session, h.tutorName(ctx, session.TutorID))
		h.sendMessage(ctx, b, callback.Message.Message.Chat.ID, text, sessionKeyboard(session, user))
	}
}

// confirmAsRequested подтверждает запрос с параметрами, указанными студентом
func (h *Handlers) confirmAsRequested(ctx context.Context, user *model.User, sessionID int64) (*model.TutorSession, error) {
	session, err := h.queryService.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return h.bookingService.HandleSessionAction(ctx, user.Actor(), sessionID, service.SessionActionRequest{
		Action: service.ActionConfirm,
		Details: &model.ConfirmDetails{
			Topic:       session.Topic,
			MaxCapacity: max(session.MaxCapacity, len(session.Participants)),
			IsPublic:    session.IsPublic,
		},
	})
}

// acceptProposal принимает предложение тутора, параметры берутся из него
func (h *Handlers) acceptProposal(ctx context.Context, user *model.User, sessionID int64) (*model.TutorSession, error) {
	session, err := h.queryService.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return h.bookingService.ResolveNegotiation(ctx, user.ID, sessionID, service.ResolveAccept, acceptDetails(session))
}

// acceptDetails итоговые параметры: предложенные тутором, иначе текущие
func acceptDetails(session *model.TutorSession) *model.ConfirmDetails {
	details := &model.ConfirmDetails{
		Topic:         session.Topic,
		MaxCapacity:   max(session.MaxCapacity, len(session.ActiveStudentIDs())),
		IsPublic:      session.IsPublic,
		FinalLocation: session.Location,
	}

	p := session.Proposal
	if p == nil {
		return details
	}
	if p.NewTopic != nil {
		details.Topic = *p.NewTopic
	}
	if p.NewMaxCapacity != nil {
		details.MaxCapacity = *p.NewMaxCapacity
	}
	if p.NewIsPublic != nil {
		details.IsPublic = *p.NewIsPublic
	}
	if p.NewLocation != nil {
		details.FinalLocation = *p.NewLocation
	}
	return details
}

func cancelNotice(result *service.CancelResult) string {
	if result.LateCancellation {
		return fmt.Sprintf("⚠️ Занятие отменено за %s до начала, отмена засчитана как поздняя", formatHours(result.HoursUntilStart))
	}
	return "❌ Занятие отменено"
}

// formatHours "1.5 ч", отрицательное время считается нулём
func formatHours(hours float64) string {
	return strconv.FormatFloat(math.Max(hours, 0), 'f', 1, 64) + " ч"
}

func leaveNotice(result *service.LeaveResult) string {
	switch {
	case result.SessionCancelled:
		return "Вы вышли, занятие отменено"
	case result.LateLeave:
		return "⚠️ Вы вышли незадолго до начала, место остаётся за вами"
	default:
		return "🚪 Вы покинули занятие"
	}
}

// logCallbackError ожидаемые доменные ошибки пишутся в Info, остальные в Error
func (h *Handlers) logCallbackError(callback *models.CallbackQuery, err error) {
	fields := []zap.Field{
		zap.String("data", callback.Data),
		zap.Int64("telegram_id", callback.From.ID),
		zap.Error(err),
	}

	if isDomainError(err) {
		h.logger.Info("Callback rejected", fields...)
		return
	}
	h.logger.Error("Callback failed", fields...)
}
