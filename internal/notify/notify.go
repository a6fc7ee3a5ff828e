// Package notify доставка уведомлений: история в БД и сообщения в Telegram.
package notify

import (
	"context"
	"fmt"
	"html"

	"github.com/Freeeeeet/tutor_bot/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Sink получатель событий
type Sink interface {
	Notify(ctx context.Context, receiverID int64, typ model.NotificationType, sessionID *int64, message string) error
}

// NotificationStore хранилище истории уведомлений
type NotificationStore interface {
	Create(ctx context.Context, n *model.Notification) error
}

// StoreSink сохраняет уведомление в истории получателя
type StoreSink struct {
	repo NotificationStore
}

func NewStoreSink(repo NotificationStore) *StoreSink {
	return &StoreSink{repo: repo}
}

func (s *StoreSink) Notify(ctx context.Context, receiverID int64, typ model.NotificationType, sessionID *int64, message string) error {
	n := &model.Notification{
		ReceiverID: receiverID,
		Type:       typ,
		Title:      typ.Title(),
		Message:    message,
		SessionID:  sessionID,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	return nil
}

// MessageSender часть API бота, нужная для отправки сообщений
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// ChatResolver находит Telegram-чат пользователя, 0 если чата нет
type ChatResolver interface {
	TelegramIDByUser(ctx context.Context, userID int64) (int64, error)
}

// TelegramSink отправляет уведомление в личный чат пользователя
type TelegramSink struct {
	sender MessageSender
	chats  ChatResolver
	logger *zap.Logger
}

func NewTelegramSink(sender MessageSender, chats ChatResolver, logger *zap.Logger) *TelegramSink {
	return &TelegramSink{sender: sender, chats: chats, logger: logger}
}

func (s *TelegramSink) Notify(ctx context.Context, receiverID int64, typ model.NotificationType, sessionID *int64, message string) error {
	chatID, err := s.chats.TelegramIDByUser(ctx, receiverID)
	if err != nil {
		return fmt.Errorf("resolve chat: %w", err)
	}
	if chatID == 0 {
		s.logger.Debug("No telegram chat for user, skipping", zap.Int64("user_id", receiverID))
		return nil
	}

	_, err = s.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      Render(typ, sessionID, message),
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// Render текст сообщения в HTML-разметке Telegram
func Render(typ model.NotificationType, sessionID *int64, message string) string {
	text := fmt.Sprintf("%s <b>%s</b>\n\n%s", icon(typ), html.EscapeString(typ.Title()), html.EscapeString(message))
	if sessionID != nil {
		text += fmt.Sprintf("\n\n<i>Занятие #%d</i>", *sessionID)
	}
	return text
}

func icon(typ model.NotificationType) string {
	switch typ {
	case model.NotificationBookingRequest:
		return "📩"
	case model.NotificationNegotiationProposal:
		return "💬"
	case model.NotificationSessionConfirmed:
		return "✅"
	case model.NotificationSessionRejected, model.NotificationSessionCancelled:
		return "❌"
	case model.NotificationSessionUpdated:
		return "✏️"
	case model.NotificationParticipantJoined:
		return "👋"
	case model.NotificationParticipantLeft:
		return "🚪"
	case model.NotificationFeedbackRequest:
		return "⭐"
	default:
		return "🔔"
	}
}

// Fanout рассылает событие во все приёмники параллельно
type Fanout struct {
	sinks []Sink
}

func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

// Notify возвращает первую ошибку, остальные приёмники всё равно отрабатывают
func (f *Fanout) Notify(ctx context.Context, receiverID int64, typ model.NotificationType, sessionID *int64, message string) error {
	var g errgroup.Group
	for _, sink := range f.sinks {
		g.Go(func() error {
			return sink.Notify(ctx, receiverID, typ, sessionID, message)
		})
	}
	return g.Wait()
}
