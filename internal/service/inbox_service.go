package service

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutor_bot/internal/model"
	"go.uber.org/zap"
)

const defaultInboxLimit = 10

// NotificationHistory история уведомлений пользователя
type NotificationHistory interface {
	ListByReceiver(ctx context.Context, receiverID int64, limit int) ([]*model.Notification, error)
	MarkAllRead(ctx context.Context, receiverID int64) error
}

// PendingFeedbackLister заготовки отзывов, ожидающие студента
type PendingFeedbackLister interface {
	ListPendingByStudent(ctx context.Context, studentID int64) ([]*model.FeedbackRecord, error)
}

// InboxService входящие пользователя: уведомления и ожидающие отзывы
type InboxService struct {
	notifications NotificationHistory
	feedback      PendingFeedbackLister
	logger        *zap.Logger
}

func NewInboxService(notifications NotificationHistory, feedback PendingFeedbackLister, logger *zap.Logger) *InboxService {
	return &InboxService{
		notifications: notifications,
		feedback:      feedback,
		logger:        logger,
	}
}

// Notifications возвращает последние уведомления и помечает их прочитанными.
// limit <= 0 означает значение по умолчанию.
func (s *InboxService) Notifications(ctx context.Context, userID int64, limit int) ([]*model.Notification, error) {
	if limit <= 0 {
		limit = defaultInboxLimit
	}

	items, err := s.notifications.ListByReceiver(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	unread := 0
	for _, n := range items {
		if !n.IsRead {
			unread++
		}
	}

	if unread > 0 {
		if err := s.notifications.MarkAllRead(ctx, userID); err != nil {
			// Список уже получен, флаг прочтения не критичен
			s.logger.Warn("Failed to mark notifications read", zap.Int64("user_id", userID), zap.Error(err))
		}
	}

	return items, nil
}

// PendingFeedback заготовки отзывов студента, срок которых не истёк
func (s *InboxService) PendingFeedback(ctx context.Context, studentID int64) ([]*model.FeedbackRecord, error) {
	records, err := s.feedback.ListPendingByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list pending feedback: %w", err)
	}
	return records, nil
}
