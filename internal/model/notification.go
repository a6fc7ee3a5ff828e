package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationBookingRequest      NotificationType = "BOOKING_REQUEST"
	NotificationNegotiationProposal NotificationType = "NEGOTIATION_PROPOSAL"
	NotificationSessionConfirmed    NotificationType = "SESSION_CONFIRMED"
	NotificationSessionRejected     NotificationType = "SESSION_REJECTED"
	NotificationSessionCancelled    NotificationType = "SESSION_CANCELLED"
	NotificationSessionUpdated      NotificationType = "SESSION_UPDATED"
	NotificationParticipantJoined   NotificationType = "PARTICIPANT_JOINED"
	NotificationParticipantLeft     NotificationType = "PARTICIPANT_LEFT"
	NotificationFeedbackRequest     NotificationType = "FEEDBACK_REQUEST"
)

// Title короткий заголовок уведомления
func (t NotificationType) Title() string {
	switch t {
	case NotificationBookingRequest:
		return "Новый запрос на занятие"
	case NotificationNegotiationProposal:
		return "Тутор предложил изменения"
	case NotificationSessionConfirmed:
		return "Занятие подтверждено"
	case NotificationSessionRejected:
		return "Занятие отклонено"
	case NotificationSessionCancelled:
		return "Занятие отменено"
	case NotificationSessionUpdated:
		return "Занятие изменено"
	case NotificationParticipantJoined:
		return "Новый участник"
	case NotificationParticipantLeft:
		return "Участник покинул занятие"
	case NotificationFeedbackRequest:
		return "Оставьте отзыв"
	default:
		return "Уведомление"
	}
}

type Notification struct {
	ID         uuid.UUID        `json:"id"`
	ReceiverID int64            `json:"receiver_id"`
	Type       NotificationType `json:"type"`
	Title      string           `json:"title"`
	Message    string           `json:"message"`
	SessionID  *int64           `json:"session_id"`
	IsRead     bool             `json:"is_read"`
	CreatedAt  time.Time        `json:"created_at"`
}

type FeedbackStatus string

const (
	FeedbackPending   FeedbackStatus = "PENDING"
	FeedbackSubmitted FeedbackStatus = "SUBMITTED"
	FeedbackSkipped   FeedbackStatus = "SKIPPED"
)

// FeedbackRecord заготовка отзыва, создаётся после завершения занятия
type FeedbackRecord struct {
	ID        uuid.UUID      `json:"id"`
	SessionID int64          `json:"session_id"`
	StudentID int64          `json:"student_id"`
	TutorID   int64          `json:"tutor_id"`
	Status    FeedbackStatus `json:"status"`
	Deadline  time.Time      `json:"deadline"`
	CreatedAt time.Time      `json:"created_at"`
}
