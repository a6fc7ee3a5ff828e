package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutor_bot/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type NotificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// Create сохраняет уведомление в истории получателя
func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}

	query := `
		INSERT INTO notifications (id, receiver_id, type, title, message, session_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	err := r.pool.QueryRow(
		ctx, query,
		n.ID,
		n.ReceiverID,
		n.Type,
		n.Title,
		n.Message,
		n.SessionID,
	).Scan(&n.CreatedAt)

	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}

	return nil
}

// ListByReceiver получает последние уведомления пользователя
func (r *NotificationRepository) ListByReceiver(ctx context.Context, receiverID int64, limit int) ([]*model.Notification, error) {
	query := `
		SELECT id, receiver_id, type, title, message, session_id, is_read, created_at
		FROM notifications
		WHERE receiver_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, receiverID, limit)
	if err != nil {
		return nil, fmt.Errorf("get notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*model.Notification
	for rows.Next() {
		var n model.Notification
		err := rows.Scan(
			&n.ID,
			&n.ReceiverID,
			&n.Type,
			&n.Title,
			&n.Message,
			&n.SessionID,
			&n.IsRead,
			&n.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, &n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}

	return notifications, nil
}

// MarkAllRead помечает все уведомления пользователя прочитанными
func (r *NotificationRepository) MarkAllRead(ctx context.Context, receiverID int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE notifications SET is_read = true WHERE receiver_id = $1 AND is_read = false`, receiverID)
	if err != nil {
		return fmt.Errorf("mark notifications read: %w", err)
	}
	return nil
}
