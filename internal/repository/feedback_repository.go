package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutor_bot/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FeedbackRepository создаёт заготовки отзывов после завершения занятия
type FeedbackRepository struct {
	pool     *pgxpool.Pool
	deadline time.Duration
	now      func() time.Time
}

func NewFeedbackRepository(pool *pgxpool.Pool, deadline time.Duration) *FeedbackRepository {
	return &FeedbackRepository{pool: pool, deadline: deadline, now: time.Now}
}

// CreateRecordsForSession создаёт запись PENDING для каждого активного участника.
// Повторный вызов для той же пары (сессия, студент) ничего не делает.
func (r *FeedbackRepository) CreateRecordsForSession(ctx context.Context, session *model.TutorSession) error {
	students := session.ActiveStudentIDs()
	if len(students) == 0 {
		return nil
	}

	deadline := r.now().Add(r.deadline)

	query := `
		INSERT INTO feedback_records (id, session_id, student_id, tutor_id, status, deadline)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, student_id) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, studentID := range students {
		batch.Queue(query, uuid.New(), session.ID, studentID, session.TutorID, model.FeedbackPending, deadline)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("create feedback records: %w", err)
	}

	return nil
}

// ListPendingByStudent получает неотправленные отзывы студента
func (r *FeedbackRepository) ListPendingByStudent(ctx context.Context, studentID int64) ([]*model.FeedbackRecord, error) {
	query := `
		SELECT id, session_id, student_id, tutor_id, status, deadline, created_at
		FROM feedback_records
		WHERE student_id = $1 AND status = $2 AND deadline > NOW()
		ORDER BY deadline
	`

	rows, err := r.pool.Query(ctx, query, studentID, model.FeedbackPending)
	if err != nil {
		return nil, fmt.Errorf("get pending feedback: %w", err)
	}
	defer rows.Close()

	var records []*model.FeedbackRecord
	for rows.Next() {
		var rec model.FeedbackRecord
		err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.StudentID,
			&rec.TutorID,
			&rec.Status,
			&rec.Deadline,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan feedback record: %w", err)
		}
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feedback records: %w", err)
	}

	return records, nil
}
