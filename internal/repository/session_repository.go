package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutor_bot/internal/apperr"
	"github.com/Freeeeeet/tutor_bot/internal/model"
	"github.com/Freeeeeet/tutor_bot/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

type SessionRepository struct {
	db base.DBTX
}

func NewSessionRepository(db base.DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `
	id, tutor_id, requester_id, course_code, topic, start_time, end_time, mode, location,
	max_capacity, is_public, request_type, note, status, proposal, cancelled_by,
	cancellation_reason, participants, version, created_at, updated_at`

// Create создаёт новую сессию
func (r *SessionRepository) Create(ctx context.Context, s *model.TutorSession) error {
	proposal, participants, err := encodeSessionJSON(s)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tutor_sessions (
			tutor_id, requester_id, course_code, topic, start_time, end_time, mode, location,
			max_capacity, is_public, request_type, note, status, proposal, cancelled_by,
			cancellation_reason, participants
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id, version, created_at, updated_at
	`

	err = r.db.QueryRow(
		ctx, query,
		s.TutorID,
		s.RequesterID,
		s.CourseCode,
		s.Topic,
		s.StartTime,
		s.EndTime,
		s.Mode,
		s.Location,
		s.MaxCapacity,
		s.IsPublic,
		s.RequestType,
		s.Note,
		s.Status,
		proposal,
		s.CancelledBy,
		s.CancellationReason,
		participants,
	).Scan(&s.ID, &s.Version, &s.CreatedAt, &s.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	return nil
}

// GetByID получает сессию по ID
func (r *SessionRepository) GetByID(ctx context.Context, id int64) (*model.TutorSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM tutor_sessions WHERE id = $1`

	s, err := scanSession(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session by id: %w", err)
	}

	return s, nil
}

// Update сохраняет изменения, если версия в БД совпадает с версией сессии
func (r *SessionRepository) Update(ctx context.Context, s *model.TutorSession) error {
	proposal, participants, err := encodeSessionJSON(s)
	if err != nil {
		return err
	}

	query := `
		UPDATE tutor_sessions
		SET topic = $1, start_time = $2, end_time = $3, mode = $4, location = $5,
		    max_capacity = $6, is_public = $7, status = $8, proposal = $9, cancelled_by = $10,
		    cancellation_reason = $11, participants = $12,
		    version = version + 1, updated_at = NOW()
		WHERE id = $13 AND version = $14
		RETURNING version, updated_at
	`

	err = r.db.QueryRow(
		ctx, query,
		s.Topic,
		s.StartTime,
		s.EndTime,
		s.Mode,
		s.Location,
		s.MaxCapacity,
		s.IsPublic,
		s.Status,
		proposal,
		s.CancelledBy,
		s.CancellationReason,
		participants,
		s.ID,
		s.Version,
	).Scan(&s.Version, &s.UpdatedAt)

	if err != nil {
		if base.IsNotFound(err) {
			return apperr.NewConflict("session %d was modified concurrently", s.ID)
		}
		return fmt.Errorf("update session: %w", err)
	}

	return nil
}

// FindLiveOverlapping получает живые сессии тутора, пересекающиеся с интервалом
func (r *SessionRepository) FindLiveOverlapping(ctx context.Context, tutorID int64, start, end time.Time, excludeID int64) ([]*model.TutorSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM tutor_sessions
		WHERE tutor_id = $1
		  AND status = ANY($2)
		  AND start_time < $4
		  AND end_time > $3
		  AND id <> $5
		ORDER BY start_time
	`

	rows, err := r.db.Query(ctx, query, tutorID, liveStatuses(), start, end, excludeID)
	if err != nil {
		return nil, fmt.Errorf("find overlapping sessions: %w", err)
	}
	return collectSessions(rows)
}

// ListByTutor получает все сессии тутора, новые сверху
func (r *SessionRepository) ListByTutor(ctx context.Context, tutorID int64) ([]*model.TutorSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM tutor_sessions
		WHERE tutor_id = $1
		ORDER BY start_time DESC
	`

	rows, err := r.db.Query(ctx, query, tutorID)
	if err != nil {
		return nil, fmt.Errorf("get sessions by tutor: %w", err)
	}
	return collectSessions(rows)
}

// ListByStudent получает все сессии, где студент есть в списке участников
func (r *SessionRepository) ListByStudent(ctx context.Context, studentID int64) ([]*model.TutorSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM tutor_sessions
		WHERE participants @> jsonb_build_array(jsonb_build_object('student_id', $1::bigint))
		ORDER BY start_time DESC
	`

	rows, err := r.db.Query(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("get sessions by student: %w", err)
	}
	return collectSessions(rows)
}

// ListPublic получает подтверждённые публичные сессии, которые ещё не начались
func (r *SessionRepository) ListPublic(ctx context.Context, q PublicSessionQuery) ([]*model.TutorSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM tutor_sessions
		WHERE is_public = true
		  AND status = $1
		  AND start_time > $2
		  AND ($3::text = '' OR course_code = $3::text)
		ORDER BY start_time
	`

	rows, err := r.db.Query(ctx, query, model.SessionConfirmed, q.StartsAfter, q.CourseCode)
	if err != nil {
		return nil, fmt.Errorf("get public sessions: %w", err)
	}
	return collectSessions(rows)
}

// ListConfirmedEndedBefore получает подтверждённые сессии, закончившиеся до t
func (r *SessionRepository) ListConfirmedEndedBefore(ctx context.Context, t time.Time) ([]*model.TutorSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM tutor_sessions
		WHERE status = $1 AND end_time < $2
		ORDER BY end_time
	`

	rows, err := r.db.Query(ctx, query, model.SessionConfirmed, t)
	if err != nil {
		return nil, fmt.Errorf("get ended sessions: %w", err)
	}
	return collectSessions(rows)
}

func liveStatuses() []string {
	out := make([]string, 0, len(model.LiveStatuses))
	for _, s := range model.LiveStatuses {
		out = append(out, string(s))
	}
	return out
}

func encodeSessionJSON(s *model.TutorSession) ([]byte, []byte, error) {
	var proposal []byte
	if s.Proposal != nil {
		data, err := json.Marshal(s.Proposal)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal proposal: %w", err)
		}
		proposal = data
	}

	participants := s.Participants
	if participants == nil {
		participants = []model.Participation{}
	}
	data, err := json.Marshal(participants)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal participants: %w", err)
	}

	return proposal, data, nil
}

func scanSession(row pgx.Row) (*model.TutorSession, error) {
	var s model.TutorSession
	var proposal, participants []byte

	err := row.Scan(
		&s.ID,
		&s.TutorID,
		&s.RequesterID,
		&s.CourseCode,
		&s.Topic,
		&s.StartTime,
		&s.EndTime,
		&s.Mode,
		&s.Location,
		&s.MaxCapacity,
		&s.IsPublic,
		&s.RequestType,
		&s.Note,
		&s.Status,
		&proposal,
		&s.CancelledBy,
		&s.CancellationReason,
		&participants,
		&s.Version,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(proposal) > 0 {
		var p model.NegotiationProposal
		if err := json.Unmarshal(proposal, &p); err != nil {
			return nil, fmt.Errorf("unmarshal proposal: %w", err)
		}
		s.Proposal = &p
	}

	if err := json.Unmarshal(participants, &s.Participants); err != nil {
		return nil, fmt.Errorf("unmarshal participants: %w", err)
	}

	return &s, nil
}

func collectSessions(rows pgx.Rows) ([]*model.TutorSession, error) {
	defer rows.Close()

	var sessions []*model.TutorSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}
