package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutor_bot/internal/apperr"
	"github.com/Freeeeeet/tutor_bot/internal/model"
	"github.com/Freeeeeet/tutor_bot/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

type SlotRepository struct {
	db base.DBTX
}

func NewSlotRepository(db base.DBTX) *SlotRepository {
	return &SlotRepository{db: db}
}

const slotColumns = `id, tutor_id, start_time, end_time, allowed_modes, is_booked, created_at`

// Create создаёт новый слот
func (r *SlotRepository) Create(ctx context.Context, slot *model.AvailabilitySlot) error {
	query := `
		INSERT INTO availability_slots (tutor_id, start_time, end_time, allowed_modes, is_booked)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(
		ctx, query,
		slot.TutorID,
		slot.StartTime,
		slot.EndTime,
		modesToStrings(slot.AllowedModes),
		slot.IsBooked,
	).Scan(&slot.ID, &slot.CreatedAt)

	if err != nil {
		// Exclusion-ограничение на уровне БД страхует от пересечений
		if base.IsOverlapViolation(err) {
			return apperr.NewConflict("time overlaps with an existing availability slot").
				WithInterval(slot.StartTime, slot.EndTime)
		}
		return fmt.Errorf("create slot: %w", err)
	}

	return nil
}

// Delete удаляет слот
func (r *SlotRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.Exec(ctx, `DELETE FROM availability_slots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperr.NewNotFound("slot", id)
	}

	return nil
}

// GetByID получает слот по ID
func (r *SlotRepository) GetByID(ctx context.Context, id int64) (*model.AvailabilitySlot, error) {
	query := `SELECT ` + slotColumns + ` FROM availability_slots WHERE id = $1`

	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("get slot by id: %w", err)
	}

	slots, err := collectSlots(rows)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return nil, nil
	}
	return slots[0], nil
}

// ListByTutor получает все слоты тутора по возрастанию времени начала
func (r *SlotRepository) ListByTutor(ctx context.Context, tutorID int64) ([]*model.AvailabilitySlot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM availability_slots
		WHERE tutor_id = $1
		ORDER BY start_time
	`

	rows, err := r.db.Query(ctx, query, tutorID)
	if err != nil {
		return nil, fmt.Errorf("get slots by tutor: %w", err)
	}
	return collectSlots(rows)
}

// FindOverlapping получает слоты тутора, пересекающиеся с интервалом
func (r *SlotRepository) FindOverlapping(ctx context.Context, tutorID int64, start, end time.Time) ([]*model.AvailabilitySlot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM availability_slots
		WHERE tutor_id = $1
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time
	`

	rows, err := r.db.Query(ctx, query, tutorID, start, end)
	if err != nil {
		return nil, fmt.Errorf("find overlapping slots: %w", err)
	}
	return collectSlots(rows)
}

// FindCovering получает слот, покрывающий интервал целиком
func (r *SlotRepository) FindCovering(ctx context.Context, tutorID int64, start, end time.Time, mode model.LocationMode) (*model.AvailabilitySlot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM availability_slots
		WHERE tutor_id = $1
		  AND start_time <= $2
		  AND end_time >= $3
		  AND ($4::text = '' OR $4::text = ANY(allowed_modes))
		ORDER BY start_time
		LIMIT 1
	`

	rows, err := r.db.Query(ctx, query, tutorID, start, end, string(mode))
	if err != nil {
		return nil, fmt.Errorf("find covering slot: %w", err)
	}

	slots, err := collectSlots(rows)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return nil, nil
	}
	return slots[0], nil
}

func collectSlots(rows pgx.Rows) ([]*model.AvailabilitySlot, error) {
	defer rows.Close()

	var slots []*model.AvailabilitySlot
	for rows.Next() {
		var slot model.AvailabilitySlot
		var modes []string
		err := rows.Scan(
			&slot.ID,
			&slot.TutorID,
			&slot.StartTime,
			&slot.EndTime,
			&modes,
			&slot.IsBooked,
			&slot.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slot.AllowedModes = stringsToModes(modes)
		slots = append(slots, &slot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slots: %w", err)
	}

	return slots, nil
}

func modesToStrings(modes []model.LocationMode) []string {
	out := make([]string, 0, len(modes))
	for _, m := range modes {
		out = append(out, string(m))
	}
	return out
}

func stringsToModes(values []string) []model.LocationMode {
	out := make([]model.LocationMode, 0, len(values))
	for _, v := range values {
		out = append(out, model.LocationMode(v))
	}
	return out
}
