package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutor_bot/internal/apperr"
	"github.com/Freeeeeet/tutor_bot/internal/model"
	"github.com/Freeeeeet/tutor_bot/internal/repository"
	"go.uber.org/zap"
)

// AvailabilityService открытые окна туторов
type AvailabilityService struct {
	*Core
}

func NewAvailabilityService(core *Core) *AvailabilityService {
	return &AvailabilityService{Core: core}
}

// CreateSlot публикует новое окно тутора.
// Окно не должно пересекаться ни с другими окнами, ни с живыми сессиями тутора.
func (s *AvailabilityService) CreateSlot(ctx context.Context, tutorID int64, start, end time.Time, modes []model.LocationMode) (*model.AvailabilitySlot, error) {
	if err := validateInterval(start, end); err != nil {
		return nil, err
	}

	allowed, err := normalizeModes(modes)
	if err != nil {
		return nil, err
	}

	// Проверяем что пользователь - тутор
	profile, err := s.profiles.TutorProfileByUser(ctx, tutorID)
	if err != nil {
		return nil, fmt.Errorf("get tutor profile: %w", err)
	}
	if profile == nil {
		return nil, apperr.NewPermission("create slot", tutorID, "user has no tutor profile")
	}

	slot := &model.AvailabilitySlot{
		TutorID:      tutorID,
		StartTime:    start,
		EndTime:      end,
		AllowedModes: allowed,
	}

	unlock := s.locks.Lock(tutorID)
	defer unlock()

	err = s.store.InTutorTx(ctx, tutorID, func(tx repository.Tx) error {
		if err := checkTimelineFree(ctx, tx, tutorID, start, end, 0); err != nil {
			return err
		}
		if err := tx.Slots().Create(ctx, slot); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Availability slot created",
		zap.Int64("slot_id", slot.ID),
		zap.Int64("tutor_id", tutorID),
		zap.Time("start", start),
		zap.Time("end", end),
	)

	return slot, nil
}

// ListOpenSlots получает окна тутора по возрастанию времени начала
func (s *AvailabilityService) ListOpenSlots(ctx context.Context, tutorID int64) ([]*model.AvailabilitySlot, error) {
	slots, err := s.store.Slots().ListByTutor(ctx, tutorID)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

// GetSlot получает окно по ID
func (s *AvailabilityService) GetSlot(ctx context.Context, slotID int64) (*model.AvailabilitySlot, error) {
	slot, err := s.store.Slots().GetByID(ctx, slotID)
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}
	if slot == nil {
		return nil, apperr.NewNotFound("slot", slotID)
	}
	return slot, nil
}

// checkTimelineFree проверяет что [start, end) не пересекается с окнами и живыми сессиями тутора
func checkTimelineFree(ctx context.Context, tx repository.Tx, tutorID int64, start, end time.Time, excludeSessionID int64) error {
	slots, err := tx.Slots().FindOverlapping(ctx, tutorID, start, end)
	if err != nil {
		return fmt.Errorf("find overlapping slots: %w", err)
	}
	if len(slots) > 0 {
		return apperr.NewConflict("time overlaps with an existing availability slot").
			WithInterval(slots[0].StartTime, slots[0].EndTime)
	}

	return checkNoLiveOverlap(ctx, tx, tutorID, start, end, excludeSessionID)
}

// checkNoLiveOverlap проверяет что [start, end) не пересекается с живыми сессиями тутора
func checkNoLiveOverlap(ctx context.Context, tx repository.Tx, tutorID int64, start, end time.Time, excludeSessionID int64) error {
	sessions, err := tx.Sessions().FindLiveOverlapping(ctx, tutorID, start, end, excludeSessionID)
	if err != nil {
		return fmt.Errorf("find overlapping sessions: %w", err)
	}
	if len(sessions) > 0 {
		return apperr.NewConflict("time overlaps with session %d", sessions[0].ID).
			WithInterval(sessions[0].StartTime, sessions[0].EndTime)
	}
	return nil
}

// consumeInterval вырезает [start, end) из всех пересекающихся окон тутора
func (s *AvailabilityService) consumeInterval(ctx context.Context, tx repository.Tx, tutorID int64, start, end time.Time) error {
	slots, err := tx.Slots().FindOverlapping(ctx, tutorID, start, end)
	if err != nil {
		return fmt.Errorf("find slots to consume: %w", err)
	}

	for _, slot := range slots {
		if err := s.splitSlot(ctx, tx, slot, start, end); err != nil {
			return err
		}
	}
	return nil
}

// splitSlot удаляет слот и создаёт остатки [slot.start, start) и [end, slot.end).
// Поглощённое время в доступность не возвращается.
func (s *AvailabilityService) splitSlot(ctx context.Context, tx repository.Tx, slot *model.AvailabilitySlot, start, end time.Time) error {
	if err := tx.Slots().Delete(ctx, slot.ID); err != nil {
		return fmt.Errorf("delete consumed slot: %w", err)
	}

	var remainders []*model.AvailabilitySlot
	if slot.StartTime.Before(start) {
		remainders = append(remainders, &model.AvailabilitySlot{
			TutorID:      slot.TutorID,
			StartTime:    slot.StartTime,
			EndTime:      start,
			AllowedModes: append([]model.LocationMode(nil), slot.AllowedModes...),
		})
	}
	if slot.EndTime.After(end) {
		remainders = append(remainders, &model.AvailabilitySlot{
			TutorID:      slot.TutorID,
			StartTime:    end,
			EndTime:      slot.EndTime,
			AllowedModes: append([]model.LocationMode(nil), slot.AllowedModes...),
		})
	}

	for _, r := range remainders {
		if err := tx.Slots().Create(ctx, r); err != nil {
			return fmt.Errorf("create remainder slot: %w", err)
		}
	}

	s.logger.Debug("Slot split",
		zap.Int64("slot_id", slot.ID),
		zap.Int64("tutor_id", slot.TutorID),
		zap.Time("consumed_start", start),
		zap.Time("consumed_end", end),
		zap.Int("remainders", len(remainders)),
	)

	return nil
}

func normalizeModes(modes []model.LocationMode) ([]model.LocationMode, error) {
	if len(modes) == 0 {
		return nil, apperr.NewValidation("at least one location mode is required").
			WithField("allowed_modes", "must not be empty")
	}

	seen := make(map[model.LocationMode]bool, len(modes))
	out := make([]model.LocationMode, 0, len(modes))
	for _, m := range modes {
		if !m.Valid() {
			return nil, apperr.NewValidation("unknown location mode %q", m).
				WithField("allowed_modes", "must be one of ONLINE CAMPUS_1 CAMPUS_2")
		}
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out, nil
}
