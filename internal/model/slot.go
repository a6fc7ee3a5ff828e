package model

import "time"

type LocationMode string

const (
	LocationOnline  LocationMode = "ONLINE"   // Онлайн, location = ссылка на встречу
	LocationCampus1 LocationMode = "CAMPUS_1" // Кампус 1
	LocationCampus2 LocationMode = "CAMPUS_2" // Кампус 2
)

// Valid проверяет что режим известен
func (m LocationMode) Valid() bool {
	switch m {
	case LocationOnline, LocationCampus1, LocationCampus2:
		return true
	}
	return false
}

// AvailabilitySlot открытое окно времени, опубликованное тутором.
// Слот не изменяется: при бронировании он удаляется и заменяется остатками.
type AvailabilitySlot struct {
	ID           int64          `json:"id"`
	TutorID      int64          `json:"tutor_id"`
	StartTime    time.Time      `json:"start_time"`
	EndTime      time.Time      `json:"end_time"`
	AllowedModes []LocationMode `json:"allowed_modes"`
	IsBooked     bool           `json:"is_booked"` // устаревший флаг, не используется как признак занятости
	CreatedAt    time.Time      `json:"created_at"`
}

// Overlaps проверяет пересечение полуинтервалов [aStart, aEnd) и [bStart, bEnd)
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// Overlaps проверяет пересекается ли слот с интервалом
func (s *AvailabilitySlot) Overlaps(start, end time.Time) bool {
	return Overlaps(s.StartTime, s.EndTime, start, end)
}

// Covers проверяет что слот полностью покрывает интервал
func (s *AvailabilitySlot) Covers(start, end time.Time) bool {
	return !s.StartTime.After(start) && !s.EndTime.Before(end)
}

// SupportsMode проверяет поддерживает ли слот режим проведения
func (s *AvailabilitySlot) SupportsMode(mode LocationMode) bool {
	for _, m := range s.AllowedModes {
		if m == mode {
			return true
		}
	}
	return false
}

func (s *AvailabilitySlot) Clone() *AvailabilitySlot {
	c := *s
	c.AllowedModes = append([]LocationMode(nil), s.AllowedModes...)
	return &c
}
