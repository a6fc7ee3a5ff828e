package repository

import (
	"context"
	"time"

	"github.com/Freeeeeet/tutor_bot/internal/model"
)

// Slots операции над открытыми окнами туторов
type Slots interface {
	Create(ctx context.Context, slot *model.AvailabilitySlot) error
	Delete(ctx context.Context, id int64) error
	// GetByID возвращает nil, если слота нет
	GetByID(ctx context.Context, id int64) (*model.AvailabilitySlot, error)
	ListByTutor(ctx context.Context, tutorID int64) ([]*model.AvailabilitySlot, error)
	// FindOverlapping возвращает слоты тутора, пересекающиеся с [start, end)
	FindOverlapping(ctx context.Context, tutorID int64, start, end time.Time) ([]*model.AvailabilitySlot, error)
	// FindCovering возвращает слот, полностью покрывающий [start, end).
	// Пустой mode означает любой режим.
	FindCovering(ctx context.Context, tutorID int64, start, end time.Time, mode model.LocationMode) (*model.AvailabilitySlot, error)
}

// PublicSessionQuery фильтр для публичных занятий
type PublicSessionQuery struct {
	CourseCode  string
	StartsAfter time.Time
}

// Sessions операции над занятиями
type Sessions interface {
	Create(ctx context.Context, session *model.TutorSession) error
	GetByID(ctx context.Context, id int64) (*model.TutorSession, error)
	// Update сохраняет сессию с проверкой версии и увеличивает Version
	Update(ctx context.Context, session *model.TutorSession) error
	// FindLiveOverlapping возвращает живые сессии тутора, пересекающиеся с [start, end), кроме excludeID
	FindLiveOverlapping(ctx context.Context, tutorID int64, start, end time.Time, excludeID int64) ([]*model.TutorSession, error)
	ListByTutor(ctx context.Context, tutorID int64) ([]*model.TutorSession, error)
	ListByStudent(ctx context.Context, studentID int64) ([]*model.TutorSession, error)
	ListPublic(ctx context.Context, q PublicSessionQuery) ([]*model.TutorSession, error)
	ListConfirmedEndedBefore(ctx context.Context, t time.Time) ([]*model.TutorSession, error)
}

// Tx набор репозиториев в рамках одной транзакции
type Tx interface {
	Slots() Slots
	Sessions() Sessions
}

// Store хранилище с транзакциями, сериализованными по тутору
type Store interface {
	Tx
	// InTutorTx выполняет fn в транзакции, эксклюзивной для таймлайна тутора
	InTutorTx(ctx context.Context, tutorID int64, fn func(tx Tx) error) error
}
