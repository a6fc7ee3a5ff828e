package service

import (
	"context"

	"github.com/Freeeeeet/tutor_bot/internal/model"
)

// ProfileLookup профили пользователей. Возвращает nil, nil если профиля нет.
type ProfileLookup interface {
	TutorProfileByUser(ctx context.Context, userID int64) (*model.TutorProfile, error)
	StudentProfileByUser(ctx context.Context, userID int64) (*model.StudentProfile, error)
}

// CourseCatalog справочник курсов. Возвращает nil, nil для неизвестного кода.
type CourseCatalog interface {
	CourseByCode(ctx context.Context, code string) (*model.Course, error)
}

// NotificationSink доставка событий пользователям
type NotificationSink interface {
	Notify(ctx context.Context, receiverID int64, typ model.NotificationType, sessionID *int64, message string) error
}

// FeedbackRecordFactory создаёт заготовки отзывов для завершённой сессии
type FeedbackRecordFactory interface {
	CreateRecordsForSession(ctx context.Context, session *model.TutorSession) error
}
