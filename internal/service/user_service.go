package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Freeeeeet/tutor_bot/internal/apperr"
	"github.com/Freeeeeet/tutor_bot/internal/model"
	"go.uber.org/zap"
)

// UserStore пользователи Telegram
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
	GetByID(ctx context.Context, id int64) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
}

// ProfileStore создание профилей студента и тутора
type ProfileStore interface {
	CreateStudentProfile(ctx context.Context, p *model.StudentProfile) error
	CreateTutorProfile(ctx context.Context, p *model.TutorProfile) error
}

// TutorApplication данные для профиля тутора
type TutorApplication struct {
	DisplayName string `json:"display_name" validate:"required,min=2,max=100"`
	Bio         string `json:"bio" validate:"max=1000"`
}

type UserService struct {
	userRepo    UserStore
	profileRepo ProfileStore
	logger      *zap.Logger
}

func NewUserService(userRepo UserStore, profileRepo ProfileStore, logger *zap.Logger) *UserService {
	return &UserService{
		userRepo:    userRepo,
		profileRepo: profileRepo,
		logger:      logger,
	}
}

// RegisterUser регистрирует или обновляет пользователя
func (s *UserService) RegisterUser(ctx context.Context, telegramID int64, username, firstName, lastName string) (*model.User, error) {
	// Проверяем существует ли пользователь
	existingUser, err := s.userRepo.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("check existing user: %w", err)
	}

	// Если пользователь уже существует, обновляем данные
	if existingUser != nil {
		existingUser.Username = username
		existingUser.FirstName = firstName
		existingUser.LastName = lastName

		if err := s.userRepo.Update(ctx, existingUser); err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}

		s.logger.Info("User updated",
			zap.Int64("telegram_id", telegramID),
			zap.String("username", username),
		)

		return existingUser, nil
	}

	// Создаём нового пользователя
	user := &model.User{
		TelegramID: telegramID,
		Username:   username,
		FirstName:  firstName,
		LastName:   lastName,
		Roles:      []model.Role{model.RoleStudent}, // По умолчанию студент
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		// Параллельный /start успел создать пользователя
		if errors.Is(err, apperr.ErrConflict) {
			return s.userRepo.GetByTelegramID(ctx, telegramID)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	err = s.profileRepo.CreateStudentProfile(ctx, &model.StudentProfile{
		UserID:      user.ID,
		DisplayName: user.FullName(),
	})
	if err != nil {
		return nil, fmt.Errorf("create student profile: %w", err)
	}

	s.logger.Info("New user registered",
		zap.Int64("user_id", user.ID),
		zap.Int64("telegram_id", telegramID),
		zap.String("username", username),
	)

	return user, nil
}

// GetByTelegramID получает пользователя по Telegram ID
func (s *UserService) GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	return s.userRepo.GetByTelegramID(ctx, telegramID)
}

// GetByID получает пользователя по внутреннему ID
func (s *UserService) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// BecomeTutor добавляет пользователю роль тутора и создаёт профиль.
// Повторный вызов обновляет профиль.
func (s *UserService) BecomeTutor(ctx context.Context, userID int64, app TutorApplication) (*model.User, error) {
	app.DisplayName = strings.TrimSpace(app.DisplayName)
	app.Bio = strings.TrimSpace(app.Bio)
	if err := validateStruct(app); err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, apperr.NewNotFound("user", userID)
	}

	if !slices.Contains(user.Roles, model.RoleTutor) {
		user.Roles = append(user.Roles, model.RoleTutor)
		if err := s.userRepo.Update(ctx, user); err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
	}

	err = s.profileRepo.CreateTutorProfile(ctx, &model.TutorProfile{
		UserID:      user.ID,
		DisplayName: app.DisplayName,
		Bio:         app.Bio,
	})
	if err != nil {
		return nil, fmt.Errorf("create tutor profile: %w", err)
	}

	s.logger.Info("User became tutor",
		zap.Int64("user_id", user.ID),
		zap.String("display_name", app.DisplayName),
	)

	return user, nil
}
