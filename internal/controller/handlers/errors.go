package handlers

import (
	"errors"

	"github.com/Freeeeeet/tutor_bot/internal/apperr"
)

// Ошибки уровня бота
var (
	ErrUserNotFound  = errors.New("user not found")
	ErrInvalidFormat = errors.New("invalid callback format")
	ErrDialogExpired = errors.New("dialog data expired")
)

// ErrorMessage возвращает пользовательское сообщение для ошибки
func ErrorMessage(err error) string {
	var conflict *apperr.ConflictError
	var notFound *apperr.NotFoundError

	switch {
	case errors.Is(err, ErrUserNotFound):
		return "❌ Пользователь не найден. Используйте /start"
	case errors.Is(err, ErrInvalidFormat):
		return "❌ Неверный формат данных"
	case errors.Is(err, ErrDialogExpired):
		return "⚠️ Диалог устарел, начните заново"
	case errors.As(err, &conflict) && conflict.Message == "Session is full":
		return "😔 Свободных мест нет"
	case errors.Is(err, apperr.ErrConflict):
		return "⚠️ Это время уже занято"
	case errors.As(err, &notFound):
		return notFoundMessage(notFound.Resource)
	case errors.Is(err, apperr.ErrNotFound):
		return "❌ Не найдено"
	case errors.Is(err, apperr.ErrPermission):
		return "⛔ Недостаточно прав для этого действия"
	case errors.Is(err, apperr.ErrState):
		return "⚠️ Действие недоступно в текущем статусе занятия"
	case errors.Is(err, apperr.ErrValidation):
		return "❌ Некорректные данные"
	default:
		return "❌ Произошла ошибка. Попробуйте позже."
	}
}

func notFoundMessage(resource string) string {
	switch resource {
	case "session":
		return "❌ Занятие не найдено"
	case "user":
		return "❌ Пользователь не найден. Используйте /start"
	case "slot":
		return "❌ Окно тутора не найдено"
	case "course":
		return "❌ Курс не найден. Проверьте код курса"
	case "tutor":
		return "❌ Тутор не найден"
	case "student":
		return "❌ Профиль студента не найден"
	case "participant":
		return "❌ Студент не записан на это занятие"
	default:
		return "❌ Не найдено"
	}
}

// isDomainError ожидаемые ошибки пользовательского ввода и правил
func isDomainError(err error) bool {
	for _, domain := range []error{
		apperr.ErrValidation, apperr.ErrConflict, apperr.ErrNotFound,
		apperr.ErrPermission, apperr.ErrState,
		ErrUserNotFound, ErrInvalidFormat, ErrDialogExpired,
	} {
		if errors.Is(err, domain) {
			return true
		}
	}
	return false
}
