// Package apperr содержит типизированные ошибки ядра расписания.
//
// Каждый тип сопоставляется со своим sentinel через errors.Is:
//
//	if errors.Is(err, apperr.ErrConflict) { ... }
//
//	var se *apperr.StateError
//	if errors.As(err, &se) { log(se.Status) }
//
// Ни одна из ошибок не повторяется автоматически.
package apperr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
	ErrPermission = errors.New("permission denied")
	ErrState      = errors.New("invalid state")
)

// FieldError ошибка конкретного поля ввода
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError некорректные входные данные
type ValidationError struct {
	Message string
	Fields  []FieldError
}

func NewValidation(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// WithField добавляет ошибку поля
func (e *ValidationError) WithField(field, msg string) *ValidationError {
	e.Fields = append(e.Fields, FieldError{Field: field, Error: msg})
	return e
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation: " + e.Message
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Error)
	}
	return fmt.Sprintf("validation: %s (%s)", e.Message, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ConflictError пересечение по времени, переполнение или повторная запись
type ConflictError struct {
	Message string
	// Интервал, с которым произошёл конфликт (если применимо)
	Start, End time.Time
}

func NewConflict(format string, args ...any) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// WithInterval прикладывает конфликтующий интервал
func (e *ConflictError) WithInterval(start, end time.Time) *ConflictError {
	e.Start, e.End = start, end
	return e
}

func (e *ConflictError) Error() string {
	if e.Start.IsZero() && e.End.IsZero() {
		return "conflict: " + e.Message
	}
	return fmt.Sprintf("conflict: %s [%s, %s)", e.Message,
		e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// NotFoundError неизвестная сессия, слот, тутор или курс
type NotFoundError struct {
	Resource string
	ID       string
}

func NewNotFound(resource string, id any) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: fmt.Sprint(id)}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// PermissionError действие недоступно пользователю
type PermissionError struct {
	Action string
	UserID int64
	Reason string
}

func NewPermission(action string, userID int64, reason string) *PermissionError {
	return &PermissionError{Action: action, UserID: userID, Reason: reason}
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user %d cannot %s: %s", e.UserID, e.Action, e.Reason)
}

func (e *PermissionError) Is(target error) bool { return target == ErrPermission }

// StateError действие недопустимо в текущем статусе
type StateError struct {
	Action string
	Status string
	Reason string
}

func NewState(action, status, reason string) *StateError {
	return &StateError{Action: action, Status: status, Reason: reason}
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s session in status %s: %s", e.Action, e.Status, e.Reason)
}

func (e *StateError) Is(target error) bool { return target == ErrState }
