package apperr

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSentinels(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"validation", NewValidation("bad %s", "input"), ErrValidation},
		{"conflict", NewConflict("taken"), ErrConflict},
		{"not found", NewNotFound("session", 7), ErrNotFound},
		{"permission", NewPermission("cancel", 3, "not a participant"), ErrPermission},
		{"state", NewState("confirm", "CANCELLED", "closed"), ErrState},
	}

	all := []error{ErrValidation, ErrConflict, ErrNotFound, ErrPermission, ErrState}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("handle action: %w", tt.err)
			for _, sentinel := range all {
				assert.Equal(t, sentinel == tt.target, errors.Is(wrapped, sentinel), "%v", sentinel)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	start := time.Date(2030, 1, 14, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, "session not found: 7", NewNotFound("session", 7).Error())
	assert.Equal(t, "conflict: Session is full", NewConflict("Session is full").Error())
	assert.Equal(t,
		"conflict: overlap [2030-01-14T10:00:00Z, 2030-01-14T11:00:00Z)",
		NewConflict("overlap").WithInterval(start, start.Add(time.Hour)).Error())
	assert.Equal(t,
		"validation: invalid input (course_code: required; mode: bad)",
		NewValidation("invalid input").WithField("course_code", "required").WithField("mode", "bad").Error())
	assert.Equal(t,
		"cannot confirm session in status CANCELLED: closed",
		NewState("confirm", "CANCELLED", "closed").Error())
	assert.Equal(t,
		"permission denied: user 3 cannot cancel: not a participant",
		NewPermission("cancel", 3, "not a participant").Error())
}

func TestAsTypedError(t *testing.T) {
	err := fmt.Errorf("create: %w", NewConflict("overlap").WithInterval(time.Unix(0, 0), time.Unix(3600, 0)))

	var ce *ConflictError
	assert.True(t, errors.As(err, &ce))
	assert.Equal(t, time.Unix(3600, 0), ce.End)
}
