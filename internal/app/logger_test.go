package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		env       string
		level     string
		wantLevel zapcore.Level
	}{
		{"development default", "development", "", zapcore.DebugLevel},
		{"production default", "production", "", zapcore.InfoLevel},
		{"explicit level", "production", "warn", zapcore.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.env, tt.level)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLevel, zapcore.LevelOf(logger.Core()))
		})
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger("development", "loud")
	assert.Error(t, err)
}
