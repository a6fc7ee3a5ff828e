package config

import (
	"fmt"
	"log"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Policy временные константы правил бронирования
type Policy struct {
	// LateCancelWindow отмена ближе к началу считается поздней
	LateCancelWindow time.Duration
	// Окно отметки посещаемости: [start - ParticipationEditBefore, start + ParticipationEditAfter]
	ParticipationEditBefore time.Duration
	ParticipationEditAfter  time.Duration
	// FeedbackDeadline срок на отзыв после завершения занятия
	FeedbackDeadline time.Duration
}

// DefaultPolicy значения по умолчанию
func DefaultPolicy() Policy {
	return Policy{
		LateCancelWindow:        2 * time.Hour,
		ParticipationEditBefore: 30 * time.Minute,
		ParticipationEditAfter:  24 * time.Hour,
		FeedbackDeadline:        7 * 24 * time.Hour,
	}
}

type Config struct {
	TelegramToken        string
	DBDSN                string
	Environment          string
	LogLevel             string
	MigrationsDir        string
	AutoCompleteInterval time.Duration
	// Timezone в нём бот разбирает и показывает время
	Timezone *time.Location
	Policy   Policy
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	return FromEnv(os.Getenv)
}

// FromEnv собирает конфиг из функции чтения переменных окружения
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		DBDSN:         getenv("DB_DSN"),
		TelegramToken: getenv("TELEGRAM_TOKEN"),
		Environment:   getenv("ENV"),
		LogLevel:      getenv("LOG_LEVEL"),
		MigrationsDir: getenv("MIGRATIONS_DIR"),
		Policy:        DefaultPolicy(),
	}

	// Устанавливаем дефолтные значения
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.MigrationsDir == "" {
		cfg.MigrationsDir = "migrations"
	}

	durations := []struct {
		key    string
		target *time.Duration
		def    time.Duration
	}{
		{"AUTO_COMPLETE_INTERVAL", &cfg.AutoCompleteInterval, 30 * time.Minute},
		{"LATE_CANCEL_WINDOW", &cfg.Policy.LateCancelWindow, cfg.Policy.LateCancelWindow},
		{"PARTICIPATION_EDIT_BEFORE", &cfg.Policy.ParticipationEditBefore, cfg.Policy.ParticipationEditBefore},
		{"PARTICIPATION_EDIT_AFTER", &cfg.Policy.ParticipationEditAfter, cfg.Policy.ParticipationEditAfter},
		{"FEEDBACK_DEADLINE", &cfg.Policy.FeedbackDeadline, cfg.Policy.FeedbackDeadline},
	}
	for _, d := range durations {
		value, err := parseDuration(getenv(d.key), d.def)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.key, err)
		}
		*d.target = value
	}

	tz := getenv("BOT_TIMEZONE")
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("BOT_TIMEZONE: %w", err)
	}
	cfg.Timezone = loc

	// Проверяем обязательные поля
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required but not set")
	}

	return cfg, nil
}

func parseDuration(raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", d)
	}
	return d, nil
}
