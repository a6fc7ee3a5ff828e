package handlers

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Freeeeeet/tutor_bot/internal/model"
	"github.com/go-telegram/bot/models"
)

const (
	dateLayout  = "02.01.2006"
	clockLayout = "15:04"
	// skipInput пропуск необязательного шага диалога
	skipInput = "-"
)

// modeChoices порядок режимов в кнопках, id кнопки = индекс + 1
var modeChoices = []model.LocationMode{model.LocationOnline, model.LocationCampus1, model.LocationCampus2}

// modeChoiceAll кнопка "все режимы" при создании окна
const modeChoiceAll = int64(4)

var requestTypeChoices = []model.RequestType{model.RequestOneOnOne, model.RequestPrivateGroup, model.RequestPublicGroup}

// IsDialogInput обычный текст без команды, ответ на шаг диалога
func IsDialogInput(update *models.Update) bool {
	if update.Message == nil || update.Message.From == nil {
		return false
	}
	text := strings.TrimSpace(update.Message.Text)
	return text != "" && !strings.HasPrefix(text, "/")
}

// parseInterval разбирает "14.01.2030 10:00-11:30" во времени loc
func parseInterval(text string, loc *time.Location) (time.Time, time.Time, error) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return time.Time{}, time.Time{}, ErrInvalidFormat
	}

	day, err := time.ParseInLocation(dateLayout, fields[0], loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidFormat, fields[0])
	}
	return parseClockRange(fields[1], day)
}

// parseClockRange разбирает "10:00-11:30" в пределах дня day
func parseClockRange(text string, day time.Time) (time.Time, time.Time, error) {
	from, to, ok := strings.Cut(strings.TrimSpace(text), "-")
	if !ok {
		return time.Time{}, time.Time{}, ErrInvalidFormat
	}

	start, err := atClock(day, from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := atClock(day, to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end must be after start", ErrInvalidFormat)
	}
	return start, end, nil
}

func atClock(day time.Time, text string) (time.Time, error) {
	clock, err := time.Parse(clockLayout, strings.TrimSpace(text))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: time %q", ErrInvalidFormat, text)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, day.Location()), nil
}

// parseCapacity число мест, от 1
func parseCapacity(text string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 1 {
		return 0, ErrInvalidFormat
	}
	return n, nil
}

// optionalText "-" означает пустое значение
func optionalText(text string) string {
	text = strings.TrimSpace(text)
	if text == skipInput {
		return ""
	}
	return text
}

func modeFromChoice(id int64) (model.LocationMode, error) {
	if id < 1 || id > int64(len(modeChoices)) {
		return "", ErrInvalidFormat
	}
	return modeChoices[id-1], nil
}

// slotModesFromChoice режимы нового окна: один из modeChoices или все сразу
func slotModesFromChoice(id int64) ([]model.LocationMode, error) {
	if id == modeChoiceAll {
		return append([]model.LocationMode(nil), modeChoices...), nil
	}
	mode, err := modeFromChoice(id)
	if err != nil {
		return nil, err
	}
	return []model.LocationMode{mode}, nil
}

func requestTypeFromChoice(id int64) (model.RequestType, error) {
	if id < 1 || id > int64(len(requestTypeChoices)) {
		return "", ErrInvalidFormat
	}
	return requestTypeChoices[id-1], nil
}

func choiceID[T comparable](choices []T, value T) int64 {
	for i, c := range choices {
		if c == value {
			return int64(i + 1)
		}
	}
	return 0
}

// parseSessionID положительный ID из аргумента команды
func parseSessionID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidFormat
	}
	return id, nil
}

// parseAttendanceArgs аргументы /attendance <занятие> <студент> <статус>
func parseAttendanceArgs(args []string) (int64, int64, model.ParticipationStatus, error) {
	if len(args) != 3 {
		return 0, 0, "", ErrInvalidFormat
	}

	sessionID, err := parseSessionID(args[0])
	if err != nil {
		return 0, 0, "", err
	}
	studentID, err := parseSessionID(args[1])
	if err != nil {
		return 0, 0, "", err
	}

	status := model.ParticipationStatus(strings.ToLower(args[2]))
	if !status.Valid() {
		return 0, 0, "", ErrInvalidFormat
	}
	return sessionID, studentID, status, nil
}
