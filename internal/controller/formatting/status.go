package formatting

import "github.com/Freeeeeet/tutor_bot/internal/model"

// StatusDisplay emoji и текст статуса
type StatusDisplay struct {
	Emoji string
	Text  string
}

// GetSessionStatusDisplay возвращает emoji и текст для статуса занятия
func GetSessionStatusDisplay(status model.SessionStatus) StatusDisplay {
	displays := map[model.SessionStatus]StatusDisplay{
		model.SessionWaitingForTutor:   {"⏳", "Ожидает тутора"},
		model.SessionWaitingForStudent: {"💬", "Ожидает ответа студента"},
		model.SessionConfirmed:         {"✅", "Подтверждено"},
		model.SessionRejected:          {"🚫", "Отклонено"},
		model.SessionCancelled:         {"❌", "Отменено"},
		model.SessionCompleted:         {"✔️", "Завершено"},
	}

	if display, ok := displays[status]; ok {
		return display
	}

	return StatusDisplay{"❓", "Неизвестно"}
}

// GetModeDisplay возвращает подпись режима проведения
func GetModeDisplay(mode model.LocationMode) string {
	switch mode {
	case model.LocationOnline:
		return "💻 Онлайн"
	case model.LocationCampus1:
		return "🏫 Кампус 1"
	case model.LocationCampus2:
		return "🏫 Кампус 2"
	default:
		return string(mode)
	}
}
