package formatting

import (
	"fmt"
	"html"
	"strings"

	"github.com/Freeeeeet/tutor_bot/internal/model"
)

// FormatSlot строка открытого окна тутора
func FormatSlot(slot *model.AvailabilitySlot, index int) string {
	modes := make([]string, 0, len(slot.AllowedModes))
	for _, m := range slot.AllowedModes {
		modes = append(modes, GetModeDisplay(m))
	}

	return fmt.Sprintf("%d. %s %s\n   %s",
		index,
		GetWeekdayShortName(slot.StartTime.Weekday()),
		FormatTimeRange(slot.StartTime, slot.EndTime),
		strings.Join(modes, ", "),
	)
}

// FormatSessionShort краткая карточка занятия для списков
func FormatSessionShort(session *model.TutorSession) string {
	display := GetSessionStatusDisplay(session.Status)

	topic := session.Topic
	if topic == "" {
		topic = "без темы"
	}

	return fmt.Sprintf("%s #%d %s\n   📚 %s · %s\n   📊 %s",
		display.Emoji,
		session.ID,
		FormatTimeRange(session.StartTime, session.EndTime),
		html.EscapeString(session.CourseCode),
		html.EscapeString(topic),
		display.Text,
	)
}

// FormatSession подробная карточка занятия
func FormatSession(session *model.TutorSession, tutorName string) string {
	display := GetSessionStatusDisplay(session.Status)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s <b>Занятие #%d</b>\n\n", display.Emoji, session.ID)
	fmt.Fprintf(&sb, "📚 Курс: %s\n", html.EscapeString(session.CourseCode))
	if session.Topic != "" {
		fmt.Fprintf(&sb, "📝 Тема: %s\n", html.EscapeString(session.Topic))
	}
	if tutorName != "" {
		fmt.Fprintf(&sb, "👨‍🏫 Тутор: %s\n", html.EscapeString(tutorName))
	}
	fmt.Fprintf(&sb, "📅 Время: %s (%s)\n",
		FormatTimeRange(session.StartTime, session.EndTime),
		FormatDuration(int(session.EndTime.Sub(session.StartTime).Minutes())),
	)
	fmt.Fprintf(&sb, "📍 %s", GetModeDisplay(session.Mode))
	if session.Location != "" {
		fmt.Fprintf(&sb, ": %s", html.EscapeString(session.Location))
	}
	sb.WriteString("\n")

	active := len(session.ActiveStudentIDs())
	fmt.Fprintf(&sb, "👥 %d %s из %d\n", active, PluralizeStudents(active), session.MaxCapacity)
	if free := session.MaxCapacity - len(session.Participants); session.IsPublic && free > 0 {
		fmt.Fprintf(&sb, "🪑 Свободно: %d %s\n", free, PluralizeSeats(free))
	}
	fmt.Fprintf(&sb, "📊 Статус: %s", display.Text)

	if session.CancellationReason != "" {
		fmt.Fprintf(&sb, "\n💬 Причина: %s", html.EscapeString(session.CancellationReason))
	}
	if session.Proposal != nil {
		writeProposal(&sb, session)
	}

	return sb.String()
}

// writeProposal изменения, которые предлагает тутор
func writeProposal(sb *strings.Builder, session *model.TutorSession) {
	p := session.Proposal
	fmt.Fprintf(sb, "\n\n💬 Предложение тутора: %s", html.EscapeString(p.Message))

	if p.NewStartTime != nil || p.NewEndTime != nil {
		start, end := session.StartTime, session.EndTime
		if p.NewStartTime != nil {
			start = *p.NewStartTime
		}
		if p.NewEndTime != nil {
			end = *p.NewEndTime
		}
		fmt.Fprintf(sb, "\n   🕐 Новое время: %s", FormatTimeRange(start, end))
	}
	if p.NewTopic != nil {
		fmt.Fprintf(sb, "\n   📝 Новая тема: %s", html.EscapeString(*p.NewTopic))
	}
	if p.NewMode != nil {
		fmt.Fprintf(sb, "\n   📍 Формат: %s", GetModeDisplay(*p.NewMode))
	}
	if p.NewLocation != nil {
		fmt.Fprintf(sb, "\n   🏷 Место: %s", html.EscapeString(*p.NewLocation))
	}
	if p.NewMaxCapacity != nil {
		fmt.Fprintf(sb, "\n   👥 Мест: %d", *p.NewMaxCapacity)
	}
}

var participationLabels = map[model.ParticipationStatus]string{
	model.ParticipationConfirmed: "записан",
	model.ParticipationAttended:  "был",
	model.ParticipationAbsent:    "не пришёл",
	model.ParticipationCancelled: "отменил",
}

// FormatRoster состав занятия с ID студентов для /attendance
func FormatRoster(session *model.TutorSession) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "👥 <b>Состав занятия #%d</b>", session.ID)

	if len(session.Participants) == 0 {
		sb.WriteString("\n\nПока никого нет.")
		return sb.String()
	}

	sb.WriteString("\n")
	for _, p := range session.Participants {
		label, ok := participationLabels[p.Status]
		if !ok {
			label = string(p.Status)
		}
		fmt.Fprintf(&sb, "\n• #%d %s", p.StudentID, label)
	}
	return sb.String()
}
