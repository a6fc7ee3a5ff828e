package formatting

import (
	"fmt"
	"html"

	"github.com/Freeeeeet/tutor_bot/internal/model"
)

// FormatNotification строка истории уведомлений, непрочитанные помечены
func FormatNotification(n *model.Notification) string {
	mark := ""
	if !n.IsRead {
		mark = "🆕 "
	}

	text := fmt.Sprintf("%s%s <b>%s</b>\n%s",
		mark,
		FormatDateTime(n.CreatedAt),
		html.EscapeString(n.Title),
		html.EscapeString(n.Message),
	)
	if n.SessionID != nil {
		text += fmt.Sprintf("\n/session %d", *n.SessionID)
	}
	return text
}

// FormatFeedbackRecord строка ожидающего отзыва
func FormatFeedbackRecord(rec *model.FeedbackRecord) string {
	return fmt.Sprintf("⭐ Занятие #%d, отзыв до %s", rec.SessionID, FormatDateTime(rec.Deadline))
}
