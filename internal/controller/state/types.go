package state

// UserState текущий шаг диалога пользователя
type UserState string

const (
	StateNone UserState = "" // Нет активного диалога

	// Профиль тутора
	StateTutorName UserState = "tutor_name"
	StateTutorBio  UserState = "tutor_bio"

	// Новое окно тутора
	StateSlotInterval UserState = "slot_interval"
	StateSlotModes    UserState = "slot_modes"

	// Запрос студента на занятие
	StateBookingCourse   UserState = "booking_course"
	StateBookingInterval UserState = "booking_interval"
	StateBookingTopic    UserState = "booking_topic"
	StateBookingType     UserState = "booking_type"
	StateBookingCapacity UserState = "booking_capacity"
	StateBookingMode     UserState = "booking_mode"

	// Встречное предложение тутора
	StateProposeInterval UserState = "propose_interval"
	StateProposeMessage  UserState = "propose_message"

	// Правка подтверждённого занятия
	StateEditTopic    UserState = "edit_topic"
	StateEditLocation UserState = "edit_location"
)

// Ключи данных диалога
const (
	KeyDisplayName = "display_name"
	KeySlotID      = "slot_id"
	KeySessionID   = "session_id"
	KeyCourse      = "course"
	KeyStart       = "start"
	KeyEnd         = "end"
	KeyTopic       = "topic"
	KeyRequestType = "request_type"
	KeyCapacity    = "capacity"
)

// UserData состояние и временные данные одного диалога
type UserData struct {
	State UserState
	Data  map[string]any
}
