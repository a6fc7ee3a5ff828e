package model

import "time"

type SessionStatus string

const (
	SessionWaitingForTutor   SessionStatus = "WAITING_FOR_TUTOR"   // Студент отправил запрос
	SessionWaitingForStudent SessionStatus = "WAITING_FOR_STUDENT" // Тутор предложил изменения
	SessionConfirmed         SessionStatus = "CONFIRMED"
	SessionRejected          SessionStatus = "REJECTED"
	SessionCancelled         SessionStatus = "CANCELLED"
	SessionCompleted         SessionStatus = "COMPLETED"
)

// IsLive возвращает true для статусов, занимающих время тутора
func (s SessionStatus) IsLive() bool {
	return s == SessionWaitingForTutor || s == SessionWaitingForStudent || s == SessionConfirmed
}

// IsTerminal возвращает true для конечных статусов
func (s SessionStatus) IsTerminal() bool {
	return s == SessionRejected || s == SessionCancelled || s == SessionCompleted
}

// LiveStatuses статусы, которые блокируют пересечения по времени
var LiveStatuses = []SessionStatus{
	SessionWaitingForTutor,
	SessionWaitingForStudent,
	SessionConfirmed,
}

type RequestType string

const (
	RequestOneOnOne     RequestType = "ONE_ON_ONE"
	RequestPrivateGroup RequestType = "PRIVATE_GROUP"
	RequestPublicGroup  RequestType = "PUBLIC_GROUP"
)

type ParticipationStatus string

const (
	ParticipationConfirmed ParticipationStatus = "confirmed"
	ParticipationAttended  ParticipationStatus = "attended"
	ParticipationAbsent    ParticipationStatus = "absent"
	ParticipationCancelled ParticipationStatus = "cancelled"
)

// Valid проверяет что статус участия известен
func (s ParticipationStatus) Valid() bool {
	switch s {
	case ParticipationConfirmed, ParticipationAttended, ParticipationAbsent, ParticipationCancelled:
		return true
	}
	return false
}

const (
	CancelledByTutor   = "TUTOR"
	CancelledByStudent = "STUDENT"
	CancelledBySystem  = "SYSTEM"
)

// Participation запись участника занятия
type Participation struct {
	StudentID int64               `json:"student_id"`
	Status    ParticipationStatus `json:"status"`
	JoinedAt  time.Time           `json:"joined_at"`
}

// NegotiationProposal встречное предложение тутора.
// Существует только пока сессия в статусе WAITING_FOR_STUDENT.
type NegotiationProposal struct {
	NewTopic       *string       `json:"new_topic,omitempty" validate:"omitempty,max=200"`
	NewStartTime   *time.Time    `json:"new_start_time,omitempty"`
	NewEndTime     *time.Time    `json:"new_end_time,omitempty"`
	NewMode        *LocationMode `json:"new_mode,omitempty" validate:"omitempty,oneof=ONLINE CAMPUS_1 CAMPUS_2"`
	NewLocation    *string       `json:"new_location,omitempty" validate:"omitempty,max=500"`
	NewMaxCapacity *int          `json:"new_max_capacity,omitempty" validate:"omitempty,min=1"`
	NewIsPublic    *bool         `json:"new_is_public,omitempty"`
	Message        string        `json:"message" validate:"required,max=2000"`
}

// ConfirmDetails финальные параметры занятия при подтверждении
type ConfirmDetails struct {
	Topic         string `json:"topic" validate:"max=200"`
	MaxCapacity   int    `json:"max_capacity" validate:"min=1"`
	IsPublic      bool   `json:"is_public"`
	FinalLocation string `json:"final_location" validate:"max=500"`
}

type TutorSession struct {
	ID                 int64                `json:"id"`
	TutorID            int64                `json:"tutor_id"`
	RequesterID        int64                `json:"requester_id"` // студент, создавший запрос
	CourseCode         string               `json:"course_code"`
	Topic              string               `json:"topic"`
	StartTime          time.Time            `json:"start_time"`
	EndTime            time.Time            `json:"end_time"`
	Mode               LocationMode         `json:"mode"`
	Location           string               `json:"location"`
	MaxCapacity        int                  `json:"max_capacity"`
	IsPublic           bool                 `json:"is_public"`
	RequestType        RequestType          `json:"session_request_type"`
	Note               string               `json:"note"`
	Status             SessionStatus        `json:"status"`
	Proposal           *NegotiationProposal `json:"proposal,omitempty"`
	CancelledBy        string               `json:"cancelled_by,omitempty"`
	CancellationReason string               `json:"cancellation_reason,omitempty"`
	Participants       []Participation      `json:"participants"` // единственный источник состава группы
	Version            int64                `json:"version"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

// StudentIDs возвращает упорядоченный список студентов (производное представление)
func (s *TutorSession) StudentIDs() []int64 {
	ids := make([]int64, 0, len(s.Participants))
	for _, p := range s.Participants {
		ids = append(ids, p.StudentID)
	}
	return ids
}

// ActiveStudentIDs возвращает студентов, не отменивших участие
func (s *TutorSession) ActiveStudentIDs() []int64 {
	var ids []int64
	for _, p := range s.Participants {
		if p.Status != ParticipationCancelled {
			ids = append(ids, p.StudentID)
		}
	}
	return ids
}

// Participant возвращает запись участия студента или nil
func (s *TutorSession) Participant(studentID int64) *Participation {
	for i := range s.Participants {
		if s.Participants[i].StudentID == studentID {
			return &s.Participants[i]
		}
	}
	return nil
}

func (s *TutorSession) HasStudent(studentID int64) bool {
	return s.Participant(studentID) != nil
}

// AddStudent добавляет студента в конец списка
func (s *TutorSession) AddStudent(studentID int64, at time.Time) {
	s.Participants = append(s.Participants, Participation{
		StudentID: studentID,
		Status:    ParticipationConfirmed,
		JoinedAt:  at,
	})
}

// RemoveStudent физически удаляет студента из списка
func (s *TutorSession) RemoveStudent(studentID int64) bool {
	for i, p := range s.Participants {
		if p.StudentID == studentID {
			s.Participants = append(s.Participants[:i], s.Participants[i+1:]...)
			return true
		}
	}
	return false
}

// IsFull проверяет заполненность по размеру списка участников
func (s *TutorSession) IsFull() bool {
	return len(s.Participants) >= s.MaxCapacity
}

// AllCancelled возвращает true если активных участников не осталось
func (s *TutorSession) AllCancelled() bool {
	return len(s.ActiveStudentIDs()) == 0
}

// IsRequester проверяет является ли студент автором запроса
func (s *TutorSession) IsRequester(studentID int64) bool {
	return s.RequesterID == studentID
}

func (s *TutorSession) Clone() *TutorSession {
	c := *s
	c.Participants = append([]Participation(nil), s.Participants...)
	if s.Proposal != nil {
		p := *s.Proposal
		c.Proposal = &p
	}
	return &c
}
