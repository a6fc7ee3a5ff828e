package service

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutor_bot/internal/apperr"
	"github.com/Freeeeeet/tutor_bot/internal/model"
	"github.com/Freeeeeet/tutor_bot/internal/repository"
	"go.uber.org/zap"
)

const (
	actionJoin   = "join"
	actionLeave  = "leave"
	actionInvite = "accept invite"
)

// InviteAction ответ на приглашение в закрытую группу
type InviteAction string

const (
	InviteAccept  InviteAction = "accept"
	InviteDecline InviteAction = "decline"
)

// LeaveResult что произошло при выходе из публичной сессии
type LeaveResult struct {
	Session *model.TutorSession
	// Removed студент полностью удалён из состава
	Removed bool
	// MarkedCancelled студент остался в составе со статусом cancelled
	MarkedCancelled  bool
	IsRequester      bool
	LateLeave        bool
	SessionCancelled bool
	HoursUntilStart  float64
}

// ParticipationService состав групповых и публичных сессий
type ParticipationService struct {
	*Core
}

func NewParticipationService(core *Core) *ParticipationService {
	return &ParticipationService{Core: core}
}

// JoinPublicSession записывает студента в публичную подтверждённую сессию
func (s *ParticipationService) JoinPublicSession(ctx context.Context, studentID, sessionID int64) (*model.TutorSession, error) {
	student, err := s.profiles.StudentProfileByUser(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("get student profile: %w", err)
	}
	if student == nil {
		return nil, apperr.NewNotFound("student", studentID)
	}

	session, err := s.mutate(ctx, sessionID, func(_ repository.Tx, session *model.TutorSession, fx *effects) error {
		if err := s.checkPublicOpen(actionJoin, studentID, session); err != nil {
			return err
		}
		if session.TutorID == studentID {
			return apperr.NewValidation("tutor cannot join their own session")
		}

		if p := session.Participant(studentID); p != nil {
			if p.Status != model.ParticipationCancelled {
				return apperr.NewConflict("student is already enrolled in this session")
			}
			// Повторная запись после выхода: место в составе уже занято этим студентом
			p.Status = model.ParticipationConfirmed
			p.JoinedAt = s.now()
		} else {
			if session.IsFull() {
				return apperr.NewConflict("Session is full")
			}
			session.AddStudent(studentID, s.now())
		}

		when := formatInterval(session.StartTime, session.EndTime)
		fx.notify(studentID, model.NotificationParticipantJoined, session.ID,
			fmt.Sprintf("Вы записаны на занятие %s", when))
		fx.notify(session.TutorID, model.NotificationParticipantJoined, session.ID,
			fmt.Sprintf("%s присоединился к занятию %s", student.DisplayName, when))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Student joined public session",
		zap.Int64("session_id", sessionID),
		zap.Int64("student_id", studentID),
		zap.Int("participants", len(session.ActiveStudentIDs())),
	)

	return session, nil
}

// LeavePublicSession выход студента из публичной сессии.
// Автор запроса и поздно вышедшие остаются в составе со статусом cancelled,
// остальные удаляются. Если активных участников не осталось, сессия отменяется.
func (s *ParticipationService) LeavePublicSession(ctx context.Context, studentID, sessionID int64) (*LeaveResult, error) {
	result := &LeaveResult{}

	session, err := s.mutate(ctx, sessionID, func(_ repository.Tx, session *model.TutorSession, fx *effects) error {
		*result = LeaveResult{}

		if err := s.checkPublicOpen(actionLeave, studentID, session); err != nil {
			return err
		}

		p := session.Participant(studentID)
		if p == nil {
			return apperr.NewPermission(actionLeave, studentID, "student is not enrolled in this session")
		}
		if p.Status == model.ParticipationCancelled {
			return apperr.NewConflict("student has already left this session")
		}

		result.IsRequester = session.IsRequester(studentID)
		result.HoursUntilStart = s.hoursUntil(session.StartTime)
		result.LateLeave = result.HoursUntilStart <= s.policy.LateCancelWindow.Hours()

		if result.IsRequester || result.LateLeave {
			p.Status = model.ParticipationCancelled
			result.MarkedCancelled = true
		} else {
			session.RemoveStudent(studentID)
			result.Removed = true
		}

		when := formatInterval(session.StartTime, session.EndTime)
		if session.AllCancelled() {
			markCancelled(session, model.CancelledByStudent, "All participants left.")
			result.SessionCancelled = true
			fx.notify(session.TutorID, model.NotificationSessionCancelled, session.ID,
				fmt.Sprintf("Все участники покинули занятие %s, оно отменено", when))
			return nil
		}

		fx.notify(session.TutorID, model.NotificationParticipantLeft, session.ID,
			fmt.Sprintf("Участник покинул занятие %s", when))
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Session = session

	if result.LateLeave {
		s.logger.Warn("Late leave",
			zap.Int64("session_id", sessionID),
			zap.Int64("student_id", studentID),
			zap.Float64("hours_until_start", result.HoursUntilStart),
		)
	}
	s.logger.Info("Student left public session",
		zap.Int64("session_id", sessionID),
		zap.Int64("student_id", studentID),
		zap.Bool("removed", result.Removed),
		zap.Bool("session_cancelled", result.SessionCancelled),
	)

	return result, nil
}

// RespondToInvite ответ на приглашение в закрытую группу. decline ничего не меняет.
func (s *ParticipationService) RespondToInvite(ctx context.Context, studentID, sessionID int64, action InviteAction) (*model.TutorSession, error) {
	switch action {
	case InviteDecline:
		return loadSession(ctx, s.store.Sessions(), sessionID)
	case InviteAccept:
	default:
		return nil, apperr.NewValidation("unknown invite action %q", action)
	}

	student, err := s.profiles.StudentProfileByUser(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("get student profile: %w", err)
	}
	if student == nil {
		return nil, apperr.NewNotFound("student", studentID)
	}

	session, err := s.mutate(ctx, sessionID, func(_ repository.Tx, session *model.TutorSession, fx *effects) error {
		if session.RequestType != model.RequestPrivateGroup {
			return apperr.NewPermission(actionInvite, studentID, "session is not a private group")
		}
		if session.Status.IsTerminal() {
			return apperr.NewState(actionInvite, string(session.Status), "session is closed")
		}
		if session.TutorID == studentID {
			return apperr.NewValidation("tutor cannot join their own session")
		}

		p := session.Participant(studentID)
		if p != nil && p.Status != model.ParticipationCancelled {
			return errUnchanged
		}
		if p == nil && session.IsFull() {
			return apperr.NewConflict("Session is full")
		}

		if p != nil {
			p.Status = model.ParticipationConfirmed
			p.JoinedAt = s.now()
		} else {
			session.AddStudent(studentID, s.now())
		}

		fx.notify(session.TutorID, model.NotificationParticipantJoined, session.ID,
			fmt.Sprintf("%s принял приглашение, занятие %s", student.DisplayName, formatInterval(session.StartTime, session.EndTime)))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Invite accepted",
		zap.Int64("session_id", sessionID),
		zap.Int64("student_id", studentID),
	)

	return session, nil
}

// checkPublicOpen общие условия join/leave: публичная, подтверждённая, ещё не началась
func (s *ParticipationService) checkPublicOpen(action string, studentID int64, session *model.TutorSession) error {
	if !session.IsPublic {
		return apperr.NewPermission(action, studentID, "session is not public")
	}
	if session.Status != model.SessionConfirmed {
		return apperr.NewState(action, string(session.Status), "session is not confirmed")
	}
	if !session.StartTime.After(s.now()) {
		return apperr.NewState(action, string(session.Status), "session has already started")
	}
	return nil
}
