package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutor_bot/internal/apperr"
	"github.com/Freeeeeet/tutor_bot/internal/model"
	"github.com/Freeeeeet/tutor_bot/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultTutorDeclineReason = "Tutor declined request."
	defaultUserCancelReason   = "User cancelled."
)

// BookingRequest запрос студента на занятие
type BookingRequest struct {
	StudentID   int64              `json:"student_id" validate:"required"`
	TutorID     int64              `json:"tutor_id" validate:"required"`
	CourseCode  string             `json:"course_code" validate:"required,max=32"`
	StartTime   time.Time          `json:"start_time" validate:"required"`
	EndTime     time.Time          `json:"end_time" validate:"required"`
	Mode        model.LocationMode `json:"mode" validate:"required,oneof=ONLINE CAMPUS_1 CAMPUS_2"`
	RequestType model.RequestType  `json:"session_request_type" validate:"required,oneof=ONE_ON_ONE PRIVATE_GROUP PUBLIC_GROUP"`
	Capacity    *int               `json:"max_capacity" validate:"omitempty,min=1"`
	Topic       string             `json:"topic" validate:"max=200"`
	Note        string             `json:"note" validate:"max=1000"`
}

// ResolveAction ответ студента на предложение тутора
type ResolveAction string

const (
	ResolveAccept ResolveAction = "accept"
	ResolveReject ResolveAction = "reject"
)

// SessionActionRequest параметры HandleSessionAction
type SessionActionRequest struct {
	Action  SessionAction         `json:"action" validate:"required,oneof=confirm reject cancel complete"`
	Reason  string                `json:"reason" validate:"max=500"`
	Details *model.ConfirmDetails `json:"confirm_details"`
}

// CancelResult итог отмены занятия
type CancelResult struct {
	Session *model.TutorSession
	// LateCancellation отмена ближе LateCancelWindow к началу, штрафное событие
	LateCancellation bool
	HoursUntilStart  float64
}

// BookingService машина состояний сессии
type BookingService struct {
	*Core
	availability *AvailabilityService
}

func NewBookingService(core *Core, availability *AvailabilityService) *BookingService {
	return &BookingService{Core: core, availability: availability}
}

// CreateBookingRequest создаёт сессию в статусе WAITING_FOR_TUTOR.
// Окно тутора не трогается до подтверждения.
func (s *BookingService) CreateBookingRequest(ctx context.Context, req BookingRequest) (*model.TutorSession, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if err := validateInterval(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}
	if req.StudentID == req.TutorID {
		return nil, apperr.NewValidation("tutor cannot book a session with themselves")
	}

	student, err := s.profiles.StudentProfileByUser(ctx, req.StudentID)
	if err != nil {
		return nil, fmt.Errorf("get student profile: %w", err)
	}
	if student == nil {
		return nil, apperr.NewNotFound("student", req.StudentID)
	}

	tutor, err := s.profiles.TutorProfileByUser(ctx, req.TutorID)
	if err != nil {
		return nil, fmt.Errorf("get tutor profile: %w", err)
	}
	if tutor == nil {
		return nil, apperr.NewNotFound("tutor", req.TutorID)
	}

	course, err := s.courses.CourseByCode(ctx, req.CourseCode)
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}
	if course == nil {
		return nil, apperr.NewNotFound("course", req.CourseCode)
	}

	capacity := 1
	if req.Capacity != nil {
		capacity = *req.Capacity
	}

	session := &model.TutorSession{
		TutorID:     req.TutorID,
		RequesterID: req.StudentID,
		CourseCode:  course.Code,
		Topic:       req.Topic,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Mode:        req.Mode,
		MaxCapacity: capacity,
		IsPublic:    req.RequestType == model.RequestPublicGroup,
		RequestType: req.RequestType,
		Note:        req.Note,
		Status:      model.SessionWaitingForTutor,
	}
	session.AddStudent(req.StudentID, s.now())

	unlock := s.locks.Lock(req.TutorID)
	defer unlock()

	err = s.store.InTutorTx(ctx, req.TutorID, func(tx repository.Tx) error {
		slot, err := tx.Slots().FindCovering(ctx, req.TutorID, req.StartTime, req.EndTime, req.Mode)
		if err != nil {
			return fmt.Errorf("find covering slot: %w", err)
		}
		if slot == nil {
			return apperr.NewConflict("no availability slot covers the requested time with mode %s", req.Mode).
				WithInterval(req.StartTime, req.EndTime)
		}

		if err := checkNoLiveOverlap(ctx, tx, req.TutorID, req.StartTime, req.EndTime, 0); err != nil {
			return err
		}

		if err := tx.Sessions().Create(ctx, session); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Booking request created",
		zap.Int64("session_id", session.ID),
		zap.Int64("student_id", req.StudentID),
		zap.Int64("tutor_id", req.TutorID),
		zap.String("course", course.Code),
		zap.Time("start", req.StartTime),
	)

	fx := &effects{}
	fx.notify(req.TutorID, model.NotificationBookingRequest, session.ID,
		fmt.Sprintf("%s просит занятие по %s на %s", student.DisplayName, course.Code, formatInterval(req.StartTime, req.EndTime)))
	s.apply(ctx, fx)

	return session, nil
}

// ProposeNegotiation встречное предложение тутора, переводит сессию в WAITING_FOR_STUDENT
func (s *BookingService) ProposeNegotiation(ctx context.Context, tutorID, sessionID int64, proposal model.NegotiationProposal) (*model.TutorSession, error) {
	if err := validateStruct(proposal); err != nil {
		return nil, err
	}

	session, err := s.mutate(ctx, sessionID, func(tx repository.Tx, session *model.TutorSession, fx *effects) error {
		if err := authorize(actionPropose, model.Actor{UserID: tutorID}, session); err != nil {
			return err
		}
		if session.Status != model.SessionWaitingForTutor {
			return stateErr(actionPropose, session, "negotiation can only start from WAITING_FOR_TUTOR")
		}

		start, end := proposedInterval(session, &proposal)
		if err := validateInterval(start, end); err != nil {
			return err
		}
		if proposal.NewMaxCapacity != nil && *proposal.NewMaxCapacity < len(session.ActiveStudentIDs()) {
			return apperr.NewValidation("capacity is below the number of enrolled students").
				WithField("new_max_capacity", "must not be less than enrolled students")
		}

		if err := checkNoLiveOverlap(ctx, tx, session.TutorID, start, end, session.ID); err != nil {
			return err
		}

		p := proposal
		session.Proposal = &p
		session.Status = model.SessionWaitingForStudent

		fx.notify(session.RequesterID, model.NotificationNegotiationProposal, session.ID,
			fmt.Sprintf("Тутор предлагает %s: %s", formatInterval(start, end), proposal.Message))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Negotiation proposed",
		zap.Int64("session_id", sessionID),
		zap.Int64("tutor_id", tutorID),
	)

	return session, nil
}

// ResolveNegotiation ответ автора запроса на предложение тутора
func (s *BookingService) ResolveNegotiation(ctx context.Context, studentID, sessionID int64, action ResolveAction, details *model.ConfirmDetails) (*model.TutorSession, error) {
	switch action {
	case ResolveAccept:
		if details == nil {
			return nil, apperr.NewValidation("confirm details are required to accept a proposal").
				WithField("confirm_details", "required")
		}
		if err := validateStruct(details); err != nil {
			return nil, err
		}
	case ResolveReject:
	default:
		return nil, apperr.NewValidation("unknown resolve action %q", action)
	}

	session, err := s.mutate(ctx, sessionID, func(tx repository.Tx, session *model.TutorSession, fx *effects) error {
		if err := authorize(actionResolve, model.Actor{UserID: studentID}, session); err != nil {
			return err
		}
		if session.Status != model.SessionWaitingForStudent {
			return stateErr(actionResolve, session, "no negotiation awaiting the student")
		}
		if session.Proposal == nil {
			return stateErr(actionResolve, session, "no active proposal")
		}

		if action == ResolveReject {
			session.Status = model.SessionRejected
			session.CancelledBy = model.CancelledByStudent
			session.Proposal = nil

			fx.notify(session.TutorID, model.NotificationSessionRejected, session.ID,
				fmt.Sprintf("Студент отклонил предложение по занятию %s", formatInterval(session.StartTime, session.EndTime)))
			return nil
		}

		proposal := session.Proposal
		start, end := proposedInterval(session, proposal)
		if details.MaxCapacity < len(session.ActiveStudentIDs()) {
			return apperr.NewValidation("capacity is below the number of enrolled students").
				WithField("max_capacity", "must not be less than enrolled students")
		}

		if err := checkNoLiveOverlap(ctx, tx, session.TutorID, start, end, session.ID); err != nil {
			return err
		}
		if err := s.availability.consumeInterval(ctx, tx, session.TutorID, start, end); err != nil {
			return err
		}

		session.StartTime, session.EndTime = start, end
		if proposal.NewTopic != nil {
			session.Topic = *proposal.NewTopic
		}
		if proposal.NewMode != nil {
			session.Mode = *proposal.NewMode
		}
		if proposal.NewLocation != nil {
			session.Location = *proposal.NewLocation
		}
		applyConfirmDetails(session, details)
		session.Proposal = nil
		session.Status = model.SessionConfirmed

		fx.notify(session.TutorID, model.NotificationSessionConfirmed, session.ID,
			fmt.Sprintf("Студент принял предложение, занятие %s подтверждено", formatInterval(start, end)))
		fx.notifyAll(session.ActiveStudentIDs(), model.NotificationSessionConfirmed, session.ID,
			fmt.Sprintf("Занятие %s подтверждено", formatInterval(start, end)))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Negotiation resolved",
		zap.Int64("session_id", sessionID),
		zap.Int64("student_id", studentID),
		zap.String("action", string(action)),
		zap.String("status", string(session.Status)),
	)

	return session, nil
}

// HandleSessionAction подтверждение, отклонение, отмена и завершение сессии
func (s *BookingService) HandleSessionAction(ctx context.Context, actor model.Actor, sessionID int64, req SessionActionRequest) (*model.TutorSession, error) {
	session, _, err := s.handleSessionAction(ctx, actor, sessionID, req)
	return session, err
}

// CancelSession отмена с признаком поздней отмены для вызывающего слоя
func (s *BookingService) CancelSession(ctx context.Context, actor model.Actor, sessionID int64, reason string) (*CancelResult, error) {
	session, result, err := s.handleSessionAction(ctx, actor, sessionID, SessionActionRequest{
		Action: ActionCancel,
		Reason: reason,
	})
	if err != nil {
		return nil, err
	}

	result.Session = session
	return result, nil
}

func (s *BookingService) handleSessionAction(ctx context.Context, actor model.Actor, sessionID int64, req SessionActionRequest) (*model.TutorSession, *CancelResult, error) {
	if err := validateStruct(req); err != nil {
		return nil, nil, err
	}
	if req.Action == ActionConfirm {
		if req.Details == nil {
			return nil, nil, apperr.NewValidation("confirm details are required").
				WithField("confirm_details", "required")
		}
		if err := validateStruct(req.Details); err != nil {
			return nil, nil, err
		}
	}

	cancelled := &CancelResult{}

	session, err := s.mutate(ctx, sessionID, func(tx repository.Tx, session *model.TutorSession, fx *effects) error {
		*cancelled = CancelResult{}

		if err := authorize(req.Action, actor, session); err != nil {
			return err
		}

		switch req.Action {
		case ActionConfirm:
			return s.confirm(ctx, tx, session, req.Details, fx)
		case ActionReject:
			return s.reject(session, req.Reason, fx)
		case ActionCancel:
			return s.cancel(session, actor, req.Reason, cancelled, fx)
		default:
			return s.complete(session, fx)
		}
	})
	if err != nil {
		return nil, nil, err
	}

	if cancelled.LateCancellation {
		s.logger.Warn("Late cancellation",
			zap.Int64("session_id", sessionID),
			zap.Int64("user_id", actor.UserID),
			zap.Float64("hours_until_start", cancelled.HoursUntilStart),
		)
	}
	s.logger.Info("Session action handled",
		zap.Int64("session_id", sessionID),
		zap.Int64("actor_id", actor.UserID),
		zap.String("action", string(req.Action)),
		zap.String("status", string(session.Status)),
	)

	return session, cancelled, nil
}

func (s *BookingService) confirm(ctx context.Context, tx repository.Tx, session *model.TutorSession, details *model.ConfirmDetails, fx *effects) error {
	if session.Status != model.SessionWaitingForTutor {
		return stateErr(ActionConfirm, session, "only a pending request can be confirmed")
	}
	if details.MaxCapacity < len(session.ActiveStudentIDs()) {
		return apperr.NewValidation("capacity is below the number of enrolled students").
			WithField("max_capacity", "must not be less than enrolled students")
	}

	if err := checkNoLiveOverlap(ctx, tx, session.TutorID, session.StartTime, session.EndTime, session.ID); err != nil {
		return err
	}

	slot, err := tx.Slots().FindCovering(ctx, session.TutorID, session.StartTime, session.EndTime, session.Mode)
	if err != nil {
		return fmt.Errorf("find covering slot: %w", err)
	}
	if slot == nil {
		return apperr.NewConflict("availability slot for the session no longer exists").
			WithInterval(session.StartTime, session.EndTime)
	}

	if err := s.availability.consumeInterval(ctx, tx, session.TutorID, session.StartTime, session.EndTime); err != nil {
		return err
	}

	applyConfirmDetails(session, details)
	session.Status = model.SessionConfirmed

	msg := fmt.Sprintf("Занятие %s подтверждено", formatInterval(session.StartTime, session.EndTime))
	fx.notifyAll(session.ActiveStudentIDs(), model.NotificationSessionConfirmed, session.ID, msg)
	fx.notify(session.TutorID, model.NotificationSessionConfirmed, session.ID, msg)
	return nil
}

func (s *BookingService) reject(session *model.TutorSession, reason string, fx *effects) error {
	if session.Status != model.SessionWaitingForTutor {
		return stateErr(ActionReject, session, "only a pending request can be rejected")
	}
	if reason == "" {
		reason = defaultTutorDeclineReason
	}

	session.Status = model.SessionRejected
	session.CancelledBy = model.CancelledByTutor
	session.CancellationReason = reason

	fx.notifyAll(session.ActiveStudentIDs(), model.NotificationSessionRejected, session.ID,
		fmt.Sprintf("Тутор отклонил запрос: %s", reason))
	return nil
}

func (s *BookingService) cancel(session *model.TutorSession, actor model.Actor, reason string, result *CancelResult, fx *effects) error {
	if session.Status != model.SessionConfirmed && session.Status != model.SessionWaitingForStudent {
		return stateErr(ActionCancel, session, "only confirmed or negotiating sessions can be cancelled")
	}
	if reason == "" {
		reason = defaultUserCancelReason
	}

	result.HoursUntilStart = s.hoursUntil(session.StartTime)
	result.LateCancellation = s.isLate(session.StartTime)

	when := formatInterval(session.StartTime, session.EndTime)

	if actor.UserID == session.TutorID {
		students := session.ActiveStudentIDs()
		markCancelled(session, model.CancelledByTutor, reason)
		fx.notifyAll(students, model.NotificationSessionCancelled, session.ID,
			fmt.Sprintf("Тутор отменил занятие %s: %s", when, reason))
		return nil
	}

	// Отменяет студент: убираем его из состава
	negotiating := session.Status == model.SessionWaitingForStudent
	session.RemoveStudent(actor.UserID)

	if session.AllCancelled() || (negotiating && session.IsRequester(actor.UserID)) {
		students := session.ActiveStudentIDs()
		markCancelled(session, model.CancelledByStudent, reason)
		fx.notify(session.TutorID, model.NotificationSessionCancelled, session.ID,
			fmt.Sprintf("Занятие %s отменено: %s", when, reason))
		fx.notifyAll(students, model.NotificationSessionCancelled, session.ID,
			fmt.Sprintf("Занятие %s отменено: %s", when, reason))
		return nil
	}

	fx.notify(session.TutorID, model.NotificationParticipantLeft, session.ID,
		fmt.Sprintf("Участник покинул занятие %s", when))
	return nil
}

func (s *BookingService) complete(session *model.TutorSession, fx *effects) error {
	if session.Status != model.SessionConfirmed {
		return stateErr(ActionComplete, session, "only a confirmed session can be completed")
	}

	session.Status = model.SessionCompleted

	fx.feedback = append(fx.feedback, session.Clone())
	fx.notifyAll(session.ActiveStudentIDs(), model.NotificationFeedbackRequest, session.ID,
		fmt.Sprintf("Занятие %s завершено, оцените его", formatInterval(session.StartTime, session.EndTime)))
	return nil
}

// UpdateSessionTopic меняет тему занятия
func (s *BookingService) UpdateSessionTopic(ctx context.Context, tutorID, sessionID int64, topic string) (*model.TutorSession, error) {
	if len([]rune(topic)) > 200 {
		return nil, apperr.NewValidation("topic is too long").WithField("topic", "must be at most 200 characters")
	}

	session, err := s.mutate(ctx, sessionID, func(_ repository.Tx, session *model.TutorSession, fx *effects) error {
		if err := authorize(actionUpdateTopic, model.Actor{UserID: tutorID}, session); err != nil {
			return err
		}

		session.Topic = topic
		fx.notifyAll(session.ActiveStudentIDs(), model.NotificationSessionUpdated, session.ID,
			fmt.Sprintf("Новая тема занятия: %s", topic))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Session topic updated", zap.Int64("session_id", sessionID))
	return session, nil
}

// UpdateSessionLocation меняет место проведения, пока занятие не началось
func (s *BookingService) UpdateSessionLocation(ctx context.Context, tutorID, sessionID int64, location string) (*model.TutorSession, error) {
	if len([]rune(location)) > 500 {
		return nil, apperr.NewValidation("location is too long").WithField("location", "must be at most 500 characters")
	}

	session, err := s.mutate(ctx, sessionID, func(_ repository.Tx, session *model.TutorSession, fx *effects) error {
		if err := authorize(actionUpdateLocation, model.Actor{UserID: tutorID}, session); err != nil {
			return err
		}
		if !s.now().Before(session.StartTime) {
			return stateErr(actionUpdateLocation, session, "session has already started")
		}

		session.Location = location
		fx.notifyAll(session.ActiveStudentIDs(), model.NotificationSessionUpdated, session.ID,
			fmt.Sprintf("Новое место занятия: %s", location))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Session location updated", zap.Int64("session_id", sessionID))
	return session, nil
}

// UpdateParticipation отмечает посещаемость студента.
// Доступно с ParticipationEditBefore до начала по ParticipationEditAfter после начала.
func (s *BookingService) UpdateParticipation(ctx context.Context, tutorID, sessionID, studentID int64, status model.ParticipationStatus) (*model.TutorSession, error) {
	if !status.Valid() {
		return nil, apperr.NewValidation("unknown participation status %q", status).
			WithField("status", "must be one of confirmed attended absent cancelled")
	}

	session, err := s.mutate(ctx, sessionID, func(_ repository.Tx, session *model.TutorSession, _ *effects) error {
		if err := authorize(actionUpdateParticipation, model.Actor{UserID: tutorID}, session); err != nil {
			return err
		}
		if session.Status != model.SessionConfirmed && session.Status != model.SessionCompleted {
			return stateErr(actionUpdateParticipation, session, "participation is tracked only for confirmed or completed sessions")
		}

		now := s.now()
		opens := session.StartTime.Add(-s.policy.ParticipationEditBefore)
		closes := session.StartTime.Add(s.policy.ParticipationEditAfter)
		if now.Before(opens) || now.After(closes) {
			return stateErr(actionUpdateParticipation, session,
				fmt.Sprintf("participation can be edited between %s and %s", formatTime(opens), formatTime(closes)))
		}

		p := session.Participant(studentID)
		if p == nil {
			return apperr.NewNotFound("participant", studentID)
		}
		if p.Status == status {
			return errUnchanged
		}
		p.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Participation updated",
		zap.Int64("session_id", sessionID),
		zap.Int64("student_id", studentID),
		zap.String("status", string(status)),
	)

	return session, nil
}

// CompleteEndedSessions завершает подтверждённые сессии, время которых прошло.
// Возвращает число завершённых сессий.
func (s *BookingService) CompleteEndedSessions(ctx context.Context) (int, error) {
	ended, err := s.store.Sessions().ListConfirmedEndedBefore(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("list ended sessions: %w", err)
	}

	completed := 0
	for _, candidate := range ended {
		changed := false
		_, err := s.mutate(ctx, candidate.ID, func(_ repository.Tx, session *model.TutorSession, fx *effects) error {
			changed = false
			if session.Status != model.SessionConfirmed {
				return errUnchanged
			}
			if err := s.complete(session, fx); err != nil {
				return err
			}
			changed = true
			return nil
		})
		if err != nil {
			s.logger.Error("Failed to auto-complete session",
				zap.Int64("session_id", candidate.ID),
				zap.Error(err))
			continue
		}
		// Считаем только закоммиченные завершения
		if changed {
			completed++
		}
	}

	if completed > 0 {
		s.logger.Info("Ended sessions completed", zap.Int("count", completed))
	}

	return completed, nil
}

// proposedInterval итоговое время с учётом предложения
func proposedInterval(session *model.TutorSession, p *model.NegotiationProposal) (time.Time, time.Time) {
	start, end := session.StartTime, session.EndTime
	if p.NewStartTime != nil {
		start = *p.NewStartTime
	}
	if p.NewEndTime != nil {
		end = *p.NewEndTime
	}
	return start, end
}

func applyConfirmDetails(session *model.TutorSession, d *model.ConfirmDetails) {
	if d.Topic != "" {
		session.Topic = d.Topic
	}
	if d.FinalLocation != "" {
		session.Location = d.FinalLocation
	}
	session.MaxCapacity = d.MaxCapacity
	session.IsPublic = d.IsPublic
}

func markCancelled(session *model.TutorSession, by, reason string) {
	session.Status = model.SessionCancelled
	session.CancelledBy = by
	session.CancellationReason = reason
	session.Proposal = nil
}
