package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutor_bot/internal/apperr"
	"github.com/Freeeeeet/tutor_bot/internal/config"
	"github.com/Freeeeeet/tutor_bot/internal/model"
	"github.com/Freeeeeet/tutor_bot/internal/repository"
	"go.uber.org/zap"
)

// Core общие зависимости сервисов расписания
type Core struct {
	store    repository.Store
	profiles ProfileLookup
	courses  CourseCatalog
	sink     NotificationSink
	feedback FeedbackRecordFactory
	locks    *TutorLocks
	policy   config.Policy
	logger   *zap.Logger
	now      func() time.Time
}

func NewCore(
	store repository.Store,
	profiles ProfileLookup,
	courses CourseCatalog,
	sink NotificationSink,
	feedback FeedbackRecordFactory,
	policy config.Policy,
	logger *zap.Logger,
) *Core {
	return &Core{
		store:    store,
		profiles: profiles,
		courses:  courses,
		sink:     sink,
		feedback: feedback,
		locks:    NewTutorLocks(),
		policy:   policy,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock подменяет источник текущего времени
func (c *Core) SetClock(now func() time.Time) {
	c.now = now
}

// errUnchanged сессия не изменилась, сохранять нечего
var errUnchanged = errors.New("session unchanged")

type notice struct {
	receiverID int64
	typ        model.NotificationType
	sessionID  int64
	message    string
}

// effects побочные эффекты, выполняемые после коммита
type effects struct {
	notices  []notice
	feedback []*model.TutorSession
}

func (e *effects) notify(receiverID int64, typ model.NotificationType, sessionID int64, message string) {
	e.notices = append(e.notices, notice{receiverID: receiverID, typ: typ, sessionID: sessionID, message: message})
}

func (e *effects) notifyAll(receivers []int64, typ model.NotificationType, sessionID int64, message string) {
	for _, id := range receivers {
		e.notify(id, typ, sessionID, message)
	}
}

// loadSession получает сессию или NotFoundError
func loadSession(ctx context.Context, sessions repository.Sessions, id int64) (*model.TutorSession, error) {
	session, err := sessions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, apperr.NewNotFound("session", id)
	}
	return session, nil
}

// mutate выполняет fn над свежей копией сессии внутри транзакции тутора и сохраняет результат.
// Уведомления и отзывы отправляются только после успешного коммита.
func (c *Core) mutate(
	ctx context.Context,
	sessionID int64,
	fn func(tx repository.Tx, session *model.TutorSession, fx *effects) error,
) (*model.TutorSession, error) {
	session, err := loadSession(ctx, c.store.Sessions(), sessionID)
	if err != nil {
		return nil, err
	}

	unlock := c.locks.Lock(session.TutorID)
	defer unlock()

	fx := &effects{}
	var result *model.TutorSession

	err = c.store.InTutorTx(ctx, session.TutorID, func(tx repository.Tx) error {
		current, err := loadSession(ctx, tx.Sessions(), sessionID)
		if err != nil {
			return err
		}

		if err := fn(tx, current, fx); err != nil {
			if errors.Is(err, errUnchanged) {
				result = current
				return nil
			}
			return err
		}

		if err := tx.Sessions().Update(ctx, current); err != nil {
			return err
		}

		result = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.apply(ctx, fx)
	return result, nil
}

// apply выполняет отложенные эффекты; ошибки только логируются
func (c *Core) apply(ctx context.Context, fx *effects) {
	for _, n := range fx.notices {
		sessionID := n.sessionID
		if err := c.sink.Notify(ctx, n.receiverID, n.typ, &sessionID, n.message); err != nil {
			c.logger.Error("Failed to send notification",
				zap.Int64("receiver_id", n.receiverID),
				zap.String("type", string(n.typ)),
				zap.Int64("session_id", n.sessionID),
				zap.Error(err))
		}
	}

	for _, session := range fx.feedback {
		if err := c.feedback.CreateRecordsForSession(ctx, session); err != nil {
			c.logger.Error("Failed to create feedback records",
				zap.Int64("session_id", session.ID),
				zap.Error(err))
		}
	}
}

// hoursUntil часы до момента t (отрицательное значение если t в прошлом)
func (c *Core) hoursUntil(t time.Time) float64 {
	return t.Sub(c.now()).Hours()
}

// isLate попадает ли момент отмены в окно поздней отмены
func (c *Core) isLate(start time.Time) bool {
	return start.Sub(c.now()) < c.policy.LateCancelWindow
}

func formatTime(t time.Time) string {
	return t.Format("02.01.2006 15:04")
}

func formatInterval(start, end time.Time) string {
	if start.YearDay() == end.YearDay() && start.Year() == end.Year() {
		return formatTime(start) + "–" + end.Format("15:04")
	}
	return formatTime(start) + " – " + formatTime(end)
}

func stateErr(action SessionAction, s *model.TutorSession, reason string) error {
	return apperr.NewState(string(action), string(s.Status), reason)
}
