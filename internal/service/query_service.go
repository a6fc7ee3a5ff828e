package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Freeeeeet/tutor_bot/internal/apperr"
	"github.com/Freeeeeet/tutor_bot/internal/model"
	"github.com/Freeeeeet/tutor_bot/internal/repository"
)

const (
	defaultPublicLimit = 20
	maxPublicLimit     = 100
)

// RoleHint с какой стороны смотреть на список сессий
type RoleHint string

const (
	RoleHintNone    RoleHint = ""
	RoleHintStudent RoleHint = "student"
	RoleHintTutor   RoleHint = "tutor"
)

// PublicSessionFilter фильтры списка публичных сессий
type PublicSessionFilter struct {
	CourseCode string
	TutorName  string
	Limit      int
}

type QueryService struct {
	*Core
}

func NewQueryService(core *Core) *QueryService {
	return &QueryService{Core: core}
}

// GetSession получает сессию по ID
func (s *QueryService) GetSession(ctx context.Context, sessionID int64) (*model.TutorSession, error) {
	return loadSession(ctx, s.store.Sessions(), sessionID)
}

// ListSessionsForUser сессии пользователя, новые сверху.
// Без подсказки роли используется студенческий вид, если у пользователя есть профиль студента.
func (s *QueryService) ListSessionsForUser(ctx context.Context, userID int64, hint RoleHint) ([]*model.TutorSession, error) {
	switch hint {
	case RoleHintStudent, RoleHintTutor:
	case RoleHintNone:
		student, err := s.profiles.StudentProfileByUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("get student profile: %w", err)
		}
		hint = RoleHintTutor
		if student != nil {
			hint = RoleHintStudent
		}
	default:
		return nil, apperr.NewValidation("unknown role hint %q", hint)
	}

	var (
		sessions []*model.TutorSession
		err      error
	)
	if hint == RoleHintStudent {
		sessions, err = s.store.Sessions().ListByStudent(ctx, userID)
	} else {
		sessions, err = s.store.Sessions().ListByTutor(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	return sessions, nil
}

// ListPublicSessions подтверждённые публичные сессии в будущем со свободными местами.
// Сессии, где зритель тутор или активный участник, не показываются.
func (s *QueryService) ListPublicSessions(ctx context.Context, filter PublicSessionFilter, viewerID *int64) ([]*model.TutorSession, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPublicLimit
	}
	if limit > maxPublicLimit {
		limit = maxPublicLimit
	}

	sessions, err := s.store.Sessions().ListPublic(ctx, repository.PublicSessionQuery{
		CourseCode:  filter.CourseCode,
		StartsAfter: s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("list public sessions: %w", err)
	}

	tutorName := strings.ToLower(strings.TrimSpace(filter.TutorName))
	names := make(map[int64]string)

	out := make([]*model.TutorSession, 0, limit)
	for _, session := range sessions {
		if len(out) == limit {
			break
		}
		if session.IsFull() {
			continue
		}
		if viewerID != nil {
			if session.TutorID == *viewerID {
				continue
			}
			if p := session.Participant(*viewerID); p != nil && p.Status != model.ParticipationCancelled {
				continue
			}
		}
		if tutorName != "" {
			name, ok := names[session.TutorID]
			if !ok {
				profile, err := s.profiles.TutorProfileByUser(ctx, session.TutorID)
				if err != nil {
					return nil, fmt.Errorf("get tutor profile: %w", err)
				}
				if profile != nil {
					name = strings.ToLower(profile.DisplayName)
				}
				names[session.TutorID] = name
			}
			if !strings.Contains(name, tutorName) {
				continue
			}
		}
		out = append(out, session)
	}

	return out, nil
}
