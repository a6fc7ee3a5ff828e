package service

import (
	"strings"

	"github.com/Freeeeeet/tutor_bot/internal/apperr"
	"github.com/Freeeeeet/tutor_bot/internal/model"
)

// SessionAction действие над сессией
type SessionAction string

const (
	ActionConfirm  SessionAction = "confirm"
	ActionReject   SessionAction = "reject"
	ActionCancel   SessionAction = "cancel"
	ActionComplete SessionAction = "complete"

	actionPropose             SessionAction = "propose"
	actionResolve             SessionAction = "resolve"
	actionUpdateTopic         SessionAction = "update topic"
	actionUpdateLocation      SessionAction = "update location"
	actionUpdateParticipation SessionAction = "update participation"
)

// capability роль актора относительно конкретной сессии
type capability uint8

const (
	capTutor capability = 1 << iota
	capParticipant
	capRequester
	capAdmin
	capDeptChair
)

var capabilityNames = []struct {
	c    capability
	name string
}{
	{capTutor, "tutor"},
	{capParticipant, "participant"},
	{capRequester, "requester"},
	{capAdmin, "admin"},
	{capDeptChair, "department chair"},
}

// sessionPolicy кто может выполнять действие
var sessionPolicy = map[SessionAction]capability{
	actionPropose:             capTutor,
	actionResolve:             capRequester,
	ActionConfirm:             capTutor,
	ActionReject:              capTutor,
	ActionCancel:              capTutor | capParticipant,
	ActionComplete:            capTutor | capAdmin | capDeptChair,
	actionUpdateTopic:         capTutor,
	actionUpdateLocation:      capTutor,
	actionUpdateParticipation: capTutor,
}

func capabilitiesOf(actor model.Actor, s *model.TutorSession) capability {
	var c capability
	if actor.UserID == s.TutorID {
		c |= capTutor
	}
	if p := s.Participant(actor.UserID); p != nil && p.Status != model.ParticipationCancelled {
		c |= capParticipant
	}
	if s.IsRequester(actor.UserID) {
		c |= capRequester
	}
	if actor.HasRole(model.RoleAdmin) {
		c |= capAdmin
	}
	if actor.HasRole(model.RoleDeptChair) {
		c |= capDeptChair
	}
	return c
}

// authorize проверяет право актора на действие по таблице sessionPolicy
func authorize(action SessionAction, actor model.Actor, s *model.TutorSession) error {
	allowed, ok := sessionPolicy[action]
	if !ok {
		return apperr.NewValidation("unknown action %q", action)
	}
	if capabilitiesOf(actor, s)&allowed != 0 {
		return nil
	}
	return apperr.NewPermission(string(action), actor.UserID, "requires "+describe(allowed))
}

func describe(c capability) string {
	var names []string
	for _, cn := range capabilityNames {
		if c&cn.c != 0 {
			names = append(names, cn.name)
		}
	}
	return strings.Join(names, " or ")
}
