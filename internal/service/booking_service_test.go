package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/tutor_bot/internal/apperr"
	"github.com/Freeeeeet/tutor_bot/internal/config"
	"github.com/Freeeeeet/tutor_bot/internal/model"
	"github.com/Freeeeeet/tutor_bot/internal/repository"
	"github.com/Freeeeeet/tutor_bot/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func ptr[T any](v T) *T { return &v }

func TestCreateBookingRequest(t *testing.T) {
	h := newHarness(t)
	h.slot(t, at(10, 0), at(12, 0))

	session := h.request(t, studentA, at(10, 0), at(11, 0), model.RequestOneOnOne)

	assert.NotZero(t, session.ID)
	assert.Equal(t, model.SessionWaitingForTutor, session.Status)
	assert.Equal(t, 1, session.MaxCapacity)
	assert.False(t, session.IsPublic)
	assert.Equal(t, []int64{studentA}, session.StudentIDs())
	assert.Equal(t, studentA, session.RequesterID)
	assert.Nil(t, session.Proposal)

	// бронь мягкая, окно на месте
	assert.Equal(t, [][2]time.Time{interval(at(10, 0), at(12, 0))}, h.slots(t))
	assert.Equal(t, 1, h.sink.count(tutorID, model.NotificationBookingRequest))
}

func TestCreateBookingRequestCapacity(t *testing.T) {
	h := newHarness(t)
	h.slot(t, at(10, 0), at(12, 0))

	session, err := h.booking.CreateBookingRequest(h.ctx, BookingRequest{
		StudentID:   studentA,
		TutorID:     tutorID,
		CourseCode:  courseCode,
		StartTime:   at(10, 0),
		EndTime:     at(11, 0),
		Mode:        model.LocationOnline,
		RequestType: model.RequestPublicGroup,
		Capacity:    ptr(4),
		Note:        "linked lists",
	})
	require.NoError(t, err)

	assert.Equal(t, 4, session.MaxCapacity)
	assert.True(t, session.IsPublic)
	assert.Equal(t, "linked lists", session.Note)
}

func TestCreateBookingRequestErrors(t *testing.T) {
	valid := func() BookingRequest {
		return BookingRequest{
			StudentID:   studentA,
			TutorID:     tutorID,
			CourseCode:  courseCode,
			StartTime:   at(10, 0),
			EndTime:     at(11, 0),
			Mode:        model.LocationOnline,
			RequestType: model.RequestOneOnOne,
		}
	}

	tests := []struct {
		name    string
		mutate  func(r *BookingRequest)
		wantErr error
	}{
		{"outside slot", func(r *BookingRequest) { r.StartTime, r.EndTime = at(11, 30), at(12, 30) }, apperr.ErrConflict},
		{"mode not allowed", func(r *BookingRequest) { r.Mode = model.LocationCampus2 }, apperr.ErrConflict},
		{"unknown course", func(r *BookingRequest) { r.CourseCode = "BIO999" }, apperr.ErrNotFound},
		{"unknown tutor", func(r *BookingRequest) { r.TutorID = 777 }, apperr.ErrNotFound},
		{"unknown student", func(r *BookingRequest) { r.StudentID = 555 }, apperr.ErrNotFound},
		{"self booking", func(r *BookingRequest) { r.StudentID = tutorID }, apperr.ErrValidation},
		{"reversed interval", func(r *BookingRequest) { r.StartTime, r.EndTime = at(11, 0), at(10, 0) }, apperr.ErrValidation},
		{"bad mode", func(r *BookingRequest) { r.Mode = "MOON" }, apperr.ErrValidation},
		{"bad request type", func(r *BookingRequest) { r.RequestType = "SOLO" }, apperr.ErrValidation},
		{"zero capacity", func(r *BookingRequest) { r.Capacity = ptr(0) }, apperr.ErrValidation},
		{"missing course", func(r *BookingRequest) { r.CourseCode = "" }, apperr.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.slot(t, at(10, 0), at(12, 0), model.LocationOnline, model.LocationCampus1)

			req := valid()
			tt.mutate(&req)
			_, err := h.booking.CreateBookingRequest(h.ctx, req)
			requireErrorIs(t, err, tt.wantErr)

			sessions, err := h.query.ListSessionsForUser(h.ctx, tutorID, RoleHintTutor)
			require.NoError(t, err)
			assert.Empty(t, sessions)
		})
	}
}

func TestCreateBookingRequestValidationFields(t *testing.T) {
	h := newHarness(t)
	_, err := h.booking.CreateBookingRequest(h.ctx, BookingRequest{
		StudentID:   studentA,
		TutorID:     tutorID,
		StartTime:   at(10, 0),
		EndTime:     at(11, 0),
		Mode:        model.LocationOnline,
		RequestType: model.RequestOneOnOne,
	})

	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "course_code", verr.Fields[0].Field)
}

func TestCreateBookingRequestOverlapsLiveSession(t *testing.T) {
	h := newHarness(t)
	h.slot(t, at(9, 0), at(11, 0))
	h.request(t, studentA, at(9, 0), at(10, 0), model.RequestOneOnOne)

	_, err := h.booking.CreateBookingRequest(h.ctx, BookingRequest{
		StudentID:   studentB,
		TutorID:     tutorID,
		CourseCode:  courseCode,
		StartTime:   at(9, 30),
		EndTime:     at(10, 30),
		Mode:        model.LocationOnline,
		RequestType: model.RequestOneOnOne,
	})
	requireErrorIs(t, err, apperr.ErrConflict)

	var ce *apperr.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, at(9, 0), ce.Start)
	assert.Equal(t, at(10, 0), ce.End)

	// соседний интервал свободен
	h.request(t, studentB, at(10, 0), at(11, 0), model.RequestOneOnOne)
}

// Два студента одновременно бронируют пересекающиеся интервалы: проходит ровно один
func TestConcurrentBookingRequests(t *testing.T) {
	for i := 0; i < 25; i++ {
		h := newHarness(t)
		h.slot(t, at(9, 0), at(11, 0))

		requests := []BookingRequest{
			{StudentID: studentA, StartTime: at(9, 0), EndTime: at(10, 0)},
			{StudentID: studentB, StartTime: at(9, 30), EndTime: at(10, 30)},
		}

		var (
			wg    sync.WaitGroup
			start = make(chan struct{})
			errs  = make([]error, len(requests))
		)
		for j, r := range requests {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				r.TutorID = tutorID
				r.CourseCode = courseCode
				r.Mode = model.LocationOnline
				r.RequestType = model.RequestOneOnOne
				_, errs[j] = h.booking.CreateBookingRequest(h.ctx, r)
			}()
		}
		close(start)
		wg.Wait()

		succeeded, conflicts := 0, 0
		for _, err := range errs {
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, apperr.ErrConflict):
				conflicts++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		require.Equal(t, 1, succeeded)
		require.Equal(t, 1, conflicts)
	}
}

// Несколько одновременных подтверждений и новых окон у одного тутора не дают пересечений
func TestConcurrentTimelineStaysDisjoint(t *testing.T) {
	h := newHarness(t)
	h.slot(t, at(8, 0), at(16, 0))

	var sessions []*model.TutorSession
	for i, student := range []int64{studentA, studentB, studentC, studentD} {
		start := at(8+2*i, 0)
		sessions = append(sessions, h.request(t, student, start, start.Add(time.Hour), model.RequestOneOnOne))
	}

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.booking.HandleSessionAction(h.ctx, model.Actor{UserID: tutorID}, s.ID, SessionActionRequest{
				Action:  ActionConfirm,
				Details: &model.ConfirmDetails{MaxCapacity: 1},
			})
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.availability.CreateSlot(h.ctx, tutorID, s.StartTime, s.EndTime, []model.LocationMode{model.LocationOnline})
		}()
	}
	wg.Wait()

	var intervals [][2]time.Time
	intervals = append(intervals, h.slots(t)...)
	all, err := h.query.ListSessionsForUser(h.ctx, tutorID, RoleHintTutor)
	require.NoError(t, err)
	for _, s := range all {
		require.Equal(t, model.SessionConfirmed, s.Status)
		intervals = append(intervals, interval(s.StartTime, s.EndTime))
	}

	for i := range intervals {
		for j := i + 1; j < len(intervals); j++ {
			assert.Falsef(t, model.Overlaps(intervals[i][0], intervals[i][1], intervals[j][0], intervals[j][1]),
				"%v overlaps %v", intervals[i], intervals[j])
		}
	}
}

func TestProposeNegotiation(t *testing.T) {
	h := newHarness(t)
	h.slot(t, at(10, 0), at(12, 0))
	session := h.request(t, studentA, at(10, 0), at(11, 0), model.RequestOneOnOne)

	updated, err := h.booking.ProposeNegotiation(h.ctx, tutorID, session.ID, model.NegotiationProposal{
		NewStartTime: ptr(at(10, 30)),
		NewEndTime:   ptr(at(11, 30)),
		NewTopic:     ptr("Recursion"),
		Message:      "Can we start later?",
	})
	require.NoError(t, err)

	assert.Equal(t, model.SessionWaitingForStudent, updated.Status)
	require.NotNil(t, updated.Proposal)
	assert.Equal(t, "Can we start later?", updated.Proposal.Message)
	// время сессии не меняется до принятия
	assert.Equal(t, at(10, 0), updated.StartTime)
	assert.Equal(t, 1, h.sink.count(studentA, model.NotificationNegotiationProposal))
}

func TestProposeNegotiationErrors(t *testing.T) {
	tests := []struct {
		name     string
		actor    int64
		proposal model.NegotiationProposal
		setup    func(t *testing.T, h *harness, sessionID int64)
		wantErr  error
	}{
		{
			name:     "not the tutor",
			actor:    studentA,
			proposal: model.NegotiationProposal{Message: "hi"},
			wantErr:  apperr.ErrPermission,
		},
		{
			name:     "missing message",
			actor:    tutorID,
			proposal: model.NegotiationProposal{NewTopic: ptr("x")},
			wantErr:  apperr.ErrValidation,
		},
		{
			name:     "reversed interval",
			actor:    tutorID,
			proposal: model.NegotiationProposal{NewStartTime: ptr(at(11, 0)), NewEndTime: ptr(at(10, 0)), Message: "m"},
			wantErr:  apperr.ErrValidation,
		},
		{
			name:     "overlaps another live session",
			actor:    tutorID,
			proposal: model.NegotiationProposal{NewStartTime: ptr(at(11, 30)), NewEndTime: ptr(at(12, 30)), Message: "m"},
			setup: func(t *testing.T, h *harness, _ int64) {
				h.request(t, studentB, at(12, 0), at(13, 0), model.RequestOneOnOne)
			},
			wantErr: apperr.ErrConflict,
		},
		{
			name:     "already confirmed",
			actor:    tutorID,
			proposal: model.NegotiationProposal{Message: "m"},
			setup: func(t *testing.T, h *harness, sessionID int64) {
				h.confirm(t, sessionID, 1, false)
			},
			wantErr: apperr.ErrState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.slot(t, at(10, 0), at(14, 0))
			session := h.request(t, studentA, at(10, 0), at(11, 0), model.RequestOneOnOne)
			if tt.setup != nil {
				tt.setup(t, h, session.ID)
			}

			_, err := h.booking.ProposeNegotiation(h.ctx, tt.actor, session.ID, tt.proposal)
			requireErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestProposeNegotiationOverlappingItselfAllowed(t *testing.T) {
	h := newHarness(t)
	h.slot(t, at(10, 0), at(12, 0))
	session := h.request(t, studentA, at(10, 0), at(11, 0), model.RequestOneOnOne)

	_, err := h.booking.ProposeNegotiation(h.ctx, tutorID, session.ID, model.NegotiationProposal{
		NewStartTime: ptr(at(10, 15)),
		NewEndTime:   ptr(at(11, 15)),
		Message:      "slight shift",
	})
	require.NoError(t, err)
}

// Тутор предлагает новое время, студент принимает с capacity=2 и is_public=true
func TestScenarioNegotiatedAccept(t *testing.T) {
	h := newHarness(t)
	h.slot(t, at(9, 0), at(13, 0))
	session := h.request(t, studentA, at(10, 0), at(11, 0), model.RequestOneOnOne)

	_, err := h.booking.ProposeNegotiation(h.ctx, tutorID, session.ID, model.NegotiationProposal{
		NewStartTime: ptr(at(11, 0)),
		NewEndTime:   ptr(at(12, 0)),
		NewTopic:     ptr("Graphs"),
		NewMode:      ptr(model.LocationCampus1),
		NewLocation:  ptr("Room 204"),
		Message:      "Later works better",
	})
	require.NoError(t, err)

	confirmed, err := h.booking.ResolveNegotiation(h.ctx, studentA, session.ID, ResolveAccept,
		&model.ConfirmDetails{MaxCapacity: 2, IsPublic: true})
	require.NoError(t, err)

	assert.Equal(t, model.SessionConfirmed, confirmed.Status)
	assert.Equal(t, at(11, 0), confirmed.StartTime)
	assert.Equal(t, at(12, 0), confirmed.EndTime)
	assert.Equal(t, 2, confirmed.MaxCapacity)
	assert.True(t, confirmed.IsPublic)
	assert.Equal(t, "Graphs", confirmed.Topic)
	assert.Equal(t, model.LocationCampus1, confirmed.Mode)
	assert.Equal(t, "Room 204", confirmed.Location)
	assert.Nil(t, confirmed.Proposal)

	// потреблено ровно согласованное время
	assert.Equal(t, [][2]time.Time{
		interval(at(9, 0), at(11, 0)),
		interval(at(12, 0), at(13, 0)),
	}, h.slots(t))
	assert.Equal(t, 1, h.sink.count(tutorID, model.NotificationSessionConfirmed))
	assert.Equal(t, 1, h.sink.count(studentA, model.NotificationSessionConfirmed))
}

func TestResolveNegotiationFinalLocationOverridesProposal(t *testing.T) {
	h := newHarness(t)
	h.slot(t, at(10, 0), at(12, 0))
	session := h.request(t, studentA, at(10, 0), at(11, 0), model.RequestOneOnOne)

	_, err := h.booking.ProposeNegotiation(h.ctx, tutorID, session.ID, model.NegotiationProposal{
		NewLocation: ptr("Room 1"),
		Message:     "m",
	})
	require.NoError(t, err)

	confirmed, err := h.booking.ResolveNegotiation(h.ctx, studentA, session.ID, ResolveAccept,
		&model.ConfirmDetails{MaxCapacity: 1, FinalLocation: "Library"})
	require.NoError(t, err)
	assert.Equal(t, "Library", confirmed.Location)
	assert.Equal(t, at(10, 0), confirmed.StartTime)
}

func TestResolveNegotiationReject(t *testing.T) {
	h := newHarness(t)
	h.slot(t, at(10, 0), at(12, 0))
	session := h.request(t, studentA, at(10, 0), at(11, 0), model.RequestOneOnOne)
	_, err := h.booking.ProposeNegotiation(h.ctx, tutorID, session.ID, model.NegotiationProposal{Message: "m"})
	require.NoError(t, err)

	rejected, err := h.booking.ResolveNegotiation(h.ctx, studentA, session.ID, ResolveReject, nil)
	require.NoError(t, err)

	assert.Equal(t, model.SessionRejected, rejected.Status)
	assert.Equal(t, model.CancelledByStudent, rejected.CancelledBy)
	assert.Nil(t, rejected.Proposal)
	assert.Equal(t, [][2]time.Time{interval(at(10, 0), at(12, 0))}, h.slots(t))
	assert.Equal(t, 1, h.sink.count(tutorID, model.NotificationSessionRejected))
}

func TestResolveNegotiationErrors(t *testing.T) {
	tests := []struct {
		name     string
		actor    int64
		action   ResolveAction
		details  *model.ConfirmDetails
		propose  bool
		wantErr  error
		occupied bool
	}{
		{name: "not the requester", actor: studentB, action: ResolveReject, propose: true, wantErr: apperr.ErrPermission},
		{name: "tutor cannot resolve", actor: tutorID, action: ResolveReject, propose: true, wantErr: apperr.ErrPermission},
		{name: "no proposal", actor: studentA, action: ResolveReject, wantErr: apperr.ErrState},
		{name: "accept without details", actor: studentA, action: ResolveAccept, propose: true, wantErr: apperr.ErrValidation},
		{name: "zero capacity", actor: studentA, action: ResolveAccept, details: &model.ConfirmDetails{}, propose: true, wantErr: apperr.ErrValidation},
		{name: "unknown action", actor: studentA, action: "maybe", propose: true, wantErr: apperr.ErrValidation},
		{
			name: "proposed time taken meanwhile", actor: studentA, action: ResolveAccept,
			details: &model.ConfirmDetails{MaxCapacity: 1}, propose: true, occupied: true, wantErr: apperr.ErrConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.slot(t, at(10, 0), at(14, 0))
			session := h.request(t, studentA, at(10, 0), at(11, 0), model.RequestOneOnOne)
			if tt.propose {
				_, err := h.booking.ProposeNegotiation(h.ctx, tutorID, session.ID, model.NegotiationProposal{
					NewStartTime: ptr(at(12, 0)),
					NewEndTime:   ptr(at(13, 0)),
					Message:      "m",
				})
				require.NoError(t, err)
			}
			if tt.occupied {
				h.request(t, studentB, at(12, 30), at(13, 30), model.RequestOneOnOne)
			}

			_, err := h.booking.ResolveNegotiation(h.ctx, tt.actor, session.ID, tt.action, tt.details)
			requireErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestHandleSessionActionConfirm(t *testing.T) {
	h := newHarness(t)
	h.slot(t, at(10, 0), at(12, 0))
	session := h.request(t, studentA, at(10, 0), at(11, 0), model.RequestPrivateGroup)

	confirmed, err := h.booking.HandleSessionAction(h.ctx, model.Actor{UserID: tutorID}, session.ID, SessionActionRequest{
		Action: ActionConfirm,
		Details: &model.ConfirmDetails{
			Topic:         "Pointers",
			MaxCapacity:   3,
			IsPublic:      false,
			FinalLocation: "https://meet.example/abc",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, model.SessionConfirmed, confirmed.Status)
	assert.Equal(t, "Pointers", confirmed.Topic)
	assert.Equal(t, 3, confirmed.MaxCapacity)
	assert.Equal(t, "https://meet.example/abc", confirmed.Location)
	assert.Equal(t, 1, h.sink.count(studentA, model.NotificationSessionConfirmed))
	assert.Equal(t, 1, h.sink.count(tutorID, model.NotificationSessionConfirmed))
}

func TestConfirmRequiresCoveringSlot(t *testing.T) {
	h := newHarness(t)
	slot := h.slot(t, at(10, 0), at(12, 0))
	session := h.request(t, studentA, at(10, 0), at(11, 0), model.RequestOneOnOne)

	// окно исчезло между запросом и подтверждением
	err := h.store.InTutorTx(h.ctx, tutorID, func(tx repository.Tx) error {
		return tx.Slots().Delete(h.ctx, slot.ID)
	})
	require.NoError(t, err)

	_, err = h.booking.HandleSessionAction(h.ctx, model.Actor{UserID: tutorID}, session.ID, SessionActionRequest{
		Action:  ActionConfirm,
		Details: &model.ConfirmDetails{MaxCapacity: 1},
	})
	requireErrorIs(t, err, apperr.ErrConflict)

	var conflict *apperr.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, at(10, 0), conflict.Start)
	assert.Equal(t, model.SessionWaitingForTutor, h.session(t, session.ID).Status)
}

func TestHandleSessionActionConfirmErrors(t *testing.T) {
	h := newHarness(t)
	h.slot(t, at(10, 0), at(12, 0))
	session := h.request(t, studentA, at(10, 0), at(11, 0), model.RequestOneOnOne)

	_, err := h.booking.HandleSessionAction(h.ctx, model.Actor{UserID: tutorID}, session.ID, SessionActionRequest{Action: ActionConfirm})
	requireErrorIs(t, err, apperr.ErrValidation)

	_, err = h.booking.HandleSessionAction(h.ctx, model.Actor{UserID: studentA}, session.ID, SessionActionRequest{
		Action:  ActionConfirm,
		Details: &model.ConfirmDetails{MaxCapacity: 1},
	})
	requireErrorIs(t, err, apperr.ErrPermission)

	_, err = h.booking.HandleSessionAction(h.ctx, model.Actor{UserID: tutorID}, 999, SessionActionRequest{
		Action:  ActionConfirm,
		Details: &model.ConfirmDetails{MaxCapacity: 1},
	})
	requireErrorIs(t, err, apperr.ErrNotFound)

	h.confirm(t, session.ID, 1, false)

	_, err = h.booking.HandleSessionAction(h.ctx, model.Actor{UserID: tutorID}, session.ID, SessionActionRequest{
		Action:  ActionConfirm,
		Details: &model.ConfirmDetails{MaxCapacity: 1},
	})
	requireErrorIs(t, err, apperr.ErrState)

	var se *apperr.StateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, string(model.SessionConfirmed), se.Status)
}

func TestHandleSessionActionReject(t *testing.T) {
	h := newHarness(t)
	h.slot(t, at(10, 0), at(12, 0))
	session := h.request(t, studentA, at(10, 0), at(11, 0), model.RequestOneOnOne)

	rejected, err := h.booking.HandleSessionAction(h.ctx, model.Actor{UserID: tutorID}, session.ID, SessionActionRequest{Action: ActionReject})
	require.NoError(t, err)

	assert.Equal(t, model.SessionRejected, rejected.Status)
	assert.Equal(t, model.CancelledByTutor, rejected.CancelledBy)
	assert.Equal(t, "Tutor declined request.", rejected.CancellationReason)
	assert.Equal(t, [][2]time.Time{interval(at(10, 0), at(12, 0))}, h.slots(t))
	assert.Equal(t, 1, h.sink.count(studentA, model.NotificationSessionRejected))
}

func TestTutorCancelDoesNotRestoreSlot(t *testing.T) {
	h := newHarness(t)
	session := h.publicSession(t, 3)
	_, err := h.participation.JoinPublicSession(h.ctx, studentB, session.ID)
	require.NoError(t, err)
	h.sink.reset()

	cancelled, err := h.booking.HandleSessionAction(h.ctx, model.Actor{UserID: tutorID}, session.ID, SessionActionRequest{
		Action: ActionCancel,
		Reason: "Sick",
	})
	require.NoError(t, err)

	assert.Equal(t, model.SessionCancelled, cancelled.Status)
	assert.Equal(t, model.CancelledByTutor, cancelled.CancelledBy)
	assert.Equal(t, "Sick", cancelled.CancellationReason)
	assert.Equal(t, 1, h.sink.count(studentA, model.NotificationSessionCancelled))
	assert.Equal(t, 1, h.sink.count(studentB, model.NotificationSessionCancelled))

	assert.Equal(t, [][2]time.Time{interval(at(11, 0), at(12, 0))}, h.slots(t))
}

func TestCancelSessionLateCancellation(t *testing.T) {
	window := config.DefaultPolicy().LateCancelWindow

	tests := []struct {
		name     string
		now      time.Time
		actor    int64
		wantLate bool
	}{
		{"a day before", at(10, 0).Add(-24 * time.Hour), tutorID, false},
		{"exactly at window", at(10, 0).Add(-window), tutorID, false},
		{"just inside window", at(10, 0).Add(-window + time.Minute), tutorID, true},
		{"student inside window", at(9, 30), studentA, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			session := privateGroup(t, h, 2)

			h.setNow(tt.now)
			result, err := h.booking.CancelSession(h.ctx, model.Actor{UserID: tt.actor}, session.ID, "")
			require.NoError(t, err)

			assert.Equal(t, tt.wantLate, result.LateCancellation)
			assert.InDelta(t, at(10, 0).Sub(tt.now).Hours(), result.HoursUntilStart, 1e-9)
			assert.Equal(t, model.SessionCancelled, result.Session.Status)
		})
	}
}

func TestCancelSessionErrorsReturnNoResult(t *testing.T) {
	h := newHarness(t)
	session := privateGroup(t, h, 2)

	result, err := h.booking.CancelSession(h.ctx, model.Actor{UserID: studentB}, session.ID, "")
	requireErrorIs(t, err, apperr.ErrPermission)
	assert.Nil(t, result)
}

func TestStudentCancelRemovesOnlyThatStudent(t *testing.T) {
	h := newHarness(t)
	session := h.publicSession(t, 3)
	_, err := h.participation.JoinPublicSession(h.ctx, studentB, session.ID)
	require.NoError(t, err)

	afterA, err := h.booking.HandleSessionAction(h.ctx, model.Actor{UserID: studentA}, session.ID, SessionActionRequest{Action: ActionCancel})
	require.NoError(t, err)
	assert.Equal(t, model.SessionConfirmed, afterA.Status)
	assert.Equal(t, []int64{studentB}, afterA.StudentIDs())
	assert.Equal(t, 1, h.sink.count(tutorID, model.NotificationParticipantLeft))

	afterB, err := h.booking.HandleSessionAction(h.ctx, model.Actor{UserID: studentB}, session.ID, SessionActionRequest{Action: ActionCancel})
	require.NoError(t, err)
	assert.Equal(t, model.SessionCancelled, afterB.Status)
	assert.Equal(t, model.CancelledByStudent, afterB.CancelledBy)
	assert.Equal(t, "User cancelled.", afterB.CancellationReason)
	assert.Empty(t, afterB.StudentIDs())
	assert.Equal(t, 1, h.sink.count(tutorID, model.NotificationSessionCancelled))

	assert.Equal(t, [][2]time.Time{interval(at(11, 0), at(12, 0))}, h.slots(t))
}

func TestRequesterCancelDuringNegotiation(t *testing.T) {
	h := newHarness(t)
	h.slot(t, at(10, 0), at(12, 0))
	session := h.request(t, studentA, at(10, 0), at(11, 0), model.RequestOneOnOne)
	_, err := h.booking.ProposeNegotiation(h.ctx, tutorID, session.ID, model.NegotiationProposal{Message: "m"})
	require.NoError(t, err)

	cancelled, err := h.booking.HandleSessionAction(h.ctx, model.Actor{UserID: studentA}, session.ID, SessionActionRequest{Action: ActionCancel})
	require.NoError(t, err)
	assert.Equal(t, model.SessionCancelled, cancelled.Status)
	assert.Nil(t, cancelled.Proposal)
}

func TestCancelErrors(t *testing.T) {
	h := newHarness(t)
	h.slot(t, at(10, 0), at(12, 0))
	session := h.request(t, studentA, at(10, 0), at(11, 0), model.RequestOneOnOne)

	// из WAITING_FOR_TUTOR отмена недоступна
	_, err := h.booking.HandleSessionAction(h.ctx, model.Actor{UserID: tutorID}, session.ID, SessionActionRequest{Action: ActionCancel})
	requireErrorIs(t, err, apperr.ErrState)

	h.confirm(t, session.ID, 1, false)

	_, err = h.booking.HandleSessionAction(h.ctx, model.Actor{UserID: studentB}, session.ID, SessionActionRequest{Action: ActionCancel})
	requireErrorIs(t, err, apperr.ErrPermission)

	_, err = h.booking.HandleSessionAction(h.ctx, model.Actor{UserID: tutorID}, session.ID, SessionActionRequest{Action: "archive"})
	requireErrorIs(t, err, apperr.ErrValidation)
}

func TestComplete(t *testing.T) {
	tests := []struct {
		name    string
		actor   model.Actor
		wantErr error
	}{
		{"tutor", model.Actor{UserID: tutorID}, nil},
		{"admin", model.Actor{UserID: adminID, Roles: []model.Role{model.RoleAdmin}}, nil},
		{"department chair", model.Actor{UserID: deptChairID, Roles: []model.Role{model.RoleDeptChair}}, nil},
		{"coordinator", model.Actor{UserID: deptChairID, Roles: []model.Role{model.RoleCoord}}, apperr.ErrPermission},
		{"participant", model.Actor{UserID: studentA, Roles: []model.Role{model.RoleStudent}}, apperr.ErrPermission},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			session := h.publicSession(t, 3)
			_, err := h.participation.JoinPublicSession(h.ctx, studentB, session.ID)
			require.NoError(t, err)

			completed, err := h.booking.HandleSessionAction(h.ctx, tt.actor, session.ID, SessionActionRequest{Action: ActionComplete})
			if tt.wantErr != nil {
				requireErrorIs(t, err, tt.wantErr)
				assert.Empty(t, h.feedback.sessions)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, model.SessionCompleted, completed.Status)
			require.Len(t, h.feedback.sessions, 1)
			assert.Equal(t, []int64{studentA, studentB}, h.feedback.sessions[0].ActiveStudentIDs())
			assert.Equal(t, 1, h.sink.count(studentA, model.NotificationFeedbackRequest))
			assert.Equal(t, 1, h.sink.count(studentB, model.NotificationFeedbackRequest))
		})
	}
}

func TestCompleteRequiresConfirmed(t *testing.T) {
	h := newHarness(t)
	h.slot(t, at(10, 0), at(12, 0))
	session := h.request(t, studentA, at(10, 0), at(11, 0), model.RequestOneOnOne)

	_, err := h.booking.HandleSessionAction(h.ctx, model.Actor{UserID: tutorID}, session.ID, SessionActionRequest{Action: ActionComplete})
	requireErrorIs(t, err, apperr.ErrState)
}

// Из конечных статусов любое действие заканчивается StateError
func TestTerminalStatesRejectAllTransitions(t *testing.T) {
	setups := map[model.SessionStatus]func(t *testing.T, h *harness, id int64){
		model.SessionRejected: func(t *testing.T, h *harness, id int64) {
			_, err := h.booking.HandleSessionAction(h.ctx, model.Actor{UserID: tutorID}, id, SessionActionRequest{Action: ActionReject})
			require.NoError(t, err)
		},
		model.SessionCancelled: func(t *testing.T, h *harness, id int64) {
			h.confirm(t, id, 1, false)
			_, err := h.booking.HandleSessionAction(h.ctx, model.Actor{UserID: tutorID}, id, SessionActionRequest{Action: ActionCancel})
			require.NoError(t, err)
		},
		model.SessionCompleted: func(t *testing.T, h *harness, id int64) {
			h.confirm(t, id, 1, false)
			_, err := h.booking.HandleSessionAction(h.ctx, model.Actor{UserID: tutorID}, id, SessionActionRequest{Action: ActionComplete})
			require.NoError(t, err)
		},
	}

	tutor := model.Actor{UserID: tutorID}
	for status, setup := range setups {
		t.Run(string(status), func(t *testing.T) {
			h := newHarness(t)
			h.slot(t, at(10, 0), at(12, 0))
			session := h.request(t, studentA, at(10, 0), at(11, 0), model.RequestOneOnOne)
			setup(t, h, session.ID)
			require.Equal(t, status, h.session(t, session.ID).Status)

			attempts := map[string]func() error{
				"confirm": func() error {
					_, err := h.booking.HandleSessionAction(h.ctx, tutor, session.ID, SessionActionRequest{
						Action: ActionConfirm, Details: &model.ConfirmDetails{MaxCapacity: 1},
					})
					return err
				},
				"reject": func() error {
					_, err := h.booking.HandleSessionAction(h.ctx, tutor, session.ID, SessionActionRequest{Action: ActionReject})
					return err
				},
				"cancel": func() error {
					_, err := h.booking.HandleSessionAction(h.ctx, tutor, session.ID, SessionActionRequest{Action: ActionCancel})
					return err
				},
				"complete": func() error {
					_, err := h.booking.HandleSessionAction(h.ctx, tutor, session.ID, SessionActionRequest{Action: ActionComplete})
					return err
				},
				"propose": func() error {
					_, err := h.booking.ProposeNegotiation(h.ctx, tutorID, session.ID, model.NegotiationProposal{Message: "m"})
					return err
				},
				"resolve": func() error {
					_, err := h.booking.ResolveNegotiation(h.ctx, studentA, session.ID, ResolveReject, nil)
					return err
				},
			}

			for name, attempt := range attempts {
				err := attempt()
				assert.Truef(t, errors.Is(err, apperr.ErrState), "%s: expected state error, got %v", name, err)
			}
			assert.Equal(t, status, h.session(t, session.ID).Status)
		})
	}
}

func TestUpdateSessionTopicAndLocation(t *testing.T) {
	h := newHarness(t)
	h.slot(t, at(10, 0), at(12, 0))
	session := h.request(t, studentA, at(10, 0), at(11, 0), model.RequestOneOnOne)
	h.confirm(t, session.ID, 1, false)

	updated, err := h.booking.UpdateSessionTopic(h.ctx, tutorID, session.ID, "Trees")
	require.NoError(t, err)
	assert.Equal(t, "Trees", updated.Topic)

	updated, err = h.booking.UpdateSessionLocation(h.ctx, tutorID, session.ID, "Room 5")
	require.NoError(t, err)
	assert.Equal(t, "Room 5", updated.Location)
	assert.Equal(t, 2, h.sink.count(studentA, model.NotificationSessionUpdated))

	_, err = h.booking.UpdateSessionTopic(h.ctx, studentA, session.ID, "Mine")
	requireErrorIs(t, err, apperr.ErrPermission)

	h.setNow(at(10, 0))
	_, err = h.booking.UpdateSessionLocation(h.ctx, tutorID, session.ID, "Room 6")
	requireErrorIs(t, err, apperr.ErrState)

	// тему можно менять и после начала
	_, err = h.booking.UpdateSessionTopic(h.ctx, tutorID, session.ID, "Heaps")
	require.NoError(t, err)
}

func TestUpdateParticipationWindow(t *testing.T) {
	tests := []struct {
		name    string
		now     time.Time
		wantErr error
	}{
		{"too early", at(9, 29), apperr.ErrState},
		{"window opens", at(9, 30), nil},
		{"during session", at(10, 30), nil},
		{"window closes", at(10, 0).Add(24 * time.Hour), nil},
		{"too late", at(10, 1).Add(24 * time.Hour), apperr.ErrState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.slot(t, at(10, 0), at(12, 0))
			session := h.request(t, studentA, at(10, 0), at(11, 0), model.RequestOneOnOne)
			h.confirm(t, session.ID, 1, false)

			h.setNow(tt.now)
			updated, err := h.booking.UpdateParticipation(h.ctx, tutorID, session.ID, studentA, model.ParticipationAttended)
			if tt.wantErr != nil {
				requireErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, model.ParticipationAttended, updated.Participant(studentA).Status)
		})
	}
}

func TestUpdateParticipationErrors(t *testing.T) {
	h := newHarness(t)
	h.slot(t, at(10, 0), at(12, 0))
	session := h.request(t, studentA, at(10, 0), at(11, 0), model.RequestOneOnOne)

	h.setNow(at(10, 0))
	_, err := h.booking.UpdateParticipation(h.ctx, tutorID, session.ID, studentA, model.ParticipationAttended)
	requireErrorIs(t, err, apperr.ErrState)

	h.setNow(day.Add(-24 * time.Hour))
	h.confirm(t, session.ID, 1, false)
	h.setNow(at(10, 0))

	_, err = h.booking.UpdateParticipation(h.ctx, tutorID, session.ID, studentA, "late")
	requireErrorIs(t, err, apperr.ErrValidation)

	_, err = h.booking.UpdateParticipation(h.ctx, tutorID, session.ID, studentB, model.ParticipationAbsent)
	requireErrorIs(t, err, apperr.ErrNotFound)

	_, err = h.booking.UpdateParticipation(h.ctx, studentA, session.ID, studentA, model.ParticipationAbsent)
	requireErrorIs(t, err, apperr.ErrPermission)

	// после завершения отметки ещё можно править
	_, err = h.booking.HandleSessionAction(h.ctx, model.Actor{UserID: tutorID}, session.ID, SessionActionRequest{Action: ActionComplete})
	require.NoError(t, err)
	updated, err := h.booking.UpdateParticipation(h.ctx, tutorID, session.ID, studentA, model.ParticipationAbsent)
	require.NoError(t, err)
	assert.Equal(t, model.ParticipationAbsent, updated.Participant(studentA).Status)
}

func TestCompleteEndedSessions(t *testing.T) {
	h := newHarness(t)
	h.slot(t, at(8, 0), at(14, 0))
	ended := h.request(t, studentA, at(8, 0), at(9, 0), model.RequestOneOnOne)
	h.confirm(t, ended.ID, 1, false)
	waiting := h.request(t, studentB, at(9, 0), at(10, 0), model.RequestOneOnOne)
	upcoming := h.request(t, studentC, at(12, 0), at(13, 0), model.RequestOneOnOne)
	h.confirm(t, upcoming.ID, 1, false)

	h.setNow(at(11, 0))
	count, err := h.booking.CompleteEndedSessions(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.Equal(t, model.SessionCompleted, h.session(t, ended.ID).Status)
	assert.Equal(t, model.SessionWaitingForTutor, h.session(t, waiting.ID).Status)
	assert.Equal(t, model.SessionConfirmed, h.session(t, upcoming.ID).Status)
	require.Len(t, h.feedback.sessions, 1)
	assert.Equal(t, ended.ID, h.feedback.sessions[0].ID)

	// повторный запуск ничего не делает
	count, err = h.booking.CompleteEndedSessions(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestNotificationFailureDoesNotFailOperation(t *testing.T) {
	h := newHarness(t)
	h.sink.err = errors.New("telegram is down")
	h.slot(t, at(10, 0), at(12, 0))

	session := h.request(t, studentA, at(10, 0), at(11, 0), model.RequestOneOnOne)
	confirmed := h.confirm(t, session.ID, 1, false)
	assert.Equal(t, model.SessionConfirmed, confirmed.Status)
}

func TestEveryWriteBumpsVersion(t *testing.T) {
	h := newHarness(t)
	h.slot(t, at(10, 0), at(12, 0))
	session := h.request(t, studentA, at(10, 0), at(11, 0), model.RequestOneOnOne)
	assert.Equal(t, int64(1), session.Version)

	h.confirm(t, session.ID, 1, false)
	assert.Equal(t, int64(2), h.session(t, session.ID).Version)

	// повторная отметка того же статуса ничего не пишет
	h.setNow(at(10, 0))
	_, err := h.booking.UpdateParticipation(h.ctx, tutorID, session.ID, studentA, model.ParticipationConfirmed)
	require.NoError(t, err)
	assert.Equal(t, int64(2), h.session(t, session.ID).Version)
}

// conflictingStore отвечает конфликтом версии на запись выбранной сессии
type conflictingStore struct {
	*memory.Store
	failID int64
}

func (s *conflictingStore) InTutorTx(ctx context.Context, tutorID int64, fn func(tx repository.Tx) error) error {
	return s.Store.InTutorTx(ctx, tutorID, func(tx repository.Tx) error {
		return fn(conflictingTx{Tx: tx, failID: s.failID})
	})
}

type conflictingTx struct {
	repository.Tx
	failID int64
}

func (t conflictingTx) Sessions() repository.Sessions {
	return conflictingSessions{Sessions: t.Tx.Sessions(), failID: t.failID}
}

type conflictingSessions struct {
	repository.Sessions
	failID int64
}

func (s conflictingSessions) Update(ctx context.Context, session *model.TutorSession) error {
	if session.ID == s.failID {
		return apperr.NewConflict("session %d was modified concurrently", session.ID)
	}
	return s.Sessions.Update(ctx, session)
}

func TestCompleteEndedSessionsCountsOnlyCommitted(t *testing.T) {
	h := newHarness(t)
	h.slot(t, at(8, 0), at(12, 0))
	first := h.request(t, studentA, at(8, 0), at(9, 0), model.RequestOneOnOne)
	h.confirm(t, first.ID, 1, false)
	second := h.request(t, studentB, at(9, 0), at(10, 0), model.RequestOneOnOne)
	h.confirm(t, second.ID, 1, false)

	core := NewCore(&conflictingStore{Store: h.store, failID: second.ID}, h.profiles, fakeCourses{}, h.sink, h.feedback, config.DefaultPolicy(), zap.NewNop())
	core.SetClock(h.now)
	booking := NewBookingService(core, NewAvailabilityService(core))

	h.setNow(at(11, 0))
	count, err := booking.CompleteEndedSessions(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.Equal(t, model.SessionCompleted, h.session(t, first.ID).Status)
	assert.Equal(t, model.SessionConfirmed, h.session(t, second.ID).Status)
	require.Len(t, h.feedback.sessions, 1)
	assert.Equal(t, first.ID, h.feedback.sessions[0].ID)
}
