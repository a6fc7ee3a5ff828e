package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/tutor_bot/internal/config"
	"github.com/Freeeeeet/tutor_bot/internal/model"
	"github.com/Freeeeeet/tutor_bot/internal/repository/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	tutorID     int64 = 1
	otherTutor  int64 = 2
	studentA    int64 = 10
	studentB    int64 = 11
	studentC    int64 = 12
	studentD    int64 = 13
	adminID     int64 = 90
	deptChairID int64 = 91
	courseCode        = "CS101"
)

// day все занятия в тестах проходят 14 января 2030 года
var day = time.Date(2030, 1, 14, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

type fakeProfiles struct {
	tutors   map[int64]*model.TutorProfile
	students map[int64]*model.StudentProfile
}

func (f *fakeProfiles) TutorProfileByUser(_ context.Context, userID int64) (*model.TutorProfile, error) {
	return f.tutors[userID], nil
}

func (f *fakeProfiles) StudentProfileByUser(_ context.Context, userID int64) (*model.StudentProfile, error) {
	return f.students[userID], nil
}

type fakeCourses map[string]*model.Course

func (f fakeCourses) CourseByCode(_ context.Context, code string) (*model.Course, error) {
	return f[code], nil
}

type sentNotice struct {
	receiverID int64
	typ        model.NotificationType
	sessionID  int64
	message    string
}

type recordingSink struct {
	mu      sync.Mutex
	notices []sentNotice
	err     error
}

func (r *recordingSink) Notify(_ context.Context, receiverID int64, typ model.NotificationType, sessionID *int64, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := sentNotice{receiverID: receiverID, typ: typ, message: message}
	if sessionID != nil {
		n.sessionID = *sessionID
	}
	r.notices = append(r.notices, n)
	return r.err
}

func (r *recordingSink) count(receiverID int64, typ model.NotificationType) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := 0
	for _, n := range r.notices {
		if n.receiverID == receiverID && n.typ == typ {
			c++
		}
	}
	return c
}

func (r *recordingSink) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = nil
}

type recordingFeedback struct {
	mu       sync.Mutex
	sessions []*model.TutorSession
}

func (r *recordingFeedback) CreateRecordsForSession(_ context.Context, session *model.TutorSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, session)
	return nil
}

type harness struct {
	ctx      context.Context
	store    *memory.Store
	profiles *fakeProfiles
	sink     *recordingSink
	feedback *recordingFeedback
	core     *Core

	availability  *AvailabilityService
	booking       *BookingService
	participation *ParticipationService
	query         *QueryService

	clockMu sync.Mutex
	clock   time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		ctx:   context.Background(),
		store: memory.NewStore(),
		profiles: &fakeProfiles{
			tutors: map[int64]*model.TutorProfile{
				tutorID:    {UserID: tutorID, DisplayName: "Anna Petrova"},
				otherTutor: {UserID: otherTutor, DisplayName: "Boris Ivanov"},
			},
			students: map[int64]*model.StudentProfile{
				studentA: {UserID: studentA, DisplayName: "Student A"},
				studentB: {UserID: studentB, DisplayName: "Student B"},
				studentC: {UserID: studentC, DisplayName: "Student C"},
				studentD: {UserID: studentD, DisplayName: "Student D"},
			},
		},
		sink:     &recordingSink{},
		feedback: &recordingFeedback{},
		// по умолчанию за сутки до занятий
		clock: day.Add(-24 * time.Hour),
	}

	courses := fakeCourses{
		courseCode: {Code: courseCode, Name: "Intro to Programming"},
		"MATH201":  {Code: "MATH201", Name: "Linear Algebra"},
	}

	h.core = NewCore(h.store, h.profiles, courses, h.sink, h.feedback, config.DefaultPolicy(), zap.NewNop())
	h.core.SetClock(h.now)
	h.store.SetClock(h.now)

	h.availability = NewAvailabilityService(h.core)
	h.booking = NewBookingService(h.core, h.availability)
	h.participation = NewParticipationService(h.core)
	h.query = NewQueryService(h.core)
	return h
}

func (h *harness) now() time.Time {
	h.clockMu.Lock()
	defer h.clockMu.Unlock()
	return h.clock
}

func (h *harness) setNow(t time.Time) {
	h.clockMu.Lock()
	defer h.clockMu.Unlock()
	h.clock = t
}

func (h *harness) slot(t *testing.T, start, end time.Time, modes ...model.LocationMode) *model.AvailabilitySlot {
	t.Helper()
	if len(modes) == 0 {
		modes = []model.LocationMode{model.LocationOnline}
	}
	slot, err := h.availability.CreateSlot(h.ctx, tutorID, start, end, modes)
	require.NoError(t, err)
	return slot
}

func (h *harness) request(t *testing.T, studentID int64, start, end time.Time, reqType model.RequestType) *model.TutorSession {
	t.Helper()
	session, err := h.booking.CreateBookingRequest(h.ctx, BookingRequest{
		StudentID:   studentID,
		TutorID:     tutorID,
		CourseCode:  courseCode,
		StartTime:   start,
		EndTime:     end,
		Mode:        model.LocationOnline,
		RequestType: reqType,
	})
	require.NoError(t, err)
	return session
}

func (h *harness) confirm(t *testing.T, sessionID int64, capacity int, public bool) *model.TutorSession {
	t.Helper()
	session, err := h.booking.HandleSessionAction(h.ctx, model.Actor{UserID: tutorID}, sessionID, SessionActionRequest{
		Action:  ActionConfirm,
		Details: &model.ConfirmDetails{MaxCapacity: capacity, IsPublic: public},
	})
	require.NoError(t, err)
	return session
}

// publicSession подтверждённая публичная сессия [10:00, 11:00) с автором studentA
func (h *harness) publicSession(t *testing.T, capacity int) *model.TutorSession {
	t.Helper()
	h.slot(t, at(10, 0), at(12, 0))
	session := h.request(t, studentA, at(10, 0), at(11, 0), model.RequestPublicGroup)
	return h.confirm(t, session.ID, capacity, true)
}

func (h *harness) slots(t *testing.T) [][2]time.Time {
	t.Helper()
	slots, err := h.availability.ListOpenSlots(h.ctx, tutorID)
	require.NoError(t, err)

	out := make([][2]time.Time, 0, len(slots))
	for _, s := range slots {
		out = append(out, [2]time.Time{s.StartTime, s.EndTime})
	}
	return out
}

func (h *harness) session(t *testing.T, id int64) *model.TutorSession {
	t.Helper()
	session, err := h.query.GetSession(h.ctx, id)
	require.NoError(t, err)
	return session
}

func interval(start, end time.Time) [2]time.Time {
	return [2]time.Time{start, end}
}

func requireErrorIs(t *testing.T, err error, target error) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, errors.Is(err, target), "expected %v, got %v", target, err)
}
