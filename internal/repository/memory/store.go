// Package memory хранилище в памяти с теми же гарантиями, что и PgStore:
// транзакции тутора сериализуются, при ошибке изменения откатываются.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Freeeeeet/tutor_bot/internal/apperr"
	"github.com/Freeeeeet/tutor_bot/internal/model"
	"github.com/Freeeeeet/tutor_bot/internal/repository"
)

type Store struct {
	mutex    sync.RWMutex
	slots    map[int64]*model.AvailabilitySlot
	sessions map[int64]*model.TutorSession

	slotPK    int64
	sessionPK int64

	tutorMu    sync.Mutex
	tutorLocks map[int64]*sync.Mutex

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		slots:      make(map[int64]*model.AvailabilitySlot),
		sessions:   make(map[int64]*model.TutorSession),
		tutorLocks: make(map[int64]*sync.Mutex),
		now:        time.Now,
	}
}

// SetClock подменяет источник времени для created_at/updated_at
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Store) Slots() repository.Slots {
	return &slotRepository{txView{store: s}}
}

func (s *Store) Sessions() repository.Sessions {
	return &sessionRepository{txView{store: s}}
}

// InTutorTx выполняет fn эксклюзивно для тутора; при ошибке все изменения откатываются
func (s *Store) InTutorTx(ctx context.Context, tutorID int64, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := s.tutorLock(tutorID)
	lock.Lock()
	defer lock.Unlock()

	tx := &memTx{view: txView{store: s, undo: new([]func())}}
	if err := fn(tx); err != nil {
		s.mutex.Lock()
		undo := *tx.view.undo
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		s.mutex.Unlock()
		return err
	}

	return nil
}

func (s *Store) tutorLock(tutorID int64) *sync.Mutex {
	s.tutorMu.Lock()
	defer s.tutorMu.Unlock()

	lock, ok := s.tutorLocks[tutorID]
	if !ok {
		lock = &sync.Mutex{}
		s.tutorLocks[tutorID] = lock
	}
	return lock
}

type memTx struct {
	view txView
}

func (t *memTx) Slots() repository.Slots {
	return &slotRepository{t.view}
}

func (t *memTx) Sessions() repository.Sessions {
	return &sessionRepository{t.view}
}

// txView доступ к данным; undo != nil только внутри транзакции
type txView struct {
	store *Store
	undo  *[]func()
}

// record запоминает обратную операцию. Вызывается под store.mutex.
func (v txView) record(fn func()) {
	if v.undo != nil {
		*v.undo = append(*v.undo, fn)
	}
}

type slotRepository struct {
	txView
}

func (r *slotRepository) Create(_ context.Context, slot *model.AvailabilitySlot) error {
	db := r.store
	db.mutex.Lock()
	defer db.mutex.Unlock()

	// Аналог exclusion-ограничения в БД
	for _, other := range db.slots {
		if other.TutorID == slot.TutorID && other.Overlaps(slot.StartTime, slot.EndTime) {
			return apperr.NewConflict("time overlaps with an existing availability slot").
				WithInterval(slot.StartTime, slot.EndTime)
		}
	}

	db.slotPK++
	slot.ID = db.slotPK
	slot.CreatedAt = db.now()
	db.slots[slot.ID] = slot.Clone()

	id := slot.ID
	r.record(func() { delete(db.slots, id) })
	return nil
}

func (r *slotRepository) Delete(_ context.Context, id int64) error {
	db := r.store
	db.mutex.Lock()
	defer db.mutex.Unlock()

	slot, ok := db.slots[id]
	if !ok {
		return apperr.NewNotFound("slot", id)
	}
	delete(db.slots, id)

	r.record(func() { db.slots[id] = slot })
	return nil
}

func (r *slotRepository) GetByID(_ context.Context, id int64) (*model.AvailabilitySlot, error) {
	r.store.mutex.RLock()
	defer r.store.mutex.RUnlock()

	slot, ok := r.store.slots[id]
	if !ok {
		return nil, nil
	}
	return slot.Clone(), nil
}

func (r *slotRepository) ListByTutor(_ context.Context, tutorID int64) ([]*model.AvailabilitySlot, error) {
	return r.filter(func(s *model.AvailabilitySlot) bool {
		return s.TutorID == tutorID
	}), nil
}

func (r *slotRepository) FindOverlapping(_ context.Context, tutorID int64, start, end time.Time) ([]*model.AvailabilitySlot, error) {
	return r.filter(func(s *model.AvailabilitySlot) bool {
		return s.TutorID == tutorID && s.Overlaps(start, end)
	}), nil
}

func (r *slotRepository) FindCovering(_ context.Context, tutorID int64, start, end time.Time, mode model.LocationMode) (*model.AvailabilitySlot, error) {
	slots := r.filter(func(s *model.AvailabilitySlot) bool {
		return s.TutorID == tutorID && s.Covers(start, end) && (mode == "" || s.SupportsMode(mode))
	})
	if len(slots) == 0 {
		return nil, nil
	}
	return slots[0], nil
}

// filter возвращает копии слотов по возрастанию времени начала
func (r *slotRepository) filter(match func(*model.AvailabilitySlot) bool) []*model.AvailabilitySlot {
	r.store.mutex.RLock()
	defer r.store.mutex.RUnlock()

	var out []*model.AvailabilitySlot
	for _, s := range r.store.slots {
		if match(s) {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

type sessionRepository struct {
	txView
}

func (r *sessionRepository) Create(_ context.Context, session *model.TutorSession) error {
	db := r.store
	db.mutex.Lock()
	defer db.mutex.Unlock()

	db.sessionPK++
	session.ID = db.sessionPK
	session.Version = 1
	session.CreatedAt = db.now()
	session.UpdatedAt = session.CreatedAt
	db.sessions[session.ID] = session.Clone()

	id := session.ID
	r.record(func() { delete(db.sessions, id) })
	return nil
}

func (r *sessionRepository) GetByID(_ context.Context, id int64) (*model.TutorSession, error) {
	r.store.mutex.RLock()
	defer r.store.mutex.RUnlock()

	if s, ok := r.store.sessions[id]; ok {
		return s.Clone(), nil
	}
	return nil, nil
}

func (r *sessionRepository) Update(_ context.Context, session *model.TutorSession) error {
	db := r.store
	db.mutex.Lock()
	defer db.mutex.Unlock()

	current, ok := db.sessions[session.ID]
	if !ok || current.Version != session.Version {
		return apperr.NewConflict("session %d was modified concurrently", session.ID)
	}

	session.Version++
	session.UpdatedAt = db.now()
	db.sessions[session.ID] = session.Clone()

	r.record(func() { db.sessions[current.ID] = current })
	return nil
}

func (r *sessionRepository) FindLiveOverlapping(_ context.Context, tutorID int64, start, end time.Time, excludeID int64) ([]*model.TutorSession, error) {
	return r.filter(func(s *model.TutorSession) bool {
		return s.TutorID == tutorID &&
			s.ID != excludeID &&
			s.Status.IsLive() &&
			model.Overlaps(s.StartTime, s.EndTime, start, end)
	}, true), nil
}

func (r *sessionRepository) ListByTutor(_ context.Context, tutorID int64) ([]*model.TutorSession, error) {
	return r.filter(func(s *model.TutorSession) bool {
		return s.TutorID == tutorID
	}, false), nil
}

func (r *sessionRepository) ListByStudent(_ context.Context, studentID int64) ([]*model.TutorSession, error) {
	return r.filter(func(s *model.TutorSession) bool {
		return s.HasStudent(studentID)
	}, false), nil
}

func (r *sessionRepository) ListPublic(_ context.Context, q repository.PublicSessionQuery) ([]*model.TutorSession, error) {
	return r.filter(func(s *model.TutorSession) bool {
		return s.IsPublic &&
			s.Status == model.SessionConfirmed &&
			s.StartTime.After(q.StartsAfter) &&
			(q.CourseCode == "" || s.CourseCode == q.CourseCode)
	}, true), nil
}

func (r *sessionRepository) ListConfirmedEndedBefore(_ context.Context, t time.Time) ([]*model.TutorSession, error) {
	return r.filter(func(s *model.TutorSession) bool {
		return s.Status == model.SessionConfirmed && s.EndTime.Before(t)
	}, true), nil
}

// filter возвращает копии сессий, отсортированные по времени начала
func (r *sessionRepository) filter(match func(*model.TutorSession) bool, asc bool) []*model.TutorSession {
	r.store.mutex.RLock()
	defer r.store.mutex.RUnlock()

	var out []*model.TutorSession
	for _, s := range r.store.sessions {
		if match(s) {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		if asc {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out
}
