package service

import "sync"

// TutorLocks мьютексы по tutor_id. Запись удаляется, когда её никто не держит.
type TutorLocks struct {
	mu    sync.Mutex
	locks map[int64]*tutorLock
}

type tutorLock struct {
	mu   sync.Mutex
	refs int
}

func NewTutorLocks() *TutorLocks {
	return &TutorLocks{locks: make(map[int64]*tutorLock)}
}

// Lock захватывает таймлайн тутора и возвращает функцию освобождения
func (l *TutorLocks) Lock(tutorID int64) func() {
	l.mu.Lock()
	lock, ok := l.locks[tutorID]
	if !ok {
		lock = &tutorLock{}
		l.locks[tutorID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()

		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, tutorID)
		}
		l.mu.Unlock()
	}
}

func (l *TutorLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
