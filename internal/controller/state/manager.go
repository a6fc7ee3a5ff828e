package state

import (
	"maps"
	"sync"
	"time"
)

// Manager хранит состояния диалогов в памяти, ключ - Telegram ID
type Manager struct {
	mu     sync.RWMutex
	states map[int64]*UserData
}

// NewManager создаёт новый менеджер состояний
func NewManager() *Manager {
	return &Manager{
		states: make(map[int64]*UserData),
	}
}

// GetState получает текущее состояние пользователя
func (sm *Manager) GetState(telegramID int64) UserState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if userData, exists := sm.states[telegramID]; exists {
		return userData.State
	}
	return StateNone
}

// SetState устанавливает состояние, StateNone удаляет диалог вместе с данными
func (sm *Manager) SetState(telegramID int64, state UserState) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if state == StateNone {
		delete(sm.states, telegramID)
		return
	}

	sm.entry(telegramID).State = state
}

// Start начинает новый диалог, данные предыдущего отбрасываются
func (sm *Manager) Start(telegramID int64, state UserState) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.states[telegramID] = &UserData{State: state, Data: make(map[string]any)}
}

// GetData получает временные данные пользователя
func (sm *Manager) GetData(telegramID int64, key string) (any, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if userData, exists := sm.states[telegramID]; exists {
		value, ok := userData.Data[key]
		return value, ok
	}
	return nil, false
}

// SetData устанавливает временные данные пользователя
func (sm *Manager) SetData(telegramID int64, key string, value any) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.entry(telegramID).Data[key] = value
}

// Int64 типизированное чтение, false если ключа нет или тип другой
func (sm *Manager) Int64(telegramID int64, key string) (int64, bool) {
	v, ok := sm.GetData(telegramID, key)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// String типизированное чтение строки
func (sm *Manager) String(telegramID int64, key string) (string, bool) {
	v, ok := sm.GetData(telegramID, key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Time типизированное чтение времени
func (sm *Manager) Time(telegramID int64, key string) (time.Time, bool) {
	v, ok := sm.GetData(telegramID, key)
	if !ok {
		return time.Time{}, false
	}
	t, ok := v.(time.Time)
	return t, ok
}

// ClearState очищает состояние и данные пользователя
func (sm *Manager) ClearState(telegramID int64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	delete(sm.states, telegramID)
}

// GetAllData возвращает копию данных диалога
func (sm *Manager) GetAllData(telegramID int64) map[string]any {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if userData, exists := sm.states[telegramID]; exists {
		return maps.Clone(userData.Data)
	}
	return nil
}

// entry вызывается под sm.mu
func (sm *Manager) entry(telegramID int64) *UserData {
	userData, exists := sm.states[telegramID]
	if !exists {
		userData = &UserData{State: StateNone, Data: make(map[string]any)}
		sm.states[telegramID] = userData
	}
	return userData
}
