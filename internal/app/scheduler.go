package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SessionCompleter завершает подтверждённые сессии, время которых прошло
type SessionCompleter interface {
	CompleteEndedSessions(ctx context.Context) (int, error)
}

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	completer SessionCompleter
	interval  time.Duration
	logger    *zap.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewScheduler создаёт новый планировщик
func NewScheduler(completer SessionCompleter, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		completer: completer,
		interval:  interval,
		logger:    logger,
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start запускает фоновые задачи
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting background scheduler", zap.Duration("interval", s.interval))

	go s.runAutoCompleteTask(ctx)
}

// Stop останавливает фоновые задачи и ждёт завершения текущего прохода
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping background scheduler")
		close(s.stopChan)
	})
	<-s.done
}

// runAutoCompleteTask периодически завершает прошедшие занятия
func (s *Scheduler) runAutoCompleteTask(ctx context.Context) {
	defer close(s.done)

	// Первый запуск сразу при старте
	s.completeEnded(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.completeEnded(ctx)
		case <-s.stopChan:
			s.logger.Info("Auto-complete task stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Auto-complete task cancelled")
			return
		}
	}
}

func (s *Scheduler) completeEnded(ctx context.Context) {
	count, err := s.completer.CompleteEndedSessions(ctx)
	if err != nil {
		s.logger.Error("Failed to complete ended sessions", zap.Error(err))
		return
	}

	s.logger.Debug("Auto-complete pass finished", zap.Int("completed", count))
}
