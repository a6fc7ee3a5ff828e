package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore хранилище на PostgreSQL.
// Транзакции тутора сериализуются через pg_advisory_xact_lock, поэтому проверка
// пересечений и запись атомарны даже при нескольких экземплярах сервиса.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) Slots() Slots {
	return NewSlotRepository(s.pool)
}

func (s *PgStore) Sessions() Sessions {
	return NewSessionRepository(s.pool)
}

// InTutorTx выполняет fn в транзакции с advisory-блокировкой таймлайна тутора
func (s *PgStore) InTutorTx(ctx context.Context, tutorID int64, fn func(tx Tx) error) error {
	// Начинаем транзакцию
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Блокировка снимается автоматически при commit/rollback
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended('tutor_timeline', $1))`, tutorID); err != nil {
		return fmt.Errorf("lock tutor timeline: %w", err)
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	// Коммитим транзакцию
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Slots() Slots {
	return NewSlotRepository(t.tx)
}

func (t *pgTx) Sessions() Sessions {
	return NewSessionRepository(t.tx)
}
