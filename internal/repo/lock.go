package repo

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AdvisoryLock — неблокирующие session-level локи Postgres.
//
// Два применения:
//   - sweeper: выбор лидера среди нескольких экземпляров
//   - runner: короткий лок на идентичность задачи, отсекающий
//     одновременную обработку одной цепочки двумя worker'ами
//     после at-least-once redelivery
//
// Session-level лок живёт ровно столько, сколько живёт сессия,
// взявшая его: take и release обязаны пройти через одно и то же
// соединение. Поэтому на время удержания лока из пула забирается
// выделенное соединение и запоминается по ключу.
type AdvisoryLock struct {
	pool *pgxpool.Pool

	mu   sync.Mutex
	held map[int64]*pgxpool.Conn
}

// NewAdvisoryLock создаёт новый AdvisoryLock.
func NewAdvisoryLock(pool *pgxpool.Pool) *AdvisoryLock {
	return &AdvisoryLock{
		pool: pool,
		held: make(map[int64]*pgxpool.Conn),
	}
}

// TryLock пытается взять лок. Возвращает false, если лок занят.
// Взятый лок удерживает соединение из пула до Unlock.
func (l *AdvisoryLock) TryLock(ctx context.Context, key int64) (bool, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire conn for advisory lock: %w", err)
	}

	var ok bool
	if err := conn.QueryRow(ctx,
		`SELECT pg_try_advisory_lock($1)`, key,
	).Scan(&ok); err != nil {
		conn.Release()
		return false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !ok {
		conn.Release()
		return false, nil
	}

	l.mu.Lock()
	l.held[key] = conn
	l.mu.Unlock()
	return true, nil
}

// Unlock освобождает лок и возвращает его соединение в пул.
func (l *AdvisoryLock) Unlock(ctx context.Context, key int64) error {
	l.mu.Lock()
	conn, ok := l.held[key]
	delete(l.held, key)
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("advisory unlock: lock %d is not held", key)
	}

	var released bool
	err := conn.QueryRow(ctx,
		`SELECT pg_advisory_unlock($1)`, key,
	).Scan(&released)
	if err != nil || !released {
		// Соединение с неснятым локом нельзя возвращать в пул:
		// лок достался бы случайному будущему владельцу сессии.
		conn.Conn().Close(ctx)
		conn.Release()
		if err != nil {
			return fmt.Errorf("advisory unlock: %w", err)
		}
		return fmt.Errorf("advisory unlock: lock %d was not held by its session", key)
	}

	conn.Release()
	return nil
}

// LockKey сворачивает строковый ключ (cache key) в int64 для advisory lock.
func LockKey(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}

// IdentityLock — advisory lock, ключуемый строковой идентичностью задачи.
//
// Реализует runner.Locker: worker берёт короткий лок на cache key,
// чтобы два экземпляра не обрабатывали одну цепочку одновременно.
type IdentityLock struct {
	lock *AdvisoryLock
}

// NewIdentityLock создаёт новый IdentityLock.
func NewIdentityLock(pool *pgxpool.Pool) *IdentityLock {
	return &IdentityLock{lock: NewAdvisoryLock(pool)}
}

// TryLock пытается взять лок на идентичность.
func (l *IdentityLock) TryLock(ctx context.Context, key string) (bool, error) {
	return l.lock.TryLock(ctx, LockKey(key))
}

// Unlock освобождает лок идентичности.
func (l *IdentityLock) Unlock(ctx context.Context, key string) error {
	return l.lock.Unlock(ctx, LockKey(key))
}
