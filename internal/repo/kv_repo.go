package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/billyhotjava/mist-ce/internal/cache"
)

// KVRepo — key/value кэш результатов задач поверх Postgres.
//
// Реализует cache.Store. Общий для всех worker-процессов — в отличие
// от cache.Memory, который живёт внутри одного процесса.
//
// Схема:
//
//	CREATE TABLE kv (
//	    key        text PRIMARY KEY,
//	    value      bytea NOT NULL,
//	    expires_at timestamptz,
//	    updated_at timestamptz NOT NULL
//	)
type KVRepo struct {
	pool *pgxpool.Pool
}

// Интерфейсная проверка: KVRepo — это cache.Store.
var _ cache.Store = (*KVRepo)(nil)

// NewKVRepo создаёт новый KVRepo.
func NewKVRepo(pool *pgxpool.Pool) *KVRepo {
	return &KVRepo{pool: pool}
}

// Get возвращает значение по ключу или cache.ErrNotFound.
//
// expires_at здесь не проверяется: свежесть и истечение результата
// применяет Task Runner, а expires_at — только маркер для sweeper.
func (r *KVRepo) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.pool.QueryRow(ctx,
		`SELECT value FROM kv WHERE key = $1`, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get kv: %w", err)
	}
	return value, nil
}

// Set кладёт значение, перезаписывая существующее.
func (r *KVRepo) Set(ctx context.Context, key string, value []byte, expiresAt time.Time) error {
	var expires *time.Time
	if !expiresAt.IsZero() {
		expires = &expiresAt
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO kv (key, value, expires_at, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
		    expires_at = EXCLUDED.expires_at,
		    updated_at = now()
	`, key, value, expires)
	if err != nil {
		return fmt.Errorf("set kv: %w", err)
	}
	return nil
}

// Delete удаляет ключ. Отсутствие ключа — не ошибка.
func (r *KVRepo) Delete(ctx context.Context, key string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM kv WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("delete kv: %w", err)
	}
	return nil
}

// DeleteExpired удаляет записи с истёкшим expires_at.
// Вызывается sweeper'ом. Возвращает количество удалённых записей.
func (r *KVRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := r.pool.Exec(ctx,
		`DELETE FROM kv WHERE expires_at IS NOT NULL AND expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired kv: %w", err)
	}
	return int(result.RowsAffected()), nil
}
