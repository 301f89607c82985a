package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound — запись отсутствует в хранилище.
var ErrNotFound = errors.New("not found")

// Store — контракт key/value кэша, разделяемого всеми worker-процессами.
//
// Под cache key лежит ResultRecord, под cache key + "error" — ErrorRecord.
// Транзакционности между двумя ключами одной идентичности нет:
// читатель обязан переносить read skew (error-запись при живой
// result-записи и наоборот).
//
// expiresAt в Set — подсказка для sweeper (фоновая уборка устаревших
// записей); путь чтения по ней не фильтрует, свежесть и истечение
// результата применяет сам Task Runner. Нулевое время — без уборки.
type Store interface {
	// Get возвращает значение по ключу или ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set кладёт значение, перезаписывая существующее.
	Set(ctx context.Context, key string, value []byte, expiresAt time.Time) error

	// Delete удаляет ключ. Отсутствие ключа — не ошибка.
	Delete(ctx context.Context, key string) error
}
