package cache

import (
	"context"
	"sync"
	"time"
)

// Memory — кэш в памяти процесса.
//
// Используется в тестах и в single-node разработке без Postgres.
// Продакшен-реализация — repo.KVRepo (общая для всех worker'ов).
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemory создаёт пустой кэш в памяти.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

// Get возвращает значение по ключу или ErrNotFound.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}

	// Возвращаем копию: вызывающий не должен видеть чужие мутации
	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

// Set кладёт значение, перезаписывая существующее.
func (m *Memory) Set(_ context.Context, key string, value []byte, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	m.entries[key] = memoryEntry{value: stored, expiresAt: expiresAt}
	return nil
}

// Delete удаляет ключ.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// DeleteExpired удаляет записи с истёкшим expiresAt.
// Возвращает количество удалённых записей.
func (m *Memory) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int
	for key, entry := range m.entries {
		if !entry.expiresAt.IsZero() && entry.expiresAt.Before(now) {
			delete(m.entries, key)
			deleted++
		}
	}
	return deleted, nil
}

// Len возвращает количество записей.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
