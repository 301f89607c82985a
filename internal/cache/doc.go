// Package cache определяет контракт key/value хранилища результатов задач.
//
// Структура:
//   - store.go  — интерфейс Store (get/set/delete по непрозрачным ключам)
//   - memory.go — реализация в памяти (тесты, single-node разработка)
//
// Общая для worker'ов реализация поверх Postgres — repo.KVRepo.
package cache
