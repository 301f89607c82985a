// Package repo предоставляет доступ к Postgres через pgx.
//
// Структура:
//   - db.go           — создание пула соединений
//   - kv_repo.go      — key/value кэш результатов задач (cache.Store)
//   - backend_repo.go — облачные backends пользователей
//   - machine_repo.go — синхронизированный инвентарь (машины, образы, ...)
//   - lock.go         — advisory locks (лидерство sweeper, fence идентичности)
//   - errors.go       — общие sentinel-ошибки
package repo
