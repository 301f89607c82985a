// Package api — HTTP API сервиса.
//
// Файлы:
//   - handler.go           — Handler и его зависимости
//   - routes.go            — маршруты
//   - middleware.go        — logging, recovery, метрики
//   - response.go          — хелперы ответов
//   - dto.go               — request/response структуры
//   - task_handler.go      — триггер задач, кэш результатов, реестр
//   - inventory_handler.go — backends и инвентарь
//   - deploy_handler.go    — deployment-запросы
package api
