// Package domain содержит базовые типы предметной области.
//
// Структура:
//   - call.go      — Call: аргументы вызова задачи (user, args, kwargs)
//   - identity.go  — построение стабильного cache key из идентичности задачи
//   - records.go   — ResultRecord и ErrorRecord, хранимые в кэше
//   - inventory.go — инвентарные типы (Backend, Machine, Image, ...)
//
// Типы не зависят от инфраструктуры (БД, MQ) и используются
// всеми остальными пакетами.
package domain
