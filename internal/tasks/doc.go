// Package tasks содержит определения задач, выполняемых фреймворком.
//
// Структура:
//   - registry.go   — интерфейс Definition, реестр задач, backoff по умолчанию
//   - interfaces.go — границы внешних коллабораторов (Inventory, Prober, ...)
//   - listing.go    — листинг инвентаря (list_machines, list_images, ...)
//   - probe.go      — SSH-проба машины (probe)
//   - ping.go       — проверка доступности хоста (ping)
//
// Каждая задача объявляет свои окна свежести/истечения результата,
// флаг polling и, при необходимости, собственную backoff-политику.
// Набор задач фиксируется на старте процесса и дальше не меняется.
package tasks
