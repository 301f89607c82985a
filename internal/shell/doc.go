// Package shell выполняет команды на удалённых машинах по SSH.
//
// Содержит SSH-клиент поверх golang.org/x/crypto/ssh и построенные
// на нём реализации проб доступности:
//   - client.go    — SSH-клиент и запуск команд
//   - probe.go     — SSH-проба машины (uptime, loadavg, пользователи)
//   - ping.go      — TCP-проверка доступности хоста
//   - transient.go — классификация ошибок для retry-политик
package shell
