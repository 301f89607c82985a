// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений в очереди
//   - consumer.go   — потребление сообщений из очередей
//   - submitter.go  — постановка задач в очередь (в т.ч. с задержкой)
//   - notifier.go   — presence пользователей и доставка результатов
//
// Типы сообщений:
//   - task.submitted   — задача поставлена на выполнение
//   - deploy.requested — запрошен запуск deployment-скрипта
//   - notify           — внеполосное уведомление (пользователь/оператор)
//
// Exchanges:
//   - mist.tasks       — задачи (включая отложенную доставку через tasks.delayed)
//   - mist.notify      — уведомления
//   - mist.user.<id>   — fanout результатов пользователю; presence
//   - mist.dlq         — dead letter queue
package mq
