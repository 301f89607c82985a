// Package deploy выполняет deployment-скрипты на машинах пользователей.
//
// В отличие от кэшируемых задач (см. internal/tasks и internal/runner),
// deployment — одноразовая операция: результат не кэшируется, цепочка
// не перезапускается. Повторы ограничены и разрешены только после
// транзиентных сетевых сбоев; финальный исход всегда доносится
// до пользователя и оператора.
package deploy
