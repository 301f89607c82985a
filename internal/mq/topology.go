package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeTasks  Exchange = "mist.tasks"
	ExchangeNotify Exchange = "mist.notify"
	ExchangeDLQ    Exchange = "mist.dlq"
)

// Queues — имена очередей.
const (
	QueueTasksSubmitted Queue = "tasks.submitted"
	QueueTasksDelayed   Queue = "tasks.delayed"
	QueueNotifyUser     Queue = "notify.user"
	QueueNotifyAdmin    Queue = "notify.admin"
	QueueDLQTasks       Queue = "dlq.tasks"
)

// Routing keys.
const (
	RoutingKeySubmitted   RoutingKey = "submitted"
	RoutingKeyDelayed     RoutingKey = "delayed"
	RoutingKeyNotifyUser  RoutingKey = "user"
	RoutingKeyNotifyAdmin RoutingKey = "admin"
	RoutingKeyDLQTasks    RoutingKey = "tasks"
)

// userExchangePrefix — префикс fanout-обменника пользователя.
// Обменник создаётся сессионным слоем (SockJS/WebSocket), когда пользователь
// открывает сессию, и авто-удаляется, когда слушателей не остаётся.
// Наличие обменника = presence пользователя.
const userExchangePrefix = "mist.user."

// UserExchange возвращает имя fanout-обменника пользователя.
func UserExchange(user string) Exchange {
	return Exchange(userExchangePrefix + user)
}

func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		// 1. Создаём exchanges
		if err := declareExchanges(ch); err != nil {
			return err
		}

		// 2. Создаём queues
		if err := declareQueues(ch); err != nil {
			return err
		}

		// 3. Привязываем queues к exchanges
		if err := bindQueues(ch); err != nil {
			return err
		}

		return nil
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeTasks, "direct"},
		{ExchangeNotify, "direct"},
		{ExchangeDLQ, "direct"},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	// tasks.submitted: некорректные сообщения уходят в DLQ
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQTasks),
	}

	// tasks.delayed: очередь без потребителя. Сообщения публикуются
	// с per-message TTL и по истечении dead-letter'ятся обратно
	// в mist.tasks/submitted — так реализован submit с задержкой
	// поверх обычного RabbitMQ без плагинов.
	delayArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeTasks),
		"x-dead-letter-routing-key": string(RoutingKeySubmitted),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		{QueueTasksSubmitted, dlqArgs},
		{QueueTasksDelayed, delayArgs},

		// notify.* — fire-and-forget уведомления, без DLQ
		{QueueNotifyUser, nil},
		{QueueNotifyAdmin, nil},

		// сама DLQ очередь
		{QueueDLQTasks, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueTasksSubmitted, RoutingKeySubmitted, ExchangeTasks},
		{QueueTasksDelayed, RoutingKeyDelayed, ExchangeTasks},
		{QueueNotifyUser, RoutingKeyNotifyUser, ExchangeNotify},
		{QueueNotifyAdmin, RoutingKeyNotifyAdmin, ExchangeNotify},
		{QueueDLQTasks, RoutingKeyDLQTasks, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Mist RabbitMQ Topology:

    mist.tasks (direct)
    ├── tasks.submitted [routing: submitted]
    │       Consumer: Worker
    │       DLQ: dlq.tasks
    └── tasks.delayed [routing: delayed]
            No consumer; per-message TTL, dead-letters back to tasks.submitted

    mist.notify (direct)
    ├── notify.user [routing: user]
    └── notify.admin [routing: admin]
            Consumer: mail/ops gateway (external)

    mist.user.<id> (fanout, auto-delete)
    └── declared by the session layer; existence = user presence

    mist.dlq (direct)
    └── dlq.tasks [routing: tasks]
            Manual processing
  `
}
