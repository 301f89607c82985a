package mq

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// UserNotifier — presence пользователей и доставка результатов.
//
// Построен на fanout-обменниках mist.user.<id>: сессионный слой
// объявляет обменник при подключении пользователя (auto-delete),
// поэтому существование обменника и означает "кто-то слушает".
//
// Реализует интерфейс runner.Notifier.
type UserNotifier struct {
	conn      *Connection
	publisher *Publisher
	logger    *slog.Logger
}

// NewUserNotifier создаёт новый UserNotifier.
func NewUserNotifier(conn *Connection, publisher *Publisher, logger *slog.Logger) *UserNotifier {
	return &UserNotifier{
		conn:      conn,
		publisher: publisher,
		logger:    logger,
	}
}

// IsListening проверяет, ждёт ли кто-нибудь результатов для пользователя.
//
// Passive declare обменника пользователя: успех — слушатель есть,
// ошибка канала — обменника нет, никто не слушает. Ошибочный passive
// declare закрывает канал, поэтому проверка идёт на отдельном канале.
func (n *UserNotifier) IsListening(ctx context.Context, user string) bool {
	ch, err := n.conn.OpenChannel()
	if err != nil {
		n.logger.Warn("presence check: open channel", "user", user, "error", err)
		return false
	}
	defer ch.Close()

	err = ch.ExchangeDeclarePassive(
		string(UserExchange(user)), // name
		"fanout",                   // type
		false,                      // durable
		true,                       // auto-deleted
		false,                      // internal
		false,                      // no-wait
		nil,                        // arguments
	)
	return err == nil
}

// PublishUser доставляет результат задачи всем слушателям пользователя.
//
// routingKey — имя задачи; fanout-обменник игнорирует его при
// маршрутизации, но слушатели используют его для демультиплексирования.
// false — обменника нет (слушателей не осталось), результат не доставлен.
func (n *UserNotifier) PublishUser(ctx context.Context, user, routingKey string, payload json.RawMessage) bool {
	ch, err := n.conn.OpenChannel()
	if err != nil {
		n.logger.Warn("user publish: open channel", "user", user, "error", err)
		return false
	}
	defer ch.Close()

	exchange := string(UserExchange(user))

	// Passive declare вместо mandatory publish: ошибка видна синхронно,
	// а не асинхронным basic.return.
	if err := ch.ExchangeDeclarePassive(exchange, "fanout", false, true, false, false, nil); err != nil {
		return false
	}

	body, err := json.Marshal(Message{
		ID:        uuid.New().String(),
		Type:      MessageType(routingKey),
		Payload:   payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		n.logger.Error("user publish: marshal", "user", user, "error", err)
		return false
	}

	err = ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		n.logger.Warn("user publish failed", "user", user, "routing_key", routingKey, "error", err)
		return false
	}

	return true
}

// NotifyUser отправляет пользователю внеполосное уведомление (почта и т.п.).
// Fire-and-forget: ошибка логируется и не влияет на вызывающего.
func (n *UserNotifier) NotifyUser(ctx context.Context, user, subject, body string) {
	err := n.publisher.PublishNotify(ctx, RoutingKeyNotifyUser, NotifyPayload{
		User:    user,
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		n.logger.Warn("notify user failed", "user", user, "subject", subject, "error", err)
	}
}

// NotifyAdmin отправляет уведомление оператору.
// Fire-and-forget: ошибка логируется и не влияет на вызывающего.
func (n *UserNotifier) NotifyAdmin(ctx context.Context, subject, body string) {
	err := n.publisher.PublishNotify(ctx, RoutingKeyNotifyAdmin, NotifyPayload{
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		n.logger.Warn("notify admin failed", "subject", subject, "error", err)
	}
}
