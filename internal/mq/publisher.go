package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/billyhotjava/mist-ce/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeTaskSubmitted   MessageType = "task.submitted"
	MessageTypeDeployRequested MessageType = "deploy.requested"
	MessageTypeNotify          MessageType = "notify"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// TaskSubmittedPayload — payload для запуска задачи.
type TaskSubmittedPayload struct {
	// Task — имя задачи в реестре (list_machines, probe, ping, ...).
	Task string `json:"task"`

	// Call — аргументы вызова. Kwargs может нести seq_id цепочки.
	Call domain.Call `json:"call"`
}

// DeployRequestedPayload — payload для bounded-retry deployment задачи.
type DeployRequestedPayload struct {
	User      string `json:"user"`
	BackendID string `json:"backend_id"`
	MachineID string `json:"machine_id"`
	Host      string `json:"host"`
	Command   string `json:"command"`
	KeyID     string `json:"key_id,omitempty"`
	Username  string `json:"username,omitempty"`
	Port      int    `json:"port,omitempty"`

	// Attempt — номер попытки, начиная с нуля. Проставляется
	// deploy-runner'ом при перепланировании после транзиентного сбоя.
	Attempt int `json:"attempt,omitempty"`
}

// NotifyPayload — payload уведомления пользователю или оператору.
type NotifyPayload struct {
	// User — адресат. Пустой для административных уведомлений.
	User string `json:"user,omitempty"`

	Subject string `json:"subject"`
	Body    string `json:"body,omitempty"`
}

// Publish публикует сообщение в указанный exchange с routing key.
//
// expiration > 0 устанавливает per-message TTL (используется
// очередью tasks.delayed для отложенной доставки).
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message, expiration time.Duration) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
		MessageId:    msg.ID,
		Timestamp:    msg.Timestamp,
		Body:         body,
	}
	if expiration > 0 {
		publishing.Expiration = strconv.FormatInt(expiration.Milliseconds(), 10)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			publishing,
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishTaskSubmitted публикует задачу на выполнение.
//
// delay = 0 — задача уходит сразу в tasks.submitted.
// delay > 0 — задача попадает в tasks.delayed с TTL и доставится
// worker'у не раньше чем через delay.
// Потребитель: Worker.
func (p *Publisher) PublishTaskSubmitted(ctx context.Context, task string, call domain.Call, delay time.Duration) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeTaskSubmitted,
		Payload:   TaskSubmittedPayload{Task: task, Call: call},
		Timestamp: time.Now(),
	}

	if delay > 0 {
		return p.Publish(ctx, ExchangeTasks, RoutingKeyDelayed, msg, delay)
	}
	return p.Publish(ctx, ExchangeTasks, RoutingKeySubmitted, msg, 0)
}

// PublishDeployRequested публикует запрос на выполнение deployment-скрипта.
//
// delay > 0 — запрос пройдёт через tasks.delayed (повтор после
// транзиентного сбоя). Потребитель: Worker (deploy runner).
func (p *Publisher) PublishDeployRequested(ctx context.Context, payload DeployRequestedPayload, delay time.Duration) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeDeployRequested,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	if delay > 0 {
		return p.Publish(ctx, ExchangeTasks, RoutingKeyDelayed, msg, delay)
	}
	return p.Publish(ctx, ExchangeTasks, RoutingKeySubmitted, msg, 0)
}

// PublishNotify публикует уведомление в mist.notify.
// Потребитель: внешний почтовый/операторский шлюз.
func (p *Publisher) PublishNotify(ctx context.Context, routingKey RoutingKey, payload NotifyPayload) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeNotify,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeNotify, routingKey, msg, 0)
}
