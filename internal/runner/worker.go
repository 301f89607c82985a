package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/billyhotjava/mist-ce/internal/mq"
	"github.com/billyhotjava/mist-ce/internal/tasks"
)

const defaultPrefetch = 5

// DeployHandler обрабатывает запрос на deployment-скрипт.
// Реализация: deploy.Runner.Handle.
type DeployHandler func(ctx context.Context, payload mq.DeployRequestedPayload) error

// Worker потребляет задачи из очереди и прогоняет их через Runner.
//
// Worker — stateless компонент системы, который:
//   - Получает task-вызовы из tasks.submitted (event-driven)
//   - Находит определение задачи в реестре
//   - Передаёт вызов Runner'у (дедупликация, backoff, polling)
//   - Обрабатывает deployment-запросы отдельным handler'ом
//
// Workers масштабируются горизонтально — несколько экземпляров
// могут потреблять из одной очереди. Повторы и перепланирование
// идут не через nack, а через отложенную повторную публикацию,
// поэтому очередь всегда видит нормальное завершение обработки.
type Worker struct {
	runner   *Runner
	registry *tasks.Registry
	deploy   DeployHandler

	conn     *mq.Connection
	consumer *mq.Consumer
	prefetch int

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// WorkerConfig — конфигурация Worker.
type WorkerConfig struct {
	Runner   *Runner
	Registry *tasks.Registry

	// Deploy — обработчик deploy.requested (опционально; если nil —
	// deployment-запросы уходят в DLQ).
	Deploy DeployHandler

	// MQ
	Conn *mq.Connection

	// Prefetch — количество сообщений для предварительной загрузки.
	Prefetch int

	// Logger
	Logger *slog.Logger
}

// NewWorker создаёт новый Worker.
func NewWorker(cfg WorkerConfig) *Worker {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		runner:   cfg.Runner,
		registry: cfg.Registry,
		deploy:   cfg.Deploy,
		conn:     cfg.Conn,
		prefetch: prefetch,
		logger:   logger,
	}
}

// Start запускает Worker.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"tasks", len(w.registry.List()),
		"prefetch", w.prefetch,
	)

	w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
		Queue:    string(mq.QueueTasksSubmitted),
		Handler:  w.handleMessage,
		Prefetch: w.prefetch,
	})

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("task consumer error", "error", err)
		}
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	if w.consumer != nil {
		w.consumer.Stop()
	}

	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// handleMessage — диспетчер сообщений очереди.
//
// Доменные исходы (give-up, superseded, потеря слушателей) не
// превращаются в ошибку handler'а: сообщение подтверждается, цепочка
// решает свою судьбу через повторную публикацию. Nack получают только
// сообщения, которые невозможно интерпретировать.
func (w *Worker) handleMessage(ctx context.Context, msg *mq.Delivery) error {
	switch msg.Message.Type {
	case mq.MessageTypeTaskSubmitted:
		return w.handleTaskSubmitted(ctx, msg)

	case mq.MessageTypeDeployRequested:
		return w.handleDeployRequested(ctx, msg)

	default:
		w.logger.Warn("unexpected message type, dropping",
			"type", msg.Message.Type,
			"message_id", msg.Message.ID,
		)
		return nil
	}
}

// handleTaskSubmitted обрабатывает вызов задачи.
func (w *Worker) handleTaskSubmitted(ctx context.Context, msg *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.TaskSubmittedPayload](&msg.Message)
	if err != nil {
		w.logger.Error("invalid task payload, dropping",
			"message_id", msg.Message.ID,
			"error", err,
		)
		return nil
	}

	def, err := w.registry.Get(payload.Task)
	if err != nil {
		w.logger.Error("unknown task, dropping",
			"task", payload.Task,
			"message_id", msg.Message.ID,
		)
		return nil
	}

	disposition, err := w.runner.Process(ctx, def, payload.Call)
	if err != nil {
		// Инфраструктурный сбой: цепочка оборвана, Runner уже
		// залогировал детали. Сообщение не перекладывается обратно —
		// повтор того же вызова его не вылечит.
		w.logger.Error("task processing interrupted",
			"task", payload.Task,
			"disposition", disposition,
			"error", err,
		)
		return nil
	}

	w.logger.Debug("task processed",
		"task", payload.Task,
		"user", payload.Call.User,
		"disposition", disposition,
	)
	return nil
}

// handleDeployRequested обрабатывает deployment-запрос.
func (w *Worker) handleDeployRequested(ctx context.Context, msg *mq.Delivery) error {
	if w.deploy == nil {
		w.logger.Error("deploy handler not configured, dropping",
			"message_id", msg.Message.ID,
		)
		return nil
	}

	payload, err := mq.ParsePayload[mq.DeployRequestedPayload](&msg.Message)
	if err != nil {
		w.logger.Error("invalid deploy payload, dropping",
			"message_id", msg.Message.ID,
			"error", err,
		)
		return nil
	}

	if err := w.deploy(ctx, payload); err != nil {
		// Повторы deployment планирует сам deploy handler; сюда
		// ошибка доходит только если и это не удалось
		w.logger.Error("deploy handling interrupted",
			"machine_id", payload.MachineID,
			"error", err,
		)
	}
	return nil
}
