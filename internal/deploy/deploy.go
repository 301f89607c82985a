package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/billyhotjava/mist-ce/internal/mq"
	"github.com/billyhotjava/mist-ce/internal/shell"
	"github.com/billyhotjava/mist-ce/internal/telemetry"
)

// Default retry policy.
const (
	defaultMaxRetries = 5
	defaultRetryDelay = time.Minute

	// outputLimit — сколько вывода скрипта попадает в уведомление.
	outputLimit = 2048
)

// Executor выполняет команду на удалённой машине.
// Реализация: shell.Client.
type Executor interface {
	Run(ctx context.Context, target shell.Target, command string) (string, error)
}

// Notifier доставляет финальный исход пользователю и оператору.
// Реализация: mq.UserNotifier.
type Notifier interface {
	NotifyUser(ctx context.Context, user, subject, body string)
	NotifyAdmin(ctx context.Context, subject, body string)
}

// Requeuer перепланирует deployment-запрос с задержкой.
// Реализация: mq.Publisher.
type Requeuer interface {
	PublishDeployRequested(ctx context.Context, payload mq.DeployRequestedPayload, delay time.Duration) error
}

// Runner выполняет deployment-запросы с ограниченными повторами.
//
// Повтор разрешён только после транзиентного сбоя (машина ещё
// поднимается, SSH не успел стартовать) и не больше maxRetries раз.
// Ошибка самого скрипта не повторяется: скрипт мог успеть изменить
// состояние машины.
type Runner struct {
	executor Executor
	notifier Notifier
	requeuer Requeuer

	maxRetries int
	retryDelay time.Duration

	// transient подменяется в тестах.
	transient func(error) bool
	logger    *slog.Logger
}

// Config — конфигурация deploy Runner.
type Config struct {
	Executor Executor
	Notifier Notifier
	Requeuer Requeuer

	// MaxRetries — максимум повторов после транзиентных сбоев (default: 5).
	MaxRetries int

	// RetryDelay — пауза перед повтором (default: 1m).
	RetryDelay time.Duration

	// Logger
	Logger *slog.Logger
}

// New создаёт новый deploy Runner.
func New(cfg Config) *Runner {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		executor:   cfg.Executor,
		notifier:   cfg.Notifier,
		requeuer:   cfg.Requeuer,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		transient:  shell.IsTransient,
		logger:     logger,
	}
}

// Handle обрабатывает один deployment-запрос.
//
// Возвращаемый error — только сбой перепланирования; все прочие
// исходы терминальны и уже доставлены уведомлениями.
func (r *Runner) Handle(ctx context.Context, payload mq.DeployRequestedPayload) error {
	logger := telemetry.WithUser(r.logger, payload.User)
	logger = logger.With("machine_id", payload.MachineID, "attempt", payload.Attempt)

	target := shell.Target{
		Host: payload.Host,
		Port: payload.Port,
		User: payload.Username,
	}

	logger.Info("running deployment script", "host", payload.Host)
	output, err := r.executor.Run(ctx, target, payload.Command)

	if err == nil {
		telemetry.DeployOutcomes.WithLabelValues("success").Inc()
		logger.Info("deployment succeeded")
		r.notifyOutcome(ctx, payload, "Deployment succeeded", output)
		return nil
	}

	if r.transient(err) && payload.Attempt < r.maxRetries {
		retry := payload
		retry.Attempt++

		if requeueErr := r.requeuer.PublishDeployRequested(ctx, retry, r.retryDelay); requeueErr != nil {
			logger.Error("failed to schedule deployment retry", "error", requeueErr)
			return fmt.Errorf("schedule deploy retry: %w", requeueErr)
		}

		telemetry.DeployOutcomes.WithLabelValues("retried").Inc()
		logger.Warn("transient failure, deployment retry scheduled",
			"error", err,
			"delay", r.retryDelay,
		)
		return nil
	}

	telemetry.DeployOutcomes.WithLabelValues("failed").Inc()
	logger.Error("deployment failed", "error", err, "transient", r.transient(err))
	r.notifyOutcome(ctx, payload, "Deployment failed", fmt.Sprintf("%v\n\n%s", err, output))
	return nil
}

// notifyOutcome доставляет финальный исход пользователю и оператору.
func (r *Runner) notifyOutcome(ctx context.Context, payload mq.DeployRequestedPayload, subject, detail string) {
	if len(detail) > outputLimit {
		detail = detail[:outputLimit] + "\n... (truncated)"
	}

	body := fmt.Sprintf("Machine: %s (backend %s, host %s)\nAttempts: %d\n\n%s",
		payload.MachineID, payload.BackendID, payload.Host, payload.Attempt+1, detail)

	r.notifier.NotifyUser(ctx, payload.User, subject, body)
	r.notifier.NotifyAdmin(ctx, fmt.Sprintf("%s for %s", subject, payload.User), body)
}
