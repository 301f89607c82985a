// Mist Worker — выполняет задачи из очереди.
//
// Worker:
//   - Получает task-вызовы из RabbitMQ
//   - Прогоняет их через Task Runner (дедупликация, backoff, polling)
//   - Доставляет результаты слушателям пользователя
//   - Выполняет deployment-скрипты с ограниченными повторами
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/billyhotjava/mist-ce/internal/deploy"
	"github.com/billyhotjava/mist-ce/internal/domain"
	"github.com/billyhotjava/mist-ce/internal/mq"
	"github.com/billyhotjava/mist-ce/internal/repo"
	"github.com/billyhotjava/mist-ce/internal/runner"
	"github.com/billyhotjava/mist-ce/internal/shell"
	"github.com/billyhotjava/mist-ce/internal/tasks"
	"github.com/billyhotjava/mist-ce/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting mist-worker")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// Репозитории
	kvRepo := repo.NewKVRepo(pool)
	backendRepo := repo.NewBackendRepo(pool)
	machineRepo := repo.NewMachineRepo(pool)

	// RabbitMQ
	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}

	mqConn, err := mq.NewConnection(mqURL, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	logger.Info("RabbitMQ connected")

	if err := mq.SetupTopology(ctx, mqConn); err != nil {
		logger.Warn("failed to setup topology", "error", err)
	}
	logger.Debug("topology declared", "topology", mq.TopologyInfo())

	publisher := mq.NewPublisher(mqConn, logger)
	submitter := mq.NewTaskSubmitter(publisher)
	notifier := mq.NewUserNotifier(mqConn, publisher, logger)

	// SSH: без ключа worker работает, но пробы и deployments падают
	sshClient, err := newSSHClient(logger)
	var prober tasks.Prober = noKeyProber{}
	var deployExec deploy.Executor = noKeyExecutor{}
	if err != nil {
		logger.Warn("SSH key not configured, probes and deployments disabled", "error", err)
	} else {
		prober = shell.NewSSHProber(sshClient, 0, "")
		deployExec = sshClient
	}

	// Реестр задач
	registry := tasks.NewRegistry(tasks.Config{
		Inventory: machineRepo,
		Backends:  backendRepo,
		Prober:    prober,
		Pinger:    shell.NewTCPPinger(0, 0, 0),
		Logger:    logger,
	})

	// Task Runner
	r := runner.New(runner.Config{
		Store:     kvRepo,
		Notifier:  notifier,
		Submitter: submitter,
		Locker:    repo.NewIdentityLock(pool),
		Logger:    logger,
	})

	// Deploy runner
	deployRunner := deploy.New(deploy.Config{
		Executor: deployExec,
		Notifier: notifier,
		Requeuer: publisher,
		Logger:   logger,
	})

	// Worker
	w := runner.NewWorker(runner.WorkerConfig{
		Runner:   r,
		Registry: registry,
		Deploy:   deployRunner.Handle,
		Conn:     mqConn,
		Logger:   logger,
	})

	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8082"
	if v := os.Getenv("WORKER_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	w.Stop()
	logger.Info("mist-worker stopped")
}

// newSSHClient создаёт SSH-клиент из ключа в SSH_KEY_FILE.
func newSSHClient(logger *slog.Logger) (*shell.Client, error) {
	keyFile := os.Getenv("SSH_KEY_FILE")
	if keyFile == "" {
		return nil, errors.New("SSH_KEY_FILE is not set")
	}

	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, err
	}

	logger.Info("SSH key loaded", "file", keyFile)
	return shell.New(shell.Config{PrivateKeyPEM: keyPEM})
}

// noKeyProber — заглушка пробы при отсутствии SSH-ключа.
// Задача probe падает с понятной ошибкой и уходит в backoff.
type noKeyProber struct{}

func (noKeyProber) Probe(context.Context, string) (*domain.ProbeResult, error) {
	return nil, errors.New("ssh key not configured")
}

// noKeyExecutor — заглушка deployment-исполнителя при отсутствии ключа.
type noKeyExecutor struct{}

func (noKeyExecutor) Run(context.Context, shell.Target, string) (string, error) {
	return "", errors.New("ssh key not configured")
}
