// Mist API — HTTP-интерфейс сервиса.
//
// API:
//   - Ставит задачи в очередь (с проверкой свежего кэша)
//   - Отдаёт кэшированные результаты и реестр задач
//   - Показывает backend'ы и синхронизированный инвентарь
//   - Принимает deployment-запросы
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/billyhotjava/mist-ce/internal/api"
	"github.com/billyhotjava/mist-ce/internal/mq"
	"github.com/billyhotjava/mist-ce/internal/repo"
	"github.com/billyhotjava/mist-ce/internal/tasks"
	"github.com/billyhotjava/mist-ce/internal/telemetry"
)

var startTime = time.Now()

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting mist-api")

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

	publisher := mq.NewPublisher(mqConn, logger)
	submitter := mq.NewTaskSubmitter(publisher)

	// Реестр задач: API нужны имена и окна, Execute здесь не вызывается
	registry := tasks.NewRegistry(tasks.Config{
		Inventory: machineRepo,
		Backends:  backendRepo,
		Logger:    logger,
	})

	// API handler
	handler := api.NewHandler(api.Config{
		Registry:  registry,
		Store:     kvRepo,
		Submitter: submitter,
		Deployer:  publisher,
		Backends:  backendRepo,
		Inventory: machineRepo,
		Logger:    logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	handler.RegisterRoutes(mux)

	addr := ":8080"
	if v := os.Getenv("API_PORT"); v != "" {
		addr = ":" + v
	}

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}
